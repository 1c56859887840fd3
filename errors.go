package classforge

import (
	"errors"

	"github.com/classforge/classforge/internal/asm"
	"github.com/classforge/classforge/internal/classfile"
	"github.com/classforge/classforge/internal/typesys"
)

var (
	// ErrFinished is returned when a class or method is changed after it
	// was finished.
	ErrFinished = asm.ErrFinished
	// ErrForeign is returned when a variable or label of another method is
	// used.
	ErrForeign = asm.ErrForeign
	// ErrEndReached is returned by Finish when a method which must return a
	// value can run past its end.
	ErrEndReached = asm.ErrEndReached
	// ErrUnpositionedLabel is returned by Finish when a branch targets a
	// label which was never positioned.
	ErrUnpositionedLabel = asm.ErrUnpositionedLabel
	// ErrUnassignedVar is returned by Finish when a variable may be read
	// before it is set.
	ErrUnassignedVar = asm.ErrUnassignedVar
	// ErrCodeTooLarge and ErrNotConverged are returned by Finish when a
	// method body cannot be encoded.
	ErrCodeTooLarge = asm.ErrCodeTooLarge
	ErrNotConverged = asm.ErrNotConverged
	// ErrTooManyParams is returned when the parameters of a method take more
	// than 255 slots, counting the receiver.
	ErrTooManyParams = asm.ErrTooManyParams
	// ErrTooManyLocals and ErrStackTooDeep are returned by Finish when a
	// method needs more than 65535 local or operand stack slots.
	ErrTooManyLocals = asm.ErrTooManyLocals
	ErrStackTooDeep  = asm.ErrStackTooDeep
	// ErrNoConversion is returned when a value cannot be converted to the
	// type required where it is used.
	ErrNoConversion = errors.New("no conversion")
	// ErrModifierOrder is returned when a method is made static or abstract
	// after its body was started.
	ErrModifierOrder = errors.New("modifier set after the body was started")
	// ErrNotReference is returned when a primitive value is used where an
	// object is required, such as the target of an instance call.
	ErrNotReference = typesys.ErrNotReference
	// ErrBadOperand is returned for operands an operation does not accept,
	// such as the shift of a double.
	ErrBadOperand = errors.New("bad operand")
	// ErrNoMatchingMethod and ErrAmbiguousMethod are returned by invocations
	// which don't resolve to exactly one method.
	ErrNoMatchingMethod = typesys.ErrNoMatchingMethod
	ErrAmbiguousMethod  = typesys.ErrAmbiguousMethod
	// ErrNoSuchField is returned by field accesses of undeclared fields.
	ErrNoSuchField = typesys.ErrNoSuchField
	// ErrConflictingMember is returned when a field or method is added twice
	// with different signatures.
	ErrConflictingMember = typesys.ErrConflictingMember
	// ErrConflictingType is returned when a class is generated twice, or
	// declared with two different hierarchies.
	ErrConflictingType = typesys.ErrConflictingType
	// ErrTooMany is returned when a class has more fields, methods or
	// interfaces than a class file can hold.
	ErrTooMany = classfile.ErrTooMany
)
