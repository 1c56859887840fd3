package asm

import (
	"fmt"

	"github.com/classforge/classforge/internal/opcodes"
	"github.com/classforge/classforge/internal/stackmap"
	"github.com/classforge/classforge/internal/typesys"
)

// opKind is the closed set of operation shapes. The flow analysis, the
// optimizer and the encoder each switch over every kind.
type opKind byte

const (
	// opInsn is a single opcode without operands, with an explicit stack
	// effect.
	opInsn opKind = iota
	// opPush pushes a constant, encoded in its smallest form.
	opPush
	opLoad
	opStore
	opInc
	// opBranch is a goto or a conditional branch to a label.
	opBranch
	opSwitch
	// opRef is an opcode followed by a u2 constant pool index.
	opRef
	opInvokeInterface
	opInvokeDynamic
	opNewArray
	opMultiANewArray
	// opLabel positions a label and emits nothing.
	opLabel
	// opLineNum starts a LineNumberTable entry and emits nothing.
	opLineNum
)

var opKindNames = [...]string{
	opInsn:            "insn",
	opPush:            "push",
	opLoad:            "load",
	opStore:           "store",
	opInc:             "inc",
	opBranch:          "branch",
	opSwitch:          "switch",
	opRef:             "ref",
	opInvokeInterface: "invokeinterface",
	opInvokeDynamic:   "invokedynamic",
	opNewArray:        "newarray",
	opMultiANewArray:  "multianewarray",
	opLabel:           "label",
	opLineNum:         "linenum",
}

func (k opKind) String() string {
	return opKindNames[k]
}

type opFlag byte

const (
	flagLive opFlag = 1 << iota
	// flagWide marks a branch which needs a 32-bit offset.
	flagWide
	// flagInit marks an invokespecial of a constructor, which initializes
	// its receiver.
	flagInit
	// flagVisited is set once the flow analysis has reached the op.
	flagVisited
)

// op is one node of the operation list. Ops live in Method.ops and are
// linked by index through next, so removing an op only rewires its
// predecessor.
type op struct {
	kind opKind
	flag opFlag
	code opcodes.Opcode
	next int

	// pop is the number of stack entries consumed, and push is the type
	// produced, if any.
	pop  int
	push *typesys.Type

	v *Var
	// n is the increment of opInc, the array type of opNewArray, the
	// dimensions of opMultiANewArray and the argument slots of
	// opInvokeInterface.
	n     int
	cp    int
	val   interface{}
	label *Label
	sw    *switchTable
	line  int

	// addr is the offset of the op in the code of the latest pass.
	addr int

	// assigned is the intersection of the definitely assigned variables on
	// every path reaching the op, and uninit reports whether the receiver of
	// a constructor may still be uninitialized there.
	assigned bitset
	uninit   bool
	// after is the state following a conditional branch, needed for the
	// frame at the fall-through address of its wide form.
	after *state
}

func (o *op) isCode() bool {
	return o.kind != opLabel && o.kind != opLineNum
}

func (o *op) String() string {
	switch o.kind {
	case opPush:
		return fmt.Sprintf("push %v", o.val)
	case opLoad, opStore, opInc:
		return fmt.Sprintf("%s %s", o.kind, o.v)
	case opLabel, opLineNum:
		return o.kind.String()
	}
	return opcodes.Name(o.code)
}

type switchTable struct {
	keys    []int32
	targets []*Label
	table   bool
}

// Label is a position in the code of a method. A label is positioned once
// with Method.Here, and can be targeted before or after that.
type Label struct {
	m *Method
	// op is the index of the positioning op, or -1.
	op int
	// addr is the address in the current pass, or -1 until reached.
	addr int
	// fixups are the forward references waiting for addr.
	fixups []fixup

	// in is the merged flow state on entry.
	in *state
	// targeted is set when the label is a live branch target or handler
	// entry, which requires a stack map frame.
	targeted bool
	// catchType is set for exception handler entries.
	catchType *typesys.Type
}

// Positioned returns true once the label has been positioned.
func (l *Label) Positioned() bool {
	return l.op >= 0
}

// Addr returns the final address of the label after Finish, or -1.
func (l *Label) Addr() int {
	return l.addr
}

type fixup struct {
	// op is the branching op, whose offsets are relative to src.
	op, src int
	at      int
	width   int
}

// Var is a local variable. Parameters are variables with a fixed slot;
// other variables only get a slot if some live op uses them.
type Var struct {
	m     *Method
	index int
	typ   *typesys.Type
	name  string
	param bool
	slot  int

	loads, stores int
	// firstStore is the op storing the first value, used for the start of
	// the LocalVariableTable entry.
	firstStore int
}

func (v *Var) Type() *typesys.Type {
	return v.typ
}

// SetName gives the variable a LocalVariableTable entry.
func (v *Var) SetName(name string) {
	v.name = name
}

func (v *Var) Name() string {
	return v.name
}

// Slot returns the assigned local variable slot after Finish, or -1 if the
// variable was optimized away.
func (v *Var) Slot() int {
	return v.slot
}

func (v *Var) String() string {
	if v.name != "" {
		return fmt.Sprintf("%s %s", v.typ, v.name)
	}
	return fmt.Sprintf("%s #%d", v.typ, v.index)
}

type handler struct {
	start, end, target *Label
	// catch is nil for handlers catching everything.
	catch *typesys.Type
	cp    int
	live  bool
}

// state is the abstract machine state during flow analysis.
type state struct {
	stack    []stackmap.Type
	assigned bitset
	uninit   bool
}

func (s *state) clone() *state {
	return &state{
		stack:    append([]stackmap.Type(nil), s.stack...),
		assigned: s.assigned.clone(),
		uninit:   s.uninit,
	}
}

// bitset holds the definitely assigned variables, indexed by Var.index.
type bitset []uint64

func (b bitset) has(i int) bool {
	return i/64 < len(b) && b[i/64]&(1<<(uint(i)%64)) != 0
}

func (b *bitset) set(i int) {
	for i/64 >= len(*b) {
		*b = append(*b, 0)
	}
	(*b)[i/64] |= 1 << (uint(i) % 64)
}

func (b bitset) clone() bitset {
	return append(bitset(nil), b...)
}

// and intersects b with other, and returns true if b changed.
func (b bitset) and(other bitset) bool {
	changed := false
	for i := range b {
		var o uint64
		if i < len(other) {
			o = other[i]
		}
		if n := b[i] & o; n != b[i] {
			b[i] = n
			changed = true
		}
	}
	return changed
}
