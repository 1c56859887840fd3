package classforge

import (
	"fmt"

	"github.com/classforge/classforge/internal/asm"
	"github.com/classforge/classforge/internal/opcodes"
	"github.com/classforge/classforge/internal/typesys"
)

// Variable is a parameter or local variable of a method. Operations on a
// Variable append code to its method, and those producing a value return it
// in a new Variable.
type Variable struct {
	m *MethodMaker
	v *asm.Var
}

// Type returns the variable type, or nil for a variable returned by a
// failed Param or This.
func (v *Variable) Type() *Type {
	if v.v == nil {
		return nil
	}
	return v.v.Type()
}

// Name names the variable in the LocalVariableTable.
func (v *Variable) Name(name string) *Variable {
	if v.v != nil {
		v.v.SetName(name)
	}
	return v
}

func (v *Variable) String() string {
	if v.v == nil {
		return "invalid variable"
	}
	return v.v.String()
}

// Set assigns a value, converted to the variable type.
func (v *Variable) Set(value interface{}) error {
	m := v.m
	if err := m.begin(); err != nil {
		return err
	}
	if err := m.push(value, v.Type()); err != nil {
		return err
	}
	return m.body.Store(v.v)
}

// numeric returns the primitive type arithmetic on t operates on, unboxing
// if needed.
func numeric(t *Type) *Type {
	if p := t.Unbox(); p != nil && p.Kind() != typesys.KindVoid {
		return p
	}
	return nil
}

// comparisonType returns the type two primitives are compared as: the one
// the other converts to more cheaply.
func comparisonType(a, b *Type) (*Type, bool) {
	toA := b.ConversionCost(a)
	toB := a.ConversionCost(b)
	switch {
	case toA == 0 || toA < toB:
		return a, true
	case toB != typesys.MaxCost:
		return b, true
	}
	return nil, false
}

type arith struct {
	name string
	code opcodes.Opcode
	// shift takes an int right operand, and logic accepts booleans. Neither
	// accepts floating point.
	shift, logic bool
}

var (
	opAdd  = arith{name: "add", code: opcodes.IADD}
	opSub  = arith{name: "sub", code: opcodes.ISUB}
	opMul  = arith{name: "mul", code: opcodes.IMUL}
	opDiv  = arith{name: "div", code: opcodes.IDIV}
	opRem  = arith{name: "rem", code: opcodes.IREM}
	opAnd  = arith{name: "and", code: opcodes.IAND, logic: true}
	opOr   = arith{name: "or", code: opcodes.IOR, logic: true}
	opXor  = arith{name: "xor", code: opcodes.IXOR, logic: true}
	opShl  = arith{name: "shl", code: opcodes.ISHL, shift: true}
	opShr  = arith{name: "shr", code: opcodes.ISHR, shift: true}
	opUShr = arith{name: "ushr", code: opcodes.IUSHR, shift: true}
)

// binary applies an operation whose result has the type of the variable.
// The operand is converted to the primitive type of the variable, except for
// shift distances, which are ints. Byte, char and short results are
// narrowed back.
func (v *Variable) binary(op arith, value interface{}) (*Variable, error) {
	m := v.m
	if err := m.begin(); err != nil {
		return nil, err
	}
	reg := m.c.ctx.reg
	vt, err := m.typeOfValue(value)
	if err != nil {
		return nil, err
	}
	bad := fmt.Errorf("%w: %s %s %s", ErrBadOperand, v.Type(), op.name, vt)
	prim := numeric(v.Type())
	if prim == nil || vt.IsNull() {
		return nil, bad
	}
	switch prim.Kind() {
	case typesys.KindBoolean:
		if !op.logic {
			return nil, bad
		}
	case typesys.KindFloat, typesys.KindDouble:
		if op.shift || op.logic {
			return nil, bad
		}
	}

	if err = m.push(v, prim); err != nil {
		return nil, err
	}
	if op == opUShr {
		// The sign extension of a negative byte or short would be shifted
		// in.
		switch prim.Kind() {
		case typesys.KindByte:
			err = m.mask(0xff)
		case typesys.KindShort:
			err = m.mask(0xffff)
		}
		if err != nil {
			return nil, err
		}
	}
	switch {
	case !op.shift:
		err = m.push(value, prim)
	case numeric(vt) != nil && numeric(vt).Kind() == typesys.KindLong:
		// Only the low bits of the distance matter.
		if err = m.push(value, reg.Long); err == nil {
			m.body.Insn(opcodes.L2I, 1, reg.Int)
		}
	default:
		err = m.push(value, reg.Int)
	}
	if err != nil {
		return nil, err
	}

	code := op.code
	if op.shift || op.logic {
		code += opcodes.Opcode(typeIndex(prim) % 2)
	} else {
		code += opcodes.Opcode(typeIndex(prim))
	}
	m.body.Insn(code, 2, stackType(reg, prim))
	return m.narrowResult(v.Type(), prim)
}

// stackType returns the type of a primitive on the operand stack. Booleans
// are kept, since no conversion is allowed between them and ints.
func stackType(reg *typesys.Registry, prim *Type) *Type {
	if k := prim.Kind(); k != typesys.KindBoolean && category(k) == typesys.KindInt {
		return reg.Int
	}
	return prim
}

func (m *MethodMaker) mask(bits int32) error {
	if err := m.body.Push(bits); err != nil {
		return err
	}
	m.body.Insn(opcodes.IAND, 2, m.c.ctx.reg.Int)
	return nil
}

// narrowResult converts the result of an operation on the stack back to the
// type of its variable, and stores it into a new variable of that type.
func (m *MethodMaker) narrowResult(typ, prim *Type) (*Variable, error) {
	reg := m.c.ctx.reg
	if err := m.primitive(stackType(reg, prim), prim); err != nil {
		return nil, err
	}
	if !typ.IsPrimitive() {
		m.box(prim)
	}
	return m.result(typ)
}

func (v *Variable) Add(value interface{}) (*Variable, error) { return v.binary(opAdd, value) }
func (v *Variable) Sub(value interface{}) (*Variable, error) { return v.binary(opSub, value) }
func (v *Variable) Mul(value interface{}) (*Variable, error) { return v.binary(opMul, value) }
func (v *Variable) Div(value interface{}) (*Variable, error) { return v.binary(opDiv, value) }
func (v *Variable) Rem(value interface{}) (*Variable, error) { return v.binary(opRem, value) }
func (v *Variable) And(value interface{}) (*Variable, error) { return v.binary(opAnd, value) }
func (v *Variable) Or(value interface{}) (*Variable, error)  { return v.binary(opOr, value) }
func (v *Variable) Xor(value interface{}) (*Variable, error) { return v.binary(opXor, value) }

// Shl, Shr and UShr shift by an int or long distance.
func (v *Variable) Shl(value interface{}) (*Variable, error)  { return v.binary(opShl, value) }
func (v *Variable) Shr(value interface{}) (*Variable, error)  { return v.binary(opShr, value) }
func (v *Variable) UShr(value interface{}) (*Variable, error) { return v.binary(opUShr, value) }

// Neg returns the negated value, of the variable type. Booleans are negated
// logically.
func (v *Variable) Neg() (*Variable, error) {
	m := v.m
	if err := m.begin(); err != nil {
		return nil, err
	}
	prim := numeric(v.Type())
	if prim == nil {
		return nil, fmt.Errorf("%w: neg %s", ErrBadOperand, v.Type())
	}
	if prim.Kind() == typesys.KindBoolean {
		return v.Xor(true)
	}
	if err := m.push(v, prim); err != nil {
		return nil, err
	}
	m.body.Insn(opcodes.INEG+opcodes.Opcode(typeIndex(prim)), 1, stackType(m.c.ctx.reg, prim))
	return m.narrowResult(v.Type(), prim)
}

// Inc adds a constant to the variable in place.
func (v *Variable) Inc(amount int) error {
	m := v.m
	if err := m.begin(); err != nil {
		return err
	}
	if v.Type().Kind() == typesys.KindInt && amount >= -32768 && amount <= 32767 {
		return m.body.Inc(v.v, amount)
	}
	sum, err := v.Add(amount)
	if err != nil {
		return err
	}
	return v.Set(sum)
}

type cond struct {
	name string
	// zero compares with zero or null, cmp compares two ints or two
	// references.
	zero, cmp opcodes.Opcode
	ref       bool
}

var (
	condEq = cond{name: "==", zero: opcodes.IFEQ, cmp: opcodes.IF_ICMPEQ, ref: true}
	condNe = cond{name: "!=", zero: opcodes.IFNE, cmp: opcodes.IF_ICMPNE, ref: true}
	condLt = cond{name: "<", zero: opcodes.IFLT, cmp: opcodes.IF_ICMPLT}
	condGe = cond{name: ">=", zero: opcodes.IFGE, cmp: opcodes.IF_ICMPGE}
	condGt = cond{name: ">", zero: opcodes.IFGT, cmp: opcodes.IF_ICMPGT}
	condLe = cond{name: "<=", zero: opcodes.IFLE, cmp: opcodes.IF_ICMPLE}
)

func isZero(v interface{}) bool {
	switch c := v.(type) {
	case int:
		return c == 0
	case int32:
		return c == 0
	case bool:
		return !c
	}
	return false
}

func (v *Variable) compare(c cond, value interface{}, l *Label) error {
	m := v.m
	if err := m.begin(); err != nil {
		return err
	}
	target, err := m.label(l)
	if err != nil {
		return err
	}
	reg := m.c.ctx.reg
	vt, err := m.typeOfValue(value)
	if err != nil {
		return err
	}
	bad := fmt.Errorf("%w: %s %s %s", ErrBadOperand, v.Type(), c.name, vt)

	if !v.Type().IsPrimitive() && !vt.IsPrimitive() {
		if !c.ref {
			return bad
		}
		if err = m.push(v, nil); err != nil {
			return err
		}
		if vt.IsNull() {
			code := opcodes.IFNULL
			if c.zero == opcodes.IFNE {
				code = opcodes.IFNONNULL
			}
			return m.body.Branch(code, target)
		}
		if err = m.push(value, nil); err != nil {
			return err
		}
		return m.body.Branch(c.cmp-opcodes.IF_ICMPEQ+opcodes.IF_ACMPEQ, target)
	}

	a, b := numeric(v.Type()), numeric(vt)
	if a == nil || b == nil {
		return bad
	}
	var t *Type
	if a.Kind() == typesys.KindBoolean || b.Kind() == typesys.KindBoolean {
		if a != b || !c.ref {
			return bad
		}
		t = reg.Boolean
	} else if t, _ = comparisonType(a, b); t == nil {
		// A constant can still be compared as the variable type, when
		// exactly representable.
		if _, ok := value.(*Variable); ok {
			return fmt.Errorf("%w: %s %s %s", ErrNoConversion, v.Type(), c.name, vt)
		}
		t = a
	}

	if err = m.push(v, t); err != nil {
		return err
	}
	if category(t.Kind()) == typesys.KindInt {
		if _, ok := value.(*Variable); !ok && isZero(value) {
			return m.body.Branch(c.zero, target)
		}
		if err = m.push(value, t); err != nil {
			return err
		}
		return m.body.Branch(c.cmp, target)
	}

	if err = m.push(value, t); err != nil {
		return err
	}
	switch t.Kind() {
	case typesys.KindLong:
		m.body.Insn(opcodes.LCMP, 2, reg.Int)
	case typesys.KindFloat, typesys.KindDouble:
		// NaN must make every comparison false, so < and <= see it as
		// greater, and > and >= see it as less.
		code := opcodes.FCMPL
		if c.zero == opcodes.IFLT || c.zero == opcodes.IFLE {
			code = opcodes.FCMPG
		}
		if t.Kind() == typesys.KindDouble {
			code += opcodes.DCMPL - opcodes.FCMPL
		}
		m.body.Insn(code, 2, reg.Int)
	}
	return m.body.Branch(c.zero, target)
}

// IfEq branches to l if the variable equals value. References compare by
// identity.
func (v *Variable) IfEq(value interface{}, l *Label) error { return v.compare(condEq, value, l) }
func (v *Variable) IfNe(value interface{}, l *Label) error { return v.compare(condNe, value, l) }
func (v *Variable) IfLt(value interface{}, l *Label) error { return v.compare(condLt, value, l) }
func (v *Variable) IfGe(value interface{}, l *Label) error { return v.compare(condGe, value, l) }
func (v *Variable) IfGt(value interface{}, l *Label) error { return v.compare(condGt, value, l) }
func (v *Variable) IfLe(value interface{}, l *Label) error { return v.compare(condLe, value, l) }

// IfTrue branches to l if the boolean variable is true.
func (v *Variable) IfTrue(l *Label) error { return v.compare(condNe, false, l) }

// IfFalse branches to l if the boolean variable is false.
func (v *Variable) IfFalse(l *Label) error { return v.compare(condEq, false, l) }

// Switch branches to the label of the matching key, or to dflt.
func (v *Variable) Switch(dflt *Label, keys []int32, labels ...*Label) error {
	m := v.m
	if err := m.begin(); err != nil {
		return err
	}
	d, err := m.label(dflt)
	if err != nil {
		return err
	}
	targets := make([]*asm.Label, len(labels))
	for i, l := range labels {
		if targets[i], err = m.label(l); err != nil {
			return err
		}
	}
	if err = m.push(v, m.c.ctx.reg.Int); err != nil {
		return err
	}
	return m.body.Switch(keys, targets, d)
}

// Cast converts the variable to another type, allowing narrowing: checkcast
// for references, and primitive narrowing such as long to int.
func (v *Variable) Cast(typ interface{}) (*Variable, error) {
	m := v.m
	if err := m.begin(); err != nil {
		return nil, err
	}
	to, err := m.c.ctx.typeOf(typ)
	if err != nil {
		return nil, err
	}
	from := v.Type()
	if err = m.push(v, nil); err != nil {
		return nil, err
	}

	switch {
	case from.IsPrimitive() && to.IsPrimitive():
		err = m.primitive(from, to)
	case from.ConversionCost(to) != typesys.MaxCost:
		err = m.convert(from, to)
	case to.IsPrimitive():
		// Object to int: checkcast to Integer, then unbox.
		box := to.Box()
		if box == nil {
			return nil, fmt.Errorf("%w: %s to %s", ErrNoConversion, from, to)
		}
		if !box.IsAssignableFrom(from) {
			m.body.Ref(opcodes.CHECKCAST, m.c.pool.AddClass(box.InternalName()), 1, box)
		}
		m.unbox(box)
	case from.IsPrimitive():
		// int to Long: box as long.
		prim := to.Unbox()
		if prim == nil {
			return nil, fmt.Errorf("%w: %s to %s", ErrNoConversion, from, to)
		}
		if err = m.primitive(from, prim); err == nil {
			m.box(prim)
		}
	default:
		m.body.Ref(opcodes.CHECKCAST, m.c.pool.AddClass(to.InternalName()), 1, to)
	}
	if err != nil {
		return nil, err
	}
	return m.result(to)
}

// InstanceOf returns a boolean variable, true if the variable is an
// instance of the type.
func (v *Variable) InstanceOf(typ interface{}) (*Variable, error) {
	m := v.m
	if err := m.begin(); err != nil {
		return nil, err
	}
	t, err := m.c.ctx.typeOf(typ)
	if err != nil {
		return nil, err
	}
	if v.Type().IsPrimitive() || t.IsPrimitive() {
		return nil, fmt.Errorf("%w: %s instanceof %s", ErrNotReference, v.Type(), t)
	}
	if err = m.push(v, nil); err != nil {
		return nil, err
	}
	m.body.Ref(opcodes.INSTANCEOF, m.c.pool.AddClass(t.InternalName()), 1, m.c.ctx.reg.Boolean)
	return m.result(m.c.ctx.reg.Boolean)
}

// arrayOp returns the typed array load opcode, and its store counterpart
// is 33 opcodes later.
func arrayOp(elem *Type) opcodes.Opcode {
	switch elem.Kind() {
	case typesys.KindBoolean, typesys.KindByte:
		return opcodes.BALOAD
	case typesys.KindChar:
		return opcodes.CALOAD
	case typesys.KindShort:
		return opcodes.SALOAD
	}
	return opcodes.IALOAD + opcodes.Opcode(typeIndex(elem))
}

func (v *Variable) array() (*Type, error) {
	if !v.Type().IsArray() {
		return nil, fmt.Errorf("%w: %s is not an array", ErrBadOperand, v.Type())
	}
	return v.Type().Elem(), nil
}

// ALength returns the length of the array.
func (v *Variable) ALength() (*Variable, error) {
	m := v.m
	if err := m.begin(); err != nil {
		return nil, err
	}
	if _, err := v.array(); err != nil {
		return nil, err
	}
	if err := m.push(v, nil); err != nil {
		return nil, err
	}
	m.body.Insn(opcodes.ARRAYLENGTH, 1, m.c.ctx.reg.Int)
	return m.result(m.c.ctx.reg.Int)
}

// AGet returns the array element at index.
func (v *Variable) AGet(index interface{}) (*Variable, error) {
	m := v.m
	if err := m.begin(); err != nil {
		return nil, err
	}
	elem, err := v.array()
	if err != nil {
		return nil, err
	}
	if err = m.push(v, nil); err != nil {
		return nil, err
	}
	if err = m.push(index, m.c.ctx.reg.Int); err != nil {
		return nil, err
	}
	m.body.Insn(arrayOp(elem), 2, elem)
	return m.result(elem)
}

// ASet stores the value, converted to the element type, at index.
func (v *Variable) ASet(index, value interface{}) error {
	m := v.m
	if err := m.begin(); err != nil {
		return err
	}
	elem, err := v.array()
	if err != nil {
		return err
	}
	if err = m.push(v, nil); err != nil {
		return err
	}
	if err = m.push(index, m.c.ctx.reg.Int); err != nil {
		return err
	}
	if err = m.push(value, elem); err != nil {
		return err
	}
	m.body.Insn(arrayOp(elem)+opcodes.IASTORE-opcodes.IALOAD, 3, nil)
	return nil
}
