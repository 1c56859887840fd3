package classforge

import (
	"fmt"
	"math"

	"github.com/classforge/classforge/internal/opcodes"
	"github.com/classforge/classforge/internal/typesys"
)

// constant returns the value a Go constant is pushed as, and its type.
// Integers get the narrowest of int and long which holds them, except for
// the sized types int8, int16 and uint16, which are byte, short and char.
func constant(v interface{}, reg *typesys.Registry) (interface{}, *Type, bool) {
	switch c := v.(type) {
	case nil:
		return nil, reg.Null, true
	case bool:
		if c {
			return int32(1), reg.Boolean, true
		}
		return int32(0), reg.Boolean, true
	case int8:
		return int32(c), reg.Byte, true
	case int16:
		return int32(c), reg.Short, true
	case uint16:
		return int32(c), reg.Char, true
	case int32:
		return c, reg.Int, true
	case int64:
		return c, reg.Long, true
	case int:
		return integer(int64(c), reg)
	case uint8:
		return int32(c), reg.Int, true
	case uint32:
		return integer(int64(c), reg)
	case uint:
		if uint64(c) > math.MaxInt64 {
			return nil, nil, false
		}
		return integer(int64(c), reg)
	case uint64:
		if c > math.MaxInt64 {
			return nil, nil, false
		}
		return integer(int64(c), reg)
	case float32:
		return c, reg.Float, true
	case float64:
		return c, reg.Double, true
	case string:
		return c, reg.String, true
	case *Type:
		// A class literal.
		return c, reg.Class, c != nil
	}
	return nil, nil, false
}

func integer(v int64, reg *typesys.Registry) (interface{}, *Type, bool) {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		return int32(v), reg.Int, true
	}
	return v, reg.Long, true
}

// exactConstant returns the value of a Go constant converted to the
// primitive (or String) type to, if it is exactly representable there.
func exactConstant(v interface{}, to *Type, reg *typesys.Registry) (interface{}, bool) {
	val, from, ok := constant(v, reg)
	if !ok {
		return nil, false
	}
	if to == reg.String {
		s, ok := val.(string)
		return s, ok
	}
	if !to.IsPrimitive() || !from.IsPrimitive() {
		return nil, false
	}
	if to.Kind() == typesys.KindBoolean || from.Kind() == typesys.KindBoolean {
		return val, to.Kind() == from.Kind()
	}

	switch n := val.(type) {
	case int32:
		return exactInteger(int64(n), to.Kind())
	case int64:
		return exactInteger(n, to.Kind())
	case float32:
		switch to.Kind() {
		case typesys.KindFloat:
			return n, true
		case typesys.KindDouble:
			return float64(n), true
		}
		return exactIntegral(float64(n), to.Kind())
	case float64:
		switch to.Kind() {
		case typesys.KindFloat:
			if f := float32(n); float64(f) == n || math.IsNaN(n) {
				return f, true
			}
		case typesys.KindDouble:
			return n, true
		}
		return exactIntegral(n, to.Kind())
	}
	return nil, false
}

// exactIntegral converts a floating point constant with no fraction to an
// integer kind. -0.0 has no integer representation.
func exactIntegral(f float64, k typesys.Kind) (interface{}, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 || (f == 0 && math.Signbit(f)) {
		return nil, false
	}
	return exactInteger(int64(f), k)
}

func exactInteger(n int64, k typesys.Kind) (interface{}, bool) {
	switch k {
	case typesys.KindByte:
		return int32(n), n >= math.MinInt8 && n <= math.MaxInt8
	case typesys.KindShort:
		return int32(n), n >= math.MinInt16 && n <= math.MaxInt16
	case typesys.KindChar:
		return int32(n), n >= 0 && n <= math.MaxUint16
	case typesys.KindInt:
		return int32(n), n >= math.MinInt32 && n <= math.MaxInt32
	case typesys.KindLong:
		return n, true
	case typesys.KindFloat:
		return float32(n), int64(float32(n)) == n
	case typesys.KindDouble:
		return float64(n), int64(float64(n)) == n
	}
	return nil, false
}

// category maps a primitive kind to the kind its values have on the operand
// stack.
func category(k typesys.Kind) typesys.Kind {
	if k >= typesys.KindBoolean && k <= typesys.KindInt {
		return typesys.KindInt
	}
	return k
}

// typeIndex returns the offset of the int, long, float, double or reference
// variant of typed opcodes, such as iadd, ladd, fadd and dadd.
func typeIndex(t *Type) int {
	switch category(t.Kind()) {
	case typesys.KindInt:
		return 0
	case typesys.KindLong:
		return 1
	case typesys.KindFloat:
		return 2
	case typesys.KindDouble:
		return 3
	}
	return 4
}

// primitiveOps holds the conversion opcodes between stack categories, in
// typeIndex order. Zero means no opcode is needed.
var primitiveOps = [4][4]opcodes.Opcode{
	{0, opcodes.I2L, opcodes.I2F, opcodes.I2D},
	{opcodes.L2I, 0, opcodes.L2F, opcodes.L2D},
	{opcodes.F2I, opcodes.F2L, 0, opcodes.F2D},
	{opcodes.D2I, opcodes.D2L, opcodes.D2F, 0},
}

// primitive emits the conversion of the primitive on the stack, which may
// narrow.
func (m *MethodMaker) primitive(from, to *Type) error {
	if from.Kind() == typesys.KindBoolean || to.Kind() == typesys.KindBoolean {
		if from.Kind() != to.Kind() {
			return fmt.Errorf("%w: %s to %s", ErrNoConversion, from, to)
		}
		return nil
	}
	if op := primitiveOps[typeIndex(from)][typeIndex(to)]; op != 0 {
		m.body.Insn(op, 1, to)
	}

	var narrow opcodes.Opcode
	switch to.Kind() {
	case typesys.KindByte:
		if from.Kind() != typesys.KindByte {
			narrow = opcodes.I2B
		}
	case typesys.KindChar:
		if from.Kind() != typesys.KindChar {
			narrow = opcodes.I2C
		}
	case typesys.KindShort:
		if from.Kind() != typesys.KindShort && from.Kind() != typesys.KindByte {
			narrow = opcodes.I2S
		}
	}
	if narrow != 0 {
		m.body.Insn(narrow, 1, to)
	}
	return nil
}

// convert emits the conversion of the value on the stack from one type to
// another, as allowed by ConversionCost: primitive widening, boxing,
// unboxing, and reference widening, which needs no code.
func (m *MethodMaker) convert(from, to *Type) error {
	if from == to {
		return nil
	}
	if from.ConversionCost(to) == typesys.MaxCost {
		return fmt.Errorf("%w: %s to %s", ErrNoConversion, from, to)
	}

	switch {
	case from.IsPrimitive() && to.IsPrimitive():
		return m.primitive(from, to)
	case from.IsPrimitive():
		if prim := to.Unbox(); prim != nil {
			if err := m.primitive(from, prim); err != nil {
				return err
			}
			m.box(prim)
			return nil
		}
		m.box(from)
		return nil
	case to.IsPrimitive():
		prim := from.Unbox()
		m.unbox(from)
		return m.primitive(prim, to)
	case to.IsAssignableFrom(from):
		return nil
	}

	fp, tp := from.Unbox(), to.Unbox()
	if fp == nil || tp == nil {
		return fmt.Errorf("%w: %s to %s", ErrNoConversion, from, to)
	}
	m.unbox(from)
	if err := m.primitive(fp, tp); err != nil {
		return err
	}
	m.box(tp)
	return nil
}

// box emits the boxing of the primitive on the stack with valueOf.
func (m *MethodMaker) box(prim *Type) {
	box := prim.Box()
	cp := m.c.pool.AddMethod(box.InternalName(), "valueOf", typesys.MethodDescriptor(box, []*Type{prim}))
	m.body.Ref(opcodes.INVOKESTATIC, cp, 1, box)
}

// unbox emits the unboxing of the boxed primitive on the stack, with
// booleanValue, intValue and so on.
func (m *MethodMaker) unbox(box *Type) {
	prim := box.Unbox()
	cp := m.c.pool.AddMethod(box.InternalName(), prim.Name()+"Value", typesys.MethodDescriptor(prim, nil))
	m.body.Ref(opcodes.INVOKEVIRTUAL, cp, 1, prim)
}

// typeOfValue returns the type of a value argument: a *Variable or a Go
// constant.
func (m *MethodMaker) typeOfValue(v interface{}) (*Type, error) {
	if vv, ok := v.(*Variable); ok {
		if err := m.owns(vv); err != nil {
			return nil, err
		}
		return vv.Type(), nil
	}
	_, t, ok := constant(v, m.c.ctx.reg)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported value %T", ErrBadOperand, v)
	}
	return t, nil
}

// push emits the push of a value argument converted to type to, or as is
// when to is nil. Constants are converted at build time when exactly
// representable.
func (m *MethodMaker) push(v interface{}, to *Type) error {
	if vv, ok := v.(*Variable); ok {
		if err := m.owns(vv); err != nil {
			return err
		}
		if err := m.body.Load(vv.v); err != nil {
			return err
		}
		if to == nil {
			return nil
		}
		return m.convert(vv.Type(), to)
	}

	reg := m.c.ctx.reg
	if to != nil {
		target := to
		if !to.IsPrimitive() && to.Unbox() != nil {
			target = to.Unbox()
		}
		if val, ok := exactConstant(v, target, reg); ok && target.IsPrimitive() {
			if err := m.body.Push(val); err != nil {
				return err
			}
			if target != to {
				m.box(target)
			}
			return nil
		}
	}

	val, t, ok := constant(v, reg)
	if !ok {
		return fmt.Errorf("%w: unsupported value %T", ErrBadOperand, v)
	}
	if err := m.body.Push(val); err != nil {
		return err
	}
	if to == nil {
		return nil
	}
	return m.convert(t, to)
}
