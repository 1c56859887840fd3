package classforge

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/classforge/classforge/internal/opcodes"
	"github.com/classforge/classforge/internal/testing/hammer"
	"github.com/classforge/classforge/internal/testing/jvmstub"
)

const calc = "org.example.Calc"

func newCalc(t *testing.T, cfg *Config) *ClassMaker {
	cm, err := NewContext(cfg).NewClass(calc, "")
	require.NoError(t, err)
	return cm.Public()
}

func staticMethod(t *testing.T, cm *ClassMaker, ret, name string, params ...interface{}) *MethodMaker {
	mm, err := cm.AddMethod(ret, name, params...)
	require.NoError(t, err)
	return mm.Public().Static()
}

func parse(t *testing.T, cm *ClassMaker) (*jvmstub.Class, []byte) {
	b, err := cm.Finish()
	require.NoError(t, err)
	c, err := jvmstub.Parse(b)
	require.NoError(t, err)
	return c, b
}

func code(t *testing.T, c *jvmstub.Class, name, desc string) *jvmstub.Code {
	m := c.Method(name, desc)
	require.NotNil(t, m, "%s%s", name, desc)
	ret, err := c.Code(m)
	require.NoError(t, err)
	return ret
}

func addMethod(t *testing.T, cm *ClassMaker) {
	mm := staticMethod(t, cm, "int", "add", "int", "int")
	sum, err := mm.Param(0).Add(mm.Param(1))
	require.NoError(t, err)
	require.NoError(t, mm.Return(sum))
}

func TestClassMaker_Finish_Add(t *testing.T) {
	cm := newCalc(t, nil)
	addMethod(t, cm)

	c, b := parse(t, cm)
	require.Equal(t, []byte{0xca, 0xfe, 0xba, 0xbe, 0, 0, 0, 55}, b[:8])
	require.Equal(t, "org/example/Calc", c.Name)
	require.Equal(t, "java/lang/Object", c.Super)

	// The temporary holding the sum is folded away.
	add := code(t, c, "add", "(II)I")
	require.Equal(t, []byte{
		opcodes.ILOAD_0, opcodes.ILOAD_0 + 1, opcodes.IADD, opcodes.IRETURN,
	}, add.Bytes)
	require.Nil(t, add.Attribute("StackMapTable"))

	vm := jvmstub.New()
	_, err := vm.Load(b)
	require.NoError(t, err)
	v, err := vm.Invoke("org/example/Calc", "add", "(II)I", 2, 3)
	require.NoError(t, err)
	require.Equal(t, int64(5), v)
}

func TestClassMaker_Finish_Run(t *testing.T) {
	cm := newCalc(t, nil)
	must := func(err error) { require.NoError(t, err) }
	addMethod(t, cm)

	mm := staticMethod(t, cm, "int", "max", "int", "int")
	a, b := mm.Param(0), mm.Param(1)
	ge := mm.Label()
	must(a.IfGe(b, ge))
	must(mm.Return(b))
	must(ge.Here())
	must(mm.Return(a))

	mm = staticMethod(t, cm, "int", "sum", "int")
	n := mm.Param(0)
	s, err := mm.Var("int")
	must(err)
	must(s.Set(0))
	i, err := mm.Var("int")
	must(err)
	must(i.Set(0))
	top, done := mm.Label(), mm.Label()
	must(top.Here())
	must(i.IfGe(n, done))
	next, err := s.Add(i)
	must(err)
	must(s.Set(next))
	must(i.Inc(1))
	must(mm.Goto(top))
	must(done.Here())
	must(mm.Return(s))

	mm = staticMethod(t, cm, "long", "widen", "int", "long")
	p, err := mm.Param(1).Mul(mm.Param(0))
	must(err)
	require.Equal(t, "long", p.Type().Name())
	must(mm.Return(p))

	mm = staticMethod(t, cm, "int", "twice", "int")
	r, err := mm.InvokeStatic(cm, "add", mm.Param(0), mm.Param(0))
	must(err)
	must(mm.Return(r))

	mm = staticMethod(t, cm, "int", "pick", "int")
	one, two, other := mm.Label(), mm.Label(), mm.Label()
	must(mm.Param(0).Switch(other, []int32{1, 2}, one, two))
	must(one.Here())
	must(mm.Return(10))
	must(two.Here())
	must(mm.Return(20))
	must(other.Here())
	must(mm.Return(-1))

	mm = staticMethod(t, cm, "int", "big")
	must(mm.Return(100000))

	mm = staticMethod(t, cm, "long", "huge")
	must(mm.Return(1 << 40))

	mm = staticMethod(t, cm, "int", "bits", "int")
	sh, err := mm.Param(0).Shl(3)
	must(err)
	or, err := sh.Or(1)
	must(err)
	neg, err := or.Neg()
	must(err)
	must(mm.Return(neg))

	mm = staticMethod(t, cm, "long", "count")
	l, err := mm.Var("long")
	must(err)
	must(l.Set(0))
	must(l.Inc(5))
	must(l.Inc(-2))
	must(mm.Return(l))

	mm = staticMethod(t, cm, "boolean", "isZero", "int")
	zero := mm.Label()
	must(mm.Param(0).IfEq(0, zero))
	must(mm.Return(false))
	must(zero.Here())
	must(mm.Return(true))

	mm = staticMethod(t, cm, "long", "cmp", "long", "long")
	lt := mm.Label()
	must(mm.Param(0).IfLt(mm.Param(1), lt))
	must(mm.Return(mm.Param(0)))
	must(lt.Here())
	must(mm.Return(mm.Param(1)))

	b1, err := cm.Finish()
	must(err)
	vm := jvmstub.New()
	_, err = vm.Load(b1)
	must(err)

	tests := []struct {
		name, desc string
		args       []int64
		expected   int64
	}{
		{name: "max", desc: "(II)I", args: []int64{3, 7}, expected: 7},
		{name: "max", desc: "(II)I", args: []int64{9, -7}, expected: 9},
		{name: "sum", desc: "(I)I", args: []int64{5}, expected: 10},
		{name: "sum", desc: "(I)I", args: []int64{0}, expected: 0},
		{name: "widen", desc: "(IJ)J", args: []int64{3, 1 << 40}, expected: 3 << 40},
		{name: "twice", desc: "(I)I", args: []int64{21}, expected: 42},
		{name: "pick", desc: "(I)I", args: []int64{1}, expected: 10},
		{name: "pick", desc: "(I)I", args: []int64{2}, expected: 20},
		{name: "pick", desc: "(I)I", args: []int64{3}, expected: -1},
		{name: "big", desc: "()I", expected: 100000},
		{name: "huge", desc: "()J", expected: 1 << 40},
		{name: "bits", desc: "(I)I", args: []int64{5}, expected: -41},
		{name: "count", desc: "()J", expected: 3},
		{name: "isZero", desc: "(I)Z", args: []int64{0}, expected: 1},
		{name: "isZero", desc: "(I)Z", args: []int64{4}, expected: 0},
		{name: "cmp", desc: "(JJ)J", args: []int64{1 << 33, 1 << 34}, expected: 1 << 34},
		{name: "cmp", desc: "(JJ)J", args: []int64{-1, -2}, expected: -1},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			v, err := vm.Invoke("org/example/Calc", tc.name, tc.desc, tc.args...)
			require.NoError(t, err)
			require.Equal(t, tc.expected, v)
		})
	}
}

func TestVariable_Arithmetic(t *testing.T) {
	cm := newCalc(t, nil)
	must := func(err error) {
		t.Helper()
		require.NoError(t, err)
	}
	unary := func(ret, name string, op func(v *Variable) (*Variable, error)) {
		mm := staticMethod(t, cm, ret, name, ret)
		r, err := op(mm.Param(0))
		must(err)
		require.Equal(t, ret, r.Type().Name())
		must(mm.Return(r))
	}

	unary("byte", "byteInc", func(v *Variable) (*Variable, error) { return v.Add(1) })
	unary("byte", "byteUShr", func(v *Variable) (*Variable, error) { return v.UShr(4) })
	unary("short", "shortNeg", func(v *Variable) (*Variable, error) { return v.Neg() })
	unary("char", "charInc", func(v *Variable) (*Variable, error) { return v.Add(1) })
	unary("int", "intFloat", func(v *Variable) (*Variable, error) { return v.Mul(float32(3)) })
	unary("long", "longShl", func(v *Variable) (*Variable, error) { return v.Shl(int64(33)) })

	mm := staticMethod(t, cm, "long", "longInt", "long", "int")
	r, err := mm.Param(0).Sub(mm.Param(1))
	must(err)
	must(mm.Return(r))

	mm = staticMethod(t, cm, "byte", "byteStep", "byte")
	b, err := mm.Var("byte")
	must(err)
	must(b.Set(mm.Param(0)))
	must(b.Inc(-1))
	must(mm.Return(b))

	c, b1 := parse(t, cm)
	require.Equal(t, []byte{
		opcodes.ILOAD_0, opcodes.ICONST_1, opcodes.IADD, opcodes.I2B, opcodes.IRETURN,
	}, code(t, c, "byteInc", "(B)B").Bytes)

	vm := jvmstub.New()
	_, err = vm.Load(b1)
	must(err)

	tests := []struct {
		name, desc string
		args       []int64
		expected   int64
	}{
		{name: "byteInc", desc: "(B)B", args: []int64{127}, expected: -128},
		{name: "byteInc", desc: "(B)B", args: []int64{-2}, expected: -1},
		// The sign bits of the byte are not shifted in.
		{name: "byteUShr", desc: "(B)B", args: []int64{-16}, expected: 15},
		{name: "shortNeg", desc: "(S)S", args: []int64{-32768}, expected: -32768},
		{name: "shortNeg", desc: "(S)S", args: []int64{7}, expected: -7},
		{name: "charInc", desc: "(C)C", args: []int64{65535}, expected: 0},
		{name: "intFloat", desc: "(I)I", args: []int64{14}, expected: 42},
		{name: "longShl", desc: "(J)J", args: []int64{1}, expected: 1 << 33},
		{name: "longInt", desc: "(JI)J", args: []int64{1 << 40, 1}, expected: 1<<40 - 1},
		{name: "byteStep", desc: "(B)B", args: []int64{-128}, expected: 127},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(fmt.Sprintf("%s(%v)", tc.name, tc.args), func(t *testing.T) {
			v, err := vm.Invoke("org/example/Calc", tc.name, tc.desc, tc.args...)
			require.NoError(t, err)
			require.Equal(t, tc.expected, v)
		})
	}
}

func TestVariable_Arithmetic_Errors(t *testing.T) {
	tests := []struct {
		name     string
		params   []interface{}
		op       func(mm *MethodMaker) error
		expected error
	}{
		{
			name:   "int plus long",
			params: []interface{}{"int", "long"},
			op: func(mm *MethodMaker) error {
				_, err := mm.Param(0).Add(mm.Param(1))
				return err
			},
			expected: ErrNoConversion,
		},
		{
			name:   "int plus float",
			params: []interface{}{"int", "float"},
			op: func(mm *MethodMaker) error {
				_, err := mm.Param(0).Add(mm.Param(1))
				return err
			},
			expected: ErrNoConversion,
		},
		{
			name:   "int plus fraction",
			params: []interface{}{"int"},
			op: func(mm *MethodMaker) error {
				_, err := mm.Param(0).Add(1.5)
				return err
			},
			expected: ErrNoConversion,
		},
		{
			name:   "byte plus out of range",
			params: []interface{}{"byte"},
			op: func(mm *MethodMaker) error {
				_, err := mm.Param(0).Add(300)
				return err
			},
			expected: ErrNoConversion,
		},
		{
			name:   "int compared with float",
			params: []interface{}{"int", "float"},
			op: func(mm *MethodMaker) error {
				return mm.Param(0).IfLt(mm.Param(1), mm.Label())
			},
			expected: ErrNoConversion,
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			mm := staticMethod(t, newCalc(t, nil), "void", "run", tc.params...)
			require.ErrorIs(t, tc.op(mm), tc.expected)
		})
	}
}

func TestVariable_Compare_Constant(t *testing.T) {
	cm := newCalc(t, nil)
	mm := staticMethod(t, cm, "boolean", "small", "float")
	lt := mm.Label()
	// An int constant is compared as a float when exact.
	require.NoError(t, mm.Param(0).IfLt(2, lt))
	require.NoError(t, mm.Return(false))
	require.NoError(t, lt.Here())
	require.NoError(t, mm.Return(true))

	c, _ := parse(t, cm)
	require.Equal(t, []byte{
		opcodes.FLOAD_0, opcodes.FCONST_2, opcodes.FCMPG, opcodes.IFLT, 0, 5,
		opcodes.ICONST_0, opcodes.IRETURN, opcodes.ICONST_1, opcodes.IRETURN,
	}, code(t, c, "small", "(F)Z").Bytes)
}

func TestClassMaker_Finish_WideBranch(t *testing.T) {
	build := func(cfg *Config) *ClassMaker {
		cm := newCalc(t, cfg)
		mm := staticMethod(t, cm, "int", "far", "int")
		x := mm.Param(0)
		end := mm.Label()
		require.NoError(t, x.IfEq(0, end))
		for i := 0; i < 11000; i++ {
			require.NoError(t, x.Inc(1))
		}
		require.NoError(t, end.Here())
		require.NoError(t, mm.Return(x))
		return cm
	}

	b, err := build(nil).Finish()
	require.NoError(t, err)
	vm := jvmstub.New()
	_, err = vm.Load(b)
	require.NoError(t, err)
	for _, arg := range []int64{0, 1} {
		v, err := vm.Invoke("org/example/Calc", "far", "(I)I", arg)
		require.NoError(t, err)
		if arg == 0 {
			require.Equal(t, int64(0), v)
		} else {
			require.Equal(t, int64(11001), v)
		}
	}

	_, err = build(NewConfig().WithMaxEncodePasses(1)).Finish()
	require.ErrorIs(t, err, ErrNotConverged)
}

func TestClassMaker_Finish_DeadCode(t *testing.T) {
	cm := newCalc(t, nil)
	mm := staticMethod(t, cm, "void", "run", "int")
	require.NoError(t, mm.ReturnVoid())
	require.NoError(t, mm.Nop())
	require.NoError(t, mm.Param(0).Inc(1))

	c, _ := parse(t, cm)
	run := code(t, c, "run", "(I)V")
	require.Equal(t, []byte{opcodes.RETURN}, run.Bytes)
	require.Nil(t, run.Attribute("StackMapTable"))
}

func TestClassMaker_Finish_Objects(t *testing.T) {
	ctx := NewContext(nil)
	cm, err := ctx.NewClass("org.example.Point", "")
	require.NoError(t, err)
	cm.Public().Final()

	x, err := cm.AddField("int", "x")
	require.NoError(t, err)
	x.Private().Final()
	origin, err := cm.AddField("int", "ORIGIN")
	require.NoError(t, err)
	origin.Public().Static().Final()
	require.NoError(t, origin.InitExact(100))

	ctor, err := cm.AddConstructor("int")
	require.NoError(t, err)
	ctor.Public()
	require.NoError(t, ctor.InvokeSuperConstructor())
	f, err := ctor.Field("x")
	require.NoError(t, err)
	require.NoError(t, f.Set(ctor.Param(0)))
	require.NoError(t, ctor.ReturnVoid())

	get, err := cm.AddMethod("int", "getX")
	require.NoError(t, err)
	get.Public()
	f, err = get.Field("x")
	require.NoError(t, err)
	v, err := f.Get()
	require.NoError(t, err)
	require.NoError(t, get.Return(v))

	mk, err := cm.AddMethod("Object", "make")
	require.NoError(t, err)
	mk.Public().Static()
	o, err := mk.New("java.lang.Object")
	require.NoError(t, err)
	require.NoError(t, mk.Return(o))

	c, _ := parse(t, cm)
	require.Equal(t, 0x0001|0x0010|0x0020, c.Flags)

	ctorCode := code(t, c, "<init>", "(I)V")
	require.Equal(t, 10, len(ctorCode.Bytes))
	require.Equal(t, opcodes.ALOAD_0, ctorCode.Bytes[0])
	require.Equal(t, opcodes.INVOKESPECIAL, ctorCode.Bytes[1])
	owner, name, desc := c.MemberRef(int(binary.BigEndian.Uint16(ctorCode.Bytes[2:])))
	require.Equal(t, []string{"java/lang/Object", "<init>", "()V"}, []string{owner, name, desc})
	require.Equal(t, []byte{opcodes.ALOAD_0, opcodes.ILOAD_0 + 1, opcodes.PUTFIELD}, ctorCode.Bytes[4:7])
	require.Equal(t, opcodes.RETURN, ctorCode.Bytes[9])

	getX := code(t, c, "getX", "()I")
	require.Equal(t, 5, len(getX.Bytes))
	require.Equal(t, opcodes.GETFIELD, getX.Bytes[1])
	owner, name, desc = c.MemberRef(int(binary.BigEndian.Uint16(getX.Bytes[2:])))
	require.Equal(t, []string{"org/example/Point", "x", "I"}, []string{owner, name, desc})

	newObj := code(t, c, "make", "()Ljava/lang/Object;")
	require.Equal(t, []byte{opcodes.NEW, opcodes.DUP, opcodes.INVOKESPECIAL, opcodes.ARETURN},
		[]byte{newObj.Bytes[0], newObj.Bytes[3], newObj.Bytes[4], newObj.Bytes[7]})
	require.Equal(t, 8, len(newObj.Bytes))

	cv := c.Field("ORIGIN").Attribute("ConstantValue")
	require.Len(t, cv, 2)
	require.Equal(t, uint64(100), c.Pool[binary.BigEndian.Uint16(cv)].Num)
	require.Nil(t, c.Field("x").Attribute("ConstantValue"))
}

func TestMethodMaker_Boxing(t *testing.T) {
	cm := newCalc(t, nil)
	mm := staticMethod(t, cm, "Object", "box", "int")
	require.NoError(t, mm.Return(mm.Param(0)))

	mm = staticMethod(t, cm, "long", "unbox", "Integer")
	require.NoError(t, mm.Return(mm.Param(0)))

	mm = staticMethod(t, cm, "int", "hash", "int", "int")
	h, err := mm.InvokeStatic("java.util.Objects", "hash", mm.Param(0), mm.Param(1))
	require.NoError(t, err)
	require.NoError(t, mm.Return(h))

	c, _ := parse(t, cm)

	box := code(t, c, "box", "(I)Ljava/lang/Object;")
	require.Equal(t, opcodes.INVOKESTATIC, box.Bytes[1])
	owner, name, desc := c.MemberRef(int(binary.BigEndian.Uint16(box.Bytes[2:])))
	require.Equal(t, []string{"java/lang/Integer", "valueOf", "(I)Ljava/lang/Integer;"}, []string{owner, name, desc})

	unbox := code(t, c, "unbox", "(Ljava/lang/Integer;)J")
	require.Equal(t, opcodes.INVOKEVIRTUAL, unbox.Bytes[1])
	owner, name, desc = c.MemberRef(int(binary.BigEndian.Uint16(unbox.Bytes[2:])))
	require.Equal(t, []string{"java/lang/Integer", "intValue", "()I"}, []string{owner, name, desc})
	require.Equal(t, []byte{opcodes.I2L, opcodes.LRETURN}, unbox.Bytes[4:])

	hash := code(t, c, "hash", "(II)I")
	require.Equal(t, []byte{opcodes.ICONST_0 + 2, opcodes.ANEWARRAY}, hash.Bytes[:2])
}

func TestMethodMaker_Concat(t *testing.T) {
	cm := newCalc(t, nil)
	mm := staticMethod(t, cm, "String", "greet", "String", "int")
	s, err := mm.Concat("hello ", mm.Param(0), " #", mm.Param(1))
	require.NoError(t, err)
	require.Equal(t, "java.lang.String", s.Type().Name())
	require.NoError(t, mm.Return(s))

	c, _ := parse(t, cm)
	require.NotNil(t, c.Attribute("BootstrapMethods"))

	var recipe, desc bool
	for _, k := range c.Pool {
		switch k.Str {
		case "hello \u0001 #\u0001":
			recipe = true
		case "(Ljava/lang/String;I)Ljava/lang/String;":
			desc = true
		}
	}
	require.True(t, recipe, "recipe")
	require.True(t, desc, "call site descriptor")

	// Constants alone fold into one string.
	cm = newCalc(t, nil)
	mm = staticMethod(t, cm, "String", "name")
	s, err = mm.Concat("a", 1, true, nil)
	require.NoError(t, err)
	require.NoError(t, mm.Return(s))
	c, _ = parse(t, cm)
	require.Nil(t, c.Attribute("BootstrapMethods"))
	found := false
	for _, k := range c.Pool {
		found = found || k.Str == "a1truenull"
	}
	require.True(t, found)
}

func TestMethodMaker_Catch(t *testing.T) {
	cm := newCalc(t, nil)
	mm := staticMethod(t, cm, "int", "safeDiv", "int", "int")
	start, end := mm.Label(), mm.Label()
	require.NoError(t, start.Here())
	q, err := mm.Param(0).Div(mm.Param(1))
	require.NoError(t, err)
	require.NoError(t, mm.Return(q))
	require.NoError(t, end.Here())
	ex, err := mm.Catch(start, end, "java.lang.ArithmeticException")
	require.NoError(t, err)
	require.Equal(t, "java.lang.ArithmeticException", ex.Type().Name())
	require.NoError(t, mm.Return(-1))

	c, _ := parse(t, cm)
	div := code(t, c, "safeDiv", "(II)I")
	require.Len(t, div.Handlers, 1)
	h := div.Handlers[0]
	require.Equal(t, 0, h.Start)
	require.Equal(t, "java/lang/ArithmeticException", c.ClassName(h.CatchType))
	require.NotNil(t, div.Attribute("StackMapTable"))
}

func TestClassMaker_Finish_Config(t *testing.T) {
	dir := t.TempDir()
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := NewConfig().
		WithVersion(61).
		WithSourceFile(true).
		WithDebugDir(dir).
		WithLogger(zap.New(core))

	cm := newCalc(t, cfg)
	addMethod(t, cm)
	c, b := parse(t, cm)
	require.Equal(t, []byte{0, 0, 0, 61}, b[4:8])

	sf := c.Attribute("SourceFile")
	require.Len(t, sf, 2)
	require.Equal(t, "Calc.java", c.UTF8(int(binary.BigEndian.Uint16(sf))))

	written, err := os.ReadFile(filepath.Join(dir, "org", "example", "Calc.class"))
	require.NoError(t, err)
	require.Equal(t, b, written)

	require.Equal(t, 1, logs.FilterMessage("finished class").Len())

	var buf bytes.Buffer
	cm = newCalc(t, nil)
	addMethod(t, cm)
	require.NoError(t, cm.FinishTo(&buf))
	require.Equal(t, []byte{0xca, 0xfe, 0xba, 0xbe}, buf.Bytes()[:4])
}

func TestClassMaker_Errors(t *testing.T) {
	ctx := NewContext(nil)
	_, err := ctx.DefineType(Decl{Name: "org.example.Util"},
		"public static int m(int, long)",
		"public static int m(long, int)")
	require.NoError(t, err)

	tests := []struct {
		name     string
		build    func(cm *ClassMaker) error
		expected error
	}{
		{
			name: "no conversion",
			build: func(cm *ClassMaker) error {
				mm, _ := cm.AddMethod("void", "run")
				v, _ := mm.Var("int")
				return v.Set("text")
			},
			expected: ErrNoConversion,
		},
		{
			name: "return null as int",
			build: func(cm *ClassMaker) error {
				mm, _ := cm.AddMethod("int", "run")
				return mm.Return(nil)
			},
			expected: ErrNoConversion,
		},
		{
			name: "return value from void",
			build: func(cm *ClassMaker) error {
				mm, _ := cm.AddMethod("void", "run")
				return mm.Return(1)
			},
			expected: ErrBadOperand,
		},
		{
			name: "duplicate method",
			build: func(cm *ClassMaker) error {
				_, _ = cm.AddMethod("void", "run", "int")
				_, err := cm.AddMethod("void", "run", "int")
				return err
			},
			expected: ErrConflictingMember,
		},
		{
			name: "duplicate field",
			build: func(cm *ClassMaker) error {
				_, _ = cm.AddField("int", "x")
				_, err := cm.AddField("long", "x")
				return err
			},
			expected: ErrConflictingMember,
		},
		{
			name: "foreign variable",
			build: func(cm *ClassMaker) error {
				a, _ := cm.AddMethod("int", "a", "int")
				b, _ := cm.AddMethod("int", "b", "int")
				return b.Return(a.Param(0))
			},
			expected: ErrForeign,
		},
		{
			name: "no matching method",
			build: func(cm *ClassMaker) error {
				mm, _ := cm.AddMethod("void", "run")
				_, err := mm.Invoke("missing", 1)
				return err
			},
			expected: ErrNoMatchingMethod,
		},
		{
			name: "ambiguous method",
			build: func(cm *ClassMaker) error {
				mm, _ := cm.AddMethod("void", "run")
				_, err := mm.InvokeStatic("org.example.Util", "m", 1, 1)
				return err
			},
			expected: ErrAmbiguousMethod,
		},
		{
			name: "instance field from static method",
			build: func(cm *ClassMaker) error {
				_, _ = cm.AddField("int", "x")
				mm, _ := cm.AddMethod("int", "run")
				mm.Static()
				f, err := mm.Field("x")
				if err != nil {
					return err
				}
				_, err = f.Get()
				return err
			},
			expected: ErrBadOperand,
		},
		{
			name: "shift a double",
			build: func(cm *ClassMaker) error {
				mm, _ := cm.AddMethod("void", "run", "double")
				_, err := mm.Param(0).Shl(1)
				return err
			},
			expected: ErrBadOperand,
		},
		{
			name: "abstract body",
			build: func(cm *ClassMaker) error {
				mm, _ := cm.AddMethod("int", "run")
				return mm.Abstract().Return(1)
			},
			expected: ErrBadOperand,
		},
		{
			name: "init of instance field",
			build: func(cm *ClassMaker) error {
				f, _ := cm.AddField("int", "x")
				return f.InitExact(1)
			},
			expected: ErrBadOperand,
		},
		{
			name: "inexact init",
			build: func(cm *ClassMaker) error {
				f, _ := cm.AddField("byte", "B")
				return f.Static().Final().InitExact(300)
			},
			expected: ErrNoConversion,
		},
		{
			name: "static after body",
			build: func(cm *ClassMaker) error {
				mm, _ := cm.AddMethod("void", "run", "int")
				_ = mm.Param(0)
				mm.Static()
				_, err := cm.Finish()
				return err
			},
			expected: ErrModifierOrder,
		},
		{
			name: "param out of range",
			build: func(cm *ClassMaker) error {
				mm, _ := cm.AddMethod("int", "run", "int")
				return mm.Return(mm.Param(1))
			},
			expected: ErrBadOperand,
		},
		{
			name: "unused param out of range",
			build: func(cm *ClassMaker) error {
				mm, _ := cm.AddMethod("void", "run")
				_ = mm.Param(-1)
				_, err := cm.Finish()
				return err
			},
			expected: ErrBadOperand,
		},
		{
			name: "this in static method",
			build: func(cm *ClassMaker) error {
				mm, _ := cm.AddMethod("int", "run")
				_, err := mm.Static().This().Invoke("hashCode")
				return err
			},
			expected: ErrBadOperand,
		},
		{
			name: "too many params",
			build: func(cm *ClassMaker) error {
				_, err := cm.AddMethod("void", "run", repeat("long", 128)...)
				return err
			},
			expected: ErrTooManyParams,
		},
		{
			name: "too many params with receiver",
			build: func(cm *ClassMaker) error {
				mm, err := cm.AddMethod("void", "run", repeat("int", 255)...)
				if err != nil {
					return err
				}
				if err = mm.ReturnVoid(); err != nil {
					return err
				}
				_, err = cm.Finish()
				return err
			},
			expected: ErrTooManyParams,
		},
		{
			name: "missing return",
			build: func(cm *ClassMaker) error {
				mm, _ := cm.AddMethod("int", "run")
				_ = mm.Nop()
				_, err := cm.Finish()
				return err
			},
			expected: ErrEndReached,
		},
		{
			name: "unpositioned label",
			build: func(cm *ClassMaker) error {
				mm, _ := cm.AddMethod("void", "run")
				_ = mm.Goto(mm.Label())
				_, err := cm.Finish()
				return err
			},
			expected: ErrUnpositionedLabel,
		},
		{
			name: "finished twice",
			build: func(cm *ClassMaker) error {
				_, _ = cm.Finish()
				_, err := cm.Finish()
				return err
			},
			expected: ErrFinished,
		},
		{
			name: "method after finish",
			build: func(cm *ClassMaker) error {
				_, _ = cm.Finish()
				_, err := cm.AddMethod("void", "late")
				return err
			},
			expected: ErrFinished,
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			cm, err := ctx.NewClass("org.example."+filepath.Base(t.Name()), "")
			require.NoError(t, err)
			require.ErrorIs(t, tc.build(cm), tc.expected)
		})
	}
}

func repeat(typ string, n int) []interface{} {
	ret := make([]interface{}, n)
	for i := range ret {
		ret[i] = typ
	}
	return ret
}

func TestMethodMaker_Param_OutOfRange(t *testing.T) {
	cm := newCalc(t, nil)
	mm := staticMethod(t, cm, "int", "first", "int")

	v := mm.Param(3)
	require.NotNil(t, v)
	require.Nil(t, v.Type())

	// The method keeps failing with the error of the bad index.
	err := mm.Return(0)
	require.ErrorIs(t, err, ErrBadOperand)
	require.Contains(t, err.Error(), "parameter 3 of first")
	_, err = cm.Finish()
	require.ErrorIs(t, err, ErrBadOperand)
}

func TestMethodMaker_MaxParams(t *testing.T) {
	cm := newCalc(t, nil)
	mm := staticMethod(t, cm, "int", "last", repeat("int", 255)...)
	require.NoError(t, mm.Return(mm.Param(254)))

	c, _ := parse(t, cm)
	last := code(t, c, "last", "("+strings.Repeat("I", 255)+")I")
	require.Equal(t, 255, last.MaxLocals)
	require.Equal(t, []byte{opcodes.ILOAD, 254, opcodes.IRETURN}, last.Bytes)
}

func TestContext_Concurrent(t *testing.T) {
	vm := jvmstub.New()
	hammer.New(t, 8, 10).Run(func(p, n int) {
		cm, err := NewContext(nil).NewClass(fmt.Sprintf("org.example.Calc%d_%d", p, n), "")
		require.NoError(t, err)
		addMethod(t, cm)
		b, err := cm.Finish()
		require.NoError(t, err)
		c, err := vm.Load(b)
		require.NoError(t, err)
		v, err := vm.Invoke(c.Name, "add", "(II)I", int64(p), int64(n))
		require.NoError(t, err)
		require.Equal(t, int64(p+n), v)
	})
}

func TestContext_NewClass_Conflict(t *testing.T) {
	ctx := NewContext(nil)
	_, err := ctx.NewClass(calc, "")
	require.NoError(t, err)
	_, err = ctx.NewClass(calc, "")
	require.ErrorIs(t, err, ErrConflictingType)

	cm, err := ctx.NewClass("org.example.Sub", calc)
	require.NoError(t, err)
	require.Equal(t, calc, cm.Type().Super().Name())
}

func TestMethodMaker_ModifiersBeforeBody(t *testing.T) {
	cm := newCalc(t, nil)
	mm, err := cm.AddMethod("int", "id", "int")
	require.NoError(t, err)
	// Static is set after AddMethod but before the body, so Param(0) is the
	// first argument rather than this.
	mm.Public().Static()
	require.NoError(t, mm.Return(mm.Param(0)))

	c, _ := parse(t, cm)
	m := c.Method("id", "(I)I")
	require.NotNil(t, m)
	require.Equal(t, 0x0001|0x0008, m.Flags)
	require.Equal(t, []byte{opcodes.ILOAD_0, opcodes.IRETURN}, code(t, c, "id", "(I)I").Bytes)
}
