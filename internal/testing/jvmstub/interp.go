package jvmstub

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	cmap "github.com/orcaman/concurrent-map"

	"github.com/classforge/classforge/internal/opcodes"
)

var (
	ErrDuplicateClass = errors.New("class already loaded")
	ErrNoSuchMethod   = errors.New("no such method")
	ErrUnsupported    = errors.New("unsupported")
	ErrStepLimit      = errors.New("step limit reached")
	ErrDivideByZero   = errors.New("division by zero")
)

// DefaultMaxSteps bounds the instructions one Invoke executes.
const DefaultMaxSteps = 10_000_000

const maxDepth = 256

// VM holds loaded classes and runs their static methods. Only int and long
// values are supported. A VM is safe for concurrent use.
type VM struct {
	// classes is the method area, keyed by internal class name.
	classes  cmap.ConcurrentMap
	MaxSteps int
}

func New() *VM {
	return &VM{classes: cmap.New(), MaxSteps: DefaultMaxSteps}
}

// Load parses a class file and adds it to the method area.
func (vm *VM) Load(b []byte) (*Class, error) {
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if !vm.classes.SetIfAbsent(c.Name, c) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateClass, c.Name)
	}
	return c, nil
}

// Class returns a loaded class by internal name.
func (vm *VM) Class(name string) (*Class, bool) {
	v, ok := vm.classes.Get(name)
	if !ok {
		return nil, false
	}
	return v.(*Class), true
}

// Invoke runs a static method. Arguments and the result are ints or longs,
// as the descriptor says. Void methods return zero.
func (vm *VM) Invoke(class, name, desc string, args ...int64) (int64, error) {
	params, ret, err := signature(desc)
	if err != nil {
		return 0, err
	}
	if len(args) != len(params) {
		return 0, fmt.Errorf("%s%s takes %d arguments, got %d", name, desc, len(params), len(args))
	}
	var slots []int64
	for i, p := range params {
		if p == 'J' {
			slots = append(slots, args[i], 0)
		} else {
			slots = append(slots, int64(int32(args[i])))
		}
	}
	steps := vm.MaxSteps
	if steps <= 0 {
		steps = DefaultMaxSteps
	}
	e := &exec{vm: vm, steps: steps}
	v, err := e.invoke(class, name, desc, slots, 0)
	if ret == 'I' {
		v = int64(int32(v))
	}
	return v, err
}

// signature returns the kinds of the parameters and the return kind of a
// method descriptor.
func signature(desc string) (params []byte, ret byte, err error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, 0, fmt.Errorf("%w descriptor %s", ErrUnsupported, desc)
	}
	i := 1
	for ; i < len(desc) && desc[i] != ')'; i++ {
		switch desc[i] {
		case 'I', 'Z', 'B', 'S', 'C':
			params = append(params, 'I')
		case 'J':
			params = append(params, 'J')
		default:
			return nil, 0, fmt.Errorf("%w parameter in %s", ErrUnsupported, desc)
		}
	}
	if i+2 != len(desc) {
		return nil, 0, fmt.Errorf("%w descriptor %s", ErrUnsupported, desc)
	}
	switch r := desc[i+1]; r {
	case 'I', 'Z', 'B', 'S', 'C':
		return params, 'I', nil
	case 'J', 'V':
		return params, r, nil
	}
	return nil, 0, fmt.Errorf("%w return in %s", ErrUnsupported, desc)
}

type exec struct {
	vm    *VM
	steps int
}

func (e *exec) invoke(class, name, desc string, args []int64, depth int) (int64, error) {
	if depth > maxDepth {
		return 0, fmt.Errorf("%w: call depth", ErrUnsupported)
	}
	c, ok := e.vm.Class(class)
	if !ok {
		return 0, fmt.Errorf("%w: class %s", ErrNoSuchMethod, class)
	}
	m := c.Method(name, desc)
	if m == nil {
		return 0, fmt.Errorf("%w: %s.%s%s", ErrNoSuchMethod, class, name, desc)
	}
	code, err := c.Code(m)
	if err != nil {
		return 0, err
	}
	locals := make([]int64, code.MaxLocals)
	if len(args) > len(locals) {
		return 0, fmt.Errorf("%s.%s%s: %d argument slots with max_locals %d", class, name, desc, len(args), code.MaxLocals)
	}
	copy(locals, args)
	f := &frame{class: c, code: code.Bytes, locals: locals}
	return e.run(f, depth)
}

// frame is an activation. Longs take two slots on the stack and in the
// locals, with the value in the first one.
type frame struct {
	class  *Class
	code   []byte
	locals []int64
	stack  []int64
	pc     int
}

func (f *frame) push(v int64)  { f.stack = append(f.stack, v) }
func (f *frame) pushI(v int32) { f.push(int64(v)) }
func (f *frame) pushL(v int64) { f.stack = append(f.stack, v, 0) }

func (f *frame) pop() int64 {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) popI() int32 { return int32(f.pop()) }

func (f *frame) popL() int64 {
	f.pop()
	return f.pop()
}

func (f *frame) u1(at int) int  { return int(f.code[at]) }
func (f *frame) s1(at int) int  { return int(int8(f.code[at])) }
func (f *frame) u2(at int) int  { return int(binary.BigEndian.Uint16(f.code[at:])) }
func (f *frame) s2(at int) int  { return int(int16(binary.BigEndian.Uint16(f.code[at:]))) }
func (f *frame) s4(at int) int  { return int(int32(binary.BigEndian.Uint32(f.code[at:]))) }
func (f *frame) store(slot int) { f.locals[slot] = f.pop() }

func (f *frame) storeL(slot int) { f.locals[slot] = f.popL() }

// branch moves to the target of the branch at pc when cond holds.
func (f *frame) branch(cond bool, size int) {
	if cond {
		f.pc += f.s2(f.pc + 1)
	} else {
		f.pc += size
	}
}

func (e *exec) run(f *frame, depth int) (ret int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s at pc %d: %v", f.class.Name, f.pc, r)
		}
	}()

	for {
		if e.steps--; e.steps < 0 {
			return 0, ErrStepLimit
		}
		op := f.code[f.pc]
		switch {
		case op == opcodes.NOP:
			f.pc++
		case op >= opcodes.ICONST_M1 && op <= opcodes.ICONST_5:
			f.pushI(int32(op) - int32(opcodes.ICONST_0))
			f.pc++
		case op == opcodes.LCONST_0 || op == opcodes.LCONST_1:
			f.pushL(int64(op - opcodes.LCONST_0))
			f.pc++
		case op == opcodes.BIPUSH:
			f.pushI(int32(f.s1(f.pc + 1)))
			f.pc += 2
		case op == opcodes.SIPUSH:
			f.pushI(int32(f.s2(f.pc + 1)))
			f.pc += 3
		case op == opcodes.LDC, op == opcodes.LDC_W, op == opcodes.LDC2_W:
			ix, size := f.u1(f.pc+1), 2
			if op != opcodes.LDC {
				ix, size = f.u2(f.pc+1), 3
			}
			switch c := f.class.Pool[ix]; c.Tag {
			case 3:
				f.pushI(int32(uint32(c.Num)))
			case 5:
				f.pushL(int64(c.Num))
			default:
				return 0, fmt.Errorf("%w: ldc of constant tag %d", ErrUnsupported, c.Tag)
			}
			f.pc += size
		case op == opcodes.ILOAD:
			f.push(f.locals[f.u1(f.pc+1)])
			f.pc += 2
		case op == opcodes.LLOAD:
			f.pushL(f.locals[f.u1(f.pc+1)])
			f.pc += 2
		case op >= opcodes.ILOAD_0 && op <= opcodes.ILOAD_0+3:
			f.push(f.locals[op-opcodes.ILOAD_0])
			f.pc++
		case op >= opcodes.ILOAD_0+4 && op <= opcodes.ILOAD_0+7:
			f.pushL(f.locals[op-opcodes.ILOAD_0-4])
			f.pc++
		case op == opcodes.ISTORE:
			f.store(f.u1(f.pc + 1))
			f.pc += 2
		case op == opcodes.LSTORE:
			f.storeL(f.u1(f.pc + 1))
			f.pc += 2
		case op >= opcodes.ISTORE_0 && op <= opcodes.ISTORE_0+3:
			f.store(int(op - opcodes.ISTORE_0))
			f.pc++
		case op >= opcodes.ISTORE_0+4 && op <= opcodes.ISTORE_0+7:
			f.storeL(int(op - opcodes.ISTORE_0 - 4))
			f.pc++
		case op == opcodes.WIDE:
			if err := f.wide(); err != nil {
				return 0, err
			}
		case op == opcodes.IINC:
			slot := f.u1(f.pc + 1)
			f.locals[slot] = int64(int32(f.locals[slot]) + int32(f.s1(f.pc+2)))
			f.pc += 3
		case op == opcodes.POP:
			f.pop()
			f.pc++
		case op == opcodes.POP2:
			f.pop()
			f.pop()
			f.pc++
		case op == opcodes.DUP:
			v := f.pop()
			f.push(v)
			f.push(v)
			f.pc++
		case op == opcodes.DUP2:
			b, a := f.pop(), f.pop()
			f.stack = append(f.stack, a, b, a, b)
			f.pc++
		case op == opcodes.SWAP:
			b, a := f.pop(), f.pop()
			f.stack = append(f.stack, b, a)
			f.pc++
		case op >= opcodes.IADD && op <= opcodes.LXOR:
			if err := f.arith(op); err != nil {
				return 0, err
			}
			f.pc++
		case op == opcodes.I2L:
			f.pushL(int64(f.popI()))
			f.pc++
		case op == opcodes.L2I:
			f.pushI(int32(f.popL()))
			f.pc++
		case op == opcodes.I2B:
			f.pushI(int32(int8(f.popI())))
			f.pc++
		case op == opcodes.I2C:
			f.pushI(int32(uint16(f.popI())))
			f.pc++
		case op == opcodes.I2S:
			f.pushI(int32(int16(f.popI())))
			f.pc++
		case op == opcodes.LCMP:
			b, a := f.popL(), f.popL()
			switch {
			case a < b:
				f.pushI(-1)
			case a > b:
				f.pushI(1)
			default:
				f.pushI(0)
			}
			f.pc++
		case op >= opcodes.IFEQ && op <= opcodes.IFLE:
			f.branch(compare(int64(f.popI()), 0, op-opcodes.IFEQ), 3)
		case op >= opcodes.IF_ICMPEQ && op <= opcodes.IF_ICMPLE:
			b, a := f.popI(), f.popI()
			f.branch(compare(int64(a), int64(b), op-opcodes.IF_ICMPEQ), 3)
		case op == opcodes.GOTO:
			f.branch(true, 3)
		case op == opcodes.GOTO_W:
			f.pc += f.s4(f.pc + 1)
		case op == opcodes.TABLESWITCH:
			key := int(f.popI())
			at := (f.pc + 4) &^ 3
			dflt, low, high := f.s4(at), f.s4(at+4), f.s4(at+8)
			if key < low || key > high {
				f.pc += dflt
			} else {
				f.pc += f.s4(at + 12 + 4*(key-low))
			}
		case op == opcodes.LOOKUPSWITCH:
			key := int(f.popI())
			at := (f.pc + 4) &^ 3
			target := f.s4(at)
			for i, n := 0, f.s4(at+4); i < n; i++ {
				if f.s4(at+8+8*i) == key {
					target = f.s4(at + 12 + 8*i)
					break
				}
			}
			f.pc += target
		case op == opcodes.INVOKESTATIC:
			if err := e.invokeStatic(f, depth); err != nil {
				return 0, err
			}
			f.pc += 3
		case op == opcodes.IRETURN:
			return int64(f.popI()), nil
		case op == opcodes.LRETURN:
			return f.popL(), nil
		case op == opcodes.RETURN:
			return 0, nil
		default:
			return 0, fmt.Errorf("%w opcode %s at pc %d", ErrUnsupported, opcodes.Name(op), f.pc)
		}
	}
}

func (f *frame) wide() error {
	op := f.code[f.pc+1]
	slot := f.u2(f.pc + 2)
	switch op {
	case opcodes.ILOAD:
		f.push(f.locals[slot])
	case opcodes.LLOAD:
		f.pushL(f.locals[slot])
	case opcodes.ISTORE:
		f.store(slot)
	case opcodes.LSTORE:
		f.storeL(slot)
	case opcodes.IINC:
		f.locals[slot] = int64(int32(f.locals[slot]) + int32(f.s2(f.pc+4)))
		f.pc += 6
		return nil
	default:
		return fmt.Errorf("%w wide %s", ErrUnsupported, opcodes.Name(op))
	}
	f.pc += 4
	return nil
}

// compare applies the condition at offset cond from ifeq: eq, ne, lt, ge,
// gt, le.
func compare(a, b int64, cond byte) bool {
	switch cond {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a >= b
	case 4:
		return a > b
	}
	return a <= b
}

func (f *frame) arith(op byte) error {
	switch op {
	case opcodes.INEG:
		f.pushI(-f.popI())
		return nil
	case opcodes.LNEG:
		f.pushL(-f.popL())
		return nil
	case opcodes.ISHL, opcodes.ISHR, opcodes.IUSHR:
		s, v := uint(f.popI()&31), f.popI()
		switch op {
		case opcodes.ISHL:
			f.pushI(v << s)
		case opcodes.ISHR:
			f.pushI(v >> s)
		default:
			f.pushI(int32(uint32(v) >> s))
		}
		return nil
	case opcodes.LSHL, opcodes.LSHR, opcodes.LUSHR:
		s, v := uint(f.popI()&63), f.popL()
		switch op {
		case opcodes.LSHL:
			f.pushL(v << s)
		case opcodes.LSHR:
			f.pushL(v >> s)
		default:
			f.pushL(int64(uint64(v) >> s))
		}
		return nil
	}

	switch op {
	case opcodes.IADD, opcodes.ISUB, opcodes.IMUL, opcodes.IDIV, opcodes.IREM,
		opcodes.IAND, opcodes.IOR, opcodes.IXOR:
		b, a := f.popI(), f.popI()
		var v int32
		switch op {
		case opcodes.IADD:
			v = a + b
		case opcodes.ISUB:
			v = a - b
		case opcodes.IMUL:
			v = a * b
		case opcodes.IDIV, opcodes.IREM:
			if b == 0 {
				return ErrDivideByZero
			}
			if op == opcodes.IDIV {
				v = a / b
			} else {
				v = a % b
			}
		case opcodes.IAND:
			v = a & b
		case opcodes.IOR:
			v = a | b
		default:
			v = a ^ b
		}
		f.pushI(v)
	case opcodes.LADD, opcodes.LSUB, opcodes.LMUL, opcodes.LDIV, opcodes.LREM,
		opcodes.LAND, opcodes.LOR, opcodes.LXOR:
		b, a := f.popL(), f.popL()
		var v int64
		switch op {
		case opcodes.LADD:
			v = a + b
		case opcodes.LSUB:
			v = a - b
		case opcodes.LMUL:
			v = a * b
		case opcodes.LDIV, opcodes.LREM:
			if b == 0 {
				return ErrDivideByZero
			}
			if op == opcodes.LDIV {
				v = a / b
			} else {
				v = a % b
			}
		case opcodes.LAND:
			v = a & b
		case opcodes.LOR:
			v = a | b
		default:
			v = a ^ b
		}
		f.pushL(v)
	default:
		return fmt.Errorf("%w opcode %s", ErrUnsupported, opcodes.Name(op))
	}
	return nil
}

func (e *exec) invokeStatic(f *frame, depth int) error {
	owner, name, desc := f.class.MemberRef(f.u2(f.pc + 1))
	params, ret, err := signature(desc)
	if err != nil {
		return err
	}
	n := 0
	for _, p := range params {
		n++
		if p == 'J' {
			n++
		}
	}
	args := append([]int64(nil), f.stack[len(f.stack)-n:]...)
	f.stack = f.stack[:len(f.stack)-n]

	v, err := e.invoke(owner, name, desc, args, depth+1)
	if err != nil {
		return err
	}
	switch ret {
	case 'I':
		f.pushI(int32(v))
	case 'J':
		f.pushL(v)
	}
	return nil
}
