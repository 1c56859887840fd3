// Package asm assembles the operation list of one method into a Code
// attribute.
//
// Building only appends ops. Finish then marks the reachable ops, removes the
// dead ones, applies a few peephole optimizations, assigns local variable
// slots, runs a flow analysis computing the stack map frames, and finally
// encodes the ops, restarting whenever a branch turns out to need a wide
// offset.
package asm

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/classforge/classforge/internal/constpool"
	"github.com/classforge/classforge/internal/opcodes"
	"github.com/classforge/classforge/internal/typesys"
)

// DefaultMaxPasses is the default limit of encoding passes.
const DefaultMaxPasses = 16

// Config customizes the assembly of a method.
type Config struct {
	// Logger receives debug events. Defaults to zap.NewNop().
	Logger *zap.Logger
	// MaxPasses limits the encoding passes. Defaults to DefaultMaxPasses.
	MaxPasses int
}

// Method is the operation list of one method under construction. A Method
// is not safe for concurrent use.
type Method struct {
	pool   *constpool.Pool
	reg    *typesys.Registry
	owner  *typesys.Type
	name   string
	ret    *typesys.Type
	static bool
	ctor   bool

	logger    *zap.Logger
	maxPasses int

	ops        []op
	head, tail int
	// vars holds the parameters first, including the receiver.
	vars     []*Var
	nparams  int
	this     *Var
	labels   []*Label
	handlers []*handler
	finished bool

	slotted   []*Var
	maxLocals int
	maxStack  int
	assembler
}

// NewMethod starts the operation list of a method of owner. Instance methods
// get the receiver as their first variable, and constructors ("<init>")
// start with an uninitialized receiver.
func NewMethod(pool *constpool.Pool, reg *typesys.Registry, owner *typesys.Type,
	static bool, name string, ret *typesys.Type, params []*typesys.Type, cfg Config,
) *Method {
	m := &Method{
		pool:      pool,
		reg:       reg,
		owner:     owner,
		name:      name,
		ret:       ret,
		static:    static,
		ctor:      !static && name == "<init>",
		logger:    cfg.Logger,
		maxPasses: cfg.MaxPasses,
		head:      -1,
		tail:      -1,
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.maxPasses <= 0 {
		m.maxPasses = DefaultMaxPasses
	}
	if !static {
		m.this = m.newVar(owner, true)
		m.this.name = "this"
	}
	for _, p := range params {
		m.newVar(p, true)
	}
	m.nparams = len(m.vars)
	return m
}

func (m *Method) newVar(t *typesys.Type, param bool) *Var {
	v := &Var{m: m, index: len(m.vars), typ: t, param: param, slot: -1, firstStore: -1}
	m.vars = append(m.vars, v)
	return v
}

// Name returns the method name.
func (m *Method) Name() string {
	return m.name
}

// Return returns the declared return type.
func (m *Method) Return() *typesys.Type {
	return m.ret
}

// This returns the receiver, or nil for static methods.
func (m *Method) This() *Var {
	return m.this
}

// Param returns parameter i, not counting the receiver, or nil if i is out
// of range.
func (m *Method) Param(i int) *Var {
	if m.this != nil {
		i++
	}
	if i < 0 || i >= m.nparams || (m.this != nil && i == 0) {
		return nil
	}
	return m.vars[i]
}

// NumParams returns the number of parameters, not counting the receiver.
func (m *Method) NumParams() int {
	if m.this != nil {
		return m.nparams - 1
	}
	return m.nparams
}

// NewVar declares a local variable.
func (m *Method) NewVar(t *typesys.Type) *Var {
	return m.newVar(t, false)
}

// NewLabel returns an unpositioned label.
func (m *Method) NewLabel() *Label {
	l := &Label{m: m, op: -1, addr: -1}
	m.labels = append(m.labels, l)
	return l
}

func (m *Method) add(o op) int {
	o.next = -1
	i := len(m.ops)
	m.ops = append(m.ops, o)
	if m.tail < 0 {
		m.head = i
	} else {
		m.ops[m.tail].next = i
	}
	m.tail = i
	return i
}

func (m *Method) unlink(prev, i int) {
	next := m.ops[i].next
	if prev < 0 {
		m.head = next
	} else {
		m.ops[prev].next = next
	}
	if m.tail == i {
		m.tail = prev
	}
}

func (m *Method) check(v *Var, l *Label) error {
	switch {
	case m.finished:
		return ErrFinished
	case v != nil && v.m != m, l != nil && l.m != m:
		return ErrForeign
	}
	return nil
}

// Here positions l at the current end of the operation list.
func (m *Method) Here(l *Label) error {
	if err := m.check(nil, l); err != nil {
		return err
	}
	if l.op >= 0 {
		return ErrLabelPositioned
	}
	l.op = m.add(op{kind: opLabel, label: l})
	return nil
}

// Insn appends a single opcode which pops the given number of stack entries
// and pushes a value of type push, if not nil. Returns, athrow and the stack
// manipulation opcodes (pop, dup, swap and their variants) are understood
// by the flow analysis, so their stack effect arguments are ignored.
func (m *Method) Insn(code opcodes.Opcode, pop int, push *typesys.Type) {
	m.add(op{kind: opInsn, code: code, pop: pop, push: push})
}

// Push appends the push of a constant: an int32, int64, float32, float64,
// string, a *typesys.Type for a class literal, or nil.
func (m *Method) Push(v interface{}) error {
	if m.finished {
		return ErrFinished
	}
	o := op{kind: opPush, val: v}
	switch c := v.(type) {
	case nil:
		o.push = m.reg.Null
	case int32:
		o.push = m.reg.Int
		if c < math.MinInt16 || c > math.MaxInt16 {
			o.cp = m.pool.AddInt(c)
		}
	case int64:
		o.push = m.reg.Long
		if c != 0 && c != 1 {
			o.cp = m.pool.AddLong(c)
		}
	case float32:
		o.push = m.reg.Float
		if b := math.Float32bits(c); b != 0 && c != 1 && c != 2 {
			o.cp = m.pool.AddFloat(c)
		}
	case float64:
		o.push = m.reg.Double
		if b := math.Float64bits(c); b != 0 && c != 1 {
			o.cp = m.pool.AddDouble(c)
		}
	case string:
		o.push = m.reg.String
		o.cp = m.pool.AddString(c)
	case *typesys.Type:
		o.push = m.reg.Class
		o.cp = m.pool.AddClass(c.InternalName())
	default:
		return fmt.Errorf("unsupported constant %T", v)
	}
	m.add(o)
	return nil
}

// Load appends the push of a variable.
func (m *Method) Load(v *Var) error {
	if err := m.check(v, nil); err != nil {
		return err
	}
	m.add(op{kind: opLoad, v: v, push: v.typ})
	return nil
}

// Store appends popping a value into a variable.
func (m *Method) Store(v *Var) error {
	if err := m.check(v, nil); err != nil {
		return err
	}
	m.add(op{kind: opStore, v: v, pop: 1})
	return nil
}

// Inc appends an increment of an int variable by a constant which fits in
// 16 bits.
func (m *Method) Inc(v *Var, amount int) error {
	if err := m.check(v, nil); err != nil {
		return err
	}
	if amount < math.MinInt16 || amount > math.MaxInt16 {
		return fmt.Errorf("increment %d out of range", amount)
	}
	m.add(op{kind: opInc, v: v, n: amount})
	return nil
}

// Branch appends a goto or a conditional branch to target.
func (m *Method) Branch(code opcodes.Opcode, target *Label) error {
	if err := m.check(nil, target); err != nil {
		return err
	}
	o := op{kind: opBranch, code: code, label: target}
	switch {
	case code == opcodes.GOTO:
	case code >= opcodes.IF_ICMPEQ && code <= opcodes.IF_ACMPNE:
		o.pop = 2
	case opcodes.IsConditional(code):
		o.pop = 1
	default:
		return fmt.Errorf("%s is not a branch", opcodes.Name(code))
	}
	m.add(o)
	return nil
}

// Switch appends a tableswitch or lookupswitch on the int at the top of the
// stack, whichever is smaller.
func (m *Method) Switch(keys []int32, targets []*Label, dflt *Label) error {
	if err := m.check(nil, dflt); err != nil {
		return err
	}
	if len(keys) != len(targets) {
		return fmt.Errorf("%d switch keys with %d targets", len(keys), len(targets))
	}
	for _, l := range targets {
		if err := m.check(nil, l); err != nil {
			return err
		}
	}

	sw := &switchTable{
		keys:    append([]int32(nil), keys...),
		targets: append([]*Label(nil), targets...),
	}
	sort.Sort(sw)
	for i := 1; i < len(sw.keys); i++ {
		if sw.keys[i] == sw.keys[i-1] {
			return fmt.Errorf("%w: %d", ErrDuplicateCase, sw.keys[i])
		}
	}
	if n := int64(len(sw.keys)); n > 0 {
		span := int64(sw.keys[n-1]) - int64(sw.keys[0]) + 1
		sw.table = 12+4*span <= 8+8*n
	}

	code := opcodes.LOOKUPSWITCH
	if sw.table {
		code = opcodes.TABLESWITCH
	}
	m.add(op{kind: opSwitch, code: code, pop: 1, label: dflt, sw: sw})
	return nil
}

func (sw *switchTable) Len() int           { return len(sw.keys) }
func (sw *switchTable) Less(i, j int) bool { return sw.keys[i] < sw.keys[j] }
func (sw *switchTable) Swap(i, j int) {
	sw.keys[i], sw.keys[j] = sw.keys[j], sw.keys[i]
	sw.targets[i], sw.targets[j] = sw.targets[j], sw.targets[i]
}

// Ref appends an opcode with a u2 constant pool operand, such as a field
// access, an invoke, new, checkcast or anewarray.
func (m *Method) Ref(code opcodes.Opcode, cp, pop int, push *typesys.Type) {
	m.add(op{kind: opRef, code: code, cp: cp, pop: pop, push: push})
}

// InvokeInit appends the invokespecial of a constructor. pop counts the
// receiver, which becomes initialized.
func (m *Method) InvokeInit(cp, pop int) {
	m.add(op{kind: opRef, code: opcodes.INVOKESPECIAL, flag: flagInit, cp: cp, pop: pop})
}

// InvokeInterface appends an invokeinterface. slots is the size of the
// arguments in slots, including the receiver.
func (m *Method) InvokeInterface(cp, pop, slots int, push *typesys.Type) {
	m.add(op{kind: opInvokeInterface, code: opcodes.INVOKEINTERFACE, cp: cp, pop: pop, n: slots, push: push})
}

// InvokeDynamic appends an invokedynamic of a call site constant.
func (m *Method) InvokeDynamic(cp, pop int, push *typesys.Type) {
	m.add(op{kind: opInvokeDynamic, code: opcodes.INVOKEDYNAMIC, cp: cp, pop: pop, push: push})
}

// NewArray appends the creation of a one-dimensional primitive array of the
// given type.
func (m *Method) NewArray(array *typesys.Type) error {
	atype, ok := arrayTypes[array.Elem().Kind()]
	if !ok || array.Dims() != 1 {
		return fmt.Errorf("%s is not a primitive array", array)
	}
	m.add(op{kind: opNewArray, code: opcodes.NEWARRAY, n: atype, pop: 1, push: array})
	return nil
}

var arrayTypes = map[typesys.Kind]int{
	typesys.KindBoolean: 4,
	typesys.KindChar:    5,
	typesys.KindFloat:   6,
	typesys.KindDouble:  7,
	typesys.KindByte:    8,
	typesys.KindShort:   9,
	typesys.KindInt:     10,
	typesys.KindLong:    11,
}

// MultiANewArray appends the creation of a multi-dimensional array, popping
// one length per dimension.
func (m *Method) MultiANewArray(array *typesys.Type, dims int) {
	cp := m.pool.AddClass(array.InternalName())
	m.add(op{kind: opMultiANewArray, code: opcodes.MULTIANEWARRAY, cp: cp, n: dims, pop: dims, push: array})
}

// LineNum starts a new source line at the next op.
func (m *Method) LineNum(line int) {
	m.add(op{kind: opLineNum, line: line})
}

// Catch registers an exception handler for the code between start and end,
// entered at target. Without types, every exception is caught. The handler
// entry sees the most specific common superclass of all the types caught
// there.
func (m *Method) Catch(start, end, target *Label, types ...*typesys.Type) error {
	for _, l := range []*Label{start, end, target} {
		if err := m.check(nil, l); err != nil {
			return err
		}
	}

	all := types
	if len(all) == 0 {
		all = []*typesys.Type{m.reg.Throwable}
	}
	if target.catchType != nil {
		all = append([]*typesys.Type{target.catchType}, all...)
	}
	target.catchType = typesys.CommonCatchType(all)

	if len(types) == 0 {
		m.handlers = append(m.handlers, &handler{start: start, end: end, target: target})
		return nil
	}
	for _, t := range types {
		m.handlers = append(m.handlers, &handler{
			start: start, end: end, target: target,
			catch: t, cp: m.pool.AddClass(t.InternalName()),
		})
	}
	return nil
}
