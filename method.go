package classforge

import (
	"fmt"

	"github.com/classforge/classforge/internal/asm"
	"github.com/classforge/classforge/internal/classfile"
	"github.com/classforge/classforge/internal/opcodes"
	"github.com/classforge/classforge/internal/typesys"
)

// MethodMaker builds one method or constructor. Modifier setters return the
// MethodMaker so they can be chained. Static and Abstract must be set before
// the body is started by any other call.
type MethodMaker struct {
	c      *ClassMaker
	name   string
	method *typesys.Method
	ret    *Type
	params []*Type

	body *asm.Method
	err  error
}

func (m *MethodMaker) Name() string {
	return m.name
}

// Descriptor returns the method descriptor, such as "(II)I".
func (m *MethodMaker) Descriptor() string {
	return m.method.Descriptor()
}

func (m *MethodMaker) setMods(mods typesys.Modifiers) *MethodMaker {
	m.method.SetModifiers(mods)
	return m
}

func (m *MethodMaker) Public() *MethodMaker {
	return m.setMods(m.method.Mods.Visibility(typesys.ModPublic))
}

func (m *MethodMaker) Private() *MethodMaker {
	return m.setMods(m.method.Mods.Visibility(typesys.ModPrivate))
}

func (m *MethodMaker) Protected() *MethodMaker {
	return m.setMods(m.method.Mods.Visibility(typesys.ModProtected))
}

// Static makes the method static. It fails the method with ErrModifierOrder
// when the body was already started.
func (m *MethodMaker) Static() *MethodMaker {
	if m.body != nil && m.err == nil && !m.method.IsStatic() {
		m.err = fmt.Errorf("%w: static", ErrModifierOrder)
	}
	return m.setMods(m.method.Mods | typesys.ModStatic)
}

func (m *MethodMaker) Final() *MethodMaker {
	return m.setMods(m.method.Mods | typesys.ModFinal)
}

func (m *MethodMaker) Synchronized() *MethodMaker {
	return m.setMods(m.method.Mods | typesys.ModSynchronized)
}

func (m *MethodMaker) Varargs() *MethodMaker {
	return m.setMods(m.method.Mods | typesys.ModVarargs)
}

func (m *MethodMaker) Synthetic() *MethodMaker {
	return m.setMods(m.method.Mods | typesys.ModSynthetic)
}

// Abstract makes the method abstract, so it has no body.
func (m *MethodMaker) Abstract() *MethodMaker {
	if m.body != nil && m.err == nil {
		m.err = fmt.Errorf("%w: abstract", ErrModifierOrder)
	}
	return m.setMods(m.method.Mods | typesys.ModAbstract)
}

func (m *MethodMaker) isAbstract() bool {
	return m.method.Mods&(typesys.ModAbstract|typesys.ModNative) != 0
}

// begin starts the body on first use, and returns the error every building
// call fails with.
func (m *MethodMaker) begin() error {
	switch {
	case m.err != nil:
		return m.err
	case m.c.finished:
		return ErrFinished
	case m.isAbstract():
		return fmt.Errorf("%w: abstract method %s has no body", ErrBadOperand, m.name)
	case m.body == nil:
		m.body = m.newBody()
	}
	return nil
}

func (m *MethodMaker) newBody() *asm.Method {
	cfg := m.c.ctx.cfg
	return asm.NewMethod(m.c.pool, m.c.ctx.reg, m.c.typ, m.method.IsStatic(), m.name, m.ret, m.params,
		asm.Config{Logger: cfg.log(), MaxPasses: cfg.maxPasses})
}

func (m *MethodMaker) finish() (classfile.Method, error) {
	cm := classfile.Method{Flags: int(m.method.Mods), Name: m.name, Desc: m.method.Descriptor()}
	if m.err != nil {
		return cm, m.err
	}
	if m.isAbstract() {
		return cm, nil
	}
	if m.body == nil {
		m.body = m.newBody()
	}
	code, err := m.body.Finish()
	if err != nil {
		return cm, err
	}
	cm.Code = code
	return cm, nil
}

func (m *MethodMaker) owns(v *Variable) error {
	if v == nil {
		return fmt.Errorf("%w: nil variable", ErrBadOperand)
	}
	if v.m != m {
		return asm.ErrForeign
	}
	if v.v == nil {
		return fmt.Errorf("%w: variable of a failed Param or This", ErrBadOperand)
	}
	return nil
}

func (m *MethodMaker) variable(v *asm.Var) *Variable {
	return &Variable{m: m, v: v}
}

// result stores the value on the stack into a new variable.
func (m *MethodMaker) result(t *Type) (*Variable, error) {
	v := m.body.NewVar(t)
	if err := m.body.Store(v); err != nil {
		return nil, err
	}
	return m.variable(v), nil
}

// Param returns parameter i, not counting the receiver. An index out of
// range fails the method with ErrBadOperand, and so does every later use
// of the returned variable.
func (m *MethodMaker) Param(i int) *Variable {
	if m.begin() != nil {
		return &Variable{m: m}
	}
	if p := m.body.Param(i); p != nil {
		return m.variable(p)
	}
	m.fail(fmt.Errorf("%w: parameter %d of %s, which has %d", ErrBadOperand, i, m.name, len(m.params)))
	return &Variable{m: m}
}

// This returns the receiver. Static methods have none, so This fails them
// with ErrBadOperand.
func (m *MethodMaker) This() *Variable {
	if m.begin() != nil {
		return &Variable{m: m}
	}
	if t := m.body.This(); t != nil {
		return m.variable(t)
	}
	m.fail(fmt.Errorf("%w: static method %s has no receiver", ErrBadOperand, m.name))
	return &Variable{m: m}
}

// fail records the first error of the method. Every later building call
// and Finish return it.
func (m *MethodMaker) fail(err error) {
	if m.err == nil {
		m.err = err
	}
}

// Var declares a local variable of the given type. It must be set before
// it is read.
func (m *MethodMaker) Var(typ interface{}) (*Variable, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	t, err := m.c.ctx.typeOf(typ)
	if err != nil {
		return nil, err
	}
	if t.Kind() == typesys.KindVoid {
		return nil, fmt.Errorf("%w: void variable", ErrBadOperand)
	}
	return m.variable(m.body.NewVar(t)), nil
}

// Label is a position in the method body, targeted by branches.
type Label struct {
	m *MethodMaker
	l *asm.Label
}

// Label returns a new unpositioned label.
func (m *MethodMaker) Label() *Label {
	if m.begin() != nil {
		return &Label{m: m}
	}
	return &Label{m: m, l: m.body.NewLabel()}
}

// Here positions the label at the current end of the body.
func (l *Label) Here() error {
	if err := l.m.begin(); err != nil {
		return err
	}
	return l.m.body.Here(l.l)
}

func (m *MethodMaker) label(l *Label) (*asm.Label, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: nil label", ErrBadOperand)
	}
	if l.m != m {
		return nil, asm.ErrForeign
	}
	return l.l, nil
}

// Goto branches to a label.
func (m *MethodMaker) Goto(l *Label) error {
	if err := m.begin(); err != nil {
		return err
	}
	al, err := m.label(l)
	if err != nil {
		return err
	}
	return m.body.Branch(opcodes.GOTO, al)
}

// Return returns a value, converted to the return type.
func (m *MethodMaker) Return(value interface{}) error {
	if err := m.begin(); err != nil {
		return err
	}
	if m.ret.Kind() == typesys.KindVoid {
		return fmt.Errorf("%w: %s returns void", ErrBadOperand, m.name)
	}
	if err := m.push(value, m.ret); err != nil {
		return err
	}
	m.body.Insn(opcodes.IRETURN+opcodes.Opcode(typeIndex(m.ret)), 1, nil)
	return nil
}

// ReturnVoid returns from a void method.
func (m *MethodMaker) ReturnVoid() error {
	if err := m.begin(); err != nil {
		return err
	}
	if m.ret.Kind() != typesys.KindVoid {
		return fmt.Errorf("%w: %s must return a value", ErrBadOperand, m.name)
	}
	m.body.Insn(opcodes.RETURN, 0, nil)
	return nil
}

// Throw throws an exception.
func (m *MethodMaker) Throw(value interface{}) error {
	if err := m.begin(); err != nil {
		return err
	}
	t, err := m.typeOfValue(value)
	if err != nil {
		return err
	}
	if !m.c.ctx.reg.Throwable.IsAssignableFrom(t) {
		return fmt.Errorf("%w: cannot throw %s", ErrNoConversion, t)
	}
	if err = m.push(value, nil); err != nil {
		return err
	}
	m.body.Insn(opcodes.ATHROW, 1, nil)
	return nil
}

// Catch handles exceptions of the given types, or of any type if none,
// thrown by the code between start and end. The handler starts here, and
// the returned variable holds the caught exception. Code before the handler
// must not fall through into it.
func (m *MethodMaker) Catch(start, end *Label, types ...interface{}) (*Variable, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	s, err := m.label(start)
	if err != nil {
		return nil, err
	}
	e, err := m.label(end)
	if err != nil {
		return nil, err
	}
	ts, err := m.c.ctx.typesOf(types)
	if err != nil {
		return nil, err
	}
	for _, t := range ts {
		if !m.c.ctx.reg.Throwable.IsAssignableFrom(t) {
			return nil, fmt.Errorf("%w: cannot catch %s", ErrNoConversion, t)
		}
	}

	target := m.body.NewLabel()
	if err = m.body.Catch(s, e, target, ts...); err != nil {
		return nil, err
	}
	if err = m.body.Here(target); err != nil {
		return nil, err
	}
	caught := m.c.ctx.reg.Throwable
	if len(ts) > 0 {
		caught = typesys.CommonCatchType(ts)
	}
	return m.result(caught)
}

// LineNum sets the source line of the code that follows.
func (m *MethodMaker) LineNum(line int) error {
	if err := m.begin(); err != nil {
		return err
	}
	if line < 0 || line > 65535 {
		return fmt.Errorf("%w: line %d", ErrBadOperand, line)
	}
	m.body.LineNum(line)
	return nil
}

// Nop appends a nop instruction.
func (m *MethodMaker) Nop() error {
	if err := m.begin(); err != nil {
		return err
	}
	m.body.Insn(opcodes.NOP, 0, nil)
	return nil
}
