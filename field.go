package classforge

import (
	"fmt"

	"github.com/classforge/classforge/internal/opcodes"
	"github.com/classforge/classforge/internal/typesys"
)

// Field accesses a field from a method body. Static fields have no
// receiver.
type Field struct {
	m     *MethodMaker
	owner *Type
	recv  *Variable
	f     *typesys.Field
}

func (f *Field) Type() *Type {
	return f.f.Type()
}

func (f *Field) ref() int {
	return f.m.c.pool.AddField(f.owner.InternalName(), f.f.Name(), f.f.Type().Descriptor())
}

func (f *Field) pushReceiver() error {
	m := f.m
	switch {
	case f.f.IsStatic():
		return nil
	case f.recv != nil:
		return m.push(f.recv, nil)
	case m.method.IsStatic():
		return fmt.Errorf("%w: instance field %s from static context", ErrBadOperand, f.f)
	}
	return m.body.Load(m.body.This())
}

// Get returns the field value in a new variable.
func (f *Field) Get() (*Variable, error) {
	m := f.m
	if err := m.begin(); err != nil {
		return nil, err
	}
	if err := f.pushReceiver(); err != nil {
		return nil, err
	}
	if f.f.IsStatic() {
		m.body.Ref(opcodes.GETSTATIC, f.ref(), 0, f.Type())
	} else {
		m.body.Ref(opcodes.GETFIELD, f.ref(), 1, f.Type())
	}
	return m.result(f.Type())
}

// Set assigns the field a value, converted to the field type.
func (f *Field) Set(value interface{}) error {
	m := f.m
	if err := m.begin(); err != nil {
		return err
	}
	if err := f.pushReceiver(); err != nil {
		return err
	}
	if err := m.push(value, f.Type()); err != nil {
		return err
	}
	if f.f.IsStatic() {
		m.body.Ref(opcodes.PUTSTATIC, f.ref(), 1, nil)
	} else {
		m.body.Ref(opcodes.PUTFIELD, f.ref(), 2, nil)
	}
	return nil
}

// Field returns a field of this class or its supertypes, accessed on this
// unless it is static.
func (m *MethodMaker) Field(name string) (*Field, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	f, err := m.c.typ.FindField(name)
	if err != nil {
		return nil, err
	}
	return &Field{m: m, owner: m.c.typ, f: f}, nil
}

// StaticField returns a static field of the given type.
func (m *MethodMaker) StaticField(typ interface{}, name string) (*Field, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	t, err := m.c.ctx.typeOf(typ)
	if err != nil {
		return nil, err
	}
	if t.IsPrimitive() {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotReference, t, name)
	}
	f, err := t.FindField(name)
	if err != nil {
		return nil, err
	}
	if !f.IsStatic() {
		return nil, fmt.Errorf("%w: %s is not static", ErrNoSuchField, f)
	}
	return &Field{m: m, owner: t, f: f}, nil
}

// Field returns a field of the object held by the variable.
func (v *Variable) Field(name string) (*Field, error) {
	m := v.m
	if err := m.begin(); err != nil {
		return nil, err
	}
	t := v.Type()
	if t.IsPrimitive() || t.IsNull() {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotReference, t, name)
	}
	f, err := t.FindField(name)
	if err != nil {
		return nil, err
	}
	return &Field{m: m, owner: t, recv: v, f: f}, nil
}
