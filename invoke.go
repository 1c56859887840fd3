package classforge

import (
	"fmt"

	"github.com/classforge/classforge/internal/opcodes"
	"github.com/classforge/classforge/internal/typesys"
)

// call describes an invocation before it is resolved.
type call struct {
	owner *Type
	// recv is the receiver, nil for static calls and for calls on this.
	recv    *Variable
	name    string
	args    []interface{}
	inherit int
	static  int
	// special selects invokespecial, for super and constructor calls.
	special bool
	ret     *Type
	params  []*Type
}

// invoke resolves and emits a call, returning the result in a new variable,
// or nil for void methods.
func (m *MethodMaker) invoke(c *call) (*Variable, error) {
	argTypes := make([]*Type, len(c.args))
	for i, a := range c.args {
		t, err := m.typeOfValue(a)
		if err != nil {
			return nil, err
		}
		argTypes[i] = t
	}

	method, err := c.owner.FindMethod(typesys.Query{
		Name: c.name, Args: argTypes, Inherit: c.inherit, Static: c.static, Return: c.ret, Params: c.params,
	})
	if err != nil {
		return nil, err
	}
	if c.name == "<init>" {
		if err = m.pushArgs(method, c.args, argTypes); err != nil {
			return nil, err
		}
		cp := m.c.pool.AddMethod(c.owner.InternalName(), "<init>", method.Descriptor())
		m.body.InvokeInit(cp, 1+len(method.Params()))
		return nil, nil
	}

	if !method.IsStatic() {
		switch {
		case c.recv != nil:
			err = m.push(c.recv, nil)
		case m.method.IsStatic():
			return nil, fmt.Errorf("%w: instance method %s from static context", ErrBadOperand, method)
		default:
			err = m.body.Load(m.body.This())
		}
		if err != nil {
			return nil, err
		}
	}
	if err = m.pushArgs(method, c.args, argTypes); err != nil {
		return nil, err
	}

	owner := method.Owner()
	if c.recv != nil && !method.IsStatic() {
		// Refer to the method through the static type of the receiver.
		owner = c.owner
	}
	pop := len(method.Params())
	ret := method.Return()
	iface := owner.IsInterface()
	var cp int
	if iface {
		cp = m.c.pool.AddInterfaceMethod(owner.InternalName(), method.Name(), method.Descriptor())
	} else {
		cp = m.c.pool.AddMethod(owner.InternalName(), method.Name(), method.Descriptor())
	}
	switch {
	case method.IsStatic():
		m.body.Ref(opcodes.INVOKESTATIC, cp, pop, ret)
	case c.special:
		m.body.Ref(opcodes.INVOKESPECIAL, cp, pop+1, ret)
	case iface:
		slots := 1
		for _, p := range method.Params() {
			slots += p.Slots()
		}
		m.body.InvokeInterface(cp, pop+1, slots, ret)
	default:
		m.body.Ref(opcodes.INVOKEVIRTUAL, cp, pop+1, ret)
	}

	if ret.Kind() == typesys.KindVoid {
		return nil, nil
	}
	return m.result(ret)
}

// pushArgs pushes the arguments converted to the parameter types. Varargs
// methods get the trailing arguments in a new array, unless a single
// trailing argument is already an array the parameter accepts.
func (m *MethodMaker) pushArgs(method *typesys.Method, args []interface{}, argTypes []*Type) error {
	params := method.Params()
	n := len(params)
	varargs := method.IsVarargs() && n > 0
	if varargs && len(args) == n && params[n-1].IsAssignableFrom(argTypes[n-1]) {
		varargs = false
	}
	if !varargs {
		for i, a := range args {
			if err := m.push(a, params[i]); err != nil {
				return err
			}
		}
		return nil
	}

	for i := 0; i < n-1; i++ {
		if err := m.push(args[i], params[i]); err != nil {
			return err
		}
	}
	array := params[n-1]
	rest := args[n-1:]
	if err := m.body.Push(int32(len(rest))); err != nil {
		return err
	}
	if err := m.newArray(array); err != nil {
		return err
	}
	elem := array.Elem()
	for i, a := range rest {
		m.body.Insn(opcodes.DUP, 0, nil)
		if err := m.body.Push(int32(i)); err != nil {
			return err
		}
		if err := m.push(a, elem); err != nil {
			return err
		}
		m.body.Insn(arrayOp(elem)+opcodes.IASTORE-opcodes.IALOAD, 3, nil)
	}
	return nil
}

// newArray emits the creation of a one-dimensional array, whose length is
// on the stack.
func (m *MethodMaker) newArray(array *Type) error {
	if array.Elem().IsPrimitive() {
		return m.body.NewArray(array)
	}
	m.body.Ref(opcodes.ANEWARRAY, m.c.pool.AddClass(array.Elem().InternalName()), 1, array)
	return nil
}

// Invoke calls a method of this class or its supertypes, static or not.
// Instance methods are invoked on this.
func (m *MethodMaker) Invoke(name string, args ...interface{}) (*Variable, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	static := typesys.StaticEither
	if m.method.IsStatic() {
		static = typesys.StaticOnly
	}
	return m.invoke(&call{owner: m.c.typ, name: name, args: args, static: static})
}

// InvokeStatic calls a static method of the given type.
func (m *MethodMaker) InvokeStatic(typ interface{}, name string, args ...interface{}) (*Variable, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	t, err := m.c.ctx.typeOf(typ)
	if err != nil {
		return nil, err
	}
	return m.invoke(&call{owner: t, name: name, args: args, static: typesys.StaticOnly})
}

// InvokeExact calls the method with exactly the given return and parameter
// types, which disambiguates overloads and selects the signature of
// polymorphic calls such as MethodHandle.invokeExact. target is a
// *Variable for instance calls, or a type for static calls.
func (m *MethodMaker) InvokeExact(target interface{}, ret interface{}, params []interface{}, name string, args ...interface{}) (*Variable, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	rt, err := m.c.ctx.typeOf(ret)
	if err != nil {
		return nil, err
	}
	pt, err := m.c.ctx.typesOf(params)
	if err != nil {
		return nil, err
	}
	if pt == nil {
		pt = []*Type{}
	}
	c := &call{name: name, args: args, ret: rt, params: pt}
	if v, ok := target.(*Variable); ok {
		if err = m.owns(v); err != nil {
			return nil, err
		}
		c.owner, c.recv, c.static = v.Type(), v, typesys.StaticNot
	} else {
		if c.owner, err = m.c.ctx.typeOf(target); err != nil {
			return nil, err
		}
		c.static = typesys.StaticOnly
	}
	if c.owner.IsPrimitive() {
		return nil, fmt.Errorf("%w: %s", ErrNotReference, c.owner)
	}
	return m.invoke(c)
}

// InvokeSuper calls the superclass implementation of an instance method.
func (m *MethodMaker) InvokeSuper(name string, args ...interface{}) (*Variable, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	return m.invoke(&call{
		owner: m.c.typ, name: name, args: args,
		inherit: typesys.InheritSuper, static: typesys.StaticNot, special: true,
	})
}

// InvokeSuperConstructor calls a superclass constructor on this.
func (m *MethodMaker) InvokeSuperConstructor(args ...interface{}) error {
	return m.invokeConstructor(m.c.typ.Super(), args)
}

// InvokeThisConstructor calls another constructor of this class on this.
func (m *MethodMaker) InvokeThisConstructor(args ...interface{}) error {
	return m.invokeConstructor(m.c.typ, args)
}

func (m *MethodMaker) invokeConstructor(owner *Type, args []interface{}) error {
	if err := m.begin(); err != nil {
		return err
	}
	if m.name != "<init>" {
		return fmt.Errorf("%w: %s is not a constructor", ErrBadOperand, m.name)
	}
	if err := m.body.Load(m.body.This()); err != nil {
		return err
	}
	_, err := m.invoke(&call{
		owner: owner, name: "<init>", args: args,
		inherit: typesys.InheritNone, static: typesys.StaticNot, special: true,
	})
	return err
}

// New constructs an object of the given type.
func (m *MethodMaker) New(typ interface{}, args ...interface{}) (*Variable, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	t, err := m.c.ctx.typeOf(typ)
	if err != nil {
		return nil, err
	}
	if t.IsPrimitive() || t.IsArray() || t.IsNull() {
		return nil, fmt.Errorf("%w: new %s", ErrNotReference, t)
	}
	m.body.Ref(opcodes.NEW, m.c.pool.AddClass(t.InternalName()), 0, t)
	m.body.Insn(opcodes.DUP, 0, nil)
	if _, err = m.invoke(&call{
		owner: t, name: "<init>", args: args,
		inherit: typesys.InheritNone, static: typesys.StaticNot, special: true,
	}); err != nil {
		return nil, err
	}
	return m.result(t)
}

// NewArray creates an array with the given dimension lengths. Fewer lengths
// than dimensions leave the inner arrays null.
func (m *MethodMaker) NewArray(typ interface{}, dims ...interface{}) (*Variable, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	t, err := m.c.ctx.typeOf(typ)
	if err != nil {
		return nil, err
	}
	if !t.IsArray() || len(dims) == 0 || len(dims) > t.Dims() {
		return nil, fmt.Errorf("%w: new %s with %d dimensions", ErrBadOperand, t, len(dims))
	}
	for _, d := range dims {
		if err = m.push(d, m.c.ctx.reg.Int); err != nil {
			return nil, err
		}
	}
	if len(dims) == 1 {
		err = m.newArray(t)
	} else {
		m.body.MultiANewArray(t, len(dims))
	}
	if err != nil {
		return nil, err
	}
	return m.result(t)
}

// Invoke calls a method on the variable.
func (v *Variable) Invoke(name string, args ...interface{}) (*Variable, error) {
	m := v.m
	if err := m.begin(); err != nil {
		return nil, err
	}
	t := v.Type()
	if t.IsPrimitive() || t.IsNull() {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotReference, t, name)
	}
	return m.invoke(&call{owner: t, recv: v, name: name, args: args, static: typesys.StaticNot})
}
