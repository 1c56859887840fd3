package typesys

import (
	"fmt"
	"strings"
)

// Modifiers are the access flags of classes, fields and methods.
//
// See https://docs.oracle.com/javase/specs/jvms/se11/html/jvms-4.html#jvms-4.6-200-A.1
type Modifiers uint16

const (
	ModPublic       Modifiers = 0x0001
	ModPrivate      Modifiers = 0x0002
	ModProtected    Modifiers = 0x0004
	ModStatic       Modifiers = 0x0008
	ModFinal        Modifiers = 0x0010
	ModSynchronized Modifiers = 0x0020
	ModBridge       Modifiers = 0x0040
	ModVarargs      Modifiers = 0x0080
	ModNative       Modifiers = 0x0100
	ModInterface    Modifiers = 0x0200
	ModAbstract     Modifiers = 0x0400
	ModStrict       Modifiers = 0x0800
	ModSynthetic    Modifiers = 0x1000
	ModAnnotation   Modifiers = 0x2000
	ModEnum         Modifiers = 0x4000

	// ModSuper shares its bit with ModSynchronized and only applies to
	// classes.
	ModSuper = ModSynchronized
	// ModVolatile and ModTransient share bits with method flags and only
	// apply to fields.
	ModVolatile  = ModBridge
	ModTransient = ModVarargs
)

// Visibility clears the access bits of m and sets the given one.
func (m Modifiers) Visibility(v Modifiers) Modifiers {
	return m&^(ModPublic|ModPrivate|ModProtected) | v
}

// Field is a field declared by a reference type.
type Field struct {
	owner *Type
	Mods  Modifiers
	name  string
	typ   *Type
}

func (f *Field) Owner() *Type {
	return f.owner
}

func (f *Field) Name() string {
	return f.name
}

func (f *Field) Type() *Type {
	return f.typ
}

func (f *Field) IsStatic() bool {
	return f.Mods&ModStatic != 0
}

func (f *Field) String() string {
	var sb strings.Builder
	if f.IsStatic() {
		sb.WriteString("static ")
	}
	fmt.Fprintf(&sb, "%s %s.%s", f.typ.name, f.owner.name, f.name)
	return sb.String()
}

// Method is a method or constructor declared by a reference type.
// Constructors are named "<init>" and return void.
type Method struct {
	owner  *Type
	Mods   Modifiers
	name   string
	ret    *Type
	params []*Type
	desc   string
}

func newMethod(owner *Type, mods Modifiers, ret *Type, name string, params []*Type) *Method {
	return &Method{
		owner:  owner,
		Mods:   mods,
		name:   name,
		ret:    ret,
		params: append([]*Type(nil), params...),
		desc:   MethodDescriptor(ret, params),
	}
}

func (m *Method) Owner() *Type {
	return m.owner
}

func (m *Method) Name() string {
	return m.name
}

func (m *Method) Return() *Type {
	return m.ret
}

// Params returns the declared parameter types. The slice must not be
// modified.
func (m *Method) Params() []*Type {
	return m.params
}

// Descriptor returns the method descriptor, such as "(II)I".
func (m *Method) Descriptor() string {
	return m.desc
}

func (m *Method) IsStatic() bool {
	return m.Mods&ModStatic != 0
}

func (m *Method) IsVarargs() bool {
	return m.Mods&ModVarargs != 0
}

func (m *Method) IsBridge() bool {
	return m.Mods&ModBridge != 0
}

func (m *Method) IsConstructor() bool {
	return m.name == "<init>"
}

// String returns a Java-like signature used in diagnostics.
func (m *Method) String() string {
	var sb strings.Builder
	if m.IsStatic() {
		sb.WriteString("static ")
	}
	sb.WriteString(m.ret.name)
	sb.WriteByte(' ')
	sb.WriteString(m.owner.name)
	sb.WriteByte('.')
	sb.WriteString(m.name)
	sb.WriteByte('(')
	for i, p := range m.params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.name)
	}
	sb.WriteByte(')')
	return sb.String()
}

// MethodDescriptor returns the descriptor of a method with the given return
// and parameter types.
func MethodDescriptor(ret *Type, params []*Type) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range params {
		sb.WriteString(p.desc)
	}
	sb.WriteByte(')')
	sb.WriteString(ret.desc)
	return sb.String()
}

// DefineField declares a field. Declaring an identical field again returns
// the existing one; any other redeclaration fails with ErrConflictingMember.
func (t *Type) DefineField(mods Modifiers, typ *Type, name string) (*Field, error) {
	if err := t.checkMembers(); err != nil {
		return nil, err
	}
	f := &Field{owner: t, Mods: mods, name: name, typ: typ}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.fields[name]; ok {
		if existing.typ == typ && existing.IsStatic() == f.IsStatic() {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrConflictingMember, existing)
	}
	if t.fields == nil {
		t.fields = map[string]*Field{}
	}
	t.fields[name] = f
	return f, nil
}

// DeclaredField returns the field declared by t itself, or nil.
func (t *Type) DeclaredField(name string) *Field {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fields[name]
}

// FindField searches t, its superclasses, and then its interfaces for a
// field.
func (t *Type) FindField(name string) (*Field, error) {
	for x := t; x != nil; x = x.Super() {
		if f := x.DeclaredField(name); f != nil {
			return f, nil
		}
	}
	for _, i := range t.AllInterfaces() {
		if f := i.DeclaredField(name); f != nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrNoSuchField, t.name, name)
}

// DefineMethod declares a method. Declaring an identical method again returns
// the existing one; a method with the same name and descriptor but different
// static-ness fails with ErrConflictingMember. Defining a method invalidates
// memoized resolutions which could observe it.
func (t *Type) DefineMethod(mods Modifiers, ret *Type, name string, params ...*Type) (*Method, error) {
	return t.defineMethod(false, mods, ret, name, params)
}

// InventMethod returns a method descriptor which is not registered with t,
// used for signature polymorphic calls. If a method with the same signature
// is declared, it is returned instead.
func (t *Type) InventMethod(mods Modifiers, ret *Type, name string, params ...*Type) (*Method, error) {
	return t.defineMethod(true, mods, ret, name, params)
}

func (t *Type) defineMethod(invent bool, mods Modifiers, ret *Type, name string, params []*Type) (*Method, error) {
	if err := t.checkMembers(); err != nil {
		return nil, err
	}
	m := newMethod(t, mods, ret, name, params)
	key := name + m.desc

	t.mu.Lock()
	existing := t.methodIndex[key]
	switch {
	case existing != nil && (invent || existing.IsStatic() == m.IsStatic()):
		t.mu.Unlock()
		return existing, nil
	case existing != nil:
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrConflictingMember, existing)
	case invent:
		t.mu.Unlock()
		return m, nil
	}
	if t.methodIndex == nil {
		t.methodIndex = map[string]*Method{}
	}
	t.methodIndex[key] = m
	t.methods = append(t.methods, m)
	t.mu.Unlock()

	t.touch()
	return m, nil
}

func (t *Type) checkMembers() error {
	if t.kind != KindObject || t.elem != nil {
		return fmt.Errorf("%w: %s cannot declare members", ErrNotReference, t.name)
	}
	return nil
}

// DeclaredMethods returns the methods declared by t with the given name, in
// declaration order. An empty name returns all of them.
func (t *Type) DeclaredMethods(name string) []*Method {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var ret []*Method
	for _, m := range t.methods {
		if name == "" || m.name == name {
			ret = append(ret, m)
		}
	}
	return ret
}

// SetModifiers replaces the modifiers of a declared method. Resolutions
// memoized before the change are invalidated.
func (m *Method) SetModifiers(mods Modifiers) {
	m.owner.mu.Lock()
	m.Mods = mods
	m.owner.mu.Unlock()
	m.owner.touch()
}
