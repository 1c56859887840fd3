package typesys

import (
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
)

// Type is a primitive or reference type. Reference types are interned per
// Registry, so two lookups of the same name return the same *Type and types
// can be compared with ==.
//
// The hierarchy and members of a reference type can grow after creation,
// either because the caller declares an external type or because the type is
// the class being generated. Those parts are guarded by mu, so a Type is safe
// for concurrent use.
type Type struct {
	// generation is bumped whenever members or the hierarchy change, which
	// invalidates memoized method resolutions here and in subtypes. It is
	// first so that 64-bit atomic access is aligned on 32-bit platforms.
	generation uint64

	reg  *Registry
	kind Kind
	name string
	desc string
	elem *Type
	dims int

	mu          sync.RWMutex
	declared    bool
	isInterface bool
	super       *Type
	ifaces      []*Type
	fields      map[string]*Field
	methods     []*Method
	methodIndex map[string]*Method

	memo *lru.Cache
}

func (t *Type) Kind() Kind {
	return t.kind
}

// Name returns the binary name, such as "int", "java.lang.String" or
// "java.lang.String[]".
func (t *Type) Name() string {
	return t.name
}

// Descriptor returns the field descriptor, such as "I" or "[Ljava/lang/String;".
func (t *Type) Descriptor() string {
	return t.desc
}

// InternalName returns the name used by class constant pool entries: the
// slash-separated name for classes and the descriptor for arrays.
func (t *Type) InternalName() string {
	if t.elem != nil {
		return t.desc
	}
	return strings.ReplaceAll(t.name, ".", "/")
}

func (t *Type) String() string {
	return t.name
}

func (t *Type) IsPrimitive() bool {
	return t.kind.IsPrimitive()
}

// IsObject returns true for reference types, including arrays and null.
func (t *Type) IsObject() bool {
	return t.kind >= KindObject
}

func (t *Type) IsNull() bool {
	return t.kind == KindNull
}

func (t *Type) IsArray() bool {
	return t.elem != nil
}

// Elem returns the element type of an array, or nil.
func (t *Type) Elem() *Type {
	return t.elem
}

// Root returns the innermost element type of an array, or t itself.
func (t *Type) Root() *Type {
	for t.elem != nil {
		t = t.elem
	}
	return t
}

// Dims returns the number of array dimensions.
func (t *Type) Dims() int {
	return t.dims
}

// Slots returns the number of local variable slots a value of this type uses.
func (t *Type) Slots() int {
	switch t.kind {
	case KindVoid:
		return 0
	case KindLong, KindDouble:
		return 2
	}
	return 1
}

// ArrayOf returns the array type whose element is t.
func (t *Type) ArrayOf() *Type {
	return t.reg.arrayOf(t)
}

func (t *Type) IsInterface() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isInterface
}

// Declared returns true once the hierarchy of a class type is known.
func (t *Type) Declared() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.declared
}

// Super returns the superclass, or nil for primitives and java.lang.Object.
// Interfaces report java.lang.Object as their superclass.
func (t *Type) Super() *Type {
	if !t.IsObject() || t.IsNull() {
		return nil
	}
	if t.elem != nil {
		return t.reg.Object
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.super
}

// Interfaces returns the directly implemented interfaces.
func (t *Type) Interfaces() []*Type {
	if t.elem != nil {
		return []*Type{t.reg.Cloneable, t.reg.Serializable}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*Type(nil), t.ifaces...)
}

// AllInterfaces returns every interface implemented by t, its superclasses
// and their super-interfaces, without duplicates.
func (t *Type) AllInterfaces() []*Type {
	var all []*Type
	seen := map[*Type]bool{}
	var visit func(*Type)
	visit = func(x *Type) {
		for _, i := range x.Interfaces() {
			if !seen[i] {
				seen[i] = true
				all = append(all, i)
				visit(i)
			}
		}
	}
	for x := t; x != nil; x = x.Super() {
		visit(x)
	}
	return all
}

// SetInterface marks a generated type as an interface.
func (t *Type) SetInterface() {
	t.mu.Lock()
	t.isInterface = true
	t.mu.Unlock()
	t.touch()
}

// AddInterface adds an implemented interface to a generated type.
func (t *Type) AddInterface(iface *Type) {
	t.mu.Lock()
	for _, i := range t.ifaces {
		if i == iface {
			t.mu.Unlock()
			return
		}
	}
	t.ifaces = append(t.ifaces, iface)
	t.mu.Unlock()
	t.touch()
}

func (t *Type) touch() {
	atomic.AddUint64(&t.generation, 1)
}

// Box returns the boxed class of a primitive type, or nil.
func (t *Type) Box() *Type {
	if t.kind > KindVoid && t.kind <= KindDouble {
		return t.reg.boxes[t.kind]
	}
	return nil
}

// Unbox returns the primitive type of a boxed class, the primitive itself for
// primitive types, or nil.
func (t *Type) Unbox() *Type {
	if t.IsPrimitive() {
		return t
	}
	if t.kind == KindObject && t.elem == nil {
		for k, b := range t.reg.boxes {
			if b == t {
				return t.reg.prims[k]
			}
		}
	}
	return nil
}

// IsAssignableFrom returns true if a value of the other type can be assigned
// to this type without any conversion.
func (t *Type) IsAssignableFrom(other *Type) bool {
	if t == other {
		return true
	}
	if !t.IsObject() || !other.IsObject() || t.IsNull() {
		return false
	}
	if other.IsNull() || t == t.reg.Object {
		return true
	}
	if t.elem != nil {
		return other.elem != nil && t.elem.IsAssignableFrom(other.elem)
	}
	if s := other.Super(); s != nil && t.IsAssignableFrom(s) {
		return true
	}
	for _, i := range other.Interfaces() {
		if t.IsAssignableFrom(i) {
			return true
		}
	}
	return false
}

// depth returns the number of superclasses above t.
func (t *Type) depth() int {
	n := 0
	for s := t.Super(); s != nil; s = s.Super() {
		n++
	}
	return n
}

// hierarchyGeneration sums the generations of t and every type it inherits
// from. Each component only grows, so the sum changes whenever any of them
// does.
func (t *Type) hierarchyGeneration() uint64 {
	sum := atomic.LoadUint64(&t.generation)
	for s := t.Super(); s != nil; s = s.Super() {
		sum += atomic.LoadUint64(&s.generation)
	}
	for _, i := range t.AllInterfaces() {
		sum += atomic.LoadUint64(&i.generation)
	}
	return sum
}
