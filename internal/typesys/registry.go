package typesys

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	cmap "github.com/orcaman/concurrent-map"
)

// DefaultMemoSize is the default number of method resolutions remembered per
// reference type.
const DefaultMemoSize = 64

// Registry interns the types of one generation context. Reference types are
// keyed by binary name (arrays by descriptor) in a sharded concurrent map,
// so independent builders may look up and declare types concurrently.
// Dropping the Registry releases every type it interned.
type Registry struct {
	types    cmap.ConcurrentMap
	memoSize int

	prims [KindDouble + 1]*Type
	boxes [KindDouble + 1]*Type

	Void, Boolean, Byte, Char, Short, Int, Float, Long, Double *Type

	// Null is the type of the null constant.
	Null *Type

	Object, String, Number, Class, Cloneable, Serializable, CharSequence, Comparable        *Type
	Throwable, Exception, RuntimeException, Error                                           *Type
	MethodHandle, VarHandle, MethodType, MethodHandlesLookup, CallSite, StringConcatFactory *Type
}

// NewRegistry returns a registry with the primitive types and the java.lang
// types needed for boxing, exceptions and string concatenation.
func NewRegistry() *Registry {
	return NewRegistryWithMemo(DefaultMemoSize)
}

// NewRegistryWithMemo is like NewRegistry, but sets the number of method
// resolutions remembered per reference type.
func NewRegistryWithMemo(memoSize int) *Registry {
	if memoSize <= 0 {
		memoSize = DefaultMemoSize
	}
	r := &Registry{types: cmap.New(), memoSize: memoSize}

	for k := KindVoid; k <= KindDouble; k++ {
		r.prims[k] = &Type{reg: r, kind: k, name: kindNames[k], desc: string(kindDescriptors[k]), declared: true}
	}
	r.Void, r.Boolean, r.Byte, r.Char = r.prims[KindVoid], r.prims[KindBoolean], r.prims[KindByte], r.prims[KindChar]
	r.Short, r.Int, r.Float = r.prims[KindShort], r.prims[KindInt], r.prims[KindFloat]
	r.Long, r.Double = r.prims[KindLong], r.prims[KindDouble]
	r.Null = &Type{reg: r, kind: KindNull, name: "null", desc: "Ljava/lang/Object;", declared: true}

	r.bootstrap()
	return r
}

// Primitive returns the primitive type of the given kind, or nil.
func (r *Registry) Primitive(k Kind) *Type {
	if k.IsPrimitive() {
		return r.prims[k]
	}
	return nil
}

// Lookup returns the type with the given name. Accepted forms are primitive
// names ("int"), binary names ("java.lang.String"), internal names
// ("java/lang/String"), array names ("int[][]"), descriptors ("[I",
// "Ljava/lang/Object;"), and simple names of bootstrapped java.lang types
// ("String").
//
// Class types which haven't been declared are created on demand, extending
// java.lang.Object.
func (r *Registry) Lookup(name string) (*Type, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: empty", ErrInvalidTypeName)
	case strings.HasSuffix(name, "[]"):
		elem, err := r.Lookup(name[:len(name)-2])
		if err != nil {
			return nil, err
		}
		if elem.kind == KindVoid {
			return nil, fmt.Errorf("%w: %s", ErrInvalidTypeName, name)
		}
		return r.arrayOf(elem), nil
	case name[0] == '[':
		t, rest, err := r.parseDescriptor(name)
		if err == nil && rest != "" {
			err = fmt.Errorf("%w: %s", ErrInvalidTypeName, name)
		}
		return t, err
	case name[0] == 'L' && name[len(name)-1] == ';':
		return r.classNamed(name[1 : len(name)-1])
	}
	if k := kindOfName(name); k != 0 {
		return r.prims[k], nil
	}
	if !strings.ContainsAny(name, "./") {
		if v, ok := r.types.Get("java.lang." + name); ok {
			return v.(*Type), nil
		}
	}
	return r.classNamed(name)
}

// MustLookup is like Lookup, but panics on an invalid name.
func (r *Registry) MustLookup(name string) *Type {
	t, err := r.Lookup(name)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseMethodDescriptor splits a method descriptor such as "(I[J)V" into its
// return and parameter types.
func (r *Registry) ParseMethodDescriptor(desc string) (ret *Type, params []*Type, err error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidTypeName, desc)
	}
	rest := desc[1:]
	for !strings.HasPrefix(rest, ")") {
		var p *Type
		if p, rest, err = r.parseDescriptor(rest); err != nil {
			return nil, nil, err
		}
		params = append(params, p)
	}
	if ret, rest, err = r.parseDescriptor(rest[1:]); err != nil {
		return nil, nil, err
	} else if rest != "" {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidTypeName, desc)
	}
	return
}

func (r *Registry) parseDescriptor(desc string) (*Type, string, error) {
	if desc == "" {
		return nil, "", fmt.Errorf("%w: truncated descriptor", ErrInvalidTypeName)
	}
	switch c := desc[0]; c {
	case '[':
		elem, rest, err := r.parseDescriptor(desc[1:])
		if err != nil {
			return nil, "", err
		}
		if elem.kind == KindVoid {
			return nil, "", fmt.Errorf("%w: %s", ErrInvalidTypeName, desc)
		}
		return r.arrayOf(elem), rest, nil
	case 'L':
		end := strings.IndexByte(desc, ';')
		if end < 0 {
			return nil, "", fmt.Errorf("%w: %s", ErrInvalidTypeName, desc)
		}
		t, err := r.classNamed(desc[1:end])
		return t, desc[end+1:], err
	default:
		if k := kindOfDescriptor(c); k != 0 {
			return r.prims[k], desc[1:], nil
		}
		return nil, "", fmt.Errorf("%w: %s", ErrInvalidTypeName, desc)
	}
}

func (r *Registry) classNamed(name string) (*Type, error) {
	name = strings.ReplaceAll(name, "/", ".")
	if !validClassName(name) || kindOfName(name) != 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTypeName, name)
	}
	if v, ok := r.types.Get(name); ok {
		return v.(*Type), nil
	}
	t := &Type{
		reg:  r,
		kind: KindObject,
		name: name,
		desc: "L" + strings.ReplaceAll(name, ".", "/") + ";",
	}
	if name != "java.lang.Object" {
		t.super = r.Object
	}
	if !r.types.SetIfAbsent(name, t) {
		v, _ := r.types.Get(name)
		return v.(*Type), nil
	}
	return t, nil
}

func validClassName(name string) bool {
	if name == "" {
		return false
	}
	for _, seg := range strings.Split(name, ".") {
		if seg == "" {
			return false
		}
		for _, c := range seg {
			switch c {
			case ';', '[', '/', '<', '>', ' ', '\t', '\n':
				return false
			}
		}
	}
	return true
}

func (r *Registry) arrayOf(elem *Type) *Type {
	desc := "[" + elem.desc
	if v, ok := r.types.Get(desc); ok {
		return v.(*Type)
	}
	t := &Type{
		reg:      r,
		kind:     KindObject,
		name:     elem.name + "[]",
		desc:     desc,
		elem:     elem,
		dims:     elem.dims + 1,
		declared: true,
	}
	if !r.types.SetIfAbsent(desc, t) {
		v, _ := r.types.Get(desc)
		return v.(*Type)
	}
	return t
}

// Decl declares the hierarchy of a class or interface.
type Decl struct {
	Name string
	// Super defaults to java.lang.Object, and is ignored for interfaces.
	Super      *Type
	Interfaces []*Type
	Interface  bool
}

// Define declares the hierarchy of a class type. Declaring a type again with
// the same hierarchy returns the existing type, and declaring it with a
// different one fails with ErrConflictingType.
func (r *Registry) Define(d Decl) (*Type, error) {
	t, err := r.classNamed(d.Name)
	if err != nil {
		return nil, err
	}
	super := d.Super
	if super == nil || d.Interface {
		super = r.Object
	}
	if t == r.Object {
		super = nil
	}
	if super != nil && (!super.IsObject() || super.IsArray() || super.IsNull()) {
		return nil, fmt.Errorf("%w: %s cannot extend %s", ErrConflictingType, d.Name, super.Name())
	}

	t.mu.Lock()
	if t.declared {
		same := t.super == super && t.isInterface == d.Interface && len(t.ifaces) == len(d.Interfaces)
		for i := 0; same && i < len(t.ifaces); i++ {
			same = t.ifaces[i] == d.Interfaces[i]
		}
		t.mu.Unlock()
		if !same {
			return nil, fmt.Errorf("%w: %s", ErrConflictingType, d.Name)
		}
		return t, nil
	}
	t.declared = true
	t.super = super
	t.isInterface = d.Interface
	t.ifaces = append([]*Type(nil), d.Interfaces...)
	t.mu.Unlock()
	t.touch()
	return t, nil
}

func (t *Type) memoCache() *lru.Cache {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.memo == nil {
		// Only fails for a non-positive size, which the registry prevents.
		t.memo, _ = lru.New(t.reg.memoSize)
	}
	return t.memo
}
