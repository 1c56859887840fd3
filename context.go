// Package classforge generates JVM class files.
//
// A Context owns the types known to a generation session. Classes are
// described through a ClassMaker, and each method body through a
// MethodMaker whose Variables carry the operations of the body:
//
//	ctx := classforge.NewContext(nil)
//	cm, _ := ctx.NewClass("org.example.Calc", "")
//	mm, _ := cm.Public().AddMethod("int", "add", "int", "int")
//	mm.Public().Static()
//	sum, _ := mm.Param(0).Add(mm.Param(1))
//	_ = mm.Return(sum)
//	b, _ := cm.Finish()
//
// Builders are not safe for concurrent use. Independent contexts may be used
// from different goroutines.
package classforge

import (
	"fmt"
	"sync"

	"github.com/classforge/classforge/internal/typesys"
)

// Type is a primitive, class, interface or array type known to a Context.
type Type = typesys.Type

// Decl declares an external class, which generated code refers to but which
// is not generated itself.
type Decl struct {
	Name string
	// Super defaults to java.lang.Object.
	Super      string
	Interfaces []string
	Interface  bool
}

// Context is a generation session: every type named while building classes
// is interned by the Context, and discarded with it.
type Context struct {
	cfg *Config
	reg *typesys.Registry

	mu      sync.Mutex
	classes map[*Type]struct{}
}

// NewContext returns a Context using the given config, or NewConfig() if
// nil.
func NewContext(cfg *Config) *Context {
	if cfg == nil {
		cfg = NewConfig()
	}
	return &Context{cfg: cfg, reg: typesys.NewRegistry(), classes: map[*Type]struct{}{}}
}

// Type returns the named type. Primitive names ("int"), binary names
// ("java.lang.String"), array names ("int[]"), descriptors ("[I") and simple
// java.lang names ("String") are accepted. Unknown class names are created
// on demand, extending java.lang.Object.
func (c *Context) Type(name string) (*Type, error) {
	return c.reg.Lookup(name)
}

// DefineType declares an external class and its methods, which are written
// like Java declarations, such as "public static int max(int, int)".
// Constructors are named <init> and have no return type.
func (c *Context) DefineType(d Decl, methods ...string) (*Type, error) {
	td := typesys.Decl{Name: d.Name, Interface: d.Interface}
	var err error
	if d.Super != "" {
		if td.Super, err = c.reg.Lookup(d.Super); err != nil {
			return nil, err
		}
	}
	for _, name := range d.Interfaces {
		i, err := c.reg.Lookup(name)
		if err != nil {
			return nil, err
		}
		td.Interfaces = append(td.Interfaces, i)
	}
	t, err := c.reg.Define(td)
	if err != nil {
		return nil, err
	}
	for _, sig := range methods {
		if err = c.reg.DefineSignature(t, sig); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
	}
	return t, nil
}

// NewClass starts a class extending super, or java.lang.Object if empty.
// Each class name can only be generated once per Context.
func (c *Context) NewClass(name, super string) (*ClassMaker, error) {
	sup := c.reg.Object
	if super != "" {
		var err error
		if sup, err = c.reg.Lookup(super); err != nil {
			return nil, err
		}
	}
	t, err := c.reg.Define(typesys.Decl{Name: name, Super: sup})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.classes[t]; ok {
		return nil, fmt.Errorf("%w: %s is already generated", typesys.ErrConflictingType, name)
	}
	c.classes[t] = struct{}{}
	return newClassMaker(c, t), nil
}

// typeOf resolves a type argument: a *Type, a *ClassMaker, or a type name.
func (c *Context) typeOf(v interface{}) (*Type, error) {
	switch t := v.(type) {
	case *Type:
		if t == nil {
			return nil, fmt.Errorf("%w: nil type", typesys.ErrInvalidTypeName)
		}
		return t, nil
	case *ClassMaker:
		return t.typ, nil
	case string:
		return c.reg.Lookup(t)
	}
	return nil, fmt.Errorf("%w: %T", typesys.ErrInvalidTypeName, v)
}

func (c *Context) typesOf(vs []interface{}) ([]*Type, error) {
	ret := make([]*Type, len(vs))
	for i, v := range vs {
		t, err := c.typeOf(v)
		if err != nil {
			return nil, err
		}
		ret[i] = t
	}
	return ret, nil
}
