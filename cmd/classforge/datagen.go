package main

import (
	"fmt"

	"github.com/classforge/classforge"
)

type dataField struct {
	name   string
	getter string
	typ    *classforge.Type
}

// dataGen builds the members of a data class: an all-args constructor,
// getters, toString, hashCode and equals over the instance fields.
type dataGen struct {
	cm     *classforge.ClassMaker
	simple string
	fields []dataField
}

// dataClass generates one class of a manifest in its own Context.
func dataClass(cfg *classforge.Config, m *Manifest, decl ClassDecl) ([]byte, error) {
	ctx := classforge.NewContext(cfg)
	if decl.Super != "" {
		sup, err := ctx.Type(decl.Super)
		if err != nil {
			return nil, err
		}
		// The constructor calls super(), which an undeclared class is
		// assumed to have.
		if !sup.Declared() {
			if _, err = ctx.DefineType(classforge.Decl{Name: decl.Super}, "public <init>()"); err != nil {
				return nil, err
			}
		}
	}

	cm, err := ctx.NewClass(m.className(decl), decl.Super)
	if err != nil {
		return nil, err
	}
	cm.Public().Final()
	for _, i := range decl.Interfaces {
		if err = cm.Implement(i); err != nil {
			return nil, err
		}
	}

	g := &dataGen{cm: cm, simple: simpleName(cm.Name())}
	for _, f := range decl.Fields {
		fm, err := cm.AddField(f.Type, fieldName(f.Name))
		if err != nil {
			return nil, err
		}
		fm.Private().Final()
		g.fields = append(g.fields, dataField{name: fm.Name(), getter: getterName(f.Name, fm.Type().Name()), typ: fm.Type()})
	}
	for _, k := range decl.Constants {
		fm, err := cm.AddField(k.Type, constantName(k.Name))
		if err != nil {
			return nil, err
		}
		if err = fm.Public().Static().Final().InitExact(k.Value); err != nil {
			return nil, err
		}
	}

	for _, step := range []func() error{g.constructor, g.getters, g.toString, g.hashCode, g.equals} {
		if err = step(); err != nil {
			return nil, err
		}
	}
	return cm.Finish()
}

func simpleName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}

func (g *dataGen) constructor() error {
	params := make([]interface{}, len(g.fields))
	for i, f := range g.fields {
		params[i] = f.typ
	}
	mm, err := g.cm.AddConstructor(params...)
	if err != nil {
		return err
	}
	mm.Public()
	if err = mm.InvokeSuperConstructor(); err != nil {
		return err
	}
	for i, f := range g.fields {
		fld, err := mm.Field(f.name)
		if err != nil {
			return err
		}
		if err = fld.Set(mm.Param(i)); err != nil {
			return err
		}
	}
	return mm.ReturnVoid()
}

func (g *dataGen) getters() error {
	for _, f := range g.fields {
		mm, err := g.cm.AddMethod(f.typ, f.getter)
		if err != nil {
			return err
		}
		mm.Public()
		v, err := g.get(mm, f)
		if err != nil {
			return err
		}
		if err = mm.Return(v); err != nil {
			return err
		}
	}
	return nil
}

func (g *dataGen) get(mm *classforge.MethodMaker, f dataField) (*classforge.Variable, error) {
	fld, err := mm.Field(f.name)
	if err != nil {
		return nil, err
	}
	return fld.Get()
}

// toString returns "Point{x=1, y=2}".
func (g *dataGen) toString() error {
	mm, err := g.cm.AddMethod("String", "toString")
	if err != nil {
		return err
	}
	mm.Public()
	parts := []interface{}{g.simple + "{"}
	for i, f := range g.fields {
		sep := ", "
		if i == 0 {
			sep = ""
		}
		v, err := g.get(mm, f)
		if err != nil {
			return err
		}
		parts = append(parts, sep+f.name+"=", v)
	}
	s, err := mm.Concat(append(parts, "}")...)
	if err != nil {
		return err
	}
	return mm.Return(s)
}

// hashCode returns Objects.hash over the fields.
func (g *dataGen) hashCode() error {
	mm, err := g.cm.AddMethod("int", "hashCode")
	if err != nil {
		return err
	}
	mm.Public()
	values := make([]interface{}, len(g.fields))
	for i, f := range g.fields {
		if values[i], err = g.get(mm, f); err != nil {
			return err
		}
	}
	h, err := mm.InvokeStatic("java.util.Objects", "hash", values...)
	if err != nil {
		return err
	}
	return mm.Return(h)
}

// equals compares the fields of two instances of the same class: floats
// with Float.compare and Double.compare, references with Objects.equals and
// other primitives with ==.
func (g *dataGen) equals() error {
	mm, err := g.cm.AddMethod("boolean", "equals", "Object")
	if err != nil {
		return err
	}
	mm.Public()
	this, o := mm.This(), mm.Param(0)
	same, differ := mm.Label(), mm.Label()

	if err = this.IfEq(o, same); err != nil {
		return err
	}
	is, err := o.InstanceOf(g.cm)
	if err != nil {
		return err
	}
	if err = is.IfFalse(differ); err != nil {
		return err
	}
	other, err := o.Cast(g.cm)
	if err != nil {
		return err
	}

	for _, f := range g.fields {
		a, err := g.get(mm, f)
		if err != nil {
			return err
		}
		of, err := other.Field(f.name)
		if err != nil {
			return err
		}
		b, err := of.Get()
		if err != nil {
			return err
		}
		if err = g.fieldEquals(mm, f, a, b, differ); err != nil {
			return fmt.Errorf("field %s: %w", f.name, err)
		}
	}

	if err = same.Here(); err != nil {
		return err
	}
	if err = mm.Return(true); err != nil {
		return err
	}
	if err = differ.Here(); err != nil {
		return err
	}
	return mm.Return(false)
}

func (g *dataGen) fieldEquals(mm *classforge.MethodMaker, f dataField, a, b *classforge.Variable, differ *classforge.Label) error {
	switch n := f.typ.Name(); {
	case n == "float" || n == "double":
		c, err := mm.InvokeStatic(f.typ.Box(), "compare", a, b)
		if err != nil {
			return err
		}
		return c.IfNe(0, differ)
	case f.typ.IsPrimitive():
		return a.IfNe(b, differ)
	default:
		eq, err := mm.InvokeStatic("java.util.Objects", "equals", a, b)
		if err != nil {
			return err
		}
		return eq.IfFalse(differ)
	}
}
