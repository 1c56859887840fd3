package classforge

import (
	"strconv"
	"strings"

	"github.com/classforge/classforge/internal/constpool"
	"github.com/classforge/classforge/internal/typesys"
)

// maxConcatSlots is the most argument slots a concatenation call site takes.
const maxConcatSlots = 200

const (
	recipeArg      = "\u0001"
	recipeConstant = "\u0002"
)

// Concat returns a String variable holding the values converted to strings
// and joined, like the Java + operator. Constant strings, integers and
// booleans are folded into the recipe of an invokedynamic call site.
func (m *MethodMaker) Concat(values ...interface{}) (*Variable, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	reg := m.c.ctx.reg
	var (
		recipe    strings.Builder
		args      []interface{}
		argTypes  []*Type
		constants []int
		slots     int
	)
	for i, v := range values {
		if _, ok := v.(*Variable); !ok {
			if s, ok := foldable(v); ok {
				if strings.ContainsAny(s, recipeArg+recipeConstant) {
					recipe.WriteString(recipeConstant)
					constants = append(constants, m.c.pool.AddString(s))
				} else {
					recipe.WriteString(s)
				}
				continue
			}
		}
		t, err := m.typeOfValue(v)
		if err != nil {
			return nil, err
		}
		if slots+t.Slots() > maxConcatSlots {
			// Concatenates the rest with the prefix built so far.
			prefix, err := m.concat(recipe.String(), args, argTypes, constants)
			if err != nil {
				return nil, err
			}
			return m.Concat(append([]interface{}{prefix}, values[i:]...)...)
		}
		recipe.WriteString(recipeArg)
		args = append(args, v)
		if t.IsNull() {
			t = reg.Object
		}
		argTypes = append(argTypes, t)
		slots += t.Slots()
	}
	return m.concat(recipe.String(), args, argTypes, constants)
}

func (m *MethodMaker) concat(recipe string, args []interface{}, argTypes []*Type, constants []int) (*Variable, error) {
	reg := m.c.ctx.reg
	if len(args) == 0 && len(constants) == 0 {
		if err := m.body.Push(recipe); err != nil {
			return nil, err
		}
		return m.result(reg.String)
	}

	for i, a := range args {
		if err := m.push(a, argTypes[i]); err != nil {
			return nil, err
		}
	}
	p := m.c.pool
	bsm := p.AddMethodHandle(constpool.RefInvokeStatic, p.AddMethod(
		reg.StringConcatFactory.InternalName(), "makeConcatWithConstants",
		typesys.MethodDescriptor(reg.CallSite, []*Type{
			reg.MethodHandlesLookup, reg.String, reg.MethodType, reg.String, reg.Object.ArrayOf(),
		})))
	bootstrap := p.AddBootstrap(bsm, append([]int{p.AddString(recipe)}, constants...)...)
	cp := p.AddInvokeDynamic(bootstrap, "concat", typesys.MethodDescriptor(reg.String, argTypes))
	m.body.InvokeDynamic(cp, len(args), reg.String)
	return m.result(reg.String)
}

// foldable returns the string form of constants which print the same in
// Java as in Go.
func foldable(v interface{}) (string, bool) {
	switch c := v.(type) {
	case string:
		return c, true
	case bool:
		return strconv.FormatBool(c), true
	case int:
		return strconv.Itoa(c), true
	case int32:
		return strconv.FormatInt(int64(c), 10), true
	case int64:
		return strconv.FormatInt(c, 10), true
	case nil:
		return "null", true
	}
	return "", false
}
