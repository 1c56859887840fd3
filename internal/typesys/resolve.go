package typesys

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Inheritance modes of a Query.
const (
	// InheritNone only considers methods declared by the type itself.
	InheritNone = -1
	// InheritAll considers superclasses and interfaces too.
	InheritAll = 0
	// InheritSuper starts the search at the superclass, as for super calls.
	InheritSuper = 1
)

// Static modes of a Query.
const (
	StaticNot    = -1
	StaticEither = 0
	StaticOnly   = 1
)

// Query describes a call site for method resolution.
type Query struct {
	Name string
	// Args are the types of the actual arguments.
	Args    []*Type
	Inherit int
	Static  int
	// Return, when set, keeps only candidates returning exactly this type.
	Return *Type
	// Params, when non-nil, keeps only candidates with exactly these
	// parameter types. An empty non-nil slice selects no-arg methods.
	Params []*Type
}

func (q *Query) key() string {
	var sb strings.Builder
	sb.WriteString(q.Name)
	sb.WriteByte('(')
	for _, a := range q.Args {
		sb.WriteString(a.desc)
	}
	sb.WriteByte(')')
	sb.WriteString(strconv.Itoa(q.Inherit))
	sb.WriteByte(',')
	sb.WriteString(strconv.Itoa(q.Static))
	if q.Return != nil {
		sb.WriteString(",r")
		sb.WriteString(q.Return.desc)
	}
	if q.Params != nil {
		sb.WriteString(",p")
		for _, p := range q.Params {
			sb.WriteString(p.desc)
		}
	}
	return sb.String()
}

type memoEntry struct {
	generation uint64
	methods    []*Method
}

// FindMethods returns the best candidates for the call described by q. More
// than one result means the call is ambiguous. Argument conversions may be
// needed to invoke any of the results.
//
// The result depends only on the declared methods and the query, not on the
// order in which methods were declared.
func (t *Type) FindMethods(q Query) []*Method {
	switch {
	case t.IsArray():
		return t.reg.Object.FindMethods(q)
	case t.kind != KindObject:
		return nil
	}

	key := q.key()
	gen := t.hierarchyGeneration()
	memo := t.memoCache()
	if v, ok := memo.Get(key); ok {
		if e := v.(*memoEntry); e.generation == gen {
			return e.methods
		}
	}
	methods := t.findMethods(&q)
	memo.Add(key, &memoEntry{generation: gen, methods: methods})
	return methods
}

func (t *Type) findMethods(q *Query) []*Method {
	if q.Name == "<clinit>" {
		return nil
	}

	start := t
	if q.Inherit > 0 {
		if start = t.Super(); start == nil {
			return nil
		}
	}

	c := candidates{seen: map[string]bool{}}
	c.addFrom(start, q)
	if q.Inherit >= 0 {
		for s := start.Super(); s != nil; s = s.Super() {
			c.addFrom(s, q)
		}
	}
	if q.Inherit == 0 {
		for _, i := range start.AllInterfaces() {
			c.addFrom(i, q)
		}
	}

	methods := c.methods
	if q.Return != nil {
		methods = filter(methods, func(m *Method) bool { return m.ret == q.Return })
	}
	if q.Params != nil {
		methods = filter(methods, func(m *Method) bool { return sameTypes(m.params, q.Params) })
	}

	if len(methods) > 1 {
		methods = best(q.Args, methods)
	}

	if len(methods) > 1 {
		nonBridges := filter(methods, func(m *Method) bool { return !m.IsBridge() })
		if len(nonBridges) > 0 {
			methods = nonBridges
		}
	}

	sort.Slice(methods, func(i, j int) bool {
		return methods[i].String() < methods[j].String()
	})
	return methods
}

type candidates struct {
	methods []*Method
	// seen holds the signatures already found. A method overridden in a
	// subtype is only reported once, for the most specific declaration.
	seen map[string]bool
}

func (c *candidates) addFrom(t *Type, q *Query) {
	for _, m := range t.DeclaredMethods(q.Name) {
		if m.IsStatic() {
			if q.Static < 0 {
				continue
			}
		} else if q.Static > 0 {
			continue
		}
		if !applicable(m, q.Args) {
			continue
		}
		sig := m.desc
		if m.IsStatic() {
			sig = "static " + sig
		}
		if c.seen[sig] {
			continue
		}
		c.seen[sig] = true
		c.methods = append(c.methods, m)
	}
}

// applicable returns true if the arguments can be converted to the
// parameters of m, expanding a trailing varargs array when needed.
func applicable(m *Method, args []*Type) bool {
	params := m.params
	if !m.IsVarargs() {
		if len(params) != len(args) {
			return false
		}
		for i, a := range args {
			if a.ConversionCost(params[i]) == MaxCost {
				return false
			}
		}
		return true
	}

	last := len(params) - 1
	if len(args) < last {
		return false
	}
	varType := params[last].elem
	for i, a := range args {
		actual := varType
		if i < last {
			actual = params[i]
		}
		if a.ConversionCost(actual) == MaxCost {
			// An array can be passed along as-is in the varargs position.
			if i == last && i == len(args)-1 && a.ConversionCost(params[last]) != MaxCost {
				continue
			}
			return false
		}
	}
	return true
}

// paramAt returns the parameter type which receives argument i.
func paramAt(m *Method, args []*Type, i int) *Type {
	last := len(m.params) - 1
	if !m.IsVarargs() || i < last {
		return m.params[i]
	}
	if i == last && len(args) == len(m.params) {
		if args[i].ConversionCost(m.params[last].elem) == MaxCost {
			return m.params[last]
		}
	}
	return m.params[last].elem
}

// best keeps the candidates which no other candidate is strictly better than.
func best(args []*Type, methods []*Method) []*Method {
	var ret []*Method
outer:
	for i, m := range methods {
		for j, other := range methods {
			if i != j && compareCandidates(args, other, m) < 0 {
				continue outer
			}
		}
		ret = append(ret, m)
	}
	return ret
}

// compareCandidates returns -1 if a is a better match for args than b, 1 if b
// is better, and 0 if neither is strictly better. For a to be better, every
// argument must bind to a at least as well as to b.
func compareCandidates(args []*Type, a, b *Method) int {
	result := 0
	for i, arg := range args {
		cmp := compareParam(arg, paramAt(a, args, i), paramAt(b, args, i))
		if result == 0 {
			result = cmp
		} else if cmp != 0 && cmp != result {
			return 0
		}
	}
	if result != 0 {
		return result
	}

	// Arguments bind equally well.
	if a.IsVarargs() != b.IsVarargs() {
		if b.IsVarargs() {
			return -1
		}
		return 1
	}
	if a.ret != b.ret {
		if b.ret.IsAssignableFrom(a.ret) {
			return -1
		}
		if a.ret.IsAssignableFrom(b.ret) {
			return 1
		}
	}
	if a.IsStatic() != b.IsStatic() {
		if a.IsStatic() {
			return -1
		}
		return 1
	}
	return 0
}

func compareParam(arg, a, b *Type) int {
	aCost, bCost := arg.ConversionCost(a), arg.ConversionCost(b)
	if aCost != bCost {
		if aCost < bCost {
			return -1
		}
		return 1
	}
	if aCost != 0 {
		return 0
	}

	switch {
	case arg == a && arg == b:
		return 0
	case arg == a:
		return -1
	case arg == b:
		return 1
	}

	// Both a and b are supertypes of the argument.
	if arg.IsArray() {
		switch {
		case a.IsArray() && b.IsArray():
			return compareParam(arg.Root(), a.Root(), b.Root())
		case a.IsArray():
			return -1
		case b.IsArray():
			return 1
		}
		return 0
	}

	// The deeper type is the more specialized one.
	aDepth, bDepth := a.depth(), b.depth()
	switch {
	case aDepth > bDepth:
		return -1
	case aDepth < bDepth:
		return 1
	}
	return 0
}

// FindMethod is like FindMethods, but requires exactly one result. For the
// signature polymorphic methods of MethodHandle and VarHandle, a method
// matching the actual (or specific) argument types is invented instead.
func (t *Type) FindMethod(q Query) (*Method, error) {
	methods := t.FindMethods(q)

	switch len(methods) {
	case 1:
		m := methods[0]
		if !m.IsStatic() && m.IsVarargs() && t.signaturePolymorphic(q.Name) {
			if params, ok := verifyTypes(q.Args, q.Params); ok {
				ret := q.Return
				if ret == nil {
					ret = m.ret
				}
				return t.InventMethod(0, ret, q.Name, params...)
			}
		}
		return m, nil
	case 0:
		if (q.Return != nil || q.Params != nil) && t.signaturePolymorphic(q.Name) {
			methods = t.FindMethods(Query{Name: q.Name, Args: q.Args, Inherit: InheritNone, Static: StaticNot})
			if len(methods) == 1 && methods[0].IsVarargs() {
				if params, ok := verifyTypes(q.Args, q.Params); ok {
					ret := q.Return
					if ret == nil {
						ret = methods[0].ret
					}
					return t.InventMethod(0, ret, q.Name, params...)
				}
			}
		}
		return nil, fmt.Errorf("%w for: %s.%s", ErrNoMatchingMethod, t.name, q.Name)
	}

	strs := make([]string, len(methods))
	for i, m := range methods {
		strs[i] = m.String()
	}
	return nil, fmt.Errorf("%w for: %s.%s. Remaining candidates: %s",
		ErrAmbiguousMethod, t.name, q.Name, strings.Join(strs, ", "))
}

func (t *Type) signaturePolymorphic(name string) bool {
	return (t == t.reg.MethodHandle && name != "invokeWithArguments") || t == t.reg.VarHandle
}

// verifyTypes returns the parameter types of an invented method: the
// specific types if each accepts its argument without conversion, else the
// argument types themselves.
func verifyTypes(args, specific []*Type) ([]*Type, bool) {
	if specific != nil && len(args) == len(specific) {
		for i, s := range specific {
			if !s.IsAssignableFrom(args[i]) {
				return nil, false
			}
		}
		return specific, true
	}
	return args, true
}

func filter(methods []*Method, keep func(*Method) bool) []*Method {
	var ret []*Method
	for _, m := range methods {
		if keep(m) {
			ret = append(ret, m)
		}
	}
	return ret
}

func sameTypes(a, b []*Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
