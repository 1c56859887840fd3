package typesys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type methodDecl struct {
	mods   Modifiers
	ret    string
	name   string
	params []string
}

func defineAll(t *testing.T, r *Registry, typ *Type, decls []methodDecl) {
	for _, d := range decls {
		ret := r.MustLookup(d.ret)
		var params []*Type
		for _, p := range d.params {
			params = append(params, r.MustLookup(p))
		}
		_, err := typ.DefineMethod(d.mods, ret, d.name, params...)
		require.NoError(t, err)
	}
}

func types(r *Registry, names ...string) []*Type {
	ret := []*Type{}
	for _, n := range names {
		ret = append(ret, r.MustLookup(n))
	}
	return ret
}

func descriptors(methods []*Method) []string {
	var ret []string
	for _, m := range methods {
		ret = append(ret, m.Owner().Name()+"."+m.Name()+m.Descriptor())
	}
	return ret
}

var calcDecls = []methodDecl{
	{mods: ModPublic | ModStatic, ret: "int", name: "add", params: []string{"int", "int"}},
	{mods: ModPublic | ModStatic, ret: "long", name: "add", params: []string{"long", "long"}},
	{mods: ModPublic | ModStatic, ret: "double", name: "add", params: []string{"double", "double"}},
	{mods: ModPublic | ModStatic, ret: "String", name: "add", params: []string{"String", "Object"}},
	{mods: ModPublic | ModStatic, ret: "void", name: "m", params: []string{"int", "long"}},
	{mods: ModPublic | ModStatic, ret: "void", name: "m", params: []string{"long", "int"}},
	{mods: ModPublic | ModStatic, ret: "void", name: "pick", params: []string{"Object"}},
	{mods: ModPublic | ModStatic, ret: "void", name: "pick", params: []string{"String"}},
	{mods: ModPublic | ModStatic, ret: "void", name: "pick", params: []string{"Object[]"}},
	{mods: ModPublic | ModStatic, ret: "void", name: "pick", params: []string{"CharSequence[]"}},
	{mods: ModPublic | ModStatic, ret: "void", name: "seq", params: []string{"CharSequence"}},
	{mods: ModPublic | ModStatic, ret: "void", name: "seq", params: []string{"Comparable"}},
	{mods: ModPublic | ModStatic | ModVarargs, ret: "void", name: "va", params: []string{"int[]"}},
	{mods: ModPublic | ModStatic, ret: "void", name: "va", params: []string{"int", "int"}},
}

func calc(t *testing.T, reversed bool) (*Registry, *Type) {
	r := NewRegistry()
	typ, err := r.Define(Decl{Name: "org.example.Calc"})
	require.NoError(t, err)
	decls := append([]methodDecl(nil), calcDecls...)
	if reversed {
		for i, j := 0, len(decls)-1; i < j; i, j = i+1, j-1 {
			decls[i], decls[j] = decls[j], decls[i]
		}
	}
	defineAll(t, r, typ, decls)
	return r, typ
}

func TestType_FindMethods_Overloads(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		args     []string
		expected []string
	}{
		{name: "exact", method: "add", args: []string{"int", "int"}, expected: []string{"org.example.Calc.add(II)I"}},
		{name: "widening", method: "add", args: []string{"byte", "long"}, expected: []string{"org.example.Calc.add(JJ)J"}},
		{name: "widening to double", method: "add", args: []string{"int", "double"}, expected: []string{"org.example.Calc.add(DD)D"}},
		{name: "unboxing", method: "add", args: []string{"Integer", "Integer"}, expected: []string{"org.example.Calc.add(II)I"}},
		{name: "reference", method: "add", args: []string{"String", "String"}, expected: []string{"org.example.Calc.add(Ljava/lang/String;Ljava/lang/Object;)Ljava/lang/String;"}},
		{name: "none", method: "add", args: []string{"boolean", "int"}, expected: nil},
		{
			name: "ambiguous", method: "m", args: []string{"int", "int"},
			expected: []string{"org.example.Calc.m(IJ)V", "org.example.Calc.m(JI)V"},
		},
		{name: "exact type preferred", method: "pick", args: []string{"String"}, expected: []string{"org.example.Calc.pick(Ljava/lang/String;)V"}},
		{name: "array preferred for arrays", method: "pick", args: []string{"Integer[]"}, expected: []string{"org.example.Calc.pick([Ljava/lang/Object;)V"}},
		{name: "deeper array element", method: "pick", args: []string{"String[]"}, expected: []string{"org.example.Calc.pick([Ljava/lang/CharSequence;)V"}},
		{
			name: "unrelated interfaces", method: "seq", args: []string{"String"},
			expected: []string{"org.example.Calc.seq(Ljava/lang/CharSequence;)V", "org.example.Calc.seq(Ljava/lang/Comparable;)V"},
		},
		{name: "fixed arity preferred", method: "va", args: []string{"int", "int"}, expected: []string{"org.example.Calc.va(II)V"}},
		{name: "varargs expansion", method: "va", args: []string{"int", "short", "byte"}, expected: []string{"org.example.Calc.va([I)V"}},
		{name: "varargs empty", method: "va", args: nil, expected: []string{"org.example.Calc.va([I)V"}},
		{name: "varargs array", method: "va", args: []string{"int[]"}, expected: []string{"org.example.Calc.va([I)V"}},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			for _, reversed := range []bool{false, true} {
				r, typ := calc(t, reversed)
				methods := typ.FindMethods(Query{Name: tc.method, Args: types(r, tc.args...)})
				require.Equal(t, tc.expected, descriptors(methods), "reversed=%v", reversed)
			}
		})
	}
}

func TestType_FindMethod_Errors(t *testing.T) {
	r, typ := calc(t, false)

	_, err := typ.FindMethod(Query{Name: "nope"})
	require.ErrorIs(t, err, ErrNoMatchingMethod)
	require.EqualError(t, err, "no matching methods found for: org.example.Calc.nope")

	_, err = typ.FindMethod(Query{Name: "m", Args: types(r, "int", "int")})
	require.ErrorIs(t, err, ErrAmbiguousMethod)
	require.EqualError(t, err, "no best matching method found for: org.example.Calc.m. "+
		"Remaining candidates: static void org.example.Calc.m(int, long), static void org.example.Calc.m(long, int)")
}

func TestType_FindMethods_Filters(t *testing.T) {
	r, typ := calc(t, false)

	methods := typ.FindMethods(Query{Name: "add", Args: types(r, "int", "int"), Params: types(r, "long", "long")})
	require.Equal(t, []string{"org.example.Calc.add(JJ)J"}, descriptors(methods))

	methods = typ.FindMethods(Query{Name: "add", Args: types(r, "int", "int"), Return: r.Double})
	require.Equal(t, []string{"org.example.Calc.add(DD)D"}, descriptors(methods))

	methods = typ.FindMethods(Query{Name: "add", Args: types(r, "int", "int"), Static: StaticNot})
	require.Empty(t, methods)
}

func TestType_FindMethods_Inheritance(t *testing.T) {
	r := NewRegistry()
	base, err := r.Define(Decl{Name: "org.example.Base"})
	require.NoError(t, err)
	shape, err := r.Define(Decl{Name: "org.example.Shape", Interface: true})
	require.NoError(t, err)
	sub, err := r.Define(Decl{Name: "org.example.Sub", Super: base, Interfaces: []*Type{shape}})
	require.NoError(t, err)

	defineAll(t, r, base, []methodDecl{
		{mods: ModPublic, ret: "void", name: "foo", params: []string{"Object"}},
		{mods: ModPublic, ret: "void", name: "bar"},
	})
	defineAll(t, r, shape, []methodDecl{
		{mods: ModPublic | ModAbstract, ret: "double", name: "area"},
	})
	defineAll(t, r, sub, []methodDecl{
		{mods: ModPublic, ret: "void", name: "foo", params: []string{"String"}},
		{mods: ModPublic, ret: "void", name: "bar"},
		{mods: ModPublic | ModStatic, ret: "void", name: "baz", params: []string{"int"}},
		{mods: ModPublic, ret: "void", name: "baz", params: []string{"long"}},
	})

	tests := []struct {
		name     string
		query    Query
		expected []string
	}{
		{name: "most specific", query: Query{Name: "foo", Args: types(r, "String")}, expected: []string{"org.example.Sub.foo(Ljava/lang/String;)V"}},
		{name: "inherited", query: Query{Name: "foo", Args: types(r, "Integer")}, expected: []string{"org.example.Base.foo(Ljava/lang/Object;)V"}},
		{name: "not inherited", query: Query{Name: "foo", Args: types(r, "Integer"), Inherit: InheritNone}, expected: nil},
		{name: "super call", query: Query{Name: "foo", Args: types(r, "String"), Inherit: InheritSuper}, expected: []string{"org.example.Base.foo(Ljava/lang/Object;)V"}},
		{name: "override", query: Query{Name: "bar"}, expected: []string{"org.example.Sub.bar()V"}},
		{name: "interface", query: Query{Name: "area"}, expected: []string{"org.example.Shape.area()D"}},
		{name: "object method", query: Query{Name: "hashCode"}, expected: []string{"java.lang.Object.hashCode()I"}},
		{name: "static preferred", query: Query{Name: "baz", Args: types(r, "int")}, expected: []string{"org.example.Sub.baz(I)V"}},
		{name: "instance only", query: Query{Name: "baz", Args: types(r, "int"), Static: StaticNot}, expected: []string{"org.example.Sub.baz(J)V"}},
		{name: "static only", query: Query{Name: "baz", Args: types(r, "long"), Static: StaticOnly}, expected: nil},
		{name: "class initializer", query: Query{Name: "<clinit>"}, expected: nil},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, descriptors(sub.FindMethods(tc.query)))
		})
	}

	t.Run("array receiver", func(t *testing.T) {
		methods := r.String.ArrayOf().FindMethods(Query{Name: "hashCode"})
		require.Equal(t, []string{"java.lang.Object.hashCode()I"}, descriptors(methods))
	})
}

func TestType_FindMethods_Bridge(t *testing.T) {
	r := NewRegistry()
	typ, err := r.Define(Decl{Name: "org.example.Box"})
	require.NoError(t, err)
	defineAll(t, r, typ, []methodDecl{
		{mods: ModPublic | ModBridge | ModSynthetic, ret: "String", name: "get"},
		{mods: ModPublic, ret: "Integer", name: "get"},
	})

	m, err := typ.FindMethod(Query{Name: "get"})
	require.NoError(t, err)
	require.Equal(t, "()Ljava/lang/Integer;", m.Descriptor())
}

func TestType_FindMethods_Invalidation(t *testing.T) {
	r := NewRegistryWithMemo(1)
	base, err := r.Define(Decl{Name: "org.example.Base"})
	require.NoError(t, err)
	sub, err := r.Define(Decl{Name: "org.example.Sub", Super: base})
	require.NoError(t, err)

	q := Query{Name: "qux", Args: types(r, "int")}
	require.Empty(t, sub.FindMethods(q))
	require.Empty(t, sub.FindMethods(q))

	_, err = base.DefineMethod(ModPublic, r.Void, "qux", r.Long)
	require.NoError(t, err)
	require.Equal(t, []string{"org.example.Base.qux(J)V"}, descriptors(sub.FindMethods(q)))

	_, err = sub.DefineMethod(ModPublic, r.Void, "qux", r.Int)
	require.NoError(t, err)
	require.Equal(t, []string{"org.example.Sub.qux(I)V"}, descriptors(sub.FindMethods(q)))

	// Evicts the entry above, and recomputes it.
	require.Empty(t, sub.FindMethods(Query{Name: "other"}))
	require.Equal(t, []string{"org.example.Sub.qux(I)V"}, descriptors(sub.FindMethods(q)))
}

func TestMethod_SetModifiers(t *testing.T) {
	r := NewRegistry()
	typ := r.MustLookup("org.example.Gen")
	m, err := typ.DefineMethod(ModPublic, r.Int, "size")
	require.NoError(t, err)

	q := Query{Name: "size", Static: StaticOnly}
	require.Empty(t, typ.FindMethods(q))

	m.SetModifiers(ModPublic | ModStatic)
	require.Equal(t, []*Method{m}, typ.FindMethods(q))
}

func TestRegistry_DefineSignature(t *testing.T) {
	r := NewRegistry()
	typ := r.MustLookup("org.example.Util")
	require.NoError(t, r.DefineSignature(typ, "public static varargs java.lang.String join(java.lang.String, java.lang.Object[])"))

	m, err := typ.FindMethod(Query{Name: "join", Args: types(r, "String", "int", "int")})
	require.NoError(t, err)
	require.True(t, m.IsStatic())
	require.True(t, m.IsVarargs())
	require.Equal(t, "(Ljava/lang/String;[Ljava/lang/Object;)Ljava/lang/String;", m.Descriptor())

	require.Error(t, r.DefineSignature(typ, "join"))
}

func TestType_FindMethod_SignaturePolymorphic(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name     string
		owner    *Type
		query    Query
		expected string
	}{
		{
			name:     "actual types",
			owner:    r.MethodHandle,
			query:    Query{Name: "invokeExact", Args: types(r, "int", "String")},
			expected: "(ILjava/lang/String;)Ljava/lang/Object;",
		},
		{
			name:     "specific return",
			owner:    r.MethodHandle,
			query:    Query{Name: "invokeExact", Args: types(r, "int", "String"), Return: r.Int},
			expected: "(ILjava/lang/String;)I",
		},
		{
			name:     "specific params",
			owner:    r.MethodHandle,
			query:    Query{Name: "invoke", Args: types(r, "String", "String"), Params: types(r, "Object", "CharSequence")},
			expected: "(Ljava/lang/Object;Ljava/lang/CharSequence;)Ljava/lang/Object;",
		},
		{
			name:     "not polymorphic",
			owner:    r.MethodHandle,
			query:    Query{Name: "invokeWithArguments", Args: types(r, "int")},
			expected: "([Ljava/lang/Object;)Ljava/lang/Object;",
		},
		{
			name:     "var handle",
			owner:    r.VarHandle,
			query:    Query{Name: "set", Args: types(r, "Object", "int")},
			expected: "(Ljava/lang/Object;I)V",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			m, err := tc.owner.FindMethod(tc.query)
			require.NoError(t, err)
			require.Equal(t, tc.expected, m.Descriptor())
			require.Same(t, tc.owner, m.Owner())
			require.False(t, m.IsStatic())
		})
	}

	t.Run("specific params must accept arguments", func(t *testing.T) {
		_, err := r.MethodHandle.FindMethod(Query{Name: "invoke", Args: types(r, "Object"), Params: types(r, "String")})
		require.ErrorIs(t, err, ErrNoMatchingMethod)
	})
}

func TestCommonCatchType(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name     string
		input    []string
		expected string
	}{
		{name: "single", input: []string{"IllegalStateException"}, expected: "java.lang.IllegalStateException"},
		{name: "siblings", input: []string{"IllegalStateException", "IllegalArgumentException"}, expected: "java.lang.RuntimeException"},
		{name: "sub and super", input: []string{"RuntimeException", "Exception"}, expected: "java.lang.Exception"},
		{name: "exception and error", input: []string{"Exception", "Error", "NullPointerException"}, expected: "java.lang.Throwable"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, CommonCatchType(types(r, tc.input...)).Name())
		})
	}

	require.Nil(t, CommonCatchType(nil))
}
