package typesys

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/classforge/classforge/internal/testing/hammer"
)

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name, input, expectedName, expectedDesc string
	}{
		{name: "primitive", input: "int", expectedName: "int", expectedDesc: "I"},
		{name: "void", input: "void", expectedName: "void", expectedDesc: "V"},
		{name: "binary name", input: "java.lang.String", expectedName: "java.lang.String", expectedDesc: "Ljava/lang/String;"},
		{name: "internal name", input: "java/lang/String", expectedName: "java.lang.String", expectedDesc: "Ljava/lang/String;"},
		{name: "short java.lang name", input: "Integer", expectedName: "java.lang.Integer", expectedDesc: "Ljava/lang/Integer;"},
		{name: "array name", input: "int[][]", expectedName: "int[][]", expectedDesc: "[[I"},
		{name: "array descriptor", input: "[Ljava/lang/String;", expectedName: "java.lang.String[]", expectedDesc: "[Ljava/lang/String;"},
		{name: "class descriptor", input: "Ljava/util/List;", expectedName: "java.util.List", expectedDesc: "Ljava/util/List;"},
		{name: "nested class", input: "java.util.Map$Entry", expectedName: "java.util.Map$Entry", expectedDesc: "Ljava/util/Map$Entry;"},
		{name: "surrounding space", input: " long ", expectedName: "long", expectedDesc: "J"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			typ, err := r.Lookup(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.expectedName, typ.Name())
			require.Equal(t, tc.expectedDesc, typ.Descriptor())

			again, err := r.Lookup(tc.expectedName)
			require.NoError(t, err)
			require.Same(t, typ, again)
		})
	}
}

func TestRegistry_Lookup_Errors(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"", "a..b", "void[]", "[V", "[X", "[Lfoo", "[II", "a;b", "Lint;"} {
		_, err := r.Lookup(name)
		require.ErrorIs(t, err, ErrInvalidTypeName, name)
	}
}

func TestRegistry_Lookup_Concurrent(t *testing.T) {
	r := NewRegistry()
	h := hammer.New(t, 16, 50)
	results := make([]*Type, h.P)
	h.Run(func(p, n int) {
		shared := r.MustLookup("org.example.Shared[]").Elem()
		if n > 0 && results[p] != shared {
			panic("lookup returned a different type")
		}
		results[p] = shared

		// Defines and resolves racing on a type of its own name.
		own := r.MustLookup(fmt.Sprintf("org.example.C%d_%d", p, n))
		if _, err := r.Define(Decl{Name: own.Name(), Super: shared}); err != nil {
			panic(err)
		}
		if own.Super() != shared {
			panic("super not set")
		}
		if _, err := shared.FindMethod(Query{Name: "hashCode", Static: StaticNot}); err != nil {
			panic(err)
		}
	})
	if t.Failed() {
		return
	}
	for _, typ := range results {
		require.Same(t, results[0], typ)
	}
}

func TestType_Hierarchy(t *testing.T) {
	r := NewRegistry()

	undeclared := r.MustLookup("org.example.Thing")
	require.False(t, undeclared.Declared())
	require.Same(t, r.Object, undeclared.Super())

	require.Nil(t, r.Object.Super())
	require.Nil(t, r.Int.Super())
	require.Same(t, r.Object, r.Int.ArrayOf().Super())
	require.Equal(t, []*Type{r.Cloneable, r.Serializable}, r.String.ArrayOf().Interfaces())

	integer := r.MustLookup("Integer")
	require.Same(t, integer, r.Int.Box())
	require.Same(t, r.Int, integer.Unbox())
	require.Nil(t, r.Void.Box())
	require.Nil(t, r.String.Unbox())

	require.Equal(t, 2, r.Long.Slots())
	require.Equal(t, 1, r.String.Slots())
	require.Equal(t, 0, r.Void.Slots())

	arr := r.MustLookup("java.lang.String[][]")
	require.Equal(t, 2, arr.Dims())
	require.Same(t, r.String, arr.Root())
	require.Equal(t, "[[Ljava/lang/String;", arr.InternalName())
	require.Equal(t, "java/lang/String", r.String.InternalName())

	require.True(t, r.Comparable.IsAssignableFrom(integer))
	require.True(t, r.Serializable.IsAssignableFrom(integer))
	require.False(t, integer.IsAssignableFrom(r.Number))
}

func TestRegistry_Define(t *testing.T) {
	r := NewRegistry()

	base, err := r.Define(Decl{Name: "org.example.Base"})
	require.NoError(t, err)
	require.True(t, base.Declared())
	require.Same(t, r.Object, base.Super())

	iface, err := r.Define(Decl{Name: "org.example.Shape", Interface: true})
	require.NoError(t, err)
	require.True(t, iface.IsInterface())

	sub, err := r.Define(Decl{Name: "org.example.Sub", Super: base, Interfaces: []*Type{iface}})
	require.NoError(t, err)
	require.True(t, base.IsAssignableFrom(sub))
	require.True(t, iface.IsAssignableFrom(sub))
	require.Equal(t, 2, sub.depth())

	t.Run("idempotent", func(t *testing.T) {
		again, err := r.Define(Decl{Name: "org.example.Sub", Super: base, Interfaces: []*Type{iface}})
		require.NoError(t, err)
		require.Same(t, sub, again)
	})

	t.Run("conflicting super", func(t *testing.T) {
		_, err := r.Define(Decl{Name: "org.example.Sub", Super: r.Exception, Interfaces: []*Type{iface}})
		require.ErrorIs(t, err, ErrConflictingType)
	})

	t.Run("conflicting interfaces", func(t *testing.T) {
		_, err := r.Define(Decl{Name: "org.example.Sub", Super: base})
		require.ErrorIs(t, err, ErrConflictingType)
	})

	t.Run("primitive super", func(t *testing.T) {
		_, err := r.Define(Decl{Name: "org.example.Bad", Super: r.Int})
		require.ErrorIs(t, err, ErrConflictingType)
	})
}

func TestType_DefineMembers(t *testing.T) {
	r := NewRegistry()
	typ, err := r.Define(Decl{Name: "org.example.Members"})
	require.NoError(t, err)

	f, err := typ.DefineField(ModPrivate, r.Int, "count")
	require.NoError(t, err)
	again, err := typ.DefineField(ModPrivate, r.Int, "count")
	require.NoError(t, err)
	require.Same(t, f, again)
	_, err = typ.DefineField(ModPrivate, r.Long, "count")
	require.ErrorIs(t, err, ErrConflictingMember)

	found, err := typ.FindField("count")
	require.NoError(t, err)
	require.Same(t, f, found)
	_, err = typ.FindField("missing")
	require.ErrorIs(t, err, ErrNoSuchField)

	m, err := typ.DefineMethod(ModPublic|ModStatic, r.Int, "add", r.Int, r.Int)
	require.NoError(t, err)
	require.Equal(t, "(II)I", m.Descriptor())
	require.Equal(t, "static int org.example.Members.add(int, int)", m.String())

	again2, err := typ.DefineMethod(ModPublic|ModStatic, r.Int, "add", r.Int, r.Int)
	require.NoError(t, err)
	require.Same(t, m, again2)

	_, err = typ.DefineMethod(ModPublic, r.Int, "add", r.Int, r.Int)
	require.ErrorIs(t, err, ErrConflictingMember)

	invented, err := typ.InventMethod(0, r.Int, "sub", r.Int)
	require.NoError(t, err)
	require.Equal(t, "(I)I", invented.Descriptor())
	require.Empty(t, typ.DeclaredMethods("sub"))

	_, err = r.Int.ArrayOf().DefineField(0, r.Int, "length")
	require.ErrorIs(t, err, ErrNotReference)
	_, err = r.Int.DefineMethod(0, r.Void, "x")
	require.ErrorIs(t, err, ErrNotReference)
}

func TestRegistry_ParseMethodDescriptor(t *testing.T) {
	r := NewRegistry()

	ret, params, err := r.ParseMethodDescriptor("(I[JLjava/lang/String;)V")
	require.NoError(t, err)
	require.Same(t, r.Void, ret)
	require.Equal(t, []*Type{r.Int, r.Long.ArrayOf(), r.String}, params)

	ret, params, err = r.ParseMethodDescriptor("()Ljava/lang/Object;")
	require.NoError(t, err)
	require.Same(t, r.Object, ret)
	require.Empty(t, params)

	for _, desc := range []string{"I)V", "(I", "(I)VV", "(Q)V"} {
		_, _, err := r.ParseMethodDescriptor(desc)
		require.ErrorIs(t, err, ErrInvalidTypeName, desc)
	}
}
