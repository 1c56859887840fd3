package main

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/classforge/classforge"
	"github.com/classforge/classforge/internal/opcodes"
	"github.com/classforge/classforge/internal/testing/jvmstub"
)

func genClass(t *testing.T, index int) *jvmstub.Class {
	m, err := loadManifest("testdata/model.toml")
	require.NoError(t, err)
	b, err := dataClass(classforge.NewConfig(), m, m.Classes[index])
	require.NoError(t, err)
	c, err := jvmstub.Parse(b)
	require.NoError(t, err)
	return c
}

func TestDataClass(t *testing.T) {
	c := genClass(t, 0)
	require.Equal(t, "org/example/model/Point", c.Name)
	require.Equal(t, "java/lang/Object", c.Super)
	require.Equal(t, []string{"java/io/Serializable"}, c.Interfaces)
	require.Equal(t, 0x0001|0x0010|0x0020, c.Flags)

	fields := map[string]string{}
	for _, f := range c.Fields {
		fields[f.Name] = f.Desc
	}
	require.Equal(t, map[string]string{
		"x":         "I",
		"labelText": "Ljava/lang/String;",
		"weight":    "D",
		"MAX_X":     "I",
		"UNIT":      "Ljava/lang/String;",
	}, fields)
	require.Equal(t, 0x0002|0x0010, c.Field("x").Flags)
	require.Equal(t, 0x0001|0x0008|0x0010, c.Field("MAX_X").Flags)

	cv := c.Field("MAX_X").Attribute("ConstantValue")
	require.Len(t, cv, 2)
	require.Equal(t, uint64(100), c.Pool[binary.BigEndian.Uint16(cv)].Num)
	cv = c.Field("UNIT").Attribute("ConstantValue")
	require.Len(t, cv, 2)
	require.Equal(t, "px", c.UTF8(c.Pool[binary.BigEndian.Uint16(cv)].Refs[0]))

	for _, m := range []struct{ name, desc string }{
		{"<init>", "(ILjava/lang/String;D)V"},
		{"getX", "()I"},
		{"getLabelText", "()Ljava/lang/String;"},
		{"getWeight", "()D"},
		{"toString", "()Ljava/lang/String;"},
		{"hashCode", "()I"},
		{"equals", "(Ljava/lang/Object;)Z"},
	} {
		require.NotNil(t, c.Method(m.name, m.desc), "%s%s", m.name, m.desc)
	}

	getX, err := c.Code(c.Method("getX", "()I"))
	require.NoError(t, err)
	require.Equal(t, 5, len(getX.Bytes))
	require.Equal(t, []byte{opcodes.ALOAD_0, opcodes.GETFIELD}, getX.Bytes[:2])
	require.Equal(t, opcodes.IRETURN, getX.Bytes[4])

	equals, err := c.Code(c.Method("equals", "(Ljava/lang/Object;)Z"))
	require.NoError(t, err)
	require.NotNil(t, equals.Attribute("StackMapTable"))

	// toString concatenates through invokedynamic.
	require.NotNil(t, c.Attribute("BootstrapMethods"))
	var recipe bool
	for _, k := range c.Pool {
		recipe = recipe || k.Str == "Point{x=\u0001, labelText=\u0001, weight=\u0001}"
	}
	require.True(t, recipe)
}

func TestDataClass_Super(t *testing.T) {
	c := genClass(t, 1)
	require.Equal(t, "org/example/model/TaggedPoint", c.Name)
	require.Equal(t, "org/example/model/Base", c.Super)
	require.NotNil(t, c.Method("isActive", "()Z"))
	require.NotNil(t, c.Method("getId", "()J"))

	ctor, err := c.Code(c.Method("<init>", "(ZJ)V"))
	require.NoError(t, err)
	require.Equal(t, []byte{opcodes.ALOAD_0, opcodes.INVOKESPECIAL}, ctor.Bytes[:2])
	owner, name, desc := c.MemberRef(int(binary.BigEndian.Uint16(ctor.Bytes[2:])))
	require.Equal(t, []string{"org/example/model/Base", "<init>", "()V"}, []string{owner, name, desc})
}

func TestDataClass_Errors(t *testing.T) {
	tests := []struct {
		name     string
		decl     ClassDecl
		expected error
	}{
		{
			name:     "duplicate field",
			decl:     ClassDecl{Name: "a", Fields: []FieldDecl{{Name: "x", Type: "int"}, {Name: "x", Type: "long"}}},
			expected: classforge.ErrConflictingMember,
		},
		{
			name:     "inexact constant",
			decl:     ClassDecl{Name: "a", Constants: []ConstantDecl{{Name: "b", Type: "byte", Value: int64(1000)}}},
			expected: classforge.ErrNoConversion,
		},
		{
			name:     "void field",
			decl:     ClassDecl{Name: "a", Fields: []FieldDecl{{Name: "x", Type: "void"}}},
			expected: classforge.ErrBadOperand,
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			m := &Manifest{Package: "p", Classes: []ClassDecl{tc.decl}}
			_, err := dataClass(classforge.NewConfig(), m, tc.decl)
			require.ErrorIs(t, err, tc.expected)
		})
	}
}
