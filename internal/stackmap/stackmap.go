// Package stackmap builds the StackMapTable attribute of a method.
//
// See https://docs.oracle.com/javase/specs/jvms/se11/html/jvms-4.html#jvms-4.7.4
package stackmap

import (
	"fmt"
	"strings"
)

// Verification type tags.
const (
	TagTop byte = iota
	TagInt
	TagFloat
	TagDouble
	TagLong
	TagNull
	TagUninitThis
	TagObject
	TagUninitialized
)

// Type is a verification type. Data is the constant pool class index for
// TagObject, and the offset of the "new" instruction for TagUninitialized.
type Type struct {
	Tag  byte
	Data int
}

var (
	Top        = Type{Tag: TagTop}
	Int        = Type{Tag: TagInt}
	Float      = Type{Tag: TagFloat}
	Long       = Type{Tag: TagLong}
	Double     = Type{Tag: TagDouble}
	Null       = Type{Tag: TagNull}
	UninitThis = Type{Tag: TagUninitThis}
)

// Object returns the verification type of the class at the given constant
// pool index.
func Object(classIndex int) Type {
	return Type{Tag: TagObject, Data: classIndex}
}

// Uninitialized returns the verification type produced by a "new" instruction
// at the given code offset.
func Uninitialized(offset int) Type {
	return Type{Tag: TagUninitialized, Data: offset}
}

// Slots returns the number of local variable or operand stack slots the type
// occupies.
func (t Type) Slots() int {
	if t.Tag == TagLong || t.Tag == TagDouble {
		return 2
	}
	return 1
}

func (t Type) String() string {
	switch t.Tag {
	case TagTop:
		return "top"
	case TagInt:
		return "int"
	case TagFloat:
		return "float"
	case TagDouble:
		return "double"
	case TagLong:
		return "long"
	case TagNull:
		return "null"
	case TagUninitThis:
		return "uninitializedThis"
	case TagObject:
		return fmt.Sprintf("object#%d", t.Data)
	case TagUninitialized:
		return fmt.Sprintf("uninitialized@%d", t.Data)
	}
	return fmt.Sprintf("tag%d", t.Tag)
}

// Describe formats a list of types for diagnostics.
func Describe(types []Type) string {
	strs := make([]string, 0, len(types))
	for _, t := range types {
		strs = append(strs, t.String())
	}
	return "[" + strings.Join(strs, ", ") + "]"
}

// Equal returns true if both lists hold the same types in the same order.
func Equal(a, b []Type) bool {
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

// Merge combines the locals of two visits to the same program point. The
// shared prefix is kept, and mismatched entries become Top. A mismatch where
// either side is a two-slot type ends the list, since the following entries
// no longer describe the same slots.
func Merge(a, b []Type) []Type {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	merged := make([]Type, 0, n)
	for i := 0; i < n; i++ {
		x, y := a[i], b[i]
		if x == y {
			merged = append(merged, x)
			continue
		}
		if x.Slots() != 1 || y.Slots() != 1 {
			break
		}
		merged = append(merged, Top)
	}
	return TrimTop(merged)
}

// TrimTop removes trailing Top entries, which frames never need to declare.
func TrimTop(types []Type) []Type {
	for len(types) > 0 && types[len(types)-1] == Top {
		types = types[:len(types)-1]
	}
	return types
}
