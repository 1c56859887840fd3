package typesys

// Kind classifies a Type. Primitive kinds are ordered by conversion width,
// which the conversion cost table relies on.
type Kind byte

const (
	KindVoid Kind = iota + 1
	KindBoolean
	KindByte
	KindChar
	KindShort
	KindInt
	KindFloat
	KindLong
	KindDouble
	KindObject
	// KindNull is the type of the null constant, assignable to every
	// reference type.
	KindNull
)

var kindNames = [...]string{
	KindVoid:    "void",
	KindBoolean: "boolean",
	KindByte:    "byte",
	KindChar:    "char",
	KindShort:   "short",
	KindInt:     "int",
	KindFloat:   "float",
	KindLong:    "long",
	KindDouble:  "double",
}

var kindDescriptors = [...]byte{
	KindVoid:    'V',
	KindBoolean: 'Z',
	KindByte:    'B',
	KindChar:    'C',
	KindShort:   'S',
	KindInt:     'I',
	KindFloat:   'F',
	KindLong:    'J',
	KindDouble:  'D',
}

// IsPrimitive returns true for void and the eight primitive kinds.
func (k Kind) IsPrimitive() bool {
	return k >= KindVoid && k <= KindDouble
}

func kindOfDescriptor(c byte) Kind {
	for k, d := range kindDescriptors {
		if d == c && d != 0 {
			return Kind(k)
		}
	}
	return 0
}

func kindOfName(name string) Kind {
	for k, n := range kindNames {
		if n == name && n != "" {
			return Kind(k)
		}
	}
	return 0
}
