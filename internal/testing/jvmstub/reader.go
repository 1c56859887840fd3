// Package jvmstub reads class files and interprets a small subset of their
// bytecode. It stands in for a JVM in tests.
package jvmstub

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

var (
	ErrBadMagic  = errors.New("bad magic")
	ErrTruncated = errors.New("truncated class file")
)

// Constant is a decoded constant pool entry. Refs holds the indexes of the
// referenced entries.
type Constant struct {
	Tag  byte
	Str  string
	Num  uint64
	Kind int
	Refs [2]int
}

type Attribute struct {
	Name string
	Data []byte
}

type Member struct {
	Flags      int
	Name, Desc string
	Attributes []Attribute
}

// Attribute returns the data of the named attribute, or nil.
func (m *Member) Attribute(name string) []byte {
	return findAttr(m.Attributes, name)
}

func findAttr(attrs []Attribute, name string) []byte {
	for _, a := range attrs {
		if a.Name == name {
			return a.Data
		}
	}
	return nil
}

type Handler struct {
	Start, End, Target, CatchType int
}

// Code is a decoded Code attribute.
type Code struct {
	MaxStack, MaxLocals int
	Bytes               []byte
	Handlers            []Handler
	Attributes          []Attribute
}

// Attribute returns the data of the named attribute, or nil.
func (c *Code) Attribute(name string) []byte {
	return findAttr(c.Attributes, name)
}

type Class struct {
	Minor, Major int
	Pool         []Constant
	Flags        int
	Name, Super  string
	Interfaces   []string
	Fields       []Member
	Methods      []Member
	Attributes   []Attribute
}

// Attribute returns the data of the named class attribute, or nil.
func (c *Class) Attribute(name string) []byte {
	return findAttr(c.Attributes, name)
}

// Method returns the method with the given name and descriptor, or nil.
func (c *Class) Method(name, desc string) *Member {
	for i := range c.Methods {
		if m := &c.Methods[i]; m.Name == name && m.Desc == desc {
			return m
		}
	}
	return nil
}

// Field returns the field with the given name, or nil.
func (c *Class) Field(name string) *Member {
	for i := range c.Fields {
		if f := &c.Fields[i]; f.Name == name {
			return f
		}
	}
	return nil
}

// UTF8 returns the string of a UTF8 entry.
func (c *Class) UTF8(ix int) string {
	if ix <= 0 || ix >= len(c.Pool) {
		return ""
	}
	return c.Pool[ix].Str
}

// ClassName returns the internal name of a Class entry.
func (c *Class) ClassName(ix int) string {
	if ix <= 0 || ix >= len(c.Pool) {
		return ""
	}
	return c.UTF8(c.Pool[ix].Refs[0])
}

// MemberRef returns the owner, name and descriptor of a field or method
// reference entry.
func (c *Class) MemberRef(ix int) (owner, name, desc string) {
	ref := c.Pool[ix]
	nat := c.Pool[ref.Refs[1]]
	return c.ClassName(ref.Refs[0]), c.UTF8(nat.Refs[0]), c.UTF8(nat.Refs[1])
}

// Code decodes the Code attribute of m.
func (c *Class) Code(m *Member) (*Code, error) {
	data := m.Attribute("Code")
	if data == nil {
		return nil, fmt.Errorf("%s%s has no code", m.Name, m.Desc)
	}
	r := &reader{b: data}
	code := &Code{MaxStack: r.u2(), MaxLocals: r.u2()}
	code.Bytes = r.bytes(int(r.u4()))
	for n := r.u2(); n > 0 && r.err == nil; n-- {
		code.Handlers = append(code.Handlers, Handler{Start: r.u2(), End: r.u2(), Target: r.u2(), CatchType: r.u2()})
	}
	code.Attributes = r.attributes(c)
	return code, r.err
}

type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.b) {
		r.err = fmt.Errorf("%w: need %d bytes at %d", ErrTruncated, n, r.off)
		return nil
	}
	b := r.b[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u1() int {
	if b := r.bytes(1); b != nil {
		return int(b[0])
	}
	return 0
}

func (r *reader) u2() int {
	if b := r.bytes(2); b != nil {
		return int(binary.BigEndian.Uint16(b))
	}
	return 0
}

func (r *reader) u4() uint32 {
	if b := r.bytes(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) attributes(c *Class) []Attribute {
	var attrs []Attribute
	for n := r.u2(); n > 0 && r.err == nil; n-- {
		name := c.UTF8(r.u2())
		attrs = append(attrs, Attribute{Name: name, Data: r.bytes(int(r.u4()))})
	}
	return attrs
}

func (r *reader) members(c *Class) []Member {
	var ms []Member
	for n := r.u2(); n > 0 && r.err == nil; n-- {
		m := Member{Flags: r.u2(), Name: c.UTF8(r.u2()), Desc: c.UTF8(r.u2())}
		m.Attributes = r.attributes(c)
		ms = append(ms, m)
	}
	return ms
}

// Parse decodes a class file.
func Parse(b []byte) (*Class, error) {
	r := &reader{b: b}
	if magic := r.u4(); magic != 0xCAFEBABE {
		if r.err != nil {
			return nil, r.err
		}
		return nil, fmt.Errorf("%w: %#x", ErrBadMagic, magic)
	}
	c := &Class{Minor: r.u2(), Major: r.u2()}

	count := r.u2()
	c.Pool = make([]Constant, count)
	for i := 1; i < count && r.err == nil; i++ {
		e := &c.Pool[i]
		e.Tag = byte(r.u1())
		switch e.Tag {
		case 1:
			e.Str = decodeUTF8(r.bytes(r.u2()))
		case 3, 4:
			e.Num = uint64(r.u4())
		case 5, 6:
			e.Num = uint64(r.u4())<<32 | uint64(r.u4())
			i++
		case 7, 8, 16:
			e.Refs[0] = r.u2()
		case 9, 10, 11, 12, 17, 18:
			e.Refs[0], e.Refs[1] = r.u2(), r.u2()
		case 15:
			e.Kind = r.u1()
			e.Refs[0] = r.u2()
		default:
			return nil, fmt.Errorf("unknown constant tag %d at %d", e.Tag, i)
		}
	}

	c.Flags = r.u2()
	c.Name = c.ClassName(r.u2())
	c.Super = c.ClassName(r.u2())
	for n := r.u2(); n > 0 && r.err == nil; n-- {
		c.Interfaces = append(c.Interfaces, c.ClassName(r.u2()))
	}
	c.Fields = r.members(c)
	c.Methods = r.members(c)
	c.Attributes = r.attributes(c)
	if r.err == nil && r.off != len(b) {
		return nil, fmt.Errorf("%d trailing bytes", len(b)-r.off)
	}
	return c, r.err
}

// decodeUTF8 decodes the modified UTF-8 of class files, where supplementary
// characters are encoded as surrogate pairs.
func decodeUTF8(b []byte) string {
	var units []uint16
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xe0 == 0xc0 && i+1 < len(b):
			units = append(units, uint16(c&0x1f)<<6|uint16(b[i+1]&0x3f))
			i += 2
		case i+2 < len(b):
			units = append(units, uint16(c&0x0f)<<12|uint16(b[i+1]&0x3f)<<6|uint16(b[i+2]&0x3f))
			i += 3
		default:
			i = len(b)
		}
	}
	return string(utf16.Decode(units))
}
