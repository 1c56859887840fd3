// Package classfile lays out a class file: header, constant pool, access
// flags, fields, methods and class attributes.
//
// See https://docs.oracle.com/javase/specs/jvms/se11/html/jvms-4.html
package classfile

import (
	"errors"
	"fmt"

	"github.com/classforge/classforge/internal/asm"
	"github.com/classforge/classforge/internal/bytesink"
	"github.com/classforge/classforge/internal/constpool"
)

const (
	Magic = 0xCAFEBABE
	// DefaultMajor is the class file version of Java 11.
	DefaultMajor = 55
)

// Access flags. Some values are shared between classes, fields and methods.
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSuper        = 0x0020
	AccSynchronized = 0x0020
	AccVolatile     = 0x0040
	AccBridge       = 0x0040
	AccTransient    = 0x0080
	AccVarargs      = 0x0080
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccStrict       = 0x0800
	AccSynthetic    = 0x1000
	AccEnum         = 0x4000
)

// maxCount is the largest value of a u2 count.
const maxCount = 65535

// ErrTooMany is returned when a count doesn't fit its u2 field.
var ErrTooMany = errors.New("too many")

type Field struct {
	Flags      int
	Name, Desc string
	// ConstantValue is the pool index of the initial value of a static
	// final field, or zero.
	ConstantValue int
}

type Method struct {
	Flags      int
	Name, Desc string
	// Code is nil for abstract and native methods.
	Code *asm.Code
}

// Class is a class file ready to be encoded. Names are internal names, such
// as "java/lang/Object".
type Class struct {
	Pool         *constpool.Pool
	Major, Minor int
	Flags        int
	This, Super  string
	Interfaces   []string
	Fields       []Field
	Methods      []Method

	SourceFile  string
	NestHost    string
	NestMembers []string
}

// Encode returns the bytes of the class file. The remaining constants are
// added to the pool first, and the pool is frozen afterwards.
func (c *Class) Encode() ([]byte, error) {
	for _, n := range []struct {
		kind  string
		count int
	}{
		{"interfaces", len(c.Interfaces)},
		{"fields", len(c.Fields)},
		{"methods", len(c.Methods)},
		{"nest members", len(c.NestMembers)},
		{"bootstrap methods", len(c.Pool.Bootstraps())},
	} {
		if n.count > maxCount {
			return nil, fmt.Errorf("%w %s: %d", ErrTooMany, n.kind, n.count)
		}
	}

	body := bytesink.New(1024)
	c.writeBody(body)
	c.Pool.Freeze()

	major := c.Major
	if major == 0 {
		major = DefaultMajor
	}
	out := bytesink.New(body.Len() + 16*c.Pool.Size())
	out.WriteU4(Magic)
	out.WriteU2(c.Minor)
	out.WriteU2(major)
	if err := c.Pool.WriteTo(out); err != nil {
		return nil, err
	}
	_, _ = out.Write(body.Bytes())
	return out.Bytes(), nil
}

func (c *Class) writeBody(buf *bytesink.Buffer) {
	p := c.Pool
	flags := c.Flags
	if flags&AccInterface == 0 {
		flags |= AccSuper
	}
	buf.WriteU2(flags)
	buf.WriteU2(p.AddClass(c.This))
	if c.Super == "" {
		buf.WriteU2(0)
	} else {
		buf.WriteU2(p.AddClass(c.Super))
	}
	buf.WriteU2(len(c.Interfaces))
	for _, i := range c.Interfaces {
		buf.WriteU2(p.AddClass(i))
	}

	buf.WriteU2(len(c.Fields))
	for _, f := range c.Fields {
		buf.WriteU2(f.Flags)
		buf.WriteU2(p.AddUTF8(f.Name))
		buf.WriteU2(p.AddUTF8(f.Desc))
		if f.ConstantValue == 0 {
			buf.WriteU2(0)
			continue
		}
		buf.WriteU2(1)
		buf.WriteU2(p.AddUTF8("ConstantValue"))
		buf.WriteU4(2)
		buf.WriteU2(f.ConstantValue)
	}

	buf.WriteU2(len(c.Methods))
	for _, m := range c.Methods {
		buf.WriteU2(m.Flags)
		buf.WriteU2(p.AddUTF8(m.Name))
		buf.WriteU2(p.AddUTF8(m.Desc))
		if m.Code == nil {
			buf.WriteU2(0)
			continue
		}
		buf.WriteU2(1)
		m.Code.WriteTo(buf)
	}

	c.writeAttributes(buf)
}

func (c *Class) writeAttributes(buf *bytesink.Buffer) {
	p := c.Pool
	var attrs []func()
	if c.SourceFile != "" {
		attrs = append(attrs, func() {
			attr(buf, p.AddUTF8("SourceFile"), func() {
				buf.WriteU2(p.AddUTF8(c.SourceFile))
			})
		})
	}
	if c.NestHost != "" {
		attrs = append(attrs, func() {
			attr(buf, p.AddUTF8("NestHost"), func() {
				buf.WriteU2(p.AddClass(c.NestHost))
			})
		})
	}
	if len(c.NestMembers) > 0 {
		attrs = append(attrs, func() {
			attr(buf, p.AddUTF8("NestMembers"), func() {
				buf.WriteU2(len(c.NestMembers))
				for _, n := range c.NestMembers {
					buf.WriteU2(p.AddClass(n))
				}
			})
		})
	}
	if bms := p.Bootstraps(); len(bms) > 0 {
		attrs = append(attrs, func() {
			attr(buf, p.AddUTF8("BootstrapMethods"), func() {
				buf.WriteU2(len(bms))
				for _, bm := range bms {
					buf.WriteU2(bm.Handle)
					buf.WriteU2(len(bm.Args))
					for _, a := range bm.Args {
						buf.WriteU2(a)
					}
				}
			})
		})
	}

	buf.WriteU2(len(attrs))
	for _, a := range attrs {
		a()
	}
}

func attr(buf *bytesink.Buffer, name int, body func()) {
	buf.WriteU2(name)
	at := buf.Len()
	buf.WriteU4(0)
	body()
	buf.PutU4At(at, uint32(buf.Len()-at-4))
}
