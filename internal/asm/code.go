package asm

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/classforge/classforge/internal/bytesink"
	"github.com/classforge/classforge/internal/stackmap"
	"github.com/classforge/classforge/internal/typesys"
)

// Code is the assembled Code attribute of a method. Every constant it refers
// to was added to the pool by Finish.
type Code struct {
	MaxStack, MaxLocals int
	Bytes               []byte
	Handlers            []Handler
	Frames              *stackmap.Table
	Lines               []LineNumber
	Vars                []LocalVar

	nameIndex, framesIndex, linesIndex, varsIndex int
}

// Handler is an exception table entry. CatchType is zero for handlers which
// catch everything.
type Handler struct {
	Start, End, Target int
	CatchType          int
}

type LineNumber struct {
	Addr, Line int
}

// LocalVar is a LocalVariableTable entry.
type LocalVar struct {
	Start, Length int
	Name, Desc    int
	Slot          int
}

// Finish assembles the method. The Method cannot be changed afterwards.
func (m *Method) Finish() (*Code, error) {
	if m.finished {
		return nil, ErrFinished
	}
	m.finished = true

	if n := ParamSlots(m.static, m.params()); n > MaxParamSlots {
		return nil, errors.Wrapf(ErrTooManyParams, "%s: %d", m.name, n)
	}
	if err := m.markLive(); err != nil {
		return nil, err
	}
	m.removeDead()
	m.optimize()
	m.assignSlots()
	if err := m.flow(); err != nil {
		return nil, err
	}
	if err := m.checkLimits(); err != nil {
		return nil, err
	}
	if err := m.assemble(); err != nil {
		return nil, err
	}

	c := &Code{
		MaxStack:  m.maxStack,
		MaxLocals: m.maxLocals,
		Bytes:     m.code.Bytes(),
		Frames:    m.frames,
		nameIndex: m.pool.AddUTF8("Code"),
	}
	for _, h := range m.handlers {
		if h.start.addr >= h.end.addr {
			continue
		}
		c.Handlers = append(c.Handlers, Handler{
			Start: h.start.addr, End: h.end.addr, Target: h.target.addr, CatchType: h.cp,
		})
	}
	if m.frames.Len() > 0 {
		c.framesIndex = m.pool.AddUTF8("StackMapTable")
	}
	for _, e := range m.lines {
		c.Lines = append(c.Lines, LineNumber{Addr: e.addr, Line: e.line})
	}
	if len(c.Lines) > 0 {
		c.linesIndex = m.pool.AddUTF8("LineNumberTable")
	}
	c.Vars = m.localVars()
	if len(c.Vars) > 0 {
		c.varsIndex = m.pool.AddUTF8("LocalVariableTable")
	}

	m.logger.Debug("assembled method",
		zap.String("method", m.name),
		zap.Int("passes", m.passes),
		zap.Int("code", len(c.Bytes)),
		zap.Int("frames", m.frames.Len()),
		zap.Int("maxStack", c.MaxStack),
		zap.Int("maxLocals", c.MaxLocals))
	return c, nil
}

// MaxParamSlots is the most local variable slots the parameters of a
// method take, counting the receiver.
const MaxParamSlots = 255

// maxSlots is the largest max_locals and max_stack a Code attribute holds.
const maxSlots = 65535

// ParamSlots returns the slots taken by params, plus one for the receiver of
// an instance method.
func ParamSlots(static bool, params []*typesys.Type) int {
	n := 0
	if !static {
		n++
	}
	for _, p := range params {
		n += p.Slots()
	}
	return n
}

func (m *Method) params() []*typesys.Type {
	var ret []*typesys.Type
	for _, v := range m.vars[:m.nparams] {
		if v != m.this {
			ret = append(ret, v.typ)
		}
	}
	return ret
}

func (m *Method) checkLimits() error {
	if m.maxLocals > maxSlots {
		return errors.Wrapf(ErrTooManyLocals, "%s: %d", m.name, m.maxLocals)
	}
	if m.maxStack > maxSlots {
		return errors.Wrapf(ErrStackTooDeep, "%s: %d", m.name, m.maxStack)
	}
	return nil
}

// localVars returns the table entries of the named variables which kept a
// slot. Parameters cover the whole code, and other variables start after
// their first store.
func (m *Method) localVars() []LocalVar {
	var ret []LocalVar
	end := m.code.Len()
	for _, v := range m.slotted {
		if v.name == "" {
			continue
		}
		start := 0
		if !v.param {
			if v.firstStore < 0 {
				continue
			}
			s := m.ops[v.firstStore]
			if s.next < 0 {
				continue
			}
			start = m.ops[s.next].addr
		}
		if start >= end {
			continue
		}
		ret = append(ret, LocalVar{
			Start:  start,
			Length: end - start,
			Name:   m.pool.AddUTF8(v.name),
			Desc:   m.pool.AddUTF8(v.typ.Descriptor()),
			Slot:   v.slot,
		})
	}
	return ret
}

// WriteTo writes the whole attribute, including its name and length.
func (c *Code) WriteTo(buf *bytesink.Buffer) {
	buf.WriteU2(c.nameIndex)
	lengthAt := buf.Len()
	buf.WriteU4(0)

	buf.WriteU2(c.MaxStack)
	buf.WriteU2(c.MaxLocals)
	buf.WriteU4(uint32(len(c.Bytes)))
	_, _ = buf.Write(c.Bytes)

	buf.WriteU2(len(c.Handlers))
	for _, h := range c.Handlers {
		buf.WriteU2(h.Start)
		buf.WriteU2(h.End)
		buf.WriteU2(h.Target)
		buf.WriteU2(h.CatchType)
	}

	attrs := 0
	for _, idx := range []int{c.framesIndex, c.linesIndex, c.varsIndex} {
		if idx != 0 {
			attrs++
		}
	}
	buf.WriteU2(attrs)

	if c.framesIndex != 0 {
		writeAttr(buf, c.framesIndex, func() { c.Frames.WriteTo(buf) })
	}
	if c.linesIndex != 0 {
		writeAttr(buf, c.linesIndex, func() {
			buf.WriteU2(len(c.Lines))
			for _, l := range c.Lines {
				buf.WriteU2(l.Addr)
				buf.WriteU2(l.Line)
			}
		})
	}
	if c.varsIndex != 0 {
		writeAttr(buf, c.varsIndex, func() {
			buf.WriteU2(len(c.Vars))
			for _, v := range c.Vars {
				buf.WriteU2(v.Start)
				buf.WriteU2(v.Length)
				buf.WriteU2(v.Name)
				buf.WriteU2(v.Desc)
				buf.WriteU2(v.Slot)
			}
		})
	}

	buf.PutU4At(lengthAt, uint32(buf.Len()-lengthAt-4))
}

func writeAttr(buf *bytesink.Buffer, name int, body func()) {
	buf.WriteU2(name)
	lengthAt := buf.Len()
	buf.WriteU4(0)
	body()
	buf.PutU4At(lengthAt, uint32(buf.Len()-lengthAt-4))
}
