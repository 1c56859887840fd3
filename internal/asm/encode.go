package asm

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/classforge/classforge/internal/bytesink"
	"github.com/classforge/classforge/internal/opcodes"
	"github.com/classforge/classforge/internal/stackmap"
	"github.com/classforge/classforge/internal/typesys"
)

// MaxCodeSize is the largest code array a method may have.
const MaxCodeSize = 65535

type lineEntry struct {
	addr, line int
}

// assembler holds the encoding state of a method.
type assembler struct {
	code   *bytesink.Buffer
	frames *stackmap.Table
	lines  []lineEntry

	// forceReAssemble is set when a forward branch turned out to need a wide
	// offset, which changes the addresses of everything after it.
	forceReAssemble bool
	passes          int
}

// Passes returns the number of encoding passes Finish needed.
func (m *Method) Passes() int {
	return m.passes
}

// assemble encodes the operation list. Forward branches start narrow, and
// each pass widens those which overflowed until no branch overflows.
func (m *Method) assemble() error {
	m.code = bytesink.New(len(m.ops) * 2)
	m.frames = stackmap.New(m.entryLocals())

	for m.passes = 1; ; m.passes++ {
		if m.passes > m.maxPasses {
			return errors.Wrapf(ErrNotConverged, "%s after %d passes", m.name, m.maxPasses)
		}
		if err := m.encode(); err != nil {
			return err
		}
		if !m.forceReAssemble {
			break
		}
		m.logger.Debug("re-assembling with wide branches",
			zap.String("method", m.name), zap.Int("pass", m.passes), zap.Int("size", m.code.Len()))
		m.forceReAssemble = false
	}

	if m.code.Len() > MaxCodeSize {
		return errors.Wrapf(ErrCodeTooLarge, "%s: %d bytes", m.name, m.code.Len())
	}

	// Line entries at the very end describe no code.
	lines := m.lines[:0]
	for _, e := range m.lines {
		if e.addr >= m.code.Len() {
			continue
		}
		if n := len(lines); n > 0 && lines[n-1].addr == e.addr {
			lines[n-1] = e
			continue
		}
		lines = append(lines, e)
	}
	m.lines = lines
	return nil
}

func (m *Method) encode() error {
	m.code.Reset()
	m.frames.Reset()
	m.lines = m.lines[:0]
	for _, l := range m.labels {
		l.addr, l.fixups = -1, nil
	}

	for i := m.head; i >= 0; i = m.ops[i].next {
		o := &m.ops[i]
		o.addr = m.code.Len()
		if err := m.encodeOp(i, o); err != nil {
			return err
		}
	}
	return nil
}

func (m *Method) encodeOp(i int, o *op) error {
	c := m.code
	switch o.kind {
	case opInsn:
		c.WriteU1(int(o.code))
	case opPush:
		m.encodePush(o)
	case opLoad:
		m.encodeVar(o.v, opcodes.ILOAD, opcodes.ILOAD_0)
	case opStore:
		m.encodeVar(o.v, opcodes.ISTORE, opcodes.ISTORE_0)
	case opInc:
		if o.v.slot > math.MaxUint8 || o.n < math.MinInt8 || o.n > math.MaxInt8 {
			c.WriteU1(int(opcodes.WIDE))
			c.WriteU1(int(opcodes.IINC))
			c.WriteU2(o.v.slot)
			c.WriteU2(o.n & 0xffff)
		} else {
			c.WriteU1(int(opcodes.IINC))
			c.WriteU1(o.v.slot)
			c.WriteU1(o.n & 0xff)
		}
	case opBranch:
		return m.encodeBranch(i, o)
	case opSwitch:
		m.encodeSwitch(i, o)
	case opRef:
		c.WriteU1(int(o.code))
		c.WriteU2(o.cp)
	case opInvokeInterface:
		c.WriteU1(int(o.code))
		c.WriteU2(o.cp)
		c.WriteU1(o.n)
		c.WriteU1(0)
	case opInvokeDynamic:
		c.WriteU1(int(o.code))
		c.WriteU2(o.cp)
		c.WriteU2(0)
	case opNewArray:
		c.WriteU1(int(o.code))
		c.WriteU1(o.n)
	case opMultiANewArray:
		c.WriteU1(int(o.code))
		c.WriteU2(o.cp)
		c.WriteU1(o.n)
	case opLabel:
		return m.encodeLabel(o.label)
	case opLineNum:
		m.lines = append(m.lines, lineEntry{addr: o.addr, line: o.line})
	}
	return nil
}

func (m *Method) encodePush(o *op) {
	c := m.code
	switch v := o.val.(type) {
	case nil:
		c.WriteU1(int(opcodes.ACONST_NULL))
		return
	case int32:
		switch {
		case v >= -1 && v <= 5:
			c.WriteU1(int(opcodes.ICONST_0) + int(v))
			return
		case v >= math.MinInt8 && v <= math.MaxInt8:
			c.WriteU1(int(opcodes.BIPUSH))
			c.WriteU1(int(v) & 0xff)
			return
		case v >= math.MinInt16 && v <= math.MaxInt16:
			c.WriteU1(int(opcodes.SIPUSH))
			c.WriteU2(int(v) & 0xffff)
			return
		}
	case int64:
		if o.cp == 0 {
			c.WriteU1(int(opcodes.LCONST_0) + int(v))
			return
		}
	case float32:
		if o.cp == 0 {
			c.WriteU1(int(opcodes.FCONST_0) + int(v))
			return
		}
	case float64:
		if o.cp == 0 {
			c.WriteU1(int(opcodes.DCONST_0) + int(v))
			return
		}
	}

	switch {
	case o.push.Slots() == 2:
		c.WriteU1(int(opcodes.LDC2_W))
		c.WriteU2(o.cp)
	case o.cp <= math.MaxUint8:
		c.WriteU1(int(opcodes.LDC))
		c.WriteU1(o.cp)
	default:
		c.WriteU1(int(opcodes.LDC_W))
		c.WriteU2(o.cp)
	}
}

// typeOffset returns the distance of the typed load or store opcode from the
// int variant.
func typeOffset(t *typesys.Type) int {
	switch t.Kind() {
	case typesys.KindLong:
		return 1
	case typesys.KindFloat:
		return 2
	case typesys.KindDouble:
		return 3
	case typesys.KindObject, typesys.KindNull:
		return 4
	}
	return 0
}

func (m *Method) encodeVar(v *Var, base, short opcodes.Opcode) {
	c := m.code
	t := typeOffset(v.typ)
	switch {
	case v.slot <= 3:
		c.WriteU1(int(short) + 4*t + v.slot)
	case v.slot <= math.MaxUint8:
		c.WriteU1(int(base) + t)
		c.WriteU1(v.slot)
	default:
		c.WriteU1(int(opcodes.WIDE))
		c.WriteU1(int(base) + t)
		c.WriteU2(v.slot)
	}
}

// encodeBranch writes a narrow branch, or a wide one if it was widened by an
// earlier pass or targets a label so far back that it needs to be. A wide
// conditional branch is an inverted branch over a goto_w.
func (m *Method) encodeBranch(i int, o *op) error {
	c := m.code
	l := o.label
	if l.addr >= 0 && o.flag&flagWide == 0 {
		if off := l.addr - o.addr; off < math.MinInt16 {
			o.flag |= flagWide
		}
	}

	if o.flag&flagWide == 0 {
		c.WriteU1(int(o.code))
		m.writeOffset(i, o.addr, l, 2)
		return nil
	}

	if o.code == opcodes.GOTO {
		c.WriteU1(int(opcodes.GOTO_W))
		m.writeOffset(i, o.addr, l, 4)
		return nil
	}

	c.WriteU1(int(opcodes.FlipIf(o.code)))
	c.WriteU2(8)
	c.WriteU1(int(opcodes.GOTO_W))
	m.writeOffset(i, o.addr+3, l, 4)
	// The inverted branch targets the code after the goto_w.
	return m.addFrame(c.Len(), o.after)
}

func (m *Method) encodeSwitch(i int, o *op) {
	c := m.code
	c.WriteU1(int(o.code))
	for c.Len()%4 != 0 {
		c.WriteU1(0)
	}
	m.writeOffset(i, o.addr, o.label, 4)

	sw := o.sw
	if !sw.table {
		c.WriteU4(uint32(len(sw.keys)))
		for k, key := range sw.keys {
			c.WriteU4(uint32(key))
			m.writeOffset(i, o.addr, sw.targets[k], 4)
		}
		return
	}

	low, high := sw.keys[0], sw.keys[len(sw.keys)-1]
	c.WriteU4(uint32(low))
	c.WriteU4(uint32(high))
	k := 0
	for key := int64(low); key <= int64(high); key++ {
		target := o.label
		if int64(sw.keys[k]) == key {
			target = sw.targets[k]
			k++
		}
		m.writeOffset(i, o.addr, target, 4)
	}
}

// writeOffset writes the offset of l relative to src, or a placeholder to be
// patched once l is reached.
func (m *Method) writeOffset(i, src int, l *Label, width int) {
	at := m.code.Len()
	if width == 2 {
		m.code.WriteU2(0)
	} else {
		m.code.WriteU4(0)
	}
	if l.addr >= 0 {
		m.putOffset(fixup{op: i, src: src, at: at, width: width}, l.addr)
		return
	}
	l.fixups = append(l.fixups, fixup{op: i, src: src, at: at, width: width})
}

func (m *Method) putOffset(f fixup, addr int) {
	off := addr - f.src
	if f.width == 4 {
		m.code.PutU4At(f.at, uint32(int32(off)))
		return
	}
	if off < math.MinInt16 || off > math.MaxInt16 {
		m.ops[f.op].flag |= flagWide
		m.forceReAssemble = true
		return
	}
	m.code.PutU2At(f.at, off&0xffff)
}

func (m *Method) encodeLabel(l *Label) error {
	l.addr = m.code.Len()
	for _, f := range l.fixups {
		m.putOffset(f, l.addr)
	}
	l.fixups = nil
	if !l.targeted || l.in == nil {
		return nil
	}
	return m.addFrame(l.addr, l.in)
}

func (m *Method) addFrame(addr int, s *state) error {
	stack := make([]stackmap.Type, len(s.stack))
	for i, t := range s.stack {
		if t.Tag == stackmap.TagUninitialized {
			t = stackmap.Uninitialized(m.ops[t.Data].addr)
		}
		stack[i] = t
	}
	return m.frames.Add(addr, m.locals(s), stack)
}

// locals returns the verification types of the local variable slots for the
// given state. Unassigned variables are top.
func (m *Method) locals(s *state) []stackmap.Type {
	var ret []stackmap.Type
	for _, v := range m.slotted {
		switch {
		case v == m.this && s.uninit:
			ret = append(ret, stackmap.UninitThis)
		case s.assigned.has(v.index):
			ret = append(ret, m.vt(v.typ))
		case v.typ.Slots() == 2:
			ret = append(ret, stackmap.Top, stackmap.Top)
		default:
			ret = append(ret, stackmap.Top)
		}
	}
	return ret
}

// entryLocals returns the locals of the implicit first frame, which the JVM
// derives from the method descriptor.
func (m *Method) entryLocals() []stackmap.Type {
	return stackmap.TrimTop(m.locals(m.entryState()))
}
