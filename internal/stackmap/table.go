package stackmap

import (
	"github.com/pkg/errors"

	"github.com/classforge/classforge/internal/bytesink"
)

var (
	ErrStackMismatch = errors.New("stack mismatch at frame merge")
	ErrOutOfOrder    = errors.New("stack map frame out of order")
)

// Frame encoding tags.
const (
	sameFrameMax                 = 63
	sameLocals1StackItemFrame    = 64
	sameLocals1StackItemFrameExt = 247
	sameFrameExtended            = 251
	fullFrame                    = 255
)

// Frame is the state at one code address.
type Frame struct {
	Addr   int
	Locals []Type
	Stack  []Type
}

// Table accumulates frames in address order.
type Table struct {
	initLocals []Type
	frames     []Frame
}

// New returns a table whose implicit first frame has the given locals, which
// are derived from the method descriptor.
func New(initLocals []Type) *Table {
	return &Table{initLocals: initLocals}
}

// Reset discards all frames added so far.
func (t *Table) Reset() {
	t.frames = t.frames[:0]
}

func (t *Table) Len() int {
	return len(t.frames)
}

func (t *Table) Frames() []Frame {
	return t.frames
}

// Add records the frame at addr. Adding a second frame at the same address
// merges the locals, and the stacks must be identical.
func (t *Table) Add(addr int, locals, stack []Type) error {
	if n := len(t.frames); n > 0 {
		last := &t.frames[n-1]
		switch {
		case addr == last.Addr:
			if !Equal(last.Stack, stack) {
				return errors.Wrapf(ErrStackMismatch, "at %d: %s vs %s",
					addr, Describe(last.Stack), Describe(stack))
			}
			last.Locals = Merge(last.Locals, locals)
			return nil
		case addr < last.Addr:
			return errors.Wrapf(ErrOutOfOrder, "%d after %d", addr, last.Addr)
		}
	}
	t.frames = append(t.frames, Frame{
		Addr:   addr,
		Locals: append([]Type(nil), TrimTop(locals)...),
		Stack:  append([]Type(nil), stack...),
	})
	return nil
}

// WriteTo writes the attribute body: the entry count followed by each frame
// in its most compact encoding.
func (t *Table) WriteTo(buf *bytesink.Buffer) {
	buf.WriteU2(len(t.frames))
	prevAddr, prevLocals := -1, t.initLocals
	for i := range t.frames {
		f := &t.frames[i]
		delta := f.Addr - prevAddr - 1
		writeFrame(buf, delta, prevLocals, f)
		prevAddr, prevLocals = f.Addr, f.Locals
	}
}

func writeFrame(buf *bytesink.Buffer, delta int, prevLocals []Type, f *Frame) {
	diff := localsDiff(prevLocals, f.Locals)

	if diff == 0 && len(f.Stack) <= 1 {
		if len(f.Stack) == 0 {
			if delta <= sameFrameMax {
				buf.WriteU1(delta)
			} else {
				buf.WriteU1(sameFrameExtended)
				buf.WriteU2(delta)
			}
		} else {
			if delta <= sameFrameMax {
				buf.WriteU1(sameLocals1StackItemFrame + delta)
			} else {
				buf.WriteU1(sameLocals1StackItemFrameExt)
				buf.WriteU2(delta)
			}
			writeType(buf, f.Stack[0])
		}
		return
	}

	if len(f.Stack) == 0 && diff >= -3 && diff <= 3 && diff != 0 {
		buf.WriteU1(sameFrameExtended + diff)
		buf.WriteU2(delta)
		if diff > 0 {
			writeTypes(buf, f.Locals[len(f.Locals)-diff:])
		}
		return
	}

	buf.WriteU1(fullFrame)
	buf.WriteU2(delta)
	buf.WriteU2(len(f.Locals))
	writeTypes(buf, f.Locals)
	buf.WriteU2(len(f.Stack))
	writeTypes(buf, f.Stack)
}

// localsDiff returns zero when the lists are equal, the number of appended
// entries when prev is a prefix of cur, the negated number of chopped entries
// when cur is a prefix of prev, and an out-of-range value otherwise.
func localsDiff(prev, cur []Type) int {
	n := len(prev)
	if len(cur) < n {
		n = len(cur)
	}
	for i := 0; i < n; i++ {
		if prev[i] != cur[i] {
			return minDiff
		}
	}
	return len(cur) - len(prev)
}

const minDiff = -1 << 31

func writeTypes(buf *bytesink.Buffer, types []Type) {
	for _, t := range types {
		writeType(buf, t)
	}
}

func writeType(buf *bytesink.Buffer, t Type) {
	buf.WriteU1(int(t.Tag))
	if t.Tag == TagObject || t.Tag == TagUninitialized {
		buf.WriteU2(t.Data)
	}
}
