package asm

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/classforge/classforge/internal/opcodes"
	"github.com/classforge/classforge/internal/stackmap"
	"github.com/classforge/classforge/internal/typesys"
)

var (
	errStackUnderflow = errors.New("stack underflow")
	errFellOff        = errors.New("flow reached the end of the code")
)

// terminal returns true for opcodes which never fall through.
func terminal(code opcodes.Opcode) bool {
	switch code {
	case opcodes.IRETURN, opcodes.LRETURN, opcodes.FRETURN, opcodes.DRETURN,
		opcodes.ARETURN, opcodes.RETURN, opcodes.ATHROW, opcodes.GOTO,
		opcodes.TABLESWITCH, opcodes.LOOKUPSWITCH:
		return true
	}
	return false
}

// markLive flags every op reachable from the first one, following branches,
// switches and the handlers of ranges containing live code. Falling off the
// end appends a return to void methods, and fails otherwise.
func (m *Method) markLive() error {
	work := []int{m.head}
	for {
		for len(work) > 0 {
			i := work[len(work)-1]
			work = work[:len(work)-1]
			if err := m.markFrom(i, &work); err != nil {
				return err
			}
		}

		changed := false
		for _, h := range m.handlers {
			if h.live {
				continue
			}
			if !h.start.Positioned() || !h.end.Positioned() || !h.target.Positioned() {
				return fmt.Errorf("%w: exception handler", ErrUnpositionedLabel)
			}
			if m.rangeHas(h, func(o *op) bool { return o.flag&flagLive != 0 }) {
				h.live = true
				changed = true
				work = append(work, h.target.op)
			}
		}
		if !changed {
			return nil
		}
	}
}

func (m *Method) markFrom(i int, work *[]int) error {
	for {
		if i < 0 {
			if m.ret.Kind() != typesys.KindVoid {
				return ErrEndReached
			}
			i = m.add(op{kind: opInsn, code: opcodes.RETURN})
		}

		o := &m.ops[i]
		if o.flag&flagLive != 0 {
			return nil
		}
		o.flag |= flagLive

		switch o.kind {
		case opBranch:
			if !o.label.Positioned() {
				return fmt.Errorf("%w: target of %s", ErrUnpositionedLabel, o)
			}
			*work = append(*work, o.label.op)
			if o.code == opcodes.GOTO {
				return nil
			}
		case opSwitch:
			for _, l := range append([]*Label{o.label}, o.sw.targets...) {
				if !l.Positioned() {
					return fmt.Errorf("%w: target of %s", ErrUnpositionedLabel, o)
				}
				*work = append(*work, l.op)
			}
			return nil
		case opInsn:
			if terminal(o.code) {
				return nil
			}
		}
		i = o.next
	}
}

// rangeHas returns true if an op which emits code between the start and end
// labels of h satisfies pred.
func (m *Method) rangeHas(h *handler, pred func(*op) bool) bool {
	for i := h.start.op; i >= 0 && i != h.end.op; i = m.ops[i].next {
		if o := &m.ops[i]; o.isCode() && pred(o) {
			return true
		}
	}
	return false
}

// removeDead unlinks the ops which markLive didn't reach, and drops the
// handlers whose range holds no live code. Labels stay in place, since
// handler ranges may still refer to them.
func (m *Method) removeDead() {
	removed, prev := 0, -1
	for i := m.head; i >= 0; {
		next := m.ops[i].next
		if o := &m.ops[i]; o.flag&flagLive == 0 && o.kind != opLabel {
			m.unlink(prev, i)
			removed++
		} else {
			prev = i
		}
		i = next
	}

	live := m.handlers[:0]
	for _, h := range m.handlers {
		if h.live {
			live = append(live, h)
		} else {
			m.logger.Debug("dropped exception handler", zap.String("method", m.name))
		}
	}
	m.handlers = live

	if removed > 0 {
		m.logger.Debug("removed dead code", zap.String("method", m.name), zap.Int("ops", removed))
	}
}

// vt returns the verification type of values of type t.
func (m *Method) vt(t *typesys.Type) stackmap.Type {
	switch t.Kind() {
	case typesys.KindBoolean, typesys.KindByte, typesys.KindChar, typesys.KindShort, typesys.KindInt:
		return stackmap.Int
	case typesys.KindFloat:
		return stackmap.Float
	case typesys.KindLong:
		return stackmap.Long
	case typesys.KindDouble:
		return stackmap.Double
	case typesys.KindNull:
		return stackmap.Null
	}
	return stackmap.Object(m.pool.AddClass(t.InternalName()))
}

func (m *Method) entryState() *state {
	s := &state{uninit: m.ctor}
	for _, v := range m.vars[:m.nparams] {
		s.assigned.set(v.index)
	}
	return s
}

type flowItem struct {
	i int
	s *state
	// merged is set when s was already merged into the label at i.
	merged bool
}

// flow computes the state on entry of every targeted label, checks that
// variables are assigned before use, and computes the maximum stack size.
func (m *Method) flow() error {
	for i := range m.ops {
		o := &m.ops[i]
		o.flag &^= flagVisited
		o.assigned, o.uninit, o.after = nil, false, nil
	}
	for _, l := range m.labels {
		l.in, l.targeted = nil, false
	}
	m.maxStack = 0

	work := []flowItem{{i: m.head, s: m.entryState()}}
	for {
		for len(work) > 0 {
			it := work[len(work)-1]
			work = work[:len(work)-1]
			if err := m.flowFrom(it.i, it.s, it.merged, &work); err != nil {
				return err
			}
		}

		changed := false
		for _, h := range m.handlers {
			var s *state
			m.rangeHas(h, func(o *op) bool {
				if o.flag&flagVisited == 0 {
					return false
				}
				if s == nil {
					s = &state{assigned: o.assigned.clone()}
				} else {
					s.assigned.and(o.assigned)
				}
				s.uninit = s.uninit || o.uninit
				return false
			})
			if s == nil {
				continue
			}
			s.stack = []stackmap.Type{m.vt(h.target.catchType)}
			if m.maxStack < 1 {
				m.maxStack = 1
			}
			h.target.targeted = true
			in, err := h.target.merge(s)
			if err != nil {
				return err
			}
			if in != nil {
				changed = true
				work = append(work, flowItem{i: h.target.op, s: in, merged: true})
			}
		}
		if !changed {
			return nil
		}
	}
}

// merge combines s into the entry state of l, and returns a copy of the new
// entry state if it changed.
func (l *Label) merge(s *state) (*state, error) {
	if l.in == nil {
		l.in = s.clone()
		return l.in.clone(), nil
	}
	if !stackmap.Equal(l.in.stack, s.stack) {
		return nil, errors.Wrapf(stackmap.ErrStackMismatch, "at label op %d: %s vs %s",
			l.op, stackmap.Describe(l.in.stack), stackmap.Describe(s.stack))
	}
	changed := l.in.assigned.and(s.assigned)
	if s.uninit && !l.in.uninit {
		l.in.uninit = true
		changed = true
	}
	if !changed {
		return nil, nil
	}
	return l.in.clone(), nil
}

func (m *Method) jump(l *Label, s *state, work *[]flowItem) error {
	if l.catchType != nil {
		return fmt.Errorf("%w: branch to handler", ErrHandlerEntry)
	}
	l.targeted = true
	in, err := l.merge(s)
	if err != nil {
		return err
	}
	if in != nil {
		*work = append(*work, flowItem{i: l.op, s: in, merged: true})
	}
	return nil
}

func (m *Method) flowFrom(i int, s *state, merged bool, work *[]flowItem) error {
	for first := true; ; first = false {
		if i < 0 {
			return errors.WithStack(errFellOff)
		}
		o := &m.ops[i]

		if o.kind == opLabel && !(first && merged) {
			if o.label.catchType != nil {
				return fmt.Errorf("%w: code falls through", ErrHandlerEntry)
			}
			in, err := o.label.merge(s)
			if err != nil {
				return err
			}
			if in == nil {
				return nil
			}
			s = in
		}

		if o.flag&flagVisited == 0 {
			o.flag |= flagVisited
			o.assigned = s.assigned.clone()
			o.uninit = s.uninit
		} else {
			o.assigned.and(s.assigned)
			o.uninit = o.uninit || s.uninit
		}

		stop, err := m.step(i, s, work)
		if err != nil {
			return err
		}
		if n := slots(s.stack); n > m.maxStack {
			m.maxStack = n
		}
		if stop {
			return nil
		}
		i = o.next
	}
}

// step applies the effect of op i to s, and returns true if the op never
// falls through.
func (m *Method) step(i int, s *state, work *[]flowItem) (bool, error) {
	o := &m.ops[i]
	var err error
	switch o.kind {
	case opInsn:
		if _, ok := stackOps[o.code]; ok {
			s.stack, err = stackOp(s.stack, o.code)
			return false, err
		}
		switch o.code {
		case opcodes.IRETURN, opcodes.LRETURN, opcodes.FRETURN, opcodes.DRETURN, opcodes.ARETURN, opcodes.ATHROW:
			_, err = m.pop(s, 1)
			return true, err
		case opcodes.RETURN:
			return true, nil
		}
		if _, err = m.pop(s, o.pop); err != nil {
			return false, err
		}
	case opPush:
	case opLoad:
		if !s.assigned.has(o.v.index) {
			return false, fmt.Errorf("%w: %s", ErrUnassignedVar, o.v)
		}
		if o.v == m.this && s.uninit {
			s.stack = append(s.stack, stackmap.UninitThis)
			return false, nil
		}
	case opStore:
		if _, err = m.pop(s, 1); err != nil {
			return false, err
		}
		s.assigned.set(o.v.index)
		return false, nil
	case opInc:
		if !s.assigned.has(o.v.index) {
			return false, fmt.Errorf("%w: %s", ErrUnassignedVar, o.v)
		}
		return false, nil
	case opBranch:
		if _, err = m.pop(s, o.pop); err != nil {
			return false, err
		}
		if err = m.jump(o.label, s, work); err != nil {
			return false, err
		}
		if o.code == opcodes.GOTO {
			return true, nil
		}
		o.after = s.clone()
		return false, nil
	case opSwitch:
		if _, err = m.pop(s, 1); err != nil {
			return false, err
		}
		for _, l := range append([]*Label{o.label}, o.sw.targets...) {
			if err = m.jump(l, s, work); err != nil {
				return false, err
			}
		}
		return true, nil
	case opRef:
		if o.code == opcodes.NEW {
			s.stack = append(s.stack, stackmap.Uninitialized(i))
			return false, nil
		}
		popped, err := m.pop(s, o.pop)
		if err != nil {
			return false, err
		}
		if o.flag&flagInit != 0 && len(popped) > 0 {
			m.initialize(s, popped[0])
		}
	case opLabel, opLineNum:
		return false, nil
	default:
		if _, err = m.pop(s, o.pop); err != nil {
			return false, err
		}
	}

	if o.push != nil && o.push.Kind() != typesys.KindVoid {
		s.stack = append(s.stack, m.vt(o.push))
	}
	return false, nil
}

// initialize replaces every occurrence of an uninitialized receiver after
// its constructor was invoked.
func (m *Method) initialize(s *state, receiver stackmap.Type) {
	var init stackmap.Type
	switch receiver.Tag {
	case stackmap.TagUninitThis:
		init = m.vt(m.owner)
		s.uninit = false
	case stackmap.TagUninitialized:
		init = m.vt(m.ops[receiver.Data].push)
	default:
		return
	}
	for i, t := range s.stack {
		if t == receiver {
			s.stack[i] = init
		}
	}
}

func (m *Method) pop(s *state, n int) ([]stackmap.Type, error) {
	if n > len(s.stack) {
		return nil, errors.Wrapf(errStackUnderflow, "popping %d of %s in %s", n, stackmap.Describe(s.stack), m.name)
	}
	popped := append([]stackmap.Type(nil), s.stack[len(s.stack)-n:]...)
	s.stack = s.stack[:len(s.stack)-n]
	return popped, nil
}

func slots(stack []stackmap.Type) int {
	n := 0
	for _, t := range stack {
		n += t.Slots()
	}
	return n
}

// stackOps are the stack manipulation opcodes, described by the number of
// slots they copy and the number of slots the copy is inserted below. Pops
// copy nothing, and remove x slots.
var stackOps = map[opcodes.Opcode]struct{ n, x int }{
	opcodes.POP:     {0, 1},
	opcodes.POP2:    {0, 2},
	opcodes.DUP:     {1, 0},
	opcodes.DUP_X1:  {1, 1},
	opcodes.DUP_X2:  {1, 2},
	opcodes.DUP2:    {2, 0},
	opcodes.DUP2_X1: {2, 1},
	opcodes.DUP2_X2: {2, 2},
	opcodes.SWAP:    {1, 1},
}

// take splits the entries covering exactly n slots off the top of stack.
func take(stack []stackmap.Type, n int) (rest, top []stackmap.Type, ok bool) {
	i, covered := len(stack), 0
	for covered < n && i > 0 {
		i--
		covered += stack[i].Slots()
	}
	if covered != n {
		return nil, nil, false
	}
	return stack[:i:i], stack[i:], true
}

func stackOp(stack []stackmap.Type, code opcodes.Opcode) ([]stackmap.Type, error) {
	effect := stackOps[code]
	bad := errors.Wrapf(errStackUnderflow, "%s on %s", opcodes.Name(code), stackmap.Describe(stack))

	if effect.n == 0 {
		rest, _, ok := take(stack, effect.x)
		if !ok {
			return nil, bad
		}
		return rest, nil
	}

	rest, copied, ok := take(stack, effect.n)
	if !ok {
		return nil, bad
	}
	rest, below, ok := take(rest, effect.x)
	if !ok {
		return nil, bad
	}
	copied = append([]stackmap.Type(nil), copied...)
	below = append([]stackmap.Type(nil), below...)

	ret := append(rest, copied...)
	if code == opcodes.SWAP {
		return append(ret, below...), nil
	}
	ret = append(ret, below...)
	return append(ret, copied...), nil
}
