package asm

import (
	"go.uber.org/zap"

	"github.com/classforge/classforge/internal/opcodes"
)

// countUses recounts the loads and stores of every variable in the live
// operation list. An increment counts as both.
func (m *Method) countUses() {
	for _, v := range m.vars {
		v.loads, v.stores, v.firstStore = 0, 0, -1
	}
	for i := m.head; i >= 0; i = m.ops[i].next {
		o := &m.ops[i]
		switch o.kind {
		case opLoad:
			o.v.loads++
		case opStore:
			o.v.stores++
			if o.v.firstStore < 0 {
				o.v.firstStore = i
			}
		case opInc:
			o.v.loads++
			o.v.stores++
		}
	}
}

// optimize applies peephole rewrites until none applies:
//
//   - a store immediately followed by the only load of the variable leaves
//     the value on the stack instead,
//   - a store to a variable which is never loaded becomes a pop, or vanishes
//     together with the push or load right before it,
//   - an increment of a variable which is never loaded is dropped,
//   - a goto to the label right after it is dropped,
//   - a conditional branch over a goto is inverted to target the goto's label.
func (m *Method) optimize() {
	rewrites := 0
	for changed := true; changed; {
		changed = false
		m.countUses()

		pp, prev := -1, -1
		for i := m.head; i >= 0; {
			o := &m.ops[i]
			next := o.next

			switch {
			case o.kind == opStore && next >= 0 && m.ops[next].kind == opLoad &&
				m.ops[next].v == o.v && o.v.loads == 1:
				m.unlink(i, next)
				m.unlink(prev, i)
				i = m.ops[next].next
				rewrites++
				changed = true
				continue

			case o.kind == opStore && o.v.loads == 0:
				rewrites++
				changed = true
				if prev >= 0 && pp != unknown && (m.ops[prev].kind == opPush || m.ops[prev].kind == opLoad) {
					m.unlink(prev, i)
					m.unlink(pp, prev)
					i, prev, pp = next, pp, unknown
					continue
				}
				code := opcodes.POP
				if o.v.typ.Slots() == 2 {
					code = opcodes.POP2
				}
				*o = op{kind: opInsn, code: code, flag: o.flag, next: next}

			case o.kind == opInc && o.v.loads == 1,
				o.kind == opBranch && o.code == opcodes.GOTO && m.reaches(next, o.label):
				m.unlink(prev, i)
				i = next
				rewrites++
				changed = true
				continue

			case o.kind == opBranch && o.code != opcodes.GOTO && next >= 0:
				g := &m.ops[next]
				if g.kind == opBranch && g.code == opcodes.GOTO && m.reaches(g.next, o.label) {
					o.code = opcodes.FlipIf(o.code)
					o.label = g.label
					m.unlink(i, next)
					rewrites++
					changed = true
					continue
				}
			}

			pp, prev = prev, i
			i = next
		}
	}
	if rewrites > 0 {
		m.logger.Debug("optimized", zap.String("method", m.name), zap.Int("rewrites", rewrites))
	}
}

// unknown marks a predecessor which the scan lost track of.
const unknown = -2

// reaches returns true if l is positioned at op i, or after it with only
// labels and line numbers in between.
func (m *Method) reaches(i int, l *Label) bool {
	for ; i >= 0; i = m.ops[i].next {
		o := &m.ops[i]
		if o.isCode() {
			return false
		}
		if o.kind == opLabel && o.label == l {
			return true
		}
	}
	return false
}

// assignSlots gives a local variable slot to every parameter, and to every
// other variable still used, in declaration order.
func (m *Method) assignSlots() {
	m.countUses()
	m.slotted = m.slotted[:0]
	slot := 0
	for _, v := range m.vars {
		v.slot = -1
		if !v.param && v.loads+v.stores == 0 {
			continue
		}
		v.slot = slot
		slot += v.typ.Slots()
		m.slotted = append(m.slotted, v)
	}
	m.maxLocals = slot
}
