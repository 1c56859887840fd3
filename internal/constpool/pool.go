// Package constpool implements the deduplicating constant pool of a class file.
package constpool

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/classforge/classforge/internal/bytesink"
)

// Tag identifies the kind of a constant pool entry.
//
// See https://docs.oracle.com/javase/specs/jvms/se11/html/jvms-4.html#jvms-4.4
type Tag byte

const (
	TagUTF8            Tag = 1
	TagInteger         Tag = 3
	TagFloat           Tag = 4
	TagLong            Tag = 5
	TagDouble          Tag = 6
	TagClass           Tag = 7
	TagString          Tag = 8
	TagField           Tag = 9
	TagMethod          Tag = 10
	TagInterfaceMethod Tag = 11
	TagNameAndType     Tag = 12
	TagMethodHandle    Tag = 15
	TagMethodType      Tag = 16
	TagDynamic         Tag = 17
	TagInvokeDynamic   Tag = 18
)

// Method handle reference kinds.
const (
	RefGetField         = 1
	RefGetStatic        = 2
	RefPutField         = 3
	RefPutStatic        = 4
	RefInvokeVirtual    = 5
	RefInvokeStatic     = 6
	RefInvokeSpecial    = 7
	RefNewInvokeSpecial = 8
	RefInvokeInterface  = 9
)

// MaxSize is the largest constant_pool_count a class file can declare.
const MaxSize = 65535

var (
	ErrTooManyConstants = errors.New("too many constants")
	ErrStringTooLong    = errors.New("constant string too long")
)

// entry is also the deduplication key: two entries are the same constant
// exactly when their fields are equal. References to other entries are by
// index, which is sound because the referenced entries are deduplicated too.
type entry struct {
	tag  Tag
	str  string
	num  uint64
	a, b int
}

// Pool maps constants to stable indexes, in insertion order.
//
// A Pool is owned by a single class builder and is not safe for concurrent
// use.
type Pool struct {
	entries []entry
	// at holds the index assigned to each entry.
	at      []int
	indexes map[entry]int
	// size is the next free index. Index zero is never assigned.
	size       int
	frozen     bool
	bootstraps bootstraps
}

func New() *Pool {
	return &Pool{indexes: map[entry]int{}, size: 1}
}

// Size returns the constant_pool_count: one more than the highest index
// assigned so far.
func (p *Pool) Size() int {
	return p.size
}

// Freeze makes the pool read-only. Adding a new constant afterwards panics.
func (p *Pool) Freeze() {
	p.frozen = true
}

func (p *Pool) add(e entry) int {
	if ix, ok := p.indexes[e]; ok {
		return ix
	}
	if p.frozen {
		panic(fmt.Sprintf("BUG: constant added to frozen pool: tag %d", e.tag))
	}
	ix := p.size
	p.indexes[e] = ix
	p.entries = append(p.entries, e)
	p.at = append(p.at, ix)
	if e.tag == TagLong || e.tag == TagDouble {
		p.size += 2
	} else {
		p.size++
	}
	return ix
}

func (p *Pool) AddUTF8(s string) int {
	return p.add(entry{tag: TagUTF8, str: s})
}

func (p *Pool) AddInt(v int32) int {
	return p.add(entry{tag: TagInteger, num: uint64(uint32(v))})
}

// AddFloat deduplicates on the bit pattern, so -0.0 and 0.0 are distinct.
func (p *Pool) AddFloat(v float32) int {
	return p.add(entry{tag: TagFloat, num: uint64(math.Float32bits(v))})
}

func (p *Pool) AddLong(v int64) int {
	return p.add(entry{tag: TagLong, num: uint64(v)})
}

// AddDouble deduplicates on the bit pattern, so -0.0 and 0.0 are distinct.
func (p *Pool) AddDouble(v float64) int {
	return p.add(entry{tag: TagDouble, num: math.Float64bits(v)})
}

// AddClass adds a class reference. The name is in internal form, for example
// "java/lang/String" or "[I".
func (p *Pool) AddClass(internalName string) int {
	return p.add(entry{tag: TagClass, a: p.AddUTF8(internalName)})
}

func (p *Pool) AddString(s string) int {
	return p.add(entry{tag: TagString, a: p.AddUTF8(s)})
}

func (p *Pool) AddMethodType(descriptor string) int {
	return p.add(entry{tag: TagMethodType, a: p.AddUTF8(descriptor)})
}

func (p *Pool) AddNameAndType(name, descriptor string) int {
	return p.add(entry{tag: TagNameAndType, a: p.AddUTF8(name), b: p.AddUTF8(descriptor)})
}

func (p *Pool) AddField(owner, name, descriptor string) int {
	return p.addRef(TagField, owner, name, descriptor)
}

func (p *Pool) AddMethod(owner, name, descriptor string) int {
	return p.addRef(TagMethod, owner, name, descriptor)
}

func (p *Pool) AddInterfaceMethod(owner, name, descriptor string) int {
	return p.addRef(TagInterfaceMethod, owner, name, descriptor)
}

func (p *Pool) addRef(tag Tag, owner, name, descriptor string) int {
	return p.add(entry{tag: tag, a: p.AddClass(owner), b: p.AddNameAndType(name, descriptor)})
}

// AddMethodHandle adds a handle of the given reference kind to a field or
// method reference entry.
func (p *Pool) AddMethodHandle(kind int, ref int) int {
	return p.add(entry{tag: TagMethodHandle, num: uint64(kind), a: ref})
}

// AddDynamic adds a dynamically-computed constant. The bootstrap index is part
// of the identity of the entry.
func (p *Pool) AddDynamic(bootstrap int, name, descriptor string) int {
	return p.add(entry{tag: TagDynamic, a: bootstrap, b: p.AddNameAndType(name, descriptor)})
}

// AddInvokeDynamic adds a dynamically-computed call site.
func (p *Pool) AddInvokeDynamic(bootstrap int, name, descriptor string) int {
	return p.add(entry{tag: TagInvokeDynamic, a: bootstrap, b: p.AddNameAndType(name, descriptor)})
}

// Tag returns the tag of the entry at index ix, or zero if there is none.
func (p *Pool) Tag(ix int) Tag {
	if e, ok := p.lookup(ix); ok {
		return e.tag
	}
	return 0
}

// UTF8 returns the text of a Utf8 entry, or the name of a Class entry.
func (p *Pool) UTF8(ix int) (string, bool) {
	e, ok := p.lookup(ix)
	if !ok {
		return "", false
	}
	switch e.tag {
	case TagUTF8:
		return e.str, true
	case TagClass, TagString, TagMethodType:
		return p.UTF8(e.a)
	}
	return "", false
}

func (p *Pool) lookup(ix int) (entry, bool) {
	i := sort.SearchInts(p.at, ix)
	if i < len(p.at) && p.at[i] == ix {
		return p.entries[i], true
	}
	return entry{}, false
}

// WriteTo writes constant_pool_count followed by every entry.
func (p *Pool) WriteTo(buf *bytesink.Buffer) error {
	if p.size > MaxSize {
		return fmt.Errorf("%w: %d", ErrTooManyConstants, p.size)
	}
	buf.WriteU2(p.size)
	for _, e := range p.entries {
		buf.WriteU1(int(e.tag))
		switch e.tag {
		case TagUTF8:
			n := bytesink.ModifiedUTF8Len(e.str)
			if n > 65535 {
				return fmt.Errorf("%w: %d bytes", ErrStringTooLong, n)
			}
			buf.WriteU2(n)
			buf.WriteUTF8(e.str)
		case TagInteger, TagFloat:
			buf.WriteU4(uint32(e.num))
		case TagLong, TagDouble:
			buf.WriteU8(e.num)
		case TagClass, TagString, TagMethodType:
			buf.WriteU2(e.a)
		case TagField, TagMethod, TagInterfaceMethod, TagNameAndType, TagDynamic, TagInvokeDynamic:
			buf.WriteU2(e.a)
			buf.WriteU2(e.b)
		case TagMethodHandle:
			buf.WriteU1(int(e.num))
			buf.WriteU2(e.a)
		default:
			panic(fmt.Sprintf("BUG: unknown constant tag %d", e.tag))
		}
	}
	return nil
}
