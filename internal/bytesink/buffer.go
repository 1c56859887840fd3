package bytesink

// Buffer is an append-only byte buffer with big-endian writers, as the class
// file format stores every multi-byte quantity in big-endian order.
//
// The zero value is an empty buffer ready to use.
type Buffer struct {
	b []byte
}

// New returns a Buffer with the given initial capacity.
func New(capacity int) *Buffer {
	return &Buffer{b: make([]byte, 0, capacity)}
}

// Len returns the number of bytes written so far.
func (buf *Buffer) Len() int {
	return len(buf.b)
}

// Bytes returns the written bytes. The slice aliases the buffer until the next
// write or Reset.
func (buf *Buffer) Bytes() []byte {
	return buf.b
}

// Reset empties the buffer, retaining the allocated capacity.
func (buf *Buffer) Reset() {
	buf.b = buf.b[:0]
}

// Truncate discards all but the first n bytes.
func (buf *Buffer) Truncate(n int) {
	buf.b = buf.b[:n]
}

func (buf *Buffer) WriteByte(v byte) error {
	buf.b = append(buf.b, v)
	return nil
}

func (buf *Buffer) Write(p []byte) (int, error) {
	buf.b = append(buf.b, p...)
	return len(p), nil
}

func (buf *Buffer) WriteU1(v int) {
	buf.b = append(buf.b, byte(v))
}

func (buf *Buffer) WriteU2(v int) {
	buf.b = append(buf.b, byte(v>>8), byte(v))
}

func (buf *Buffer) WriteU4(v uint32) {
	buf.b = append(buf.b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (buf *Buffer) WriteU8(v uint64) {
	buf.WriteU4(uint32(v >> 32))
	buf.WriteU4(uint32(v))
}

// PutU2At overwrites two bytes at off, used to patch forward references.
func (buf *Buffer) PutU2At(off int, v int) {
	buf.b[off] = byte(v >> 8)
	buf.b[off+1] = byte(v)
}

// PutU4At overwrites four bytes at off.
func (buf *Buffer) PutU4At(off int, v uint32) {
	buf.b[off] = byte(v >> 24)
	buf.b[off+1] = byte(v >> 16)
	buf.b[off+2] = byte(v >> 8)
	buf.b[off+3] = byte(v)
}

// U2At reads back two bytes at off.
func (buf *Buffer) U2At(off int) int {
	return int(buf.b[off])<<8 | int(buf.b[off+1])
}

// WriteUTF8 writes s in the modified UTF-8 encoding, without a length prefix.
//
// See https://docs.oracle.com/javase/specs/jvms/se11/html/jvms-4.html#jvms-4.4.7
func (buf *Buffer) WriteUTF8(s string) {
	for _, r := range s {
		switch {
		case r >= 0x800 && r <= 0xffff:
			buf.b = append(buf.b, byte(0xe0|(r>>12)), byte(0x80|((r>>6)&0x3f)), byte(0x80|(r&0x3f)))
		case r != 0 && r < 0x80:
			buf.b = append(buf.b, byte(r))
		case r < 0x800:
			buf.b = append(buf.b, byte(0xc0|(r>>6)), byte(0x80|(r&0x3f)))
		default:
			// Supplementary characters are written as a surrogate pair.
			r -= 0x10000
			buf.writeChar(0xd800 + (r >> 10))
			buf.writeChar(0xdc00 + (r & 0x3ff))
		}
	}
}

func (buf *Buffer) writeChar(c rune) {
	buf.b = append(buf.b, byte(0xe0|(c>>12)), byte(0x80|((c>>6)&0x3f)), byte(0x80|(c&0x3f)))
}

// ModifiedUTF8Len returns the number of bytes WriteUTF8 produces for s.
func ModifiedUTF8Len(s string) int {
	n := 0
	for _, r := range s {
		switch {
		case r != 0 && r < 0x80:
			n++
		case r < 0x800:
			n += 2
		case r <= 0xffff:
			n += 3
		default:
			n += 6
		}
	}
	return n
}
