package pe

import (
	"encoding/binary"
)

// Reader hands out exactly n bytes or fails. It never returns a short read.
type Reader interface {
	ReadSlice(n int) ([]byte, error)
}

// Writer accepts the whole of p or fails.
type Writer interface {
	WriteSlice(p []byte) error
}

// ByteCursor reads from a byte slice. Slices returned by ReadSlice alias the
// underlying buffer.
type ByteCursor struct {
	data []byte
	pos  int
}

func NewByteCursor(data []byte) *ByteCursor {
	return &ByteCursor{data: data}
}

func (c *ByteCursor) ReadSlice(n int) ([]byte, error) {
	if n < 0 || n > len(c.data)-c.pos {
		return nil, notEnoughData(n)
	}
	p := c.data[c.pos : c.pos+n]
	c.pos += n
	return p, nil
}

// Position returns the offset of the next byte to be read.
func (c *ByteCursor) Position() int { return c.pos }

// SetPosition moves the cursor. pos may equal the length of the buffer.
func (c *ByteCursor) SetPosition(pos int) error {
	if pos < 0 || pos > len(c.data) {
		return notEnoughData(pos - c.pos)
	}
	c.pos = pos
	return nil
}

func (c *ByteCursor) Skip(n int) error {
	_, err := c.ReadSlice(n)
	return err
}

func (c *ByteCursor) Remaining() int { return len(c.data) - c.pos }

// SliceWriter writes into a fixed-size buffer and never grows it.
type SliceWriter struct {
	buf []byte
	pos int
}

func NewSliceWriter(buf []byte) *SliceWriter {
	return &SliceWriter{buf: buf}
}

func (w *SliceWriter) WriteSlice(p []byte) error {
	if len(p) > len(w.buf)-w.pos {
		return notEnoughSpace(len(p))
	}
	w.pos += copy(w.buf[w.pos:], p)
	return nil
}

func (w *SliceWriter) Position() int { return w.pos }

func (w *SliceWriter) SetPosition(pos int) error {
	if pos < 0 || pos > len(w.buf) {
		return notEnoughSpace(pos - w.pos)
	}
	w.pos = pos
	return nil
}

// BufferWriter is a growable sink; WriteSlice never fails.
type BufferWriter struct {
	buf []byte
}

func NewBufferWriter(capacity int) *BufferWriter {
	return &BufferWriter{buf: make([]byte, 0, capacity)}
}

func (w *BufferWriter) WriteSlice(p []byte) error {
	w.buf = append(w.buf, p...)
	return nil
}

func (w *BufferWriter) Bytes() []byte { return w.buf }

func (w *BufferWriter) Len() int { return len(w.buf) }

// PadTo appends zero bytes until the buffer is n bytes long.
func (w *BufferWriter) PadTo(n int) {
	for len(w.buf) < n {
		w.buf = append(w.buf, 0)
	}
}

func ReadUint8(r Reader) (uint8, error) {
	p, err := r.ReadSlice(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func ReadUint16(r Reader) (uint16, error) {
	p, err := r.ReadSlice(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

func ReadUint32(r Reader) (uint32, error) {
	p, err := r.ReadSlice(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

func ReadUint64(r Reader) (uint64, error) {
	p, err := r.ReadSlice(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

func WriteUint8(w Writer, v uint8) error {
	return w.WriteSlice([]byte{v})
}

func WriteUint16(w Writer, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return w.WriteSlice(b[:])
}

func WriteUint32(w Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return w.WriteSlice(b[:])
}

func WriteUint64(w Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return w.WriteSlice(b[:])
}

// decoder reads a sequence of fields and remembers the first failure, so a
// struct codec can read every field and check err once at the end.
type decoder struct {
	r   Reader
	err error
}

func newDecoder(r Reader) *decoder { return &decoder{r: r} }

func (d *decoder) slice(n int) []byte {
	if d.err != nil {
		return nil
	}
	p, err := d.r.ReadSlice(n)
	if err != nil {
		d.err = err
		return nil
	}
	return p
}

func (d *decoder) u8() uint8 {
	if p := d.slice(1); p != nil {
		return p[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if p := d.slice(2); p != nil {
		return binary.LittleEndian.Uint16(p)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if p := d.slice(4); p != nil {
		return binary.LittleEndian.Uint32(p)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if p := d.slice(8); p != nil {
		return binary.LittleEndian.Uint64(p)
	}
	return 0
}

// bytes fills dst with the next len(dst) bytes.
func (d *decoder) bytes(dst []byte) {
	if p := d.slice(len(dst)); p != nil {
		copy(dst, p)
	}
}

type encoder struct {
	w   Writer
	err error
}

func newEncoder(w Writer) *encoder { return &encoder{w: w} }

func (e *encoder) bytes(p []byte) {
	if e.err != nil {
		return
	}
	e.err = e.w.WriteSlice(p)
}

func (e *encoder) u8(v uint8) { e.bytes([]byte{v}) }

func (e *encoder) u16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.bytes(b[:])
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.bytes(b[:])
}

func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.bytes(b[:])
}
