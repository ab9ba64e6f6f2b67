package cbox

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DataIn is a bounded, forward-only reader over a byte slice.
//
// Multi-byte integers are little-endian. A DataIn never reads past the end
// of its slice; short reads return ErrShortRead and leave the position
// unchanged.
type DataIn struct {
	buf []byte
	pos int
}

// NewDataIn returns a reader over b. The slice is not copied.
func NewDataIn(b []byte) *DataIn {
	return &DataIn{buf: b}
}

// Len returns the number of unread bytes.
func (in *DataIn) Len() int {
	return len(in.buf) - in.pos
}

// Consumed returns the number of bytes read so far.
func (in *DataIn) Consumed() int {
	return in.pos
}

// ReadByte reads a single byte. It implements io.ByteReader.
func (in *DataIn) ReadByte() (byte, error) {
	if in.Len() < 1 {
		return 0, ErrShortRead
	}
	b := in.buf[in.pos]
	in.pos++
	return b, nil
}

// ReadU8 reads an unsigned 8-bit value.
func (in *DataIn) ReadU8() (uint8, error) {
	return in.ReadByte()
}

// ReadU16 reads a little-endian unsigned 16-bit value.
func (in *DataIn) ReadU16() (uint16, error) {
	b, err := in.Next(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian unsigned 32-bit value.
func (in *DataIn) ReadU32() (uint32, error) {
	b, err := in.Next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Next returns the next n bytes and advances past them. The returned slice
// aliases the underlying buffer.
func (in *DataIn) Next(n int) ([]byte, error) {
	if n < 0 || in.Len() < n {
		return nil, ErrShortRead
	}
	b := in.buf[in.pos : in.pos+n]
	in.pos += n
	return b, nil
}

// Sub carves the next n bytes into their own reader and advances this
// reader past them. Whatever the sub-reader leaves unread is still
// accounted as consumed here.
func (in *DataIn) Sub(n int) (*DataIn, error) {
	b, err := in.Next(n)
	if err != nil {
		return nil, err
	}
	return NewDataIn(b), nil
}

// ReadBlob reads a u16 length prefix followed by that many bytes and returns
// them as a sub-reader.
func (in *DataIn) ReadBlob() (*DataIn, error) {
	n, err := in.ReadU16()
	if err != nil {
		return nil, err
	}
	sub, err := in.Sub(int(n))
	if err != nil {
		in.pos -= 2
		return nil, err
	}
	return sub, nil
}

// Rest returns all unread bytes and marks them consumed.
func (in *DataIn) Rest() []byte {
	b := in.buf[in.pos:]
	in.pos = len(in.buf)
	return b
}

// Drain discards all unread bytes and returns how many were discarded.
func (in *DataIn) Drain() int {
	n := in.Len()
	in.pos = len(in.buf)
	return n
}

// DataOut is an append-only byte sink. Multi-byte integers are little-endian.
type DataOut struct {
	buf []byte
}

// NewDataOut returns an empty sink.
func NewDataOut() *DataOut {
	return &DataOut{}
}

// Write appends p. It implements io.Writer and never fails.
func (out *DataOut) Write(p []byte) (int, error) {
	out.buf = append(out.buf, p...)
	return len(p), nil
}

// WriteByte appends a single byte. It implements io.ByteWriter.
func (out *DataOut) WriteByte(b byte) error {
	out.buf = append(out.buf, b)
	return nil
}

// WriteU8 appends an unsigned 8-bit value.
func (out *DataOut) WriteU8(v uint8) {
	out.buf = append(out.buf, v)
}

// WriteU16 appends a little-endian unsigned 16-bit value.
func (out *DataOut) WriteU16(v uint16) {
	out.buf = binary.LittleEndian.AppendUint16(out.buf, v)
}

// WriteU32 appends a little-endian unsigned 32-bit value.
func (out *DataOut) WriteU32(v uint32) {
	out.buf = binary.LittleEndian.AppendUint32(out.buf, v)
}

// WriteBlob appends a u16 length prefix followed by p.
func (out *DataOut) WriteBlob(p []byte) error {
	if len(p) > math.MaxUint16 {
		return fmt.Errorf("%w: %d bytes", ErrBlobTooLarge, len(p))
	}
	out.WriteU16(uint16(len(p)))
	out.buf = append(out.buf, p...)
	return nil
}

// Bytes returns the accumulated bytes. The slice aliases the sink's buffer
// until the next write.
func (out *DataOut) Bytes() []byte {
	return out.buf
}

// Len returns the number of bytes written.
func (out *DataOut) Len() int {
	return len(out.buf)
}

// Reset empties the sink while keeping its buffer.
func (out *DataOut) Reset() {
	out.buf = out.buf[:0]
}
