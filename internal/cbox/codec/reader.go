package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Reader extracts frames from a byte stream.
//
// Thread Safety:
//   - A Reader must be used by a single goroutine.
type Reader struct {
	r       *bufio.Reader
	maxBody int
	line    []byte
}

// NewReader returns a Reader over r. maxBody bounds the body (header,
// payload and CRC); values below MinBodySize select DefaultMaxBody.
func NewReader(r io.Reader, maxBody int) *Reader {
	if maxBody < MinBodySize {
		maxBody = DefaultMaxBody
	}
	return &Reader{
		// Length prefix plus the largest body, so a whole binary frame
		// can be inspected before it is consumed.
		r:       bufio.NewReaderSize(r, maxBody+3),
		maxBody: maxBody,
	}
}

// ReadFrame returns the next frame.
//
// Bytes outside a frame are skipped. A binary sentinel followed by a length
// outside [MinBodySize, maxBody], or whose claimed body overlaps the start
// of a valid buffered frame, is noise: only the sentinel is
// dropped and scanning resumes at the next byte. A malformed frame yields a
// framing error (see IsFrameError) and the Reader continues after it; the
// Frame returned with ErrCRCMismatch carries the header of the rejected
// request. Any other error comes from the underlying stream, and io.EOF
// means the stream ended between frames.
func (r *Reader) ReadFrame() (Frame, error) {
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		switch b {
		case SentinelBinary:
			f, noise, err := r.readBinary()
			if noise {
				continue
			}
			return f, err
		case SentinelHex:
			return r.readHex()
		}
	}
}

// readBinary reads the frame after a binary sentinel. Nothing past the
// sentinel is consumed unless a frame is returned, so noise reports leave
// the stream positioned on the byte after the sentinel.
func (r *Reader) readBinary() (f Frame, noise bool, err error) {
	size, err := r.r.Peek(2)
	if err != nil {
		return Frame{}, false, unexpectedEOF(err)
	}
	n := int(binary.LittleEndian.Uint16(size))
	if n < MinBodySize || n > r.maxBody {
		return Frame{}, true, nil
	}

	// Do not block on a body that may never arrive when a frame is
	// already waiting behind this sentinel.
	if r.r.Buffered() < 2+n && r.frameWithin(2+n) {
		return Frame{}, true, nil
	}

	buf, err := r.r.Peek(2 + n)
	if err != nil {
		if r.frameWithin(2 + n) {
			return Frame{}, true, nil
		}
		return Frame{}, false, unexpectedEOF(err)
	}

	f, err = DecodeBody(buf[2:], ModeBinary)
	if errors.Is(err, ErrCRCMismatch) && r.frameWithin(2+n) {
		return Frame{}, true, nil
	}
	f.Payload = bytes.Clone(f.Payload)
	if _, derr := r.r.Discard(2 + n); derr != nil {
		return Frame{}, false, derr
	}
	return f, false, err
}

// frameWithin reports whether a complete, valid frame is buffered starting
// within the first limit bytes, that is inside the extent claimed by the
// current length prefix.
func (r *Reader) frameWithin(limit int) bool {
	buf, _ := r.r.Peek(r.r.Buffered())
	for i, b := range buf[:min(limit, len(buf))] {
		switch b {
		case SentinelBinary:
			if validBinaryAt(buf[i+1:], r.maxBody) {
				return true
			}
		case SentinelHex:
			if validHexAt(buf[i+1:], r.maxBody) {
				return true
			}
		}
	}
	return false
}

func validBinaryAt(buf []byte, maxBody int) bool {
	if len(buf) < 2 {
		return false
	}
	n := int(binary.LittleEndian.Uint16(buf))
	if n < MinBodySize || n > maxBody || len(buf) < 2+n {
		return false
	}
	_, err := DecodeBody(buf[2:2+n], ModeBinary)
	return err == nil
}

func validHexAt(buf []byte, maxBody int) bool {
	end := bytes.IndexByte(buf, '\n')
	if end < 0 {
		return false
	}
	digits := make([]byte, 0, end)
	for _, b := range buf[:end] {
		switch b {
		case ' ', '\t', '\r':
			continue
		}
		digits = append(digits, b)
	}
	if len(digits)%2 != 0 || len(digits) > 2*maxBody {
		return false
	}
	raw := make([]byte, len(digits)/2)
	if _, err := hex.Decode(raw, digits); err != nil {
		return false
	}
	_, err := DecodeBody(raw, ModeHex)
	return err == nil
}

func (r *Reader) readHex() (Frame, error) {
	limit := 2 * r.maxBody
	r.line = r.line[:0]
	overflow := false

	for {
		b, err := r.r.ReadByte()
		if err != nil {
			return Frame{}, unexpectedEOF(err)
		}
		if b == '\n' {
			break
		}
		switch b {
		case ' ', '\t', '\r':
			continue
		}
		if len(r.line) >= limit {
			overflow = true
			continue
		}
		r.line = append(r.line, b)
	}

	if overflow {
		return Frame{Mode: ModeHex}, fmt.Errorf("%w: more than %d hex digits", ErrFrameTooLarge, limit)
	}
	if len(r.line)%2 != 0 {
		return Frame{Mode: ModeHex}, fmt.Errorf("%w: odd digit count %d", ErrInvalidHex, len(r.line))
	}

	raw := make([]byte, len(r.line)/2)
	if _, err := hex.Decode(raw, r.line); err != nil {
		return Frame{Mode: ModeHex}, fmt.Errorf("%w: %w", ErrInvalidHex, err)
	}
	return DecodeBody(raw, ModeHex)
}

// unexpectedEOF turns a clean EOF inside a frame into io.ErrUnexpectedEOF.
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
