package codec

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"math"
)

// Frame sentinels.
const (
	// SentinelBinary starts a length-prefixed binary frame.
	SentinelBinary byte = 0xA5

	// SentinelHex starts a newline-terminated hex frame.
	SentinelHex byte = ':'
)

// Body layout.
const (
	headerSize = 3 // msg id (2) + command (1)
	crcSize    = 4

	// MinBodySize is the smallest valid body: header plus CRC.
	MinBodySize = headerSize + crcSize

	// DefaultMaxBody bounds the body (header, payload and CRC) a Reader accepts.
	DefaultMaxBody = 4096
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Mode is the framing a frame arrived in.
type Mode uint8

// Framing modes.
const (
	ModeBinary Mode = iota
	ModeHex
)

// String returns "binary" or "hex".
func (m Mode) String() string {
	if m == ModeHex {
		return "hex"
	}
	return "binary"
}

// Frame is one decoded request or reply.
type Frame struct {
	// Mode is the framing the frame was received in, and the framing its
	// reply is written in.
	Mode Mode

	// MsgID correlates a reply with its request.
	MsgID uint16

	// Command is the opcode. Replies echo the request's opcode.
	Command uint8

	// Payload is everything between the header and the CRC.
	Payload []byte
}

// Checksum returns the CRC-32C of body.
func Checksum(body []byte) uint32 {
	return crc32.Checksum(body, castagnoli)
}

// EncodeBody serialises the header, payload and trailing CRC.
func EncodeBody(f Frame) []byte {
	body := make([]byte, 0, headerSize+len(f.Payload)+crcSize)
	body = binary.LittleEndian.AppendUint16(body, f.MsgID)
	body = append(body, f.Command)
	body = append(body, f.Payload...)
	return binary.LittleEndian.AppendUint32(body, Checksum(body))
}

// DecodeBody parses a body including its CRC.
//
// On ErrCRCMismatch the returned Frame still carries MsgID and Command so a
// rejection can be addressed to the right request; the payload is dropped.
//
// Parameters:
//   - raw: Header, payload and CRC
//   - mode: Framing the body arrived in
//
// Returns:
//   - Frame: Decoded frame; Payload aliases raw
//   - error: ErrFrameTooShort or ErrCRCMismatch
func DecodeBody(raw []byte, mode Mode) (Frame, error) {
	if len(raw) < MinBodySize {
		return Frame{Mode: mode}, fmt.Errorf("%w: %d bytes, need at least %d", ErrFrameTooShort, len(raw), MinBodySize)
	}

	f := Frame{
		Mode:    mode,
		MsgID:   binary.LittleEndian.Uint16(raw[0:2]),
		Command: raw[2],
	}

	split := len(raw) - crcSize
	want := binary.LittleEndian.Uint32(raw[split:])
	if got := Checksum(raw[:split]); got != want {
		return f, fmt.Errorf("%w: got %08x, frame says %08x", ErrCRCMismatch, got, want)
	}

	f.Payload = raw[headerSize:split]
	return f, nil
}

// Encode serialises a frame in its own framing mode, sentinel included.
//
// Returns:
//   - []byte: Wire bytes
//   - error: ErrFrameTooLarge if a binary body overflows its length prefix
func Encode(f Frame) ([]byte, error) {
	body := EncodeBody(f)

	if f.Mode == ModeHex {
		out := make([]byte, 0, 2+hex.EncodedLen(len(body)))
		out = append(out, SentinelHex)
		out = hex.AppendEncode(out, body)
		return append(out, '\n'), nil
	}

	if len(body) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}
	out := make([]byte, 0, 3+len(body))
	out = append(out, SentinelBinary)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(body)))
	return append(out, body...), nil
}
