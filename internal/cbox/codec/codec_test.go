package codec

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func mustEncode(t *testing.T, f Frame) []byte {
	t.Helper()
	b, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return b
}

func TestEncode_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"binary empty payload", Frame{Mode: ModeBinary, MsgID: 1, Command: 5}},
		{"binary payload", Frame{Mode: ModeBinary, MsgID: 0xBEEF, Command: 2, Payload: []byte{1, 0, 7, 0, 0}}},
		{"hex payload", Frame{Mode: ModeHex, MsgID: 42, Command: 3, Payload: []byte{0xA5, 0x3A, 0x0A}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := mustEncode(t, tt.frame)
			got, err := NewReader(bytes.NewReader(wire), 0).ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame() error = %v", err)
			}
			if got.Mode != tt.frame.Mode || got.MsgID != tt.frame.MsgID || got.Command != tt.frame.Command {
				t.Errorf("header = %+v, want %+v", got, tt.frame)
			}
			if !bytes.Equal(got.Payload, tt.frame.Payload) {
				t.Errorf("Payload = %x, want %x", got.Payload, tt.frame.Payload)
			}
		})
	}
}

func TestEncode_HexFraming(t *testing.T) {
	wire := mustEncode(t, Frame{Mode: ModeHex, MsgID: 1, Command: 5})
	if wire[0] != ':' {
		t.Errorf("first byte = %q, want ':'", wire[0])
	}
	if wire[len(wire)-1] != '\n' {
		t.Errorf("last byte = %q, want newline", wire[len(wire)-1])
	}
	// 3 header bytes + 4 CRC bytes, two digits each.
	if got := len(wire) - 2; got != 14 {
		t.Errorf("hex digits = %d, want 14", got)
	}
}

func TestReadFrame_CRCMismatch(t *testing.T) {
	wire := mustEncode(t, Frame{Mode: ModeBinary, MsgID: 0x1234, Command: 1, Payload: []byte{0x0A, 0x00}})
	// Flip one payload bit; sentinel (1) + length (2) + header (3) puts the payload at 6.
	wire[6] ^= 0x01

	f, err := NewReader(bytes.NewReader(wire), 0).ReadFrame()
	if !errors.Is(err, ErrCRCMismatch) {
		t.Fatalf("ReadFrame() error = %v, want ErrCRCMismatch", err)
	}
	if !IsFrameError(err) {
		t.Error("IsFrameError() = false for crc mismatch")
	}
	if f.MsgID != 0x1234 || f.Command != 1 {
		t.Errorf("rejected frame header = %+v, want msg 0x1234 cmd 1", f)
	}
	if f.Payload != nil {
		t.Error("rejected frame carries a payload")
	}
}

func TestReadFrame_ResyncAfterNoise(t *testing.T) {
	var stream bytes.Buffer
	stream.WriteString("garbage\x00\x01")
	stream.Write(mustEncode(t, Frame{Mode: ModeBinary, MsgID: 1, Command: 1}))
	stream.WriteString("\r\n")
	stream.Write(mustEncode(t, Frame{Mode: ModeHex, MsgID: 2, Command: 5}))

	r := NewReader(&stream, 0)
	for _, want := range []uint16{1, 2} {
		f, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() error = %v", err)
		}
		if f.MsgID != want {
			t.Errorf("MsgID = %d, want %d", f.MsgID, want)
		}
	}
	if _, err := r.ReadFrame(); err != io.EOF {
		t.Errorf("ReadFrame() at end error = %v, want io.EOF", err)
	}
}

func TestReadFrame_StraySentinel(t *testing.T) {
	tests := []struct {
		name    string
		garbage []byte
		maxBody int
	}{
		{"between newlines", []byte{'\n', SentinelBinary, '\n'}, 0},
		{"plausible length", []byte{SentinelBinary, 0x0A, 0x00}, 0},
		{"length over limit", []byte{SentinelBinary, 0xFF, 0xFF}, 0},
		{"length under minimum", []byte{SentinelBinary, 0x02, 0x00, 0x01, 0x02}, 0},
		{"length over configured limit", []byte{SentinelBinary, 0x20, 0x00}, 16},
		{"repeated sentinels", []byte{SentinelBinary, SentinelBinary, SentinelBinary}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stream bytes.Buffer
			stream.Write(tt.garbage)
			for id := uint16(1); id <= 3; id++ {
				stream.Write(mustEncode(t, Frame{Mode: ModeBinary, MsgID: id, Command: 1, Payload: []byte{byte(id), 0x00}}))
			}

			r := NewReader(&stream, tt.maxBody)
			for want := uint16(1); want <= 3; want++ {
				f, err := r.ReadFrame()
				if err != nil {
					t.Fatalf("ReadFrame() for msg %d error = %v", want, err)
				}
				if f.MsgID != want || !bytes.Equal(f.Payload, []byte{byte(want), 0x00}) {
					t.Errorf("frame = %+v, want msg %d", f, want)
				}
			}
			if _, err := r.ReadFrame(); err != io.EOF {
				t.Errorf("ReadFrame() at end error = %v, want io.EOF", err)
			}
		})
	}
}

func TestReadFrame_StraySentinelBeforeLateFrame(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()

	frame := mustEncode(t, Frame{Mode: ModeBinary, MsgID: 7, Command: 1})
	go func() {
		// The noise arrives alone; the frame completes the claimed body.
		pw.Write([]byte{SentinelBinary, 0x0A, 0x00}) //nolint:errcheck // reader drains
		pw.Write(frame)                              //nolint:errcheck // reader drains
		pw.Close()
	}()

	f, err := NewReader(pr, 0).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if f.MsgID != 7 {
		t.Errorf("MsgID = %d, want 7", f.MsgID)
	}
}

func TestReadFrame_CRCMismatchThenGood(t *testing.T) {
	bad := mustEncode(t, Frame{Mode: ModeBinary, MsgID: 1, Command: 1, Payload: []byte{0x0A, 0x00}})
	bad[6] ^= 0x01

	var stream bytes.Buffer
	stream.Write(bad)
	stream.Write(mustEncode(t, Frame{Mode: ModeBinary, MsgID: 2, Command: 1}))

	r := NewReader(&stream, 0)
	if f, err := r.ReadFrame(); !errors.Is(err, ErrCRCMismatch) || f.MsgID != 1 {
		t.Fatalf("first ReadFrame() = %+v, %v, want msg 1 ErrCRCMismatch", f, err)
	}
	f, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("second ReadFrame() error = %v", err)
	}
	if f.MsgID != 2 {
		t.Errorf("MsgID = %d, want 2", f.MsgID)
	}
}

func TestReadFrame_BadFrameThenGood(t *testing.T) {
	var stream bytes.Buffer
	stream.WriteString(":zz\n")
	stream.Write(mustEncode(t, Frame{Mode: ModeHex, MsgID: 9, Command: 5}))

	r := NewReader(&stream, 0)
	if _, err := r.ReadFrame(); !errors.Is(err, ErrInvalidHex) {
		t.Fatalf("first ReadFrame() error = %v, want ErrInvalidHex", err)
	}
	f, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("second ReadFrame() error = %v", err)
	}
	if f.MsgID != 9 {
		t.Errorf("MsgID = %d, want 9", f.MsgID)
	}
}

func TestReadFrame_HexWhitespace(t *testing.T) {
	wire := mustEncode(t, Frame{Mode: ModeHex, MsgID: 3, Command: 1, Payload: []byte{0x64, 0x00}})
	digits := strings.TrimSuffix(string(wire[1:]), "\n")

	var spaced strings.Builder
	spaced.WriteByte(':')
	for i := 0; i < len(digits); i += 2 {
		spaced.WriteString(strings.ToUpper(digits[i:i+2]))
		spaced.WriteString(" \t")
	}
	spaced.WriteString("\r\n")

	f, err := NewReader(strings.NewReader(spaced.String()), 0).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if f.MsgID != 3 || !bytes.Equal(f.Payload, []byte{0x64, 0x00}) {
		t.Errorf("frame = %+v", f)
	}
}

func TestReadFrame_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		maxBody int
		wantErr error
	}{
		{"odd hex digits", []byte(":abc\n"), 0, ErrInvalidHex},
		{"hex too short", []byte(":0102\n"), 0, ErrFrameTooShort},
		{"hex too large", []byte(":" + strings.Repeat("00", 20) + "\n"), 8, ErrFrameTooLarge},
		{"truncated binary", []byte{SentinelBinary, 0x10, 0x00, 0x01}, 0, io.ErrUnexpectedEOF},
		{"unterminated hex", []byte(":0102"), 0, io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(tt.input), tt.maxBody).ReadFrame()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ReadFrame() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestChecksum_Castagnoli(t *testing.T) {
	// Standard CRC-32C check value.
	if got := Checksum([]byte("123456789")); got != 0xE3069283 {
		t.Errorf("Checksum() = %08x, want e3069283", got)
	}
}
