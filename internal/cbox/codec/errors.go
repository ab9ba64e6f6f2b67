package codec

import "errors"

// Framing errors. All of them describe a single bad frame; the Reader stays
// usable afterwards.
var (
	// ErrCRCMismatch is returned when the trailing checksum does not match
	// the body. The Frame returned alongside it carries the header so the
	// sender can be told which request was dropped.
	ErrCRCMismatch = errors.New("codec: crc mismatch")

	// ErrFrameTooShort is returned when a frame cannot hold a header and CRC.
	ErrFrameTooShort = errors.New("codec: frame too short")

	// ErrInvalidHex is returned when a hex frame holds a non-hex character
	// or an odd number of digits.
	ErrInvalidHex = errors.New("codec: invalid hex frame")

	// ErrFrameTooLarge is returned when a frame exceeds the reader's limit.
	ErrFrameTooLarge = errors.New("codec: frame too large")
)

// IsFrameError reports whether err describes a malformed frame rather than
// a failure of the underlying stream.
func IsFrameError(err error) bool {
	return errors.Is(err, ErrCRCMismatch) ||
		errors.Is(err, ErrFrameTooShort) ||
		errors.Is(err, ErrInvalidHex) ||
		errors.Is(err, ErrFrameTooLarge)
}
