// Package codec frames controller commands and replies on a byte stream.
//
// Every message has the same body:
//
//	Byte 0-1: message ID (little-endian), echoed in the reply
//	Byte 2:   command opcode
//	Byte 3+:  payload
//	Last 4:   CRC-32C over all preceding body bytes (little-endian)
//
// The body travels in one of two framings, chosen per frame by its first
// byte. Replies always use the framing of the request they answer.
//
//   - Binary: 0xA5, a u16 length (body plus CRC), then the raw bytes
//   - Hex: ':' followed by the body as hex digits, terminated by '\n'.
//     Spaces, tabs and a trailing '\r' are ignored.
//
// Bytes that start neither framing are skipped, which lets a reader resync
// after line noise or a partial frame.
package codec
