package blocks

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nerrad567/blox-core/internal/cbox"
)

// settings holds the varint fields of a decoded message. Fields of other
// wire types are validated and skipped. Absent fields read as zero, so
// every write replaces all settings.
type settings map[protowire.Number]uint64

// readSettings consumes the rest of in and decodes it. Nothing is applied
// by the caller until this returns successfully.
func readSettings(in *cbox.DataIn) (settings, error) {
	b := in.Rest()
	s := make(settings)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrMalformedSettings, protowire.ParseError(n))
		}
		b = b[n:]

		if typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %w", ErrMalformedSettings, num, protowire.ParseError(n))
			}
			s[num] = v
			b = b[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, fmt.Errorf("%w: field %d: %w", ErrMalformedSettings, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return s, nil
}

func (s settings) uintField(num protowire.Number) uint64 {
	return s[num]
}

func (s settings) sintField(num protowire.Number) (int32, error) {
	d := protowire.DecodeZigZag(s[num])
	if d < math.MinInt32 || d > math.MaxInt32 {
		return 0, fmt.Errorf("%w: field %d", ErrFieldRange, num)
	}
	return int32(d), nil
}

func (s settings) boolField(num protowire.Number) bool {
	return s[num] != 0
}

func (s settings) idField(num protowire.Number) (cbox.ObjectID, error) {
	v := s[num]
	if v > math.MaxUint16 {
		return 0, fmt.Errorf("%w: field %d: id %d", ErrFieldRange, num, v)
	}
	return cbox.ObjectID(v), nil
}

// message builds a settings message. Zero values are omitted, as proto3 does.
type message []byte

func (m message) putUint(num protowire.Number, v uint64) message {
	if v == 0 {
		return m
	}
	m = protowire.AppendTag(m, num, protowire.VarintType)
	return protowire.AppendVarint(m, v)
}

func (m message) putSint(num protowire.Number, v int32) message {
	return m.putUint(num, protowire.EncodeZigZag(int64(v)))
}

func (m message) putBool(num protowire.Number, v bool) message {
	return m.putUint(num, protowire.EncodeBool(v))
}

func (m message) putBytes(num protowire.Number, v []byte) message {
	if len(v) == 0 {
		return m
	}
	m = protowire.AppendTag(m, num, protowire.BytesType)
	return protowire.AppendBytes(m, v)
}

func (m message) writeTo(out *cbox.DataOut) error {
	_, err := out.Write(m)
	return err
}
