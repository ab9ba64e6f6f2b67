package transport

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/blox-core/internal/blocks"
	"github.com/nerrad567/blox-core/internal/box"
	"github.com/nerrad567/blox-core/internal/cbox"
	"github.com/nerrad567/blox-core/internal/cbox/codec"
	"github.com/nerrad567/blox-core/internal/storage"
)

// startLoop runs a box with the system objects and a memory store.
func startLoop(t *testing.T) *box.Loop {
	t.Helper()
	reg := cbox.NewRegistry()
	blocks.Register(reg)
	objects := cbox.NewContainer(reg, cbox.WithStartID(100))
	b := box.New(objects, storage.NewMemoryStore())
	for _, so := range blocks.SystemObjects([]byte{0x01}, "test", b.SetActiveGroups) {
		if err := b.AddSystemObject(so.ID, so.Object); err != nil {
			t.Fatalf("AddSystemObject() error = %v", err)
		}
	}

	loop := box.NewLoop(b, box.LoopConfig{Interval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx) //nolint:errcheck // always ctx.Err()
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop
}

func encode(t *testing.T, f codec.Frame) []byte {
	t.Helper()
	out, err := codec.Encode(f)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return out
}

func ping(mode codec.Mode, msgID uint16) codec.Frame {
	return codec.Frame{Mode: mode, MsgID: msgID, Command: uint8(box.CmdNone)}
}

func createMockPins(msgID uint16, id cbox.ObjectID) codec.Frame {
	out := cbox.NewDataOut()
	out.WriteU16(uint16(id))
	out.WriteU8(0x01)
	out.WriteU16(uint16(blocks.TypeMockPins))
	out.WriteBlob(nil) //nolint:errcheck // empty blob
	return codec.Frame{MsgID: msgID, Command: uint8(box.CmdCreateObject), Payload: out.Bytes()}
}

func deleteObject(msgID uint16, id cbox.ObjectID) codec.Frame {
	out := cbox.NewDataOut()
	out.WriteU16(uint16(id))
	return codec.Frame{MsgID: msgID, Command: uint8(box.CmdDeleteObject), Payload: out.Bytes()}
}

// corrupt encodes f and flips a CRC bit.
func corrupt(t *testing.T, f codec.Frame) []byte {
	t.Helper()
	raw := encode(t, f)
	raw[len(raw)-1] ^= 0x01
	return raw
}

func status(t *testing.T, f codec.Frame) cbox.Status {
	t.Helper()
	if len(f.Payload) == 0 {
		t.Fatalf("reply %d has no status", f.MsgID)
	}
	return cbox.Status(f.Payload[0])
}
