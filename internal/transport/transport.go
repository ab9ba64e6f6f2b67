package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/blox-core/internal/box"
	"github.com/nerrad567/blox-core/internal/cbox/codec"
)

// submitTimeout bounds how long a transport waits for the loop to answer.
const submitTimeout = 10 * time.Second

// Submitter executes frames. *box.Loop satisfies it.
type Submitter interface {
	Submit(ctx context.Context, frame codec.Frame, frameErr error) (codec.Frame, error)
}

// Snapshotter runs a function on the goroutine that owns the box.
// *box.Loop satisfies it.
type Snapshotter interface {
	Do(ctx context.Context, fn func(*box.Box)) error
}

// Logger defines the logging interface used by the transports.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// exchange runs one read result through sub and returns the encoded reply.
// readErr must be nil or a framing error.
func exchange(ctx context.Context, sub Submitter, frame codec.Frame, readErr error) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	reply, err := sub.Submit(ctx, frame, readErr)
	if err != nil {
		return nil, fmt.Errorf("submitting frame %d: %w", frame.MsgID, err)
	}
	out, err := codec.Encode(reply)
	if err != nil {
		return nil, fmt.Errorf("encoding reply %d: %w", reply.MsgID, err)
	}
	return out, nil
}
