package box

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/blox-core/internal/cbox"
	"github.com/nerrad567/blox-core/internal/cbox/codec"
)

// Loop defaults.
const (
	DefaultInterval  = 10 * time.Millisecond
	DefaultQueueSize = 32
)

// LoopConfig configures a Loop.
type LoopConfig struct {
	// Interval between update passes. Zero means DefaultInterval.
	Interval time.Duration

	// QueueSize bounds the pending requests and jobs. Zero means
	// DefaultQueueSize.
	QueueSize int
}

type request struct {
	ctx      context.Context
	frame    codec.Frame
	frameErr error
	reply    chan codec.Frame
}

type job struct {
	fn   func(*Box)
	done chan struct{}
}

// Loop is the single goroutine that owns a Box. Requests from transports
// and jobs from other components are marshalled into it, so commands and
// update passes never interleave.
//
// Thread Safety:
//   - Submit, Do and Now are safe for concurrent use.
//   - Run must be called exactly once.
type Loop struct {
	box      *Box
	interval time.Duration
	start    time.Time

	requests chan request
	jobs     chan job

	onUpdate func(cbox.Tick, UpdateStats)

	stopped  chan struct{}
	stopOnce sync.Once
}

// NewLoop creates a loop for b. The tick clock starts now.
func NewLoop(b *Box, cfg LoopConfig) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Loop{
		box:      b,
		interval: cfg.Interval,
		start:    time.Now(),
		requests: make(chan request, cfg.QueueSize),
		jobs:     make(chan job, cfg.QueueSize),
		stopped:  make(chan struct{}),
	}
}

// SetOnUpdate registers fn to be called after every update pass, on the
// loop goroutine. It must be set before Run.
func (l *Loop) SetOnUpdate(fn func(now cbox.Tick, stats UpdateStats)) {
	l.onUpdate = fn
}

// Now returns milliseconds since the loop was created.
func (l *Loop) Now() cbox.Tick {
	return cbox.Tick(time.Since(l.start).Milliseconds())
}

// Run drives update passes and serves requests until ctx is cancelled.
//
// Returns:
//   - error: ctx.Err() once the loop has stopped
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.tick()
	for {
		select {
		case <-ctx.Done():
			l.box.logger.Info("control loop stopped")
			return ctx.Err()

		case <-ticker.C:
			l.tick()

		case req := <-l.requests:
			req.reply <- l.serve(req)

		case j := <-l.jobs:
			j.fn(l.box)
			close(j.done)
		}
	}
}

func (l *Loop) tick() {
	now := l.Now()
	stats := l.box.Update(now)
	if l.onUpdate != nil {
		l.onUpdate(now, stats)
	}
}

// serve runs one request. The command is allowed to finish even if the
// submitter gives up, so the context passed on keeps only its values.
func (l *Loop) serve(req request) codec.Frame {
	ctx := context.WithoutCancel(req.ctx)
	if req.frameErr != nil {
		return l.box.RejectFrame(ctx, req.frame, req.frameErr)
	}
	return l.box.Dispatch(ctx, req.frame)
}

func (l *Loop) stop() {
	l.stopOnce.Do(func() { close(l.stopped) })
}

// Submit hands a frame to the loop and waits for its reply. A non-nil
// frameErr marks a frame the codec rejected; the reply is then a rejection
// built by Box.RejectFrame.
//
// Parameters:
//   - ctx: Bounds the wait; a command already started still completes
//   - frame: The decoded frame, or the header recovered from a bad one
//   - frameErr: The codec error for frame, if any
//
// Returns:
//   - codec.Frame: The reply to write back
//   - error: ctx.Err() or ErrLoopStopped
func (l *Loop) Submit(ctx context.Context, frame codec.Frame, frameErr error) (codec.Frame, error) {
	req := request{ctx: ctx, frame: frame, frameErr: frameErr, reply: make(chan codec.Frame, 1)}

	select {
	case l.requests <- req:
	case <-ctx.Done():
		return codec.Frame{}, ctx.Err()
	case <-l.stopped:
		return codec.Frame{}, ErrLoopStopped
	}

	select {
	case reply := <-req.reply:
		return reply, nil
	case <-ctx.Done():
		return codec.Frame{}, ctx.Err()
	case <-l.stopped:
		return codec.Frame{}, ErrLoopStopped
	}
}

// Do runs fn on the loop goroutine and waits for it to return. fn may read
// and modify the box freely but must not block.
func (l *Loop) Do(ctx context.Context, fn func(*Box)) error {
	j := job{fn: fn, done: make(chan struct{})}

	select {
	case l.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrLoopStopped
	}

	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrLoopStopped
	}
}
