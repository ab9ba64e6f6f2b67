package audit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/blox-core/internal/box"
	"github.com/nerrad567/blox-core/internal/cbox"
)

// DefaultQueueSize is the recorder buffer used by the daemon.
const DefaultQueueSize = 256

// writeTimeout bounds a single insert.
const writeTimeout = 5 * time.Second

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Audited reports whether ev belongs in the trail: mutating commands and
// frames rejected before dispatch.
func Audited(ev box.CommandEvent) bool {
	switch ev.Command {
	case box.CmdWriteObject, box.CmdCreateObject, box.CmdDeleteObject, box.CmdClearObjects:
		return true
	}
	return ev.Status == cbox.StatusCRCError || ev.Status == cbox.StatusInvalidFrame
}

// FromEvent converts a command event into a log entry.
func FromEvent(ev box.CommandEvent) *CommandLog {
	return &CommandLog{
		MsgID:      ev.MsgID,
		Command:    ev.Command.String(),
		ObjectID:   uint16(ev.ObjectID),
		TypeID:     uint16(ev.Type),
		Status:     ev.Status.String(),
		Source:     ev.Source,
		DurationUS: ev.Duration.Microseconds(),
	}
}

// Recorder queues command events and writes them from one goroutine.
//
// Thread Safety:
//   - Record is safe for concurrent use and never blocks.
//   - Run must be called once.
type Recorder struct {
	repo    Repository
	queue   chan *CommandLog
	logger  Logger
	dropped atomic.Uint64
}

// NewRecorder creates a recorder with room for size pending entries.
func NewRecorder(repo Repository, size int) *Recorder {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Recorder{
		repo:   repo,
		queue:  make(chan *CommandLog, size),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger. Must be called before Run.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Record enqueues ev if it is audited. It has the signature of
// box.Box.SetCommandHook. Entries are dropped when the queue is full.
func (r *Recorder) Record(ev box.CommandEvent) {
	if !Audited(ev) {
		return
	}
	entry := FromEvent(ev)
	entry.CreatedAt = time.Now().UTC()

	select {
	case r.queue <- entry:
	default:
		if r.dropped.Add(1) == 1 {
			r.logger.Warn("audit queue full, dropping entries", "command", entry.Command)
		}
	}
}

// Dropped returns the number of entries lost to a full queue.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Run writes queued entries until ctx is cancelled, then writes whatever
// is still queued and returns.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.queue:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(entry *CommandLog) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, entry); err != nil {
		r.logger.Error("audit write failed",
			"command", entry.Command,
			"msg_id", entry.MsgID,
			"error", err,
		)
	}
}
