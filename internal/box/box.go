package box

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/blox-core/internal/cbox"
	"github.com/nerrad567/blox-core/internal/storage"
)

// Logger defines the logging interface used by the Box and Loop.
// This allows for dependency injection and easier testing.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CommandEvent describes one handled frame. It is passed to the command
// hook after the reply has been built.
type CommandEvent struct {
	Command  Command
	MsgID    uint16
	ObjectID cbox.ObjectID
	Type     cbox.TypeID
	Status   cbox.Status
	Err      error
	Duration time.Duration
	Source   string
}

// Box executes commands against a container and its persistence store.
//
// Thread Safety:
//   - A Box is not safe for concurrent use. Run it from a Loop.
type Box struct {
	objects *cbox.Container
	store   storage.Store
	logger  Logger
	active  cbox.GroupMask
	hook    func(CommandEvent)
}

// New creates a Box over objects and store. The active group mask starts
// at cbox.DefaultActiveGroups.
func New(objects *cbox.Container, store storage.Store) *Box {
	return &Box{
		objects: objects,
		store:   store,
		logger:  noopLogger{},
		active:  cbox.DefaultActiveGroups,
	}
}

// SetLogger sets the logger for the box.
func (b *Box) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.logger = logger
}

// SetCommandHook registers fn to be called for every handled frame. fn runs
// on the loop goroutine and must not block.
func (b *Box) SetCommandHook(fn func(CommandEvent)) {
	b.hook = fn
}

// Objects returns the container.
func (b *Box) Objects() *cbox.Container { return b.objects }

// Store returns the persistence store.
func (b *Box) Store() storage.Store { return b.store }

// ActiveGroups returns the active group mask. The system group is always
// included.
func (b *Box) ActiveGroups() cbox.GroupMask { return b.active | cbox.SystemGroup }

// SetActiveGroups replaces the active group mask. The Groups system object
// calls it when written.
func (b *Box) SetActiveGroups(mask cbox.GroupMask) {
	if mask|cbox.SystemGroup != b.active|cbox.SystemGroup {
		b.logger.Info("active groups changed", "from", fmt.Sprintf("%#02x", b.active), "to", fmt.Sprintf("%#02x", mask))
	}
	b.active = mask | cbox.SystemGroup
}

// AddSystemObject places obj at a fixed ID in the system group.
func (b *Box) AddSystemObject(id cbox.ObjectID, obj cbox.Object) error {
	if !b.objects.IsSystem(id) {
		return fmt.Errorf("%w: %d is outside the system range", cbox.ErrInvalidObjectID, id)
	}
	return b.objects.Add(id, cbox.SystemGroup, obj)
}

// persist saves the persisted settings of the object at id.
func (b *Box) persist(ctx context.Context, id cbox.ObjectID) error {
	entry, ok := b.objects.Entry(id)
	if !ok {
		return fmt.Errorf("%w: %d", cbox.ErrObjectNotFound, id)
	}

	out := cbox.NewDataOut()
	if err := entry.Object().StreamPersistedTo(out); err != nil {
		return fmt.Errorf("%w: serialising object %d: %w", cbox.ErrPersistFailed, id, err)
	}

	rec := storage.Record{
		ID:     id,
		Type:   entry.Type(),
		Groups: entry.Groups(),
		Data:   out.Bytes(),
	}
	if err := b.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("%w: %w", cbox.ErrPersistFailed, err)
	}
	return nil
}

// dryRun consumes a definition without constructing anything.
func (b *Box) dryRun(typeID cbox.TypeID, def *cbox.DataIn) {
	b.objects.Registry().Create(nil, typeID, def, true) //nolint:errcheck // consuming only
}
