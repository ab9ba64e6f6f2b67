package box

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/blox-core/internal/cbox"
	"github.com/nerrad567/blox-core/internal/cbox/codec"
	"github.com/nerrad567/blox-core/internal/storage"
)

// Command is a protocol opcode.
type Command uint8

// Command opcodes. The set is closed.
const (
	CmdNone              Command = 0
	CmdReadObject        Command = 1
	CmdWriteObject       Command = 2
	CmdCreateObject      Command = 3
	CmdDeleteObject      Command = 4
	CmdListObjects       Command = 5
	CmdReadStoredObject  Command = 6
	CmdListStoredObjects Command = 7
	CmdClearObjects      Command = 8
)

var commandNames = map[Command]string{
	CmdNone:              "none",
	CmdReadObject:        "read_object",
	CmdWriteObject:       "write_object",
	CmdCreateObject:      "create_object",
	CmdDeleteObject:      "delete_object",
	CmdListObjects:       "list_objects",
	CmdReadStoredObject:  "read_stored_object",
	CmdListStoredObjects: "list_stored_objects",
	CmdClearObjects:      "clear_objects",
}

// String returns the snake_case name of the command.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command_%d", uint8(c))
}

type handlerFunc func(ctx context.Context, in *cbox.DataIn, out *cbox.DataOut, ev *CommandEvent) error

func (b *Box) handler(cmd Command) handlerFunc {
	switch cmd {
	case CmdNone:
		return b.cmdNone
	case CmdReadObject:
		return b.cmdReadObject
	case CmdWriteObject:
		return b.cmdWriteObject
	case CmdCreateObject:
		return b.cmdCreateObject
	case CmdDeleteObject:
		return b.cmdDeleteObject
	case CmdListObjects:
		return b.cmdListObjects
	case CmdReadStoredObject:
		return b.cmdReadStoredObject
	case CmdListStoredObjects:
		return b.cmdListStoredObjects
	case CmdClearObjects:
		return b.cmdClearObjects
	default:
		return nil
	}
}

type sourceKey struct{}

// WithSource tags ctx with a description of where a request came from,
// such as a remote address. It is reported in CommandEvent.Source.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the source set by WithSource, or "".
func SourceFrom(ctx context.Context) string {
	s, _ := ctx.Value(sourceKey{}).(string) //nolint:errcheck // type assertion
	return s
}

// Dispatch executes one request frame and returns its reply.
//
// The reply echoes the request's message ID, command and framing mode. Its
// payload starts with the status byte; the command's reply payload follows
// only when the status is OK.
//
// Parameters:
//   - ctx: Carries the request source; store calls use it too
//   - req: A frame whose CRC has already been verified
//
// Returns:
//   - codec.Frame: The reply, always non-empty
func (b *Box) Dispatch(ctx context.Context, req codec.Frame) codec.Frame {
	start := time.Now()
	ev := CommandEvent{
		Command: Command(req.Command),
		MsgID:   req.MsgID,
		Source:  SourceFrom(ctx),
	}

	out := cbox.NewDataOut()
	var err error
	if h := b.handler(ev.Command); h != nil {
		err = h(ctx, cbox.NewDataIn(req.Payload), out, &ev)
	} else {
		err = fmt.Errorf("%w: %d", cbox.ErrInvalidCommand, req.Command)
	}

	ev.Status = cbox.StatusOf(err)
	ev.Err = err
	ev.Duration = time.Since(start)
	b.report(ev)

	payload := []byte{byte(ev.Status)}
	if ev.Status == cbox.StatusOK {
		payload = append(payload, out.Bytes()...)
	}
	return codec.Frame{
		Mode:    req.Mode,
		MsgID:   req.MsgID,
		Command: req.Command,
		Payload: payload,
	}
}

// RejectFrame builds the reply to a frame the codec could not accept. A
// CRC mismatch is answered with StatusCRCError, echoing the header the
// codec recovered; every other frame error gets StatusInvalidFrame.
func (b *Box) RejectFrame(ctx context.Context, req codec.Frame, frameErr error) codec.Frame {
	status := cbox.StatusInvalidFrame
	if errors.Is(frameErr, codec.ErrCRCMismatch) {
		status = cbox.StatusCRCError
	}

	b.report(CommandEvent{
		Command: Command(req.Command),
		MsgID:   req.MsgID,
		Status:  status,
		Err:     frameErr,
		Source:  SourceFrom(ctx),
	})

	return codec.Frame{
		Mode:    req.Mode,
		MsgID:   req.MsgID,
		Command: req.Command,
		Payload: []byte{byte(status)},
	}
}

func (b *Box) report(ev CommandEvent) {
	if ev.Status == cbox.StatusOK {
		b.logger.Debug("command handled",
			"command", ev.Command.String(),
			"msg_id", ev.MsgID,
			"object_id", ev.ObjectID,
			"duration", ev.Duration,
		)
	} else {
		b.logger.Warn("command failed",
			"command", ev.Command.String(),
			"msg_id", ev.MsgID,
			"object_id", ev.ObjectID,
			"status", ev.Status.String(),
			"error", ev.Err,
		)
	}
	if b.hook != nil {
		b.hook(ev)
	}
}

// definition is the common header of CREATE and WRITE payloads.
type definition struct {
	id     cbox.ObjectID
	groups cbox.GroupMask
	typeID cbox.TypeID
	data   *cbox.DataIn
}

// readDefinition reads id, groups, type and the length-prefixed blob. It
// fails with cbox.ErrShortRead before anything is applied.
func readDefinition(in *cbox.DataIn) (definition, error) {
	var d definition
	id, err := in.ReadU16()
	if err != nil {
		return d, err
	}
	groups, err := in.ReadU8()
	if err != nil {
		return d, err
	}
	typeID, err := in.ReadU16()
	if err != nil {
		return d, err
	}
	data, err := in.ReadBlob()
	if err != nil {
		return d, err
	}
	return definition{
		id:     cbox.ObjectID(id),
		groups: cbox.GroupMask(groups),
		typeID: cbox.TypeID(typeID),
		data:   data,
	}, nil
}

func readID(in *cbox.DataIn) (cbox.ObjectID, error) {
	id, err := in.ReadU16()
	return cbox.ObjectID(id), err
}

// writeObject appends an object record: id, groups, type and the full
// state blob.
func writeObject(out *cbox.DataOut, e *cbox.Entry) error {
	data := cbox.NewDataOut()
	if err := e.Object().StreamTo(data); err != nil {
		return fmt.Errorf("streaming object %d: %w", e.ID(), err)
	}
	return writeRecord(out, storage.Record{
		ID:     e.ID(),
		Type:   e.Type(),
		Groups: e.Groups(),
		Data:   data.Bytes(),
	})
}

func writeRecord(out *cbox.DataOut, rec storage.Record) error {
	out.WriteU16(uint16(rec.ID))
	out.WriteU8(uint8(rec.Groups))
	out.WriteU16(uint16(rec.Type))
	return out.WriteBlob(rec.Data)
}

func (b *Box) cmdNone(context.Context, *cbox.DataIn, *cbox.DataOut, *CommandEvent) error {
	return nil
}

func (b *Box) cmdReadObject(_ context.Context, in *cbox.DataIn, out *cbox.DataOut, ev *CommandEvent) error {
	id, err := readID(in)
	if err != nil {
		return err
	}
	ev.ObjectID = id

	entry, ok := b.objects.Entry(id)
	if !ok {
		return fmt.Errorf("%w: %d", cbox.ErrObjectNotFound, id)
	}
	ev.Type = entry.Type()
	return writeObject(out, entry)
}

func (b *Box) cmdWriteObject(ctx context.Context, in *cbox.DataIn, out *cbox.DataOut, ev *CommandEvent) error {
	def, err := readDefinition(in)
	if err != nil {
		return err
	}
	ev.ObjectID, ev.Type = def.id, def.typeID

	entry, ok := b.objects.Entry(def.id)
	if !ok {
		b.dryRun(def.typeID, def.data)
		return fmt.Errorf("%w: %d", cbox.ErrObjectNotFound, def.id)
	}
	if entry.Type() != def.typeID {
		b.dryRun(def.typeID, def.data)
		return fmt.Errorf("%w: object %d is type %d, not %d", cbox.ErrInvalidType, def.id, entry.Type(), def.typeID)
	}
	system := b.objects.IsSystem(def.id)
	if !system && def.groups == 0 {
		b.dryRun(def.typeID, def.data)
		return fmt.Errorf("%w: object %d", cbox.ErrInvalidGroups, def.id)
	}

	obj := entry.Object()
	snapshot := cbox.NewDataOut()
	if err := obj.StreamPersistedTo(snapshot); err != nil {
		def.data.Drain()
		return fmt.Errorf("snapshotting object %d: %w", def.id, err)
	}
	prevGroups := entry.Groups()

	err = obj.StreamFrom(def.data)
	def.data.Drain()
	if err != nil {
		return fmt.Errorf("%w: %w", cbox.ErrInvalidDefinition, err)
	}
	if !system {
		b.objects.SetGroups(def.id, def.groups) //nolint:errcheck // entry exists
	}

	if err := b.persist(ctx, def.id); err != nil {
		if rerr := obj.StreamFrom(cbox.NewDataIn(snapshot.Bytes())); rerr != nil {
			b.logger.Error("restoring object after failed persist", "object_id", def.id, "error", rerr)
		}
		b.objects.SetGroups(def.id, prevGroups) //nolint:errcheck // entry exists
		return err
	}
	return writeObject(out, entry)
}

func (b *Box) cmdCreateObject(ctx context.Context, in *cbox.DataIn, out *cbox.DataOut, ev *CommandEvent) error {
	def, err := readDefinition(in)
	if err != nil {
		return err
	}
	ev.ObjectID, ev.Type = def.id, def.typeID

	if def.groups == 0 {
		b.dryRun(def.typeID, def.data)
		return fmt.Errorf("%w: new object", cbox.ErrInvalidGroups)
	}

	id := def.id
	if id == 0 {
		id, err = b.objects.Create(def.typeID, def.groups, def.data)
	} else {
		err = b.objects.CreateWithID(id, def.typeID, def.groups, def.data)
	}
	if err != nil {
		return err
	}
	ev.ObjectID = id

	if err := b.persist(ctx, id); err != nil {
		b.objects.Remove(id) //nolint:errcheck // just created
		return err
	}

	entry, _ := b.objects.Entry(id)
	return writeObject(out, entry)
}

func (b *Box) cmdDeleteObject(ctx context.Context, in *cbox.DataIn, _ *cbox.DataOut, ev *CommandEvent) error {
	id, err := readID(in)
	if err != nil {
		return err
	}
	ev.ObjectID = id

	if b.objects.IsSystem(id) {
		return fmt.Errorf("%w: %d", cbox.ErrSystemObject, id)
	}
	entry, ok := b.objects.Entry(id)
	if !ok {
		return fmt.Errorf("%w: %d", cbox.ErrObjectNotFound, id)
	}
	ev.Type = entry.Type()

	if err := b.store.Erase(ctx, id); err != nil {
		return fmt.Errorf("%w: %w", cbox.ErrPersistFailed, err)
	}
	return b.objects.Remove(id)
}

func (b *Box) cmdListObjects(_ context.Context, _ *cbox.DataIn, out *cbox.DataOut, _ *CommandEvent) error {
	records := cbox.NewDataOut()
	count := 0
	for entry := range b.objects.All() {
		one := cbox.NewDataOut()
		if err := writeObject(one, entry); err != nil {
			b.logger.Warn("skipping object in list", "object_id", entry.ID(), "error", err)
			continue
		}
		records.Write(one.Bytes()) //nolint:errcheck // never fails
		count++
	}
	out.WriteU16(uint16(count))
	_, err := out.Write(records.Bytes())
	return err
}

func (b *Box) cmdReadStoredObject(ctx context.Context, in *cbox.DataIn, out *cbox.DataOut, ev *CommandEvent) error {
	id, err := readID(in)
	if err != nil {
		return err
	}
	ev.ObjectID = id

	rec, err := b.store.Load(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %d not stored", cbox.ErrObjectNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", cbox.ErrPersistFailed, err)
	}
	ev.Type = rec.Type
	return writeRecord(out, rec)
}

func (b *Box) cmdListStoredObjects(ctx context.Context, _ *cbox.DataIn, out *cbox.DataOut, _ *CommandEvent) error {
	records := cbox.NewDataOut()
	count := 0
	for rec, err := range b.store.LoadAll(ctx) {
		if err != nil {
			b.logger.Warn("skipping stored record in list", "error", err)
			continue
		}
		if err := writeRecord(records, rec); err != nil {
			b.logger.Warn("skipping stored record in list", "object_id", rec.ID, "error", err)
			continue
		}
		count++
	}
	out.WriteU16(uint16(count))
	_, err := out.Write(records.Bytes())
	return err
}

func (b *Box) cmdClearObjects(ctx context.Context, _ *cbox.DataIn, _ *cbox.DataOut, _ *CommandEvent) error {
	if err := b.store.Clear(ctx); err != nil {
		return fmt.Errorf("%w: %w", cbox.ErrPersistFailed, err)
	}
	removed := b.objects.Clear()
	b.logger.Info("cleared objects", "removed", len(removed))

	// System objects keep their settings across a clear.
	for entry := range b.objects.All() {
		if err := b.persist(ctx, entry.ID()); err != nil {
			return err
		}
	}
	return nil
}
