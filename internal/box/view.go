package box

import (
	"context"
	"encoding/hex"

	"github.com/nerrad567/blox-core/internal/cbox"
	"github.com/nerrad567/blox-core/internal/storage"
)

// ObjectView is a copy of one object's state, safe to hand to other
// goroutines. Data is the hex encoding of the object's StreamTo output, or
// of the stored bytes for a stored view.
type ObjectView struct {
	ID         cbox.ObjectID  `json:"id"`
	Type       cbox.TypeID    `json:"type"`
	TypeName   string         `json:"type_name,omitempty"`
	Groups     cbox.GroupMask `json:"groups"`
	Active     bool           `json:"active"`
	System     bool           `json:"system"`
	NextUpdate cbox.Tick      `json:"next_update,omitempty"`
	Data       string         `json:"data"`
	Error      string         `json:"error,omitempty"`
}

// View returns the live state of one object.
func (b *Box) View(id cbox.ObjectID) (ObjectView, bool) {
	entry, ok := b.objects.Entry(id)
	if !ok {
		return ObjectView{}, false
	}
	return b.view(entry), true
}

// Views returns the live state of every object in ID order. An object
// whose StreamTo fails is still listed, with Error set.
func (b *Box) Views() []ObjectView {
	views := make([]ObjectView, 0, b.objects.Len())
	for entry := range b.objects.All() {
		views = append(views, b.view(entry))
	}
	return views
}

func (b *Box) view(e *cbox.Entry) ObjectView {
	v := ObjectView{
		ID:         e.ID(),
		Type:       e.Type(),
		TypeName:   b.objects.Registry().Name(e.Type()),
		Groups:     e.Groups(),
		Active:     e.Groups()&b.ActiveGroups() != 0,
		System:     b.objects.IsSystem(e.ID()),
		NextUpdate: e.NextUpdate(),
	}
	out := cbox.NewDataOut()
	if err := e.Object().StreamTo(out); err != nil {
		v.Error = err.Error()
		return v
	}
	v.Data = hex.EncodeToString(out.Bytes())
	return v
}

// StoredViews returns every persisted record. Records the store cannot
// decode are skipped; a back-end failure is returned with the records read
// so far.
func (b *Box) StoredViews(ctx context.Context) ([]ObjectView, error) {
	var views []ObjectView
	for rec, err := range b.store.LoadAll(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return views, ctx.Err()
			}
			b.logger.Warn("skipping unreadable stored record", "error", err)
			continue
		}
		v := storedView(rec, b.objects.IsSystem(rec.ID))
		v.TypeName = b.objects.Registry().Name(rec.Type)
		views = append(views, v)
	}
	return views, nil
}

func storedView(rec storage.Record, system bool) ObjectView {
	return ObjectView{
		ID:     rec.ID,
		Type:   rec.Type,
		Groups: rec.Groups,
		System: system,
		Data:   hex.EncodeToString(rec.Data),
	}
}
