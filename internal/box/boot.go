package box

import (
	"context"
	"fmt"

	"github.com/nerrad567/blox-core/internal/cbox"
	"github.com/nerrad567/blox-core/internal/storage"
)

// LoadStats summarises a boot replay.
type LoadStats struct {
	Loaded int
	Failed int
}

// LoadFromStorage replays every stored record into the container.
//
// A record at a system ID is applied to the system object already living
// there. Any other record is constructed through the registry under its
// original ID and group mask, which also advances the allocator past it.
// A record that fails is logged and counted; the rest still load, and its
// ID is never handed out again during this run.
//
// Parameters:
//   - ctx: Context for store access
//
// Returns:
//   - LoadStats: Loaded and failed record counts
//   - error: Only ctx.Err() if the context ended during replay
func (b *Box) LoadFromStorage(ctx context.Context) (LoadStats, error) {
	var stats LoadStats
	for rec, err := range b.store.LoadAll(ctx) {
		if err != nil {
			stats.Failed++
			b.logger.Error("reading stored object", "error", err)
			continue
		}
		if err := b.restore(rec); err != nil {
			stats.Failed++
			if !b.objects.IsSystem(rec.ID) {
				b.objects.Reserve(rec.ID)
			}
			b.logger.Error("restoring stored object",
				"object_id", rec.ID,
				"type", b.objects.Registry().Name(rec.Type),
				"error", err,
			)
			continue
		}
		stats.Loaded++
	}

	b.logger.Info("objects restored from storage", "loaded", stats.Loaded, "failed", stats.Failed)
	return stats, ctx.Err()
}

func (b *Box) restore(rec storage.Record) error {
	in := cbox.NewDataIn(rec.Data)

	if b.objects.IsSystem(rec.ID) {
		entry, ok := b.objects.Entry(rec.ID)
		if !ok {
			return fmt.Errorf("%w: no system object at %d", cbox.ErrObjectNotFound, rec.ID)
		}
		if entry.Type() != rec.Type {
			return fmt.Errorf("%w: system object %d is type %d, record has %d",
				cbox.ErrInvalidType, rec.ID, entry.Type(), rec.Type)
		}
		if err := entry.Object().StreamFrom(in); err != nil {
			return fmt.Errorf("%w: %w", cbox.ErrInvalidDefinition, err)
		}
		return nil
	}

	if rec.Groups == 0 {
		return fmt.Errorf("%w: record %d", cbox.ErrInvalidGroups, rec.ID)
	}
	return b.objects.CreateWithID(rec.ID, rec.Type, rec.Groups, in)
}
