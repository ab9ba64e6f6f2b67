package box

import (
	"time"

	"github.com/nerrad567/blox-core/internal/cbox"
)

// UpdateStats summarises one update pass.
type UpdateStats struct {
	Visited  int // entries walked
	Updated  int // entries whose Update ran
	Inactive int // entries skipped because no group of theirs is active
	Duration time.Duration
}

// Update runs one scheduler pass at now.
//
// Entries are visited in ID order. An entry is skipped if none of its
// groups is active, or if it is not yet due; otherwise its Update runs and
// the tick it returns becomes its next due time.
func (b *Box) Update(now cbox.Tick) UpdateStats {
	start := time.Now()
	active := b.ActiveGroups()

	var stats UpdateStats
	for entry := range b.objects.All() {
		stats.Visited++
		if entry.Groups()&active == 0 {
			stats.Inactive++
			continue
		}
		if entry.Update(now) {
			stats.Updated++
		}
	}
	stats.Duration = time.Since(start)
	return stats
}
