package storage

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/nerrad567/blox-core/internal/cbox"
)

// MemoryStore keeps records in a map. Contents are lost on Close.
type MemoryStore struct {
	mu      sync.Mutex
	records map[cbox.ObjectID]Record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[cbox.ObjectID]Record)}
}

// Save stores a copy of rec.
func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	rec.Data = slices.Clone(rec.Data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

// Erase removes the record for id, if any.
func (s *MemoryStore) Erase(_ context.Context, id cbox.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// Load returns a copy of the record for id.
func (s *MemoryStore) Load(_ context.Context, id cbox.ObjectID) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	rec.Data = slices.Clone(rec.Data)
	return rec, nil
}

// LoadAll yields copies of all records ordered by ID, taken as a snapshot
// when iteration starts.
func (s *MemoryStore) LoadAll(_ context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		s.mu.Lock()
		ids := slices.Sorted(maps.Keys(s.records))
		snapshot := make([]Record, 0, len(ids))
		for _, id := range ids {
			rec := s.records[id]
			rec.Data = slices.Clone(rec.Data)
			snapshot = append(snapshot, rec)
		}
		s.mu.Unlock()

		for _, rec := range snapshot {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Clear removes every record.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.records)
	return nil
}

// Close drops all records.
func (s *MemoryStore) Close() error {
	return s.Clear(context.Background())
}
