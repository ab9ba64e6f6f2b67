package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"

	"github.com/cockroachdb/pebble"

	"github.com/nerrad567/blox-core/internal/cbox"
)

// Pebble key layout: "obj/" followed by the big-endian object ID, so that
// key order equals ID order.
var (
	objectPrefix = []byte("obj/")
	objectEnd    = []byte("obj0") // '0' sorts directly after '/'
)

// pebbleValueHeader is type (u16 LE) + groups (u8).
const pebbleValueHeader = 3

// PebbleDB is the subset of *pebble.DB the store uses.
type PebbleDB interface {
	Set(key, value []byte, opts *pebble.WriteOptions) error
	Get(key []byte) ([]byte, io.Closer, error)
	Delete(key []byte, opts *pebble.WriteOptions) error
	DeleteRange(start, end []byte, opts *pebble.WriteOptions) error
	NewIter(o *pebble.IterOptions) *pebble.Iterator
	Close() error
}

// PebbleStore keeps records in a Pebble key-value directory.
type PebbleStore struct {
	db PebbleDB
}

// OpenPebble opens (creating if needed) a Pebble store in dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble store %s: %w", dir, err)
	}
	return NewPebbleStore(db), nil
}

// NewPebbleStore wraps an open Pebble database. The store takes ownership
// and closes it on Close.
func NewPebbleStore(db PebbleDB) *PebbleStore {
	return &PebbleStore{db: db}
}

// Save writes rec synchronously.
func (s *PebbleStore) Save(_ context.Context, rec Record) error {
	value := make([]byte, pebbleValueHeader, pebbleValueHeader+len(rec.Data))
	binary.LittleEndian.PutUint16(value[0:2], uint16(rec.Type))
	value[2] = byte(rec.Groups)
	value = append(value, rec.Data...)

	if err := s.db.Set(objectKey(rec.ID), value, pebble.Sync); err != nil {
		return fmt.Errorf("saving object %d: %w", rec.ID, err)
	}
	return nil
}

// Erase deletes the record for id, if any.
func (s *PebbleStore) Erase(_ context.Context, id cbox.ObjectID) error {
	if err := s.db.Delete(objectKey(id), pebble.Sync); err != nil {
		return fmt.Errorf("erasing object %d: %w", id, err)
	}
	return nil
}

// Load returns the record for id.
func (s *PebbleStore) Load(_ context.Context, id cbox.ObjectID) (Record, error) {
	value, closer, err := s.db.Get(objectKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return Record{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("loading object %d: %w", id, err)
	}
	defer closer.Close() //nolint:errcheck // read-only handle

	return decodePebbleRecord(id, value)
}

// LoadAll yields every record ordered by ID.
func (s *PebbleStore) LoadAll(_ context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		it := s.db.NewIter(&pebble.IterOptions{
			LowerBound: objectPrefix,
			UpperBound: objectEnd,
		})
		defer it.Close() //nolint:errcheck // iteration errors surface via it.Error

		for it.First(); it.Valid(); it.Next() {
			key := it.Key()
			if len(key) != len(objectPrefix)+2 {
				continue
			}
			id := cbox.ObjectID(binary.BigEndian.Uint16(key[len(objectPrefix):]))
			value, err := it.ValueAndErr()
			if err != nil {
				yield(Record{}, fmt.Errorf("reading object %d: %w", id, err))
				return
			}
			rec, err := decodePebbleRecord(id, value)
			if err != nil {
				if !yield(Record{}, err) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := it.Error(); err != nil {
			yield(Record{}, fmt.Errorf("iterating objects: %w", err))
		}
	}
}

// Clear deletes every object record.
func (s *PebbleStore) Clear(_ context.Context) error {
	if err := s.db.DeleteRange(objectPrefix, objectEnd, pebble.Sync); err != nil {
		return fmt.Errorf("clearing objects: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *PebbleStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing pebble store: %w", err)
	}
	return nil
}

func objectKey(id cbox.ObjectID) []byte {
	return binary.BigEndian.AppendUint16(slices.Clone(objectPrefix), uint16(id))
}

// decodePebbleRecord copies value, which Pebble only lends until the next
// iterator step.
func decodePebbleRecord(id cbox.ObjectID, value []byte) (Record, error) {
	if len(value) < pebbleValueHeader {
		return Record{}, fmt.Errorf("object %d: value too short (%d bytes)", id, len(value))
	}
	return Record{
		ID:     id,
		Type:   cbox.TypeID(binary.LittleEndian.Uint16(value[0:2])),
		Groups: cbox.GroupMask(value[2]),
		Data:   slices.Clone(value[pebbleValueHeader:]),
	}, nil
}
