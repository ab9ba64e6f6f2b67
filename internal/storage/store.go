package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/nerrad567/blox-core/internal/cbox"
	"github.com/nerrad567/blox-core/internal/infrastructure/config"
)

// ErrNotFound is returned by Load when no record exists for an ID.
var ErrNotFound = errors.New("storage: record not found")

// Record is the persisted form of one object.
type Record struct {
	ID     cbox.ObjectID
	Type   cbox.TypeID
	Groups cbox.GroupMask
	Data   []byte
}

// Store persists object records.
//
// Save overwrites any previous record for the same ID. Erase of a missing ID
// is not an error. LoadAll yields records in ascending ID order. A record
// that cannot be decoded is yielded as an error and iteration may continue
// past it; a failure of the backend itself is yielded last. Clear erases
// every record.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Erase(ctx context.Context, id cbox.ObjectID) error
	Load(ctx context.Context, id cbox.ObjectID) (Record, error)
	LoadAll(ctx context.Context) iter.Seq2[Record, error]
	Clear(ctx context.Context) error
	Close() error
}

// Drivers accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverPebble = "pebble"
	DriverMemory = "memory"
)

// Open builds the store selected by cfg.Driver. db is only used by the
// sqlite driver and may be nil otherwise.
//
// Parameters:
//   - cfg: Storage section of the configuration
//   - db: Open SQLite handle with migrations applied
//
// Returns:
//   - Store: Ready-to-use store; the caller closes it
//   - error: If the driver is unknown or the back-end cannot be opened
func Open(cfg config.StorageConfig, db *sql.DB) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite:
		if db == nil {
			return nil, errors.New("storage: sqlite driver needs a database")
		}
		return NewSQLiteStore(db), nil
	case DriverPebble:
		return OpenPebble(cfg.PebbleDir)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}

// Collect drains LoadAll into a slice, stopping at the first error.
func Collect(ctx context.Context, s Store) ([]Record, error) {
	var out []Record
	for rec, err := range s.LoadAll(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}
