package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/nerrad567/blox-core/internal/cbox"
)

// SQLiteStore keeps records in the "objects" table created by the embedded
// migrations. The database handle is owned by the caller.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore returns a store over db. The objects table must exist.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save inserts or replaces the record for rec.ID.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO objects (id, type_id, group_mask, data, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   type_id = excluded.type_id,
		   group_mask = excluded.group_mask,
		   data = excluded.data,
		   updated_at = excluded.updated_at`,
		int(rec.ID), int(rec.Type), int(rec.Groups), nonNil(rec.Data),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving object %d: %w", rec.ID, err)
	}
	return nil
}

// Erase deletes the record for id, if any.
func (s *SQLiteStore) Erase(ctx context.Context, id cbox.ObjectID) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM objects WHERE id = ?", int(id)); err != nil {
		return fmt.Errorf("erasing object %d: %w", id, err)
	}
	return nil
}

// Load returns the record for id.
func (s *SQLiteStore) Load(ctx context.Context, id cbox.ObjectID) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, type_id, group_mask, data FROM objects WHERE id = ?", int(id))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("loading object %d: %w", id, err)
	}
	return rec, nil
}

// LoadAll yields every record ordered by ID. The underlying rows are closed
// when iteration ends, including on early break.
func (s *SQLiteStore) LoadAll(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		rows, err := s.db.QueryContext(ctx,
			"SELECT id, type_id, group_mask, data FROM objects ORDER BY id")
		if err != nil {
			yield(Record{}, fmt.Errorf("querying objects: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				yield(Record{}, fmt.Errorf("scanning object row: %w", err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Record{}, fmt.Errorf("iterating objects: %w", err))
		}
	}
}

// Clear deletes every record.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM objects"); err != nil {
		return fmt.Errorf("clearing objects: %w", err)
	}
	return nil
}

// Close is a no-op; the database belongs to the caller.
func (s *SQLiteStore) Close() error {
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var id, typeID, groups int
	var data []byte
	if err := row.Scan(&id, &typeID, &groups, &data); err != nil {
		return Record{}, err
	}
	return Record{
		ID:     cbox.ObjectID(id),
		Type:   cbox.TypeID(typeID),
		Groups: cbox.GroupMask(groups),
		Data:   data,
	}, nil
}

// nonNil keeps empty blobs from being stored as NULL.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
