package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeLayout is fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000Z07:00"
)

// CommandLog is one recorded command.
type CommandLog struct {
	ID         string    `json:"id"`
	MsgID      uint16    `json:"msg_id"`
	Command    string    `json:"command"`
	ObjectID   uint16    `json:"object_id,omitempty"`
	TypeID     uint16    `json:"type_id,omitempty"`
	Status     string    `json:"status"`
	Source     string    `json:"source"`
	DurationUS int64     `json:"duration_us"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter controls which entries List returns. Zero fields match anything.
type Filter struct {
	Command  string
	Status   string
	ObjectID uint16
	Limit    int // default 50, max 200
	Offset   int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Logs   []CommandLog `json:"logs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// Repository stores command log entries.
type Repository interface {
	Create(ctx context.Context, log *CommandLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository stores entries in the command_log table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over db. The command_log table
// must exist.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *CommandLog) error {
	if log.ID == "" {
		log.ID = "cmd-" + uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_log (id, msg_id, command, object_id, type_id, status, source, duration_us, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.MsgID, log.Command,
		nullableID(log.ObjectID), nullableID(log.TypeID),
		log.Status, log.Source, log.DurationUS,
		log.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting command log: %w", err)
	}
	return nil
}

// nullableID stores 0 as NULL; neither object nor type ID 0 is valid.
func nullableID(id uint16) any {
	if id == 0 {
		return nil
	}
	return id
}

// List returns entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Command != "" {
		conditions = append(conditions, "command = ?")
		args = append(args, filter.Command)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.ObjectID != 0 {
		conditions = append(conditions, "object_id = ?")
		args = append(args, filter.ObjectID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM command_log " + where //nolint:gosec // conditions are fixed strings with ? placeholders
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command log: %w", err)
	}

	query := "SELECT id, msg_id, command, object_id, type_id, status, source, duration_us, created_at FROM command_log " + //nolint:gosec // as above
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	logs := []CommandLog{}
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}

	return &ListResult{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func scanLog(rows *sql.Rows) (CommandLog, error) {
	var log CommandLog
	var objectID, typeID sql.NullInt64
	var createdAt string

	if err := rows.Scan(&log.ID, &log.MsgID, &log.Command, &objectID, &typeID,
		&log.Status, &log.Source, &log.DurationUS, &createdAt); err != nil {
		return log, fmt.Errorf("scanning command log: %w", err)
	}
	log.ObjectID = uint16(objectID.Int64) //nolint:gosec // written from uint16
	log.TypeID = uint16(typeID.Int64)     //nolint:gosec // written from uint16

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return log, fmt.Errorf("parsing command log timestamp %q: %w", createdAt, err)
	}
	log.CreatedAt = t
	return log, nil
}

// Prune deletes entries older than before and returns how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM command_log WHERE created_at < ?",
		before.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning command log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning command log: %w", err)
	}
	return n, nil
}
