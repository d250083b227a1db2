package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-conga/internal/conga"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timestampLayout sorts lexically in the same order as time.
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// StatusEntry is one recorded status snapshot.
type StatusEntry struct {
	ID        int64        `json:"id"`
	Serial    string       `json:"serial"`
	Status    conga.Status `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// CommandEntry is one recorded command outcome.
type CommandEntry struct {
	ID           int64         `json:"id"`
	RequestID    string        `json:"request_id"`
	Serial       string        `json:"serial"`
	Command      string        `json:"command"`
	Status       string        `json:"status"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Latency      time.Duration `json:"latency"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Repository stores history rows in the vacuum_state_history and
// command_log tables. Safe for concurrent use.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a repository over an open, migrated database.
//
// Parameters:
//   - db: SQLite connection with the history tables applied
//
// Returns:
//   - *Repository: Repository ready for use
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// RecordStatus stores a status snapshot for a vacuum.
func (r *Repository) RecordStatus(ctx context.Context, serial string, status conga.Status) error {
	if serial == "" {
		return ErrSerialRequired
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshalling status: %w", err)
	}

	var battery sql.NullInt64
	if status.Battery != nil {
		battery = sql.NullInt64{Int64: int64(*status.Battery), Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO vacuum_state_history (serial, state, battery, connected, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		serial,
		string(status.State),
		battery,
		boolToInt(status.Connected),
		string(payload),
		r.timestamp(r.now()),
	)
	if err != nil {
		return fmt.Errorf("inserting status history: %w", err)
	}
	return nil
}

// RecordCommand stores a command outcome. A zero CreatedAt is stamped
// with the current time.
func (r *Repository) RecordCommand(ctx context.Context, entry CommandEntry) error {
	if entry.Serial == "" {
		return ErrSerialRequired
	}
	at := entry.CreatedAt
	if at.IsZero() {
		at = r.now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_log
		 (request_id, serial, command, status, error_code, error_message, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID,
		entry.Serial,
		entry.Command,
		entry.Status,
		entry.ErrorCode,
		entry.ErrorMessage,
		entry.Latency.Milliseconds(),
		r.timestamp(at),
	)
	if err != nil {
		return fmt.Errorf("inserting command log: %w", err)
	}
	return nil
}

// StatusHistory returns recent snapshots for a vacuum, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - serial: Device serial number
//   - limit: Maximum entries (default 50, max 200)
func (r *Repository) StatusHistory(ctx context.Context, serial string, limit int) ([]StatusEntry, error) {
	if serial == "" {
		return nil, ErrSerialRequired
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, serial, status, created_at
		 FROM vacuum_state_history
		 WHERE serial = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		serial,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying status history: %w", err)
	}
	defer rows.Close()

	var entries []StatusEntry
	for rows.Next() {
		var e StatusEntry
		var payload, createdAt string
		if err := rows.Scan(&e.ID, &e.Serial, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning status history: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Status); err != nil {
			return nil, fmt.Errorf("unmarshalling status: %w", err)
		}
		if e.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status history: %w", err)
	}
	return entries, nil
}

// CommandHistory returns recent command outcomes for a vacuum, newest first.
func (r *Repository) CommandHistory(ctx context.Context, serial string, limit int) ([]CommandEntry, error) {
	if serial == "" {
		return nil, ErrSerialRequired
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, request_id, serial, command, status, error_code, error_message, latency_ms, created_at
		 FROM command_log
		 WHERE serial = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		serial,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	var entries []CommandEntry
	for rows.Next() {
		var e CommandEntry
		var latencyMS int64
		var createdAt string
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Serial, &e.Command, &e.Status,
			&e.ErrorCode, &e.ErrorMessage, &latencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command log: %w", err)
		}
		e.Latency = time.Duration(latencyMS) * time.Millisecond
		if e.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}
	return entries, nil
}

// Prune deletes status and command rows older than olderThan.
//
// Returns:
//   - int64: Total rows deleted across both tables
//   - error: ErrInvalidRetention or the underlying database error
func (r *Repository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}
	cutoff := r.timestamp(r.now().Add(-olderThan))

	var total int64
	for _, table := range []string{"vacuum_state_history", "command_log"} {
		// Table names are constants; only the cutoff is user data.
		result, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE created_at < ?", cutoff) // #nosec G202
		if err != nil {
			return total, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

func (r *Repository) timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp accepts the repository's own layout and the second
// resolution default written by the schema.
func parseTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(timestampLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at %q: %w", value, err)
	}
	return t, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	default:
		return limit
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
