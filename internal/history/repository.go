package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hovavo/pxt-states/internal/states"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// timestampLayout is fixed width so that text ordering in SQLite matches
	// time ordering.
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Entry is a stored transition.
type Entry struct {
	ID         string        `json:"id"`
	Machine    string        `json:"machine"`
	From       string        `json:"from"`
	To         string        `json:"to"`
	Elapsed    time.Duration `json:"elapsed"`
	Created    bool          `json:"created"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Repository stores and retrieves transitions in SQLite.
//
// Thread Safety: safe for concurrent use; the underlying *sql.DB serialises
// access.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a repository over an open, migrated database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Name identifies the repository as a telemetry sink.
func (r *Repository) Name() string {
	return "history"
}

// Record inserts one transition.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - t: Transition as delivered by the engine
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *Repository) Record(ctx context.Context, t states.Transition) error {
	if t.ID == "" {
		return fmt.Errorf("transition id is required")
	}
	if t.Machine == "" {
		return fmt.Errorf("machine id is required")
	}

	created := 0
	if t.Created {
		created = 1
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transitions (id, machine, from_state, to_state, elapsed_ms, created, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Machine.String(),
		t.From.String(),
		t.To.String(),
		t.Elapsed.Milliseconds(),
		created,
		formatTimestamp(t.At),
	)
	if err != nil {
		return fmt.Errorf("inserting transition: %w", err)
	}
	return nil
}

// GetHistory returns recent transitions of a machine, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - machine: Machine id (normalised like every other id)
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []Entry: Entries ordered by occurrence, newest first (may be empty)
//   - error: nil on success, otherwise the underlying query error
func (r *Repository) GetHistory(ctx context.Context, machine string, limit int) ([]Entry, error) {
	id := states.NewID(machine)
	if id == "" {
		id = states.MainMachine
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, machine, from_state, to_state, elapsed_ms, created, occurred_at
		 FROM transitions
		 WHERE machine = ?
		 ORDER BY occurred_at DESC, rowid DESC
		 LIMIT ?`,
		id.String(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var elapsedMS, created int64
		var occurredAt string

		if err := rows.Scan(&e.ID, &e.Machine, &e.From, &e.To, &elapsedMS, &created, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		e.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		e.Created = created != 0

		ts, err := parseTimestamp(occurredAt)
		if err != nil {
			return nil, err
		}
		e.OccurredAt = ts

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transitions: %w", err)
	}

	return entries, nil
}

// Prune deletes transitions older than the given duration.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *Repository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := formatTimestamp(r.now().Add(-olderThan))
	result, err := r.db.ExecContext(ctx, "DELETE FROM transitions WHERE occurred_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting transitions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("occurred_at is empty")
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing occurred_at: %w", err)
	}
	return ts, nil
}
