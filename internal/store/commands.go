// ABOUTME: Command ledger store methods for settled bridge commands
// ABOUTME: Records every resolved, timed-out or failed command for the panel history

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// tsLayout is fixed-width so lexical order matches time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(tsLayout, s)
}

// AppendCommand records a settled command. Generates ID if not set.
func (s *SQLiteStore) AppendCommand(ctx context.Context, r *CommandRecord) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.SettledAt.IsZero() {
		r.SettledAt = time.Now().UTC()
	}
	if r.EnqueuedAt.IsZero() {
		r.EnqueuedAt = r.SettledAt
	}

	query := `
		INSERT INTO command_log (record_id, command_id, strategy, command, result, outcome, enqueued_at, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID,
		r.CommandID,
		r.Strategy,
		r.Command,
		r.Result,
		r.Outcome,
		formatTS(r.EnqueuedAt),
		formatTS(r.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("inserting command record: %w", err)
	}

	s.logger.Debug("appended command record",
		"id", r.ID,
		"command_id", r.CommandID,
		"outcome", r.Outcome,
	)
	return nil
}

// ListCommands returns the most recently settled commands, newest first.
func (s *SQLiteStore) ListCommands(ctx context.Context, limit int) ([]CommandRecord, error) {
	query := `
		SELECT record_id, command_id, strategy, command, result, outcome, enqueued_at, settled_at
		FROM command_log
		ORDER BY settled_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	records := []CommandRecord{}
	for rows.Next() {
		var r CommandRecord
		var enqueued, settled string
		if err := rows.Scan(&r.ID, &r.CommandID, &r.Strategy, &r.Command, &r.Result, &r.Outcome, &enqueued, &settled); err != nil {
			return nil, fmt.Errorf("scanning command record: %w", err)
		}
		if r.EnqueuedAt, err = parseTS(enqueued); err != nil {
			return nil, fmt.Errorf("parsing enqueued_at: %w", err)
		}
		if r.SettledAt, err = parseTS(settled); err != nil {
			return nil, fmt.Errorf("parsing settled_at: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}
	return records, nil
}
