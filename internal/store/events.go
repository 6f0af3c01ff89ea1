// ABOUTME: Game event ledger store methods for webhook deliveries and operator actions
// ABOUTME: Stores chat, join, death, kingdom, server, lock and action events with JSON detail

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendEvent appends a game event. Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendEvent(ctx context.Context, e *GameEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling event detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	query := `
		INSERT INTO event_log (event_id, kind, player, message, detail_json, ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.Kind,
		e.Player,
		e.Message,
		detailJSON,
		formatTS(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	s.logger.Debug("appended event", "id", e.ID, "kind", e.Kind, "player", e.Player)
	return nil
}

const eventLogQuery = `
	SELECT event_id, kind, player, message, detail_json, ts
	FROM event_log
	WHERE (? IS NULL OR kind = ?)
	  AND (? IS NULL OR player = ?)
	  AND (? IS NULL OR ts >= ?)
	ORDER BY ts DESC, rowid DESC
	LIMIT ?
`

// ListEvents returns events matching the filter, newest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, f EventFilter) ([]GameEvent, error) {
	var kind, since *string
	if f.Kind != nil {
		k := string(*f.Kind)
		kind = &k
	}
	if f.Since != nil {
		ts := formatTS(*f.Since)
		since = &ts
	}

	rows, err := s.db.QueryContext(ctx, eventLogQuery,
		kind, kind,
		f.Player, f.Player,
		since, since,
		normalizeLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying event log: %w", err)
	}
	defer rows.Close()

	events := []GameEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event log: %w", err)
	}
	return events, nil
}

// scanEvent scans a row into a GameEvent.
func scanEvent(scanner interface{ Scan(dest ...any) error }) (GameEvent, error) {
	var e GameEvent
	var kind, ts string
	var detailJSON *string

	if err := scanner.Scan(&e.ID, &kind, &e.Player, &e.Message, &detailJSON, &ts); err != nil {
		return e, fmt.Errorf("scanning event: %w", err)
	}

	e.Kind = EventKind(kind)
	var err error
	if e.Timestamp, err = parseTS(ts); err != nil {
		return e, fmt.Errorf("parsing timestamp: %w", err)
	}

	if detailJSON != nil {
		if err := json.Unmarshal([]byte(*detailJSON), &e.Detail); err != nil {
			return e, fmt.Errorf("unmarshaling detail: %w", err)
		}
	}
	return e, nil
}
