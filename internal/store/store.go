// ABOUTME: Store interface and data types for craft-bridge persistence
// ABOUTME: Defines the command ledger and game event ledger records

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// CommandRecord is one settled command.
type CommandRecord struct {
	ID         string    `json:"id"`        // UUID v4
	CommandID  int64     `json:"commandId"` // channel-assigned id
	Strategy   string    `json:"strategy"`
	Command    string    `json:"command"`
	Result     string    `json:"result"`
	Outcome    string    `json:"outcome"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	SettledAt  time.Time `json:"settledAt"`
}

// EventKind classifies a game event.
type EventKind string

const (
	EventChat    EventKind = "chat"
	EventJoin    EventKind = "join"
	EventDeath   EventKind = "death"
	EventKingdom EventKind = "kingdom"
	EventServer  EventKind = "server"
	EventLock    EventKind = "lock"
	EventAction  EventKind = "action"
)

// GameEvent is a webhook delivery or operator action.
type GameEvent struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	Player    string         `json:"player,omitempty"`
	Message   string         `json:"message,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	Kind   *EventKind
	Player *string
	Since  *time.Time
	Limit  int // default 100, max 1000
}

// Store persists the command and event ledgers.
type Store interface {
	AppendCommand(ctx context.Context, r *CommandRecord) error
	ListCommands(ctx context.Context, limit int) ([]CommandRecord, error)
	AppendEvent(ctx context.Context, e *GameEvent) error
	ListEvents(ctx context.Context, f EventFilter) ([]GameEvent, error)
	Close() error
}

// normalizeLimit applies default (100) and cap (1000) to a list limit.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}
