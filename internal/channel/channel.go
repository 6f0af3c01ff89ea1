// ABOUTME: Command channel contract shared by the polled and persistent transports.
// ABOUTME: Defines commands, settlements, sentinel errors and the timeout result.

package channel

import (
	"context"
	"errors"
	"time"
)

// ErrNotConnected indicates the remote server is not reachable; the command
// was never handed to the transport.
var ErrNotConnected = errors.New("not connected to server")

// ErrQueueClosed indicates the channel has been shut down.
var ErrQueueClosed = errors.New("command queue closed")

// TimeoutResult is the result text delivered when a command's deadline
// elapses without a result.
const TimeoutResult = "Command timed out - server may be unreachable"

// DefaultCommandTimeout bounds how long a polled command waits for its result.
const DefaultCommandTimeout = 15 * time.Second

// Strategy names a transport.
type Strategy string

const (
	StrategyPolled     Strategy = "polled"
	StrategyPersistent Strategy = "persistent"
)

// Channel delivers command strings to the game server and returns their
// textual results.
type Channel interface {
	// Send blocks until the result arrives. A polled timeout is reported as
	// TimeoutResult with a nil error.
	Send(ctx context.Context, command string) (string, error)
	// Dispatch hands the command to the transport without waiting for the result.
	Dispatch(ctx context.Context, command string) error
	IsAvailable() bool
	Strategy() Strategy
}

// Availability reports whether the remote agent is reachable.
type Availability interface {
	IsOnline() bool
}

// Command is a unit of work handed to the agent.
type Command struct {
	ID        int64     `json:"id"`
	Text      string    `json:"command"`
	CreatedAt time.Time `json:"-"`
}

// Outcome describes how a command was settled.
type Outcome string

const (
	OutcomeResolved  Outcome = "resolved"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Settlement is reported to the Observer once per command.
type Settlement struct {
	ID         int64
	Command    string
	Result     string
	Outcome    Outcome
	Strategy   Strategy
	EnqueuedAt time.Time
	SettledAt  time.Time
}

// Duration returns how long the command was outstanding.
func (s Settlement) Duration() time.Duration {
	return s.SettledAt.Sub(s.EnqueuedAt)
}

// Observer receives settlements. It is called outside the channel's lock and
// must not block for long.
type Observer func(Settlement)
