// ABOUTME: RCON session backed by github.com/gorcon/rcon for the persistent strategy.
// ABOUTME: Dials with a timeout and exposes Execute/Close for the command channel.

package rcon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorcon/rcon"
)

// ErrNoHost indicates no RCON host is configured.
var ErrNoHost = errors.New("rcon host not configured")

// Options configures a Dial.
type Options struct {
	Address     string
	Password    string
	DialTimeout time.Duration
	// Deadline bounds each Execute round trip. Zero uses DialTimeout.
	Deadline time.Duration
}

// Session is a connected RCON console.
type Session struct {
	conn *rcon.Conn
	addr string
}

// Dial connects and authenticates.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	if opts.Address == "" {
		return nil, ErrNoHost
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline := opts.Deadline
	if deadline == 0 {
		deadline = opts.DialTimeout
	}

	conn, err := rcon.Dial(opts.Address, opts.Password,
		rcon.SetDialTimeout(opts.DialTimeout),
		rcon.SetDeadline(deadline),
	)
	if err != nil {
		return nil, fmt.Errorf("dialing rcon %s: %w", opts.Address, err)
	}
	return &Session{conn: conn, addr: opts.Address}, nil
}

// Execute runs a console command and returns its output.
func (s *Session) Execute(command string) (string, error) {
	return s.conn.Execute(command)
}

// Close closes the connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Addr returns the address the session was dialed with.
func (s *Session) Addr() string {
	return s.addr
}

// Skip reports whether the host should not be dialed at all. Empty and
// loopback hosts are treated as unconfigured.
func Skip(host string) bool {
	return host == "" || host == "localhost"
}
