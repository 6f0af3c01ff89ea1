// ABOUTME: Persistent command channel over a single long-lived RCON session.
// ABOUTME: Reconnects on fixed per-failure-class delays and publishes connection state changes.

package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Session is a connected remote console.
type Session interface {
	Execute(command string) (string, error)
	Close() error
}

// Dialer opens a new Session.
type Dialer func(ctx context.Context) (Session, error)

// RetryPolicy holds the fixed reconnect delay for each failure class.
type RetryPolicy struct {
	Connect time.Duration // dial failed
	Closed  time.Duration // session closed by the peer
	Send    time.Duration // any other send error
}

// DefaultRetryPolicy matches the delays the game server tolerates well.
var DefaultRetryPolicy = RetryPolicy{
	Connect: 20 * time.Second,
	Closed:  15 * time.Second,
	Send:    10 * time.Second,
}

// PersistentChannel sends commands over one RCON session.
type PersistentChannel struct {
	dial   Dialer
	retry  RetryPolicy
	logger *slog.Logger

	// sendMu serializes commands on the session; the protocol is not multiplexed.
	sendMu sync.Mutex

	mu         sync.Mutex
	ctx        context.Context
	session    Session
	retryTimer *time.Timer
	listeners  []func(connected bool)
	observer   Observer
	started    bool

	nextID    atomic.Int64
	afterFunc func(time.Duration, func()) *time.Timer
	now       func() time.Time
}

// NewPersistent creates a PersistentChannel. A nil dialer means no host is
// configured and the channel stays unavailable.
func NewPersistent(dial Dialer, retry RetryPolicy, logger *slog.Logger) *PersistentChannel {
	if logger == nil {
		logger = slog.Default()
	}
	if retry.Connect <= 0 {
		retry.Connect = DefaultRetryPolicy.Connect
	}
	if retry.Closed <= 0 {
		retry.Closed = DefaultRetryPolicy.Closed
	}
	if retry.Send <= 0 {
		retry.Send = DefaultRetryPolicy.Send
	}
	return &PersistentChannel{
		dial:      dial,
		retry:     retry,
		logger:    logger.With("component", "channel", "strategy", StrategyPersistent),
		afterFunc: time.AfterFunc,
		now:       time.Now,
	}
}

// Strategy implements Channel.
func (c *PersistentChannel) Strategy() Strategy {
	return StrategyPersistent
}

// SetObserver registers a callback for settled commands.
func (c *PersistentChannel) SetObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
}

// OnStateChange registers a callback fired on every connect and disconnect.
func (c *PersistentChannel) OnStateChange(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Start begins connecting in the background. The session is closed when ctx
// is cancelled.
func (c *PersistentChannel) Start(ctx context.Context) {
	if c.dial == nil {
		c.logger.Info("rcon host not configured, persistent channel disabled")
		return
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.ctx = ctx
	c.mu.Unlock()

	go c.connect()
	go func() {
		<-ctx.Done()
		c.Close()
	}()
}

// IsAvailable reports whether a session is open.
func (c *PersistentChannel) IsAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Send executes a command and returns the server's response. It fails with
// ErrNotConnected without touching the transport while disconnected.
func (c *PersistentChannel) Send(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	sess := c.session
	observer := c.observer
	c.mu.Unlock()

	if sess == nil {
		return "", ErrNotConnected
	}

	id := c.nextID.Add(1)
	start := c.now()
	resp, err := sess.Execute(command)

	settled := Settlement{
		ID:         id,
		Command:    command,
		Result:     resp,
		Outcome:    OutcomeResolved,
		Strategy:   StrategyPersistent,
		EnqueuedAt: start,
		SettledAt:  c.now(),
	}
	if err != nil {
		settled.Outcome = OutcomeFailed
		settled.Result = err.Error()
	}
	if observer != nil {
		observer(settled)
	}

	if err != nil {
		c.handleFailure(sess, err)
		return "", fmt.Errorf("sending command: %w", err)
	}
	return resp, nil
}

// Dispatch sends a command and discards its response.
func (c *PersistentChannel) Dispatch(ctx context.Context, command string) error {
	_, err := c.Send(ctx, command)
	return err
}

// Close stops any pending reconnect and closes the session.
func (c *PersistentChannel) Close() {
	c.mu.Lock()
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	sess := c.session
	c.session = nil
	c.mu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			c.logger.Debug("closing rcon session", "error", err)
		}
		c.publish(false)
	}
}

func (c *PersistentChannel) connect() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in rcon connect", "panic", r)
		}
	}()

	c.mu.Lock()
	c.retryTimer = nil
	ctx := c.ctx
	c.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	sess, err := c.dial(ctx)
	if err != nil {
		c.logger.Warn("rcon connect failed", "error", err, "retry_in", c.retry.Connect)
		c.scheduleReconnect(c.retry.Connect)
		return
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		_ = sess.Close()
		return
	}
	c.session = sess
	c.mu.Unlock()

	c.logger.Info("rcon connected")
	c.publish(true)
}

// handleFailure drops sess if it is still current and schedules a reconnect
// with the delay for the failure class.
func (c *PersistentChannel) handleFailure(sess Session, err error) {
	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.mu.Unlock()

	_ = sess.Close()

	delay := c.retry.Send
	if isClosed(err) {
		delay = c.retry.Closed
		c.logger.Warn("rcon connection closed", "error", err, "retry_in", delay)
	} else {
		c.logger.Warn("rcon send failed", "error", err, "retry_in", delay)
	}

	c.publish(false)
	c.scheduleReconnect(delay)
}

// scheduleReconnect arms the retry timer unless one is already armed.
func (c *PersistentChannel) scheduleReconnect(delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.retryTimer != nil || c.ctx == nil || c.ctx.Err() != nil {
		return
	}
	c.retryTimer = c.afterFunc(delay, c.connect)
}

func (c *PersistentChannel) publish(connected bool) {
	c.mu.Lock()
	listeners := make([]func(bool), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(connected)
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

var (
	_ Channel = (*PolledChannel)(nil)
	_ Channel = (*PersistentChannel)(nil)
)
