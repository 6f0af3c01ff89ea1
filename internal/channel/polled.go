// ABOUTME: Polled command channel: the agent pulls queued commands and posts results back.
// ABOUTME: Correlates results to waiting callers by id, with a per-command deadline timer.

package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// pendingResult is the correlation entry for one command. It is removed from
// the table exactly once, by whichever of resolve or timeout gets there first.
type pendingResult struct {
	cmd      Command
	deadline time.Time
	timer    *time.Timer
	done     chan struct{}
	result   string
}

// Handle lets a caller wait for the result of an enqueued command.
type Handle struct {
	ID int64
	p  *pendingResult
}

// Wait blocks until the command is resolved or times out. A timeout yields
// TimeoutResult and a nil error. Cancelling ctx returns ctx.Err() but leaves
// the command outstanding.
func (h *Handle) Wait(ctx context.Context) (string, error) {
	select {
	case <-h.p.done:
		return h.p.result, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Done is closed once the command has been settled.
func (h *Handle) Done() <-chan struct{} {
	return h.p.done
}

// Deadline returns when the command will time out.
func (h *Handle) Deadline() time.Time {
	return h.p.deadline
}

// PolledChannel queues commands for an agent that polls for work.
type PolledChannel struct {
	mu       sync.Mutex
	nextID   int64
	queue    []Command
	pending  map[int64]*pendingResult
	closed   bool
	observer Observer

	timeout time.Duration
	avail   Availability
	logger  *slog.Logger
	now     func() time.Time
}

// NewPolled creates a PolledChannel. A zero timeout uses DefaultCommandTimeout.
func NewPolled(avail Availability, timeout time.Duration, logger *slog.Logger) *PolledChannel {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PolledChannel{
		pending: make(map[int64]*pendingResult),
		timeout: timeout,
		avail:   avail,
		logger:  logger.With("component", "channel", "strategy", StrategyPolled),
		now:     time.Now,
	}
}

// SetObserver registers a callback for settled commands.
func (c *PolledChannel) SetObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
}

// Strategy implements Channel.
func (c *PolledChannel) Strategy() Strategy {
	return StrategyPolled
}

// IsAvailable reports whether the agent has heartbeated recently.
func (c *PolledChannel) IsAvailable() bool {
	return c.avail != nil && c.avail.IsOnline()
}

// Enqueue queues a command and returns immediately. It fails with
// ErrNotConnected while the agent is unavailable.
func (c *PolledChannel) Enqueue(text string) (*Handle, error) {
	if !c.IsAvailable() {
		return nil, ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrQueueClosed
	}

	c.nextID++
	cmd := Command{ID: c.nextID, Text: text, CreatedAt: c.now()}
	p := &pendingResult{
		cmd:      cmd,
		deadline: cmd.CreatedAt.Add(c.timeout),
		done:     make(chan struct{}),
	}
	id := cmd.ID
	p.timer = time.AfterFunc(c.timeout, func() {
		if c.settle(id, TimeoutResult, OutcomeTimedOut) {
			c.logger.Warn("command timed out", "id", id, "command", text)
		}
	})

	c.queue = append(c.queue, cmd)
	c.pending[id] = p

	c.logger.Debug("command queued", "id", id, "command", text, "depth", len(c.queue))
	return &Handle{ID: id, p: p}, nil
}

// Send enqueues a command and waits for its result.
func (c *PolledChannel) Send(ctx context.Context, command string) (string, error) {
	h, err := c.Enqueue(command)
	if err != nil {
		return "", err
	}
	return h.Wait(ctx)
}

// Dispatch enqueues a command without waiting.
func (c *PolledChannel) Dispatch(_ context.Context, command string) error {
	_, err := c.Enqueue(command)
	return err
}

// Drain removes and returns every queued command in FIFO order. Delivery is
// at-most-once: commands lost in the poll response are never redelivered and
// surface to their callers as timeouts.
func (c *PolledChannel) Drain() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return []Command{}
	}
	out := c.queue
	c.queue = nil
	return out
}

// Resolve delivers a result for id. It returns false for unknown, duplicate
// or late ids, which are otherwise ignored.
func (c *PolledChannel) Resolve(id int64, result string) bool {
	ok := c.settle(id, result, OutcomeResolved)
	if !ok {
		c.logger.Debug("result for unknown command ignored", "id", id)
	}
	return ok
}

// Depth returns the number of commands waiting to be polled.
func (c *PolledChannel) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Outstanding returns the number of commands awaiting a result.
func (c *PolledChannel) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close rejects further commands and releases every waiter with TimeoutResult.
func (c *PolledChannel) Close() {
	c.mu.Lock()
	c.closed = true
	ids := make([]int64, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.queue = nil
	c.mu.Unlock()

	for _, id := range ids {
		c.settle(id, TimeoutResult, OutcomeCancelled)
	}
}

// settle removes the entry for id and wakes its waiter. Only the first call
// for a given id has any effect.
func (c *PolledChannel) settle(id int64, result string, outcome Outcome) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	observer := c.observer
	c.mu.Unlock()

	if !ok {
		return false
	}

	p.timer.Stop()
	p.result = result
	close(p.done)

	if observer != nil {
		observer(Settlement{
			ID:         id,
			Command:    p.cmd.Text,
			Result:     result,
			Outcome:    outcome,
			Strategy:   StrategyPolled,
			EnqueuedAt: p.cmd.CreatedAt,
			SettledAt:  c.now(),
		})
	}
	return true
}
