// ABOUTME: Tests for the persistent RCON command channel.
// ABOUTME: Uses a fake session and dialer to cover reconnect delays per failure class.

package channel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu       sync.Mutex
	commands []string
	respond  func(cmd string) (string, error)
	closed   bool
}

func (s *fakeSession) Execute(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cmd)
	if s.respond != nil {
		return s.respond(cmd)
	}
	return "ok: " + cmd, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// scheduler records reconnect delays instead of sleeping.
type scheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (s *scheduler) afterFunc(d time.Duration, fn func()) *time.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	s.fns = append(s.fns, fn)
	return time.NewTimer(time.Hour)
}

func (s *scheduler) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// fire runs the most recently scheduled reconnect.
func (s *scheduler) fire() {
	s.mu.Lock()
	fn := s.fns[len(s.fns)-1]
	s.mu.Unlock()
	fn()
}

func newTestPersistent(t *testing.T, dial Dialer) (*PersistentChannel, *scheduler) {
	t.Helper()
	c := NewPersistent(dial, DefaultRetryPolicy, slog.Default())
	sched := &scheduler{}
	c.afterFunc = sched.afterFunc
	return c, sched
}

func waitConnected(t *testing.T, c *PersistentChannel) {
	t.Helper()
	require.Eventually(t, c.IsAvailable, time.Second, 5*time.Millisecond)
}

func TestPersistentSend(t *testing.T) {
	sess := &fakeSession{}
	c, _ := newTestPersistent(t, func(context.Context) (Session, error) { return sess, nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	waitConnected(t, c)

	res, err := c.Send(ctx, "list")
	require.NoError(t, err)
	assert.Equal(t, "ok: list", res)
	assert.Equal(t, []string{"list"}, sess.sent())
	assert.Equal(t, StrategyPersistent, c.Strategy())
}

func TestPersistentNotConnected(t *testing.T) {
	t.Run("no host configured", func(t *testing.T) {
		c := NewPersistent(nil, DefaultRetryPolicy, slog.Default())
		c.Start(context.Background())

		assert.False(t, c.IsAvailable())
		_, err := c.Send(context.Background(), "list")
		assert.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("before connect completes", func(t *testing.T) {
		c, _ := newTestPersistent(t, func(context.Context) (Session, error) {
			return nil, errors.New("connection refused")
		})
		err := c.Dispatch(context.Background(), "say hi")
		assert.ErrorIs(t, err, ErrNotConnected)
	})
}

func TestPersistentReconnectDelays(t *testing.T) {
	t.Run("connect failure waits the connect delay", func(t *testing.T) {
		c, sched := newTestPersistent(t, func(context.Context) (Session, error) {
			return nil, errors.New("connection refused")
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c.Start(ctx)

		require.Eventually(t, func() bool { return len(sched.recorded()) == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, 20*time.Second, sched.recorded()[0])
		assert.False(t, c.IsAvailable())
	})

	t.Run("closed session waits the closed delay", func(t *testing.T) {
		sess := &fakeSession{respond: func(string) (string, error) { return "", io.EOF }}
		c, sched := newTestPersistent(t, func(context.Context) (Session, error) { return sess, nil })

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c.Start(ctx)
		waitConnected(t, c)

		_, err := c.Send(ctx, "list")
		require.Error(t, err)
		assert.ErrorIs(t, err, io.EOF)

		assert.Equal(t, []time.Duration{15 * time.Second}, sched.recorded())
		assert.False(t, c.IsAvailable())
		assert.True(t, sess.closed)

		_, err = c.Send(ctx, "list")
		assert.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("other send error waits the send delay", func(t *testing.T) {
		sess := &fakeSession{respond: func(string) (string, error) { return "", errors.New("bad packet") }}
		c, sched := newTestPersistent(t, func(context.Context) (Session, error) { return sess, nil })

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c.Start(ctx)
		waitConnected(t, c)

		_, err := c.Send(ctx, "list")
		require.Error(t, err)
		assert.Equal(t, []time.Duration{10 * time.Second}, sched.recorded())
	})

	t.Run("only one retry timer is armed", func(t *testing.T) {
		c, sched := newTestPersistent(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c.ctx = ctx

		c.scheduleReconnect(time.Second)
		c.scheduleReconnect(time.Second)
		c.scheduleReconnect(time.Second)
		assert.Len(t, sched.recorded(), 1)
	})
}

func TestPersistentRecovers(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	good := &fakeSession{}
	c, sched := newTestPersistent(t, func(context.Context) (Session, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return good, nil
	})

	var states []bool
	var statesMu sync.Mutex
	c.OnStateChange(func(connected bool) {
		statesMu.Lock()
		defer statesMu.Unlock()
		states = append(states, connected)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	require.Eventually(t, func() bool { return len(sched.recorded()) == 1 }, time.Second, 5*time.Millisecond)
	sched.fire()
	require.Len(t, sched.recorded(), 2)
	sched.fire()

	waitConnected(t, c)
	res, err := c.Send(ctx, "list")
	require.NoError(t, err)
	assert.Equal(t, "ok: list", res)

	statesMu.Lock()
	assert.Equal(t, []bool{true}, states)
	statesMu.Unlock()
}

func TestPersistentObserver(t *testing.T) {
	sess := &fakeSession{}
	c, _ := newTestPersistent(t, func(context.Context) (Session, error) { return sess, nil })

	var got []Settlement
	c.SetObserver(func(s Settlement) { got = append(got, s) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	waitConnected(t, c)

	_, err := c.Send(ctx, "save-all")
	require.NoError(t, err)
	_, err = c.Send(ctx, "list")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)
	assert.Equal(t, OutcomeResolved, got[1].Outcome)
}

func TestPersistentCloseOnCancel(t *testing.T) {
	sess := &fakeSession{}
	c, _ := newTestPersistent(t, func(context.Context) (Session, error) { return sess, nil })

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	waitConnected(t, c)

	cancel()
	require.Eventually(t, func() bool { return !c.IsAvailable() }, time.Second, 5*time.Millisecond)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	assert.True(t, sess.closed)
}
