// ABOUTME: Tests for the lock state machine.
// ABOUTME: Uses a recording channel to check enforcement commands and eviction.

package lock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/craft-bridge/internal/channel"
)

type recordingChannel struct {
	mu        sync.Mutex
	strategy  channel.Strategy
	available bool
	sent      []string
	respond   func(cmd string) string
}

func (r *recordingChannel) Send(_ context.Context, cmd string) (string, error) {
	if !r.available {
		return "", channel.ErrNotConnected
	}
	r.mu.Lock()
	r.sent = append(r.sent, cmd)
	respond := r.respond
	r.mu.Unlock()
	if respond != nil {
		return respond(cmd), nil
	}
	return "", nil
}

func (r *recordingChannel) Dispatch(ctx context.Context, cmd string) error {
	_, err := r.Send(ctx, cmd)
	return err
}

func (r *recordingChannel) IsAvailable() bool          { return r.available }
func (r *recordingChannel) Strategy() channel.Strategy { return r.strategy }

func (r *recordingChannel) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

var testOptions = Options{
	LockNotice:       "Server locked",
	UnlockNotice:     "Server open",
	EvictOnLock:      true,
	PrivilegeCheck:   "lp user %s permission check kingdomcraft.staff",
	PrivilegedMarker: "true",
	KickReason:       "Maintenance",
}

func TestToggleTwice(t *testing.T) {
	ch := &recordingChannel{strategy: channel.StrategyPolled, available: true}
	m := New(ch, testOptions, slog.Default())

	assert.False(t, m.Locked())

	tr, err := m.Toggle(context.Background())
	require.NoError(t, err)
	assert.True(t, m.Locked())
	assert.Equal(t, Open, tr.From)
	assert.Equal(t, Locked, tr.To)

	tr, err = m.Toggle(context.Background())
	require.NoError(t, err)
	assert.False(t, m.Locked())
	assert.Equal(t, Open, tr.To)

	assert.Equal(t, []string{
		"whitelist on", "say Server locked",
		"whitelist off", "say Server open",
	}, ch.commands())
}

func TestToggleIsOptimistic(t *testing.T) {
	ch := &recordingChannel{strategy: channel.StrategyPolled, available: false}
	m := New(ch, testOptions, slog.Default())

	_, err := m.Toggle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, channel.ErrNotConnected)
	assert.True(t, m.Locked(), "flag stays flipped when enforcement cannot be delivered")
	assert.Equal(t, Locked, m.State())
}

func TestTogglePolledNeverEvicts(t *testing.T) {
	ch := &recordingChannel{strategy: channel.StrategyPolled, available: true}
	m := New(ch, testOptions, slog.Default())

	_, err := m.Toggle(context.Background())
	require.NoError(t, err)
	for _, cmd := range ch.commands() {
		assert.NotEqual(t, "list", cmd)
	}
}

func TestEvictionSkipsPrivileged(t *testing.T) {
	ch := &recordingChannel{
		strategy:  channel.StrategyPersistent,
		available: true,
		respond: func(cmd string) string {
			switch {
			case cmd == "list":
				return "There are 3 of a max of 20 players online: Alice, Bob, Carol"
			case strings.Contains(cmd, " Alice "):
				return "Alice has permission kingdomcraft.staff set to true"
			case strings.HasPrefix(cmd, "lp user"):
				return "permission kingdomcraft.staff is not set (false)"
			}
			return ""
		},
	}
	m := New(ch, testOptions, slog.Default())

	tr, err := m.Toggle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob", "Carol"}, tr.Evicted)

	cmds := ch.commands()
	assert.Contains(t, cmds, "kick Bob Maintenance")
	assert.Contains(t, cmds, "kick Carol Maintenance")
	assert.NotContains(t, cmds, "kick Alice Maintenance")
}

func TestEvictionStopsWhenUnlocked(t *testing.T) {
	var m *Machine
	ch := &recordingChannel{strategy: channel.StrategyPersistent, available: true}
	ch.respond = func(cmd string) string {
		switch {
		case cmd == "list":
			return "There are 2 of a max of 20 players online: Bob, Carol"
		case strings.HasPrefix(cmd, "lp user Bob"):
			// Another operator unlocks while this check is in flight.
			_, _ = m.Toggle(context.Background())
			return "false"
		}
		return "false"
	}
	m = New(ch, testOptions, slog.Default())

	tr, err := m.Toggle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tr.Evicted)
	for _, cmd := range ch.commands() {
		assert.False(t, strings.HasPrefix(cmd, "kick"), "unexpected %q", cmd)
	}
}

func TestEvictionDisabled(t *testing.T) {
	opts := testOptions
	opts.EvictOnLock = false
	ch := &recordingChannel{strategy: channel.StrategyPersistent, available: true}
	m := New(ch, opts, slog.Default())

	_, err := m.Toggle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"whitelist on", "say Server locked"}, ch.commands())
}

func TestEvictionIgnoresMarkerInPlayerName(t *testing.T) {
	staff := map[string]bool{"Alice": true}
	ch := &recordingChannel{
		strategy:  channel.StrategyPersistent,
		available: true,
		respond: func(cmd string) string {
			if cmd == "list" {
				return "There are 3 of a max of 20 players online: trueblood, Alice, true"
			}
			if strings.HasPrefix(cmd, "lp user ") {
				name := strings.Fields(cmd)[2]
				return fmt.Sprintf("%s has permission kingdomcraft.staff set to %t", name, staff[name])
			}
			return ""
		},
	}
	m := New(ch, testOptions, slog.Default())

	tr, err := m.Toggle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"trueblood", "true"}, tr.Evicted)
	assert.Contains(t, ch.commands(), "kick trueblood Maintenance")
	assert.NotContains(t, ch.commands(), "kick Alice Maintenance")
}

func TestIsPrivileged(t *testing.T) {
	m := New(&recordingChannel{}, testOptions, slog.Default())

	tests := []struct {
		player string
		res    string
		want   bool
	}{
		{"Alice", "Alice has permission kingdomcraft.staff set to true", true},
		{"Alice", "Alice has permission kingdomcraft.staff set to true.", true},
		{"Bob", "Bob has permission kingdomcraft.staff set to false", false},
		{"trueblood", "trueblood has permission kingdomcraft.staff set to false", false},
		{"Bob", "permission kingdomcraft.staff is not set (false)", false},
		{"Bob", "untrue", false},
	}
	for _, tt := range tests {
		t.Run(tt.res, func(t *testing.T) {
			assert.Equal(t, tt.want, m.isPrivileged(tt.player, tt.res))
		})
	}
}
