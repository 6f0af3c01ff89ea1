// ABOUTME: Tests for chat commands and event rendering.
// ABOUTME: Uses a scripted channel, a fixed presence snapshot and a fake locker.

package commands

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/craft-bridge/internal/channel"
	"github.com/2389/craft-bridge/internal/liveness"
	"github.com/2389/craft-bridge/internal/lock"
	"github.com/2389/craft-bridge/internal/store"
)

type scriptedChannel struct {
	mu        sync.Mutex
	strategy  channel.Strategy
	available bool
	sent      []string
	replies   map[string]string
}

func (s *scriptedChannel) Send(_ context.Context, cmd string) (string, error) {
	if !s.available {
		return "", channel.ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, cmd)
	return s.replies[cmd], nil
}

func (s *scriptedChannel) Dispatch(ctx context.Context, cmd string) error {
	_, err := s.Send(ctx, cmd)
	return err
}

func (s *scriptedChannel) IsAvailable() bool          { return s.available }
func (s *scriptedChannel) Strategy() channel.Strategy {
	if s.strategy == "" {
		return channel.StrategyPolled
	}
	return s.strategy
}

type fixedPresence liveness.Snapshot

func (p fixedPresence) Snapshot() liveness.Snapshot { return liveness.Snapshot(p) }

type fakeLocker struct {
	locked bool
}

func (f *fakeLocker) Toggle(context.Context) (lock.Transition, error) {
	f.locked = !f.locked
	if f.locked {
		return lock.Transition{From: lock.Open, To: lock.Locked}, nil
	}
	return lock.Transition{From: lock.Locked, To: lock.Open}, nil
}

func (f *fakeLocker) Locked() bool { return f.locked }

var testInfo = Info{Name: "KingdomCraft", Address: "continents.cc", Version: "Paper 1.21.1"}

func newTestHandler(ch *scriptedChannel) (*Handler, *fakeLocker) {
	l := &fakeLocker{}
	p := fixedPresence{Online: true, Players: []string{"Alice", "Bob"}, PlayerCount: 2}
	return New(ch, p, l, Options{Info: testInfo, Source: "Matrix"}, slog.Default()), l
}

func TestHandleStatus(t *testing.T) {
	h, _ := newTestHandler(&scriptedChannel{available: true})

	r := h.Handle(context.Background(), Request{Text: "status"})
	assert.False(t, r.Failed)
	assert.Contains(t, r.Markdown, "KingdomCraft")
	assert.Contains(t, r.Markdown, "🟢 Online")
	assert.Contains(t, r.Markdown, "**Players:** 2")
	assert.Contains(t, r.Markdown, "`continents.cc`")
	assert.Contains(t, r.Markdown, "🔓 Open")
}

func TestHandlePlayers(t *testing.T) {
	ch := &scriptedChannel{available: true, replies: map[string]string{"list": "Command executed"}}
	h, _ := newTestHandler(ch)

	r := h.Handle(context.Background(), Request{Text: "players"})
	require.False(t, r.Failed)
	assert.Contains(t, r.Markdown, "(2)")
	assert.Contains(t, r.Markdown, "- Alice\n")
	assert.Contains(t, r.Markdown, "- Bob\n")
	assert.Empty(t, ch.sent, "polled strategy answers from the heartbeat")
}

func TestHandlePlayersPersistent(t *testing.T) {
	ch := &scriptedChannel{strategy: channel.StrategyPersistent, available: true, replies: map[string]string{
		"list": "There are 2 of a max of 20 players online: Carol, Bob",
	}}
	h, _ := newTestHandler(ch)

	r := h.Handle(context.Background(), Request{Text: "players"})
	require.False(t, r.Failed)
	assert.Contains(t, r.Markdown, "(2)")
	assert.Less(t, strings.Index(r.Markdown, "Bob"), strings.Index(r.Markdown, "Carol"))
	assert.Equal(t, []string{"list"}, ch.sent)
}

func TestHandlePlayersTimeout(t *testing.T) {
	ch := &scriptedChannel{strategy: channel.StrategyPersistent, available: true, replies: map[string]string{"list": channel.TimeoutResult}}
	h, _ := newTestHandler(ch)

	r := h.Handle(context.Background(), Request{Text: "players"})
	assert.True(t, r.Failed)
	assert.Contains(t, r.Markdown, channel.TimeoutResult)
}

func TestHandleOffline(t *testing.T) {
	h, _ := newTestHandler(&scriptedChannel{available: false})

	for _, text := range []string{"players", "say hi"} {
		r := h.Handle(context.Background(), Request{Text: text})
		assert.True(t, r.Failed, text)
		assert.Contains(t, r.Markdown, "Server is offline", text)
	}
}

func TestHandleSay(t *testing.T) {
	ch := &scriptedChannel{available: true}
	h, _ := newTestHandler(ch)

	r := h.Handle(context.Background(), Request{Sender: "alice", Text: `say hello "world"`})
	require.False(t, r.Failed)
	require.Len(t, ch.sent, 1)
	assert.True(t, strings.HasPrefix(ch.sent[0], "tellraw @a "))
	assert.Contains(t, ch.sent[0], "[Matrix] ")
	assert.Contains(t, ch.sent[0], "hello 'world'")

	r = h.Handle(context.Background(), Request{Text: "say"})
	assert.True(t, r.Failed)
	assert.Contains(t, r.Markdown, "Usage")
}

func TestHandleAdminCommands(t *testing.T) {
	ch := &scriptedChannel{available: true, replies: map[string]string{
		"time set day":             "Set the time to 1000",
		"whitelist add Steve":      "Added Steve to the whitelist",
		"whitelist remove Mallory": "Removed Mallory from the whitelist",
	}}
	h, l := newTestHandler(ch)
	ctx := context.Background()

	t.Run("rejected without admin", func(t *testing.T) {
		for _, text := range []string{"cmd time set day", "whitelist add Steve", "lock"} {
			r := h.Handle(ctx, Request{Text: text})
			assert.True(t, r.Failed)
			assert.Contains(t, r.Markdown, "admin")
		}
		assert.Empty(t, ch.sent)
		assert.False(t, l.locked)
	})

	t.Run("cmd", func(t *testing.T) {
		r := h.Handle(ctx, Request{Admin: true, Text: "cmd time set day"})
		require.False(t, r.Failed)
		assert.Contains(t, r.Markdown, "Set the time to 1000")
	})

	t.Run("whitelist", func(t *testing.T) {
		r := h.Handle(ctx, Request{Admin: true, Text: "whitelist add Steve"})
		require.False(t, r.Failed)
		assert.Contains(t, r.Markdown, "**Steve**")

		r = h.Handle(ctx, Request{Admin: true, Text: "whitelist remove Mallory"})
		require.False(t, r.Failed)

		r = h.Handle(ctx, Request{Admin: true, Text: "whitelist nuke Steve"})
		assert.True(t, r.Failed)
	})

	t.Run("lock toggles", func(t *testing.T) {
		r := h.Handle(ctx, Request{Admin: true, Text: "lock"})
		assert.Contains(t, r.Markdown, "locked")
		assert.True(t, l.locked)

		r = h.Handle(ctx, Request{Admin: true, Text: "LOCK"})
		assert.Contains(t, r.Markdown, "unlocked")
		assert.False(t, l.locked)
	})
}

func TestHandleUnknownAndHelp(t *testing.T) {
	h, _ := newTestHandler(&scriptedChannel{available: true})

	r := h.Handle(context.Background(), Request{Text: "dance"})
	assert.True(t, r.Failed)
	assert.Contains(t, r.Markdown, "Unknown command")

	r = h.Handle(context.Background(), Request{Text: "help"})
	assert.Contains(t, r.Markdown, "`status`")
	assert.NotContains(t, r.Markdown, "`cmd <command>`")

	r = h.Handle(context.Background(), Request{Admin: true, Text: ""})
	assert.Contains(t, r.Markdown, "`cmd <command>`")
}

func TestShouldRelay(t *testing.T) {
	assert.True(t, ShouldRelay("hello"))
	assert.False(t, ShouldRelay("!status"))
	assert.False(t, ShouldRelay("/me waves"))
	assert.False(t, ShouldRelay("   "))
}

func TestRenderEvent(t *testing.T) {
	tests := []struct {
		name   string
		event  store.GameEvent
		chat   string
		log    string
		noChat bool
	}{
		{"chat", store.GameEvent{Kind: store.EventChat, Player: "Alice", Message: "hi"}, "**Alice**: hi", "", false},
		{"join", store.GameEvent{Kind: store.EventJoin, Player: "Alice", Detail: map[string]any{"action": "join"}}, "joined the server", "", false},
		{"leave", store.GameEvent{Kind: store.EventJoin, Player: "Alice", Detail: map[string]any{"action": "leave"}}, "left the server", "", false},
		{"death", store.GameEvent{Kind: store.EventDeath, Player: "Bob", Message: "fell"}, "☠️ **Bob** has died. fell", "[Death] Bob: fell", false},
		{"king death", store.GameEvent{Kind: store.EventDeath, Player: "Bob", Detail: map[string]any{"isKing": true}}, "The King Has Died", "[Death] Bob: Unknown cause", false},
		{"kingdom created", store.GameEvent{Kind: store.EventKingdom, Player: "Ann", Detail: map[string]any{"action": "created", "kingdom": "Avalon"}}, "**Avalon** has been founded by **Ann**", "", false},
		{"kingdom other", store.GameEvent{Kind: store.EventKingdom, Message: "war declared", Detail: map[string]any{"action": "war"}}, "war declared", "", false},
		{"server start", store.GameEvent{Kind: store.EventServer, Detail: map[string]any{"action": "start"}}, "`continents.cc`", "", false},
		{"server unknown", store.GameEvent{Kind: store.EventServer, Detail: map[string]any{"action": "reload"}}, "", "", true},
		{"lock", store.GameEvent{Kind: store.EventLock, Message: "locked by panel"}, "", "[Lock] locked by panel", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := RenderEvent(testInfo, tt.event)
			if tt.noChat {
				assert.Empty(t, n.Chat)
			} else {
				assert.Contains(t, n.Chat, tt.chat)
			}
			if tt.log != "" {
				assert.Equal(t, tt.log, n.Log)
			}
		})
	}
}

func TestPresenceLine(t *testing.T) {
	assert.Equal(t, "🔴 KingdomCraft is offline", PresenceLine(testInfo, liveness.Snapshot{}))
	assert.Equal(t, "🟢 KingdomCraft: 1 player online", PresenceLine(testInfo, liveness.Snapshot{Online: true, PlayerCount: 1}))
	assert.Equal(t, "🟢 KingdomCraft: 3 players online", PresenceLine(testInfo, liveness.Snapshot{Online: true, PlayerCount: 3}))
}
