// ABOUTME: Heartbeat-driven liveness tracker for the remote game server.
// ABOUTME: Online iff the last heartbeat is younger than the TTL; reconciles on a fixed interval.

package liveness

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Defaults for the tracker timings.
const (
	DefaultTTL       = 60 * time.Second
	DefaultReconcile = 30 * time.Second
)

// Snapshot is a copy of the current liveness state.
type Snapshot struct {
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	Online        bool      `json:"serverOnline"`
	Players       []string  `json:"players"`
	PlayerCount   int       `json:"playerCount"`
}

// Tracker records heartbeats and derives whether the server is reachable.
// There is no hysteresis: the state can flap when heartbeats arrive near the
// TTL boundary.
type Tracker struct {
	mu            sync.Mutex
	lastHeartbeat time.Time
	online        bool
	players       []string
	playerCount   int
	subscribers   []func(Snapshot)

	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewTracker creates a Tracker. Zero durations use the defaults.
func NewTracker(ttl, interval time.Duration, logger *slog.Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if interval <= 0 {
		interval = DefaultReconcile
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		players:  []string{},
		ttl:      ttl,
		interval: interval,
		logger:   logger.With("component", "liveness"),
		now:      time.Now,
	}
}

// Subscribe registers fn to receive a snapshot on every publication.
func (t *Tracker) Subscribe(fn func(Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers = append(t.subscribers, fn)
}

// ReceiveHeartbeat marks the server online and replaces the player list.
func (t *Tracker) ReceiveHeartbeat(players []string, count int) {
	list := make([]string, len(players))
	copy(list, players)

	t.mu.Lock()
	wasOnline := t.online && t.fresh()
	t.lastHeartbeat = t.now()
	t.online = true
	t.players = list
	t.playerCount = count
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if !wasOnline {
		t.logger.Info("server came online", "players", count)
		t.publish(snap)
	}
}

// IsOnline reports whether a heartbeat arrived within the TTL. It is false
// before the first heartbeat.
func (t *Tracker) IsOnline() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fresh()
}

// Snapshot returns the current state. Players are cleared only by Reconcile,
// so a stale snapshot may still carry the last known list until then.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Reconcile recomputes the online flag, clears player data on a drop to
// offline, and publishes the result.
func (t *Tracker) Reconcile() Snapshot {
	t.mu.Lock()
	wasOnline := t.online
	t.online = t.fresh()
	if wasOnline && !t.online {
		t.players = []string{}
		t.playerCount = 0
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if wasOnline && !snap.Online {
		t.logger.Warn("server went offline", "last_heartbeat", snap.LastHeartbeat)
	}
	t.publish(snap)
	return snap
}

// MarkOffline handles a disconnect event from the persistent transport.
func (t *Tracker) MarkOffline() {
	t.mu.Lock()
	wasOnline := t.online
	t.lastHeartbeat = time.Time{}
	t.online = false
	t.players = []string{}
	t.playerCount = 0
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if wasOnline {
		t.logger.Warn("server connection lost")
		t.publish(snap)
	}
}

// Run reconciles every interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Reconcile()
		}
	}
}

func (t *Tracker) fresh() bool {
	if t.lastHeartbeat.IsZero() {
		return false
	}
	return t.now().Sub(t.lastHeartbeat) < t.ttl
}

func (t *Tracker) snapshotLocked() Snapshot {
	players := make([]string, len(t.players))
	copy(players, t.players)
	return Snapshot{
		LastHeartbeat: t.lastHeartbeat,
		Online:        t.fresh(),
		Players:       players,
		PlayerCount:   t.playerCount,
	}
}

func (t *Tracker) publish(snap Snapshot) {
	t.mu.Lock()
	subs := make([]func(Snapshot), len(t.subscribers))
	copy(subs, t.subscribers)
	t.mu.Unlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Error("panic in liveness subscriber", "panic", r)
				}
			}()
			fn(snap)
		}()
	}
}
