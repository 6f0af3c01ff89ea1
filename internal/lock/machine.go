// ABOUTME: Open/Locked state machine for server access control.
// ABOUTME: Flips the flag optimistically, then dispatches enforcement commands on the channel.

package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/2389/craft-bridge/internal/channel"
	"github.com/2389/craft-bridge/internal/rcon"
)

// State is the lock state.
type State string

const (
	Open   State = "open"
	Locked State = "locked"
)

// Options configures the enforcement commands.
type Options struct {
	LockNotice       string
	UnlockNotice     string
	EvictOnLock      bool
	PrivilegeCheck   string // format string, %s is the player name
	PrivilegedMarker string
	KickReason       string
}

// Transition describes one toggle.
type Transition struct {
	From     State    `json:"from"`
	To       State    `json:"to"`
	Commands []string `json:"commands"`
	Evicted  []string `json:"evicted,omitempty"`
}

// Machine owns the lock flag. The flag is not persisted and starts Open.
//
// The remote effect of a transition is never confirmed: if the enforcement
// commands are lost, the flag still reports the new state.
type Machine struct {
	mu     sync.Mutex
	locked bool

	ch         channel.Channel
	opts       Options
	privileged *regexp.Regexp
	logger     *slog.Logger
}

// New creates a Machine in the Open state.
func New(ch channel.Channel, opts Options, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PrivilegedMarker == "" {
		opts.PrivilegedMarker = "true"
	}
	return &Machine{
		ch:         ch,
		opts:       opts,
		privileged: regexp.MustCompile(`(^|[^\w])` + regexp.QuoteMeta(opts.PrivilegedMarker) + `([^\w]|$)`),
		logger:     logger.With("component", "lock"),
	}
}

// Locked reports the current flag.
func (m *Machine) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// State returns the current state.
func (m *Machine) State() State {
	if m.Locked() {
		return Locked
	}
	return Open
}

// Toggle flips the state and then issues the enforcement commands. A dispatch
// error is returned but the flag stays flipped.
func (m *Machine) Toggle(ctx context.Context) (Transition, error) {
	m.mu.Lock()
	m.locked = !m.locked
	nowLocked := m.locked
	m.mu.Unlock()

	tr := Transition{From: Open, To: Locked}
	notice := m.opts.LockNotice
	allowlist := "whitelist on"
	if !nowLocked {
		tr = Transition{From: Locked, To: Open}
		notice = m.opts.UnlockNotice
		allowlist = "whitelist off"
	}

	m.logger.Info("lock toggled", "from", tr.From, "to", tr.To)

	cmds := []string{allowlist}
	if notice != "" {
		cmds = append(cmds, "say "+notice)
	}

	var errs []error
	for _, cmd := range cmds {
		if err := m.ch.Dispatch(ctx, cmd); err != nil {
			errs = append(errs, fmt.Errorf("dispatching %q: %w", cmd, err))
			continue
		}
		tr.Commands = append(tr.Commands, cmd)
	}

	if nowLocked && m.opts.EvictOnLock && m.ch.Strategy() == channel.StrategyPersistent && len(errs) == 0 {
		evicted, kicks, err := m.evict(ctx)
		tr.Evicted = evicted
		tr.Commands = append(tr.Commands, kicks...)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		m.logger.Warn("lock enforcement incomplete", "to", tr.To, "error", err)
		return tr, err
	}
	return tr, nil
}

// evict kicks every online player whose privilege check fails. It stops as
// soon as the machine is no longer locked, since another toggle may have run
// while a command was in flight.
func (m *Machine) evict(ctx context.Context) ([]string, []string, error) {
	out, err := m.ch.Send(ctx, "list")
	if err != nil {
		return nil, nil, fmt.Errorf("listing players: %w", err)
	}
	_, players := rcon.ParseList(out)

	var evicted, sent []string
	for _, player := range players {
		if !m.Locked() {
			m.logger.Info("eviction stopped, server unlocked")
			break
		}

		res, err := m.ch.Send(ctx, fmt.Sprintf(m.opts.PrivilegeCheck, player))
		if err != nil {
			return evicted, sent, fmt.Errorf("checking %s: %w", player, err)
		}
		if m.isPrivileged(player, res) {
			continue
		}

		if !m.Locked() {
			m.logger.Info("eviction stopped, server unlocked")
			break
		}

		kick := rcon.Kick(player, m.opts.KickReason)
		if err := m.ch.Dispatch(ctx, kick); err != nil {
			return evicted, sent, fmt.Errorf("kicking %s: %w", player, err)
		}
		sent = append(sent, kick)
		evicted = append(evicted, player)
		m.logger.Info("evicted player", "player", player)
	}
	return evicted, sent, nil
}

// isPrivileged reports whether a privilege-check response carries the marker
// as a whole word. The player's name is removed first so a name such as
// "trueblood" cannot satisfy the marker by itself.
func (m *Machine) isPrivileged(player, res string) bool {
	return m.privileged.MatchString(strings.ReplaceAll(res, player, " "))
}
