// ABOUTME: Active liveness probe for the persistent strategy.
// ABOUTME: Periodically runs "list" over the channel and feeds the parsed result as a heartbeat.

package liveness

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/craft-bridge/internal/rcon"
)

// Sender is the part of the command channel the prober needs.
type Sender interface {
	Send(ctx context.Context, command string) (string, error)
	IsAvailable() bool
}

// Prober turns "list" output into heartbeats.
type Prober struct {
	sender   Sender
	tracker  *Tracker
	interval time.Duration
	logger   *slog.Logger
}

// NewProber creates a Prober. A zero interval uses DefaultReconcile.
func NewProber(sender Sender, tracker *Tracker, interval time.Duration, logger *slog.Logger) *Prober {
	if interval <= 0 {
		interval = DefaultReconcile
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		sender:   sender,
		tracker:  tracker,
		interval: interval,
		logger:   logger.With("component", "prober"),
	}
}

// Probe runs one "list" round trip. It returns false when the server could
// not be asked.
func (p *Prober) Probe(ctx context.Context) bool {
	if !p.sender.IsAvailable() {
		return false
	}

	out, err := p.sender.Send(ctx, "list")
	if err != nil {
		p.logger.Debug("probe failed", "error", err)
		return false
	}

	count, players := rcon.ParseList(out)
	p.tracker.ReceiveHeartbeat(players, count)
	return true
}

// Run probes every interval until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
