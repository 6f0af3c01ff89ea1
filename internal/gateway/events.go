// ABOUTME: Game event recording with source attribution from the request context
// ABOUTME: Appends to the event ledger, then fans out to notifiers such as the Matrix frontend

package gateway

import (
	"context"

	"github.com/2389/craft-bridge/internal/auth"
	"github.com/2389/craft-bridge/internal/store"
)

// recordEvent saves a game event and forwards it to every notifier. Events
// raised by an authenticated panel request are tagged with source "panel".
// A ledger failure is logged and does not stop the notifications.
func (g *Gateway) recordEvent(ctx context.Context, e *store.GameEvent) {
	if auth.FromContext(ctx) != nil {
		if e.Detail == nil {
			e.Detail = map[string]any{}
		}
		if _, ok := e.Detail["source"]; !ok {
			e.Detail["source"] = "panel"
		}
	}

	if err := g.store.AppendEvent(ctx, e); err != nil {
		g.logger.Warn("failed to record event", "kind", e.Kind, "error", err)
	}

	for _, n := range g.notifiers {
		n.Notify(ctx, *e)
	}
}
