// ABOUTME: Webhooks posted by the game plugin for chat, joins, deaths, kingdom and server events
// ABOUTME: Every delivery is acknowledged with 200, malformed bodies included

package gateway

import (
	"net/http"

	"github.com/2389/craft-bridge/internal/store"
)

// WebhookPayload covers the fields of every plugin webhook body.
type WebhookPayload struct {
	Player  string `json:"player"`
	Message string `json:"message"`
	Action  string `json:"action"`
	Kingdom string `json:"kingdom"`
	IsKing  bool   `json:"isKing"`
}

func (g *Gateway) handleWebhookChat(w http.ResponseWriter, r *http.Request) {
	g.acceptWebhook(w, r, store.EventChat, func(p WebhookPayload) store.GameEvent {
		return store.GameEvent{Player: p.Player, Message: p.Message}
	})
}

func (g *Gateway) handleWebhookJoin(w http.ResponseWriter, r *http.Request) {
	g.acceptWebhook(w, r, store.EventJoin, func(p WebhookPayload) store.GameEvent {
		return store.GameEvent{Player: p.Player, Detail: map[string]any{"action": p.Action}}
	})
}

func (g *Gateway) handleWebhookDeath(w http.ResponseWriter, r *http.Request) {
	g.acceptWebhook(w, r, store.EventDeath, func(p WebhookPayload) store.GameEvent {
		return store.GameEvent{Player: p.Player, Message: p.Message, Detail: map[string]any{"isKing": p.IsKing}}
	})
}

func (g *Gateway) handleWebhookKingdom(w http.ResponseWriter, r *http.Request) {
	g.acceptWebhook(w, r, store.EventKingdom, func(p WebhookPayload) store.GameEvent {
		return store.GameEvent{
			Player:  p.Player,
			Message: p.Message,
			Detail:  map[string]any{"action": p.Action, "kingdom": p.Kingdom},
		}
	})
}

// handleWebhookServer records start and stop notices. It does not touch the
// lock flag or liveness; heartbeats drive liveness.
func (g *Gateway) handleWebhookServer(w http.ResponseWriter, r *http.Request) {
	g.acceptWebhook(w, r, store.EventServer, func(p WebhookPayload) store.GameEvent {
		return store.GameEvent{Detail: map[string]any{"action": p.Action}}
	})
}

func (g *Gateway) acceptWebhook(w http.ResponseWriter, r *http.Request, kind store.EventKind, build func(WebhookPayload) store.GameEvent) {
	var p WebhookPayload
	if err := decodeJSON(r, &p); err != nil {
		g.logger.Warn("malformed webhook", "kind", kind, "error", err)
		acknowledge(w)
		return
	}

	e := build(p)
	e.Kind = kind
	g.recordEvent(r.Context(), &e)
	acknowledge(w)
}

func acknowledge(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
