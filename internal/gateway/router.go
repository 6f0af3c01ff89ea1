// ABOUTME: HTTP route table for the gateway
// ABOUTME: Bridge routes take the agent API key, panel routes a bearer token, webhooks nothing

package gateway

import (
	"net/http"

	"github.com/2389/craft-bridge/internal/auth"
)

// registerRoutes mounts every endpoint on mux. Bridge routes exist only for
// the polled strategy.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	// Health endpoints - no auth required
	mux.HandleFunc("GET /{$}", g.handleRoot)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	if g.polled != nil {
		apiKey := auth.APIKeyMiddleware(g.config.Bridge.APIKey)
		mux.Handle("POST /bridge/poll", apiKey(http.HandlerFunc(g.handleBridgePoll)))
		mux.Handle("POST /bridge/heartbeat", apiKey(http.HandlerFunc(g.handleBridgeHeartbeat)))
		mux.Handle("POST /bridge/result", apiKey(http.HandlerFunc(g.handleBridgeResult)))
	}

	mux.HandleFunc("POST /panel/login", g.handlePanelLogin)

	bearer := auth.BearerMiddleware(g.tokens)
	mux.Handle("POST /panel/logout", bearer(http.HandlerFunc(g.handlePanelLogout)))
	mux.Handle("GET /panel/status", bearer(http.HandlerFunc(g.handlePanelStatus)))
	mux.Handle("GET /panel/players", bearer(http.HandlerFunc(g.handlePanelPlayers)))
	mux.Handle("POST /panel/command", bearer(http.HandlerFunc(g.handlePanelCommand)))
	mux.Handle("POST /panel/action", bearer(http.HandlerFunc(g.handlePanelAction)))
	mux.Handle("GET /panel/history", bearer(http.HandlerFunc(g.handlePanelHistory)))
	mux.Handle("GET /panel/events", bearer(http.HandlerFunc(g.handlePanelEvents)))
	mux.Handle("GET /panel/ws", bearer(http.HandlerFunc(g.handlePanelWS)))

	// Webhooks from the game plugin - unauthenticated, always acknowledged
	mux.HandleFunc("POST /mc/chat", g.handleWebhookChat)
	mux.HandleFunc("POST /mc/join", g.handleWebhookJoin)
	mux.HandleFunc("POST /mc/death", g.handleWebhookDeath)
	mux.HandleFunc("POST /mc/kingdom", g.handleWebhookKingdom)
	mux.HandleFunc("POST /mc/server", g.handleWebhookServer)
}
