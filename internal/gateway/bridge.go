// ABOUTME: Agent-facing bridge endpoints for the polled strategy
// ABOUTME: The game plugin pulls queued commands, reports results and sends heartbeats

package gateway

import (
	"net/http"

	"github.com/2389/craft-bridge/internal/channel"
)

// PollResponse is the JSON response for POST /bridge/poll.
type PollResponse struct {
	Commands []channel.Command `json:"commands"`
}

// HeartbeatRequest is the JSON request body for POST /bridge/heartbeat.
// A missing playerCount is taken from the player list.
type HeartbeatRequest struct {
	Players     []string `json:"players"`
	PlayerCount *int     `json:"playerCount"`
}

// HeartbeatResponse is the JSON response for POST /bridge/heartbeat.
type HeartbeatResponse struct {
	OK     bool `json:"ok"`
	Queued int  `json:"queued"`
}

// ResultRequest is the JSON request body for POST /bridge/result.
type ResultRequest struct {
	ID     int64  `json:"id"`
	Result string `json:"result"`
}

// AckResponse acknowledges agent deliveries.
type AckResponse struct {
	OK bool `json:"ok"`
}

// handleBridgePoll hands every queued command to the agent. Delivery is at
// most once: commands in a lost response surface to callers as timeouts.
func (g *Gateway) handleBridgePoll(w http.ResponseWriter, r *http.Request) {
	cmds := g.polled.Drain()
	if len(cmds) > 0 {
		g.logger.Debug("delivering commands to agent", "count", len(cmds), "first_id", cmds[0].ID)
	}
	writeJSON(w, http.StatusOK, PollResponse{Commands: cmds})
}

// handleBridgeHeartbeat refreshes liveness and reports the queue depth.
// Malformed bodies are acknowledged without touching liveness.
func (g *Gateway) handleBridgeHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		g.logger.Warn("malformed heartbeat", "error", err)
		writeJSON(w, http.StatusOK, HeartbeatResponse{OK: true, Queued: g.polled.Depth()})
		return
	}

	count := len(req.Players)
	if req.PlayerCount != nil {
		count = *req.PlayerCount
	}
	players := req.Players
	if players == nil {
		players = []string{}
	}
	g.tracker.ReceiveHeartbeat(players, count)

	writeJSON(w, http.StatusOK, HeartbeatResponse{OK: true, Queued: g.polled.Depth()})
}

// handleBridgeResult delivers a command result. Unknown, duplicate and late
// ids are acknowledged like any other.
func (g *Gateway) handleBridgeResult(w http.ResponseWriter, r *http.Request) {
	var req ResultRequest
	if err := decodeJSON(r, &req); err != nil {
		g.logger.Warn("malformed command result", "error", err)
		writeJSON(w, http.StatusOK, AckResponse{OK: true})
		return
	}

	if !g.polled.Resolve(req.ID, req.Result) {
		g.logger.Debug("result for unknown or settled command ignored", "command_id", req.ID)
	}
	writeJSON(w, http.StatusOK, AckResponse{OK: true})
}
