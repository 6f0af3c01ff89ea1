// ABOUTME: Health endpoints for the gateway process and the game server behind it
// ABOUTME: GET / summarizes liveness, /health is process liveness, /health/ready needs the remote

package gateway

import (
	"fmt"
	"net/http"
)

// RootResponse is the JSON response for GET /.
type RootResponse struct {
	Status       string `json:"status"`
	ServerOnline bool   `json:"serverOnline"`
	PlayerCount  int    `json:"playerCount"`
}

func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	snap := g.tracker.Snapshot()
	writeJSON(w, http.StatusOK, RootResponse{
		Status:       "ok",
		ServerOnline: snap.Online,
		PlayerCount:  snap.PlayerCount,
	})
}

// handleHealth returns 200 OK if the process is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once commands can reach the game server.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if !g.channel.IsAvailable() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("game server not reachable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%s)", g.channel.Strategy())
}
