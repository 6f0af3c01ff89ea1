// ABOUTME: Operator panel endpoints: login, status, players, console commands and quick actions
// ABOUTME: Every route but login requires a bearer token issued by the token store

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/craft-bridge/internal/auth"
	"github.com/2389/craft-bridge/internal/channel"
	"github.com/2389/craft-bridge/internal/lock"
	"github.com/2389/craft-bridge/internal/store"
)

// LoginRequest is the JSON request body for POST /panel/login.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse is the JSON response for POST /panel/login.
type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
}

// PanelStatus is the JSON response for GET /panel/status and the payload
// pushed on /panel/ws.
type PanelStatus struct {
	ServerOnline bool `json:"serverOnline"`
	PlayerCount  int  `json:"playerCount"`
	ServerLocked bool `json:"serverLocked"`
	Connected    bool `json:"connected"`
}

// PlayersResponse is the JSON response for GET /panel/players.
type PlayersResponse struct {
	Players []string `json:"players"`
}

// CommandRequest is the JSON request body for POST /panel/command.
type CommandRequest struct {
	Command string `json:"command"`
}

// CommandResponse is the JSON response for POST /panel/command.
type CommandResponse struct {
	Response string `json:"response"`
}

// ActionRequest is the JSON request body for POST /panel/action.
type ActionRequest struct {
	Action string `json:"action"`
}

// ActionResponse is the JSON response for POST /panel/action.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HistoryResponse is the JSON response for GET /panel/history.
type HistoryResponse struct {
	Commands []store.CommandRecord `json:"commands"`
}

// EventsResponse is the JSON response for GET /panel/events.
type EventsResponse struct {
	Events []store.GameEvent `json:"events"`
}

type panelAction struct {
	commands []string
	message  string
}

// panelActions maps quick actions to fixed console commands. toggle-lock is
// handled by the lock machine.
var panelActions = map[string]panelAction{
	"save":          {commands: []string{"save-all"}, message: "World save queued"},
	"weather-clear": {commands: []string{"weather clear"}, message: "Weather cleared"},
	"time-day":      {commands: []string{"time set day"}, message: "Time set to day"},
	"time-night":    {commands: []string{"time set night"}, message: "Time set to night"},
	"whitelist-on":  {commands: []string{"whitelist on"}, message: "Whitelist enabled"},
	"whitelist-off": {commands: []string{"whitelist off"}, message: "Whitelist disabled"},
	"stop":          {commands: []string{"stop"}, message: "Server stop queued"},
}

const actionToggleLock = "toggle-lock"

func (g *Gateway) handlePanelLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, LoginResponse{Success: false})
		return
	}

	if !g.passwords.Check(req.Password) {
		g.logger.Warn("panel login rejected", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, LoginResponse{Success: false})
		return
	}

	token := g.tokens.Issue()
	g.logger.Info("panel login", "remote", r.RemoteAddr, "sessions", g.tokens.Len())
	writeJSON(w, http.StatusOK, LoginResponse{Success: true, Token: token})
}

func (g *Gateway) handlePanelLogout(w http.ResponseWriter, r *http.Request) {
	if op := auth.FromContext(r.Context()); op != nil {
		g.tokens.Revoke(op.Token)
	}
	writeJSON(w, http.StatusOK, ActionResponse{Success: true, Message: "Logged out"})
}

// status reads the panel view. The lock flag is reported as soon as it
// flips, whether or not the agent has picked up the enforcement commands.
func (g *Gateway) status() PanelStatus {
	snap := g.tracker.Snapshot()
	return PanelStatus{
		ServerOnline: snap.Online,
		PlayerCount:  snap.PlayerCount,
		ServerLocked: g.lock.Locked(),
		Connected:    g.channel.IsAvailable(),
	}
}

func (g *Gateway) handlePanelStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.status())
}

func (g *Gateway) handlePanelPlayers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PlayersResponse{Players: g.tracker.Snapshot().Players})
}

// handlePanelCommand runs a console command and waits for its result. A
// timeout is reported as the timeout text, not as an error.
func (g *Gateway) handlePanelCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := decodeJSON(r, &req); err != nil || req.Command == "" {
		sendJSONError(w, http.StatusBadRequest, "command is required")
		return
	}

	out, err := g.channel.Send(r.Context(), req.Command)
	if err != nil {
		g.writeChannelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Response: out})
}

func (g *Gateway) handlePanelAction(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ActionResponse{Success: false, Message: "invalid request body"})
		return
	}

	if req.Action == actionToggleLock {
		g.togglePanelLock(w, r)
		return
	}

	action, ok := panelActions[req.Action]
	if !ok {
		writeJSON(w, http.StatusBadRequest, ActionResponse{Success: false, Message: fmt.Sprintf("unknown action %q", req.Action)})
		return
	}

	for _, cmd := range action.commands {
		if err := g.channel.Dispatch(r.Context(), cmd); err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, channel.ErrNotConnected) {
				status = http.StatusServiceUnavailable
			}
			writeJSON(w, status, ActionResponse{Success: false, Message: err.Error()})
			return
		}
	}

	g.recordEvent(r.Context(), &store.GameEvent{
		Kind:    store.EventAction,
		Message: req.Action,
		Detail:  map[string]any{"action": req.Action},
	})
	writeJSON(w, http.StatusOK, ActionResponse{Success: true, Message: action.message})
}

// togglePanelLock flips the lock. The flag stays flipped when enforcement
// commands could not be delivered; the response says so.
func (g *Gateway) togglePanelLock(w http.ResponseWriter, r *http.Request) {
	tr, err := g.lock.Toggle(r.Context())

	msg := "Server unlocked"
	if tr.To == lock.Locked {
		msg = "Server locked"
	}
	if err != nil {
		g.logger.Warn("lock enforcement incomplete", "to", tr.To, "error", err)
		msg += " (some commands could not be delivered)"
	}

	detail := map[string]any{"from": string(tr.From), "to": string(tr.To)}
	if len(tr.Evicted) > 0 {
		detail["evicted"] = tr.Evicted
	}
	g.recordEvent(r.Context(), &store.GameEvent{
		Kind:    store.EventLock,
		Message: fmt.Sprintf("%s by panel", tr.To),
		Detail:  detail,
	})
	g.publishStatus(g.tracker.Snapshot())

	writeJSON(w, http.StatusOK, ActionResponse{Success: true, Message: msg})
}

func (g *Gateway) handlePanelHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	recs, err := g.store.ListCommands(r.Context(), limit)
	if err != nil {
		g.logger.Error("listing command history", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Commands: recs})
}

func (g *Gateway) handlePanelEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	filter := store.EventFilter{Limit: limit}
	q := r.URL.Query()
	if v := q.Get("kind"); v != "" {
		kind := store.EventKind(v)
		filter.Kind = &kind
	}
	if v := q.Get("player"); v != "" {
		filter.Player = &v
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			sendJSONError(w, http.StatusBadRequest, "invalid since (want RFC3339)")
			return
		}
		filter.Since = &since
	}

	events, err := g.store.ListEvents(r.Context(), filter)
	if err != nil {
		g.logger.Error("listing events", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: events})
}

func (g *Gateway) writeChannelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, channel.ErrNotConnected):
		sendJSONError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		g.logger.Warn("command failed", "error", err)
		sendJSONError(w, http.StatusBadGateway, "command failed")
	}
}

// queryInt parses an optional integer query parameter. Missing yields 0.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
