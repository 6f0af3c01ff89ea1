// ABOUTME: Tests for the operator panel endpoints
// ABOUTME: Covers login, bearer enforcement, status, quick actions and the ledgers

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/craft-bridge/internal/auth"
	"github.com/2389/craft-bridge/internal/store"
)

func login(t *testing.T, gw *Gateway) string {
	t.Helper()
	rec := do(t, gw, http.MethodPost, "/panel/login", `{"password":"`+testPassword+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func panelStatus(t *testing.T, gw *Gateway, token string) PanelStatus {
	t.Helper()
	rec := do(t, gw, http.MethodGet, "/panel/status", "", bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	var st PanelStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	return st
}

func TestPanelLogin(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))

	token := login(t, gw)
	assert.True(t, gw.tokens.Valid(token))

	rec := do(t, gw, http.MethodPost, "/panel/login", `{"password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"success":false}`, rec.Body.String())

	rec = do(t, gw, http.MethodPost, "/panel/login", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 1, gw.tokens.Len())
}

func TestPanelLogin_BcryptHash(t *testing.T) {
	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Panel.Password = ""
	cfg.Panel.PasswordHash = hash
	gw := newTestGateway(t, cfg)

	rec := do(t, gw, http.MethodPost, "/panel/login", `{"password":"s3cret"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPanelRequiresToken(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))

	routes := []struct{ method, path string }{
		{http.MethodGet, "/panel/status"},
		{http.MethodGet, "/panel/players"},
		{http.MethodPost, "/panel/command"},
		{http.MethodPost, "/panel/action"},
		{http.MethodGet, "/panel/history"},
		{http.MethodGet, "/panel/events"},
		{http.MethodPost, "/panel/logout"},
	}
	for _, rt := range routes {
		rec := do(t, gw, rt.method, rt.path, `{}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, rt.path)

		rec = do(t, gw, rt.method, rt.path, `{}`, bearer("made-up"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, rt.path)
	}

	// the agent key is not an operator token
	rec := do(t, gw, http.MethodGet, "/panel/status", "", agentHeader())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPanelLogout(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))
	token := login(t, gw)

	rec := do(t, gw, http.MethodPost, "/panel/logout", "", bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, gw, http.MethodGet, "/panel/status", "", bearer(token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPanelStatusAndPlayers(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))
	token := login(t, gw)

	assert.Equal(t, PanelStatus{}, panelStatus(t, gw, token))

	heartbeat(t, gw, `{"players":["Alice","Bob"],"playerCount":2}`)
	assert.Equal(t, PanelStatus{ServerOnline: true, PlayerCount: 2, Connected: true}, panelStatus(t, gw, token))

	rec := do(t, gw, http.MethodGet, "/panel/players", "", bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"players":["Alice","Bob"]}`, rec.Body.String())
}

func TestPanelToggleLockReflectedBeforePoll(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))
	notifier := &recordingNotifier{}
	gw.notifiers = append(gw.notifiers, notifier)
	token := login(t, gw)
	heartbeat(t, gw, `{"players":[],"playerCount":0}`)

	rec := do(t, gw, http.MethodPost, "/panel/action", `{"action":"toggle-lock"}`, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Server locked"}`, rec.Body.String())

	assert.True(t, panelStatus(t, gw, token).ServerLocked)
	assert.Equal(t, 2, gw.polled.Depth())

	cmds := poll(t, gw).Commands
	require.Len(t, cmds, 2)
	assert.Equal(t, "whitelist on", cmds[0].Text)
	assert.Equal(t, "say "+gw.config.Lock.LockNotice, cmds[1].Text)

	events := notifier.received()
	require.Len(t, events, 1)
	assert.Equal(t, store.EventLock, events[0].Kind)
	assert.Equal(t, "locked by panel", events[0].Message)
	assert.Equal(t, "panel", events[0].Detail["source"])

	rec = do(t, gw, http.MethodPost, "/panel/action", `{"action":"toggle-lock"}`, bearer(token))
	assert.JSONEq(t, `{"success":true,"message":"Server unlocked"}`, rec.Body.String())
	assert.False(t, panelStatus(t, gw, token).ServerLocked)
}

func TestPanelToggleLockWhileOffline(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))
	token := login(t, gw)

	rec := do(t, gw, http.MethodPost, "/panel/action", `{"action":"toggle-lock"}`, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "could not be delivered")

	// the flag flips even though nothing was enqueued
	assert.True(t, panelStatus(t, gw, token).ServerLocked)
	assert.Equal(t, 0, gw.polled.Depth())
}

func TestPanelActions(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))
	token := login(t, gw)

	rec := do(t, gw, http.MethodPost, "/panel/action", `{"action":"save"}`, bearer(token))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"not connected to server"}`, rec.Body.String())

	heartbeat(t, gw, `{"players":[],"playerCount":0}`)

	tests := map[string]string{
		"save":          "save-all",
		"weather-clear": "weather clear",
		"time-day":      "time set day",
		"time-night":    "time set night",
		"whitelist-on":  "whitelist on",
		"whitelist-off": "whitelist off",
		"stop":          "stop",
	}
	for action, want := range tests {
		rec := do(t, gw, http.MethodPost, "/panel/action", `{"action":"`+action+`"}`, bearer(token))
		require.Equal(t, http.StatusOK, rec.Code, action)

		cmds := poll(t, gw).Commands
		require.Len(t, cmds, 1, action)
		assert.Equal(t, want, cmds[0].Text, action)
	}

	rec = do(t, gw, http.MethodPost, "/panel/action", `{"action":"explode"}`, bearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestPanelCommand(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))
	token := login(t, gw)

	rec := do(t, gw, http.MethodPost, "/panel/command", `{"command":"list"}`, bearer(token))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"not connected to server"}`, rec.Body.String())

	rec = do(t, gw, http.MethodPost, "/panel/command", `{"command":""}`, bearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	heartbeat(t, gw, `{"players":[],"playerCount":0}`)

	// answer the command like the agent would
	go func() {
		for i := 0; i < 100; i++ {
			if cmds := gw.polled.Drain(); len(cmds) > 0 {
				gw.polled.Resolve(cmds[0].ID, "Set the time to 1000")
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	rec = do(t, gw, http.MethodPost, "/panel/command", `{"command":"time set day"}`, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response":"Set the time to 1000"}`, rec.Body.String())
}

func TestPanelHistoryAndEvents(t *testing.T) {
	gw := newTestGateway(t, testConfig(t))
	token := login(t, gw)
	heartbeat(t, gw, `{"players":[],"playerCount":0}`)

	rec := do(t, gw, http.MethodPost, "/panel/action", `{"action":"save"}`, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	cmds := poll(t, gw).Commands
	require.Len(t, cmds, 1)
	require.True(t, gw.polled.Resolve(cmds[0].ID, "Saved the game"))

	waitForHistory(t, gw, 1)
	rec = do(t, gw, http.MethodGet, "/panel/history?limit=5", "", bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	var history HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.Commands, 1)
	assert.Equal(t, "save-all", history.Commands[0].Command)
	assert.Equal(t, "Saved the game", history.Commands[0].Result)

	rec = do(t, gw, http.MethodGet, "/panel/history?limit=abc", "", bearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, gw, http.MethodGet, "/panel/events?kind=action", "", bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	var events EventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events.Events, 1)
	assert.Equal(t, "save", events.Events[0].Message)

	rec = do(t, gw, http.MethodGet, "/panel/events?since=yesterday", "", bearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err := gw.store.ListEvents(context.Background(), store.EventFilter{})
	require.NoError(t, err)
}
