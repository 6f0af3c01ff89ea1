// ABOUTME: Tests for the simulated agent and its console
// ABOUTME: Runs the agent loop against a real in-process gateway

package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/craft-bridge/internal/config"
	"github.com/2389/craft-bridge/internal/gateway"
	"github.com/2389/craft-bridge/internal/rcon"
	"github.com/2389/craft-bridge/internal/store"
)

func TestSimConsole(t *testing.T) {
	c := newSimConsole([]string{"Alice", "Bob"}, []string{"Alice"})

	out, err := c.Execute("list")
	require.NoError(t, err)
	count, players := rcon.ParseList(out)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"Alice", "Bob"}, players)

	out, _ = c.Execute("lp user Alice permission check kingdomcraft.staff")
	assert.Contains(t, out, "true")
	out, _ = c.Execute("lp user Bob permission check kingdomcraft.staff")
	assert.NotContains(t, out, "true")

	out, _ = c.Execute(rcon.Kick("Bob", "maintenance"))
	assert.Equal(t, "Kicked Bob: maintenance", out)
	assert.Equal(t, []string{"Alice"}, c.Online())

	out, _ = c.Execute("kick Nobody")
	assert.Equal(t, "No player was found", out)

	out, _ = c.Execute("fly")
	assert.Contains(t, out, "Unknown")
}

func TestAgentAgainstGateway(t *testing.T) {
	cfg := &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: store.MemoryPath},
		Bridge: config.BridgeConfig{
			Strategy:       config.StrategyPolled,
			APIKey:         "agent-secret",
			CommandTimeout: 5 * time.Second,
		},
		Panel: config.PanelConfig{Password: "hunter2"},
	}
	cfg.ApplyDefaults()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := gateway.New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })

	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	sim := newSimConsole([]string{"Alice", "Bob"}, nil)
	a := &agent{
		baseURL: srv.URL,
		apiKey:  "agent-secret",
		client:  srv.Client(),
		console: sim,
		players: func() ([]string, error) { return sim.Online(), nil },
		logger:  logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx, 10*time.Millisecond, 50*time.Millisecond) }()

	// wait for the first heartbeat
	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		gw.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health/ready", nil))
		return rec.Code == 200
	}, 2*time.Second, 10*time.Millisecond)

	sendCtx, sendCancel := context.WithTimeout(ctx, 5*time.Second)
	defer sendCancel()

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.JSONEq(t, `{"status":"ok","serverOnline":true,"playerCount":2}`, rec.Body.String())

	assert.JSONEq(t, `{"response":"Saved the game"}`, panelCommand(t, sendCtx, gw, "save-all"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestAgentPostRejectedKey(t *testing.T) {
	cfg := &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: store.MemoryPath},
		Bridge:   config.BridgeConfig{Strategy: config.StrategyPolled, APIKey: "agent-secret"},
		Panel:    config.PanelConfig{Password: "hunter2"},
	}
	cfg.ApplyDefaults()

	gw, err := gateway.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	a := &agent{baseURL: srv.URL, apiKey: "wrong", client: srv.Client()}
	err = a.pollOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

// panelCommand logs in to the panel and runs cmd, returning the raw body.
func panelCommand(t *testing.T, ctx context.Context, gw *gateway.Gateway, cmd string) string {
	t.Helper()

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/panel/login", strings.NewReader(`{"password":"hunter2"}`)))
	require.Equal(t, 200, rec.Code)
	var login gateway.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))

	body, err := json.Marshal(gateway.CommandRequest{Command: cmd})
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/panel/command", strings.NewReader(string(body))).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rec = httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	return rec.Body.String()
}
