// ABOUTME: Simulated in-game agent for local end-to-end runs of the polled bridge
// ABOUTME: Usage: craft-agent [--url http://localhost:8080] [--api-key KEY] [--rcon host:port]

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/2389/craft-bridge/internal/channel"
	"github.com/2389/craft-bridge/internal/gateway"
	"github.com/2389/craft-bridge/internal/rcon"
)

const (
	defaultPollInterval      = 3 * time.Second
	defaultHeartbeatInterval = 20 * time.Second
	requestTimeout           = 10 * time.Second
)

// console executes commands on the game server.
type console interface {
	Execute(cmd string) (string, error)
}

// agent polls the bridge, runs commands and reports results and liveness.
type agent struct {
	baseURL string
	apiKey  string
	client  *http.Client
	console console
	players func() ([]string, error)
	logger  *slog.Logger
}

func main() {
	flags := pflag.NewFlagSet("craft-agent", pflag.ContinueOnError)
	url := flags.String("url", "http://localhost:8080", "bridge base URL")
	apiKey := flags.String("api-key", os.Getenv("CRAFT_API_KEY"), "agent API key (default $CRAFT_API_KEY)")
	rconAddr := flags.String("rcon", "", "forward commands to a real server over RCON (host:port)")
	rconPassword := flags.String("rcon-password", os.Getenv("RCON_PASSWORD"), "RCON password (default $RCON_PASSWORD)")
	players := flags.StringSlice("players", []string{"Alice", "Bob"}, "simulated online players")
	staff := flags.StringSlice("staff", []string{"Alice"}, "simulated players that pass the privilege check")
	pollEvery := flags.Duration("poll", defaultPollInterval, "poll interval")
	heartbeatEvery := flags.Duration("heartbeat", defaultHeartbeatInterval, "heartbeat interval")
	debug := flags.Bool("debug", false, "enable debug logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := &agent{
		baseURL: strings.TrimRight(*url, "/"),
		apiKey:  *apiKey,
		client:  &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}

	if *rconAddr != "" {
		sess, err := rcon.Dial(ctx, rcon.Options{Address: *rconAddr, Password: *rconPassword, DialTimeout: requestTimeout})
		if err != nil {
			logger.Error("connecting to game server", "error", err)
			os.Exit(1)
		}
		defer sess.Close()
		a.console = sess
		a.players = func() ([]string, error) {
			out, err := sess.Execute("list")
			if err != nil {
				return nil, err
			}
			_, names := rcon.ParseList(out)
			return names, nil
		}
		logger.Info("forwarding commands over rcon", "addr", sess.Addr())
	} else {
		sim := newSimConsole(*players, *staff)
		a.console = sim
		a.players = func() ([]string, error) { return sim.Online(), nil }
		logger.Info("simulating game server", "players", *players)
	}

	if err := a.run(ctx, *pollEvery, *heartbeatEvery); err != nil {
		logger.Error("agent stopped", "error", err)
		os.Exit(1)
	}
}

// run heartbeats immediately, then polls and heartbeats on their intervals
// until ctx is cancelled. Request failures are logged and retried on the next
// tick.
func (a *agent) run(ctx context.Context, pollEvery, heartbeatEvery time.Duration) error {
	poll := time.NewTicker(pollEvery)
	defer poll.Stop()
	beat := time.NewTicker(heartbeatEvery)
	defer beat.Stop()

	a.heartbeat(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-beat.C:
			a.heartbeat(ctx)
		case <-poll.C:
			if err := a.pollOnce(ctx); err != nil && ctx.Err() == nil {
				a.logger.Warn("poll failed", "error", err)
			}
		}
	}
}

func (a *agent) heartbeat(ctx context.Context) {
	names, err := a.players()
	if err != nil {
		a.logger.Warn("reading player list", "error", err)
		return
	}
	count := len(names)

	var resp gateway.HeartbeatResponse
	if err := a.post(ctx, "/bridge/heartbeat", gateway.HeartbeatRequest{Players: names, PlayerCount: &count}, &resp); err != nil {
		if ctx.Err() == nil {
			a.logger.Warn("heartbeat failed", "error", err)
		}
		return
	}
	a.logger.Debug("heartbeat sent", "players", count, "queued", resp.Queued)
}

// pollOnce takes the queued commands, executes them in order and posts each
// result.
func (a *agent) pollOnce(ctx context.Context) error {
	var resp gateway.PollResponse
	if err := a.post(ctx, "/bridge/poll", nil, &resp); err != nil {
		return err
	}

	for _, cmd := range resp.Commands {
		a.execute(ctx, cmd)
	}
	return nil
}

func (a *agent) execute(ctx context.Context, cmd channel.Command) {
	out, err := a.console.Execute(cmd.Text)
	if err != nil {
		out = "Error: " + err.Error()
	}
	a.logger.Info("executed command", "id", cmd.ID, "command", cmd.Text)

	if err := a.post(ctx, "/bridge/result", gateway.ResultRequest{ID: cmd.ID, Result: out}, nil); err != nil {
		a.logger.Warn("posting result failed", "id", cmd.ID, "error", err)
	}
}

func (a *agent) post(ctx context.Context, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
