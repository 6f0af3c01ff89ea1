// ABOUTME: Gateway orchestrator that wires the command channel, liveness tracker and lock machine
// ABOUTME: Owns the HTTP and gRPC servers, the Matrix frontend and their lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"tailscale.com/tsnet"

	"github.com/2389/craft-bridge/internal/auth"
	"github.com/2389/craft-bridge/internal/channel"
	"github.com/2389/craft-bridge/internal/commands"
	"github.com/2389/craft-bridge/internal/config"
	"github.com/2389/craft-bridge/internal/liveness"
	"github.com/2389/craft-bridge/internal/lock"
	"github.com/2389/craft-bridge/internal/matrix"
	"github.com/2389/craft-bridge/internal/rcon"
	"github.com/2389/craft-bridge/internal/store"
)

// Notifier receives game events recorded by the gateway.
type Notifier interface {
	Notify(ctx context.Context, e store.GameEvent)
}

// Gateway orchestrates the craft-bridge components.
type Gateway struct {
	config *config.Config
	logger *slog.Logger
	store  store.Store
	info   commands.Info

	tracker *liveness.Tracker
	channel channel.Channel

	// exactly one of polled and persistent is set
	polled     *channel.PolledChannel
	persistent *channel.PersistentChannel
	prober     *liveness.Prober

	lock      *lock.Machine
	tokens    *auth.TokenStore
	passwords *auth.PasswordChecker

	matrix    *matrix.Frontend
	notifiers []Notifier
	stream    *statusStream

	health      *health.Server
	grpcServer  *grpc.Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server

	// runCtx is cancelled when Run returns; used by state callbacks
	runMu  sync.Mutex
	runCtx context.Context
}

// initStore opens the ledger database. CRAFT_DB_PATH overrides the config.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("CRAFT_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a Gateway for cfg. Nothing is started until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	passwords, err := auth.NewPasswordChecker(cfg.Panel.Password, cfg.Panel.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("configuring panel password: %w", err)
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		config:    cfg,
		logger:    logger.With("component", "gateway"),
		store:     s,
		info:      commands.Info{Name: cfg.Game.Name, Address: cfg.Game.Address, Version: cfg.Game.Version},
		tracker:   liveness.NewTracker(cfg.Bridge.LivenessTTL, cfg.Bridge.ReconcileInterval, logger),
		tokens:    auth.NewTokenStore(cfg.Panel.MaxTokens, cfg.Panel.TokenWatermark),
		passwords: passwords,
		stream:    newStatusStream(logger),
		health:    health.NewServer(),
		runCtx:    context.Background(),
	}

	gw.initChannel(logger)
	gw.lock = lock.New(gw.channel, lock.Options{
		LockNotice:       cfg.Lock.LockNotice,
		UnlockNotice:     cfg.Lock.UnlockNotice,
		EvictOnLock:      cfg.Lock.EvictOnLock,
		PrivilegeCheck:   cfg.Lock.PrivilegeCheck,
		PrivilegedMarker: cfg.Lock.PrivilegedMarker,
		KickReason:       cfg.Lock.KickReason,
	}, logger)

	if cfg.Frontends.Matrix.Enabled {
		handler := commands.New(gw.channel, gw.tracker, gw.lock, commands.Options{Info: gw.info, Source: "Matrix"}, logger)
		fe, err := matrix.New(cfg.Frontends.Matrix, gw.info, handler, logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		gw.matrix = fe
		gw.notifiers = append(gw.notifiers, fe)
		gw.tracker.Subscribe(fe.UpdatePresence)
	}

	gw.tracker.Subscribe(gw.publishStatus)
	gw.grpcServer = newGRPCServer(gw.health)
	gw.setServing(false)

	mux := http.NewServeMux()
	gw.registerRoutes(mux)
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           recoverMiddleware(gw.logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// initChannel builds the command channel for the configured strategy and
// wires its availability into the tracker.
func (g *Gateway) initChannel(logger *slog.Logger) {
	cfg := g.config

	if cfg.Bridge.Strategy != config.StrategyPersistent {
		g.polled = channel.NewPolled(g.tracker, cfg.Bridge.CommandTimeout, logger)
		g.polled.SetObserver(g.recordSettlement)
		g.channel = g.polled
		return
	}

	var dial channel.Dialer
	if rcon.Skip(cfg.RCON.Host) {
		g.logger.Warn("rcon host not set or loopback, persistent channel disabled", "host", cfg.RCON.Host)
	} else {
		opts := rcon.Options{
			Address:     cfg.RCON.Address(),
			Password:    cfg.RCON.Password,
			DialTimeout: cfg.RCON.DialTimeout,
			Deadline:    cfg.Bridge.CommandTimeout,
		}
		dial = func(ctx context.Context) (channel.Session, error) {
			return rcon.Dial(ctx, opts)
		}
	}

	g.persistent = channel.NewPersistent(dial, channel.RetryPolicy{
		Connect: cfg.RCON.RetryConnect,
		Closed:  cfg.RCON.RetryClosed,
		Send:    cfg.RCON.RetrySend,
	}, logger)
	g.persistent.SetObserver(g.recordSettlement)
	g.prober = liveness.NewProber(g.persistent, g.tracker, cfg.Bridge.ReconcileInterval, logger)
	g.persistent.OnStateChange(g.handleConnState)
	g.channel = g.persistent
}

// handleConnState maps RCON connection events onto the tracker. A fresh
// connection is probed at once so presence updates without waiting a tick.
func (g *Gateway) handleConnState(connected bool) {
	if !connected {
		g.tracker.MarkOffline()
		return
	}
	ctx := g.context()
	go g.prober.Probe(ctx)
}

func (g *Gateway) context() context.Context {
	g.runMu.Lock()
	defer g.runMu.Unlock()
	return g.runCtx
}

// recordSettlement writes a settled command to the audit ledger.
func (g *Gateway) recordSettlement(s channel.Settlement) {
	rec := &store.CommandRecord{
		CommandID:  s.ID,
		Strategy:   string(s.Strategy),
		Command:    s.Command,
		Result:     s.Result,
		Outcome:    string(s.Outcome),
		EnqueuedAt: s.EnqueuedAt,
		SettledAt:  s.SettledAt,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.store.AppendCommand(ctx, rec); err != nil {
		g.logger.Warn("failed to record command", "command_id", s.ID, "error", err)
	}
}

// setupTCPListeners creates standard TCP listeners for HTTP and, when
// configured, gRPC. grpcLn is nil without a gRPC address.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"http_addr", g.config.Server.HTTPAddr,
		"grpc_addr", g.config.Server.GRPCAddr,
		"strategy", g.channel.Strategy(),
	)

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	if g.config.Server.GRPCAddr != "" {
		grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}

	return grpcLn, httpLn, nil
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (g *Gateway) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		g.warnIgnoredAddresses()
		return g.setupTailscaleListeners(ctx)
	}
	return g.setupTCPListeners()
}

// warnIgnoredAddresses logs a warning if server.http_addr is configured but Tailscale is enabled.
func (g *Gateway) warnIgnoredAddresses() {
	if g.config.Server.HTTPAddr != "" {
		g.logger.Warn("server.http_addr is ignored when tailscale is enabled; only the port of server.grpc_addr is used",
			"http_addr", g.config.Server.HTTPAddr,
			"grpc_addr", g.config.Server.GRPCAddr,
		)
	}
}

// startServers starts the servers and background loops, returning the error channel.
func (g *Gateway) startServers(ctx context.Context, grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 3)

	if grpcLn != nil {
		go func() {
			g.logger.Info("gRPC health server listening", "addr", grpcLn.Addr().String())
			if err := g.grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	go g.tracker.Run(ctx)

	if g.persistent != nil {
		g.persistent.Start(ctx)
		go g.prober.Run(ctx)
	}

	if g.matrix != nil {
		go g.runMatrix(ctx, errCh)
	}

	return errCh
}

// runMatrix enables encryption when a data dir is configured, then syncs.
// Encryption failures are logged and the frontend runs unencrypted.
func (g *Gateway) runMatrix(ctx context.Context, errCh chan<- error) {
	if g.config.Frontends.Matrix.DataDir != "" {
		c, err := g.matrix.EnableCrypto(ctx)
		if err != nil {
			g.logger.Error("matrix encryption unavailable", "error", err)
		} else {
			defer func() {
				if err := c.Close(); err != nil {
					g.logger.Warn("closing matrix crypto", "error", err)
				}
			}()
		}
	}
	if err := g.matrix.Run(ctx); err != nil {
		errCh <- fmt.Errorf("matrix frontend: %w", err)
	}
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the gateway and blocks until ctx is cancelled or a server fails.
// Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.runMu.Lock()
	g.runCtx = ctx
	g.runMu.Unlock()

	grpcListener, httpListener, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServers(ctx, grpcListener, httpListener)
	serverErr := g.waitForShutdownSignal(ctx, errCh)
	cancel()

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	g.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops all servers and releases resources. Pending polled
// commands are settled as cancelled.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.shutdownGRPCServer(ctx)
	g.stream.Close()

	if g.polled != nil {
		g.polled.Close()
	}
	if g.persistent != nil {
		g.persistent.Close()
	}

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}
