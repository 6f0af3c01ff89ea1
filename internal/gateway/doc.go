// Package gateway orchestrates the craft-bridge server components.
//
// # Overview
//
// The gateway package is the central coordinator of the bridge. It owns the
// command channel, the liveness tracker, the lock machine, the panel token
// store, the SQLite ledger, the optional Matrix frontend and the HTTP and gRPC
// servers.
//
// # Gateway Struct
//
// The Gateway struct is the main entry point:
//
//	type Gateway struct {
//	    config     *config.Config
//	    store      store.Store
//	    tracker    *liveness.Tracker
//	    channel    channel.Channel
//	    lock       *lock.Machine
//	    tokens     *auth.TokenStore
//	    matrix     *matrix.Frontend
//	    stream     *statusStream
//	    grpcServer *grpc.Server
//	    httpServer *http.Server
//	    // ... and more
//	}
//
// # HTTP API
//
// Public:
//
//   - GET / - Server online flag and player count
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check, 503 while the game server is unreachable
//   - POST /panel/login - Exchange the panel password for a token
//
// Agent bridge (polled strategy only, X-Api-Key header):
//
//   - POST /bridge/poll - Take every queued command
//   - POST /bridge/heartbeat - Report liveness and the player list
//   - POST /bridge/result - Post the result of one command
//
// Operator panel (Authorization: Bearer token):
//
//   - GET /panel/status, GET /panel/players
//   - POST /panel/command - Run a console command and wait for its result
//   - POST /panel/action - Run a quick action such as save or toggle-lock
//   - GET /panel/history, GET /panel/events - Read the ledger
//   - GET /panel/ws - Websocket stream of PanelStatus
//   - POST /panel/logout
//
// Plugin webhooks, always acknowledged with 200:
//
//   - POST /mc/chat, /mc/join, /mc/death, /mc/kingdom, /mc/server
//
// # gRPC
//
// The gRPC server exposes the standard health service. The "minecraft"
// service is SERVING while the liveness tracker reports the game server
// online.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is cancelled or a signal arrives
//
// Shutdown stops the servers, closes the status stream and the channel, and
// finally closes the store.
//
// # Tailscale
//
// With tailscale.enabled the gateway listens only on the tailnet via tsnet,
// optionally over HTTPS or Funnel. The configured TCP addresses are ignored.
package gateway
