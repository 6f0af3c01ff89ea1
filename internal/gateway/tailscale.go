// ABOUTME: Serves the bridge on a tailnet through an embedded tsnet node
// ABOUTME: The game host reaches it over Funnel when it is not itself on the tailnet

package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/tsnet"

	"github.com/2389/craft-bridge/internal/config"
	"github.com/2389/craft-bridge/internal/store"
)

// tailnetPlan is where the bridge listens on its tailnet node.
type tailnetPlan struct {
	StateDir string
	AuthKey  string // empty means interactive login
	HTTPAddr string // ":80" or ":443"
	TLS      bool   // terminate TLS with the node's tailnet certificate
	Funnel   bool   // expose HTTPAddr publicly
	GRPCAddr string // empty when the health service is disabled
}

// planTailnet derives the tailnet listeners from cfg. Funnel wins over HTTPS
// since Funnel already terminates TLS. Only the port of server.grpc_addr is
// used; server.http_addr does not apply on the tailnet.
func planTailnet(cfg *config.Config) (tailnetPlan, error) {
	ts := cfg.Tailscale
	plan := tailnetPlan{HTTPAddr: ":80"}

	switch {
	case ts.Funnel:
		plan.HTTPAddr, plan.Funnel = ":443", true
	case ts.HTTPS:
		plan.HTTPAddr, plan.TLS = ":443", true
	}

	if cfg.Server.GRPCAddr != "" {
		_, port, err := net.SplitHostPort(cfg.Server.GRPCAddr)
		if err != nil {
			return tailnetPlan{}, fmt.Errorf("server.grpc_addr: %w", err)
		}
		plan.GRPCAddr = ":" + port
	}

	plan.StateDir = ts.StateDir
	if plan.StateDir == "" {
		dir, err := defaultTailnetStateDir(cfg.Database.Path)
		if err != nil {
			return tailnetPlan{}, err
		}
		plan.StateDir = dir
	}

	plan.AuthKey = ts.AuthKey
	if plan.AuthKey == "" {
		plan.AuthKey = os.Getenv("TS_AUTHKEY")
	}
	return plan, nil
}

// defaultTailnetStateDir keeps node state beside the ledger database, or under
// the home directory when the ledger lives in memory.
func defaultTailnetStateDir(dbPath string) (string, error) {
	if dbPath != "" && dbPath != store.MemoryPath {
		return filepath.Join(filepath.Dir(dbPath), "tailscale"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir): %w", err)
	}
	return filepath.Join(home, ".local", "share", "craft-bridge", "tailscale"), nil
}

// setupTailscaleListeners brings the node up and opens the planned listeners.
// grpcLn is nil when the health service is disabled.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	plan, err := planTailnet(g.config)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(plan.StateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	hostname := g.config.Tailscale.Hostname
	g.tsnetServer = &tsnet.Server{
		Hostname:  hostname,
		Dir:       plan.StateDir,
		Ephemeral: g.config.Tailscale.Ephemeral,
		AuthKey:   plan.AuthKey,
	}
	if plan.AuthKey == "" {
		// Without a key tsnet prints a login URL through UserLogf.
		g.logger.Warn("no tailscale auth key, waiting for interactive login")
		g.tsnetServer.UserLogf = func(format string, args ...any) {
			g.logger.Info(fmt.Sprintf(format, args...), "source", "tsnet")
		}
	}

	g.logger.Info("starting tailscale node", "hostname", hostname, "state_dir", plan.StateDir, "funnel", plan.Funnel)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	var dnsName string
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "dns_name", dnsName, "ips", len(status.TailscaleIPs))

	httpLn, err = g.listenTailnetHTTP(plan)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, err
	}

	if plan.GRPCAddr != "" {
		grpcLn, err = g.tsnetServer.Listen("tcp", plan.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			_ = g.tsnetServer.Close()
			return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
		}
	}
	return grpcLn, httpLn, nil
}

func (g *Gateway) listenTailnetHTTP(plan tailnetPlan) (net.Listener, error) {
	if plan.Funnel {
		ln, err := g.tsnetServer.ListenFunnel("tcp", plan.HTTPAddr)
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale funnel: %w", err)
		}
		return ln, nil
	}

	ln, err := g.tsnetServer.Listen("tcp", plan.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on tailscale port %s: %w", plan.HTTPAddr, err)
	}
	if !plan.TLS {
		return ln, nil
	}

	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}
