// ABOUTME: Entry point for the craft-bridge server
// ABOUTME: Bridges a Minecraft server to the operator panel, plugin webhooks and Matrix

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/2389/craft-bridge/internal/auth"
	"github.com/2389/craft-bridge/internal/config"
	"github.com/2389/craft-bridge/internal/gateway"
	"github.com/2389/craft-bridge/internal/rcon"
)

const rconHostAttempts = 3

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                 __ _        _          _     _
  ___ _ __ __ _ / _| |_     | |__  _ __(_) __| | __ _  ___
 / __| '__/ _' | |_| __|____| '_ \| '__| |/ _' |/ _' |/ _ \
| (__| | | (_| |  _| ||_____| |_) | |  | | (_| | (_| |  __/
 \___|_|  \__,_|_|  \__|    |_.__/|_|  |_|\__,_|\__, |\___|
                                                |___/
`

// getDataPath returns the path to the craft-bridge data directory.
// Priority: XDG_DATA_HOME/craft-bridge > ~/.local/share/craft-bridge
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "craft-bridge")
}

func usage() {
	fmt.Println("Usage: craft-bridge <command> [--config PATH]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve           Start the bridge server")
	fmt.Println("  init            Create a new config file interactively")
	fmt.Println("  health          Check bridge health")
	fmt.Println("  status          Show game server status as seen by the bridge")
	fmt.Println("  hash-password   Read a panel password from stdin and print its bcrypt hash")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	flags := pflag.NewFlagSet("craft-bridge", pflag.ContinueOnError)
	configFlag := flags.StringP("config", "c", "", "config file path (default $CRAFT_CONFIG or ~/.config/craft-bridge/config.yaml)")
	if err := flags.Parse(os.Args[2:]); err != nil {
		if err == pflag.ErrHelp {
			usage()
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	configPath := config.ResolvePath(*configFlag)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, configPath)
	case "init":
		err = runInit(configPath)
	case "health":
		err = runHealth(ctx, configPath)
	case "status":
		err = runStatus(ctx, configPath)
	case "hash-password":
		err = runHashPassword(os.Stdin)
	case "version", "--version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, configPath string) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	if cfg.Server.GRPCAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	}
	green.Print("    ▶ ")
	fmt.Printf("Strategy:  %s", cfg.Bridge.Strategy)
	if cfg.Bridge.Strategy == config.StrategyPersistent {
		gray.Printf(" (rcon %s)", cfg.RCON.Address())
	}
	fmt.Println()

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	if cfg.Frontends.Matrix.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Matrix:    %s\n", cfg.Frontends.Matrix.UserID)
	}

	fmt.Println()

	logger.Info("starting craft-bridge",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"strategy", cfg.Bridge.Strategy,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func getEndpoint(ctx context.Context, configPath, path string) (int, []byte, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return 0, nil, fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func runHealth(ctx context.Context, configPath string) error {
	code, body, err := getEndpoint(ctx, configPath, "/health/ready")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", code, strings.TrimSpace(string(body)))
	}

	fmt.Println("healthy")
	return nil
}

func runStatus(ctx context.Context, configPath string) error {
	_, body, err := getEndpoint(ctx, configPath, "/")
	if err != nil {
		return fmt.Errorf("status check failed: %w", err)
	}
	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

func runHashPassword(in io.Reader) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func runInit(defaultConfigPath string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("craft-bridge configuration setup")
	fmt.Println("================================")
	fmt.Println()

	defaultDBPath := filepath.Join(getDataPath(), "bridge.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")
	grpcAddr := prompt(reader, "gRPC health address (empty to disable)", "localhost:50051")

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDBPath)

	fmt.Println("\n--- Game Server ---")
	gameName := prompt(reader, "Server name", "Minecraft")
	gameAddr := prompt(reader, "Address players connect to", "")
	strategy := prompt(reader, "Bridge strategy (polled/persistent)", config.StrategyPolled)

	var apiKey, rconHost, rconPassword string
	if strategy == config.StrategyPersistent {
		rconHost = promptRCONHost(reader)
		rconPassword = prompt(reader, "RCON password", "")
	} else {
		apiKey = prompt(reader, "Agent API key", uuid.NewString())
	}

	fmt.Println("\n--- Operator Panel ---")
	panelPassword := prompt(reader, "Panel password", "")
	var passwordHash string
	if panelPassword != "" {
		var err error
		passwordHash, err = auth.HashPassword(panelPassword)
		if err != nil {
			return err
		}
	}

	fmt.Println("\n--- Tailscale Configuration ---")
	tailscaleEnabled := yes(prompt(reader, "Enable Tailscale?", "no"))
	var tsHostname, tsAuthKey string
	var tsEphemeral, tsFunnel bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "craft-bridge")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty for interactive)", "")
		tsEphemeral = yes(prompt(reader, "Ephemeral node?", "no"))
		tsFunnel = yes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# craft-bridge configuration\n")
	cfg.WriteString("# Generated by craft-bridge init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", httpAddr))
	if grpcAddr != "" {
		cfg.WriteString(fmt.Sprintf("  grpc_addr: %q\n", grpcAddr))
	}
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("game:\n")
	cfg.WriteString(fmt.Sprintf("  name: %q\n", gameName))
	cfg.WriteString(fmt.Sprintf("  address: %q\n", gameAddr))
	cfg.WriteString("\n")

	cfg.WriteString("bridge:\n")
	cfg.WriteString(fmt.Sprintf("  strategy: %q\n", strategy))
	if apiKey != "" {
		cfg.WriteString(fmt.Sprintf("  api_key: %q\n", apiKey))
	}
	cfg.WriteString("  command_timeout: \"15s\"\n")
	cfg.WriteString("  liveness_ttl: \"60s\"\n")
	cfg.WriteString("\n")

	if rconHost != "" {
		cfg.WriteString("rcon:\n")
		cfg.WriteString(fmt.Sprintf("  host: %q\n", rconHost))
		cfg.WriteString(fmt.Sprintf("  port: %d\n", config.DefaultRCONPort))
		cfg.WriteString(fmt.Sprintf("  password: %q\n", rconPassword))
		cfg.WriteString("\n")
	}

	if passwordHash != "" {
		cfg.WriteString("panel:\n")
		cfg.WriteString(fmt.Sprintf("  password_hash: %q\n", passwordHash))
		cfg.WriteString("\n")
	}

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", tailscaleEnabled))
	if tailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: %q\n", tsHostname))
		if tsAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: %q\n", tsAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", tsEphemeral))
		cfg.WriteString(fmt.Sprintf("  funnel: %t\n", tsFunnel))
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// secrets live in this file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("\n  ✓ Config written to %s\n", outputFile)
	green.Printf("  ✓ Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  craft-bridge serve --config %s\n", outputFile)

	return nil
}

// promptRCONHost asks for a dialable RCON host. Empty and loopback names are
// never dialed, so they are refused; after rconHostAttempts refusals the last
// answer is returned and the config is written without a usable host.
func promptRCONHost(reader *bufio.Reader) string {
	var host string
	for range rconHostAttempts {
		host = prompt(reader, "RCON host (localhost is not dialed, use 127.0.0.1)", "")
		if !rcon.Skip(host) {
			return host
		}
		fmt.Println("  RCON host must be set and must not be localhost.")
	}
	return host
}

func yes(answer string) bool {
	a := strings.ToLower(answer)
	return a == "yes" || a == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
