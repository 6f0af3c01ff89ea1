// ABOUTME: Configuration loading and parsing for craft-bridge
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Strategy names accepted in bridge.strategy.
const (
	StrategyPolled     = "polled"
	StrategyPersistent = "persistent"
)

// Defaults applied when a field is left empty.
const (
	DefaultCommandTimeout    = 15 * time.Second
	DefaultLivenessTTL       = 60 * time.Second
	DefaultReconcileInterval = 30 * time.Second
	DefaultRCONDialTimeout   = 10 * time.Second
	DefaultRetryConnect      = 20 * time.Second
	DefaultRetryClosed       = 15 * time.Second
	DefaultRetrySend         = 10 * time.Second
	DefaultMaxTokens         = 50
	DefaultTokenWatermark    = 25
	DefaultRCONPort          = 25575
)

// Config represents the complete craft-bridge configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Bridge    BridgeConfig    `yaml:"bridge" toml:"bridge"`
	RCON      RCONConfig      `yaml:"rcon" toml:"rcon"`
	Panel     PanelConfig     `yaml:"panel" toml:"panel"`
	Lock      LockConfig      `yaml:"lock" toml:"lock"`
	Game      GameConfig      `yaml:"game" toml:"game"`
	Frontends FrontendsConfig `yaml:"frontends" toml:"frontends"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds listener addresses. GRPCAddr is optional and only
// serves the health service.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public HTTPS, needed when the game host is outside the tailnet
}

// DatabaseConfig holds the audit database location. ":memory:" is accepted.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// BridgeConfig configures the command channel and liveness tracking.
type BridgeConfig struct {
	Strategy string `yaml:"strategy" toml:"strategy"`
	APIKey   string `yaml:"api_key" toml:"api_key"`

	CommandTimeout    time.Duration `yaml:"-" toml:"-"`
	LivenessTTL       time.Duration `yaml:"-" toml:"-"`
	ReconcileInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	CommandTimeoutRaw    string `yaml:"command_timeout" toml:"command_timeout"`
	LivenessTTLRaw       string `yaml:"liveness_ttl" toml:"liveness_ttl"`
	ReconcileIntervalRaw string `yaml:"reconcile_interval" toml:"reconcile_interval"`
}

// RCONConfig configures the persistent-connection strategy.
type RCONConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	Password string `yaml:"password" toml:"password"`

	DialTimeout  time.Duration `yaml:"-" toml:"-"`
	RetryConnect time.Duration `yaml:"-" toml:"-"`
	RetryClosed  time.Duration `yaml:"-" toml:"-"`
	RetrySend    time.Duration `yaml:"-" toml:"-"`

	DialTimeoutRaw  string `yaml:"dial_timeout" toml:"dial_timeout"`
	RetryConnectRaw string `yaml:"retry_connect" toml:"retry_connect"`
	RetryClosedRaw  string `yaml:"retry_closed" toml:"retry_closed"`
	RetrySendRaw    string `yaml:"retry_send" toml:"retry_send"`
}

// Address returns host:port for dialing.
func (r RCONConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// PanelConfig configures the operator panel login.
type PanelConfig struct {
	Password       string `yaml:"password" toml:"password"`
	PasswordHash   string `yaml:"password_hash" toml:"password_hash"` // bcrypt, takes precedence over password
	MaxTokens      int    `yaml:"max_tokens" toml:"max_tokens"`
	TokenWatermark int    `yaml:"token_watermark" toml:"token_watermark"`
}

// LockConfig holds the commands the lock state machine issues.
type LockConfig struct {
	LockNotice       string `yaml:"lock_notice" toml:"lock_notice"`
	UnlockNotice     string `yaml:"unlock_notice" toml:"unlock_notice"`
	EvictOnLock      bool   `yaml:"evict_on_lock" toml:"evict_on_lock"`
	PrivilegeCheck   string `yaml:"privilege_check" toml:"privilege_check"` // %s is replaced by the player name
	PrivilegedMarker string `yaml:"privileged_marker" toml:"privileged_marker"`
	KickReason       string `yaml:"kick_reason" toml:"kick_reason"`
}

// GameConfig holds display information about the game server.
type GameConfig struct {
	Name    string `yaml:"name" toml:"name"`
	Address string `yaml:"address" toml:"address"`
	Version string `yaml:"version" toml:"version"`
}

// FrontendsConfig holds configuration for all frontend integrations
type FrontendsConfig struct {
	Matrix MatrixConfig `yaml:"matrix" toml:"matrix"`
}

// MatrixConfig holds Matrix integration configuration
type MatrixConfig struct {
	Enabled       bool     `yaml:"enabled" toml:"enabled"`
	Homeserver    string   `yaml:"homeserver" toml:"homeserver"`
	UserID        string   `yaml:"user_id" toml:"user_id"`
	AccessToken   string   `yaml:"access_token" toml:"access_token"`
	RecoveryKey   string   `yaml:"recovery_key" toml:"recovery_key"`
	DataDir       string   `yaml:"data_dir" toml:"data_dir"`
	CommandPrefix string   `yaml:"command_prefix" toml:"command_prefix"`
	ChatRoom      string   `yaml:"chat_room" toml:"chat_room"`
	LogRoom       string   `yaml:"log_room" toml:"log_room"`
	AllowedRooms  []string `yaml:"allowed_rooms" toml:"allowed_rooms"`
	AdminUsers    []string `yaml:"admin_users" toml:"admin_users"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Bridge.Strategy == "" {
		c.Bridge.Strategy = StrategyPolled
	}
	if c.Bridge.CommandTimeout == 0 {
		c.Bridge.CommandTimeout = DefaultCommandTimeout
	}
	if c.Bridge.LivenessTTL == 0 {
		c.Bridge.LivenessTTL = DefaultLivenessTTL
	}
	if c.Bridge.ReconcileInterval == 0 {
		c.Bridge.ReconcileInterval = DefaultReconcileInterval
	}

	if c.RCON.Port == 0 {
		c.RCON.Port = DefaultRCONPort
	}
	if c.RCON.DialTimeout == 0 {
		c.RCON.DialTimeout = DefaultRCONDialTimeout
	}
	if c.RCON.RetryConnect == 0 {
		c.RCON.RetryConnect = DefaultRetryConnect
	}
	if c.RCON.RetryClosed == 0 {
		c.RCON.RetryClosed = DefaultRetryClosed
	}
	if c.RCON.RetrySend == 0 {
		c.RCON.RetrySend = DefaultRetrySend
	}

	if c.Panel.MaxTokens == 0 {
		c.Panel.MaxTokens = DefaultMaxTokens
	}
	if c.Panel.TokenWatermark == 0 {
		c.Panel.TokenWatermark = DefaultTokenWatermark
	}

	if c.Lock.LockNotice == "" {
		c.Lock.LockNotice = "The server is now locked. Only staff may join."
	}
	if c.Lock.UnlockNotice == "" {
		c.Lock.UnlockNotice = "The server is now open."
	}
	if c.Lock.PrivilegeCheck == "" {
		c.Lock.PrivilegeCheck = "lp user %s permission check kingdomcraft.staff"
	}
	if c.Lock.PrivilegedMarker == "" {
		c.Lock.PrivilegedMarker = "true"
	}
	if c.Lock.KickReason == "" {
		c.Lock.KickReason = "The server is locked for maintenance."
	}

	if c.Frontends.Matrix.CommandPrefix == "" {
		c.Frontends.Matrix.CommandPrefix = "!"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Bridge.Strategy {
	case StrategyPolled:
		if c.Bridge.APIKey == "" {
			return fmt.Errorf("bridge.api_key is required for the polled strategy")
		}
	case StrategyPersistent:
		if c.RCON.Password == "" && c.RCON.Host != "" {
			return fmt.Errorf("rcon.password is required when rcon.host is set")
		}
	default:
		return fmt.Errorf("bridge.strategy must be %q or %q, got %q", StrategyPolled, StrategyPersistent, c.Bridge.Strategy)
	}

	if c.Panel.Password == "" && c.Panel.PasswordHash == "" {
		return fmt.Errorf("panel.password or panel.password_hash is required")
	}
	if c.Panel.TokenWatermark > c.Panel.MaxTokens {
		return fmt.Errorf("panel.token_watermark (%d) must not exceed panel.max_tokens (%d)", c.Panel.TokenWatermark, c.Panel.MaxTokens)
	}

	if !strings.Contains(c.Lock.PrivilegeCheck, "%s") {
		return fmt.Errorf("lock.privilege_check must contain %%s for the player name")
	}

	if c.Frontends.Matrix.Enabled {
		m := c.Frontends.Matrix
		if m.Homeserver == "" {
			return fmt.Errorf("frontends.matrix.homeserver is required when matrix is enabled")
		}
		if _, err := url.Parse(m.Homeserver); err != nil {
			return fmt.Errorf("frontends.matrix.homeserver is not a valid URL: %w", err)
		}
		if m.UserID == "" || m.AccessToken == "" {
			return fmt.Errorf("frontends.matrix.user_id and access_token are required when matrix is enabled")
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"bridge.command_timeout", cfg.Bridge.CommandTimeoutRaw, &cfg.Bridge.CommandTimeout},
		{"bridge.liveness_ttl", cfg.Bridge.LivenessTTLRaw, &cfg.Bridge.LivenessTTL},
		{"bridge.reconcile_interval", cfg.Bridge.ReconcileIntervalRaw, &cfg.Bridge.ReconcileInterval},
		{"rcon.dial_timeout", cfg.RCON.DialTimeoutRaw, &cfg.RCON.DialTimeout},
		{"rcon.retry_connect", cfg.RCON.RetryConnectRaw, &cfg.RCON.RetryConnect},
		{"rcon.retry_closed", cfg.RCON.RetryClosedRaw, &cfg.RCON.RetryClosed},
		{"rcon.retry_send", cfg.RCON.RetrySendRaw, &cfg.RCON.RetrySend},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}
