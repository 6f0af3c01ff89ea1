// Package config handles configuration loading for craft-bridge.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension)
// with environment variable expansion. Zero-valued fields receive defaults
// before validation.
//
// # Configuration File
//
// Lookup order:
//
//  1. The --config flag
//  2. Path from CRAFT_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/craft-bridge/config.yaml (or ~/.config/craft-bridge/config.yaml)
//
// # Environment Variable Expansion
//
//	bridge:
//	  api_key: "${CRAFT_BRIDGE_KEY}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:3000"
//	  grpc_addr: ""                # optional, health service only
//
//	bridge:
//	  strategy: "polled"           # polled or persistent
//	  api_key: "${CRAFT_BRIDGE_KEY}"
//	  command_timeout: "15s"
//	  liveness_ttl: "60s"
//	  reconcile_interval: "30s"
//
//	rcon:
//	  host: "mc.example.net"
//	  port: 25575
//	  password: "${RCON_PASSWORD}"
//	  retry_connect: "20s"
//	  retry_closed: "15s"
//	  retry_send: "10s"
//
//	panel:
//	  password: "${PANEL_PASSWORD}"
//	  max_tokens: 50
//	  token_watermark: 25
//
//	lock:
//	  evict_on_lock: true
//	  privilege_check: "lp user %s permission check kingdomcraft.staff"
//
// Durations use time.ParseDuration syntax and must be positive.
package config
