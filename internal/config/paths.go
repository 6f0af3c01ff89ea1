// ABOUTME: Config file discovery for craft-bridge
// ABOUTME: Resolves the config path from flag, CRAFT_CONFIG, or the XDG config directory

package config

import (
	"os"
	"path/filepath"
)

// EnvConfigPath names the environment variable consulted when no flag is given.
const EnvConfigPath = "CRAFT_CONFIG"

// DefaultPath returns the XDG location of the config file.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "craft-bridge", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "craft-bridge", "config.yaml")
}

// ResolvePath picks the config path: explicit flag first, then CRAFT_CONFIG,
// then DefaultPath.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultPath()
}
