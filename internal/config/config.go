// Package config handles loading, validating, and writing the ledgerwatch
// configuration from ~/.ledgerwatch/config.yaml.
//
// The config defines:
//   - Server bind address for `ledgerwatch serve` (host:port)
//   - Workspace id scoping the ledger
//   - Ledger data directory and baseline seed file
//   - Feed polling interval and heartbeat cadence
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level ledgerwatch configuration. Loaded from
// config.yaml with defaults for unset fields.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Feed      FeedConfig      `yaml:"feed"`
}

// ServerConfig defines where the feed server listens.
// Default: 127.0.0.1:3100, loopback only.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WorkspaceConfig scopes every ledger operation to one workspace.
type WorkspaceConfig struct {
	ID string `yaml:"id"`
}

// LedgerConfig locates the store and the optional baseline seed file.
// BaselineSeed is hot-reloaded when the file changes (see Watcher).
type LedgerConfig struct {
	Dir          string `yaml:"dir"`
	BaselineSeed string `yaml:"baselineSeed"`
}

// FeedConfig controls the live subscription and heartbeat cadence.
//
// PollIntervalMs is the fixed polling interval after push-channel fallback.
// HeartbeatIntervalMs paces the store's heartbeat records; 0 disables them.
type FeedConfig struct {
	PollIntervalMs      int `yaml:"pollIntervalMs"`
	HeartbeatIntervalMs int `yaml:"heartbeatIntervalMs"`
}

// PollInterval returns the polling cadence as a duration.
func (f FeedConfig) PollInterval() time.Duration {
	return time.Duration(f.PollIntervalMs) * time.Millisecond
}

// HeartbeatInterval returns the heartbeat cadence as a duration.
func (f FeedConfig) HeartbeatInterval() time.Duration {
	return time.Duration(f.HeartbeatIntervalMs) * time.Millisecond
}

// Load reads and parses config.yaml from the given path. A missing file
// returns defaults, not an error; invalid YAML or validation failures do.
func Load(path string) (*Config, error) {
	cfg := applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file — use defaults. Normal on first run.
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// WriteDefault writes a default config.yaml with a comment header. Used on
// first run when no config file exists yet.
func WriteDefault(path string) error {
	cfg := applyDefaults()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}

	header := `# ledgerwatch configuration
#
# server:
#   host: Bind address for 'ledgerwatch serve' (default: 127.0.0.1)
#   port: Listen port (default: 3100)
#
# workspace:
#   id: Workspace scoping every ledger operation
#
# ledger:
#   dir: Ledger store directory (JSONL + SQLite index)
#   baselineSeed: Optional YAML file of baseline hashes, hot-reloaded on change
#
# feed:
#   pollIntervalMs: Fixed polling interval after stream fallback
#   heartbeatIntervalMs: Heartbeat record cadence (0 disables)

`
	return os.WriteFile(path, []byte(header+string(data)), 0o644)
}

// applyDefaults returns a Config with every field at its default value.
func applyDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 3100,
		},
		Workspace: WorkspaceConfig{
			ID: "default",
		},
		Ledger: LedgerConfig{
			Dir:          "ledger",
			BaselineSeed: "baselines.yaml",
		},
		Feed: FeedConfig{
			PollIntervalMs:      5000,
			HeartbeatIntervalMs: 30000,
		},
	}
}

// validate checks the config for logical errors after parsing.
func validate(cfg *Config) error {
	if cfg.Server.Host == "" {
		return fmt.Errorf("server.host must not be empty")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range (1-65535)", cfg.Server.Port)
	}
	if cfg.Workspace.ID == "" {
		return fmt.Errorf("workspace.id must not be empty")
	}
	if cfg.Ledger.Dir == "" {
		return fmt.Errorf("ledger.dir must not be empty")
	}
	if cfg.Feed.PollIntervalMs <= 0 {
		return fmt.Errorf("feed.pollIntervalMs must be positive")
	}
	if cfg.Feed.HeartbeatIntervalMs < 0 {
		return fmt.Errorf("feed.heartbeatIntervalMs must be non-negative")
	}
	return nil
}
