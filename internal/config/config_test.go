package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_NonexistentFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load with nonexistent file should not error: %v", err)
	}

	// Verify defaults.
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("default host: expected 127.0.0.1, got %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 3100 {
		t.Errorf("default port: expected 3100, got %d", cfg.Server.Port)
	}
	if cfg.Workspace.ID != "default" {
		t.Errorf("default workspace: expected default, got %q", cfg.Workspace.ID)
	}
	if cfg.Ledger.Dir != "ledger" {
		t.Errorf("default ledger dir: expected ledger, got %q", cfg.Ledger.Dir)
	}
	if cfg.Ledger.BaselineSeed != "baselines.yaml" {
		t.Errorf("default baseline seed: expected baselines.yaml, got %q", cfg.Ledger.BaselineSeed)
	}
	if cfg.Feed.PollIntervalMs != 5000 {
		t.Errorf("default poll interval: expected 5000, got %d", cfg.Feed.PollIntervalMs)
	}
	if cfg.Feed.HeartbeatIntervalMs != 30000 {
		t.Errorf("default heartbeat interval: expected 30000, got %d", cfg.Feed.HeartbeatIntervalMs)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  host: "0.0.0.0"
  port: 9090
workspace:
  id: "forensics"
ledger:
  dir: "/var/lib/ledgerwatch"
feed:
  pollIntervalMs: 2000
  heartbeatIntervalMs: 0
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host: expected 0.0.0.0, got %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port: expected 9090, got %d", cfg.Server.Port)
	}
	if cfg.Workspace.ID != "forensics" {
		t.Errorf("workspace: expected forensics, got %q", cfg.Workspace.ID)
	}
	if cfg.Ledger.Dir != "/var/lib/ledgerwatch" {
		t.Errorf("ledger dir: expected /var/lib/ledgerwatch, got %q", cfg.Ledger.Dir)
	}
	if got := cfg.Feed.PollInterval(); got != 2*time.Second {
		t.Errorf("poll interval: expected 2s, got %v", got)
	}
	if got := cfg.Feed.HeartbeatInterval(); got != 0 {
		t.Errorf("heartbeat interval: expected 0, got %v", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(`{{{invalid yaml`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_PartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	// Port overridden.
	if cfg.Server.Port != 9090 {
		t.Errorf("port: expected 9090, got %d", cfg.Server.Port)
	}
	// Host should retain default.
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("host should be default 127.0.0.1, got %q", cfg.Server.Host)
	}
	// Poll interval should retain default.
	if cfg.Feed.PollIntervalMs != 5000 {
		t.Errorf("poll interval should be default 5000, got %d", cfg.Feed.PollIntervalMs)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config { return *applyDefaults() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "empty host",
			mutate:  func(c *Config) { c.Server.Host = "" },
			wantErr: true,
		},
		{
			name:    "port 0",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: true,
		},
		{
			name:    "port 65536",
			mutate:  func(c *Config) { c.Server.Port = 65536 },
			wantErr: true,
		},
		{
			name:    "empty workspace",
			mutate:  func(c *Config) { c.Workspace.ID = "" },
			wantErr: true,
		},
		{
			name:    "empty ledger dir",
			mutate:  func(c *Config) { c.Ledger.Dir = "" },
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Feed.PollIntervalMs = 0 },
			wantErr: true,
		},
		{
			name:    "negative heartbeat interval",
			mutate:  func(c *Config) { c.Feed.HeartbeatIntervalMs = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := validate(&cfg)
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestWriteDefault_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	// Verify file was created.
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file not created: %v", err)
	}

	// Load it back and verify defaults.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load after WriteDefault: %v", err)
	}

	if cfg.Server.Port != 3100 {
		t.Errorf("roundtrip port: expected 3100, got %d", cfg.Server.Port)
	}
	if cfg.Feed.PollIntervalMs != 5000 {
		t.Errorf("roundtrip poll interval: expected 5000, got %d", cfg.Feed.PollIntervalMs)
	}
}

func TestWatcher_BaselineChange(t *testing.T) {
	dir := t.TempDir()

	fired := make(chan struct{}, 1)
	w, err := NewWatcher(dir, "baselines.yaml", WatchTargets{
		OnBaselineChange: func() {
			select {
			case fired <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	path := filepath.Join(dir, "baselines.yaml")
	if err := os.WriteFile(path, []byte("baselines: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("baseline change callback did not fire")
	}
}

func TestWatcher_ConfigChange(t *testing.T) {
	dir := t.TempDir()

	fired := make(chan struct{}, 1)
	w, err := NewWatcher(dir, "baselines.yaml", WatchTargets{
		OnConfigChange: func() {
			select {
			case fired <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("workspace:\n  id: court-a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("config change callback did not fire")
	}
}

func TestWatcher_CloseIdempotent(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), "", WatchTargets{})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
