// Package main is the CLI entry point for ledgerwatch — a tamper-evident
// integrity ledger with live monitoring.
//
// The ledger is a hash-chained append-only JSONL file with a SQLite index.
// Each record's hash depends on the previous record, so any tampering
// breaks the chain and is detectable. A server process exposes the ledger
// over HTTP with a WebSocket snapshot feed and an SSE breach feed; a
// watcher process subscribes to both and falls back to polling when the
// push channel is unavailable.
//
// Architecture overview:
//
//	ledgerwatch serve (:3100)          ledgerwatch watch
//	  |-- ledger store (JSONL+SQLite)    |-- feed manager (ws -> polling)
//	  |-- WebSocket record feed  ------> |-- breach monitor (SSE)
//	  |-- SSE breach feed        ------> |-- masked, scored live output
//	  +-- REST: records/registry/verify
//
// CLI commands (cobra):
//
//	ledgerwatch            - First-run setup (writes default config)
//	ledgerwatch serve      - Start the ledger store server
//	ledgerwatch watch      - Live feed with masking, scoring, breach alerts
//	ledgerwatch verify     - Verify hash chain integrity
//	ledgerwatch scan       - Scan files against the baseline registry
//	ledgerwatch query      - Search and filter ledger records
//	ledgerwatch insights   - Anomaly insights over the ledger
//	ledgerwatch export     - Export the ledger (csv, json, jsonl)
//	ledgerwatch status     - Show server status
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia/ledgerwatch/internal/config"
	"github.com/custodia/ledgerwatch/internal/feed"
	"github.com/custodia/ledgerwatch/internal/ledger"
	"github.com/custodia/ledgerwatch/internal/monitor"
	"github.com/custodia/ledgerwatch/internal/scan"
	"github.com/custodia/ledgerwatch/internal/server"
	"github.com/custodia/ledgerwatch/internal/store"
)

// Build-time variables injected via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2026-02-10"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// defaultConfigDir returns the path to ~/.ledgerwatch/ where all runtime
// state lives: config.yaml, the optional baseline seed file, and the
// ledger/ directory.
func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fall back to current directory if home dir can't be determined.
		return ".ledgerwatch"
	}
	return filepath.Join(home, ".ledgerwatch")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ============================================================================
// Root command
// ============================================================================

// configDir is the global flag for the ledgerwatch config/state directory.
// Defaults to ~/.ledgerwatch/ but can be overridden for testing.
var configDir string

var rootCmd = &cobra.Command{
	Use:   "ledgerwatch",
	Short: "ledgerwatch — Tamper-evident integrity ledger",
	Long: `ledgerwatch maintains a hash-chained, append-only audit ledger and
monitors it live. Each record's hash depends on the previous record,
so any tampering breaks the chain and is detectable.

Run 'ledgerwatch serve' to start the ledger store server, or run
'ledgerwatch' with no arguments for first-run setup.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	// When no subcommand is provided, run the first-time setup.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFirstTimeSetup(cmd, args)
	},
}

func init() {
	// --config-dir: Override the default ~/.ledgerwatch/ directory.
	// This flag is persistent so all subcommands inherit it.
	rootCmd.PersistentFlags().StringVar(
		&configDir,
		"config-dir",
		defaultConfigDir(),
		"Path to ledgerwatch config and state directory",
	)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statusCmd)
}

// loadConfig loads config.yaml from the config directory.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(filepath.Join(configDir, "config.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openStore opens the ledger store under the config directory. Relative
// ledger dirs from config are resolved against the config directory.
func openStore(cfg *config.Config) (*store.Store, error) {
	dir := cfg.Ledger.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(configDir, dir)
	}
	st, err := store.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger store: %w", err)
	}
	return st, nil
}

// sessionFor builds a feed session pointing at the configured server.
func sessionFor(cfg *config.Config) feed.Session {
	return feed.Session{
		BaseURL:     fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port),
		WorkspaceID: cfg.Workspace.ID,
	}
}

// ============================================================================
// ledgerwatch serve — Start the ledger store server
// ============================================================================

// serveCmd starts the ledger store server. It opens the local store, seeds
// the baseline registry, verifies the chain, and serves the read API plus
// both live feeds on the configured address.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ledger store server",
	Long: `Start the ledger store server. The server opens the hash-chained
ledger, verifies it, and exposes:

  - REST:      /api/workspaces/{ws}/records, /registry, /verify
  - WebSocket: /ws/workspaces/{ws}/records (snapshot push feed)
  - SSE:       /api/workspaces/{ws}/alerts/stream (breach feed)

The server binds to the address from ~/.ledgerwatch/config.yaml
(default: 127.0.0.1:3100). The baseline seed file is hot-reloaded
when it changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

// verifyEvery paces the server's periodic chain verification. A broken
// chain publishes a breach alert on the SSE feed.
const verifyEvery = time.Minute

// runServe wires the full server stack together:
//
//  1. Load config from ~/.ledgerwatch/config.yaml
//  2. Open the ledger store (hash-chained JSONL + SQLite index)
//  3. Seed the baseline registry from the configured seed file
//  4. Create the server (REST + WebSocket hub + SSE hub)
//  5. Verify the chain at startup and on a fixed cadence
//  6. Start the heartbeat appender if configured
//  7. Watch config.yaml and the baseline seed file for hot reload
//  8. Listen and block until SIGINT/SIGTERM
func runServe(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// Seed the baseline registry. A missing seed file is fine; the
	// registry can also be populated over the ingest path.
	seedPath := filepath.Join(configDir, cfg.Ledger.BaselineSeed)
	if cfg.Ledger.BaselineSeed != "" {
		n, seedErr := st.LoadBaselineSeed(seedPath)
		if seedErr != nil {
			return fmt.Errorf("failed to load baseline seed: %w", seedErr)
		}
		if n > 0 {
			fmt.Printf("[ledgerwatch] Loaded %d baseline(s) from %s\n", n, seedPath)
		}
	}

	srv := server.New(server.Options{
		Store:       st,
		WorkspaceID: cfg.Workspace.ID,
	})

	// Verify the chain before serving. A broken chain is worth knowing
	// about immediately, and VerifyAndAlert publishes it on the breach
	// feed once subscribers connect.
	report, err := srv.VerifyAndAlert()
	if err != nil {
		return fmt.Errorf("startup verification failed: %w", err)
	}
	if report.Valid() {
		fmt.Printf("[ledgerwatch] Chain verified (%d records)\n", report.Checked)
	} else {
		fmt.Printf("[ledgerwatch] WARNING: chain broken at %d point(s)\n", len(report.Mismatches))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Heartbeat records prove the ledger pipeline is alive end to end.
	// Each heartbeat is appended to the chain and pushed to subscribers.
	if interval := cfg.Feed.HeartbeatInterval(); interval > 0 {
		go st.Heartbeat(ctx, interval, srv.RecordAppended)
	}

	// Periodic re-verification. Tampering with the files on disk while
	// the server runs surfaces as a breach alert within a minute.
	go func() {
		ticker := time.NewTicker(verifyEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, verr := srv.VerifyAndAlert(); verr != nil {
					fmt.Fprintf(os.Stderr, "[ledgerwatch] Warning: verification failed: %v\n", verr)
				}
			}
		}
	}()

	// Hot-reload config.yaml and the baseline seed. Editing the seed file
	// re-ingests baselines without restarting the server; editing
	// config.yaml re-ingests from a newly configured seed path. Settings
	// that cannot change live (listen address, ledger dir, feed
	// intervals) take effect on the next restart.
	reloadBaselines := func(path string) {
		n, reloadErr := st.LoadBaselineSeed(path)
		if reloadErr != nil {
			fmt.Fprintf(os.Stderr, "[ledgerwatch] Warning: failed to reload baselines: %v\n", reloadErr)
			return
		}
		fmt.Printf("[ledgerwatch] Baselines reloaded (%d entries)\n", n)
	}
	watcher, err := config.NewWatcher(configDir, cfg.Ledger.BaselineSeed, config.WatchTargets{
		OnConfigChange: func() {
			newCfg, reloadErr := loadConfig()
			if reloadErr != nil {
				fmt.Fprintf(os.Stderr, "[ledgerwatch] Warning: config reload failed, keeping current settings: %v\n", reloadErr)
				return
			}
			if newCfg.Server != cfg.Server || newCfg.Feed != cfg.Feed || newCfg.Ledger.Dir != cfg.Ledger.Dir {
				fmt.Println("[ledgerwatch] Config changed; listen address, ledger dir, and intervals apply on restart")
			}
			if newCfg.Ledger.BaselineSeed != "" && filepath.Join(configDir, newCfg.Ledger.BaselineSeed) != seedPath {
				// Both watcher callbacks run on the same goroutine, so
				// updating seedPath here is safe.
				seedPath = filepath.Join(configDir, newCfg.Ledger.BaselineSeed)
				reloadBaselines(seedPath)
			}
		},
		OnBaselineChange: func() {
			reloadBaselines(seedPath)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start config watcher: %w", err)
	}
	defer watcher.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout — the SSE breach feed and WebSocket record
		// feed are long-lived connections.
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("[ledgerwatch] Ledger store listening on http://%s\n", addr)
		fmt.Printf("[ledgerwatch] Workspace: %s\n", cfg.Workspace.ID)
		fmt.Println("[ledgerwatch] Press Ctrl+C to stop")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		fmt.Println("\n[ledgerwatch] Shutting down...")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown — give in-flight requests and feed connections
	// a few seconds to drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		fmt.Fprintf(os.Stderr, "[ledgerwatch] Shutdown error: %v\n", shutdownErr)
	}

	fmt.Println("[ledgerwatch] Stopped")
	return nil
}

// ============================================================================
// ledgerwatch watch — Live feed with masking, scoring, breach alerts
// ============================================================================

// watchCmd subscribes to the live record feed and prints new records as
// they arrive, with actor identities masked and admissibility scores
// attached. A breach monitor runs alongside on the SSE feed.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the ledger live",
	Long: `Subscribe to the live record feed and print new records as they arrive.
Actor identities and IP addresses are masked, and each record carries
its admissibility score.

The feed prefers the WebSocket push channel and falls back to fixed
polling when the stream is unavailable. A breach monitor listens on
the SSE alert feed in parallel and prints breach banners.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd, args)
	},
}

// runWatch runs the feed manager and breach monitor until interrupted.
func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	session := sessionFor(cfg)
	mon := monitor.New(session.AlertsURL())

	// Print only records we haven't shown yet. Batches are full
	// snapshots, so the printer diffs against the seen set.
	seen := make(map[string]bool)
	var lastAlert string
	printBatch := func(records []ledger.AuditRecord) {
		mon.ObserveBatch(records)
		for _, r := range records {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			printRecord(r)
		}
		if a := mon.Active(); a != nil && a.Timestamp != lastAlert {
			lastAlert = a.Timestamp
			fmt.Printf("\n!!! BREACH [%s] %s\n\n", a.Kind, a.Message)
		}
	}

	mgr := feed.NewManager(feed.NewTransport(session),
		feed.WithPollInterval(cfg.Feed.PollInterval()),
		feed.WithBatchHandler(printBatch),
	)

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start feed: %w", err)
	}
	defer mgr.Stop()
	if err := mon.Start(ctx); err != nil {
		return fmt.Errorf("failed to start breach monitor: %w", err)
	}
	defer mon.Stop()

	fmt.Printf("[ledgerwatch] Watching workspace %q at %s\n", cfg.Workspace.ID, session.BaseURL)

	// Report connection state transitions (STREAMING, POLLING, ...).
	lastState := feed.StateDisconnected
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\n[ledgerwatch] Stopped watching")
			return nil
		case <-ticker.C:
			if s := mgr.State(); s != lastState {
				lastState = s
				fmt.Printf("[ledgerwatch] Connection: %s\n", s)
			}
		}
	}
}

// printRecord writes one masked, scored record line to stdout.
func printRecord(r ledger.AuditRecord) {
	result := ledger.Score(r)
	fmt.Printf("[%s] %-28s actor=%-20s ip=%-16s severity=%-8s status=%-9s score=%d\n",
		r.CreatedAt, r.EventType,
		ledger.MaskActor(r.Actor()), ledger.MaskIP(r.Payload.IP),
		r.Severity(), r.Status(), result.Score)
	if result.Tip != "No remediation required." {
		fmt.Printf("    tip: %s\n", result.Tip)
	}
}

// ============================================================================
// ledgerwatch verify — Verify hash chain integrity
// ============================================================================

// verifyCmd verifies the local ledger's hash chain and prints the root
// hash. Each record's hash depends on the previous record's hash, so any
// tampering breaks the chain from that point forward.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify hash chain integrity",
	Long: `Verify the integrity of the ledger hash chain. Each record's hash is
computed as SHA-256(prev_hash | id | created_at | event_type | actor_id |
resource_id). If any record has been tampered with, the chain breaks and
this command reports where the inconsistency was detected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		report, err := st.Verify()
		if err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}

		fmt.Printf("[ledgerwatch] Consistency: %s\n", report.Label(false))
		fmt.Printf("[ledgerwatch] Root hash:   %s\n", report.RootHash)
		if report.Valid() {
			fmt.Printf("[ledgerwatch] Hash chain VALID (%d records verified)\n", report.Checked)
			return nil
		}
		for _, m := range report.Mismatches {
			fmt.Printf("[ledgerwatch] Chain BROKEN at record #%d (%s)\n", m.Index, m.RecordID)
			fmt.Printf("  Expected hash: %s\n", m.Expected)
			fmt.Printf("  Actual hash:   %s\n", m.Actual)
		}
		return fmt.Errorf("ledger chain integrity violation detected")
	},
}

// ============================================================================
// ledgerwatch scan — Scan files against the baseline registry
// ============================================================================

// scanRemote selects the running server's registry instead of the local
// store (--remote flag).
var scanRemote bool

// scanCmd hashes the given files and classifies each against the baseline
// registry: CLEAN when the hash matches, RED_FLAG on mismatch, UNKNOWN
// when no baseline covers the file.
var scanCmd = &cobra.Command{
	Use:   "scan <file>...",
	Short: "Scan files against the baseline registry",
	Long: `Hash each file and compare against the baseline registry. A matching
hash is CLEAN, a mismatch is a RED_FLAG, and a file with no baseline
is UNKNOWN.

By default the registry is read from the local ledger store. Use
--remote to fetch it from the running server instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var baselines []ledger.BaselineEntry
		if scanRemote {
			session := sessionFor(cfg)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			baselines, err = feed.FetchRegistry(ctx, session)
			if err != nil {
				return fmt.Errorf("failed to fetch registry: %w", err)
			}
		} else {
			st, openErr := openStore(cfg)
			if openErr != nil {
				return openErr
			}
			defer st.Close()
			baselines, err = st.Baselines()
			if err != nil {
				return fmt.Errorf("failed to read registry: %w", err)
			}
		}

		scanner := scan.New(baselines)
		flagged := 0
		for _, path := range args {
			f, openErr := os.Open(path)
			if openErr != nil {
				return fmt.Errorf("failed to open %s: %w", path, openErr)
			}
			report := scanner.Scan(filepath.Base(path), f)
			f.Close()

			fmt.Printf("%-10s %s\n", report.Status, path)
			fmt.Printf("           %s\n", report.Reason)
			fmt.Printf("           %s\n", report.Action)
			if report.Status == scan.RedFlag {
				flagged++
			}
		}

		if flagged > 0 {
			return fmt.Errorf("%d file(s) flagged", flagged)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanRemote, "remote", false, "Fetch the registry from the running server")
}

// ============================================================================
// ledgerwatch query — Search and filter ledger records
// ============================================================================

// Query filter flags.
var (
	querySeverity  string
	queryActor     string
	queryLimit     int
	queryNarrative bool
)

// queryCmd searches ledger records by free text and optional severity and
// actor filters. The search is case-insensitive over event type, actor,
// resource, and both hashes.
var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Search and filter ledger records",
	Long: `Search ledger records with a case-insensitive free-text query over
event type, actor, resource, and hashes. Combine with --severity and
--actor filters; all conditions must match.

Examples:
  ledgerwatch query login --severity HIGH
  ledgerwatch query --actor clerk-0042 --limit 100`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.Recent(queryLimit)
		if err != nil {
			return fmt.Errorf("failed to read ledger: %w", err)
		}

		text := ""
		if len(args) == 1 {
			text = args[0]
		}
		result := ledger.Query(records, text)
		matched := ledger.Filter(records, result, ledger.Filters{
			Severity: ledger.Severity(strings.ToUpper(querySeverity)),
			Actor:    queryActor,
		})

		fmt.Println(result.Summary)
		for _, r := range matched {
			printRecord(r)
			if queryNarrative {
				fmt.Printf("    %s\n", ledger.Narrative(r))
			}
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&querySeverity, "severity", "", "Filter by severity (HIGH, MEDIUM, LOW)")
	queryCmd.Flags().StringVar(&queryActor, "actor", "", "Filter by actor id (exact match)")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "Maximum records to search (0 = all)")
	queryCmd.Flags().BoolVar(&queryNarrative, "narrative", false, "Print a custody narrative per matched record")
}

// ============================================================================
// ledgerwatch insights — Anomaly insights over the ledger
// ============================================================================

// insightsCmd runs the anomaly heuristics over the ledger and prints
// observed anomalies plus predicted escalations with confidences.
var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Anomaly insights over the ledger",
	Long: `Analyze the ledger for anomalies: activity outside normal working
hours, high-volume actors, and tampered records. Each finding carries
a confidence percentage; findings project predicted escalations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.Recent(0)
		if err != nil {
			return fmt.Errorf("failed to read ledger: %w", err)
		}

		report := ledger.Analyze(records)
		if len(report.Insights) == 0 {
			fmt.Println("No anomalies detected.")
			return nil
		}

		fmt.Printf("Anomalies (%d):\n", len(report.Insights))
		for _, in := range report.Insights {
			fmt.Printf("  [%2d%%] %s\n        %s\n", in.Confidence, in.Label, in.Detail)
		}
		if len(report.Predicted) > 0 {
			fmt.Printf("\nPredicted (%d):\n", len(report.Predicted))
			for _, in := range report.Predicted {
				fmt.Printf("  [%2d%%] %s\n        %s\n", in.Confidence, in.Label, in.Detail)
			}
		}
		return nil
	},
}

// ============================================================================
// ledgerwatch export — Export the ledger
// ============================================================================

// exportFormat controls the export output format (csv, json, jsonl).
var exportFormat string

// exportCmd writes the full ledger to stdout in the chosen format. CSV
// rows carry masked actors and signature tokens, ready for an evidence
// bundle.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the ledger",
	Long: `Export the full ledger to stdout in the specified format.
Supported formats: csv, json, jsonl.

Example:
  ledgerwatch export --format csv > evidence.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		return st.Export(os.Stdout, exportFormat)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "jsonl", "Export format: csv, json, jsonl")
}

// ============================================================================
// ledgerwatch status — Show server status
// ============================================================================

// statusCmd checks whether the ledger store server is reachable and
// prints a short status line.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		addr := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
		client := &http.Client{Timeout: 2 * time.Second}

		resp, err := client.Get(addr + "/api/health")
		if err != nil {
			fmt.Println("[ledgerwatch] Status: NOT RUNNING")
			fmt.Printf("[ledgerwatch] Expected at: %s\n", addr)
			return nil
		}
		resp.Body.Close()

		fmt.Println("[ledgerwatch] Status: RUNNING")
		fmt.Printf("[ledgerwatch] Listening on: %s\n", addr)
		fmt.Printf("[ledgerwatch] Workspace: %s\n", cfg.Workspace.ID)
		return nil
	},
}

// ============================================================================
// First-run setup
// ============================================================================

// runFirstTimeSetup runs when 'ledgerwatch' is invoked with no subcommand.
// It creates the config directory and writes the default config.yaml.
func runFirstTimeSetup(cmd *cobra.Command, args []string) error {
	fmt.Println("=== ledgerwatch — First-Time Setup ===")
	fmt.Println()

	configPath := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists at %s\n", configPath)
		fmt.Println("Use 'ledgerwatch serve' to start the ledger store server.")
		return nil
	}

	fmt.Printf("Creating config directory: %s\n", configDir)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	fmt.Println("Writing default config.yaml...")
	if err := config.WriteDefault(configPath); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	fmt.Println()
	fmt.Println("Setup complete! Next steps:")
	fmt.Println()
	fmt.Println("  1. Start the ledger store server:")
	fmt.Println("     ledgerwatch serve")
	fmt.Println()
	fmt.Println("  2. Watch the ledger live:")
	fmt.Println("     ledgerwatch watch")
	fmt.Println()
	fmt.Println("  3. Optionally seed baselines in:")
	fmt.Printf("     %s\n", filepath.Join(configDir, "baselines.yaml"))
	fmt.Println()
	return nil
}
