// Package server exposes one workspace's ledger over HTTP:
//
//	GET /api/workspaces/{ws}/records        — recent records (JSON, ledger order)
//	GET /api/workspaces/{ws}/registry       — baseline hash registry
//	GET /api/workspaces/{ws}/verify         — stored-chain verification report
//	GET /api/workspaces/{ws}/alerts/stream  — breach-signal feed (SSE)
//	GET /ws/workspaces/{ws}/records         — record feed (websocket, snapshot batches)
//
// No endpoint writes to the ledger; appends happen only inside the store
// (heartbeats, ingestion). Chain verification failures are published to the
// breach feed so every subscribed session learns of them.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/custodia/ledgerwatch/internal/ledger"
	"github.com/custodia/ledgerwatch/internal/monitor"
	"github.com/custodia/ledgerwatch/internal/store"
)

// defaultWindow is the snapshot size pushed to feed subscribers.
const defaultWindow = 50

// Options holds the dependencies injected into the server.
type Options struct {
	Store       *store.Store
	WorkspaceID string
}

// Server serves the ledger read API and both live feeds.
type Server struct {
	store       *store.Store
	workspaceID string
	hub         *wsHub
	alerts      *sseHub
}

// New creates a Server and starts its broadcast hub.
func New(opts Options) *Server {
	s := &Server{
		store:       opts.Store,
		workspaceID: opts.WorkspaceID,
		hub:         newWSHub(),
		alerts:      newSSEHub(),
	}
	go s.hub.run()
	return s
}

// Handler returns the HTTP handler for all ledger endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	prefix := "/api/workspaces/" + s.workspaceID
	mux.HandleFunc(prefix+"/records", s.handleRecords)
	mux.HandleFunc(prefix+"/registry", s.handleRegistry)
	mux.HandleFunc(prefix+"/verify", s.handleVerify)
	mux.HandleFunc(prefix+"/alerts/stream", s.handleAlertStream)
	mux.HandleFunc("/ws/workspaces/"+s.workspaceID+"/records", s.handleRecordStream)
	mux.HandleFunc("/api/health", s.handleHealth)
	return mux
}

// RecordAppended pushes a fresh snapshot to every feed subscriber. Call
// after each store append. Non-blocking.
func (s *Server) RecordAppended(ledger.AuditRecord) {
	snapshot, err := s.snapshotJSON()
	if err != nil {
		slog.Error("building feed snapshot failed", "error", err)
		return
	}
	s.hub.broadcast(snapshot)
}

// PublishBreach emits a breach signal on the alert feed.
func (s *Server) PublishBreach(alert monitor.Alert) {
	data, err := json.Marshal(alert)
	if err != nil {
		slog.Error("marshaling breach signal failed", "error", err)
		return
	}
	s.alerts.publish(data)
	slog.Warn("breach signal published", "kind", alert.Kind, "resource", alert.ResourceID)
}

// VerifyAndAlert verifies the stored chain and publishes a breach signal on
// failure. Returns the report either way.
func (s *Server) VerifyAndAlert() (ledger.ChainReport, error) {
	report, err := s.store.Verify()
	if err != nil {
		return report, err
	}
	if !report.Valid() {
		m := report.Mismatches[0]
		s.PublishBreach(monitor.Alert{
			Kind:         monitor.KindChainBreak,
			ResourceID:   m.RecordID,
			Reason:       fmt.Sprintf("chain linkage broken at index %d", m.Index),
			RecordedHash: m.Expected,
			ActualHash:   m.Actual,
			Message:      fmt.Sprintf("Ledger chain verification failed: %d mismatched boundaries.", len(report.Mismatches)),
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
		})
	}
	return report, nil
}

func (s *Server) snapshotJSON() ([]byte, error) {
	records, err := s.store.Recent(defaultWindow)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []ledger.AuditRecord{}
	}
	return json.Marshal(records)
}

// handleRecords returns recent records in ledger order.
// GET /api/workspaces/{ws}/records?limit=50&actor=x&event=y
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultWindow
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := s.store.Query(store.QueryParams{
		Actor:     r.URL.Query().Get("actor"),
		EventType: r.URL.Query().Get("event"),
		Limit:     limit,
	})
	if err != nil {
		slog.Error("record query failed", "error", err)
		http.Error(w, "record query failed", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []ledger.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleRegistry returns the baseline hash registry.
// GET /api/workspaces/{ws}/registry
func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	entries, err := s.store.Baselines()
	if err != nil {
		slog.Error("registry query failed", "error", err)
		http.Error(w, "registry query failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []ledger.BaselineEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleVerify verifies the stored chain, publishing a breach on failure.
// GET /api/workspaces/{ws}/verify
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	report, err := s.VerifyAndAlert()
	if err != nil {
		slog.Error("stored-chain verification failed", "error", err)
		http.Error(w, "verification failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":      report.Valid(),
		"checked":    report.Checked,
		"rootHash":   report.RootHash,
		"mismatches": report.Mismatches,
	})
}

// handleHealth reports server liveness.
// GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "running",
		"workspace": s.workspaceID,
	})
}

// writeJSON sends a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
