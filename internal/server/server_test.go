package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/custodia/ledgerwatch/internal/feed"
	"github.com/custodia/ledgerwatch/internal/ledger"
	"github.com/custodia/ledgerwatch/internal/monitor"
	"github.com/custodia/ledgerwatch/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store, *httptest.Server) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	srv := New(Options{Store: st, WorkspaceID: "ws-1"})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, st, ts
}

func TestHandleRecords(t *testing.T) {
	_, st, ts := newTestServer(t)
	if _, err := st.Append("EXHIBIT_UPLOAD", "clerk", "ex-1", ledger.Payload{}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Append("LOGIN_FAILED", "intruder", "", ledger.Payload{}); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + "/api/workspaces/ws-1/records")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var records []ledger.AuditRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[1].PrevHash != records[0].Hash {
		t.Error("records endpoint should return ledger order")
	}
}

func TestHandleRegistry(t *testing.T) {
	_, st, ts := newTestServer(t)
	if _, err := st.IngestBaseline("ex-1", "a.pdf", []byte("bytes")); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + "/api/workspaces/ws-1/registry")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var entries []ledger.BaselineEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Filename != "a.pdf" {
		t.Errorf("registry = %+v", entries)
	}
}

func TestHandleVerify_CleanChain(t *testing.T) {
	_, st, ts := newTestServer(t)
	if _, err := st.Append("EXHIBIT_UPLOAD", "clerk", "", ledger.Payload{}); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + "/api/workspaces/ws-1/verify")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var report struct {
		Valid    bool   `json:"valid"`
		Checked  int    `json:"checked"`
		RootHash string `json:"rootHash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if !report.Valid || report.Checked != 1 || report.RootHash == "" {
		t.Errorf("report = %+v", report)
	}
}

func TestFeedRoundTrip_StreamThenAppend(t *testing.T) {
	srv, st, ts := newTestServer(t)
	if _, err := st.Append("EXHIBIT_UPLOAD", "clerk", "", ledger.Payload{}); err != nil {
		t.Fatal(err)
	}

	session := feed.Session{BaseURL: ts.URL, WorkspaceID: "ws-1"}
	m := feed.NewManager(feed.NewTransport(session))
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	// Initial snapshot arrives on connect.
	waitFor(t, "initial snapshot", func() bool { return len(m.Records()) == 1 })

	// A new append is pushed to the live subscriber.
	r, err := st.Append("EXHIBIT_VERIFY", "clerk", "", ledger.Payload{})
	if err != nil {
		t.Fatal(err)
	}
	srv.RecordAppended(r)
	waitFor(t, "pushed batch", func() bool { return len(m.Records()) == 2 })

	if m.State() != feed.StateStreaming {
		t.Errorf("state = %s, want STREAMING", m.State())
	}
}

func TestBreachRoundTrip_PublishReachesMonitor(t *testing.T) {
	srv, _, ts := newTestServer(t)

	session := feed.Session{BaseURL: ts.URL, WorkspaceID: "ws-1"}
	mon := monitor.New(session.AlertsURL())
	if err := mon.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer mon.Stop()

	// Give the SSE subscription a moment to attach before publishing.
	waitFor(t, "sse subscriber", func() bool {
		srv.alerts.mu.Lock()
		defer srv.alerts.mu.Unlock()
		return len(srv.alerts.subscribers) == 1
	})

	srv.PublishBreach(monitor.Alert{
		Kind:    monitor.KindHashMismatch,
		Message: "exhibit drifted",
	})

	waitFor(t, "alert delivery", func() bool { return mon.Active() != nil })
	if a := mon.Active(); a.Kind != monitor.KindHashMismatch || a.Message != "exhibit drifted" {
		t.Errorf("alert = %+v", a)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
