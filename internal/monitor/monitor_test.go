package monitor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/custodia/ledgerwatch/internal/ledger"
)

func fixedClock() func() time.Time {
	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestHandleSignal_ParsesPayload(t *testing.T) {
	m := New("", withClock(fixedClock()))
	m.HandleSignal([]byte(`{
		"type": "HASH_MISMATCH",
		"exhibitId": "ex-9",
		"filename": "a.pdf",
		"reason": "hash drift",
		"recordedHash": "aaa",
		"actualHash": "bbb",
		"message": "Exhibit a.pdf failed verification",
		"timestamp": "2026-08-01T09:59:00Z"
	}`))

	a := m.Active()
	if a == nil {
		t.Fatal("expected active alert")
	}
	if a.Kind != KindHashMismatch || a.ResourceID != "ex-9" || a.Filename != "a.pdf" {
		t.Errorf("alert = %+v", a)
	}
	if a.RecordedHash != "aaa" || a.ActualHash != "bbb" {
		t.Errorf("hashes = %q / %q", a.RecordedHash, a.ActualHash)
	}
	if a.Timestamp != "2026-08-01T09:59:00Z" {
		t.Errorf("timestamp = %q", a.Timestamp)
	}
}

func TestHandleSignal_MalformedPayloadRaisesGenericAlert(t *testing.T) {
	m := New("", withClock(fixedClock()))
	m.HandleSignal([]byte("{{{not json"))

	a := m.Active()
	if a == nil {
		t.Fatal("malformed signal should still raise an alert")
	}
	if a.Message != DefaultBreachMessage {
		t.Errorf("message = %q, want generic default", a.Message)
	}
	if a.Kind != DefaultBreachKind {
		t.Errorf("kind = %q", a.Kind)
	}
	if a.Timestamp == "" {
		t.Error("timestamp should default to now")
	}
}

func TestAlertSingleton_NewestWins(t *testing.T) {
	m := New("", withClock(fixedClock()))
	m.HandleSignal([]byte(`{"type":"CHAIN_BREAK","message":"first"}`))
	m.HandleSignal([]byte(`{"type":"HASH_MISMATCH","message":"second"}`))

	a := m.Active()
	if a == nil || a.Message != "second" {
		t.Fatalf("active = %+v, want only the most recent alert", a)
	}
}

func TestAcknowledge_Idempotent(t *testing.T) {
	m := New("", withClock(fixedClock()))
	m.HandleSignal([]byte(`{"message":"breach"}`))

	m.Acknowledge()
	if m.Active() != nil {
		t.Fatal("acknowledge should clear the active alert")
	}
	if m.BreachActive() {
		t.Error("BreachActive should be false after acknowledge")
	}

	m.Acknowledge() // second acknowledge is a no-op
	if m.Active() != nil {
		t.Error("repeated acknowledge should stay cleared")
	}
}

func TestActive_ReturnsCopy(t *testing.T) {
	m := New("", withClock(fixedClock()))
	m.HandleSignal([]byte(`{"message":"breach"}`))

	a := m.Active()
	a.Message = "mutated"
	if m.Active().Message == "mutated" {
		t.Error("Active must return a copy, not the internal alert")
	}
}

func TestObserveBatch_FlagsMostRecentTamper(t *testing.T) {
	m := New("", withClock(fixedClock()))
	m.ObserveBatch([]ledger.AuditRecord{
		{ID: "1", EventType: "CERT_REVOKED", CreatedAt: "2026-08-01T09:00:00Z", ResourceID: "ex-1"},
		{ID: "2", EventType: "EXHIBIT_VERIFY", CreatedAt: "2026-08-01T09:30:00Z"},
		{ID: "3", EventType: "KEY_COMPROMISED", CreatedAt: "2026-08-01T09:45:00Z", ResourceID: "ex-3"},
	})

	a := m.Active()
	if a == nil {
		t.Fatal("tampered records should raise an alert")
	}
	if a.ResourceID != "ex-3" {
		t.Errorf("resource = %q, want the most recent tampered record", a.ResourceID)
	}

	// A clean batch leaves the alert in place.
	m.ObserveBatch([]ledger.AuditRecord{{ID: "4", EventType: "EXHIBIT_VERIFY"}})
	if m.Active() == nil {
		t.Error("clean batch must not clear the active alert")
	}
}

func TestReadEvents(t *testing.T) {
	stream := strings.Join([]string{
		":keepalive",
		"event: alert",
		"data: {\"message\":\"one\"}",
		"",
		"data: {\"message\":\"two\"}",
		"data: {\"more\":true}",
		"",
	}, "\n") + "\n"

	var got []string
	err := readEvents(strings.NewReader(stream), func(event, data string) {
		got = append(got, event+"|"+data)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("events = %v", got)
	}
	if got[0] != "alert|{\"message\":\"one\"}" {
		t.Errorf("first event = %q", got[0])
	}
	if got[1] != "|{\"message\":\"two\"}\n{\"more\":true}" {
		t.Errorf("second event = %q", got[1])
	}
}

func TestMonitor_StreamDeliversAlerts(t *testing.T) {
	signal := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for msg := range signal {
			fmt.Fprintf(w, "event: alert\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	m := New(srv.URL, withClock(fixedClock()))
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	signal <- `{"type":"CHAIN_BREAK","message":"stored chain broken"}`

	deadline := time.After(2 * time.Second)
	for m.Active() == nil {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for streamed alert")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if a := m.Active(); a.Kind != KindChainBreak {
		t.Errorf("kind = %q", a.Kind)
	}
	close(signal)
}
