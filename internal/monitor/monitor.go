// Package monitor tracks breach signals for one client session. It keeps an
// at-most-one-active alert: each incoming signal replaces the previous
// alert, and an explicit acknowledgement clears it. Signals arrive from a
// dedicated breach feed (independent of the main record feed) and from
// inspection of incoming records.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/custodia/ledgerwatch/internal/ledger"
)

// DefaultBreachMessage is substituted when a breach signal's payload cannot
// be parsed — a garbled alarm is still an alarm.
const DefaultBreachMessage = "CRITICAL ALERT: DETERMINISTIC_HEARTBEAT_DESYNC"

// DefaultBreachKind is the alert kind for signals that carry no type.
const DefaultBreachKind = "SYSTEM_INTEGRITY_BREACH"

// Breach kinds emitted by the store when stored-chain verification fails.
const (
	KindChainBreak   = "CHAIN_BREAK"
	KindHashMismatch = "HASH_MISMATCH"
	KindTamperedRec  = "TAMPERED_RECORD"
)

// Alert is the active integrity alert for a session.
type Alert struct {
	Kind         string `json:"type"`
	ResourceID   string `json:"resourceId,omitempty"`
	Filename     string `json:"filename,omitempty"`
	Reason       string `json:"reason,omitempty"`
	RecordedHash string `json:"recordedHash,omitempty"`
	ActualHash   string `json:"actualHash,omitempty"`
	Message      string `json:"message"`
	Timestamp    string `json:"timestamp"`
}

// retryInterval is the pause before redialing a lost breach stream. The
// breach feed redials rather than polling; losing it must never take the
// host session down.
const retryInterval = 5 * time.Second

// Monitor owns the single-active-alert state machine for one session.
type Monitor struct {
	alertsURL string
	client    *http.Client
	now       func() time.Time

	mu     sync.RWMutex
	active *Alert

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithHTTPClient overrides the client used to dial the breach stream.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Monitor) { m.client = c }
}

// withClock fixes the timestamp source for tests.
func withClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a monitor for the given breach-stream URL (an SSE endpoint).
func New(alertsURL string, opts ...Option) *Monitor {
	m := &Monitor{
		alertsURL: alertsURL,
		client:    http.DefaultClient,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the breach-stream subscription. Stream loss is logged and
// redialed; it never propagates to the caller.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return fmt.Errorf("breach monitor already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx)
	return nil
}

// Stop cancels the subscription and waits for the stream goroutine.
// Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Active returns a copy of the active alert, or nil when none.
func (m *Monitor) Active() *Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return nil
	}
	out := *m.active
	return &out
}

// BreachActive reports whether an alert is currently active.
func (m *Monitor) BreachActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active != nil
}

// Acknowledge clears the active alert. Idempotent: acknowledging an empty
// monitor is a no-op.
func (m *Monitor) Acknowledge() {
	m.mu.Lock()
	m.active = nil
	m.mu.Unlock()
}

// HandleSignal ingests one raw breach-signal payload, replacing the active
// alert. A malformed payload still raises an alert with the generic message.
func (m *Monitor) HandleSignal(data []byte) {
	var payload struct {
		Type         string `json:"type"`
		ResourceID   string `json:"resourceId"`
		ExhibitID    string `json:"exhibitId"`
		Filename     string `json:"filename"`
		Reason       string `json:"reason"`
		RecordedHash string `json:"recordedHash"`
		ActualHash   string `json:"actualHash"`
		Message      string `json:"message"`
		Timestamp    string `json:"timestamp"`
	}
	alert := Alert{
		Kind:      DefaultBreachKind,
		Message:   DefaultBreachMessage,
		Timestamp: m.now().UTC().Format(time.RFC3339),
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Warn("malformed breach signal, raising generic alert", "error", err)
	} else {
		if payload.Type != "" {
			alert.Kind = payload.Type
		}
		if payload.Message != "" {
			alert.Message = payload.Message
		}
		if payload.Timestamp != "" {
			alert.Timestamp = payload.Timestamp
		}
		alert.ResourceID = payload.ResourceID
		if alert.ResourceID == "" {
			alert.ResourceID = payload.ExhibitID
		}
		alert.Filename = payload.Filename
		alert.Reason = payload.Reason
		alert.RecordedHash = payload.RecordedHash
		alert.ActualHash = payload.ActualHash
	}
	m.setAlert(alert)
}

// ObserveBatch inspects a window of incoming records for tamper signals.
// The most recent tampered record wins; clean batches leave the active
// alert untouched (only an acknowledgement or a newer signal changes it).
func (m *Monitor) ObserveBatch(records []ledger.AuditRecord) {
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.Status() != ledger.StatusTampered {
			continue
		}
		reason := r.Payload.Reason
		if reason == "" {
			reason = "Integrity mismatch detected."
		}
		m.setAlert(Alert{
			Kind:       KindTamperedRec,
			ResourceID: r.Resource(),
			Reason:     reason,
			Message:    fmt.Sprintf("Tampered record detected: %s", r.EventType),
			Timestamp:  r.CreatedAt,
		})
		return
	}
}

func (m *Monitor) setAlert(a Alert) {
	m.mu.Lock()
	m.active = &a
	m.mu.Unlock()
	slog.Warn("integrity alert active", "kind", a.Kind, "resource", a.ResourceID, "message", a.Message)
}

// run dials the breach stream and redials on loss until the context ends.
func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	for {
		if err := m.streamOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("breach stream lost, redialing", "error", err, "retry", retryInterval)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryInterval):
		}
	}
}

func (m *Monitor) streamOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.alertsURL, nil)
	if err != nil {
		return fmt.Errorf("building breach stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("dialing breach stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("breach stream returned %s", resp.Status)
	}

	slog.Info("breach stream connected")
	return readEvents(resp.Body, func(event, data string) {
		// The feed tags breach events "alert"; untagged events are accepted
		// for compatibility with plain EventSource emitters.
		if event != "" && event != "alert" {
			return
		}
		m.HandleSignal([]byte(data))
	})
}
