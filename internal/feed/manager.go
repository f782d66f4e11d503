package feed

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/custodia/ledgerwatch/internal/ledger"
)

// State is the subscription connection state.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateStreaming    State = "STREAMING"
	StatePolling      State = "POLLING"
)

// DefaultPollInterval is the polling cadence after push-channel fallback.
// Fixed interval, not exponential backoff: the design goal is "always
// eventually consistent", not minimal request volume.
const DefaultPollInterval = 5 * time.Second

// Manager maintains one live subscription to a ledger's record feed.
//
// Lifecycle: Start dials the push channel (CONNECTING → STREAMING). Any
// transport failure — dial error, stream error, channel close — moves the
// subscription to POLLING, which continues at a fixed interval until Stop.
// The subscription never terminates itself on transport failure.
//
// Each received batch is a full snapshot of recent records; the manager
// replaces its view atomically, so stale or out-of-order batches cannot
// corrupt the window.
type Manager struct {
	transport    Transport
	pollInterval time.Duration
	onBatch      func([]ledger.AuditRecord)

	mu      sync.RWMutex
	state   State
	records []ledger.AuditRecord
	byID    map[string]ledger.AuditRecord

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithPollInterval overrides the fallback polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithBatchHandler registers a callback invoked after each applied batch
// with a copy of the new window. Called from the manager goroutine; handlers
// must not block.
func WithBatchHandler(fn func([]ledger.AuditRecord)) Option {
	return func(m *Manager) { m.onBatch = fn }
}

// NewManager creates a subscription manager over the given transport.
// Use NewTransport(session) for the production websocket/HTTP transport.
func NewManager(transport Transport, opts ...Option) *Manager {
	m := &Manager{
		transport:    transport,
		pollInterval: DefaultPollInterval,
		state:        StateDisconnected,
		byID:         make(map[string]ledger.AuditRecord),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the subscription loop. Non-blocking; returns an error only
// if the manager is already running. Cancelling the parent context is
// equivalent to calling Stop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return errors.New("subscription already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.state = StateConnecting

	go m.run(ctx)
	return nil
}

// Stop cancels the subscription and waits for the loop to release its
// websocket and timers. Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Records returns a copy of the current window in ledger order.
func (m *Manager) Records() []ledger.AuditRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.AuditRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Record returns the record with the given id, if present in the window.
func (m *Manager) Record(id string) (ledger.AuditRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[id]
	return r, ok
}

// run is the subscription loop: one streaming attempt, then polling until
// the context ends.
func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	if err := m.stream(ctx); err != nil && ctx.Err() == nil {
		slog.Warn("record stream lost, falling back to polling", "error", err)
	}
	if ctx.Err() != nil {
		return
	}
	m.poll(ctx)
}

// stream dials the push channel and applies batches until the channel fails
// or the context ends. Malformed frames are logged and skipped.
func (m *Manager) stream(ctx context.Context) error {
	ch, err := m.transport.Dial(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	m.setState(StateStreaming)
	slog.Info("record stream connected")

	// Unblock ReadBatch when the context ends: closing the channel fails
	// the pending read.
	readerDone := make(chan struct{})
	defer close(readerDone)
	go func() {
		select {
		case <-ctx.Done():
			ch.Close()
		case <-readerDone:
		}
	}()

	for {
		batch, err := ch.ReadBatch()
		if err != nil {
			var malformed errMalformedBatch
			if errors.As(err, &malformed) {
				slog.Warn("skipping malformed record batch", "error", err)
				continue
			}
			return err
		}
		m.apply(batch)
	}
}

// poll fetches snapshots at a fixed interval until the context ends. Fetch
// errors are logged and retried on the next tick — the feed is degraded,
// never dead.
func (m *Manager) poll(ctx context.Context) {
	m.setState(StatePolling)
	slog.Info("record feed polling", "interval", m.pollInterval)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	// Immediate first pull so fallback doesn't wait a full interval.
	m.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

func (m *Manager) pollOnce(ctx context.Context) {
	batch, err := m.transport.Fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("record poll failed", "error", err)
		}
		return
	}
	m.apply(batch)
}

// apply replaces the window with a new snapshot batch: dedup by id, order
// by creation time (ties broken by id, since ledger timestamps are
// non-decreasing but arrival order is not guaranteed).
func (m *Manager) apply(batch []ledger.AuditRecord) {
	byID := make(map[string]ledger.AuditRecord, len(batch))
	for _, r := range batch {
		if r.ID == "" {
			continue
		}
		byID[r.ID] = r
	}
	records := make([]ledger.AuditRecord, 0, len(byID))
	for _, r := range byID {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].ID < records[j].ID
	})

	m.mu.Lock()
	m.records = records
	m.byID = byID
	handler := m.onBatch
	m.mu.Unlock()

	if handler != nil {
		out := make([]ledger.AuditRecord, len(records))
		copy(out, records)
		handler(out)
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
