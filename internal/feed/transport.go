// Package feed delivers ledger records to a client session with automatic
// recovery from transport failure. A session prefers the push channel
// (websocket); when the channel errors or closes it falls back to periodic
// polling of the same records endpoint and keeps delivering batches until
// the session is stopped. Every batch is a full snapshot of recent records,
// so out-of-order batches are tolerated by replacement, not merging.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/custodia/ledgerwatch/internal/ledger"
)

// Session identifies the ledger scope a subscription reads. Passed
// explicitly to constructors — the subsystem keeps no ambient workspace or
// auth globals.
type Session struct {
	// BaseURL is the ledger store's HTTP base, e.g. "http://127.0.0.1:3100".
	BaseURL string
	// WorkspaceID scopes every request to one ledger.
	WorkspaceID string
	// Client is the HTTP client for polling and registry fetches.
	// Defaults to http.DefaultClient.
	Client *http.Client
}

func (s Session) httpClient() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s Session) recordsURL() string {
	return fmt.Sprintf("%s/api/workspaces/%s/records", strings.TrimRight(s.BaseURL, "/"), url.PathEscape(s.WorkspaceID))
}

func (s Session) registryURL() string {
	return fmt.Sprintf("%s/api/workspaces/%s/registry", strings.TrimRight(s.BaseURL, "/"), url.PathEscape(s.WorkspaceID))
}

// AlertsURL is the breach-signal stream endpoint for this session, consumed
// by the monitor package.
func (s Session) AlertsURL() string {
	return fmt.Sprintf("%s/api/workspaces/%s/alerts/stream", strings.TrimRight(s.BaseURL, "/"), url.PathEscape(s.WorkspaceID))
}

func (s Session) streamURL() string {
	u := fmt.Sprintf("%s/ws/workspaces/%s/records", strings.TrimRight(s.BaseURL, "/"), url.PathEscape(s.WorkspaceID))
	u = strings.Replace(u, "https://", "wss://", 1)
	return strings.Replace(u, "http://", "ws://", 1)
}

// PushChannel is an open push connection delivering record batches until it
// errors or is closed.
type PushChannel interface {
	// ReadBatch blocks until the next snapshot batch arrives or the channel
	// fails. A failed channel stays failed; callers must Close and fall back.
	ReadBatch() ([]ledger.AuditRecord, error)
	Close() error
}

// Transport abstracts the two ways of reaching the ledger store so the
// manager's state machine can swap between them without the monitor or
// verifier noticing.
type Transport interface {
	// Dial opens the push channel.
	Dial(ctx context.Context) (PushChannel, error)
	// Fetch pulls one snapshot batch. Used by the polling fallback.
	Fetch(ctx context.Context) ([]ledger.AuditRecord, error)
}

// httpTransport is the production transport: gorilla websocket for push,
// plain HTTP GET for pull.
type httpTransport struct {
	session Session
}

// NewTransport builds the websocket-plus-HTTP transport for a session.
func NewTransport(session Session) Transport {
	return &httpTransport{session: session}
}

func (t *httpTransport) Dial(ctx context.Context) (PushChannel, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, t.session.streamURL(), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("dialing record stream: %w", err)
	}
	return &wsChannel{conn: conn}, nil
}

func (t *httpTransport) Fetch(ctx context.Context) ([]ledger.AuditRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.session.recordsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("building records request: %w", err)
	}
	resp, err := t.session.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("records endpoint returned %s", resp.Status)
	}

	var batch []ledger.AuditRecord
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("decoding record batch: %w", err)
	}
	return batch, nil
}

// FetchRegistry pulls the baseline hash registry for a session. Lives here
// with the other pull paths; the scanner takes the returned snapshot.
func FetchRegistry(ctx context.Context, session Session) ([]ledger.BaselineEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, session.registryURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("building registry request: %w", err)
	}
	resp, err := session.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("registry endpoint returned %s", resp.Status)
	}

	var entries []ledger.BaselineEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding registry: %w", err)
	}
	return entries, nil
}

// wsChannel adapts a gorilla websocket connection to PushChannel. Each text
// message is one JSON-encoded snapshot batch.
type wsChannel struct {
	conn *websocket.Conn
}

func (c *wsChannel) ReadBatch() ([]ledger.AuditRecord, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading record stream: %w", err)
	}
	var batch []ledger.AuditRecord
	if err := json.Unmarshal(data, &batch); err != nil {
		// A malformed frame is a diagnostics event, not a dead channel.
		return nil, errMalformedBatch{err}
	}
	return batch, nil
}

func (c *wsChannel) Close() error {
	return c.conn.Close()
}

// errMalformedBatch marks a frame that failed to decode. The manager logs
// and skips these instead of abandoning the stream.
type errMalformedBatch struct{ err error }

func (e errMalformedBatch) Error() string { return "malformed record batch: " + e.err.Error() }
func (e errMalformedBatch) Unwrap() error { return e.err }
