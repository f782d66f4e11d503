package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// sseHub fans breach signals out to Server-Sent Events subscribers. The
// breach feed is independent of the record feed: a client can lose one
// without losing the other.
type sseHub struct {
	mu          sync.Mutex
	subscribers map[chan []byte]bool
}

func newSSEHub() *sseHub {
	return &sseHub{subscribers: make(map[chan []byte]bool)}
}

func (h *sseHub) subscribe() chan []byte {
	ch := make(chan []byte, 16)
	h.mu.Lock()
	h.subscribers[ch] = true
	h.mu.Unlock()
	return ch
}

func (h *sseHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	if h.subscribers[ch] {
		delete(h.subscribers, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// publish queues a signal for every subscriber. Slow subscribers are
// dropped; an alert they miss is superseded by the next one.
func (h *sseHub) publish(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- msg:
		default:
			delete(h.subscribers, ch)
			close(ch)
		}
	}
}

// keepaliveInterval paces SSE comment lines so intermediaries do not drop
// an idle breach stream.
const keepaliveInterval = 25 * time.Second

// handleAlertStream serves the breach-signal feed as SSE. Blocks until the
// client disconnects.
func (s *Server) handleAlertStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ":connected\n\n")
	flusher.Flush()

	ch := s.alerts.subscribe()
	defer s.alerts.unsubscribe(ch)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: alert\ndata: %s\n\n", msg)
			flusher.Flush()
			slog.Debug("breach signal delivered")
		}
	}
}
