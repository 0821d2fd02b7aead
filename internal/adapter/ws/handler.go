// Package ws implements the WebSocket live feed of routing decisions and
// agent liveness changes.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 32
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// subscriber is one connected observer. Frames are queued on send and
// written by a dedicated goroutine, so a stalled client never blocks the
// decision path. A non-empty correlationID narrows decision events to one
// conversation.
type subscriber struct {
	ws            *websocket.Conn
	send          chan []byte
	correlationID string
	closeOnce     sync.Once
	done          chan struct{}
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *subscriber) wants(correlationID string) bool {
	return s.correlationID == "" || correlationID == "" || s.correlationID == correlationID
}

// Hub fans broadcast messages out to connected observers.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	origins []string
}

// Option configures a Hub.
type Option func(*Hub)

// WithOrigins restricts which browser origins may open a socket. Patterns
// follow websocket.AcceptOptions.OriginPatterns; "*" or no patterns at all
// accept any origin.
func WithOrigins(patterns ...string) Option {
	return func(h *Hub) {
		for _, p := range patterns {
			if p = strings.TrimSpace(p); p != "" {
				h.origins = append(h.origins, p)
			}
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{subs: make(map[*subscriber]struct{})}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Hub) acceptOptions() *websocket.AcceptOptions {
	if len(h.origins) == 0 || slices.Contains(h.origins, "*") {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return &websocket.AcceptOptions{OriginPatterns: h.origins}
}

// HandleWS upgrades the request and serves the feed until the client leaves.
// ?correlation_id= narrows the feed to one conversation.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		slog.WarnContext(r.Context(), "websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s := &subscriber{
		ws:            conn,
		send:          make(chan []byte, sendBuffer),
		correlationID: r.URL.Query().Get("correlation_id"),
		done:          make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	slog.InfoContext(r.Context(), "observer connected", "remote", r.RemoteAddr, "correlation_id", s.correlationID)

	// Observers never send; CloseRead answers control frames and cancels
	// ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())
	status, reason := h.writeLoop(ctx, s)

	h.drop(s)
	_ = conn.Close(status, reason)
	slog.InfoContext(r.Context(), "observer disconnected", "remote", r.RemoteAddr, "reason", reason)
}

func (h *Hub) writeLoop(ctx context.Context, s *subscriber) (websocket.StatusCode, string) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return websocket.StatusNormalClosure, "client gone"
		case <-s.done:
			return websocket.StatusPolicyViolation, "too slow"
		case frame := <-s.send:
			if err := write(ctx, s.ws, frame); err != nil {
				return websocket.StatusGoingAway, "write failed"
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.ws.Ping(pctx)
			cancel()
			if err != nil {
				return websocket.StatusGoingAway, "ping failed"
			}
		}
	}
}

func write(ctx context.Context, c *websocket.Conn, frame []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, frame)
}

// Broadcast queues msg for every observer whose filter accepts
// correlationID. An observer whose queue is full is disconnected.
func (h *Hub) Broadcast(ctx context.Context, msg Message, correlationID string) {
	frame, err := json.Marshal(msg)
	if err != nil {
		slog.ErrorContext(ctx, "websocket marshal failed", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if !s.wants(correlationID) {
			continue
		}
		select {
		case s.send <- frame:
		default:
			slog.WarnContext(ctx, "dropping slow observer", "correlation_id", s.correlationID)
			s.close()
		}
	}
}

// ConnectionCount returns the number of connected observers.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) drop(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	s.close()
}
