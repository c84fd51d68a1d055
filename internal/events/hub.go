package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const subscriberBuffer = 16

// Hub fans out events to in-process subscribers. Slow subscribers miss
// events rather than block the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	next   int
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Publish delivers e to every current subscriber.
func (h *Hub) Publish(_ context.Context, e Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- e:
		default:
			slog.Debug("events: subscriber lagging, event dropped", "subscriber", id, "event", e.ID)
		}
	}
	return nil
}

// Subscribe returns a channel of events and a cancel func that unregisters
// and closes it. Calling cancel more than once is safe.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close ends every subscription and refuses new ones, which lets open
// streams return. http.Server.Shutdown neither cancels request contexts nor
// tracks hijacked connections, so the server registers this with
// RegisterOnShutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// Subscribers reports how many subscriptions are open.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// ServeWebSocket upgrades the request and streams events accepted by allow
// as JSON text frames.
func (h *Hub) ServeWebSocket(w http.ResponseWriter, r *http.Request, allow func(Event) bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		slog.Debug("events: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	events, cancel := h.Subscribe()
	defer cancel()

	// Reading is required to process close and pong frames.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case e, ok := <-events:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return
			}
			if allow != nil && !allow(e) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}
}

// ServeSSE streams events accepted by allow as Server-Sent Events.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request, allow func(Event) bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// The stream outlives the server's WriteTimeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := h.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if allow != nil && !allow(e) {
				continue
			}
			data, err := json.Marshal(e)
			if err != nil {
				slog.Error("events: encode failed", "err", err)
				continue
			}
			if _, err := w.Write([]byte("event: " + string(e.Type) + "\ndata: " + string(data) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
