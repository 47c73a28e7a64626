package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"i4.energy/across/modemd/modem"
)

// Inbox keeps the most recent received messages and status reports.
type Inbox struct {
	mu     sync.Mutex
	limit  int
	events []modem.Event
}

// NewInbox returns an inbox holding up to limit events.
func NewInbox(limit int) *Inbox {
	return &Inbox{limit: max(limit, 1)}
}

// Add stores ev if it is a message or status report.
func (in *Inbox) Add(ev modem.Event) {
	if ev.Kind != modem.EventMessage && ev.Kind != modem.EventStatusReport {
		return
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	in.events = append(in.events, ev)
	if over := len(in.events) - in.limit; over > 0 {
		in.events = append(in.events[:0], in.events[over:]...)
	}
}

// List returns the stored events received after since, oldest first.
func (in *Inbox) List(since time.Time) []modem.Event {
	in.mu.Lock()
	defer in.mu.Unlock()

	out := make([]modem.Event, 0, len(in.events))
	for _, ev := range in.events {
		if ev.Time.After(since) {
			out = append(out, ev)
		}
	}
	return out
}

const (
	hubClientBuffer = 32
	hubWriteTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub streams events to WebSocket clients as JSON text messages. Slow
// clients lose events rather than hold up the others.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[chan modem.Event]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[chan modem.Event]struct{}),
	}
}

// Broadcast hands ev to every connected client.
func (h *Hub) Broadcast(ev modem.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("Dropping event for slow client", "kind", ev.Kind)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) subscribe() chan modem.Event {
	ch := make(chan modem.Event, hubClientBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan modem.Event) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams events until the client goes
// away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	// Reads only serve to notice the client closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("Failed to encode event", "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("WebSocket write failed", "error", err)
				return
			}
		}
	}
}

// EventSink receives every event the modem reports.
type EventSink interface {
	Publish(ev modem.Event)
}

// fanOut copies events to the inbox, the hub and every sink until events is
// closed or ctx ends.
func fanOut(ctx context.Context, events <-chan modem.Event, inbox *Inbox, hub *Hub, sinks ...EventSink) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			inbox.Add(ev)
			hub.Broadcast(ev)
			for _, s := range sinks {
				s.Publish(ev)
			}
		}
	}
}
