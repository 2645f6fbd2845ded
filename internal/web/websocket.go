package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ksofianos/cadre/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans lifecycle events out to every connected WebSocket client.
// A client whose write fails is dropped on the spot.
type Hub struct {
	mu        sync.Mutex
	conns     map[*websocket.Conn]struct{}
	broadcast chan events.Event
}

func NewHub() *Hub {
	return &Hub{
		conns:     make(map[*websocket.Conn]struct{}),
		broadcast: make(chan events.Event, 256),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev := <-h.broadcast:
			h.fanOut(ev)
		}
	}
}

// Broadcast queues an event for delivery. When the queue is full the
// event is dropped rather than blocking the publisher.
func (h *Hub) Broadcast(ev events.Event) {
	select {
	case h.broadcast <- ev:
	default:
		slog.Warn("websocket broadcast queue full, dropping event", "type", ev.Type)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) fanOut(ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("unencodable event", "type", ev.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

func (h *Hub) attach(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

func (h *Hub) detach(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
	}
	h.conns = make(map[*websocket.Conn]struct{})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	s.hub.attach(conn)
	defer s.hub.detach(conn)

	// Clients only listen; reading serves to notice the disconnect.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
