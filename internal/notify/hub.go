// Package notify pushes admin override changes to connected WebSocket
// clients so open rate listings can refresh.
package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tariffsim/tariff-engine/internal/metrics"
	"github.com/tariffsim/tariff-engine/internal/model"
)

// Message is a JSON message sent to WebSocket clients.
type Message struct {
	Type          string `json:"type"` // override.created, override.updated, override.deleted
	ID            string `json:"id"`
	ImportingTo   string `json:"importingTo,omitempty"`
	ExportingFrom string `json:"exportingFrom,omitempty"`
	TariffType    string `json:"tariffType,omitempty"`
	Rate          string `json:"rate,omitempty"`
}

// Hub manages WebSocket connections and broadcasts override changes to all
// connected clients.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	origins    map[string]bool
}

// NewHub creates a new WebSocket hub. Upgrades from a browser are accepted
// only when the Origin header is one of allowedOrigins; "*" or an empty
// list accepts every origin. Requests without an Origin header (non-browser
// clients) are always accepted.
func NewHub(allowedOrigins ...string) *Hub {
	h := &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		origins:    make(map[string]bool),
	}
	for _, o := range allowedOrigins {
		h.origins[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.origins) == 0 || h.origins["*"] {
		return true
	}
	if h.origins[strings.ToLower(origin)] {
		return true
	}
	slog.Warn("ws upgrade rejected", "origin", origin)
	return false
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
			slog.Info("ws client connected", "total", n)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()

		case <-ticker.C:
			// Pings keep connections alive through proxies. All writes
			// happen on this goroutine.
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients returns the number of registered connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop ends Run and closes every client connection.
func (h *Hub) Stop() { close(h.done) }

// OverrideChanged broadcasts an admin override mutation.
func (h *Hub) OverrideChanged(op string, def model.TariffDefinition) {
	msg := Message{
		Type:          "override." + op,
		ID:            def.ID,
		ImportingTo:   def.ImportingTo,
		ExportingFrom: def.ExportingFrom,
		TariffType:    string(def.Type),
	}
	if op != "deleted" {
		msg.Rate = def.Rate.String()
	}
	h.Broadcast(msg)
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop if buffer full; an admin write never waits on slow clients.
	}
}

// HandleWS handles WebSocket upgrade requests at GET /api/ws.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
