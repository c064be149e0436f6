package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zuckdorsey/inputtrace/internal/logging"
	"github.com/zuckdorsey/inputtrace/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The receiver binds to loopback by default; the dashboard is the only
	// expected origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub pushes newly ingested events to connected dashboard clients. Slow
// clients are dropped rather than allowed to back up ingestion.
type Hub struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// HandleWS upgrades the connection and registers the client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	send := make(chan []byte, 32)

	h.mu.Lock()
	h.clients[conn] = send
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("dashboard client connected", logging.RemoteIP(remoteIP(r)), zap.Int("clients", n))

	go h.writeLoop(conn, send)
	go h.readLoop(conn)
}

// Broadcast sends the events to every connected client.
func (h *Hub) Broadcast(events []models.Event) {
	msg, err := json.Marshal(map[string]any{"events": events})
	if err != nil {
		h.logger.Error("marshal broadcast failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, send := range h.clients {
		select {
		case send <- msg:
		default:
			delete(h.clients, conn)
			close(send)
		}
	}
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, send := range h.clients {
		delete(h.clients, conn)
		close(send)
		_ = conn.Close()
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, send <-chan []byte) {
	defer conn.Close()
	for msg := range send {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.unregister(conn)
			return
		}
	}
}

// readLoop drains control frames and detects disconnects.
func (h *Hub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.unregister(conn)
			return
		}
	}
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if send, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(send)
	}
	_ = conn.Close()
}
