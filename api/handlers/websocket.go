package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/linesmerrill/camp-cad-api/models"
)

const writeWait = 5 * time.Second

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ChangeHub streams every change event to the clients connected at /ws/changes
type ChangeHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewChangeHub returns an empty hub
func NewChangeHub() *ChangeHub {
	return &ChangeHub{clients: map[*websocket.Conn]bool{}}
}

// HandleChanges upgrades the request and keeps the client registered until it disconnects
func (h *ChangeHub) HandleChanges(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("WebSocket upgrade error", "error", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.mu.Unlock()
	zap.S().Debugw("client connected to /ws/changes", "clients", count)

	// clients only listen; reading keeps control frames flowing and notices the close
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	h.drop(conn)
}

// Clients returns the number of connected clients
func (h *ChangeHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Name implements notify.Target
func (h *ChangeHub) Name() string {
	return "websocket"
}

// Send implements notify.Target. Clients that cannot be written to are dropped.
func (h *ChangeHub) Send(_ context.Context, event models.ChangeEvent) error {
	msg := map[string]interface{}{
		"event": event.EntityType + ":update",
		"data":  event,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	var errs error
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			errs = multierr.Append(errs, err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
	return errs
}

// Close disconnects every client
func (h *ChangeHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		delete(h.clients, conn)
	}
}

func (h *ChangeHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if h.clients[conn] {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}
