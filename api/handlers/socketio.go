package handlers

import (
	"context"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"go.uber.org/zap"

	"github.com/linesmerrill/camp-cad-api/models"
)

// DispatchRoom is the socket.io room every console joins on connect
const DispatchRoom = "dispatch"

// SocketIO pushes change events to dispatch consoles over socket.io
type SocketIO struct {
	server *socketio.Server
}

// NewSocketIO initializes the Socket.IO server. Serve must be started by the caller.
func NewSocketIO() *SocketIO {
	server := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			polling.Default,
			websocket.Default,
		},
	})

	server.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext("")
		s.Join(DispatchRoom)
		zap.S().Debugw("Socket.IO client connected", "id", s.ID())
		return nil
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		zap.S().Warnw("Socket.IO error", "error", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		zap.S().Debugw("Socket.IO client disconnected", "id", s.ID(), "reason", reason)
	})

	return &SocketIO{server: server}
}

// Server returns the underlying server to mount on the router
func (s *SocketIO) Server() *socketio.Server {
	return s.server
}

// Serve runs the socket.io event loop until Close
func (s *SocketIO) Serve() error {
	return s.server.Serve()
}

// Close stops the server
func (s *SocketIO) Close() error {
	return s.server.Close()
}

// Name implements notify.Target
func (s *SocketIO) Name() string {
	return "socket.io"
}

// Send implements notify.Target. The event name is <entity>:update.
func (s *SocketIO) Send(_ context.Context, event models.ChangeEvent) error {
	s.server.BroadcastToRoom("/", DispatchRoom, event.EntityType+":update", event)
	return nil
}
