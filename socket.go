package livedash

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ClientHandler receives connection lifecycle events and client messages
// from a Transport.
type ClientHandler interface {
	ClientConnected(id, remoteAddr string)
	ClientMessage(id, event string, data json.RawMessage)
	ClientDisconnected(id, remoteAddr string)
}

// Transport delivers events to clients. target in SendToClient is a client
// ID or a room name.
type Transport interface {
	BroadcastToAll(event string, data any) error
	SendToClient(target, event string, data any) error
	Subscribe(h ClientHandler)
}

// Server is a WebSocket Transport. Frames are JSON text messages of the
// form {"event": ..., "data": ...}. Room membership is handled here and
// never reaches the subscribers.
type Server struct {
	upgrader websocket.Upgrader
	registry *ConnectionRegistry
	log      logr.Logger

	mu       sync.RWMutex
	handlers []ClientHandler
}

// ServerOption is a functional option for configuring a Server
type ServerOption func(*Server)

// WithServerLogger sets the logger of the server.
func WithServerLogger(log logr.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// WithCheckOrigin replaces the origin check of the upgrader. By default
// every origin is accepted.
func WithCheckOrigin(fn func(r *http.Request) bool) ServerOption {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

// NewServer creates a WebSocket transport.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		registry: NewConnectionRegistry(),
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the connection registry.
func (s *Server) Registry() *ConnectionRegistry { return s.registry }

// Subscribe implements Transport.
func (s *Server) Subscribe(h ClientHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

func (s *Server) subscribers() []ClientHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handlers
}

// BroadcastToAll implements Transport.
func (s *Server) BroadcastToAll(event string, data any) error {
	return s.sendTo(s.registry.GetAll(), event, data)
}

// SendToClient implements Transport.
func (s *Server) SendToClient(target, event string, data any) error {
	return s.sendTo(s.registry.GetByRoom(target), event, data)
}

func (s *Server) sendTo(conns []*Connection, event string, data any) error {
	if len(conns) == 0 {
		return nil
	}
	frame, err := encodeEnvelope(event, data)
	if err != nil {
		return err
	}
	var errs []error
	for _, conn := range conns {
		if err := conn.Send(frame); err != nil {
			errs = append(errs, fmt.Errorf("send %s to %s: %w", event, conn.ID, err))
		}
	}
	return errors.Join(errs...)
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "expected a WebSocket upgrade", http.StatusBadRequest)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error(err, "WebSocket upgrade failed")
		return
	}
	defer ws.Close()

	conn := &Connection{Conn: ws, ID: uuid.NewString(), RemoteAddr: r.RemoteAddr}
	s.registry.Register(conn)
	defer s.registry.Unregister(conn)

	log := s.log.WithValues("client", conn.ID)
	log.V(1).Info("Client connected", "remote", conn.RemoteAddr)

	for _, h := range s.subscribers() {
		h.ClientConnected(conn.ID, conn.RemoteAddr)
	}
	defer func() {
		for _, h := range s.subscribers() {
			h.ClientDisconnected(conn.ID, conn.RemoteAddr)
		}
		log.V(1).Info("Client disconnected")
	}()

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error(err, "WebSocket error")
			}
			return
		}

		env, err := decodeEnvelope(frame)
		if err != nil {
			log.Info("Dropping client frame", "error", err.Error())
			continue
		}

		switch env.Event {
		case EventJoinRoom, EventLeaveRoom:
			var room string
			if err := json.Unmarshal(env.Data, &room); err != nil || room == "" {
				log.Info("Dropping room request without a room name", "event", env.Event)
				continue
			}
			if env.Event == EventJoinRoom {
				s.registry.Join(conn, room)
			} else {
				s.registry.Leave(conn, room)
			}
		default:
			for _, h := range s.subscribers() {
				h.ClientMessage(conn.ID, env.Event, env.Data)
			}
		}
	}
}

// Close closes every open connection.
func (s *Server) Close() error {
	var errs []error
	for _, conn := range s.registry.GetAll() {
		if err := conn.Conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
