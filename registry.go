package livedash

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Connection represents a client WebSocket connection.
//
// Every connection is a member of the room named after its own ID, so
// addressing a single client and addressing a room are the same operation.
type Connection struct {
	Conn       *websocket.Conn
	ID         string
	RemoteAddr string
	mu         sync.Mutex // Protects writes to Conn
}

// Send writes a text frame to this connection.
// Thread-safe: multiple goroutines can call Send concurrently.
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// ConnectionRegistry tracks active connections and their room memberships.
//
// Thread-safe: safe for concurrent access from multiple goroutines.
type ConnectionRegistry struct {
	byID   map[string]*Connection
	byRoom map[string][]*Connection // room → members
	rooms  map[*Connection]map[string]struct{}
	mu     sync.RWMutex
}

// NewConnectionRegistry creates a new empty connection registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		byID:   make(map[string]*Connection),
		byRoom: make(map[string][]*Connection),
		rooms:  make(map[*Connection]map[string]struct{}),
	}
}

// Register adds a connection and joins it to its own room.
func (r *ConnectionRegistry) Register(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[conn.ID] = conn
	r.rooms[conn] = make(map[string]struct{})
	r.join(conn, conn.ID)
}

// Unregister removes a connection from the registry and from every room.
//
// Should be called when a WebSocket connection closes to prevent memory leaks.
func (r *ConnectionRegistry) Unregister(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for room := range r.rooms[conn] {
		r.leave(conn, room)
	}
	delete(r.rooms, conn)
	if r.byID[conn.ID] == conn {
		delete(r.byID, conn.ID)
	}
}

// Join adds conn to room. Joining twice is a no-op.
func (r *ConnectionRegistry) Join(conn *Connection, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[conn]; !ok {
		return
	}
	r.join(conn, room)
}

// Leave removes conn from room.
func (r *ConnectionRegistry) Leave(conn *Connection, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leave(conn, room)
}

func (r *ConnectionRegistry) join(conn *Connection, room string) {
	if _, ok := r.rooms[conn][room]; ok {
		return
	}
	r.rooms[conn][room] = struct{}{}
	r.byRoom[room] = append(r.byRoom[room], conn)
}

func (r *ConnectionRegistry) leave(conn *Connection, room string) {
	if memberships, ok := r.rooms[conn]; ok {
		delete(memberships, room)
	}
	r.byRoom[room] = removeConnection(r.byRoom[room], conn)

	// Clean up empty slices to prevent memory leaks
	if len(r.byRoom[room]) == 0 {
		delete(r.byRoom, room)
	}
}

// Get returns the connection with the given ID.
func (r *ConnectionRegistry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byID[id]
	return conn, ok
}

// GetByRoom returns all members of a room.
//
// Returns a copy of the slice to prevent external modification.
// Returns empty slice if the room has no members.
func (r *ConnectionRegistry) GetByRoom(room string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byRoom[room]
	if conns == nil {
		return []*Connection{}
	}

	// Return copy to prevent external modification
	result := make([]*Connection, len(conns))
	copy(result, conns)
	return result
}

// GetAll returns all active connections.
func (r *ConnectionRegistry) GetAll() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Connection, 0, len(r.byID))
	for _, conn := range r.byID {
		result = append(result, conn)
	}
	return result
}

// Count returns the total number of active connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// RoomCount returns the number of rooms with at least one member,
// including the per-connection rooms.
func (r *ConnectionRegistry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRoom)
}

// removeConnection removes a specific connection from a slice.
// Returns a new slice without the connection.
func removeConnection(conns []*Connection, target *Connection) []*Connection {
	result := make([]*Connection, 0, len(conns))
	for _, conn := range conns {
		if conn != target {
			result = append(result, conn)
		}
	}
	return result
}
