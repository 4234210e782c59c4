// Package hub keeps the registry of live relay connections.
package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Connection represents a single live relay connection.
type Connection struct {
	ID          string
	SessionID   string
	RemoteAddr  string
	ConnectedAt time.Time
}

// Hub tracks live connections by id and by session.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Sessions maps session_id to set of connection IDs
	sessions map[string]map[string]bool

	mu sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]bool),
	}
}

// NewConnection creates a connection record bound to sessionID. It is not
// registered yet.
func (h *Hub) NewConnection(sessionID, remoteAddr string) *Connection {
	return &Connection{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
	}
}

// Register adds conn and returns how many live connections its session now
// has, conn included.
func (h *Hub) Register(conn *Connection) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[conn.ID] = conn
	if h.sessions[conn.SessionID] == nil {
		h.sessions[conn.SessionID] = make(map[string]bool)
	}
	h.sessions[conn.SessionID][conn.ID] = true
	return len(h.sessions[conn.SessionID])
}

// Unregister removes conn. Unknown connections are ignored.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if h.sessions[conn.SessionID] != nil {
		delete(h.sessions[conn.SessionID], conn.ID)
		if len(h.sessions[conn.SessionID]) == 0 {
			delete(h.sessions, conn.SessionID)
		}
	}
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// GetSessionCount returns the number of sessions with a live connection.
func (h *Hub) GetSessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
