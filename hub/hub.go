// Package hub manages the WebSocket observer connections of live auction
// sessions. Each connection is bound to a single idea id; delivery to "all
// observers of idea X" goes through the hub so a failing connection only ever
// removes itself.
package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ideaforge/bidtheater/domain"
	"github.com/ideaforge/bidtheater/logger"
)

// ErrSendQueueFull is returned when a connection's outbound queue is full.
var ErrSendQueueFull = errors.New("send queue full")

// Connection represents a single observer connection.
type Connection struct {
	ID     string
	IdeaID string
	Conn   *websocket.Conn
	Send   chan []byte
	mu     sync.Mutex
}

// Hub manages all observer connections, indexed by connection id and grouped
// by idea id.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	observers   map[string]map[string]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		observers:   make(map[string]map[string]bool),
	}
}

// NewConnection wraps a websocket in a Connection. The connection is not
// visible to broadcasts until Register.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   "con_" + uuid.New().String()[:8],
		Conn: ws,
		Send: make(chan []byte, 256),
	}
}

// Register makes a connection visible to broadcasts for its bound idea.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn.ID] = conn
	if conn.IdeaID != "" {
		h.bindLocked(conn)
	}
	logger.Debug("observer %s registered (idea: %s)", conn.ID, conn.IdeaID)
}

// Unregister removes a connection and closes its send queue.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	h.unbindLocked(conn)
	close(conn.Send)
	logger.Debug("observer %s unregistered", conn.ID)
}

// BindIdea subscribes a connection to a session's event stream, replacing any
// previous binding.
func (h *Hub) BindIdea(conn *Connection, ideaID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unbindLocked(conn)
	conn.IdeaID = ideaID
	h.bindLocked(conn)
}

func (h *Hub) bindLocked(conn *Connection) {
	if h.observers[conn.IdeaID] == nil {
		h.observers[conn.IdeaID] = make(map[string]bool)
	}
	h.observers[conn.IdeaID][conn.ID] = true
}

func (h *Hub) unbindLocked(conn *Connection) {
	if conn.IdeaID == "" {
		return
	}
	if set := h.observers[conn.IdeaID]; set != nil {
		delete(set, conn.ID)
		if len(set) == 0 {
			delete(h.observers, conn.IdeaID)
		}
	}
}

// Deliver marshals a batch of events and queues it to every observer of the
// idea. An observer whose queue is full is dropped; the rest are unaffected.
// Deliver never returns a per-connection failure: its only error is a
// marshalling one.
func (h *Hub) Deliver(ideaID string, events []domain.Event) error {
	data, err := json.Marshal(events)
	if err != nil {
		return err
	}

	h.mu.RLock()
	var stale []*Connection
	for connID := range h.observers[ideaID] {
		conn, ok := h.connections[connID]
		if !ok {
			continue
		}
		select {
		case conn.Send <- data:
		default:
			logger.Warn("observer %s queue full, dropping connection", connID)
			stale = append(stale, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range stale {
		h.Unregister(conn)
	}
	return nil
}

// ObserverCount returns the number of observers bound to an idea.
func (h *Hub) ObserverCount(ideaID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers[ideaID])
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// WriteMessage writes to the underlying websocket with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the underlying websocket.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
