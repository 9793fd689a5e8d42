// Package ws provides the WebSocket endpoint observer clients connect to.
package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ideaforge/bidtheater/config"
	"github.com/ideaforge/bidtheater/engine"
	"github.com/ideaforge/bidtheater/hub"
	"github.com/ideaforge/bidtheater/logger"
	"github.com/ideaforge/bidtheater/protocol"
)

// Server handles WebSocket connections.
type Server struct {
	cfg      config.ServerConfig
	hub      *hub.Hub
	registry *engine.Registry
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg config.ServerConfig, h *hub.Hub, registry *engine.Registry) *Server {
	return &Server{
		cfg:      cfg,
		hub:      h,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
// GET /ws
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Warn("websocket upgrade failed: %v", err)
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads control messages from the observer.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error: %v", err)
			}
			break
		}
		s.handleMessage(conn, message)
	}
}

// writePump writes queued deliveries and keepalive pings.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("websocket write failed: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming control messages.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch base.Type {
	case protocol.TypeHello:
		s.handleHello(conn, data)
	case protocol.TypeContext:
		s.handleContext(conn, data)
	default:
		s.sendError(conn, base.IdeaID, protocol.ErrorCodeInvalidMessage, "unknown message type: "+base.Type)
	}
}

// handleHello binds the connection to an idea's session.
func (s *Server) handleHello(conn *hub.Connection, data []byte) {
	var msg protocol.HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid hello message")
		return
	}
	if msg.IdeaID == "" {
		s.sendError(conn, "", protocol.ErrorCodeSessionRequired, "idea_id is required")
		return
	}

	session, err := s.registry.Get(msg.IdeaID)
	if err != nil {
		s.sendError(conn, msg.IdeaID, protocol.ErrorCodeSessionUnknown, "no live session for idea")
		return
	}

	s.hub.BindIdea(conn, msg.IdeaID)

	snap := session.Snapshot()
	s.sendJSON(conn, protocol.HelloAckMessage{
		BaseMessage: protocol.BaseMessage{
			Type:   protocol.TypeHelloAck,
			Ts:     time.Now().UnixMilli(),
			IdeaID: msg.IdeaID,
		},
		Phase:         string(snap.Phase),
		TimeRemaining: snap.TimeRemaining,
	})
}

// handleContext accepts supplements, reactions, and predictions for the
// connection's bound session.
func (s *Server) handleContext(conn *hub.Connection, data []byte) {
	var msg protocol.ContextMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid context message")
		return
	}

	ideaID := msg.IdeaID
	if ideaID == "" {
		ideaID = conn.IdeaID
	}
	if ideaID == "" {
		s.sendError(conn, "", protocol.ErrorCodeSessionRequired, "not bound to a session")
		return
	}

	session, err := s.registry.Get(ideaID)
	if err != nil {
		s.sendError(conn, ideaID, protocol.ErrorCodeSessionUnknown, "no live session for idea")
		return
	}

	switch msg.Kind {
	case "supplement":
		session.AddSupplement(msg.Content)
	case "reaction":
		session.AddReaction(msg.Content)
	case "prediction":
		session.AddPrediction(msg.PersonaID, msg.Amount)
	default:
		s.sendError(conn, ideaID, protocol.ErrorCodeInvalidMessage, "unknown context kind: "+msg.Kind)
	}
}

func (s *Server) sendError(conn *hub.Connection, ideaID, code, message string) {
	s.sendJSON(conn, protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{
			Type:   protocol.TypeError,
			Ts:     time.Now().UnixMilli(),
			IdeaID: ideaID,
		},
		Code:    code,
		Message: message,
	})
}

func (s *Server) sendJSON(conn *hub.Connection, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to marshal control message: %v", err)
		return
	}
	select {
	case conn.Send <- data:
	default:
		logger.Warn("observer %s queue full on control message", conn.ID)
	}
}
