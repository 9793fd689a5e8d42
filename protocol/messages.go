// Package protocol defines the WebSocket message protocol between observer
// clients and the server. Outbound session events are delivered as JSON
// arrays of event envelopes (see the domain package); the messages here cover
// the control handshake only.
package protocol

// Message types from client to server
const (
	TypeHello   = "hello"
	TypeContext = "context"
)

// Message types from server to client
const (
	TypeHelloAck = "hello_ack"
	TypeError    = "error"
)

// BaseMessage contains common fields for all control messages.
type BaseMessage struct {
	Type   string `json:"type"`
	Ts     int64  `json:"ts"`
	IdeaID string `json:"idea_id,omitempty"`
}

// HelloMessage binds a connection to an idea's session stream.
type HelloMessage struct {
	BaseMessage
	ObserverMeta map[string]string `json:"observer_meta,omitempty"`
}

// HelloAckMessage confirms the binding and reports the current phase.
type HelloAckMessage struct {
	BaseMessage
	Phase         string `json:"phase"`
	TimeRemaining int    `json:"time_remaining"`
}

// ContextMessage submits user context (supplement, reaction, or prediction)
// over the socket instead of the HTTP API.
type ContextMessage struct {
	BaseMessage
	Kind      string  `json:"kind"`
	Content   string  `json:"content,omitempty"`
	PersonaID string  `json:"persona_id,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
}

// ErrorMessage is sent when a control message cannot be handled.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage  = "invalid_message"
	ErrorCodeSessionUnknown  = "session_unknown"
	ErrorCodeSessionRequired = "session_required"
)
