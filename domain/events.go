package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is the closed set of messages a session pushes to observers. Every
// variant embeds EventMeta, so delivery code can switch exhaustively on the
// concrete type while the wire format stays a flat JSON object.
type Event interface {
	Kind() EventType
	Meta() EventMeta
	// Source identifies the persona an event originates from, or "" for
	// session-level events. The broadcast buffer scopes its deduplication
	// window by source.
	Source() string
}

// EventMeta carries the envelope fields shared by all event kinds.
type EventMeta struct {
	Type      EventType `json:"type"`
	Ts        int64     `json:"ts"`
	MessageID string    `json:"message_id"`
}

func (m EventMeta) Kind() EventType { return m.Type }
func (m EventMeta) Meta() EventMeta { return m }
func (m EventMeta) Source() string  { return "" }

func newMeta(t EventType) EventMeta {
	return EventMeta{
		Type:      t,
		Ts:        time.Now().UnixMilli(),
		MessageID: "msg_" + uuid.New().String()[:8],
	}
}

// TimerUpdate is emitted once per tick.
type TimerUpdate struct {
	EventMeta
	Phase         Phase `json:"phase"`
	TimeRemaining int   `json:"time_remaining"`
}

// PhaseStarted is emitted when the session advances to a new phase.
type PhaseStarted struct {
	EventMeta
	Phase    Phase `json:"phase"`
	Duration int   `json:"duration"`
}

// PersonaSpeech is a dialogue-only utterance from one persona.
type PersonaSpeech struct {
	EventMeta
	PersonaID string `json:"persona_id"`
	Content   string `json:"content"`
	Emotion   string `json:"emotion"`
}

func (e PersonaSpeech) Source() string { return e.PersonaID }

// BidPlaced is emitted when a persona places or raises a bid. CurrentBids is
// a point-in-time copy; the session never shares its live map.
type BidPlaced struct {
	EventMeta
	PersonaID   string             `json:"persona_id"`
	Amount      float64            `json:"amount"`
	CurrentBids map[string]float64 `json:"current_bids"`
}

func (e BidPlaced) Source() string { return e.PersonaID }

// SessionCompleted carries the settlement of a terminated session.
type SessionCompleted struct {
	EventMeta
	HighestBid       float64 `json:"highest_bid"`
	WinningPersona   string  `json:"winning_persona"`
	TotalBidCount    int     `json:"total_bid_count"`
	ElapsedSeconds   int     `json:"elapsed_seconds"`
	ParticipantCount int     `json:"participant_count"`
}

// ErrorEvent reports a non-fatal session error to observers.
type ErrorEvent struct {
	EventMeta
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewTimerUpdate(phase Phase, remaining int) *TimerUpdate {
	return &TimerUpdate{EventMeta: newMeta(EventTypeTimerUpdate), Phase: phase, TimeRemaining: remaining}
}

func NewPhaseStarted(phase Phase, duration int) *PhaseStarted {
	return &PhaseStarted{EventMeta: newMeta(EventTypePhaseStarted), Phase: phase, Duration: duration}
}

func NewPersonaSpeech(personaID, content, emotion string) *PersonaSpeech {
	return &PersonaSpeech{EventMeta: newMeta(EventTypePersonaSpeech), PersonaID: personaID, Content: content, Emotion: emotion}
}

func NewBidPlaced(personaID string, amount float64, currentBids map[string]float64) *BidPlaced {
	return &BidPlaced{EventMeta: newMeta(EventTypeBidPlaced), PersonaID: personaID, Amount: amount, CurrentBids: currentBids}
}

func NewSessionCompleted(s Settlement) *SessionCompleted {
	return &SessionCompleted{
		EventMeta:        newMeta(EventTypeSessionCompleted),
		HighestBid:       s.HighestBid,
		WinningPersona:   s.WinningPersona,
		TotalBidCount:    s.TotalBidCount,
		ElapsedSeconds:   s.ElapsedSeconds,
		ParticipantCount: s.ParticipantCount,
	}
}

func NewErrorEvent(code, message string) *ErrorEvent {
	return &ErrorEvent{EventMeta: newMeta(EventTypeError), Code: code, Message: message}
}
