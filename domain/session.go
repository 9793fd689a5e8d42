package domain

import "time"

// Settlement is the final summary record produced when a session reaches the
// Terminated phase. It is handed to the storage layer for persistence; the
// session itself keeps no durable state.
type Settlement struct {
	SettlementID     string    `json:"settlement_id"`
	IdeaID           string    `json:"idea_id"`
	HighestBid       float64   `json:"highest_bid"`
	WinningPersona   string    `json:"winning_persona"`
	TotalBidCount    int       `json:"total_bid_count"`
	ElapsedSeconds   int       `json:"elapsed_seconds"`
	ParticipantCount int       `json:"participant_count"`
	CompletedAt      time.Time `json:"completed_at"`
}

// SessionSnapshot is a read-only copy of a session's observable state.
type SessionSnapshot struct {
	IdeaID          string             `json:"idea_id"`
	Phase           Phase              `json:"phase"`
	TimeRemaining   int                `json:"time_remaining"`
	Participants    []string           `json:"participants"`
	CurrentBids     map[string]float64 `json:"current_bids"`
	HighestBid      float64            `json:"highest_bid"`
	AccumulatedCost float64            `json:"accumulated_cost"`
	StartedAt       time.Time          `json:"started_at"`
}

// Supplement is a user-supplied piece of supporting material for an idea.
// The strategy engine scores supplements when pricing bids.
type Supplement struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Reaction is a lightweight audience signal (emoji-style) on a session.
type Reaction struct {
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// Prediction is a user's guess at the winning persona and final price.
type Prediction struct {
	PersonaID string    `json:"persona_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionContext is the user-facing context record the bid engine consumes.
type SessionContext struct {
	IdeaID      string       `json:"idea_id"`
	IdeaText    string       `json:"idea_text"`
	Supplements []Supplement `json:"supplements,omitempty"`
	Reactions   []Reaction   `json:"reactions,omitempty"`
	Predictions []Prediction `json:"predictions,omitempty"`
}
