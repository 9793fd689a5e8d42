// Package domain defines the core domain models for the bidding theater.
package domain

import "strings"

// Phase represents one ordered stage of an auction session's lifecycle.
type Phase string

const (
	PhaseWarmup     Phase = "WARMUP"
	PhaseDiscussion Phase = "DISCUSSION"
	PhaseBidding    Phase = "BIDDING"
	PhasePrediction Phase = "PREDICTION"
	PhaseResult     Phase = "RESULT"
	PhaseTerminated Phase = "TERMINATED"
)

// TimedPhases lists the clock-driven phases in canonical order. Terminated is
// the exit state and carries no duration.
var TimedPhases = []Phase{
	PhaseWarmup,
	PhaseDiscussion,
	PhaseBidding,
	PhasePrediction,
	PhaseResult,
}

// Next returns the phase following p in canonical order. ok is false when p
// is the last timed phase (or not a timed phase at all), meaning the session
// must settle and terminate instead of advancing.
func (p Phase) Next() (next Phase, ok bool) {
	for i, tp := range TimedPhases {
		if tp == p {
			if i+1 < len(TimedPhases) {
				return TimedPhases[i+1], true
			}
			return PhaseTerminated, false
		}
	}
	return PhaseTerminated, false
}

// Index returns p's position in the canonical order, or -1 for Terminated and
// unknown phases. Used to assert forward-only transitions.
func (p Phase) Index() int {
	for i, tp := range TimedPhases {
		if tp == p {
			return i
		}
	}
	return -1
}

// Priority classifies how urgently a message must reach observers.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority parses a priority name, defaulting to PriorityHigh for
// unrecognized input so a bad config value never silently buffers
// critical traffic.
func ParsePriority(s string) Priority {
	switch strings.ToLower(s) {
	case "low":
		return PriorityLow
	case "normal":
		return PriorityNormal
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityHigh
	}
}

// EventType represents the type of an outbound event.
type EventType string

const (
	EventTypeTimerUpdate      EventType = "timer_update"
	EventTypePhaseStarted     EventType = "phase_started"
	EventTypePersonaSpeech    EventType = "persona_speech"
	EventTypeBidPlaced        EventType = "bid_placed"
	EventTypeSessionCompleted EventType = "session_completed"
	EventTypeError            EventType = "error"
)
