// Package store persists settlements and archived session message logs.
package store

import (
	"context"
	"encoding/json"

	"github.com/ideaforge/bidtheater/domain"
)

// ArchivedEvent is one row of an archived session message log. The payload
// holds the full event as it was broadcast.
type ArchivedEvent struct {
	IdeaID    string           `json:"idea_id"`
	MessageID string           `json:"message_id"`
	Ts        int64            `json:"ts"`
	Type      domain.EventType `json:"type"`
	Payload   json.RawMessage  `json:"payload"`
}

// Store is the persistence interface for completed sessions.
type Store interface {
	SaveSettlement(ctx context.Context, settlement *domain.Settlement) error
	GetSettlement(ctx context.Context, ideaID string) (*domain.Settlement, error)
	ArchiveEvents(ctx context.Context, ideaID string, events []domain.Event) error
	GetArchivedEvents(ctx context.Context, ideaID string, limit int) ([]ArchivedEvent, error)
	Close() error
}
