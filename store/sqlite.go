package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ideaforge/bidtheater/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS settlements (
			settlement_id TEXT PRIMARY KEY,
			idea_id TEXT NOT NULL UNIQUE,
			highest_bid REAL NOT NULL,
			winning_persona TEXT NOT NULL,
			total_bid_count INTEGER NOT NULL,
			elapsed_seconds INTEGER NOT NULL,
			participant_count INTEGER NOT NULL,
			completed_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS archived_events (
			message_id TEXT PRIMARY KEY,
			idea_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_archived_events_idea ON archived_events(idea_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSettlement persists the final summary of a completed session. A second
// settlement for the same idea replaces the first.
func (s *SQLiteStore) SaveSettlement(ctx context.Context, settlement *domain.Settlement) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settlements
		 (settlement_id, idea_id, highest_bid, winning_persona, total_bid_count, elapsed_seconds, participant_count, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		settlement.SettlementID, settlement.IdeaID, settlement.HighestBid,
		settlement.WinningPersona, settlement.TotalBidCount, settlement.ElapsedSeconds,
		settlement.ParticipantCount, settlement.CompletedAt)
	return err
}

// GetSettlement retrieves the settlement for an idea, or nil if none exists.
func (s *SQLiteStore) GetSettlement(ctx context.Context, ideaID string) (*domain.Settlement, error) {
	var settlement domain.Settlement
	err := s.db.QueryRowContext(ctx,
		`SELECT settlement_id, idea_id, highest_bid, winning_persona, total_bid_count, elapsed_seconds, participant_count, completed_at
		 FROM settlements WHERE idea_id = ?`,
		ideaID).Scan(&settlement.SettlementID, &settlement.IdeaID, &settlement.HighestBid,
		&settlement.WinningPersona, &settlement.TotalBidCount, &settlement.ElapsedSeconds,
		&settlement.ParticipantCount, &settlement.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settlement, nil
}

// ArchiveEvents stores the full message log of a completed session. Events
// are written in one transaction so a partial archive never persists.
func (s *SQLiteStore) ArchiveEvents(ctx context.Context, ideaID string, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO archived_events (message_id, idea_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", ev.Meta().MessageID, err)
		}
		meta := ev.Meta()
		if _, err := stmt.ExecContext(ctx, meta.MessageID, ideaID, meta.Ts, ev.Kind(), string(payload)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetArchivedEvents retrieves the archived message log for an idea in
// broadcast order. limit <= 0 returns the whole log.
func (s *SQLiteStore) GetArchivedEvents(ctx context.Context, ideaID string, limit int) ([]ArchivedEvent, error) {
	query := `SELECT message_id, idea_id, ts, type, payload FROM archived_events WHERE idea_id = ? ORDER BY ts ASC, rowid ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, ideaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ArchivedEvent
	for rows.Next() {
		var ev ArchivedEvent
		var payload sql.NullString
		if err := rows.Scan(&ev.MessageID, &ev.IdeaID, &ev.Ts, &ev.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			ev.Payload = json.RawMessage(payload.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
