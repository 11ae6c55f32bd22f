// Package pg persists analytics in the same PostgreSQL database as the
// document corpus.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/construdocs/construdocs/analytics"
	"github.com/construdocs/construdocs/pkg/errors"
)

// Store implements analytics.Sink on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New wraps an existing database handle, typically shared with the document
// store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the analytics tables if missing. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_feedback (
			id         BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			rating     INTEGER NOT NULL,
			comment    TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS search_events (
			id           BIGSERIAL PRIMARY KEY,
			query        TEXT NOT NULL,
			project_id   TEXT,
			result_count INTEGER NOT NULL,
			tier         TEXT,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS chat_feedback_session_idx ON chat_feedback (session_id)`,
		`CREATE INDEX IF NOT EXISTS search_events_created_idx ON search_events (created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure analytics schema: %w: %v", errors.ErrStoreWrite, err)
		}
	}
	return nil
}

// RecordFeedback implements analytics.Sink.
func (s *Store) RecordFeedback(ctx context.Context, fb analytics.Feedback) error {
	created := fb.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_feedback (session_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4)`,
		fb.SessionID, fb.Rating, fb.Comment, created)
	if err != nil {
		return fmt.Errorf("record feedback: %w: %v", errors.ErrStoreWrite, err)
	}
	return nil
}

// RecordSearch implements analytics.Sink.
func (s *Store) RecordSearch(ctx context.Context, ev analytics.SearchEvent) error {
	created := ev.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_events (query, project_id, result_count, tier, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.Query, ev.ProjectID, ev.ResultCount, ev.Tier, created)
	if err != nil {
		return fmt.Errorf("record search: %w: %v", errors.ErrStoreWrite, err)
	}
	return nil
}
