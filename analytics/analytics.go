// Package analytics records user feedback and search usage. Sinks are
// pluggable; writes are advisory and must never fail a user request.
package analytics

import (
	"context"
	"time"
)

// Feedback is one user rating of a chat answer.
type Feedback struct {
	SessionID string    `json:"session_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchEvent records one retrieval request for usage analysis.
type SearchEvent struct {
	Query       string    `json:"query"`
	ProjectID   string    `json:"project_id,omitempty"`
	ResultCount int       `json:"result_count"`
	Tier        string    `json:"tier"`
	CreatedAt   time.Time `json:"created_at"`
}

// Sink persists analytics records.
type Sink interface {
	RecordFeedback(ctx context.Context, fb Feedback) error
	RecordSearch(ctx context.Context, ev SearchEvent) error
}

// Noop discards all records; the default when no sink is configured.
type Noop struct{}

func (Noop) RecordFeedback(context.Context, Feedback) error  { return nil }
func (Noop) RecordSearch(context.Context, SearchEvent) error { return nil }

// Multi fans records out to several sinks, returning the first error.
type Multi []Sink

func (m Multi) RecordFeedback(ctx context.Context, fb Feedback) error {
	for _, s := range m {
		if err := s.RecordFeedback(ctx, fb); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) RecordSearch(ctx context.Context, ev SearchEvent) error {
	for _, s := range m {
		if err := s.RecordSearch(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
