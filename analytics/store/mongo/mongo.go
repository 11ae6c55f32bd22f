// Package mongo ships analytics to a MongoDB collection, useful when usage
// data lives in a separate reporting cluster.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/construdocs/construdocs/analytics"
)

// Config holds MongoDB connection configuration.
type Config struct {
	URI      string
	Database string
}

// Store implements analytics.Sink on MongoDB.
type Store struct {
	client   *mongo.Client
	feedback *mongo.Collection
	searches *mongo.Collection
}

// New connects and pings the cluster.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.Database == "" {
		config.Database = "construdocs"
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	db := client.Database(config.Database)
	return &Store{
		client:   client,
		feedback: db.Collection("chat_feedback"),
		searches: db.Collection("search_events"),
	}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// RecordFeedback implements analytics.Sink.
func (s *Store) RecordFeedback(ctx context.Context, fb analytics.Feedback) error {
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}
	if _, err := s.feedback.InsertOne(ctx, fb); err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	return nil
}

// RecordSearch implements analytics.Sink.
func (s *Store) RecordSearch(ctx context.Context, ev analytics.SearchEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if _, err := s.searches.InsertOne(ctx, ev); err != nil {
		return fmt.Errorf("record search: %w", err)
	}
	return nil
}
