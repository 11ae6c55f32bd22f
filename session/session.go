// Package session stores per-conversation chat history.
package session

import (
	"context"
	"sync"

	"github.com/construdocs/construdocs/llm"
)

// maxMessages caps how many turns a session retains.
const maxMessages = 100

// Store is the history surface the answer pipeline uses. Implementations keep
// messages in insertion order.
type Store interface {
	Append(ctx context.Context, sessionID string, msgs ...*llm.Message) error
	Recent(ctx context.Context, sessionID string, n int) ([]*llm.Message, error)
}

// MemoryStore keeps sessions in process memory. Suitable for single-replica
// deployments and tests; production uses the Redis store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]*llm.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]*llm.Message)}
}

// Append adds messages to the session, trimming the oldest past the cap.
func (s *MemoryStore) Append(_ context.Context, sessionID string, msgs ...*llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := append(s.sessions[sessionID], msgs...)
	if len(all) > maxMessages {
		all = all[len(all)-maxMessages:]
	}
	s.sessions[sessionID] = all
	return nil
}

// Recent returns the last n messages of the session, oldest first.
func (s *MemoryStore) Recent(_ context.Context, sessionID string, n int) ([]*llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.sessions[sessionID]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]*llm.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}
