// Package llm defines the chat-completion contract the answer pipeline uses.
// Backends live under contrib/llm.
package llm

import (
	"context"
	"time"
)

// Role represents the role of the message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single message in a conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// NewMessage creates a message with the given role and content.
func NewMessage(role Role, content string) *Message {
	return &Message{Role: role, Content: content, CreatedAt: time.Now()}
}

// Options are per-call sampling parameters. Zero values mean backend defaults.
type Options struct {
	Temperature float64
	MaxTokens   int64
	TopP        float64
}

// Client produces a completion for a conversation. Implementations return
// errors.RateLimitError when the backend throttles, so callers can back off
// with the backend's hint.
type Client interface {
	Generate(ctx context.Context, messages []*Message, opts Options) (*Message, error)
}
