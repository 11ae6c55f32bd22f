package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/construdocs/construdocs/llm"
)

// RedisStore implements Store on Redis lists, one list per session, shared
// across API replicas.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis configuration for sessions.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisStore creates a Redis-based session store.
func NewRedisStore(config RedisConfig) *RedisStore {
	if config.Prefix == "" {
		config.Prefix = "construdocs:session:"
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return &RedisStore{client: client, prefix: config.Prefix, ttl: config.TTL}
}

// Ping verifies connectivity, used by the health endpoint.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisStore) Close() error { return s.client.Close() }

// Append pushes messages onto the session list, trims past the retention cap
// and refreshes the TTL.
func (s *RedisStore) Append(ctx context.Context, sessionID string, msgs ...*llm.Message) error {
	if sessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if len(msgs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(msgs))
	for _, msg := range msgs {
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		values = append(values, raw)
	}

	key := s.key(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, -int64(maxMessages), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append session %s: %w", sessionID, err)
	}
	return nil
}

// Recent returns the last n messages of the session, oldest first.
func (s *RedisStore) Recent(ctx context.Context, sessionID string, n int) ([]*llm.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, s.key(sessionID), -int64(n), -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	msgs := make([]*llm.Message, 0, len(raw))
	for _, item := range raw {
		var msg llm.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode session message: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	return msgs, nil
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}
