package search

import (
	"container/list"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmbeddingCache memoizes query embeddings. Repeated questions are common in
// chat sessions; skipping the embedding round trip is the cheapest latency win
// in the pipeline. The in-process LRU always runs; a Redis layer behind it is
// optional and shared across replicas.
type EmbeddingCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	max     int

	rdb *redis.Client
	ttl time.Duration
}

type cacheEntry struct {
	key string
	vec []float32
}

// NewEmbeddingCache creates a cache holding up to max in-process entries.
// rdb may be nil.
func NewEmbeddingCache(max int, rdb *redis.Client, ttl time.Duration) *EmbeddingCache {
	if max <= 0 {
		max = 512
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &EmbeddingCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		max:     max,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// Key derives the cache key from the model and the cleaned query text.
func Key(model, query string) string {
	sum := sha1.Sum([]byte(model + "\x00" + query))
	return "construdocs:emb:" + hex.EncodeToString(sum[:])
}

// Get returns the cached vector for key, or nil.
func (c *EmbeddingCache) Get(ctx context.Context, key string) []float32 {
	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		vec := el.Value.(*cacheEntry).vec
		c.mu.Unlock()
		return append([]float32(nil), vec...)
	}
	c.mu.Unlock()

	if c.rdb == nil {
		return nil
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	vec := decodeVector(raw)
	if vec != nil {
		c.putLocal(key, vec)
	}
	return vec
}

// Put stores the vector under key in both layers.
func (c *EmbeddingCache) Put(ctx context.Context, key string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	c.putLocal(key, vec)
	if c.rdb != nil {
		// best effort; a missed write only costs one future embed call
		c.rdb.Set(ctx, key, encodeVector(vec), c.ttl)
	}
}

func (c *EmbeddingCache) putLocal(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*cacheEntry).vec = append([]float32(nil), vec...)
		return
	}
	el := c.order.PushFront(&cacheEntry{key: key, vec: append([]float32(nil), vec...)})
	c.entries[key] = el
	for len(c.entries) > c.max {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func encodeVector(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func decodeVector(raw []byte) []float32 {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}
