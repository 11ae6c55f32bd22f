// Package embedder defines the embedding contract used by ingestion and
// retrieval, plus the normalization wrapper every backend is run through.
package embedder

import (
	"context"
	"math"
	"sync"

	"github.com/construdocs/construdocs/pkg/errors"
)

// Embedder converts text to dense vectors. Implementations must return vectors
// of exactly Dimension() entries; the service stores and compares raw vectors,
// so all backends are wrapped with Normalized to guarantee unit length.
type Embedder interface {
	// Embed converts a single text, used for queries.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch converts multiple texts in one call, used for ingest batches.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the vector width the backend produces.
	Dimension() int
}

// normalized wraps an Embedder and rescales every vector to unit L2 norm, so
// cosine similarity and inner product agree regardless of backend behavior.
type normalized struct {
	inner Embedder
}

// Normalized wraps e so that all returned vectors have unit L2 norm.
func Normalized(e Embedder) Embedder {
	if _, ok := e.(*normalized); ok {
		return e
	}
	return &normalized{inner: e}
}

func (n *normalized) Dimension() int { return n.inner.Dimension() }

func (n *normalized) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := n.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	unitNorm(vec)
	return vec, nil
}

func (n *normalized) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := n.inner.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for _, vec := range vecs {
		unitNorm(vec)
	}
	return vecs, nil
}

// unitNorm rescales vec in place. Zero vectors are left untouched.
func unitNorm(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	if math.Abs(norm-1) < 1e-6 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// lazy holds the process-wide embedder handle. The backend is dialed on first
// use, not at startup, so the service can come up before the model endpoint.
var (
	mu      sync.Mutex
	shared  Embedder
	factory func() (Embedder, error)
)

// SetFactory installs the constructor used to build the shared embedder on
// first use.
func SetFactory(f func() (Embedder, error)) {
	mu.Lock()
	defer mu.Unlock()
	factory = f
	shared = nil
}

// Shared returns the process-wide embedder, constructing it on first call.
func Shared() (Embedder, error) {
	mu.Lock()
	defer mu.Unlock()
	if shared != nil {
		return shared, nil
	}
	if factory == nil {
		return nil, errors.Errorf("no embedder factory installed: %w", errors.ErrEmbedderUnavailable)
	}
	e, err := factory()
	if err != nil {
		return nil, errors.Errorf("init embedder: %w", err)
	}
	shared = Normalized(e)
	return shared, nil
}
