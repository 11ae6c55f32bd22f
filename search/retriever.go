// Package search turns a user query into scored document results: query
// cleanup, embedding (with cache), the adaptive threshold ladder over the
// hybrid store query, and the lexical fallback when the embedder is down.
package search

import (
	"context"

	"github.com/construdocs/construdocs/document"
	"github.com/construdocs/construdocs/embedder"
	"github.com/construdocs/construdocs/pkg/logging"
	"github.com/construdocs/construdocs/pkg/telemetry"
	"github.com/construdocs/construdocs/preprocess"
	"github.com/construdocs/construdocs/store"
)

// Searcher is the store-side retrieval surface the retriever drives.
type Searcher interface {
	HybridSearch(ctx context.Context, p store.SearchParams) ([]document.SearchResult, error)
	LexicalSearch(ctx context.Context, query, projectID string, limit int) ([]document.SearchResult, error)
}

// Retriever executes retrieval passes against the store.
type Retriever struct {
	searcher Searcher
	embedder embedder.Embedder
	cache    *EmbeddingCache
	model    string
	tiers    []Tier
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTiers overrides the adaptive threshold ladder.
func WithTiers(tiers []Tier) Option {
	return func(r *Retriever) {
		if len(tiers) > 0 {
			r.tiers = tiers
		}
	}
}

// WithCache installs a query-embedding cache.
func WithCache(cache *EmbeddingCache) Option {
	return func(r *Retriever) { r.cache = cache }
}

// New creates a Retriever. model names the embedding model and scopes cache
// keys, so a model change never serves stale vectors.
func New(searcher Searcher, emb embedder.Embedder, model string, opts ...Option) *Retriever {
	r := &Retriever{
		searcher: searcher,
		embedder: emb,
		model:    model,
		tiers:    DefaultTiers,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Query is one retrieval request. Probes widens the ANN scan for this request
// when positive; zero keeps the store's configured default.
type Query struct {
	Text      string
	ProjectID string
	Limit     int
	Probes    int
}

// Response carries the results plus which tier satisfied the request.
type Response struct {
	Results []document.SearchResult
	Tier    string
	// Degraded is set when the embedder failed and the lexical fallback served
	// the request.
	Degraded bool
}

var log = logging.WithComponent("search")

// Retrieve walks the threshold ladder from strict to unfiltered and returns
// the first tier that yields enough documents. If the embedder is unavailable
// the text-only fallback serves the request, flagged as degraded.
func (r *Retriever) Retrieve(ctx context.Context, q Query) (*Response, error) {
	ctx, span := telemetry.Tracer("search").Start(ctx, "retriever.Retrieve")
	var err error
	defer func() { telemetry.End(span, err) }()

	if q.Limit <= 0 {
		q.Limit = 5
	}
	cleaned := preprocess.PrepareQuery(q.Text)

	vec, embErr := r.embedQuery(ctx, cleaned)
	if embErr != nil {
		log.Warn("embedder unavailable, using lexical fallback", "error", embErr)
		results, lexErr := r.searcher.LexicalSearch(ctx, cleaned, q.ProjectID, q.Limit)
		if lexErr != nil {
			err = lexErr
			return nil, err
		}
		return &Response{Results: results, Tier: "lexical", Degraded: true}, nil
	}

	var bestScore float64
	for _, tier := range r.tiers {
		var results []document.SearchResult
		results, err = r.searcher.HybridSearch(ctx, store.SearchParams{
			Query:     cleaned,
			Embedding: vec,
			ProjectID: q.ProjectID,
			Limit:     q.Limit,
			Probes:    q.Probes,
			Threshold: tier.Threshold,
		})
		if err != nil {
			return nil, err
		}
		if len(results) >= tier.MinResults && len(results) > 0 {
			log.Debug("tier satisfied", "tier", tier.Name, "results", len(results))
			return &Response{Results: results, Tier: tier.Name}, nil
		}
		if len(results) > 0 && bestScore < results[0].Score {
			bestScore = results[0].Score
		}
	}
	log.Warn("no tier produced results", "query", cleaned, "best_score", bestScore)
	return &Response{Tier: "unfiltered"}, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if r.cache != nil {
		if vec := r.cache.Get(ctx, Key(r.model, query)); vec != nil {
			return vec, nil
		}
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Put(ctx, Key(r.model, query), vec)
	}
	return vec, nil
}
