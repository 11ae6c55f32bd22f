package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/construdocs/construdocs/analytics"
	analyticsmongo "github.com/construdocs/construdocs/analytics/store/mongo"
	analyticspg "github.com/construdocs/construdocs/analytics/store/pg"
	"github.com/construdocs/construdocs/chunking"
	"github.com/construdocs/construdocs/config"
	openaiembed "github.com/construdocs/construdocs/contrib/embedder/openai"
	"github.com/construdocs/construdocs/contrib/llm/claude"
	"github.com/construdocs/construdocs/contrib/llm/gemini"
	openaillm "github.com/construdocs/construdocs/contrib/llm/openai"
	"github.com/construdocs/construdocs/contrib/tokenizer/tiktoken"
	"github.com/construdocs/construdocs/embedder"
	"github.com/construdocs/construdocs/llm"
	"github.com/construdocs/construdocs/pkg/errors"
	"github.com/construdocs/construdocs/pkg/logging"
	"github.com/construdocs/construdocs/rag"
	"github.com/construdocs/construdocs/search"
	"github.com/construdocs/construdocs/session"
	"github.com/construdocs/construdocs/store"
	"github.com/construdocs/construdocs/upload"

	"github.com/redis/go-redis/v9"
)

var log = logging.WithComponent("cli")

// app holds the wired service components plus their teardown hooks.
type app struct {
	cfg          *config.Config
	store        *store.Store
	retriever    *search.Retriever
	orchestrator *rag.Orchestrator
	uploader     *upload.Indexer
	sink         analytics.Sink
	cleanups     []func()
}

func (a *app) close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
}

// buildApp wires the full service from configuration. Optional backends
// (Redis, MongoDB, the LLM) degrade to local or no-op substitutes so the
// service still starts without them.
func buildApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	a := &app{cfg: cfg}

	st, err := store.Open(store.Config{
		URL:          cfg.StoreURL,
		Dimension:    cfg.EmbeddingDim,
		Probes:       cfg.ANNProbes,
		VectorWeight: cfg.VectorWeight,
		TextWeight:   cfg.TextWeight,
	})
	if err != nil {
		return nil, err
	}
	a.store = st
	a.cleanups = append(a.cleanups, func() { st.Close() })
	if err := st.EnsureSchema(ctx); err != nil {
		a.close()
		return nil, err
	}

	embedder.SetFactory(func() (embedder.Embedder, error) {
		return openaiembed.New(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL,
			cfg.EmbeddingModel, cfg.EmbeddingDim), nil
	})
	emb, err := embedder.Shared()
	if err != nil {
		a.close()
		return nil, err
	}

	var rdb *redis.Client
	var history rag.History = session.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		redisStore := session.NewRedisStore(session.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		a.cleanups = append(a.cleanups, func() { redisStore.Close() })
		history = redisStore
	}

	a.retriever = search.New(st, emb, cfg.EmbeddingModel,
		search.WithCache(search.NewEmbeddingCache(512, rdb, time.Hour)))

	client, err := buildLLM(ctx, cfg, a)
	if err != nil {
		a.close()
		return nil, err
	}

	ragOpts := []rag.Option{rag.WithHistory(history)}
	if counter, err := tiktoken.New("cl100k_base"); err != nil {
		log.Warn("tokenizer unavailable, context budgeting disabled", "error", err)
	} else {
		ragOpts = append(ragOpts, rag.WithTokenCounter(counter))
	}
	a.orchestrator = rag.New(a.retriever, client, ragOpts...)

	a.uploader = upload.New(st, emb, upload.WithChunker(
		chunking.New(chunking.WithChunkSize(cfg.ChunkSize), chunking.WithOverlap(cfg.ChunkOverlap))))

	a.sink = buildAnalytics(ctx, cfg, a)
	return a, nil
}

// buildLLM selects the provider. A missing API key yields a nil-safe client
// that always errors, letting the extractive fallback serve answers.
func buildLLM(ctx context.Context, cfg *config.Config, a *app) (llm.Client, error) {
	if cfg.LLMAPIKey == "" {
		log.Warn("no llm api key configured, answers use the extractive fallback")
		return unavailableLLM{}, nil
	}
	switch cfg.LLMProvider {
	case "claude":
		return claude.New(claude.Config{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
		}), nil
	case "gemini":
		p, err := gemini.New(ctx, gemini.Config{APIKey: cfg.LLMAPIKey, Model: cfg.LLMModel})
		if err != nil {
			return nil, err
		}
		a.cleanups = append(a.cleanups, func() { p.Close() })
		return p, nil
	default:
		return openaillm.New(openaillm.Config{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
		}), nil
	}
}

func buildAnalytics(ctx context.Context, cfg *config.Config, a *app) analytics.Sink {
	pgSink := analyticspg.New(a.store.DB())
	if err := pgSink.EnsureSchema(ctx); err != nil {
		log.Warn("analytics schema unavailable", "error", err)
		return analytics.Noop{}
	}
	if cfg.MongoURI == "" {
		return pgSink
	}
	mongoSink, err := analyticsmongo.New(ctx, analyticsmongo.Config{URI: cfg.MongoURI})
	if err != nil {
		log.Warn("mongodb analytics unavailable", "error", err)
		return pgSink
	}
	a.cleanups = append(a.cleanups, func() { mongoSink.Close(context.Background()) })
	return analytics.Multi{pgSink, mongoSink}
}

// unavailableLLM satisfies llm.Client when no provider is configured.
type unavailableLLM struct{}

func (unavailableLLM) Generate(context.Context, []*llm.Message, llm.Options) (*llm.Message, error) {
	return nil, fmt.Errorf("no llm provider configured: %w", errors.ErrLLMUnavailable)
}
