// Package ingest drives the batch indexing pipeline: dedupe, normalize,
// chunk, embed, persist.
package ingest

import (
	"context"
	"fmt"

	"github.com/construdocs/construdocs/chunking"
	"github.com/construdocs/construdocs/document"
	"github.com/construdocs/construdocs/embedder"
	"github.com/construdocs/construdocs/normalize"
	"github.com/construdocs/construdocs/pkg/logging"
	"github.com/construdocs/construdocs/pkg/telemetry"
)

// Writer is the store surface the pipeline writes through.
type Writer interface {
	UpsertDocuments(ctx context.Context, docs []document.Document) error
	InsertChunks(ctx context.Context, chunks []document.Chunk) error
}

// Stats summarizes one pipeline run.
type Stats struct {
	Documents int
	Chunks    int
	Skipped   int
	// LexicalOnly counts chunks stored without an embedding because the
	// encoder failed for their batch. They remain reachable through lexical
	// search and pick up vectors on re-ingest.
	LexicalOnly int
}

// Pipeline indexes batches of raw records.
type Pipeline struct {
	writer     Writer
	normalizer *normalize.Normalizer
	chunker    *chunking.Chunker
	embedder   embedder.Embedder
	batchSize  int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBatchSize sets how many chunk texts go to the embedder per call.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithChunker overrides the default chunker.
func WithChunker(c *chunking.Chunker) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.chunker = c
		}
	}
}

// New creates a Pipeline.
func New(writer Writer, normalizer *normalize.Normalizer, emb embedder.Embedder, opts ...Option) *Pipeline {
	p := &Pipeline{
		writer:     writer,
		normalizer: normalizer,
		chunker:    chunking.New(),
		embedder:   emb,
		batchSize:  64,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var log = logging.WithComponent("ingest")

// Run indexes one batch of raw records. Duplicate document ids within the
// batch resolve last-wins before any write. Records that fail normalization
// are skipped and counted, never fatal. Document metadata is committed before
// chunks, so a failure mid-batch leaves documents queryable by id while the
// chunk insert stays retryable thanks to deterministic chunk ids.
func (p *Pipeline) Run(ctx context.Context, records []*document.RawRecord) (Stats, error) {
	ctx, span := telemetry.Tracer("ingest").Start(ctx, "pipeline.Run")
	var err error
	defer func() { telemetry.End(span, err) }()

	var stats Stats
	deduped := dedupe(records)

	docs := make([]document.Document, 0, len(deduped))
	for _, rec := range deduped {
		doc, nerr := p.normalizer.Normalize(rec)
		if nerr != nil {
			stats.Skipped++
			log.Warn("skipping record", "error", nerr)
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return stats, nil
	}

	if err = p.writer.UpsertDocuments(ctx, docs); err != nil {
		return stats, fmt.Errorf("upsert documents: %w", err)
	}
	stats.Documents = len(docs)

	var chunks []document.Chunk
	for _, doc := range docs {
		chunks = append(chunks, p.chunker.Chunks(doc)...)
	}
	if len(chunks) == 0 {
		return stats, nil
	}

	if err = p.indexChunks(ctx, chunks, &stats); err != nil {
		return stats, err
	}

	log.Info("batch indexed",
		"documents", stats.Documents, "chunks", stats.Chunks,
		"skipped", stats.Skipped, "lexical_only", stats.LexicalOnly)
	return stats, nil
}

// indexChunks embeds and persists chunks batch by batch, one encoder call per
// batch. An encoder failure does not stop the run: that batch is written
// without embeddings and counted, and the next batch proceeds. Context
// cancellation still aborts.
func (p *Pipeline) indexChunks(ctx context.Context, chunks []document.Chunk, stats *Stats) error {
	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		if err := p.embedBatch(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("embedder failed, storing batch for lexical search only",
				"error", err, "chunks", len(batch))
			stats.LexicalOnly += len(batch)
		}
		if err := p.writer.InsertChunks(ctx, batch); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		stats.Chunks += len(batch)
	}
	return nil
}

func (p *Pipeline) embedBatch(ctx context.Context, batch []document.Chunk) error {
	texts := make([]string, 0, len(batch))
	for _, c := range batch {
		texts = append(texts, c.Content)
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(vecs) != len(texts) {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	for i := range vecs {
		batch[i].Embedding = vecs[i]
	}
	return nil
}

// dedupe keeps the last occurrence of each document id, preserving the order
// in which ids first appeared.
func dedupe(records []*document.RawRecord) []*document.RawRecord {
	last := make(map[string]*document.RawRecord, len(records))
	var order []string
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if _, seen := last[rec.DocumentID]; !seen {
			order = append(order, rec.DocumentID)
		}
		last[rec.DocumentID] = rec
	}
	out := make([]*document.RawRecord, 0, len(order))
	for _, id := range order {
		out = append(out, last[id])
	}
	return out
}
