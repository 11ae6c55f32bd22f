// Package openai implements embedder.Embedder against any OpenAI-compatible
// embeddings endpoint, including self-hosted TEI/ollama servers exposing the
// same wire format.
package openai

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/construdocs/construdocs/embedder"
	"github.com/construdocs/construdocs/pkg/errors"
)

// Encoder calls an OpenAI-compatible embeddings API.
type Encoder struct {
	client    openaisdk.Client
	model     openaisdk.EmbeddingModel
	dimension int
}

// New creates an Encoder. baseURL may point at a self-hosted endpoint; empty
// means the public API.
func New(apiKey, baseURL string, model string, dimension int) embedder.Embedder {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Encoder{
		client:    openaisdk.NewClient(opts...),
		model:     openaisdk.EmbeddingModel(model),
		dimension: dimension,
	}
}

// Dimension returns the vector width every call produces.
func (e *Encoder) Dimension() int { return e.dimension }

// Embed encodes a single text.
func (e *Encoder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch encodes texts in one request, preserving input order.
func (e *Encoder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Model: e.model,
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrEmbedderUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d",
			errors.ErrEmbedderUnavailable, len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		i := int(item.Index)
		if i < 0 || i >= len(out) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", errors.ErrInternal, i)
		}
		out[i] = truncateVector(item.Embedding, e.dimension)
	}
	return out, nil
}

// truncateVector narrows to float32 and pads or trims to the configured width.
func truncateVector(input []float64, width int) []float32 {
	vec := make([]float32, width)
	for i := 0; i < len(input) && i < width; i++ {
		vec[i] = float32(input[i])
	}
	return vec
}
