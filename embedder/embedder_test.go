package embedder

import (
	"context"
	"math"
	"testing"
)

type stubEmbedder struct {
	dim  int
	vecs map[string][]float32
}

func (s *stubEmbedder) Dimension() int { return s.dim }

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := append([]float32(nil), s.vecs[text]...)
	return v, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = s.Embed(ctx, t)
	}
	return out, nil
}

func norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestNormalizedRescales(t *testing.T) {
	stub := &stubEmbedder{dim: 3, vecs: map[string][]float32{
		"a": {3, 4, 0},
		"b": {0, 0, 10},
	}}
	e := Normalized(stub)

	vec, err := e.Embed(context.Background(), "a")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got := norm(vec); math.Abs(got-1) > 1e-6 {
		t.Errorf("norm = %f, want 1", got)
	}
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("direction changed: %v", vec)
	}

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	for i, v := range vecs {
		if got := norm(v); math.Abs(got-1) > 1e-6 {
			t.Errorf("batch vector %d norm = %f", i, got)
		}
	}
}

func TestNormalizedLeavesZeroVector(t *testing.T) {
	stub := &stubEmbedder{dim: 2, vecs: map[string][]float32{"z": {0, 0}}}
	vec, err := Normalized(stub).Embed(context.Background(), "z")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vec[0] != 0 || vec[1] != 0 {
		t.Errorf("zero vector changed: %v", vec)
	}
}

func TestNormalizedIdempotentWrap(t *testing.T) {
	stub := &stubEmbedder{dim: 2}
	once := Normalized(stub)
	if Normalized(once) != once {
		t.Error("double wrap should return the same embedder")
	}
}

func TestSharedUsesFactory(t *testing.T) {
	stub := &stubEmbedder{dim: 2, vecs: map[string][]float32{"q": {2, 0}}}
	calls := 0
	SetFactory(func() (Embedder, error) {
		calls++
		return stub, nil
	})
	t.Cleanup(func() { SetFactory(nil) })

	a, err := Shared()
	if err != nil {
		t.Fatalf("Shared: %v", err)
	}
	b, _ := Shared()
	if a != b {
		t.Error("Shared not memoized")
	}
	if calls != 1 {
		t.Errorf("factory called %d times", calls)
	}
	vec, _ := a.Embed(context.Background(), "q")
	if math.Abs(norm(vec)-1) > 1e-6 {
		t.Errorf("shared embedder not normalized: %v", vec)
	}
}

func TestSharedWithoutFactory(t *testing.T) {
	SetFactory(nil)
	if _, err := Shared(); err == nil {
		t.Fatal("expected error without factory")
	}
}
