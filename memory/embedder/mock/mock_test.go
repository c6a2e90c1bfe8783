package mock_test

import (
	"context"
	"math"
	"testing"

	"github.com/engramlabs/engram-go-sdk/memory/embedder/mock"
)

// cosine of two unit vectors is their dot product.
func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	embedder := mock.New()

	first, err := embedder.Embed(ctx, "the same text")
	if err != nil {
		t.Fatalf("Failed to embed: %v", err)
	}
	second, err := embedder.Embed(ctx, "the same text")
	if err != nil {
		t.Fatalf("Failed to embed: %v", err)
	}

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("Expected identical embeddings, diverged at %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestMockEmbedder_UnitNorm(t *testing.T) {
	ctx := context.Background()
	embedder := mock.New()

	vec, err := embedder.Embed(ctx, "normalize me please")
	if err != nil {
		t.Fatalf("Failed to embed: %v", err)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-3 {
		t.Errorf("Expected unit norm, got %v", norm)
	}
}

func TestMockEmbedder_SharedTokensLandCloser(t *testing.T) {
	ctx := context.Background()
	embedder := mock.New()

	base, err := embedder.Embed(ctx, "the quick brown fox")
	if err != nil {
		t.Fatalf("Failed to embed: %v", err)
	}
	related, err := embedder.Embed(ctx, "a quick brown fox runs")
	if err != nil {
		t.Fatalf("Failed to embed: %v", err)
	}
	unrelated, err := embedder.Embed(ctx, "zebra xylophone quantum physics")
	if err != nil {
		t.Fatalf("Failed to embed: %v", err)
	}

	if cosine(base, related) <= cosine(base, unrelated) {
		t.Errorf("Expected token overlap to score closer: related %v, unrelated %v",
			cosine(base, related), cosine(base, unrelated))
	}
}

func TestMockEmbedder_NormalizesCaseAndPunctuation(t *testing.T) {
	ctx := context.Background()
	embedder := mock.New()

	clean, err := embedder.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("Failed to embed: %v", err)
	}
	noisy, err := embedder.Embed(ctx, "Hello, World!")
	if err != nil {
		t.Fatalf("Failed to embed: %v", err)
	}

	for i := range clean {
		if clean[i] != noisy[i] {
			t.Fatal("Expected case and punctuation to be normalized away")
		}
	}
}

func TestMockEmbedder_Dimensions(t *testing.T) {
	ctx := context.Background()

	embedder := mock.New()
	if embedder.Dimensions() != 384 {
		t.Errorf("Expected 384 dimensions, got %d", embedder.Dimensions())
	}
	vec, err := embedder.Embed(ctx, "size check")
	if err != nil {
		t.Fatalf("Failed to embed: %v", err)
	}
	if len(vec) != 384 {
		t.Errorf("Expected 384-length vector, got %d", len(vec))
	}

	small := mock.NewWithDimensions(16)
	if small.Dimensions() != 16 {
		t.Errorf("Expected 16 dimensions, got %d", small.Dimensions())
	}
	if fallback := mock.NewWithDimensions(0); fallback.Dimensions() != 384 {
		t.Errorf("Expected invalid size to fall back to 384, got %d", fallback.Dimensions())
	}
}

func TestMockEmbedder_EmptyText(t *testing.T) {
	ctx := context.Background()
	embedder := mock.New()

	vec, err := embedder.Embed(ctx, "")
	if err != nil {
		t.Fatalf("Failed to embed empty text: %v", err)
	}
	if len(vec) != 384 {
		t.Errorf("Expected a full-size vector for empty text, got %d", len(vec))
	}
}
