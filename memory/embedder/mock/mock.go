package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// MockEmbedder is a simple mock embedder for testing and offline runs.
// It generates deterministic embeddings from token hashes, so texts
// that share words land closer together than unrelated texts. It is
// not a real semantic model.
type MockEmbedder struct {
	dimensions int
}

// New creates a new mock embedder.
func New() *MockEmbedder {
	return &MockEmbedder{
		dimensions: 384, // Match all-MiniLM-L6-v2 dimensions
	}
}

// NewWithDimensions creates a mock embedder with a custom vector size.
func NewWithDimensions(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed creates a deterministic embedding from text.
// Each token contributes a hash-seeded pseudo-random vector and the
// result is their normalized average.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embedding := make([]float32, m.dimensions)

	tokens := tokenize(text)
	if len(tokens) == 0 {
		tokens = []string{""}
	}

	for _, token := range tokens {
		// Hash the token
		h := fnv.New64a()
		h.Write([]byte(token))
		seed := h.Sum64()

		for i := 0; i < m.dimensions; i++ {
			// Simple LCG (Linear Congruential Generator)
			seed = seed*6364136223846793005 + 1442695040888963407
			// Convert to [-1, 1] range
			val := float32(int64(seed)) / float32(math.MaxInt64)
			embedding[i] += val
		}
	}

	inv := 1 / float32(len(tokens))
	for i := range embedding {
		embedding[i] *= inv
	}

	// Normalize to unit vector
	embedding = normalize(embedding)

	return embedding, nil
}

// Dimensions returns the embedding size.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

// tokenize lowercases the text and splits it into words, trimming
// surrounding punctuation.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.Trim(field, ".,!?;:\"'()[]")
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}

	return normalized
}
