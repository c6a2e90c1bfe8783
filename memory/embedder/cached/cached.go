// Package cached wraps an embedder with an in-process cache. Embedding
// the same text twice is common on the retrieval path (repeated queries,
// re-archived shards), and inference is orders of magnitude slower than
// a cache hit.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/engramlabs/engram-go-sdk/memory"
)

// Config holds cache settings.
type Config struct {
	// MaxBytes bounds the approximate memory held by cached vectors.
	// Default: 32MB.
	MaxBytes int64
}

// DefaultConfig returns sensible defaults.
var DefaultConfig = &Config{
	MaxBytes: 32 << 20,
}

// avgEntryBytes sizes the admission counters. A 384-dim float32 vector
// is 1536 bytes, so this estimate is close for the default embedder.
const avgEntryBytes = 1536

// CachedEmbedder decorates another embedder with a ristretto cache
// keyed by the exact input text.
type CachedEmbedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// New wraps inner with a cache. A nil config uses DefaultConfig.
func New(inner memory.Embedder, config *Config) (*CachedEmbedder, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner embedder must not be nil")
	}
	if config == nil {
		config = DefaultConfig
	}
	maxBytes := config.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultConfig.MaxBytes
	}

	counters := maxBytes / avgEntryBytes * 10
	if counters < 1e4 {
		counters = 1e4
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &CachedEmbedder{
		inner: inner,
		cache: cache,
	}, nil
}

// Embed returns the cached vector for text or computes and caches it.
// Returned slices are copies; callers may mutate them freely.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if val, ok := c.cache.Get(text); ok {
		if vec, ok := val.([]float32); ok {
			return cloneVector(vec), nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(text, cloneVector(vec), int64(len(vec))*4)
	return vec, nil
}

// Dimensions reports the inner embedder's vector size.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Wait blocks until pending cache writes are applied. Ristretto admits
// entries asynchronously; call this when a subsequent Embed must see
// the cached value, as tests do.
func (c *CachedEmbedder) Wait() {
	c.cache.Wait()
}

// Close releases the cache's resources.
func (c *CachedEmbedder) Close() {
	c.cache.Close()
}

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
