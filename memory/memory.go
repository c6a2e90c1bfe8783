package memory

import "context"

// Order selects the sort key for history queries.
type Order string

const (
	// OrderByTimestamp sorts by creation time, newest first.
	OrderByTimestamp Order = "timestamp"

	// OrderByLastUsed sorts by most recent retrieval, newest first.
	OrderByLastUsed Order = "last_used"
)

// Log is the durable per-session record of every shard. Implementations
// must serialize concurrent mutations internally; the on-disk layout is
// one newline-delimited record file per session, rewritten atomically.
//
// Implementations: jsonl.Store (SDK-provided).
type Log interface {
	// Insert appends a shard to its session's log.
	Insert(ctx context.Context, shard *Shard) error

	// History returns a session's shards sorted descending by the given
	// order, capped at limit when limit > 0.
	History(ctx context.Context, sessionID string, limit int, orderBy Order) ([]*Shard, error)

	// Search is the fallback lookup: a case-insensitive substring match
	// over payload text, ranked by last_used descending, capped at topK
	// when topK > 0. Used when the vector archive cannot answer.
	Search(ctx context.Context, text string, topK int, sessionID string) ([]*Shard, error)

	// MarkUsed durably updates the matching shard's last_used.
	// Unknown ids are acknowledged without error.
	MarkUsed(ctx context.Context, id string) error

	// Clear removes all shards for a session, leaving other sessions
	// untouched. It never partially succeeds.
	Clear(ctx context.Context, sessionID string) error
}

// Archive is the semantic index over archived shards. Implementations
// own embedding generation and nearest-neighbor search internals; the
// Manager only ever sees this boundary.
//
// Implementations: chromem.ChromemArchive (SDK-provided).
type Archive interface {
	// Archive takes ownership of a batch of shards, embedding and
	// indexing them. Idempotent per shard id: re-archiving an id must
	// not create a duplicate index entry.
	Archive(ctx context.Context, shards []*Shard, sessionID string) error

	// SemanticSearch returns up to k nearest shards by embedding
	// similarity, scores normalized to [0,1] where 1 is most similar.
	// An empty result with a nil error means the index has nothing to
	// offer; callers fall back to Log.Search either way.
	SemanticSearch(ctx context.Context, query string, k int, sessionID string) ([]ScoredShard, error)

	// Close releases backend resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: mock.MockEmbedder (testing), onnx.ONNXEmbedder
// (local inference), cached.CachedEmbedder (decorator).
//
// Note: Embedder is an implementation detail of Archive backends; the
// Manager does not interact with it directly.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Source tags which tier produced a retrieval result.
type Source string

const (
	// SourceWindow marks a hot-window recency hit.
	SourceWindow Source = "window"

	// SourceArchive marks a vector-similarity hit.
	SourceArchive Source = "archive"

	// SourceLog marks a substring-fallback hit from the durable log.
	SourceLog Source = "log"

	// SourceBoth marks a shard surfaced by more than one tier.
	SourceBoth Source = "both"
)

// ScoredShard is one retrieval result: the shard, its relevance score in
// [0,1], and the tier that produced it.
type ScoredShard struct {
	Shard  *Shard
	Score  float64
	Source Source
}
