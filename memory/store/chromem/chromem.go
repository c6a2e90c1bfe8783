package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/engramlabs/engram-go-sdk/memory"
)

// ChromemArchive wraps chromem-go for vector storage.
// chromem-go is a pure Go, embedded vector database.
type ChromemArchive struct {
	db          *chromem.DB
	embedder    memory.Embedder
	collections map[string]*chromem.Collection // Per-session collections
	mu          sync.RWMutex
}

// New creates an in-memory chromem-based archive. Contents are lost on
// process exit; use NewPersistent to keep the index on disk.
func New(embedder memory.Embedder) (*ChromemArchive, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder must not be nil")
	}

	return &ChromemArchive{
		db:          chromem.NewDB(),
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// NewPersistent creates an archive whose index is stored under path and
// survives restarts.
func NewPersistent(path string, embedder memory.Embedder) (*ChromemArchive, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder must not be nil")
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, &memory.StorageIOError{Op: "open", Path: path, Err: err}
	}

	return &ChromemArchive{
		db:          db,
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// getOrCreateCollection returns the collection for a session.
// Each session gets its own collection for namespace isolation.
func (s *ChromemArchive) getOrCreateCollection(sessionID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[sessionID]
	s.mu.RUnlock()

	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := s.collections[sessionID]; exists {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection(
		fmt.Sprintf("session_%s", sessionID),
		nil, // No collection metadata
		nil, // No embedding func (we provide embeddings)
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	s.collections[sessionID] = col
	return col, nil
}

// Archive embeds and indexes a batch of shards. chromem keys documents
// by id, so re-archiving a shard replaces its previous record instead
// of duplicating it.
func (s *ChromemArchive) Archive(ctx context.Context, shards []*memory.Shard, sessionID string) error {
	if len(shards) == 0 {
		return nil
	}
	sessionID = normalizeSession(sessionID)

	col, err := s.getOrCreateCollection(sessionID)
	if err != nil {
		return &memory.BackendUnavailableError{Op: "archive", Err: err}
	}

	log.Printf("[CHROMEM] Archiving %d shards for session %q", len(shards), sessionID)

	for _, shard := range shards {
		embedding, err := s.embedder.Embed(ctx, shard.EmbeddingText())
		if err != nil {
			return &memory.BackendUnavailableError{Op: "archive", Err: err}
		}

		content, err := json.Marshal(shard)
		if err != nil {
			return fmt.Errorf("serialize shard: %w", err)
		}

		doc := chromem.Document{
			ID:        shard.ID,
			Content:   string(content),
			Embedding: embedding,
			Metadata: map[string]string{
				"session_id": sessionID,
				"kind":       string(shard.Kind),
				"timestamp":  shard.Timestamp.Format(time.RFC3339),
			},
		}

		if err := col.AddDocument(ctx, doc); err != nil {
			return &memory.BackendUnavailableError{Op: "archive", Err: err}
		}
	}

	return nil
}

// SemanticSearch embeds the query and returns up to k shards ranked by
// similarity. Scores are cosine similarity rescaled to [0, 1]. An empty
// collection yields an empty result and no error.
func (s *ChromemArchive) SemanticSearch(ctx context.Context, query string, k int, sessionID string) ([]memory.ScoredShard, error) {
	if k <= 0 {
		return nil, nil
	}
	sessionID = normalizeSession(sessionID)

	col, err := s.getOrCreateCollection(sessionID)
	if err != nil {
		return nil, &memory.BackendUnavailableError{Op: "semantic_search", Err: err}
	}

	count := col.Count()
	if count == 0 {
		log.Printf("[CHROMEM] Collection for session %q is empty", sessionID)
		return nil, nil
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &memory.BackendUnavailableError{Op: "semantic_search", Err: err}
	}

	// chromem rejects nResults larger than the collection.
	if k > count {
		k = count
	}

	results, err := col.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, &memory.BackendUnavailableError{Op: "semantic_search", Err: err}
	}

	log.Printf("[CHROMEM] Retrieved %d raw results for session %q", len(results), sessionID)

	scored := make([]memory.ScoredShard, 0, len(results))
	for i, result := range results {
		shard := new(memory.Shard)
		if err := json.Unmarshal([]byte(result.Content), shard); err != nil {
			log.Printf("[CHROMEM] Skipping result #%d: %v", i+1, err)
			continue
		}

		scored = append(scored, memory.ScoredShard{
			Shard:  shard,
			Score:  rescale(result.Similarity),
			Source: memory.SourceArchive,
		})
	}

	return scored, nil
}

// Close releases resources.
func (s *ChromemArchive) Close() error {
	// chromem-go persists on write, nothing to flush
	return nil
}

// rescale maps cosine similarity from [-1, 1] onto [0, 1].
func rescale(similarity float32) float64 {
	score := (float64(similarity) + 1) / 2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func normalizeSession(sessionID string) string {
	if sessionID == "" {
		return memory.DefaultSession
	}
	return sessionID
}
