package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// Manager is the working-memory orchestrator. Writes fan out to the hot
// window, the session accumulation buffer, and the durable log; reads
// merge window recency with vector-archive similarity. Size-triggered
// flushes move the accumulation buffer into the archive.
//
// One Manager is constructed per process (or per scope) and passed to
// callers explicitly; there is no package-level instance.
type Manager struct {
	log     Log
	archive Archive
	config  Config

	window *Window

	mu      sync.Mutex
	buffers map[string]*accumulator
	stats   Stats
}

// accumulator is a session's archive staging area: every shard stored
// since the last flush, plus its serialized byte size.
type accumulator struct {
	shards []*Shard
	bytes  int64
}

// Stats counts manager activity since construction.
type Stats struct {
	// ShardsStored is the number of successful store operations.
	ShardsStored int64

	// Retrievals is the number of retrieve operations served.
	Retrievals int64

	// Flushes is the number of archive flushes attempted.
	Flushes int64

	// LastFlush is when the most recent flush started.
	LastFlush time.Time
}

// Config holds Manager configuration.
type Config struct {
	// WindowCapacity is the hot window size per session.
	// Default: 20
	WindowCapacity int

	// FlushThresholdBytes triggers bulk archival once a session's
	// accumulated serialized size exceeds it.
	// Default: 100 MiB
	FlushThresholdBytes int64

	// SearchTimeout bounds each vector-archive search call.
	// Default: 5s
	SearchTimeout time.Duration

	// RetrieveK is the result count used when a retrieval asks for
	// k <= 0.
	// Default: 5
	RetrieveK int
}

// DefaultConfig returns sensible defaults for local use.
var DefaultConfig = &Config{
	WindowCapacity:      DefaultWindowCapacity,
	FlushThresholdBytes: 100 << 20,
	SearchTimeout:       5 * time.Second,
	RetrieveK:           5,
}

// NewManager creates a Manager over the given durable log and vector
// archive, both of which must be non-nil. A nil config uses
// DefaultConfig; zero-valued fields fall back to their defaults.
func NewManager(durable Log, archive Archive, config *Config) *Manager {
	cfg := *DefaultConfig
	if config != nil {
		cfg = *config
	}
	if cfg.WindowCapacity <= 0 {
		cfg.WindowCapacity = DefaultConfig.WindowCapacity
	}
	if cfg.FlushThresholdBytes <= 0 {
		cfg.FlushThresholdBytes = DefaultConfig.FlushThresholdBytes
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = DefaultConfig.SearchTimeout
	}
	if cfg.RetrieveK <= 0 {
		cfg.RetrieveK = DefaultConfig.RetrieveK
	}
	return &Manager{
		log:     durable,
		archive: archive,
		config:  cfg,
		window:  NewWindow(cfg.WindowCapacity),
		buffers: make(map[string]*accumulator),
	}
}

// StoreContext records one prompt/response exchange and returns the new
// shard's id. The shard lands in the hot window and the durable log; a
// failed durable write is surfaced to the caller.
func (m *Manager) StoreContext(ctx context.Context, prompt, response string, metadata Metadata, sessionID string) (string, error) {
	shard, err := NewInteractionShard(sessionID, prompt, response, metadata)
	if err != nil {
		return "", err
	}
	return m.store(ctx, shard)
}

// StoreThread records consolidated thread text and returns the new
// shard's id.
func (m *Manager) StoreThread(ctx context.Context, threadID, text string, metadata Metadata, sessionID string) (string, error) {
	shard, err := NewThreadShard(sessionID, threadID, text, metadata)
	if err != nil {
		return "", err
	}
	return m.store(ctx, shard)
}

func (m *Manager) store(ctx context.Context, shard *Shard) (string, error) {
	line, err := json.Marshal(shard)
	if err != nil {
		return "", fmt.Errorf("serialize shard: %w", err)
	}

	m.window.Push(shard)

	m.mu.Lock()
	acc := m.buffers[shard.SessionID]
	if acc == nil {
		acc = &accumulator{}
		m.buffers[shard.SessionID] = acc
	}
	acc.shards = append(acc.shards, shard)
	acc.bytes += int64(len(line))
	needFlush := acc.bytes > m.config.FlushThresholdBytes
	m.stats.ShardsStored++
	m.mu.Unlock()

	if err := m.log.Insert(ctx, shard); err != nil {
		return "", err
	}

	if needFlush {
		log.Printf("[MEMORY] Session %q accumulation exceeded %d bytes, archiving", shard.SessionID, m.config.FlushThresholdBytes)
		if err := m.Flush(ctx, shard.SessionID); err != nil {
			log.Printf("[MEMORY] Archive flush failed: %v", err)
		}
	}
	return shard.ID, nil
}

// Flush archives the session's accumulation buffer and resets it to
// empty. The buffer is snapshotted and reset before the archive call, so
// the same batch is never archived twice; on a failing backend the
// shards stay recoverable through the durable log. Flushing an empty
// buffer is a no-op. The hot window is unaffected.
func (m *Manager) Flush(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		sessionID = DefaultSession
	}

	m.mu.Lock()
	acc := m.buffers[sessionID]
	if acc == nil || len(acc.shards) == 0 {
		m.mu.Unlock()
		return nil
	}
	batch := acc.shards
	delete(m.buffers, sessionID)
	m.stats.Flushes++
	m.stats.LastFlush = time.Now().UTC()
	m.mu.Unlock()

	if err := m.archive.Archive(ctx, batch, sessionID); err != nil {
		return fmt.Errorf("archive flush: %w", err)
	}
	log.Printf("[MEMORY] Archived %d shards for session %q", len(batch), sessionID)
	return nil
}

// RetrieveContext returns up to k shards relevant to the query: the most
// recent window entries first, topped up by vector similarity when the
// window holds fewer than k, with a substring fallback over the durable
// log when the vector backend is empty or unavailable. Every returned
// shard has its last_used touched. Backend failures degrade the result;
// they are never returned as errors.
func (m *Manager) RetrieveContext(ctx context.Context, query string, k int, sessionID string) ([]ScoredShard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = m.config.RetrieveK
	}
	if sessionID == "" {
		sessionID = DefaultSession
	}

	m.mu.Lock()
	m.stats.Retrievals++
	m.mu.Unlock()

	recent := m.window.Recent(sessionID, k)
	recency := make([]ScoredShard, 0, len(recent))
	for _, s := range recent {
		recency = append(recency, ScoredShard{Shard: s, Score: 1.0, Source: SourceWindow})
	}

	var scored []ScoredShard
	if need := k - len(recency); need > 0 {
		scored = m.searchArchive(ctx, query, need, sessionID)
	}

	merged := mergeScored(recency, scored)
	for _, res := range merged {
		res.Shard.Touch()
	}

	log.Printf("[MEMORY] Retrieved %d shards for query %q in session %q", len(merged), truncateLog(query, 50), sessionID)
	return merged, nil
}

// searchArchive queries the vector archive under the configured timeout,
// falling back to the durable log's substring search when the archive
// errors or comes back empty.
func (m *Manager) searchArchive(ctx context.Context, query string, k int, sessionID string) []ScoredShard {
	sctx := ctx
	if m.config.SearchTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, m.config.SearchTimeout)
		defer cancel()
	}

	results, err := m.archive.SemanticSearch(sctx, query, k, sessionID)
	if err != nil {
		log.Printf("[MEMORY] Semantic search failed, falling back to log search: %v", err)
		results = nil
	}
	if len(results) > 0 {
		return results
	}

	fallback, err := m.log.Search(ctx, query, k, sessionID)
	if err != nil {
		log.Printf("[MEMORY] Log search failed: %v", err)
		return nil
	}
	scored := make([]ScoredShard, 0, len(fallback))
	for _, s := range fallback {
		scored = append(scored, ScoredShard{Shard: s, Source: SourceLog})
	}
	return scored
}

// GetContextHistory returns the session's shards from the durable log,
// newest first, capped at limit when limit > 0.
func (m *Manager) GetContextHistory(ctx context.Context, sessionID string, limit int) ([]*Shard, error) {
	if sessionID == "" {
		sessionID = DefaultSession
	}
	return m.log.History(ctx, sessionID, limit, OrderByTimestamp)
}

// Clear removes a session's shards from the hot window, the accumulation
// buffer, and the durable log. Archived shards survive: the archive is
// long-term memory and is not purged by a session clear.
func (m *Manager) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		sessionID = DefaultSession
	}

	m.window.Clear(sessionID)

	m.mu.Lock()
	delete(m.buffers, sessionID)
	m.mu.Unlock()

	if err := m.log.Clear(ctx, sessionID); err != nil {
		return err
	}
	log.Printf("[MEMORY] Cleared session %q", sessionID)
	return nil
}

// MarkUsed touches a shard's last_used across tiers: the in-memory
// copies in the window and accumulation buffer, and the durable log.
func (m *Manager) MarkUsed(ctx context.Context, id string) error {
	m.window.Touch(id)

	m.mu.Lock()
	for _, acc := range m.buffers {
		for _, s := range acc.shards {
			if s.ID == id {
				s.Touch()
			}
		}
	}
	m.mu.Unlock()

	return m.log.MarkUsed(ctx, id)
}

// Stats returns a snapshot of the manager's activity counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
