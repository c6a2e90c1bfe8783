// Package jsonl implements the durable log on newline-delimited JSON
// files, one file per session. Every line is one self-contained shard;
// mutations load the full log, modify it in memory, and atomically
// replace the file via a temp-file rename. Durability, not speed, is
// the point of this tier.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/engramlabs/engram-go-sdk/memory"
)

// DefaultMaxEntries caps how many shards a session file retains.
const DefaultMaxEntries = 10000

// Store is a file-backed memory.Log. A single mutex serializes every
// load-mutate-rewrite cycle; without it concurrent inserts would
// interleave and lose appends.
type Store struct {
	dir        string
	maxEntries int
	mu         sync.Mutex
}

// Option configures the store.
type Option func(*Store)

// WithMaxEntries overrides the per-session retention cap. On every
// rewrite only the most recent n shards survive.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &memory.StorageIOError{Op: "mkdir", Path: dir, Err: err}
	}
	s := &Store{
		dir:        dir,
		maxEntries: DefaultMaxEntries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Insert appends a shard to its session's log file.
func (s *Store) Insert(ctx context.Context, shard *memory.Shard) error {
	if shard == nil {
		return &memory.ValidationError{Field: "shard", Reason: "must not be nil"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.sessionPath(shard.SessionID)
	shards, err := s.load(path)
	if err != nil {
		return err
	}
	shards = append(shards, shard)
	return s.rewrite(path, shards)
}

// History returns a session's shards sorted descending by orderBy,
// capped at limit when limit > 0.
func (s *Store) History(ctx context.Context, sessionID string, limit int, orderBy memory.Order) ([]*memory.Shard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shards, err := s.load(s.sessionPath(sessionID))
	if err != nil {
		return nil, err
	}
	sortShards(shards, orderBy)
	if limit > 0 && len(shards) > limit {
		shards = shards[:limit]
	}
	return shards, nil
}

// Search matches the text case-insensitively against each shard's
// payload, ranked by last_used descending and capped at topK when
// topK > 0. An empty text matches everything.
func (s *Store) Search(ctx context.Context, text string, topK int, sessionID string) ([]*memory.Shard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shards, err := s.load(s.sessionPath(sessionID))
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(text)
	matched := shards[:0:0]
	for _, shard := range shards {
		if strings.Contains(strings.ToLower(shard.EmbeddingText()), needle) {
			matched = append(matched, shard)
		}
	}
	sortShards(matched, memory.OrderByLastUsed)
	if topK > 0 && len(matched) > topK {
		matched = matched[:topK]
	}
	return matched, nil
}

// MarkUsed scans session files for the shard, touches it, and rewrites
// that file. The scan is O(n) over the whole log. Unknown ids are
// acknowledged without error.
func (s *Store) MarkUsed(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	paths, err := filepath.Glob(filepath.Join(s.dir, "*.jsonl"))
	if err != nil {
		return &memory.StorageIOError{Op: "list", Path: s.dir, Err: err}
	}
	for _, path := range paths {
		shards, err := s.load(path)
		if err != nil {
			return err
		}
		for _, shard := range shards {
			if shard.ID == id {
				shard.Touch()
				return s.rewrite(path, shards)
			}
		}
	}
	return nil
}

// Clear removes a session's log file. Other sessions keep their files
// untouched; removal either fully succeeds or leaves the file as it
// was.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.sessionPath(sessionID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &memory.StorageIOError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// load reads every shard from a session file. A corrupt line is skipped
// with a logged warning; one bad record must not lose the rest of the
// history. Missing files read as empty.
func (s *Store) load(path string) ([]*memory.Shard, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &memory.StorageIOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	var shards []*memory.Shard
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		shard := new(memory.Shard)
		if err := json.Unmarshal([]byte(line), shard); err != nil {
			warn := &memory.CorruptRecordError{Path: path, Line: lineNo, Err: err}
			log.Printf("[STORE] Skipping %v", warn)
			continue
		}
		shards = append(shards, shard)
	}
	if err := scanner.Err(); err != nil {
		return nil, &memory.StorageIOError{Op: "read", Path: path, Err: err}
	}
	return shards, nil
}

// rewrite replaces a session file with the given shards, keeping only
// the most recent maxEntries. Content is written to a temp file and
// renamed over the original so a crash mid-write cannot corrupt the
// log.
func (s *Store) rewrite(path string, shards []*memory.Shard) error {
	if len(shards) > s.maxEntries {
		shards = shards[len(shards)-s.maxEntries:]
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return &memory.StorageIOError{Op: "create", Path: tmp, Err: err}
	}

	w := bufio.NewWriter(f)
	for _, shard := range shards {
		line, err := json.Marshal(shard)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return &memory.StorageIOError{Op: "encode", Path: tmp, Err: err}
		}
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			f.Close()
			os.Remove(tmp)
			return &memory.StorageIOError{Op: "write", Path: tmp, Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return &memory.StorageIOError{Op: "write", Path: tmp, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &memory.StorageIOError{Op: "close", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &memory.StorageIOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

func (s *Store) sessionPath(sessionID string) string {
	if sessionID == "" {
		sessionID = memory.DefaultSession
	}
	return filepath.Join(s.dir, sanitizeSession(sessionID)+".jsonl")
}

// sanitizeSession keeps session-derived filenames to a safe character
// set. Distinct sessions that sanitize identically share a file, which
// is acceptable for ids chosen by the application.
func sanitizeSession(sessionID string) string {
	var b strings.Builder
	b.Grow(len(sessionID))
	for _, r := range sessionID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" || name == "." || name == ".." {
		name = memory.DefaultSession
	}
	return name
}

func sortShards(shards []*memory.Shard, orderBy memory.Order) {
	sort.SliceStable(shards, func(i, j int) bool {
		if orderBy == memory.OrderByLastUsed {
			return shards[i].LastUsed.After(shards[j].LastUsed)
		}
		return shards[i].Timestamp.After(shards[j].Timestamp)
	})
}
