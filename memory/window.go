package memory

import "sync"

// DefaultWindowCapacity is the hot window size used when none is
// configured.
const DefaultWindowCapacity = 20

// Window is the hot recency buffer: a bounded per-session FIFO of the
// most recent shards, held in process for low-latency context assembly.
// Eviction from the window destroys nothing durable; evicted shards
// remain in the log and become archive candidates.
type Window struct {
	mu       sync.Mutex
	capacity int
	sessions map[string][]*Shard
}

// NewWindow creates a window holding up to capacity shards per session.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	return &Window{
		capacity: capacity,
		sessions: make(map[string][]*Shard),
	}
}

// Push appends a shard to its session's buffer, evicting the oldest
// entry once the capacity is exceeded.
func (w *Window) Push(s *Shard) {
	if s == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := append(w.sessions[s.SessionID], s)
	if len(entries) > w.capacity {
		entries = append([]*Shard(nil), entries[len(entries)-w.capacity:]...)
	}
	w.sessions[s.SessionID] = entries
}

// Recent returns up to k shards for a session, most recent first.
func (w *Window) Recent(sessionID string, k int) []*Shard {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := w.sessions[sessionID]
	if k <= 0 || k > len(entries) {
		k = len(entries)
	}
	out := make([]*Shard, 0, k)
	for i := len(entries) - 1; i >= len(entries)-k; i-- {
		out = append(out, entries[i])
	}
	return out
}

// Touch updates last_used on the window's copy of a shard, reporting
// whether the id was present.
func (w *Window) Touch(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, entries := range w.sessions {
		for _, s := range entries {
			if s.ID == id {
				s.Touch()
				return true
			}
		}
	}
	return false
}

// Clear drops all window entries for a session.
func (w *Window) Clear(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.sessions, sessionID)
}

// Len reports how many shards a session currently holds.
func (w *Window) Len(sessionID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sessions[sessionID])
}
