package memory

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the two shard payloads.
type Kind string

const (
	// KindInteraction is a single prompt/response exchange.
	KindInteraction Kind = "interaction"

	// KindThread is free-form consolidated text tied to a thread.
	KindThread Kind = "thread"
)

// DefaultSession is the session shards belong to when none is supplied.
const DefaultSession = "default"

// Metadata is an open bag of descriptive values attached to a shard.
// Values pass through storage unvalidated; they round-trip as JSON, so
// numeric values decode as float64.
type Metadata map[string]any

// Recognized metadata keys. Anything else rides along untouched.
const (
	MetaTaskType   = "task_type"
	MetaConfidence = "confidence_score"
	MetaSource     = "source"
)

// Shard is the atomic unit of memory. Identity fields (ID, Kind,
// SessionID, payload, Timestamp) never change after creation; only
// LastUsed and Metadata may be updated.
type Shard struct {
	ID        string
	Kind      Kind
	SessionID string
	ThreadID  string

	// Interaction payload.
	Prompt   string
	Response string

	// Thread payload.
	Text string

	Metadata  Metadata
	Timestamp time.Time
	LastUsed  time.Time
}

// NewInteractionShard creates a shard recording one prompt/response
// exchange. The prompt is required; the response may be empty when the
// assistant failed to answer.
func NewInteractionShard(sessionID, prompt, response string, metadata Metadata) (*Shard, error) {
	if prompt == "" {
		return nil, &ValidationError{Field: "prompt", Reason: "required for interaction shards"}
	}
	s := newShard(KindInteraction, sessionID, metadata)
	s.Prompt = prompt
	s.Response = response
	return s, nil
}

// NewThreadShard creates a shard holding consolidated thread text.
func NewThreadShard(sessionID, threadID, text string, metadata Metadata) (*Shard, error) {
	if threadID == "" {
		return nil, &ValidationError{Field: "thread_id", Reason: "required for thread shards"}
	}
	if text == "" {
		return nil, &ValidationError{Field: "text", Reason: "required for thread shards"}
	}
	s := newShard(KindThread, sessionID, metadata)
	s.ThreadID = threadID
	s.Text = text
	return s, nil
}

func newShard(kind Kind, sessionID string, metadata Metadata) *Shard {
	if sessionID == "" {
		sessionID = DefaultSession
	}
	if metadata == nil {
		metadata = Metadata{}
	}
	now := time.Now().UTC()
	return &Shard{
		ID:        uuid.New().String(),
		Kind:      kind,
		SessionID: sessionID,
		Metadata:  metadata,
		Timestamp: now,
		LastUsed:  now,
	}
}

// touchMu serializes LastUsed access. Shard pointers are shared between
// the hot window, the accumulation buffer, and retrieval results, so a
// retrieval can touch a shard while a log rewrite or archive flush is
// serializing it.
var touchMu sync.Mutex

// Touch records that the shard participated in a retrieval. Safe to call
// repeatedly and from concurrent callers; LastUsed only moves forward.
func (s *Shard) Touch() {
	touchMu.Lock()
	defer touchMu.Unlock()
	now := time.Now().UTC()
	if now.After(s.LastUsed) {
		s.LastUsed = now
	}
}

// lastUsedSnapshot reads LastUsed under the touch lock.
func (s *Shard) lastUsedSnapshot() time.Time {
	touchMu.Lock()
	defer touchMu.Unlock()
	return s.LastUsed
}

// lastUsedAfter reports whether a's LastUsed is more recent than b's,
// comparing both under the touch lock.
func lastUsedAfter(a, b *Shard) bool {
	touchMu.Lock()
	defer touchMu.Unlock()
	return a.LastUsed.After(b.LastUsed)
}

// EmbeddingText returns the searchable payload text: the concatenated
// prompt and response for interactions, the thread text otherwise. Both
// the vector archive and the substring fallback match against this.
func (s *Shard) EmbeddingText() string {
	switch s.Kind {
	case KindThread:
		return s.Text
	default:
		if s.Response == "" {
			return s.Prompt
		}
		return s.Prompt + "\n" + s.Response
	}
}

// ContextText renders the shard for inclusion in an assistant prompt.
func (s *Shard) ContextText() string {
	switch s.Kind {
	case KindThread:
		return s.Text
	default:
		return fmt.Sprintf("User: %s\nAssistant: %s", s.Prompt, s.Response)
	}
}

// shardWire is the on-disk representation. Timestamps are raw so that
// records written by older versions (epoch seconds instead of RFC 3339)
// still load.
type shardWire struct {
	ID        string          `json:"id,omitempty"`
	Kind      string          `json:"type,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	ThreadID  string          `json:"thread_id,omitempty"`
	Prompt    string          `json:"prompt,omitempty"`
	Response  string          `json:"response,omitempty"`
	Text      string          `json:"text,omitempty"`
	Metadata  Metadata        `json:"metadata,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	LastUsed  json.RawMessage `json:"last_used,omitempty"`
}

// MarshalJSON serializes the shard as a single self-contained JSON
// object with RFC 3339 UTC timestamps. Safe to run concurrently with
// Touch.
func (s *Shard) MarshalJSON() ([]byte, error) {
	w := shardWire{
		ID:        s.ID,
		Kind:      string(s.Kind),
		SessionID: s.SessionID,
		ThreadID:  s.ThreadID,
		Prompt:    s.Prompt,
		Response:  s.Response,
		Text:      s.Text,
		Metadata:  s.Metadata,
		Timestamp: quoteTime(s.Timestamp),
		LastUsed:  quoteTime(s.lastUsedSnapshot()),
	}
	return json.Marshal(w)
}

// UnmarshalJSON restores a shard, applying defaults for fields absent in
// older records: missing kind means interaction, missing session means
// the default session, a missing id gets a fresh one, and a missing
// last_used inherits the timestamp.
func (s *Shard) UnmarshalJSON(data []byte) error {
	var w shardWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	s.ID = w.ID
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.Kind = Kind(w.Kind)
	if s.Kind == "" {
		s.Kind = KindInteraction
	}
	s.SessionID = w.SessionID
	if s.SessionID == "" {
		s.SessionID = DefaultSession
	}
	s.ThreadID = w.ThreadID
	s.Prompt = w.Prompt
	s.Response = w.Response
	s.Text = w.Text
	s.Metadata = w.Metadata
	if s.Metadata == nil {
		s.Metadata = Metadata{}
	}

	ts, err := parseTime(w.Timestamp)
	if err != nil {
		return fmt.Errorf("parse timestamp: %w", err)
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	s.Timestamp = ts

	lu, err := parseTime(w.LastUsed)
	if err != nil {
		return fmt.Errorf("parse last_used: %w", err)
	}
	if lu.IsZero() {
		lu = ts
	}
	s.LastUsed = lu
	return nil
}

func quoteTime(t time.Time) json.RawMessage {
	return json.RawMessage(strconv.Quote(t.UTC().Format(time.RFC3339Nano)))
}

// parseTime accepts an RFC 3339 string or a bare epoch-seconds number.
func parseTime(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 {
		return time.Time{}, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if str == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	}
	var epoch float64
	if err := json.Unmarshal(raw, &epoch); err != nil {
		return time.Time{}, fmt.Errorf("unsupported time value %s", string(raw))
	}
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC(), nil
}
