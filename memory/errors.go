package memory

import "fmt"

// ValidationError reports a malformed shard construction. It indicates a
// caller bug and should not be retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid shard: %s %s", e.Field, e.Reason)
}

// StorageIOError reports a failed disk read or write in the durable log.
// The operation did not take effect; the caller may retry.
type StorageIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageIOError) Unwrap() error { return e.Err }

// BackendUnavailableError reports that the embedding or vector backend
// could not serve a call. Retrieval callers degrade to the substring
// fallback or an empty result instead of propagating it.
type BackendUnavailableError struct {
	Op  string
	Err error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend unavailable during %s: %v", e.Op, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// CorruptRecordError describes a single unreadable log line. Loaders skip
// the line and log this as a warning; it is never returned from a load.
type CorruptRecordError struct {
	Path string
	Line int
	Err  error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt record %s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *CorruptRecordError) Unwrap() error { return e.Err }
