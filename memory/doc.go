// Package memory implements the assistant's working memory: a tiered
// record of prompt/response interactions combining exact recency with
// semantic search over archived history.
//
// The shard is the atomic record. Every store lands a shard in three
// places: the hot window (bounded per-session FIFO for immediate
// context), the session accumulation buffer (staging for bulk
// archival), and the durable log (per-session JSONL files). When a
// session's accumulated size crosses the configured threshold, the
// buffer is flushed into the vector archive for similarity search.
//
// Architecture:
//   - Shard: immutable record of one interaction or thread entry
//   - Window: bounded in-process recency buffer, FIFO eviction
//   - Log: append-only per-session persistence (jsonl subpackage)
//   - Archive: semantic index boundary (chromem subpackage)
//   - Manager: orchestrates writes, size-triggered archival, and the
//     merge of recency- and similarity-sourced results
//
// Retrieval order: hot window first, vector archive for the shortfall,
// substring search over the durable log when the archive is empty or
// unreachable. Results are deduplicated by shard id, ranked by score
// then timestamp, and touched (last_used updated) on the way out.
//
// Failure posture: store failures surface to the caller; retrieval
// degrades to whatever tier still answers and never raises for a down
// backend. Clearing a session empties the window, buffer, and log but
// leaves the archive intact: archived shards are long-term memory.
package memory
