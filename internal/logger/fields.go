package logger

import "log/slog"

// Standard field keys for structured logging. Use these consistently
// across all log statements so logs aggregate and query cleanly.
const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Component & operation
	KeyComponent = "component" // chunker, reassembler, monitor, replication, ...
	KeyOperation = "operation" // store, retrieve, verify, repair, drain, probe

	// Files and chunks
	KeyFileID      = "file_id"
	KeyOwner       = "owner"
	KeyChunkID     = "chunk_id"
	KeyChunkNumber = "chunk_number"
	KeyReplica     = "replica"
	KeyDigest      = "digest"
	KeySize        = "size"
	KeyStatus      = "status"

	// Nodes and backends
	KeyNodeID   = "node_id"
	KeyNodeName = "node_name"
	KeyBucket   = "bucket"
	KeyObjectKey = "object_key"
	KeyBackend  = "backend"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyAttempt    = "attempt"
	KeyMaxAttempts = "max_attempts"
	KeyCount      = "count"

	// Cache
	KeyCacheHit = "cache_hit"
)

// Typed attribute constructors for the hot paths.

// Component returns a slog.Attr naming the engine component.
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// FileID returns a slog.Attr for a stored file id.
func FileID(id string) slog.Attr {
	return slog.String(KeyFileID, id)
}

// Owner returns a slog.Attr for a file owner.
func Owner(owner string) slog.Attr {
	return slog.String(KeyOwner, owner)
}

// ChunkNumber returns a slog.Attr for a 1-based chunk number.
func ChunkNumber(n int) slog.Attr {
	return slog.Int(KeyChunkNumber, n)
}

// NodeID returns a slog.Attr for a node id.
func NodeID(id uint) slog.Attr {
	return slog.Uint64(KeyNodeID, uint64(id))
}

// NodeName returns a slog.Attr for a node name.
func NodeName(name string) slog.Attr {
	return slog.String(KeyNodeName, name)
}

// ObjectKey returns a slog.Attr for an object key.
func ObjectKey(key string) slog.Attr {
	return slog.String(KeyObjectKey, key)
}

// Size returns a slog.Attr for a byte size.
func Size(n int64) slog.Attr {
	return slog.Int64(KeySize, n)
}

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error, or an empty attr for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// CacheHit returns a slog.Attr for a cache hit indicator.
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}
