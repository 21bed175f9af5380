package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys for engine operations. OpenTelemetry semantic
// conventions are followed where one applies.
const (
	// Files and chunks
	AttrFileID      = "file.id"
	AttrFileOwner   = "file.owner"
	AttrFileSize    = "file.size"
	AttrChunkNumber = "chunk.number"
	AttrChunkCount  = "chunk.count"
	AttrReplica     = "chunk.replica"
	AttrDigest      = "chunk.digest"

	// Nodes and backends
	AttrNodeID      = "node.id"
	AttrNodeName    = "node.name"
	AttrBackendKind = "backend.kind"
	AttrBucket      = "storage.bucket"
	AttrKey         = "storage.key"

	// Operation metadata
	AttrBytes    = "io.bytes"
	AttrAttempt  = "retry.attempt"
	AttrCacheHit = "cache.hit"
)

// Span names. Format: <component>.<operation>.
const (
	SpanStoreFile    = "engine.store_file"
	SpanStoreChunk   = "engine.store_chunk"
	SpanRetrieveFile = "engine.retrieve_file"
	SpanDeleteFile   = "engine.delete_file"

	SpanReplicate    = "redundancy.replicate"
	SpanVerifySweep  = "redundancy.verify_sweep"
	SpanRepairChunk  = "redundancy.repair_chunk"
	SpanDrainPending = "redundancy.drain_pending"

	SpanProbeNode    = "monitor.probe_node"
	SpanElectPrimary = "monitor.elect_primary"
)

// File returns attributes identifying a stored file.
func File(id, owner string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrFileID, id),
		attribute.String(AttrFileOwner, owner),
	}
}

// Chunk returns attributes identifying one chunk copy.
func Chunk(number int, replica bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrChunkNumber, number),
		attribute.Bool(AttrReplica, replica),
	}
}

// Node returns attributes identifying a backend node.
func Node(id uint, name string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(AttrNodeID, int64(id)),
		attribute.String(AttrNodeName, name),
	}
}
