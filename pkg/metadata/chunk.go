package metadata

import (
	"fmt"
	"time"
)

// ChunkStatus tracks a chunk copy through its lifecycle.
type ChunkStatus string

const (
	// ChunkPending is the initial state before any upload started.
	ChunkPending ChunkStatus = "pending"
	// ChunkUploading means the object write is in flight.
	ChunkUploading ChunkStatus = "uploading"
	// ChunkUploaded means the object exists on its node and hashed to
	// Digest at the moment of the transition.
	ChunkUploaded ChunkStatus = "uploaded"
	// ChunkFailed means the upload failed or the object went missing.
	ChunkFailed ChunkStatus = "failed"
	// ChunkCorrupt means the object bytes no longer hash to Digest.
	ChunkCorrupt ChunkStatus = "corrupt"
)

// IsValid checks if the status is a known ChunkStatus.
func (s ChunkStatus) IsValid() bool {
	switch s {
	case ChunkPending, ChunkUploading, ChunkUploaded, ChunkFailed, ChunkCorrupt:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status machine allows s -> next.
//
//	pending   -> uploading
//	uploading -> uploaded | failed
//	uploaded  -> corrupt  | failed
//	corrupt   -> uploaded   (repair of a primary)
//	failed    -> uploaded   (repair of a primary whose object went missing)
//
// Replicas never leave corrupt or failed; they are re-created elsewhere.
func (s ChunkStatus) CanTransitionTo(next ChunkStatus) bool {
	switch s {
	case ChunkPending:
		return next == ChunkUploading
	case ChunkUploading:
		return next == ChunkUploaded || next == ChunkFailed
	case ChunkUploaded:
		return next == ChunkCorrupt || next == ChunkFailed
	case ChunkCorrupt:
		return next == ChunkUploaded
	case ChunkFailed:
		return next == ChunkUploaded
	default:
		return false
	}
}

// Chunk is one stored copy of a contiguous slice of a file.
//
// For every (file, chunk_number) there is exactly one primary row
// (IsReplica=false) and zero or more replica rows, all sharing Digest and
// SizeBytes. Two partial unique indexes are the serialization point for
// concurrent inserts: idx_chunk_primary allows a single primary per
// (file, chunk_number), and idx_chunk_copy_node allows at most one
// replica of a chunk number per node, so additional replicas always
// land on distinct nodes.
type Chunk struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	FileID      string `gorm:"not null;size:36;index:idx_chunk_primary,unique,where:is_replica = false;index:idx_chunk_copy_node,unique,where:is_replica = true;index:idx_chunk_file" json:"file_id"`
	ChunkNumber int    `gorm:"not null;index:idx_chunk_primary,unique,where:is_replica = false;index:idx_chunk_copy_node,unique,where:is_replica = true" json:"chunk_number"`
	IsReplica   bool   `gorm:"not null;default:false" json:"is_replica"`

	SizeBytes int64 `gorm:"not null" json:"size_bytes"`

	// Digest is the SHA-256 over the chunk bytes, hex encoded.
	Digest string `gorm:"not null;size:64" json:"digest"`

	// ObjectKey is the opaque object path on the owning node.
	ObjectKey string `gorm:"not null;size:512" json:"object_key"`

	// NodeID is null when the owning node record was removed.
	NodeID *uint `gorm:"index;index:idx_chunk_copy_node,unique,where:is_replica = true" json:"node_id,omitempty"`
	Node   *Node `gorm:"foreignKey:NodeID" json:"node,omitempty"`

	Status ChunkStatus `gorm:"not null;default:pending;size:20;index" json:"status"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Chunk.
func (Chunk) TableName() string {
	return "chunks"
}

func (c *Chunk) String() string {
	kind := "primary"
	if c.IsReplica {
		kind = "replica"
	}
	return fmt.Sprintf("chunk %d (%s) of file %s", c.ChunkNumber, kind, c.FileID)
}
