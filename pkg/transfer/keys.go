// Package transfer moves file bytes in and out of the cluster: the
// Chunker splits uploads into fixed-size chunks and places them, the
// Reassembler reconstructs files from the best available copies.
package transfer

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Object-key layout, a stable contract callers may rely on for offline
// recovery:
//
//	chunks/{owner}/{file_id}_{chunk_number}_{nonce}.chunk    primary
//	replicas/{owner}/{file_id}_{chunk_number}_{nonce}.chunk  replica

// PrimaryObjectKey builds a fresh object key for a primary chunk.
func PrimaryObjectKey(owner, fileID string, number int) string {
	return fmt.Sprintf("chunks/%s/%s_%d_%s.chunk", owner, fileID, number, nonce())
}

// ReplicaObjectKey builds a fresh object key for a replica chunk.
func ReplicaObjectKey(owner, fileID string, number int) string {
	return fmt.Sprintf("replicas/%s/%s_%d_%s.chunk", owner, fileID, number, nonce())
}

// nonce keeps repeated writes of the same chunk from colliding, so a
// repair never overwrites the object it is reading from.
func nonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
