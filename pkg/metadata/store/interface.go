// Package store provides persistent storage for shardstore metadata:
// storage nodes, stored files, chunk placements, and the pending
// replication queue.
//
// The interface is backend-agnostic; the GORM implementation supports
// SQLite (default, zero-config) and PostgreSQL. All mutating operations
// that need cross-row consistency run inside a transaction, and
// concurrent writers are serialized through unique indexes rather than
// advisory locks: losing a uniqueness race surfaces as
// metadata.ErrConflict, which callers treat as "someone else got there
// first", not as a failure.
package store

import (
	"context"

	"github.com/marmos91/shardstore/pkg/metadata"
)

// Store is the interface for metadata persistence.
type Store interface {
	// ============================================================================
	// NODE OPERATIONS
	// ============================================================================

	// CreateNode registers a storage node.
	// Returns metadata.ErrConflict if a node with the same name exists.
	CreateNode(ctx context.Context, node *metadata.Node) error

	// GetNode retrieves a node by ID.
	// Returns metadata.ErrNodeNotFound if it does not exist.
	GetNode(ctx context.Context, id uint) (*metadata.Node, error)

	// GetNodeByName retrieves a node by its unique name.
	// Returns metadata.ErrNodeNotFound if it does not exist.
	GetNodeByName(ctx context.Context, name string) (*metadata.Node, error)

	// ListNodes returns all nodes ordered by priority, then ID.
	ListNodes(ctx context.Context) ([]*metadata.Node, error)

	// ListNodesByStatus returns nodes in the given status ordered by
	// priority, then ID. The ordering is what primary election relies on.
	ListNodesByStatus(ctx context.Context, status metadata.NodeStatus) ([]*metadata.Node, error)

	// UpdateNodeStatus sets a node's status. Moving a node out of
	// active also clears its primary flag in the same transaction, so
	// a non-active primary can never be observed.
	// Returns metadata.ErrNodeNotFound if the node does not exist.
	UpdateNodeStatus(ctx context.Context, id uint, status metadata.NodeStatus) error

	// UpdateNode persists changes to a node's connection settings
	// (address, credentials, bucket, priority).
	// Returns metadata.ErrNodeNotFound if the node does not exist.
	UpdateNode(ctx context.Context, node *metadata.Node) error

	// DeleteNode removes a node row. Chunk rows referencing it keep
	// their node_id; callers are expected to drain or verify first.
	// Returns metadata.ErrNodeNotFound if the node does not exist.
	DeleteNode(ctx context.Context, id uint) error

	// ElectPrimary promotes the best active node (lowest priority,
	// ties broken by lowest ID) to primary. If an active primary
	// already exists it is returned unchanged. The election runs in a
	// single transaction that clears every other primary flag, so at
	// most one primary exists at any commit point.
	// Returns metadata.ErrNoActiveNodes if no node is active.
	ElectPrimary(ctx context.Context) (*metadata.Node, error)

	// MarkPrimary promotes one node to primary, clearing every other
	// flag in the same transaction. The node must be active.
	// Returns metadata.ErrNodeNotFound if the node does not exist and
	// metadata.ErrNoActiveNodes if it is not active.
	MarkPrimary(ctx context.Context, id uint) error

	// PrimaryNode returns the current active primary.
	// Returns metadata.ErrNodeNotFound if there is none.
	PrimaryNode(ctx context.Context) (*metadata.Node, error)

	// ClearPrimary removes the primary flag from all nodes.
	ClearPrimary(ctx context.Context) error

	// CountChunksPerNode returns the number of chunk rows (primaries
	// and replicas, any status) placed on each node, keyed by node ID.
	// Nodes holding no chunks are absent from the map.
	CountChunksPerNode(ctx context.Context) (map[uint]int64, error)

	// ============================================================================
	// FILE OPERATIONS
	// ============================================================================

	// CreateFile inserts a file row on its own. Normal uploads go
	// through CreateFileWithChunk; this exists for empty files, which
	// have no chunk rows at all.
	// Returns metadata.ErrConflict if the ID already exists.
	CreateFile(ctx context.Context, file *metadata.StoredFile) error

	// GetFile retrieves a stored file by ID.
	// Returns metadata.ErrFileNotFound if it does not exist.
	GetFile(ctx context.Context, id string) (*metadata.StoredFile, error)

	// ListFiles returns all stored files, most recently uploaded first.
	ListFiles(ctx context.Context) ([]*metadata.StoredFile, error)

	// ListFilesByOwner returns an owner's files, most recently
	// uploaded first.
	ListFilesByOwner(ctx context.Context, owner string) ([]*metadata.StoredFile, error)

	// FinalizeFile records the total size and whole-file digest once
	// every chunk of an upload has been committed.
	// Returns metadata.ErrFileNotFound if the file does not exist.
	FinalizeFile(ctx context.Context, id string, sizeBytes int64, digest string) error

	// TouchLastAccessed stamps the file's last_accessed with the
	// current time.
	// Returns metadata.ErrFileNotFound if the file does not exist.
	TouchLastAccessed(ctx context.Context, id string) error

	// DeleteFile removes the file row together with its chunk rows and
	// any pending replication entries, in one transaction. Object
	// deletion on the storage nodes is the caller's job.
	// Returns metadata.ErrFileNotFound if the file does not exist.
	DeleteFile(ctx context.Context, id string) error

	// CountFiles returns the number of stored files.
	CountFiles(ctx context.Context) (int64, error)

	// ============================================================================
	// CHUNK OPERATIONS
	// ============================================================================

	// CreateChunk inserts a chunk row. The unique index on
	// (file_id, chunk_number, is_replica) is the serialization point
	// for concurrent writers: the loser gets metadata.ErrConflict.
	CreateChunk(ctx context.Context, chunk *metadata.Chunk) error

	// CreateFileWithChunk inserts the file row and its first committed
	// chunk in one transaction, so a file is never visible without at
	// least one chunk row. If the file row already exists only the
	// chunk is inserted. Chunk uniqueness races still surface as
	// metadata.ErrConflict.
	CreateFileWithChunk(ctx context.Context, file *metadata.StoredFile, chunk *metadata.Chunk) error

	// GetChunk retrieves a chunk by ID with its node preloaded.
	// Returns metadata.ErrChunkNotFound if it does not exist.
	GetChunk(ctx context.Context, id string) (*metadata.Chunk, error)

	// GetPrimaryChunk retrieves the primary row for (fileID, number)
	// with its node preloaded.
	// Returns metadata.ErrChunkNotFound if it does not exist.
	GetPrimaryChunk(ctx context.Context, fileID string, number int) (*metadata.Chunk, error)

	// ListChunksByFile returns every chunk row of a file (primaries and
	// replicas, any status) ordered by chunk number with primaries
	// before replicas, nodes preloaded.
	ListChunksByFile(ctx context.Context, fileID string) ([]*metadata.Chunk, error)

	// ListPrimaryChunks returns a file's primary rows ordered by chunk
	// number, nodes preloaded.
	ListPrimaryChunks(ctx context.Context, fileID string) ([]*metadata.Chunk, error)

	// ListChunkCopies returns every row for (fileID, number): the
	// primary and all replicas, primary first, nodes preloaded.
	ListChunkCopies(ctx context.Context, fileID string, number int) ([]*metadata.Chunk, error)

	// ListChunksByStatus returns all chunk rows in the given status,
	// nodes preloaded. Used by verification sweeps.
	ListChunksByStatus(ctx context.Context, status metadata.ChunkStatus) ([]*metadata.Chunk, error)

	// ListChunksByNode returns all chunk rows placed on a node, nodes
	// preloaded.
	ListChunksByNode(ctx context.Context, nodeID uint) ([]*metadata.Chunk, error)

	// TransitionChunkStatus moves a chunk from one status to another
	// with a compare-and-swap. Returns metadata.ErrInvalidStatus if
	// the machine does not allow the edge, metadata.ErrChunkNotFound
	// if the chunk does not exist, and metadata.ErrConflict if the
	// chunk was no longer in `from` (a concurrent writer won).
	TransitionChunkStatus(ctx context.Context, id string, from, to metadata.ChunkStatus) error

	// RepairChunkRow atomically points a chunk at a fresh object key
	// and marks it uploaded again. Only corrupt or failed rows are
	// eligible; anything else returns metadata.ErrInvalidStatus.
	// Returns metadata.ErrChunkNotFound if the chunk does not exist.
	RepairChunkRow(ctx context.Context, id string, objectKey string) error

	// CountUploadedReplicas returns how many uploaded replica rows
	// exist for (fileID, number).
	CountUploadedReplicas(ctx context.Context, fileID string, number int) (int64, error)

	// NodesHoldingChunk returns the IDs of nodes that already hold any
	// row (primary or replica, any status) for (fileID, number).
	// Replica placement excludes these.
	NodesHoldingChunk(ctx context.Context, fileID string, number int) ([]uint, error)

	// DistinctChunkNumbers returns the sorted distinct chunk numbers
	// recorded for a file, regardless of status.
	DistinctChunkNumbers(ctx context.Context, fileID string) ([]int, error)

	// ChunkStatusCounts returns the number of chunk rows per status
	// across the whole store.
	ChunkStatusCounts(ctx context.Context) (map[metadata.ChunkStatus]int64, error)

	// ChunkStatusCountsByNode returns the number of chunk rows per
	// status placed on one node.
	ChunkStatusCountsByNode(ctx context.Context, nodeID uint) (map[metadata.ChunkStatus]int64, error)

	// CountChunks returns the total number of chunk rows.
	CountChunks(ctx context.Context) (int64, error)

	// ============================================================================
	// PENDING REPLICATION OPERATIONS
	// ============================================================================

	// EnqueuePending records that a replica of chunkID should be
	// created on targetNodeID once it comes back. Enqueueing the same
	// pair twice is a no-op.
	EnqueuePending(ctx context.Context, chunkID string, targetNodeID uint) error

	// ListPending returns the whole queue, oldest first, with chunks
	// and target nodes preloaded.
	ListPending(ctx context.Context) ([]*metadata.PendingReplication, error)

	// ListPendingForNode returns the queue entries targeting one node,
	// oldest first, with chunks preloaded.
	ListPendingForNode(ctx context.Context, nodeID uint) ([]*metadata.PendingReplication, error)

	// PendingTargetNodeIDs returns the distinct node IDs that have
	// queue entries waiting on them.
	PendingTargetNodeIDs(ctx context.Context) ([]uint, error)

	// ClaimPending attempts to claim a queue entry for processing by
	// bumping its attempt counter from the value the caller observed.
	// Returns true if the claim won; false means another worker
	// already claimed it (or the row is gone) and the caller must skip
	// it.
	ClaimPending(ctx context.Context, id uint, seenAttempts int) (bool, error)

	// DeletePending removes a queue entry, normally after the replica
	// was created.
	// Returns metadata.ErrPendingNotFound if the entry does not exist.
	DeletePending(ctx context.Context, id uint) error

	// CountPending returns the queue length.
	CountPending(ctx context.Context) (int64, error)

	// ============================================================================
	// LIFECYCLE
	// ============================================================================

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection pool.
	Close() error
}
