// Package redundancy keeps chunk copies at their configured count and
// in a verified state: replica creation, integrity sweeps, repair of
// corrupt primaries from replicas, and the pending-replication backlog
// for nodes that were down when a replica was wanted.
package redundancy

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"

	"github.com/marmos91/shardstore/internal/logger"
	"github.com/marmos91/shardstore/pkg/backend"
	"github.com/marmos91/shardstore/pkg/cluster"
	"github.com/marmos91/shardstore/pkg/metadata"
	"github.com/marmos91/shardstore/pkg/metadata/store"
	"github.com/marmos91/shardstore/pkg/transfer"
)

// Errors surfaced by replication and repair.
var (
	// ErrNotReplicable refuses replication of a chunk that is itself a
	// replica, is not uploaded, or has no source node.
	ErrNotReplicable = errors.New("chunk not eligible for replication")

	// ErrSourceCorrupt means the source object no longer matches its
	// digest; the chunk was marked corrupt instead of being copied.
	ErrSourceCorrupt = errors.New("replication source corrupt")

	// ErrNoValidReplica means a repair found no replica whose bytes
	// still verify; the primary stays corrupt.
	ErrNoValidReplica = errors.New("no valid replica for repair")
)

// Invalidator is the slice of the file cache the manager needs: dropping
// a cached file after its chunk layout changed.
type Invalidator interface {
	Invalidate(fileID string)
}

// Config holds the redundancy policy.
type Config struct {
	// MinReplicas is the minimum number of uploaded replicas every
	// uploaded primary should have. Default 1.
	MinReplicas int
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.MinReplicas <= 0 {
		c.MinReplicas = 1
	}
}

// Manager implements replication, verification, and repair.
type Manager struct {
	store       store.Store
	dialer      backend.Dialer
	monitor     *cluster.Monitor
	invalidator Invalidator
	config      Config
}

// NewManager creates a redundancy manager. invalidator may be nil.
func NewManager(
	s store.Store,
	dialer backend.Dialer,
	monitor *cluster.Monitor,
	invalidator Invalidator,
	config Config,
) *Manager {
	config.ApplyDefaults()
	return &Manager{
		store:       s,
		dialer:      dialer,
		monitor:     monitor,
		invalidator: invalidator,
		config:      config,
	}
}

// MinReplicas returns the configured minimum replica count.
func (m *Manager) MinReplicas() int {
	return m.config.MinReplicas
}

// ReplicateChunk is the best-effort entry point the Chunker calls after
// a primary commits. Implements transfer.Replicator.
func (m *Manager) ReplicateChunk(ctx context.Context, chunk *metadata.Chunk) error {
	_, err := m.CreateReplicasForChunk(ctx, chunk, nil)
	return err
}

// CreateReplicasForChunk brings one primary up to the minimum replica
// count. Targets are active nodes not excluded and not already holding
// a copy of the chunk number, tried lowest load first (ties by
// priority, then ID). Unreachable targets are enqueued in the pending
// backlog instead of failing the call. Returns how many replicas were
// actually created now.
func (m *Manager) CreateReplicasForChunk(ctx context.Context, chunk *metadata.Chunk, exclude []uint) (int, error) {
	if chunk.IsReplica {
		return 0, fmt.Errorf("%w: chunk %s is a replica", ErrNotReplicable, chunk.ID)
	}
	if chunk.Status != metadata.ChunkUploaded {
		return 0, fmt.Errorf("%w: chunk %s has status %s", ErrNotReplicable, chunk.ID, chunk.Status)
	}
	if chunk.NodeID == nil {
		return 0, fmt.Errorf("%w: chunk %s has no source node", ErrNotReplicable, chunk.ID)
	}

	count, err := m.store.CountUploadedReplicas(ctx, chunk.FileID, chunk.ChunkNumber)
	if err != nil {
		return 0, fmt.Errorf("count replicas: %w", err)
	}
	needed := m.config.MinReplicas - int(count)
	if needed <= 0 {
		return 0, nil
	}

	file, err := m.store.GetFile(ctx, chunk.FileID)
	if err != nil {
		return 0, fmt.Errorf("load file: %w", err)
	}

	data, err := m.readVerifiedSource(ctx, chunk)
	if err != nil {
		return 0, err
	}

	targets, err := m.replicaTargets(ctx, chunk, exclude)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, target := range targets {
		if created >= needed {
			break
		}

		if !m.monitor.Available(ctx, target) {
			if err := m.store.EnqueuePending(ctx, chunk.ID, target.ID); err != nil {
				logger.Warn("Enqueueing pending replication failed",
					"chunk_id", chunk.ID, "target", target.Name, "error", err)
				continue
			}
			logger.Info("Replication target unreachable, queued",
				"chunk_id", chunk.ID, "chunk", chunk.ChunkNumber, "target", target.Name)
			continue
		}

		if err := m.writeReplica(ctx, file, chunk, target, data); err != nil {
			if errors.Is(err, metadata.ErrConflict) {
				// Another worker replicated to this node first.
				continue
			}
			logger.Warn("Replica creation failed",
				"chunk_id", chunk.ID, "target", target.Name, "error", err)
			continue
		}
		created++
	}

	if created > 0 {
		m.monitor.InvalidateLoadStats()
	}
	return created, nil
}

// CreateReplicaOnNode creates one replica on a specific target. Used by
// the pending-backlog drain. A target that already holds a copy makes
// the call a successful no-op.
func (m *Manager) CreateReplicaOnNode(ctx context.Context, chunk *metadata.Chunk, target *metadata.Node) error {
	if chunk.IsReplica {
		return fmt.Errorf("%w: chunk %s is a replica", ErrNotReplicable, chunk.ID)
	}
	if chunk.Status != metadata.ChunkUploaded {
		return fmt.Errorf("%w: chunk %s has status %s", ErrNotReplicable, chunk.ID, chunk.Status)
	}

	holding, err := m.store.NodesHoldingChunk(ctx, chunk.FileID, chunk.ChunkNumber)
	if err != nil {
		return fmt.Errorf("list holding nodes: %w", err)
	}
	for _, id := range holding {
		if id == target.ID {
			return nil
		}
	}

	file, err := m.store.GetFile(ctx, chunk.FileID)
	if err != nil {
		return fmt.Errorf("load file: %w", err)
	}

	data, err := m.readVerifiedSource(ctx, chunk)
	if err != nil {
		return err
	}

	if err := m.writeReplica(ctx, file, chunk, target, data); err != nil {
		if errors.Is(err, metadata.ErrConflict) {
			return nil
		}
		return err
	}

	m.monitor.InvalidateLoadStats()
	return nil
}

// readVerifiedSource fetches the primary's object and re-verifies it
// against the stored digest before any copy is made. A mismatch marks
// the source corrupt and aborts.
func (m *Manager) readVerifiedSource(ctx context.Context, chunk *metadata.Chunk) ([]byte, error) {
	source := chunk.Node
	if source == nil {
		n, err := m.store.GetNode(ctx, *chunk.NodeID)
		if err != nil {
			return nil, fmt.Errorf("load source node: %w", err)
		}
		source = n
	}

	client, err := m.dialer.Dial(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("dial source node %s: %w", source.Name, err)
	}

	obj, err := client.GetObject(ctx, source.Bucket, chunk.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read source object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read source object: %w", err)
	}

	digest := sha256.Sum256(data)
	if hex.EncodeToString(digest[:]) != chunk.Digest {
		logger.Error("Replication source failed digest check, marking corrupt",
			"chunk_id", chunk.ID, "file_id", chunk.FileID, "chunk", chunk.ChunkNumber,
			"node", source.Name)
		m.markStatus(ctx, chunk, metadata.ChunkUploaded, metadata.ChunkCorrupt)
		return nil, fmt.Errorf("chunk %s: %w", chunk.ID, ErrSourceCorrupt)
	}
	return data, nil
}

// replicaTargets returns eligible target nodes ordered lowest load
// first, then priority, then ID.
func (m *Manager) replicaTargets(ctx context.Context, chunk *metadata.Chunk, exclude []uint) ([]*metadata.Node, error) {
	nodes, err := m.store.ListNodesByStatus(ctx, metadata.NodeActive)
	if err != nil {
		return nil, fmt.Errorf("list active nodes: %w", err)
	}

	holding, err := m.store.NodesHoldingChunk(ctx, chunk.FileID, chunk.ChunkNumber)
	if err != nil {
		return nil, fmt.Errorf("list holding nodes: %w", err)
	}

	skip := make(map[uint]bool, len(exclude)+len(holding))
	for _, id := range exclude {
		skip[id] = true
	}
	for _, id := range holding {
		skip[id] = true
	}

	loads, err := m.monitor.LoadStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}

	targets := make([]*metadata.Node, 0, len(nodes))
	for _, node := range nodes {
		if !skip[node.ID] {
			targets = append(targets, node)
		}
	}

	sort.SliceStable(targets, func(i, j int) bool {
		li, lj := loads[targets[i].ID].ChunkCount, loads[targets[j].ID].ChunkCount
		if li != lj {
			return li < lj
		}
		if targets[i].Priority != targets[j].Priority {
			return targets[i].Priority < targets[j].Priority
		}
		return targets[i].ID < targets[j].ID
	})

	return targets, nil
}

// writeReplica stores the verified bytes on the target and commits the
// replica row. The unique index is re-checked by the insert itself;
// losing that race surfaces as metadata.ErrConflict and the written
// object is removed.
func (m *Manager) writeReplica(
	ctx context.Context,
	file *metadata.StoredFile,
	chunk *metadata.Chunk,
	target *metadata.Node,
	data []byte,
) error {
	client, err := m.dialer.Dial(ctx, target)
	if err != nil {
		return fmt.Errorf("dial target node %s: %w", target.Name, err)
	}
	if err := client.EnsureBucket(ctx, target.Bucket); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	key := transfer.ReplicaObjectKey(file.Owner, chunk.FileID, chunk.ChunkNumber)
	if err := client.PutObject(ctx, target.Bucket, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("write replica object: %w", err)
	}

	replica := &metadata.Chunk{
		ID:          uuid.NewString(),
		FileID:      chunk.FileID,
		ChunkNumber: chunk.ChunkNumber,
		IsReplica:   true,
		SizeBytes:   chunk.SizeBytes,
		Digest:      chunk.Digest,
		ObjectKey:   key,
		NodeID:      &target.ID,
		Status:      metadata.ChunkUploaded,
	}
	if err := m.store.CreateChunk(ctx, replica); err != nil {
		if removeErr := client.RemoveObject(ctx, target.Bucket, key); removeErr != nil {
			logger.Warn("Removing orphaned replica object failed",
				"target", target.Name, "key", key, "error", removeErr)
		}
		return err
	}

	logger.Info("Replica created",
		"file_id", chunk.FileID, "chunk", chunk.ChunkNumber, "target", target.Name)
	return nil
}

func (m *Manager) markStatus(ctx context.Context, chunk *metadata.Chunk, from, to metadata.ChunkStatus) {
	err := m.store.TransitionChunkStatus(ctx, chunk.ID, from, to)
	if err != nil && !errors.Is(err, metadata.ErrConflict) {
		logger.Warn("Chunk status transition failed",
			"chunk_id", chunk.ID, "from", from, "to", to, "error", err)
	}
}
