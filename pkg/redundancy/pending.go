package redundancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/shardstore/internal/logger"
	"github.com/marmos91/shardstore/pkg/metadata"
)

// DrainStats summarizes one pass over the pending-replication backlog.
type DrainStats struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Deferred  int `json:"deferred"`
	GaveUp    int `json:"gave_up"`
	Lost      int `json:"lost"`
}

// DrainConfig holds the backlog policy.
type DrainConfig struct {
	// MaxAttempts is the per-row give-up threshold while the target
	// stays unreachable. Default 5. A row past the threshold is left
	// alone until its target answers a probe again; reachability always
	// wins over the counter, so a node that comes back gets its replica
	// no matter how often it was tried while down.
	MaxAttempts int
}

// ApplyDefaults fills in missing configuration with default values.
func (c *DrainConfig) ApplyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
}

// DrainPending walks the whole backlog once. Every row is claimed
// through its attempt counter before any work happens, so two drainers
// never replicate the same row twice.
func (m *Manager) DrainPending(ctx context.Context, config DrainConfig) (DrainStats, error) {
	config.ApplyDefaults()

	entries, err := m.store.ListPending(ctx)
	if err != nil {
		return DrainStats{}, fmt.Errorf("list pending replications: %w", err)
	}
	return m.drainEntries(ctx, entries, config)
}

// DrainPendingForNode drains only the rows targeting one node. The
// monitor calls this on an offline-to-online transition.
func (m *Manager) DrainPendingForNode(ctx context.Context, nodeID uint, config DrainConfig) (DrainStats, error) {
	config.ApplyDefaults()

	entries, err := m.store.ListPendingForNode(ctx, nodeID)
	if err != nil {
		return DrainStats{}, fmt.Errorf("list pending replications: %w", err)
	}
	return m.drainEntries(ctx, entries, config)
}

func (m *Manager) drainEntries(ctx context.Context, entries []*metadata.PendingReplication, config DrainConfig) (DrainStats, error) {
	var stats DrainStats

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Processed++

		target := entry.TargetNode
		if target == nil {
			n, err := m.store.GetNode(ctx, entry.TargetNodeID)
			if err != nil {
				logger.Warn("Pending target node gone, dropping entry",
					"entry_id", entry.ID, "target_node_id", entry.TargetNodeID)
				m.deletePending(ctx, entry.ID)
				stats.Lost++
				continue
			}
			target = n
		}

		reachable := target.IsActive() && m.monitor.Available(ctx, target)

		if !reachable {
			if entry.Attempts >= config.MaxAttempts {
				stats.GaveUp++
				continue
			}
			// Claim bumps the counter and stamps the attempt.
			if ok, err := m.store.ClaimPending(ctx, entry.ID, entry.Attempts); err != nil || !ok {
				continue
			}
			stats.Deferred++
			continue
		}

		if ok, err := m.store.ClaimPending(ctx, entry.ID, entry.Attempts); err != nil || !ok {
			// Another drainer holds this row.
			continue
		}

		chunk := entry.Chunk
		if chunk == nil {
			c, err := m.store.GetChunk(ctx, entry.ChunkID)
			if err != nil {
				logger.Warn("Pending chunk gone, dropping entry",
					"entry_id", entry.ID, "chunk_id", entry.ChunkID)
				m.deletePending(ctx, entry.ID)
				stats.Lost++
				continue
			}
			chunk = c
		}

		if err := m.CreateReplicaOnNode(ctx, chunk, target); err != nil {
			if errors.Is(err, ErrNotReplicable) || errors.Is(err, ErrSourceCorrupt) {
				// The source can never serve this entry; keeping the
				// row would retry forever.
				logger.Warn("Pending replication unserviceable, dropping",
					"entry_id", entry.ID, "chunk_id", entry.ChunkID, "error", err)
				m.deletePending(ctx, entry.ID)
				stats.Lost++
				continue
			}
			logger.Warn("Pending replication attempt failed",
				"entry_id", entry.ID, "chunk_id", entry.ChunkID,
				"target", target.Name, "error", err)
			stats.Deferred++
			continue
		}

		m.deletePending(ctx, entry.ID)
		stats.Created++
	}

	if stats.Processed > 0 {
		logger.Info("Pending backlog drained",
			"processed", stats.Processed, "created", stats.Created,
			"deferred", stats.Deferred, "gave_up", stats.GaveUp, "lost", stats.Lost)
	}
	return stats, nil
}

func (m *Manager) deletePending(ctx context.Context, id uint) {
	if err := m.store.DeletePending(ctx, id); err != nil && !errors.Is(err, metadata.ErrPendingNotFound) {
		logger.Warn("Deleting pending entry failed", "entry_id", id, "error", err)
	}
}
