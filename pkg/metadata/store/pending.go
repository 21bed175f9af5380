package store

import (
	"context"
	"time"

	"github.com/marmos91/shardstore/pkg/metadata"
)

// ============================================
// PENDING REPLICATION OPERATIONS
// ============================================

func (s *GORMStore) EnqueuePending(ctx context.Context, chunkID string, targetNodeID uint) error {
	entry := &metadata.PendingReplication{
		ChunkID:      chunkID,
		TargetNodeID: targetNodeID,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		// The (chunk, target) pair is already queued; nothing to do.
		if isUniqueConstraintError(err) {
			return nil
		}
		return err
	}
	return nil
}

func (s *GORMStore) ListPending(ctx context.Context) ([]*metadata.PendingReplication, error) {
	var entries []*metadata.PendingReplication
	err := s.db.WithContext(ctx).
		Preload("Chunk").
		Preload("Chunk.Node").
		Preload("TargetNode").
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

func (s *GORMStore) ListPendingForNode(ctx context.Context, nodeID uint) ([]*metadata.PendingReplication, error) {
	var entries []*metadata.PendingReplication
	err := s.db.WithContext(ctx).
		Preload("Chunk").
		Preload("Chunk.Node").
		Preload("TargetNode").
		Where("target_node_id = ?", nodeID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

func (s *GORMStore) PendingTargetNodeIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&metadata.PendingReplication{}).
		Distinct().
		Pluck("target_node_id", &ids).Error
	return ids, err
}

func (s *GORMStore) ClaimPending(ctx context.Context, id uint, seenAttempts int) (bool, error) {
	// The attempt counter doubles as a claim token: only the worker whose
	// observed counter still matches gets to bump it.
	result := s.db.WithContext(ctx).
		Model(&metadata.PendingReplication{}).
		Where("id = ? AND attempts = ?", id, seenAttempts).
		Updates(map[string]any{
			"attempts":        seenAttempts + 1,
			"last_attempt_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GORMStore) DeletePending(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&metadata.PendingReplication{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return metadata.ErrPendingNotFound
	}
	return nil
}

func (s *GORMStore) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&metadata.PendingReplication{}).Count(&count).Error
	return count, err
}
