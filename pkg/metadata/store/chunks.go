package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/marmos91/shardstore/pkg/metadata"
)

// ============================================
// CHUNK OPERATIONS
// ============================================

func (s *GORMStore) CreateChunk(ctx context.Context, chunk *metadata.Chunk) error {
	if !chunk.Status.IsValid() {
		return metadata.ErrInvalidStatus
	}
	if err := s.db.WithContext(ctx).Create(chunk).Error; err != nil {
		if isUniqueConstraintError(err) {
			return metadata.ErrConflict
		}
		return err
	}
	return nil
}

func (s *GORMStore) CreateFileWithChunk(ctx context.Context, file *metadata.StoredFile, chunk *metadata.Chunk) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&metadata.StoredFile{}).
			Where("id = ?", file.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			if err := tx.Create(file).Error; err != nil {
				return err
			}
		}
		return tx.Create(chunk).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return metadata.ErrConflict
		}
		return err
	}
	return nil
}

func (s *GORMStore) GetChunk(ctx context.Context, id string) (*metadata.Chunk, error) {
	var chunk metadata.Chunk
	err := s.db.WithContext(ctx).
		Preload("Node").
		Where("id = ?", id).
		First(&chunk).Error
	if err != nil {
		return nil, convertNotFoundError(err, metadata.ErrChunkNotFound)
	}
	return &chunk, nil
}

func (s *GORMStore) GetPrimaryChunk(ctx context.Context, fileID string, number int) (*metadata.Chunk, error) {
	var chunk metadata.Chunk
	err := s.db.WithContext(ctx).
		Preload("Node").
		Where("file_id = ? AND chunk_number = ? AND is_replica = ?", fileID, number, false).
		First(&chunk).Error
	if err != nil {
		return nil, convertNotFoundError(err, metadata.ErrChunkNotFound)
	}
	return &chunk, nil
}

func (s *GORMStore) ListChunksByFile(ctx context.Context, fileID string) ([]*metadata.Chunk, error) {
	var chunks []*metadata.Chunk
	err := s.db.WithContext(ctx).
		Preload("Node").
		Where("file_id = ?", fileID).
		Order("chunk_number ASC, is_replica ASC, id ASC").
		Find(&chunks).Error
	return chunks, err
}

func (s *GORMStore) ListPrimaryChunks(ctx context.Context, fileID string) ([]*metadata.Chunk, error) {
	var chunks []*metadata.Chunk
	err := s.db.WithContext(ctx).
		Preload("Node").
		Where("file_id = ? AND is_replica = ?", fileID, false).
		Order("chunk_number ASC").
		Find(&chunks).Error
	return chunks, err
}

func (s *GORMStore) ListChunkCopies(ctx context.Context, fileID string, number int) ([]*metadata.Chunk, error) {
	var chunks []*metadata.Chunk
	err := s.db.WithContext(ctx).
		Preload("Node").
		Where("file_id = ? AND chunk_number = ?", fileID, number).
		Order("is_replica ASC, id ASC").
		Find(&chunks).Error
	return chunks, err
}

func (s *GORMStore) ListChunksByStatus(ctx context.Context, status metadata.ChunkStatus) ([]*metadata.Chunk, error) {
	var chunks []*metadata.Chunk
	err := s.db.WithContext(ctx).
		Preload("Node").
		Where("status = ?", status).
		Order("file_id ASC, chunk_number ASC, is_replica ASC").
		Find(&chunks).Error
	return chunks, err
}

func (s *GORMStore) ListChunksByNode(ctx context.Context, nodeID uint) ([]*metadata.Chunk, error) {
	var chunks []*metadata.Chunk
	err := s.db.WithContext(ctx).
		Preload("Node").
		Where("node_id = ?", nodeID).
		Order("file_id ASC, chunk_number ASC, is_replica ASC").
		Find(&chunks).Error
	return chunks, err
}

func (s *GORMStore) TransitionChunkStatus(ctx context.Context, id string, from, to metadata.ChunkStatus) error {
	if !from.IsValid() || !to.IsValid() {
		return metadata.ErrInvalidStatus
	}
	if !from.CanTransitionTo(to) {
		return metadata.ErrInvalidStatus
	}

	// Compare-and-swap on the current status; a concurrent writer that
	// moved the chunk first wins and we report the conflict.
	result := s.db.WithContext(ctx).
		Model(&metadata.Chunk{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).
			Model(&metadata.Chunk{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return metadata.ErrChunkNotFound
		}
		return metadata.ErrConflict
	}
	return nil
}

func (s *GORMStore) RepairChunkRow(ctx context.Context, id string, objectKey string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chunk metadata.Chunk
		if err := tx.Where("id = ?", id).First(&chunk).Error; err != nil {
			return convertNotFoundError(err, metadata.ErrChunkNotFound)
		}
		if chunk.Status != metadata.ChunkCorrupt && chunk.Status != metadata.ChunkFailed {
			return metadata.ErrInvalidStatus
		}

		return tx.Model(&chunk).Updates(map[string]any{
			"object_key": objectKey,
			"status":     metadata.ChunkUploaded,
		}).Error
	})
}

func (s *GORMStore) CountUploadedReplicas(ctx context.Context, fileID string, number int) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&metadata.Chunk{}).
		Where("file_id = ? AND chunk_number = ? AND is_replica = ? AND status = ?",
			fileID, number, true, metadata.ChunkUploaded).
		Count(&count).Error
	return count, err
}

func (s *GORMStore) NodesHoldingChunk(ctx context.Context, fileID string, number int) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&metadata.Chunk{}).
		Where("file_id = ? AND chunk_number = ? AND node_id IS NOT NULL", fileID, number).
		Distinct().
		Pluck("node_id", &ids).Error
	return ids, err
}

func (s *GORMStore) DistinctChunkNumbers(ctx context.Context, fileID string) ([]int, error) {
	var numbers []int
	err := s.db.WithContext(ctx).
		Model(&metadata.Chunk{}).
		Where("file_id = ?", fileID).
		Distinct().
		Order("chunk_number ASC").
		Pluck("chunk_number", &numbers).Error
	return numbers, err
}

func (s *GORMStore) ChunkStatusCounts(ctx context.Context) (map[metadata.ChunkStatus]int64, error) {
	return s.chunkStatusCounts(ctx, s.db.WithContext(ctx).Model(&metadata.Chunk{}))
}

func (s *GORMStore) ChunkStatusCountsByNode(ctx context.Context, nodeID uint) (map[metadata.ChunkStatus]int64, error) {
	return s.chunkStatusCounts(ctx,
		s.db.WithContext(ctx).Model(&metadata.Chunk{}).Where("node_id = ?", nodeID))
}

func (s *GORMStore) chunkStatusCounts(ctx context.Context, query *gorm.DB) (map[metadata.ChunkStatus]int64, error) {
	type row struct {
		Status metadata.ChunkStatus
		Count  int64
	}
	var rows []row
	if err := query.
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[metadata.ChunkStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (s *GORMStore) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&metadata.Chunk{}).Count(&count).Error
	return count, err
}
