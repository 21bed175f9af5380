package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/marmos91/shardstore/pkg/metadata"
)

// ============================================
// FILE OPERATIONS
// ============================================

func (s *GORMStore) CreateFile(ctx context.Context, file *metadata.StoredFile) error {
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		if isUniqueConstraintError(err) {
			return metadata.ErrConflict
		}
		return err
	}
	return nil
}

func (s *GORMStore) GetFile(ctx context.Context, id string) (*metadata.StoredFile, error) {
	var file metadata.StoredFile
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&file).Error; err != nil {
		return nil, convertNotFoundError(err, metadata.ErrFileNotFound)
	}
	return &file, nil
}

func (s *GORMStore) ListFiles(ctx context.Context) ([]*metadata.StoredFile, error) {
	var files []*metadata.StoredFile
	err := s.db.WithContext(ctx).Order("uploaded_at DESC").Find(&files).Error
	return files, err
}

func (s *GORMStore) ListFilesByOwner(ctx context.Context, owner string) ([]*metadata.StoredFile, error) {
	var files []*metadata.StoredFile
	err := s.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("uploaded_at DESC").
		Find(&files).Error
	return files, err
}

func (s *GORMStore) FinalizeFile(ctx context.Context, id string, sizeBytes int64, digest string) error {
	result := s.db.WithContext(ctx).
		Model(&metadata.StoredFile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"size_bytes":        sizeBytes,
			"whole_file_digest": digest,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return metadata.ErrFileNotFound
	}
	return nil
}

func (s *GORMStore) TouchLastAccessed(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).
		Model(&metadata.StoredFile{}).
		Where("id = ?", id).
		Update("last_accessed", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return metadata.ErrFileNotFound
	}
	return nil
}

func (s *GORMStore) DeleteFile(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var file metadata.StoredFile
		if err := tx.Where("id = ?", id).First(&file).Error; err != nil {
			return convertNotFoundError(err, metadata.ErrFileNotFound)
		}

		// Pending rows reference chunk rows; delete them first.
		if err := tx.Where("chunk_id IN (?)",
			tx.Model(&metadata.Chunk{}).Select("id").Where("file_id = ?", id),
		).Delete(&metadata.PendingReplication{}).Error; err != nil {
			return err
		}

		if err := tx.Where("file_id = ?", id).Delete(&metadata.Chunk{}).Error; err != nil {
			return err
		}

		return tx.Delete(&file).Error
	})
}

func (s *GORMStore) CountFiles(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&metadata.StoredFile{}).Count(&count).Error
	return count, err
}
