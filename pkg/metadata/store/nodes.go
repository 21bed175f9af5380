package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/marmos91/shardstore/pkg/metadata"
)

// ============================================
// NODE OPERATIONS
// ============================================

func (s *GORMStore) CreateNode(ctx context.Context, node *metadata.Node) error {
	if !node.Status.IsValid() {
		return metadata.ErrInvalidStatus
	}
	if err := s.db.WithContext(ctx).Create(node).Error; err != nil {
		if isUniqueConstraintError(err) {
			return metadata.ErrConflict
		}
		return err
	}
	return nil
}

func (s *GORMStore) GetNode(ctx context.Context, id uint) (*metadata.Node, error) {
	var node metadata.Node
	if err := s.db.WithContext(ctx).First(&node, id).Error; err != nil {
		return nil, convertNotFoundError(err, metadata.ErrNodeNotFound)
	}
	return &node, nil
}

func (s *GORMStore) GetNodeByName(ctx context.Context, name string) (*metadata.Node, error) {
	var node metadata.Node
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&node).Error; err != nil {
		return nil, convertNotFoundError(err, metadata.ErrNodeNotFound)
	}
	return &node, nil
}

func (s *GORMStore) ListNodes(ctx context.Context) ([]*metadata.Node, error) {
	var nodes []*metadata.Node
	err := s.db.WithContext(ctx).Order("priority ASC, id ASC").Find(&nodes).Error
	return nodes, err
}

func (s *GORMStore) ListNodesByStatus(ctx context.Context, status metadata.NodeStatus) ([]*metadata.Node, error) {
	var nodes []*metadata.Node
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("priority ASC, id ASC").
		Find(&nodes).Error
	return nodes, err
}

func (s *GORMStore) UpdateNodeStatus(ctx context.Context, id uint, status metadata.NodeStatus) error {
	if !status.IsValid() {
		return metadata.ErrInvalidStatus
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"status": status}
		// A non-active node must never carry the primary flag.
		if status != metadata.NodeActive {
			updates["is_primary"] = false
		}

		result := tx.Model(&metadata.Node{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return metadata.ErrNodeNotFound
		}
		return nil
	})
}

func (s *GORMStore) UpdateNode(ctx context.Context, node *metadata.Node) error {
	var existing metadata.Node
	if err := s.db.WithContext(ctx).First(&existing, node.ID).Error; err != nil {
		return convertNotFoundError(err, metadata.ErrNodeNotFound)
	}

	return s.db.WithContext(ctx).
		Model(&existing).
		Select("Name", "Address", "AccessKey", "SecretKey", "Bucket", "UseSSL", "Backend", "Priority").
		Updates(node).Error
}

func (s *GORMStore) DeleteNode(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&metadata.Node{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return metadata.ErrNodeNotFound
	}
	return nil
}

func (s *GORMStore) ElectPrimary(ctx context.Context) (*metadata.Node, error) {
	var elected *metadata.Node

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Keep the current primary if it is still active.
		var current metadata.Node
		err := tx.Where("is_primary = ? AND status = ?", true, metadata.NodeActive).
			First(&current).Error
		if err == nil {
			elected = &current
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		var candidate metadata.Node
		err = tx.Where("status = ?", metadata.NodeActive).
			Order("priority ASC, id ASC").
			First(&candidate).Error
		if err != nil {
			return convertNotFoundError(err, metadata.ErrNoActiveNodes)
		}

		// Clear every other flag in the same transaction so at most one
		// primary exists at any commit point.
		if err := tx.Model(&metadata.Node{}).
			Where("is_primary = ?", true).
			Update("is_primary", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&metadata.Node{}).
			Where("id = ?", candidate.ID).
			Update("is_primary", true).Error; err != nil {
			return err
		}

		candidate.IsPrimary = true
		elected = &candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return elected, nil
}

func (s *GORMStore) MarkPrimary(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var node metadata.Node
		if err := tx.First(&node, id).Error; err != nil {
			return convertNotFoundError(err, metadata.ErrNodeNotFound)
		}
		if node.Status != metadata.NodeActive {
			return metadata.ErrNoActiveNodes
		}

		if err := tx.Model(&metadata.Node{}).
			Where("is_primary = ?", true).
			Update("is_primary", false).Error; err != nil {
			return err
		}
		return tx.Model(&metadata.Node{}).
			Where("id = ?", id).
			Update("is_primary", true).Error
	})
}

func (s *GORMStore) PrimaryNode(ctx context.Context) (*metadata.Node, error) {
	var node metadata.Node
	err := s.db.WithContext(ctx).
		Where("is_primary = ? AND status = ?", true, metadata.NodeActive).
		First(&node).Error
	if err != nil {
		return nil, convertNotFoundError(err, metadata.ErrNodeNotFound)
	}
	return &node, nil
}

func (s *GORMStore) ClearPrimary(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Model(&metadata.Node{}).
		Where("is_primary = ?", true).
		Update("is_primary", false).Error
}

func (s *GORMStore) CountChunksPerNode(ctx context.Context) (map[uint]int64, error) {
	type row struct {
		NodeID uint
		Count  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&metadata.Chunk{}).
		Select("node_id, COUNT(*) AS count").
		Where("node_id IS NOT NULL").
		Group("node_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.NodeID] = r.Count
	}
	return counts, nil
}
