package metadata

import "time"

// PendingReplication records a replica that is wanted on a target node
// which was unreachable when replication was attempted. Rows are deleted
// on success and retained with an incremented attempt counter on failure.
type PendingReplication struct {
	ID uint `gorm:"primaryKey" json:"id"`

	ChunkID string `gorm:"not null;size:36;uniqueIndex:idx_pending_chunk_target" json:"chunk_id"`
	Chunk   *Chunk `gorm:"foreignKey:ChunkID" json:"chunk,omitempty"`

	TargetNodeID uint  `gorm:"not null;uniqueIndex:idx_pending_chunk_target;index" json:"target_node_id"`
	TargetNode   *Node `gorm:"foreignKey:TargetNodeID" json:"target_node,omitempty"`

	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for PendingReplication.
func (PendingReplication) TableName() string {
	return "pending_replications"
}
