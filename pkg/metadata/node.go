package metadata

import (
	"fmt"
	"time"
)

// NodeStatus is the administrative status of a storage node.
type NodeStatus string

const (
	// NodeActive nodes participate in placement, replication and reads.
	NodeActive NodeStatus = "active"
	// NodeInactive nodes are administratively removed from all traffic.
	NodeInactive NodeStatus = "inactive"
	// NodeMaintenance nodes are temporarily out for maintenance.
	NodeMaintenance NodeStatus = "maintenance"
)

// IsValid checks if the status is a known NodeStatus.
func (s NodeStatus) IsValid() bool {
	return s == NodeActive || s == NodeInactive || s == NodeMaintenance
}

// BackendKind selects the object-store client implementation for a node.
type BackendKind string

const (
	// BackendMinIO speaks the MinIO S3 API and is the default deployment.
	BackendMinIO BackendKind = "minio"
	// BackendS3 uses the AWS S3 SDK.
	BackendS3 BackendKind = "s3"
	// BackendMemory is an in-process backend used by tests.
	BackendMemory BackendKind = "memory"
)

// IsValid checks if the kind is a known BackendKind.
func (k BackendKind) IsValid() bool {
	return k == BackendMinIO || k == BackendS3 || k == BackendMemory
}

// Node is a configured backend object-storage endpoint.
//
// Nodes are created by operators and mutated only by administrative
// actions and primary election. A node holding chunks is never deleted.
type Node struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	Name      string      `gorm:"uniqueIndex;not null;size:100" json:"name"`
	Address   string      `gorm:"not null;size:255" json:"address"` // host:port
	AccessKey string      `gorm:"size:255" json:"-"`
	SecretKey string      `gorm:"size:255" json:"-"`
	Bucket    string      `gorm:"not null;size:255" json:"bucket"`
	UseSSL    bool        `gorm:"default:false" json:"use_ssl"`
	Backend   BackendKind `gorm:"not null;default:minio;size:20" json:"backend"`

	// Priority orders primary election and tie-breaks; lower is preferred.
	Priority int `gorm:"not null;default:100;index" json:"priority"`

	Status    NodeStatus `gorm:"not null;default:active;size:20;index" json:"status"`
	IsPrimary bool       `gorm:"not null;default:false" json:"is_primary"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Node.
func (Node) TableName() string {
	return "nodes"
}

// IsActive reports whether the node is administratively active.
func (n *Node) IsActive() bool {
	return n.Status == NodeActive
}

func (n *Node) String() string {
	return fmt.Sprintf("%s (%s)", n.Name, n.Address)
}
