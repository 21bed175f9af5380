// Package cluster manages the set of storage nodes: the administrative
// registry, the liveness monitor with its cached load statistics, and
// chunk placement.
package cluster

import (
	"context"
	"fmt"

	"github.com/marmos91/shardstore/internal/logger"
	"github.com/marmos91/shardstore/pkg/metadata"
	"github.com/marmos91/shardstore/pkg/metadata/store"
)

// Registry is the administrative surface over the node set. All writes
// go through the metadata store's transactions; the registry itself
// keeps no state.
type Registry struct {
	store store.Store
}

// NewRegistry creates a registry over the metadata store.
func NewRegistry(s store.Store) *Registry {
	return &Registry{store: s}
}

// AddNodeParams are the operator-supplied settings for a new node.
type AddNodeParams struct {
	Name      string
	Address   string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Backend   metadata.BackendKind
	Priority  int
	Primary   bool
}

// AddNode registers a storage node. When Primary is set the node is
// promoted after creation, demoting any current primary.
func (r *Registry) AddNode(ctx context.Context, params AddNodeParams) (*metadata.Node, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("node name is required")
	}
	if params.Address == "" {
		return nil, fmt.Errorf("node address is required")
	}
	if params.Bucket == "" {
		return nil, fmt.Errorf("node bucket is required")
	}

	backend := params.Backend
	if backend == "" {
		backend = metadata.BackendMinIO
	}
	if !backend.IsValid() {
		return nil, fmt.Errorf("unsupported backend kind %q", params.Backend)
	}

	priority := params.Priority
	if priority == 0 {
		priority = 100
	}

	node := &metadata.Node{
		Name:      params.Name,
		Address:   params.Address,
		AccessKey: params.AccessKey,
		SecretKey: params.SecretKey,
		Bucket:    params.Bucket,
		UseSSL:    params.UseSSL,
		Backend:   backend,
		Priority:  priority,
		Status:    metadata.NodeActive,
	}

	if err := r.store.CreateNode(ctx, node); err != nil {
		return nil, fmt.Errorf("create node %s: %w", params.Name, err)
	}

	if params.Primary {
		if err := r.store.MarkPrimary(ctx, node.ID); err != nil {
			return nil, fmt.Errorf("mark node %s primary: %w", params.Name, err)
		}
		node.IsPrimary = true
	}

	logger.Info("Node registered",
		"node", node.Name, "address", node.Address, "priority", node.Priority,
		"primary", node.IsPrimary)
	return node, nil
}

// List returns all nodes ordered by priority.
func (r *Registry) List(ctx context.Context) ([]*metadata.Node, error) {
	return r.store.ListNodes(ctx)
}

// ListActive returns the active nodes ordered by ascending priority.
func (r *Registry) ListActive(ctx context.Context) ([]*metadata.Node, error) {
	return r.store.ListNodesByStatus(ctx, metadata.NodeActive)
}

// Get retrieves one node by ID.
func (r *Registry) Get(ctx context.Context, id uint) (*metadata.Node, error) {
	return r.store.GetNode(ctx, id)
}

// GetByName retrieves one node by its unique name.
func (r *Registry) GetByName(ctx context.Context, name string) (*metadata.Node, error) {
	return r.store.GetNodeByName(ctx, name)
}

// SetStatus changes a node's administrative status. Leaving active also
// drops the node's primary flag; callers run an election afterwards if
// they need a primary.
func (r *Registry) SetStatus(ctx context.Context, id uint, status metadata.NodeStatus) error {
	if err := r.store.UpdateNodeStatus(ctx, id, status); err != nil {
		return err
	}
	logger.Info("Node status changed", "node_id", id, "status", status)
	return nil
}

// MarkPrimary promotes a node to primary, demoting any current one in
// the same transaction.
func (r *Registry) MarkPrimary(ctx context.Context, id uint) error {
	return r.store.MarkPrimary(ctx, id)
}

// ClearPrimary removes the primary flag from all nodes.
func (r *Registry) ClearPrimary(ctx context.Context) error {
	return r.store.ClearPrimary(ctx)
}
