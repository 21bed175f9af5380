package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/marmos91/shardstore/pkg/metadata"
	"github.com/marmos91/shardstore/pkg/metadata/store"
)

// ErrNoAvailableNodes is returned when no node can accept a placement.
// It always surfaces to the caller; uploads cannot proceed without it.
var ErrNoAvailableNodes = errors.New("no available nodes")

// Placement chooses target nodes for new chunks and source copies for
// reads, using the monitor's cached load map.
type Placement struct {
	store   store.Store
	monitor *Monitor
}

// NewPlacement creates a placement strategy over the store and monitor.
func NewPlacement(s store.Store, monitor *Monitor) *Placement {
	return &Placement{store: s, monitor: monitor}
}

// SelectForUpload chooses the active, currently-available node with the
// smallest chunk count, excluding the given node IDs. Ties break by
// lowest priority, then lowest ID. When no candidate remains the
// elected primary is the fallback if it is itself available; otherwise
// ErrNoAvailableNodes.
func (p *Placement) SelectForUpload(ctx context.Context, exclude []uint) (*metadata.Node, error) {
	nodes, err := p.store.ListNodesByStatus(ctx, metadata.NodeActive)
	if err != nil {
		return nil, fmt.Errorf("list active nodes: %w", err)
	}

	loads, err := p.monitor.LoadStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}

	excluded := make(map[uint]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	candidates := make([]*metadata.Node, 0, len(nodes))
	for _, node := range nodes {
		if excluded[node.ID] {
			continue
		}
		if load, ok := loads[node.ID]; ok && load.Available {
			candidates = append(candidates, node)
		}
	}

	if len(candidates) == 0 {
		return p.fallbackToPrimary(ctx, excluded)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		li, lj := loads[candidates[i].ID].ChunkCount, loads[candidates[j].ID].ChunkCount
		if li != lj {
			return li < lj
		}
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})

	return candidates[0], nil
}

// fallbackToPrimary tries the elected primary when regular selection
// found nothing. The primary still has to be available and not excluded.
func (p *Placement) fallbackToPrimary(ctx context.Context, excluded map[uint]bool) (*metadata.Node, error) {
	primary, err := p.monitor.ElectPrimary(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAvailableNodes, err)
	}
	if excluded[primary.ID] {
		return nil, ErrNoAvailableNodes
	}
	if !p.monitor.Available(ctx, primary) {
		return nil, ErrNoAvailableNodes
	}
	return primary, nil
}

// SelectForChunk chooses the node to store or serve one chunk number:
// the primary row's node when it is active and available, else a
// replica row's node, else a fresh upload selection for numbers no
// node holds yet.
func (p *Placement) SelectForChunk(ctx context.Context, fileID string, number int, exclude []uint) (*metadata.Node, error) {
	excluded := make(map[uint]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	copies, err := p.store.ListChunkCopies(ctx, fileID, number)
	if err != nil {
		return nil, fmt.Errorf("list chunk copies: %w", err)
	}

	// Copies arrive primary-first; the first usable node wins.
	for _, c := range copies {
		if c.Status != metadata.ChunkUploaded || c.Node == nil {
			continue
		}
		if excluded[c.Node.ID] || !c.Node.IsActive() {
			continue
		}
		if p.monitor.Available(ctx, c.Node) {
			return c.Node, nil
		}
	}

	return p.SelectForUpload(ctx, exclude)
}
