package cluster

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/marmos91/shardstore/internal/logger"
	"github.com/marmos91/shardstore/pkg/backend"
	"github.com/marmos91/shardstore/pkg/metadata"
	"github.com/marmos91/shardstore/pkg/metadata/store"
)

// NodeLoad is the cached load snapshot for one node.
type NodeLoad struct {
	ChunkCount int64 `json:"chunk_count"`
	Available  bool  `json:"available"`
}

// MonitorConfig holds the monitor's timing knobs.
type MonitorConfig struct {
	// ProbeTimeout bounds a single health probe. Default: 3s.
	ProbeTimeout time.Duration

	// LoadStatsTTL is how long the cached load map stays fresh.
	// Default: 60s.
	LoadStatsTTL time.Duration

	// Interval is the period of the background loop. Default: 60s.
	Interval time.Duration
}

// ApplyDefaults fills in missing configuration with default values.
func (c *MonitorConfig) ApplyDefaults() {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 3 * time.Second
	}
	if c.LoadStatsTTL <= 0 {
		c.LoadStatsTTL = 60 * time.Second
	}
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
}

// Monitor probes node liveness, maintains the TTL-cached load map used
// by placement, elects the primary node, and runs the background loop
// that detects offline-to-online transitions for nodes with queued
// replications.
type Monitor struct {
	store  store.Store
	dialer backend.Dialer
	config MonitorConfig

	// onOnline is invoked from the background loop when a node with
	// pending replications transitions from offline to online.
	onOnline func(node *metadata.Node)

	sf singleflight.Group

	mu        sync.RWMutex
	loads     map[uint]NodeLoad
	refreshed time.Time

	// lastSeen tracks availability between loop ticks, keyed by node ID.
	lastSeen map[uint]bool
}

// NewMonitor creates a monitor over the store and dialer.
func NewMonitor(s store.Store, dialer backend.Dialer, config MonitorConfig) *Monitor {
	config.ApplyDefaults()
	return &Monitor{
		store:    s,
		dialer:   dialer,
		config:   config,
		loads:    make(map[uint]NodeLoad),
		lastSeen: make(map[uint]bool),
	}
}

// OnNodeOnline registers the drain signal. Must be called before Run.
func (m *Monitor) OnNodeOnline(fn func(node *metadata.Node)) {
	m.onOnline = fn
}

// Available probes one node's readiness within the probe timeout.
func (m *Monitor) Available(ctx context.Context, node *metadata.Node) bool {
	ctx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	client, err := m.dialer.Dial(ctx, node)
	if err != nil {
		logger.Debug("Node dial failed", "node", node.Name, "error", err)
		return false
	}
	if err := client.HealthReady(ctx); err != nil {
		logger.Debug("Node probe failed", "node", node.Name, "error", err)
		return false
	}
	return true
}

// LoadStats returns the load map for all active nodes, refreshing it
// when older than the TTL. Concurrent callers share one refresh.
func (m *Monitor) LoadStats(ctx context.Context) (map[uint]NodeLoad, error) {
	m.mu.RLock()
	fresh := time.Since(m.refreshed) < m.config.LoadStatsTTL
	cached := m.loads
	m.mu.RUnlock()

	if fresh {
		return cached, nil
	}

	result, err, _ := m.sf.Do("load-stats", func() (any, error) {
		return m.refreshLoadStats(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[uint]NodeLoad), nil
}

// InvalidateLoadStats drops the cached load map so the next read
// refreshes. Called after placements that change chunk counts.
func (m *Monitor) InvalidateLoadStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshed = time.Time{}
}

func (m *Monitor) refreshLoadStats(ctx context.Context) (map[uint]NodeLoad, error) {
	nodes, err := m.store.ListNodesByStatus(ctx, metadata.NodeActive)
	if err != nil {
		return nil, err
	}

	counts, err := m.store.CountChunksPerNode(ctx)
	if err != nil {
		return nil, err
	}

	// Probe nodes in parallel; a slow node must not stall the others.
	loads := make(map[uint]NodeLoad, len(nodes))
	var wg sync.WaitGroup
	var loadsMu sync.Mutex
	for _, node := range nodes {
		wg.Add(1)
		go func(node *metadata.Node) {
			defer wg.Done()
			available := m.Available(ctx, node)
			loadsMu.Lock()
			loads[node.ID] = NodeLoad{
				ChunkCount: counts[node.ID],
				Available:  available,
			}
			loadsMu.Unlock()
		}(node)
	}
	wg.Wait()

	m.mu.Lock()
	m.loads = loads
	m.refreshed = time.Now()
	m.mu.Unlock()

	return loads, nil
}

// AvailableActive returns the active nodes that answered their most
// recent probe, ordered by ascending priority.
func (m *Monitor) AvailableActive(ctx context.Context) ([]*metadata.Node, error) {
	nodes, err := m.store.ListNodesByStatus(ctx, metadata.NodeActive)
	if err != nil {
		return nil, err
	}

	loads, err := m.LoadStats(ctx)
	if err != nil {
		return nil, err
	}

	available := make([]*metadata.Node, 0, len(nodes))
	for _, node := range nodes {
		if load, ok := loads[node.ID]; ok && load.Available {
			available = append(available, node)
		}
	}
	return available, nil
}

// CountAvailable returns how many active nodes are currently available.
func (m *Monitor) CountAvailable(ctx context.Context) (int, error) {
	nodes, err := m.AvailableActive(ctx)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// ElectPrimary ensures an active primary exists, promoting the active
// node of lowest priority (ties broken by lowest ID) when none does.
func (m *Monitor) ElectPrimary(ctx context.Context) (*metadata.Node, error) {
	node, err := m.store.ElectPrimary(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("Primary node", "node", node.Name, "priority", node.Priority)
	return node, nil
}

// Run executes the background loop until the context is cancelled. Each
// tick re-elects the primary if needed and probes the nodes referenced
// by pending replications, signalling OnNodeOnline for every
// offline-to-online transition.
func (m *Monitor) Run(ctx context.Context) {
	logger.Info("Node monitor started", "interval", m.config.Interval)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Node monitor stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	if _, err := m.store.ElectPrimary(ctx); err != nil && !errors.Is(err, metadata.ErrNoActiveNodes) {
		logger.Warn("Primary election failed", "error", err)
	}

	targetIDs, err := m.store.PendingTargetNodeIDs(ctx)
	if err != nil {
		logger.Warn("Listing pending targets failed", "error", err)
		return
	}

	for _, id := range targetIDs {
		node, err := m.store.GetNode(ctx, id)
		if err != nil {
			logger.Warn("Pending target node lookup failed", "node_id", id, "error", err)
			continue
		}

		online := node.IsActive() && m.Available(ctx, node)

		m.mu.Lock()
		wasOnline, known := m.lastSeen[id]
		m.lastSeen[id] = online
		m.mu.Unlock()

		if online && known && !wasOnline {
			logger.Info("Node back online, draining pending replications", "node", node.Name)
			if m.onOnline != nil {
				m.onOnline(node)
			}
		}
	}
}
