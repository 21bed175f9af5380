package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/shardstore/pkg/backend/memory"
	"github.com/marmos91/shardstore/pkg/metadata"
	"github.com/marmos91/shardstore/pkg/metadata/store"
)

func newTestCluster(t *testing.T) (*store.GORMStore, *memory.Hub, *Monitor, *Placement, *Registry) {
	t.Helper()

	s, err := store.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	hub := memory.NewHub()
	monitor := NewMonitor(s, hub, MonitorConfig{
		ProbeTimeout: time.Second,
		LoadStatsTTL: time.Millisecond, // effectively uncached
	})
	return s, hub, monitor, NewPlacement(s, monitor), NewRegistry(s)
}

func addNode(t *testing.T, r *Registry, name, address string, priority int) *metadata.Node {
	t.Helper()
	node, err := r.AddNode(context.Background(), AddNodeParams{
		Name:     name,
		Address:  address,
		Bucket:   "chunks",
		Backend:  metadata.BackendMemory,
		Priority: priority,
	})
	require.NoError(t, err)
	return node
}

func placeChunks(t *testing.T, s store.Store, nodeID uint, n int) {
	t.Helper()
	ctx := context.Background()
	file := &metadata.StoredFile{ID: uuid.NewString(), DisplayName: "f", OriginalFilename: "f", Owner: "alice"}
	for i := 1; i <= n; i++ {
		chunk := &metadata.Chunk{
			ID:          uuid.NewString(),
			FileID:      file.ID,
			ChunkNumber: i,
			SizeBytes:   1,
			Digest:      "00",
			ObjectKey:   "chunks/alice/x",
			NodeID:      &nodeID,
			Status:      metadata.ChunkUploaded,
		}
		if i == 1 {
			require.NoError(t, s.CreateFileWithChunk(ctx, file, chunk))
		} else {
			require.NoError(t, s.CreateChunk(ctx, chunk))
		}
	}
}

func TestRegistryAddNode_Defaults(t *testing.T) {
	_, _, _, _, registry := newTestCluster(t)

	node, err := registry.AddNode(context.Background(), AddNodeParams{
		Name:    "node1",
		Address: "localhost:9001",
		Bucket:  "chunks",
	})
	require.NoError(t, err)
	assert.Equal(t, metadata.BackendMinIO, node.Backend)
	assert.Equal(t, 100, node.Priority)
	assert.Equal(t, metadata.NodeActive, node.Status)
	assert.False(t, node.IsPrimary)
}

func TestRegistryAddNode_Validation(t *testing.T) {
	_, _, _, _, registry := newTestCluster(t)
	ctx := context.Background()

	_, err := registry.AddNode(ctx, AddNodeParams{Address: "a", Bucket: "b"})
	assert.Error(t, err)

	_, err = registry.AddNode(ctx, AddNodeParams{Name: "n", Bucket: "b"})
	assert.Error(t, err)

	_, err = registry.AddNode(ctx, AddNodeParams{Name: "n", Address: "a", Bucket: "b", Backend: "ftp"})
	assert.Error(t, err)
}

func TestRegistryAddNode_Primary(t *testing.T) {
	_, _, _, _, registry := newTestCluster(t)
	ctx := context.Background()

	addNode(t, registry, "first", "localhost:9001", 10)
	node, err := registry.AddNode(ctx, AddNodeParams{
		Name:    "second",
		Address: "localhost:9002",
		Bucket:  "chunks",
		Primary: true,
	})
	require.NoError(t, err)
	assert.True(t, node.IsPrimary)
}

func TestMonitorAvailable(t *testing.T) {
	_, hub, monitor, _, registry := newTestCluster(t)
	ctx := context.Background()

	node := addNode(t, registry, "node1", "localhost:9001", 100)
	assert.True(t, monitor.Available(ctx, node))

	hub.Node("localhost:9001").SetDown()
	assert.False(t, monitor.Available(ctx, node))

	hub.Node("localhost:9001").SetUp()
	assert.True(t, monitor.Available(ctx, node))
}

func TestMonitorCountAvailable(t *testing.T) {
	_, hub, monitor, _, registry := newTestCluster(t)
	ctx := context.Background()

	addNode(t, registry, "a", "localhost:9001", 100)
	addNode(t, registry, "b", "localhost:9002", 100)

	count, err := monitor.CountAvailable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	hub.Node("localhost:9002").SetDown()
	monitor.InvalidateLoadStats()

	count, err = monitor.CountAvailable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMonitorLoadStats_ChunkCounts(t *testing.T) {
	s, _, monitor, _, registry := newTestCluster(t)
	ctx := context.Background()

	a := addNode(t, registry, "a", "localhost:9001", 100)
	b := addNode(t, registry, "b", "localhost:9002", 100)
	placeChunks(t, s, a.ID, 3)

	monitor.InvalidateLoadStats()
	loads, err := monitor.LoadStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), loads[a.ID].ChunkCount)
	assert.Zero(t, loads[b.ID].ChunkCount)
	assert.True(t, loads[a.ID].Available)
}

func TestPlacementSelectForUpload_LeastLoaded(t *testing.T) {
	s, _, _, placement, registry := newTestCluster(t)
	ctx := context.Background()

	a := addNode(t, registry, "a", "localhost:9001", 100)
	b := addNode(t, registry, "b", "localhost:9002", 100)
	placeChunks(t, s, a.ID, 5)

	node, err := placement.SelectForUpload(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, b.ID, node.ID)
}

func TestPlacementSelectForUpload_Excluded(t *testing.T) {
	s, _, _, placement, registry := newTestCluster(t)
	ctx := context.Background()

	a := addNode(t, registry, "a", "localhost:9001", 100)
	b := addNode(t, registry, "b", "localhost:9002", 100)
	placeChunks(t, s, a.ID, 5)

	node, err := placement.SelectForUpload(ctx, []uint{b.ID})
	require.NoError(t, err)
	assert.Equal(t, a.ID, node.ID)
}

func TestPlacementSelectForUpload_TieBreaksByPriority(t *testing.T) {
	_, _, _, placement, registry := newTestCluster(t)
	ctx := context.Background()

	addNode(t, registry, "slow", "localhost:9001", 200)
	fast := addNode(t, registry, "fast", "localhost:9002", 10)

	node, err := placement.SelectForUpload(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, fast.ID, node.ID)
}

func TestPlacementSelectForUpload_NoNodes(t *testing.T) {
	_, _, _, placement, _ := newTestCluster(t)

	_, err := placement.SelectForUpload(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoAvailableNodes)
}

func TestPlacementSelectForUpload_AllDown(t *testing.T) {
	_, hub, _, placement, registry := newTestCluster(t)
	ctx := context.Background()

	addNode(t, registry, "a", "localhost:9001", 100)
	hub.Node("localhost:9001").SetDown()

	_, err := placement.SelectForUpload(ctx, nil)
	assert.ErrorIs(t, err, ErrNoAvailableNodes)
}

// seedChunkCopy inserts a file (when missing) plus one chunk row on the
// given node, and returns the file ID.
func seedChunkCopy(t *testing.T, s store.Store, fileID string, nodeID uint, replica bool) string {
	t.Helper()
	ctx := context.Background()

	chunk := &metadata.Chunk{
		ID:          uuid.NewString(),
		FileID:      fileID,
		ChunkNumber: 1,
		IsReplica:   replica,
		SizeBytes:   1,
		Digest:      "00",
		ObjectKey:   "chunks/alice/x",
		NodeID:      &nodeID,
		Status:      metadata.ChunkUploaded,
	}
	if fileID == "" {
		file := &metadata.StoredFile{ID: uuid.NewString(), DisplayName: "f", OriginalFilename: "f", Owner: "alice"}
		chunk.FileID = file.ID
		require.NoError(t, s.CreateFileWithChunk(ctx, file, chunk))
		return file.ID
	}
	require.NoError(t, s.CreateChunk(ctx, chunk))
	return fileID
}

func TestPlacementSelectForChunk_PrefersHoldingNode(t *testing.T) {
	s, _, _, placement, registry := newTestCluster(t)
	ctx := context.Background()

	a := addNode(t, registry, "a", "localhost:9001", 100)
	addNode(t, registry, "b", "localhost:9002", 100)

	// The primary row makes a the busier node, so a plain upload
	// election would pick b. The holding node still wins.
	fileID := seedChunkCopy(t, s, "", a.ID, false)

	node, err := placement.SelectForChunk(ctx, fileID, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, a.ID, node.ID)
}

func TestPlacementSelectForChunk_FallsBackToReplicaNode(t *testing.T) {
	s, hub, _, placement, registry := newTestCluster(t)
	ctx := context.Background()

	a := addNode(t, registry, "a", "localhost:9001", 100)
	b := addNode(t, registry, "b", "localhost:9002", 100)

	fileID := seedChunkCopy(t, s, "", a.ID, false)
	seedChunkCopy(t, s, fileID, b.ID, true)

	hub.Node("localhost:9001").SetDown()

	node, err := placement.SelectForChunk(ctx, fileID, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, b.ID, node.ID)
}

func TestPlacementSelectForChunk_FreshElectionWhenUnplaced(t *testing.T) {
	s, _, _, placement, registry := newTestCluster(t)
	ctx := context.Background()

	a := addNode(t, registry, "a", "localhost:9001", 100)
	b := addNode(t, registry, "b", "localhost:9002", 100)
	placeChunks(t, s, a.ID, 5)

	// No copies of this chunk exist anywhere; the least-loaded node is
	// elected as for any upload.
	node, err := placement.SelectForChunk(ctx, uuid.NewString(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, b.ID, node.ID)
}

func TestElectPrimary_PrefersLowestPriority(t *testing.T) {
	_, _, monitor, _, registry := newTestCluster(t)
	ctx := context.Background()

	addNode(t, registry, "slow", "localhost:9001", 200)
	fast := addNode(t, registry, "fast", "localhost:9002", 10)

	elected, err := monitor.ElectPrimary(ctx)
	require.NoError(t, err)
	assert.Equal(t, fast.ID, elected.ID)
}

func TestSetStatus_RemovesFromPlacement(t *testing.T) {
	_, _, _, placement, registry := newTestCluster(t)
	ctx := context.Background()

	a := addNode(t, registry, "a", "localhost:9001", 100)
	b := addNode(t, registry, "b", "localhost:9002", 100)

	require.NoError(t, registry.SetStatus(ctx, a.ID, metadata.NodeMaintenance))

	node, err := placement.SelectForUpload(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, b.ID, node.ID)
}
