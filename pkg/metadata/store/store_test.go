package store

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/shardstore/pkg/metadata"
)

func newTestStore(t *testing.T) *GORMStore {
	t.Helper()
	s, err := NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testNode(name string, priority int) *metadata.Node {
	return &metadata.Node{
		Name:     name,
		Address:  "localhost:9000",
		Bucket:   "chunks",
		Backend:  metadata.BackendMemory,
		Priority: priority,
		Status:   metadata.NodeActive,
	}
}

func testFile(owner string) *metadata.StoredFile {
	return &metadata.StoredFile{
		ID:               uuid.NewString(),
		DisplayName:      "report",
		OriginalFilename: "report.pdf",
		ContentType:      "application/pdf",
		Owner:            owner,
	}
}

func testChunk(fileID string, number int, nodeID uint) *metadata.Chunk {
	return &metadata.Chunk{
		ID:          uuid.NewString(),
		FileID:      fileID,
		ChunkNumber: number,
		SizeBytes:   1024,
		Digest:      "aabbcc",
		ObjectKey:   "chunks/alice/obj",
		NodeID:      &nodeID,
		Status:      metadata.ChunkUploaded,
	}
}

func TestCreateNode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	node := testNode("node1", 100)
	require.NoError(t, s.CreateNode(ctx, node))
	assert.NotZero(t, node.ID)

	got, err := s.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, "node1", got.Name)
	assert.Equal(t, metadata.NodeActive, got.Status)
}

func TestCreateNode_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateNode(ctx, testNode("node1", 100)))
	err := s.CreateNode(ctx, testNode("node1", 200))
	assert.ErrorIs(t, err, metadata.ErrConflict)
}

func TestGetNode_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetNode(context.Background(), 42)
	assert.ErrorIs(t, err, metadata.ErrNodeNotFound)
}

func TestGetNodeByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateNode(ctx, testNode("node1", 100)))

	got, err := s.GetNodeByName(ctx, "node1")
	require.NoError(t, err)
	assert.Equal(t, "node1", got.Name)

	_, err = s.GetNodeByName(ctx, "ghost")
	assert.ErrorIs(t, err, metadata.ErrNodeNotFound)
}

func TestListNodesByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateNode(ctx, testNode("a", 200)))
	require.NoError(t, s.CreateNode(ctx, testNode("b", 100)))
	inactive := testNode("c", 50)
	inactive.Status = metadata.NodeInactive
	require.NoError(t, s.CreateNode(ctx, inactive))

	nodes, err := s.ListNodesByStatus(ctx, metadata.NodeActive)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	// Ordered by ascending priority.
	assert.Equal(t, "b", nodes[0].Name)
	assert.Equal(t, "a", nodes[1].Name)
}

func TestElectPrimary_LowestPriorityWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateNode(ctx, testNode("slow", 200)))
	fast := testNode("fast", 10)
	require.NoError(t, s.CreateNode(ctx, fast))

	elected, err := s.ElectPrimary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fast", elected.Name)
	assert.True(t, elected.IsPrimary)

	// A second election keeps the existing primary.
	again, err := s.ElectPrimary(ctx)
	require.NoError(t, err)
	assert.Equal(t, elected.ID, again.ID)
}

func TestElectPrimary_NoActiveNodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	down := testNode("down", 100)
	down.Status = metadata.NodeInactive
	require.NoError(t, s.CreateNode(ctx, down))

	_, err := s.ElectPrimary(ctx)
	assert.ErrorIs(t, err, metadata.ErrNoActiveNodes)
}

func TestUpdateNodeStatus_ClearsPrimaryOnDeactivation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	node := testNode("node1", 100)
	require.NoError(t, s.CreateNode(ctx, node))
	_, err := s.ElectPrimary(ctx)
	require.NoError(t, err)

	require.NoError(t, s.UpdateNodeStatus(ctx, node.ID, metadata.NodeMaintenance))

	got, err := s.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, metadata.NodeMaintenance, got.Status)
	assert.False(t, got.IsPrimary)
}

func TestMarkPrimary_DemotesCurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := testNode("first", 10)
	second := testNode("second", 20)
	require.NoError(t, s.CreateNode(ctx, first))
	require.NoError(t, s.CreateNode(ctx, second))
	_, err := s.ElectPrimary(ctx)
	require.NoError(t, err)

	require.NoError(t, s.MarkPrimary(ctx, second.ID))

	primary, err := s.PrimaryNode(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, primary.ID)

	old, err := s.GetNode(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.IsPrimary)
}

func TestCreateFileWithChunk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	node := testNode("node1", 100)
	require.NoError(t, s.CreateNode(ctx, node))

	file := testFile("alice")
	chunk := testChunk(file.ID, 1, node.ID)
	require.NoError(t, s.CreateFileWithChunk(ctx, file, chunk))

	got, err := s.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Owner)

	rows, err := s.ListChunksByFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Node)
	assert.Equal(t, "node1", rows[0].Node.Name)
}

func TestCreateChunk_DuplicatePlacement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	node := testNode("node1", 100)
	require.NoError(t, s.CreateNode(ctx, node))
	file := testFile("alice")
	require.NoError(t, s.CreateFileWithChunk(ctx, file, testChunk(file.ID, 1, node.ID)))

	// Second primary row for the same (file, number) loses the race.
	err := s.CreateChunk(ctx, testChunk(file.ID, 1, node.ID))
	assert.ErrorIs(t, err, metadata.ErrConflict)

	// A replica row for the same number is a different slot.
	replica := testChunk(file.ID, 1, node.ID)
	replica.IsReplica = true
	assert.NoError(t, s.CreateChunk(ctx, replica))
}

func TestCreateChunk_ReplicasSpreadAcrossNodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testNode("a", 100)
	b := testNode("b", 200)
	require.NoError(t, s.CreateNode(ctx, a))
	require.NoError(t, s.CreateNode(ctx, b))
	file := testFile("alice")
	require.NoError(t, s.CreateFileWithChunk(ctx, file, testChunk(file.ID, 1, a.ID)))

	// One replica of the number per node, on as many nodes as needed.
	onA := testChunk(file.ID, 1, a.ID)
	onA.IsReplica = true
	require.NoError(t, s.CreateChunk(ctx, onA))

	onB := testChunk(file.ID, 1, b.ID)
	onB.IsReplica = true
	require.NoError(t, s.CreateChunk(ctx, onB))

	// A second replica of the same number on the same node conflicts.
	dup := testChunk(file.ID, 1, b.ID)
	dup.IsReplica = true
	assert.ErrorIs(t, s.CreateChunk(ctx, dup), metadata.ErrConflict)

	// And the primary slot stays unique regardless of node.
	err := s.CreateChunk(ctx, testChunk(file.ID, 1, b.ID))
	assert.ErrorIs(t, err, metadata.ErrConflict)
}

func TestCreateChunk_ConcurrentPrimariesSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testNode("a", 100)
	b := testNode("b", 200)
	require.NoError(t, s.CreateNode(ctx, a))
	require.NoError(t, s.CreateNode(ctx, b))
	file := testFile("alice")
	require.NoError(t, s.CreateFile(ctx, file))

	// Racing writers on different nodes all claim the same primary slot.
	targets := []uint{a.ID, b.ID, a.ID, b.ID}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, nodeID := range targets {
		wg.Add(1)
		go func(i int, nodeID uint) {
			defer wg.Done()
			errs[i] = s.CreateChunk(ctx, testChunk(file.ID, 1, nodeID))
		}(i, nodeID)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, metadata.ErrConflict)
	}
	assert.Equal(t, 1, created)

	rows, err := s.ListChunksByFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFinalizeFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	file := testFile("alice")
	require.NoError(t, s.CreateFile(ctx, file))
	require.NoError(t, s.FinalizeFile(ctx, file.ID, 2048, "deadbeef"))

	got, err := s.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), got.SizeBytes)
	assert.Equal(t, "deadbeef", got.WholeFileDigest)
}

func TestTouchLastAccessed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	file := testFile("alice")
	require.NoError(t, s.CreateFile(ctx, file))
	require.Nil(t, file.LastAccessed)

	require.NoError(t, s.TouchLastAccessed(ctx, file.ID))

	got, err := s.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastAccessed)
}

func TestDeleteFile_CascadesChunksAndPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	node := testNode("node1", 100)
	require.NoError(t, s.CreateNode(ctx, node))
	file := testFile("alice")
	chunk := testChunk(file.ID, 1, node.ID)
	require.NoError(t, s.CreateFileWithChunk(ctx, file, chunk))
	require.NoError(t, s.EnqueuePending(ctx, chunk.ID, node.ID))

	require.NoError(t, s.DeleteFile(ctx, file.ID))

	_, err := s.GetFile(ctx, file.ID)
	assert.ErrorIs(t, err, metadata.ErrFileNotFound)

	rows, err := s.ListChunksByFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	pending, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestTransitionChunkStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	node := testNode("node1", 100)
	require.NoError(t, s.CreateNode(ctx, node))
	file := testFile("alice")
	chunk := testChunk(file.ID, 1, node.ID)
	require.NoError(t, s.CreateFileWithChunk(ctx, file, chunk))

	require.NoError(t, s.TransitionChunkStatus(ctx, chunk.ID, metadata.ChunkUploaded, metadata.ChunkCorrupt))

	got, err := s.GetChunk(ctx, chunk.ID)
	require.NoError(t, err)
	assert.Equal(t, metadata.ChunkCorrupt, got.Status)

	// The chunk already left uploaded; a second identical CAS loses.
	err = s.TransitionChunkStatus(ctx, chunk.ID, metadata.ChunkUploaded, metadata.ChunkCorrupt)
	assert.ErrorIs(t, err, metadata.ErrConflict)
}

func TestTransitionChunkStatus_InvalidEdge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	node := testNode("node1", 100)
	require.NoError(t, s.CreateNode(ctx, node))
	file := testFile("alice")
	chunk := testChunk(file.ID, 1, node.ID)
	require.NoError(t, s.CreateFileWithChunk(ctx, file, chunk))

	// uploaded -> uploading is not an allowed edge.
	err := s.TransitionChunkStatus(ctx, chunk.ID, metadata.ChunkUploaded, metadata.ChunkUploading)
	assert.ErrorIs(t, err, metadata.ErrInvalidStatus)
}

func TestRepairChunkRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	node := testNode("node1", 100)
	require.NoError(t, s.CreateNode(ctx, node))
	file := testFile("alice")
	chunk := testChunk(file.ID, 1, node.ID)
	require.NoError(t, s.CreateFileWithChunk(ctx, file, chunk))

	// A healthy row must not be repairable.
	err := s.RepairChunkRow(ctx, chunk.ID, "chunks/alice/fresh")
	assert.ErrorIs(t, err, metadata.ErrInvalidStatus)

	require.NoError(t, s.TransitionChunkStatus(ctx, chunk.ID, metadata.ChunkUploaded, metadata.ChunkCorrupt))
	require.NoError(t, s.RepairChunkRow(ctx, chunk.ID, "chunks/alice/fresh"))

	got, err := s.GetChunk(ctx, chunk.ID)
	require.NoError(t, err)
	assert.Equal(t, metadata.ChunkUploaded, got.Status)
	assert.Equal(t, "chunks/alice/fresh", got.ObjectKey)
}

func TestCountUploadedReplicas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testNode("a", 100)
	b := testNode("b", 100)
	require.NoError(t, s.CreateNode(ctx, a))
	require.NoError(t, s.CreateNode(ctx, b))

	file := testFile("alice")
	require.NoError(t, s.CreateFileWithChunk(ctx, file, testChunk(file.ID, 1, a.ID)))

	count, err := s.CountUploadedReplicas(ctx, file.ID, 1)
	require.NoError(t, err)
	assert.Zero(t, count)

	replica := testChunk(file.ID, 1, b.ID)
	replica.IsReplica = true
	require.NoError(t, s.CreateChunk(ctx, replica))

	count, err = s.CountUploadedReplicas(ctx, file.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestNodesHoldingChunk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testNode("a", 100)
	b := testNode("b", 100)
	require.NoError(t, s.CreateNode(ctx, a))
	require.NoError(t, s.CreateNode(ctx, b))

	file := testFile("alice")
	require.NoError(t, s.CreateFileWithChunk(ctx, file, testChunk(file.ID, 1, a.ID)))
	replica := testChunk(file.ID, 1, b.ID)
	replica.IsReplica = true
	require.NoError(t, s.CreateChunk(ctx, replica))

	holding, err := s.NodesHoldingChunk(ctx, file.ID, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{a.ID, b.ID}, holding)
}

func TestEnqueuePending_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	node := testNode("node1", 100)
	require.NoError(t, s.CreateNode(ctx, node))
	file := testFile("alice")
	chunk := testChunk(file.ID, 1, node.ID)
	require.NoError(t, s.CreateFileWithChunk(ctx, file, chunk))

	require.NoError(t, s.EnqueuePending(ctx, chunk.ID, node.ID))
	require.NoError(t, s.EnqueuePending(ctx, chunk.ID, node.ID))

	count, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestClaimPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	node := testNode("node1", 100)
	require.NoError(t, s.CreateNode(ctx, node))
	file := testFile("alice")
	chunk := testChunk(file.ID, 1, node.ID)
	require.NoError(t, s.CreateFileWithChunk(ctx, file, chunk))
	require.NoError(t, s.EnqueuePending(ctx, chunk.ID, node.ID))

	entries, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]

	ok, err := s.ClaimPending(ctx, entry.ID, entry.Attempts)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second claim against the stale counter loses.
	ok, err = s.ClaimPending(ctx, entry.ID, entry.Attempts)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPendingTargetNodeIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testNode("a", 100)
	b := testNode("b", 100)
	require.NoError(t, s.CreateNode(ctx, a))
	require.NoError(t, s.CreateNode(ctx, b))

	file := testFile("alice")
	c1 := testChunk(file.ID, 1, a.ID)
	require.NoError(t, s.CreateFileWithChunk(ctx, file, c1))
	c2 := testChunk(file.ID, 2, a.ID)
	require.NoError(t, s.CreateChunk(ctx, c2))

	require.NoError(t, s.EnqueuePending(ctx, c1.ID, b.ID))
	require.NoError(t, s.EnqueuePending(ctx, c2.ID, b.ID))

	ids, err := s.PendingTargetNodeIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{b.ID}, ids)
}

func TestChunkStatusCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	node := testNode("node1", 100)
	require.NoError(t, s.CreateNode(ctx, node))
	file := testFile("alice")
	c1 := testChunk(file.ID, 1, node.ID)
	require.NoError(t, s.CreateFileWithChunk(ctx, file, c1))
	c2 := testChunk(file.ID, 2, node.ID)
	require.NoError(t, s.CreateChunk(ctx, c2))
	require.NoError(t, s.TransitionChunkStatus(ctx, c2.ID, metadata.ChunkUploaded, metadata.ChunkCorrupt))

	counts, err := s.ChunkStatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[metadata.ChunkUploaded])
	assert.Equal(t, int64(1), counts[metadata.ChunkCorrupt])
}

func TestCountChunksPerNode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testNode("a", 100)
	b := testNode("b", 100)
	require.NoError(t, s.CreateNode(ctx, a))
	require.NoError(t, s.CreateNode(ctx, b))

	file := testFile("alice")
	require.NoError(t, s.CreateFileWithChunk(ctx, file, testChunk(file.ID, 1, a.ID)))
	require.NoError(t, s.CreateChunk(ctx, testChunk(file.ID, 2, a.ID)))

	counts, err := s.CountChunksPerNode(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[a.ID])
	assert.Zero(t, counts[b.ID])
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
