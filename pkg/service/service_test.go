package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/shardstore/pkg/backend/memory"
	"github.com/marmos91/shardstore/pkg/cluster"
	"github.com/marmos91/shardstore/pkg/filecache"
	"github.com/marmos91/shardstore/pkg/metadata"
	"github.com/marmos91/shardstore/pkg/metadata/store"
	"github.com/marmos91/shardstore/pkg/redundancy"
	"github.com/marmos91/shardstore/pkg/transfer"
)

type serviceHarness struct {
	svc *Service
	hub *memory.Hub
}

func newServiceHarness(t *testing.T, nodes ...string) *serviceHarness {
	t.Helper()

	s, err := store.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	hub := memory.NewHub()
	svc := New(s, hub, nil, Config{
		Chunker:    transfer.ChunkerConfig{ChunkSize: 4, MinAvailableNodes: 1},
		Redundancy: redundancy.Config{MinReplicas: 1},
		Monitor: cluster.MonitorConfig{
			ProbeTimeout: time.Second,
			LoadStatsTTL: time.Millisecond,
		},
		Cache: filecache.Config{MaxFileSize: 1024},
	})

	for i, address := range nodes {
		_, err := svc.AddNode(context.Background(), cluster.AddNodeParams{
			Name:     address,
			Address:  address,
			Bucket:   "chunks",
			Backend:  metadata.BackendMemory,
			Priority: 100 + i,
		})
		require.NoError(t, err)
	}
	return &serviceHarness{svc: svc, hub: hub}
}

func TestStoreAndRetrieveFile(t *testing.T) {
	h := newServiceHarness(t, "n1", "n2")
	ctx := context.Background()

	payload := "the quick brown fox"
	file, err := h.svc.StoreFile(ctx, transfer.StoreRequest{
		DisplayName:      "fox",
		OriginalFilename: "fox.txt",
		ContentType:      "text/plain",
		Owner:            "alice",
	}, strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), file.SizeBytes)

	var buf bytes.Buffer
	got, err := h.svc.RetrieveFile(ctx, file.ID, &buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf.String())
	assert.Equal(t, file.ID, got.ID)

	// Second retrieval is a cache hit.
	buf.Reset()
	_, err = h.svc.RetrieveFile(ctx, file.ID, &buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf.String())
	assert.Equal(t, int64(1), h.svc.Cache().Stats().Hits)
}

func TestRetrieveFile_NotFound(t *testing.T) {
	h := newServiceHarness(t, "n1")

	var buf bytes.Buffer
	_, err := h.svc.RetrieveFile(context.Background(), "no-such-file", &buf)
	assert.ErrorIs(t, err, metadata.ErrFileNotFound)
}

func TestRetrieveFile_TouchesLastAccessed(t *testing.T) {
	h := newServiceHarness(t, "n1")
	ctx := context.Background()

	file, err := h.svc.StoreFile(ctx, transfer.StoreRequest{
		DisplayName: "f", OriginalFilename: "f", Owner: "alice",
	}, strings.NewReader("data"))
	require.NoError(t, err)
	require.Nil(t, file.LastAccessed)

	var buf bytes.Buffer
	_, err = h.svc.RetrieveFile(ctx, file.ID, &buf)
	require.NoError(t, err)

	got, err := h.svc.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastAccessed)
}

func TestRetrieveFile_SurvivesNodeOutage(t *testing.T) {
	h := newServiceHarness(t, "n1", "n2")
	ctx := context.Background()

	payload := "hello world"
	file, err := h.svc.StoreFile(ctx, transfer.StoreRequest{
		DisplayName: "f", OriginalFilename: "f", Owner: "alice",
	}, strings.NewReader(payload))
	require.NoError(t, err)

	// With two nodes and MinReplicas 1, every chunk number has a copy
	// on the node that does not hold its primary. Take n1 out of the
	// cluster and off the network; the download must carry on from n2.
	node, err := h.svc.Store().GetNodeByName(ctx, "n1")
	require.NoError(t, err)
	require.NoError(t, h.svc.SetNodeStatus(ctx, node.ID, metadata.NodeInactive))
	h.hub.Node("n1").SetDown()
	h.svc.Cache().Flush()

	var buf bytes.Buffer
	_, err = h.svc.RetrieveFile(ctx, file.ID, &buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf.String())
}

func TestDeleteFile_RemovesObjectsAndCache(t *testing.T) {
	h := newServiceHarness(t, "n1")
	ctx := context.Background()

	file, err := h.svc.StoreFile(ctx, transfer.StoreRequest{
		DisplayName: "f", OriginalFilename: "f", Owner: "alice",
	}, strings.NewReader("hello world"))
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = h.svc.RetrieveFile(ctx, file.ID, &buf)
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteFile(ctx, file.ID))

	_, err = h.svc.GetFile(ctx, file.ID)
	assert.ErrorIs(t, err, metadata.ErrFileNotFound)
	assert.Zero(t, h.hub.Node("n1").ObjectCount())

	_, cached := h.svc.Cache().Get(file.ID)
	assert.False(t, cached)
}

func TestSetNodeStatus_ReelectsPrimary(t *testing.T) {
	h := newServiceHarness(t, "n1", "n2")
	ctx := context.Background()

	first, err := h.svc.ElectPrimary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "n1", first.Name)

	require.NoError(t, h.svc.SetNodeStatus(ctx, first.ID, metadata.NodeMaintenance))

	second, err := h.svc.Store().PrimaryNode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "n2", second.Name)
}

func TestVerifyAll_RepairsCorruption(t *testing.T) {
	h := newServiceHarness(t, "n1", "n2")
	ctx := context.Background()

	file, err := h.svc.StoreFile(ctx, transfer.StoreRequest{
		DisplayName: "f", OriginalFilename: "f", Owner: "alice",
	}, strings.NewReader("data"))
	require.NoError(t, err)

	rows, err := h.svc.Store().ListChunksByFile(ctx, file.ID)
	require.NoError(t, err)

	var primary *metadata.Chunk
	for _, row := range rows {
		if !row.IsReplica {
			primary = row
		}
	}
	require.NotNil(t, primary)
	require.NotNil(t, primary.Node)
	h.hub.Node(primary.Node.Address).CorruptObject("chunks", primary.ObjectKey, []byte("garbage"))

	stats, err := h.svc.VerifyAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Corrupt)
	assert.Equal(t, 1, stats.Repaired)

	// The file reads back intact afterwards.
	h.svc.Cache().Flush()
	var buf bytes.Buffer
	_, err = h.svc.RetrieveFile(ctx, file.ID, &buf)
	require.NoError(t, err)
	assert.Equal(t, "data", buf.String())
}

func TestEnsureReplicas(t *testing.T) {
	h := newServiceHarness(t, "n1")
	ctx := context.Background()

	// With a single node there is nowhere to put a replica.
	_, err := h.svc.StoreFile(ctx, transfer.StoreRequest{
		DisplayName: "f", OriginalFilename: "f", Owner: "alice",
	}, strings.NewReader("data"))
	require.NoError(t, err)

	stats, err := h.svc.EnsureReplicas(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Checked)
	assert.Zero(t, stats.Created)
}

func TestCheckFileIntegrity(t *testing.T) {
	h := newServiceHarness(t, "n1", "n2")
	ctx := context.Background()

	file, err := h.svc.StoreFile(ctx, transfer.StoreRequest{
		DisplayName: "f", OriginalFilename: "f", Owner: "alice",
	}, strings.NewReader("data"))
	require.NoError(t, err)

	report, err := h.svc.CheckFileIntegrity(ctx, file.ID)
	require.NoError(t, err)
	assert.True(t, report.Recoverable)
}

func TestMaintain(t *testing.T) {
	h := newServiceHarness(t, "n1", "n2")
	ctx := context.Background()

	_, err := h.svc.StoreFile(ctx, transfer.StoreRequest{
		DisplayName: "f", OriginalFilename: "f", Owner: "alice",
	}, strings.NewReader("hello world"))
	require.NoError(t, err)

	stats, err := h.svc.Maintain(ctx)
	require.NoError(t, err)
	assert.Greater(t, stats.Verify.Checked, 0)
	assert.Zero(t, stats.Verify.Corrupt)
	assert.Zero(t, stats.Drain.Processed)
}

func TestShowStats(t *testing.T) {
	h := newServiceHarness(t, "n1", "n2")
	ctx := context.Background()

	_, err := h.svc.StoreFile(ctx, transfer.StoreRequest{
		DisplayName: "f", OriginalFilename: "f", Owner: "alice",
	}, strings.NewReader("data"))
	require.NoError(t, err)

	stats, err := h.svc.ShowStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Nodes.Total)
	assert.Equal(t, 2, stats.Nodes.Active)
	assert.Equal(t, int64(1), stats.Files)
	assert.Greater(t, stats.Chunks[metadata.ChunkUploaded], int64(0))
}

func TestStoreFile_EmptyUpload(t *testing.T) {
	h := newServiceHarness(t, "n1")
	ctx := context.Background()

	file, err := h.svc.StoreFile(ctx, transfer.StoreRequest{
		DisplayName: "empty", OriginalFilename: "empty", Owner: "alice",
	}, strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, file.SizeBytes)

	var buf bytes.Buffer
	_, err = h.svc.RetrieveFile(ctx, file.ID, &buf)
	require.NoError(t, err)
	assert.Zero(t, buf.Len())
}
