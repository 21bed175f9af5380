//go:build integration

package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/shardstore/pkg/metadata"
)

// One PostgreSQL container is shared by every test in the package; each
// test starts from truncated tables instead of a fresh container.
var (
	pgHost string
	pgPort int
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := pgcontainer.Run(ctx, "postgres:16-alpine",
		pgcontainer.WithDatabase("shardstore_test"),
		pgcontainer.WithUsername("shardstore_test"),
		pgcontainer.WithPassword("shardstore_test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}

	pgHost = host
	pgPort = port.Int()

	exitCode := m.Run()

	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
	}

	os.Exit(exitCode)
}

func newPostgresStore(t *testing.T) *GORMStore {
	t.Helper()

	s, err := New(&Config{
		Type: DatabaseTypePostgres,
		Postgres: PostgresConfig{
			Host:     pgHost,
			Port:     pgPort,
			Database: "shardstore_test",
			User:     "shardstore_test",
			Password: "shardstore_test",
			SSLMode:  "disable",
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	err = s.DB().
		Exec("TRUNCATE TABLE pending_replications, chunks, stored_files, nodes RESTART IDENTITY CASCADE").
		Error
	require.NoError(t, err)
	return s
}

func TestPostgresNodeRoundTrip(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	node := testNode("node1", 100)
	require.NoError(t, s.CreateNode(ctx, node))

	err := s.CreateNode(ctx, testNode("node1", 200))
	assert.ErrorIs(t, err, metadata.ErrConflict)

	elected, err := s.ElectPrimary(ctx)
	require.NoError(t, err)
	assert.Equal(t, node.ID, elected.ID)
	assert.True(t, elected.IsPrimary)
}

func TestPostgresChunkPlacementConstraints(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	a := testNode("a", 100)
	b := testNode("b", 200)
	require.NoError(t, s.CreateNode(ctx, a))
	require.NoError(t, s.CreateNode(ctx, b))

	file := testFile("alice")
	require.NoError(t, s.CreateFileWithChunk(ctx, file, testChunk(file.ID, 1, a.ID)))

	// The primary slot is unique per (file, number) on any node.
	err := s.CreateChunk(ctx, testChunk(file.ID, 1, b.ID))
	assert.ErrorIs(t, err, metadata.ErrConflict)

	// Replicas of the same number spread across nodes, one per node.
	onA := testChunk(file.ID, 1, a.ID)
	onA.IsReplica = true
	require.NoError(t, s.CreateChunk(ctx, onA))

	onB := testChunk(file.ID, 1, b.ID)
	onB.IsReplica = true
	require.NoError(t, s.CreateChunk(ctx, onB))

	dup := testChunk(file.ID, 1, b.ID)
	dup.IsReplica = true
	assert.ErrorIs(t, s.CreateChunk(ctx, dup), metadata.ErrConflict)
}

func TestPostgresConcurrentPrimariesSingleWinner(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	a := testNode("a", 100)
	b := testNode("b", 200)
	require.NoError(t, s.CreateNode(ctx, a))
	require.NoError(t, s.CreateNode(ctx, b))
	file := testFile("alice")
	require.NoError(t, s.CreateFile(ctx, file))

	targets := []uint{a.ID, b.ID, a.ID, b.ID, a.ID, b.ID, a.ID, b.ID}
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
}

func TestPostgresTransitionChunkStatus(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	node := testNode("node1", 100)
	require.NoError(t, s.CreateNode(ctx, node))
	file := testFile("alice")
	chunk := testChunk(file.ID, 1, node.ID)
	require.NoError(t, s.CreateFileWithChunk(ctx, file, chunk))

	require.NoError(t, s.TransitionChunkStatus(ctx, chunk.ID, metadata.ChunkUploaded, metadata.ChunkCorrupt))

	// The chunk already left uploaded; a second identical CAS loses.
	err := s.TransitionChunkStatus(ctx, chunk.ID, metadata.ChunkUploaded, metadata.ChunkCorrupt)
	assert.ErrorIs(t, err, metadata.ErrConflict)
}

func TestPostgresPendingClaim(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	node := testNode("node1", 100)
	require.NoError(t, s.CreateNode(ctx, node))
	file := testFile("alice")
	chunk := testChunk(file.ID, 1, node.ID)
	require.NoError(t, s.CreateFileWithChunk(ctx, file, chunk))

	require.NoError(t, s.EnqueuePending(ctx, chunk.ID, node.ID))
	require.NoError(t, s.EnqueuePending(ctx, chunk.ID, node.ID))

	entries, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	won, err := s.ClaimPending(ctx, entries[0].ID, entries[0].Attempts)
	require.NoError(t, err)
	assert.True(t, won)

	// A worker holding the stale attempt counter loses the claim.
	won, err = s.ClaimPending(ctx, entries[0].ID, entries[0].Attempts)
	require.NoError(t, err)
	assert.False(t, won)

	require.NoError(t, s.DeletePending(ctx, entries[0].ID))
	count, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
