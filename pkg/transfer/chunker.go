package transfer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/shardstore/internal/logger"
	"github.com/marmos91/shardstore/pkg/backend"
	"github.com/marmos91/shardstore/pkg/cluster"
	"github.com/marmos91/shardstore/pkg/metadata"
	"github.com/marmos91/shardstore/pkg/metadata/store"
)

// DefaultChunkSize is the fixed chunk size for new uploads.
const DefaultChunkSize = 5 * 1024 * 1024

// Replicator is the slice of the replication manager the Chunker needs:
// best-effort replica creation after a primary commits. Failures are
// logged, never propagated into the upload.
type Replicator interface {
	ReplicateChunk(ctx context.Context, chunk *metadata.Chunk) error
}

// ChunkerConfig holds the upload policy knobs.
type ChunkerConfig struct {
	// ChunkSize is the fixed chunk size in bytes. Default 5 MiB.
	ChunkSize int64

	// MinAvailableNodes gates uploads: below this many available nodes
	// the upload is refused before any byte is read. Default 3, enough
	// for a primary and two replicas.
	MinAvailableNodes int
}

// ApplyDefaults fills in missing configuration with default values.
func (c *ChunkerConfig) ApplyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MinAvailableNodes <= 0 {
		c.MinAvailableNodes = 3
	}
}

// StoreRequest carries the caller-supplied metadata for an upload.
type StoreRequest struct {
	DisplayName      string
	OriginalFilename string
	TypeTag          string
	ContentType      string
	Owner            string
}

// Chunker splits an upload into fixed chunks, places each on the least
// loaded available node, and commits metadata chunk by chunk.
type Chunker struct {
	store      store.Store
	placement  *cluster.Placement
	monitor    *cluster.Monitor
	dialer     backend.Dialer
	replicator Replicator
	config     ChunkerConfig
}

// NewChunker creates a chunker. replicator may be nil; then primaries
// are written without requesting replication.
func NewChunker(
	s store.Store,
	placement *cluster.Placement,
	monitor *cluster.Monitor,
	dialer backend.Dialer,
	replicator Replicator,
	config ChunkerConfig,
) *Chunker {
	config.ApplyDefaults()
	return &Chunker{
		store:      s,
		placement:  placement,
		monitor:    monitor,
		dialer:     dialer,
		replicator: replicator,
		config:     config,
	}
}

// committedChunk tracks what was written so a failed upload can clean
// up after itself.
type committedChunk struct {
	node *metadata.Node
	key  string
}

// Store reads the stream to its end, uploading one chunk at a time.
// On success the returned file carries the final size and whole-file
// digest. On failure (including cancellation) already-written objects
// and rows are removed best-effort and the error is returned.
func (c *Chunker) Store(ctx context.Context, req StoreRequest, r io.Reader) (*metadata.StoredFile, error) {
	available, err := c.monitor.CountAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("count available nodes: %w", err)
	}
	if available < c.config.MinAvailableNodes {
		return nil, fmt.Errorf("%w: %d available, need %d",
			ErrNotEnoughNodes, available, c.config.MinAvailableNodes)
	}

	file := &metadata.StoredFile{
		ID:               uuid.NewString(),
		DisplayName:      req.DisplayName,
		OriginalFilename: req.OriginalFilename,
		TypeTag:          req.TypeTag,
		ContentType:      req.ContentType,
		Owner:            req.Owner,
	}

	fileHash := sha256.New()
	buf := make([]byte, c.config.ChunkSize)
	var (
		committed []committedChunk
		chunks    []*metadata.Chunk
		total     int64
		number    int
	)

	fail := func(err error) (*metadata.StoredFile, error) {
		c.cleanup(file.ID, committed, len(chunks) > 0)
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		n, readErr := io.ReadFull(r, buf)
		if readErr == io.EOF {
			break
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			return fail(fmt.Errorf("read upload stream: %w", readErr))
		}

		number++
		data := buf[:n]
		fileHash.Write(data)
		total += int64(n)

		digest := sha256.Sum256(data)
		chunk, node, err := c.storeChunk(ctx, file, number, data, hex.EncodeToString(digest[:]))
		if err != nil {
			return fail(fmt.Errorf("chunk %d: %w", number, err))
		}
		committed = append(committed, committedChunk{node: node, key: chunk.ObjectKey})
		chunks = append(chunks, chunk)

		// Placement is recomputed per chunk, so mid-upload load changes
		// are respected.
		c.monitor.InvalidateLoadStats()

		if readErr == io.ErrUnexpectedEOF {
			break
		}
	}

	wholeDigest := hex.EncodeToString(fileHash.Sum(nil))
	file.SizeBytes = total
	file.WholeFileDigest = wholeDigest

	if len(chunks) == 0 {
		// Empty upload: legal, zero chunk rows.
		if err := c.store.CreateFile(ctx, file); err != nil {
			return nil, fmt.Errorf("create empty file: %w", err)
		}
		logger.Info("Stored empty file", "file_id", file.ID, "owner", file.Owner)
		return file, nil
	}

	if err := c.store.FinalizeFile(ctx, file.ID, total, wholeDigest); err != nil {
		return fail(fmt.Errorf("finalize file: %w", err))
	}

	logger.Info("Stored file",
		"file_id", file.ID, "owner", file.Owner,
		"size", total, "chunks", len(chunks))

	// Best-effort replication; the upload is already durable.
	if c.replicator != nil {
		for _, chunk := range chunks {
			if err := c.replicator.ReplicateChunk(ctx, chunk); err != nil {
				logger.Warn("Replication request failed",
					"file_id", file.ID, "chunk", chunk.ChunkNumber, "error", err)
			}
		}
	}

	return file, nil
}

// storeChunk places and writes one chunk, retrying with failed nodes
// excluded until no candidate remains.
func (c *Chunker) storeChunk(
	ctx context.Context,
	file *metadata.StoredFile,
	number int,
	data []byte,
	digest string,
) (*metadata.Chunk, *metadata.Node, error) {
	var exclude []uint

	for {
		node, err := c.placement.SelectForChunk(ctx, file.ID, number, exclude)
		if err != nil {
			return nil, nil, fmt.Errorf("place chunk: %w", err)
		}

		key := PrimaryObjectKey(file.Owner, file.ID, number)
		if err := c.putObject(ctx, node, key, data); err != nil {
			logger.Warn("Chunk write failed, excluding node",
				"node", node.Name, "chunk", number, "error", err)
			exclude = append(exclude, node.ID)
			continue
		}

		chunk := &metadata.Chunk{
			ID:          uuid.NewString(),
			FileID:      file.ID,
			ChunkNumber: number,
			IsReplica:   false,
			SizeBytes:   int64(len(data)),
			Digest:      digest,
			ObjectKey:   key,
			NodeID:      &node.ID,
			Status:      metadata.ChunkUploaded,
		}

		if number == 1 {
			err = c.store.CreateFileWithChunk(ctx, file, chunk)
		} else {
			err = c.store.CreateChunk(ctx, chunk)
		}
		if err != nil {
			// The object is orphaned on the node; remove it before
			// surfacing the failure.
			c.removeObject(node, key)
			return nil, nil, fmt.Errorf("commit chunk row: %w", err)
		}

		return chunk, node, nil
	}
}

func (c *Chunker) putObject(ctx context.Context, node *metadata.Node, key string, data []byte) error {
	client, err := c.dialer.Dial(ctx, node)
	if err != nil {
		return fmt.Errorf("dial node %s: %w", node.Name, err)
	}
	if err := client.EnsureBucket(ctx, node.Bucket); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	return client.PutObject(ctx, node.Bucket, key, bytes.NewReader(data), int64(len(data)))
}

// cleanup removes the objects and rows of a failed or cancelled upload.
// Runs on a fresh context: the upload's own context may be the reason
// we are here.
func (c *Chunker) cleanup(fileID string, committed []committedChunk, hasRows bool) {
	if len(committed) == 0 && !hasRows {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, cc := range committed {
		c.removeObjectCtx(ctx, cc.node, cc.key)
	}

	if hasRows {
		if err := c.store.DeleteFile(ctx, fileID); err != nil && !errors.Is(err, metadata.ErrFileNotFound) {
			logger.Warn("Upload cleanup: deleting file rows failed", "file_id", fileID, "error", err)
		}
	}

	logger.Info("Cleaned up failed upload", "file_id", fileID, "chunks", len(committed))
}

func (c *Chunker) removeObject(node *metadata.Node, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.removeObjectCtx(ctx, node, key)
}

func (c *Chunker) removeObjectCtx(ctx context.Context, node *metadata.Node, key string) {
	client, err := c.dialer.Dial(ctx, node)
	if err != nil {
		logger.Warn("Cleanup dial failed", "node", node.Name, "error", err)
		return
	}
	if err := client.RemoveObject(ctx, node.Bucket, key); err != nil {
		logger.Warn("Cleanup remove failed", "node", node.Name, "key", key, "error", err)
	}
}
