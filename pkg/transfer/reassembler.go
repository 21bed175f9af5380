package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/marmos91/shardstore/internal/logger"
	"github.com/marmos91/shardstore/pkg/backend"
	"github.com/marmos91/shardstore/pkg/metadata"
	"github.com/marmos91/shardstore/pkg/metadata/store"
)

// Reassembler reconstructs a file by pulling every chunk, in ascending
// number order, from the best copy that still verifies.
type Reassembler struct {
	store  store.Store
	dialer backend.Dialer
}

// NewReassembler creates a reassembler over the store and dialer.
func NewReassembler(s store.Store, dialer backend.Dialer) *Reassembler {
	return &Reassembler{store: s, dialer: dialer}
}

// Reassemble streams the file's bytes to w in chunk-number order.
//
// Failover is per chunk: a copy that fails its digest check or whose
// node errors is skipped and the next copy tried. Nodes that produced
// an IO error are remembered for the rest of this retrieval so later
// chunks do not wait on them again. A primary caught with a bad digest
// is marked corrupt in passing. Cancellation stops after the chunk in
// flight; bytes already written to w stay written.
func (r *Reassembler) Reassemble(ctx context.Context, file *metadata.StoredFile, w io.Writer) error {
	rows, err := r.store.ListChunksByFile(ctx, file.ID)
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}

	// Group uploaded copies by chunk number; order within a group is
	// primary first (the store lists primaries before replicas).
	copies := make(map[int][]*metadata.Chunk)
	for _, row := range rows {
		if row.Status != metadata.ChunkUploaded {
			continue
		}
		copies[row.ChunkNumber] = append(copies[row.ChunkNumber], row)
	}

	if len(copies) == 0 {
		if file.SizeBytes == 0 {
			// Empty file: zero chunks is the complete file.
			return nil
		}
		return fmt.Errorf("%w: no uploaded chunks for file %s", ErrMissingChunks, file.ID)
	}

	numbers := make([]int, 0, len(copies))
	for n := range copies {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	if numbers[0] != 1 || numbers[len(numbers)-1] != len(numbers) {
		return fmt.Errorf("%w: file %s has %d distinct numbers, max %d",
			ErrMissingChunks, file.ID, len(numbers), numbers[len(numbers)-1])
	}

	failedNodes := make(map[uint]bool)
	for _, n := range numbers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.reassembleChunk(ctx, w, n, copies[n], failedNodes); err != nil {
			return err
		}
	}
	return nil
}

// reassembleChunk tries each candidate copy of one chunk number until
// one verifies, preferring primaries and nodes that have not failed in
// this retrieval.
func (r *Reassembler) reassembleChunk(
	ctx context.Context,
	w io.Writer,
	number int,
	candidates []*metadata.Chunk,
	failedNodes map[uint]bool,
) error {
	// Stable sort keeps primary-before-replica within each half.
	sorted := make([]*metadata.Chunk, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		fi := sorted[i].NodeID != nil && failedNodes[*sorted[i].NodeID]
		fj := sorted[j].NodeID != nil && failedNodes[*sorted[j].NodeID]
		return !fi && fj
	})

	for _, candidate := range sorted {
		if candidate.Node == nil {
			continue
		}

		data, err := r.fetchVerified(ctx, candidate)
		if err != nil {
			if errors.Is(err, backend.ErrIntegrity) {
				logger.Warn("Chunk copy failed digest check",
					"file_id", candidate.FileID, "chunk", number,
					"node", candidate.Node.Name, "replica", candidate.IsReplica)
				// Lazy corruption detection on primaries; replicas are
				// left to the verification sweep.
				if !candidate.IsReplica {
					r.markCorrupt(ctx, candidate)
				}
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, backend.ErrNotFound) {
				// The object is gone but the node answered; do not
				// penalize the node for later chunks.
				logger.Warn("Chunk object missing",
					"file_id", candidate.FileID, "chunk", number,
					"node", candidate.Node.Name, "replica", candidate.IsReplica)
				continue
			}

			logger.Warn("Chunk copy unreadable, skipping node for this retrieval",
				"file_id", candidate.FileID, "chunk", number,
				"node", candidate.Node.Name, "error", err)
			failedNodes[candidate.Node.ID] = true
			continue
		}

		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write chunk %d: %w", number, err)
		}
		return nil
	}

	return fmt.Errorf("%w: unable to reassemble chunk %d", ErrUnrecoverable, number)
}

// fetchVerified reads one copy and checks its bytes against the stored
// digest. A mismatch comes back wrapping backend.ErrIntegrity.
func (r *Reassembler) fetchVerified(ctx context.Context, chunk *metadata.Chunk) ([]byte, error) {
	client, err := r.dialer.Dial(ctx, chunk.Node)
	if err != nil {
		return nil, fmt.Errorf("dial node %s: %w", chunk.Node.Name, err)
	}

	obj, err := client.GetObject(ctx, chunk.Node.Bucket, chunk.ObjectKey)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}

	digest := sha256.Sum256(data)
	if hex.EncodeToString(digest[:]) != chunk.Digest {
		return nil, fmt.Errorf("chunk %d on %s: %w",
			chunk.ChunkNumber, chunk.Node.Name, backend.ErrIntegrity)
	}
	return data, nil
}

func (r *Reassembler) markCorrupt(ctx context.Context, chunk *metadata.Chunk) {
	err := r.store.TransitionChunkStatus(ctx, chunk.ID, metadata.ChunkUploaded, metadata.ChunkCorrupt)
	if err != nil && !errors.Is(err, metadata.ErrConflict) {
		logger.Warn("Marking chunk corrupt failed", "chunk_id", chunk.ID, "error", err)
	}
}
