package redundancy

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/shardstore/internal/logger"
	"github.com/marmos91/shardstore/pkg/backend"
	"github.com/marmos91/shardstore/pkg/metadata"
	"github.com/marmos91/shardstore/pkg/transfer"
)

// verifyWorkers bounds the parallelism of integrity sweeps.
const verifyWorkers = 4

// EnsureStats summarizes one EnsureMinimumReplicas sweep.
type EnsureStats struct {
	Checked           int `json:"checked"`
	Created           int `json:"created"`
	Failed            int `json:"failed"`
	AlreadySufficient int `json:"already_sufficient"`
}

// VerifyStats summarizes one verification sweep.
type VerifyStats struct {
	Checked      int `json:"checked"`
	Healthy      int `json:"healthy"`
	Corrupt      int `json:"corrupt"`
	Failed       int `json:"failed"`
	Repaired     int `json:"repaired"`
	RepairFailed int `json:"repair_failed"`
	Skipped      int `json:"skipped"`
}

// IntegrityReport is the result of CheckFileIntegrity.
type IntegrityReport struct {
	FileID string `json:"file_id"`

	// Recoverable is true when every missing and every corrupt or
	// failed primary chunk number has an uploaded replica.
	Recoverable bool `json:"recoverable"`

	// TotalChunks is the highest chunk number seen across all rows.
	TotalChunks int `json:"total_chunks"`

	// MissingNumbers are chunk numbers with no uploaded primary row.
	MissingNumbers []int `json:"missing_numbers,omitempty"`

	// CorruptPrimaries are primary chunk numbers in corrupt or failed
	// state.
	CorruptPrimaries []int `json:"corrupt_primaries,omitempty"`
}

// EnsureMinimumReplicas sweeps every uploaded primary and tops up the
// ones below the minimum replica count.
func (m *Manager) EnsureMinimumReplicas(ctx context.Context) (EnsureStats, error) {
	var stats EnsureStats

	chunks, err := m.store.ListChunksByStatus(ctx, metadata.ChunkUploaded)
	if err != nil {
		return stats, fmt.Errorf("list uploaded chunks: %w", err)
	}

	for _, chunk := range chunks {
		if chunk.IsReplica {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Checked++

		count, err := m.store.CountUploadedReplicas(ctx, chunk.FileID, chunk.ChunkNumber)
		if err != nil {
			stats.Failed++
			continue
		}
		if int(count) >= m.config.MinReplicas {
			stats.AlreadySufficient++
			continue
		}

		created, err := m.CreateReplicasForChunk(ctx, chunk, nil)
		stats.Created += created
		if err != nil {
			logger.Warn("Replica top-up failed",
				"file_id", chunk.FileID, "chunk", chunk.ChunkNumber, "error", err)
			stats.Failed++
		}
	}

	logger.Info("Replica sweep finished",
		"checked", stats.Checked, "created", stats.Created,
		"failed", stats.Failed, "already_sufficient", stats.AlreadySufficient)
	return stats, nil
}

// VerifyAndRepairAllChunks sweeps every uploaded chunk, re-hashing each
// object against its stored digest. Digest mismatches go to corrupt,
// missing objects to failed; affected primaries are repaired from their
// replicas on the spot. Chunks on unreachable nodes are skipped, not
// demoted: an outage says nothing about the bytes. The sweep is
// idempotent on a healthy store.
func (m *Manager) VerifyAndRepairAllChunks(ctx context.Context) (VerifyStats, error) {
	chunks, err := m.store.ListChunksByStatus(ctx, metadata.ChunkUploaded)
	if err != nil {
		return VerifyStats{}, fmt.Errorf("list uploaded chunks: %w", err)
	}

	var (
		mu    sync.Mutex
		stats VerifyStats
		bad   []*metadata.Chunk
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyWorkers)
	for _, chunk := range chunks {
		g.Go(func() error {
			outcome := m.verifyChunk(gctx, chunk)

			mu.Lock()
			defer mu.Unlock()
			stats.Checked++
			switch outcome {
			case verifyHealthy:
				stats.Healthy++
			case verifyCorrupt:
				stats.Corrupt++
				bad = append(bad, chunk)
			case verifyMissing:
				stats.Failed++
				bad = append(bad, chunk)
			case verifySkipped:
				stats.Skipped++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	// Repairs run after the sweep so a repaired chunk is not re-read by
	// a concurrent verify worker mid-write.
	for _, chunk := range bad {
		if chunk.IsReplica {
			// Replicas are never repaired; the next replica sweep
			// re-creates the copy elsewhere.
			continue
		}
		if err := m.RepairChunk(ctx, chunk); err != nil {
			logger.Warn("Repair failed",
				"file_id", chunk.FileID, "chunk", chunk.ChunkNumber, "error", err)
			stats.RepairFailed++
			continue
		}
		stats.Repaired++
	}

	logger.Info("Verification sweep finished",
		"checked", stats.Checked, "corrupt", stats.Corrupt, "failed", stats.Failed,
		"repaired", stats.Repaired, "repair_failed", stats.RepairFailed,
		"skipped", stats.Skipped)
	return stats, nil
}

type verifyOutcome int

const (
	verifyHealthy verifyOutcome = iota
	verifyCorrupt
	verifyMissing
	verifySkipped
)

func (m *Manager) verifyChunk(ctx context.Context, chunk *metadata.Chunk) verifyOutcome {
	if chunk.Node == nil {
		return verifySkipped
	}

	client, err := m.dialer.Dial(ctx, chunk.Node)
	if err != nil {
		return verifySkipped
	}

	obj, err := client.GetObject(ctx, chunk.Node.Bucket, chunk.ObjectKey)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			logger.Warn("Chunk object missing",
				"file_id", chunk.FileID, "chunk", chunk.ChunkNumber,
				"node", chunk.Node.Name, "replica", chunk.IsReplica)
			m.markStatus(ctx, chunk, metadata.ChunkUploaded, metadata.ChunkFailed)
			return verifyMissing
		}
		return verifySkipped
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return verifySkipped
	}

	digest := sha256.Sum256(data)
	if hex.EncodeToString(digest[:]) != chunk.Digest {
		logger.Warn("Chunk failed digest check",
			"file_id", chunk.FileID, "chunk", chunk.ChunkNumber,
			"node", chunk.Node.Name, "replica", chunk.IsReplica)
		m.markStatus(ctx, chunk, metadata.ChunkUploaded, metadata.ChunkCorrupt)
		return verifyCorrupt
	}
	return verifyHealthy
}

// VerifyNode verifies only the chunks placed on one node.
func (m *Manager) VerifyNode(ctx context.Context, nodeID uint) (VerifyStats, error) {
	chunks, err := m.store.ListChunksByNode(ctx, nodeID)
	if err != nil {
		return VerifyStats{}, fmt.Errorf("list node chunks: %w", err)
	}
	return m.verifySubset(ctx, chunks)
}

// VerifyFile verifies only one file's chunks.
func (m *Manager) VerifyFile(ctx context.Context, fileID string) (VerifyStats, error) {
	chunks, err := m.store.ListChunksByFile(ctx, fileID)
	if err != nil {
		return VerifyStats{}, fmt.Errorf("list file chunks: %w", err)
	}
	return m.verifySubset(ctx, chunks)
}

func (m *Manager) verifySubset(ctx context.Context, chunks []*metadata.Chunk) (VerifyStats, error) {
	var stats VerifyStats
	for _, chunk := range chunks {
		if chunk.Status != metadata.ChunkUploaded {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		stats.Checked++
		switch m.verifyChunk(ctx, chunk) {
		case verifyHealthy:
			stats.Healthy++
		case verifySkipped:
			stats.Skipped++
		case verifyCorrupt:
			stats.Corrupt++
			m.repairIfPrimary(ctx, chunk, &stats)
		case verifyMissing:
			stats.Failed++
			m.repairIfPrimary(ctx, chunk, &stats)
		}
	}
	return stats, nil
}

func (m *Manager) repairIfPrimary(ctx context.Context, chunk *metadata.Chunk, stats *VerifyStats) {
	if chunk.IsReplica {
		return
	}
	if err := m.RepairChunk(ctx, chunk); err != nil {
		logger.Warn("Repair failed",
			"file_id", chunk.FileID, "chunk", chunk.ChunkNumber, "error", err)
		stats.RepairFailed++
		return
	}
	stats.Repaired++
}

// RepairChunk restores a corrupt or failed primary from the first
// replica whose bytes still verify. The fresh object lands on the
// primary's node under a new primary key; the row is repointed and
// marked uploaded in one update. Replicas are never repaired.
func (m *Manager) RepairChunk(ctx context.Context, primary *metadata.Chunk) error {
	if primary.IsReplica {
		return fmt.Errorf("%w: refusing to repair a replica", ErrNotReplicable)
	}
	if primary.NodeID == nil {
		return fmt.Errorf("%w: primary has no node", ErrNoValidReplica)
	}

	node := primary.Node
	if node == nil {
		n, err := m.store.GetNode(ctx, *primary.NodeID)
		if err != nil {
			return fmt.Errorf("load primary node: %w", err)
		}
		node = n
	}

	file, err := m.store.GetFile(ctx, primary.FileID)
	if err != nil {
		return fmt.Errorf("load file: %w", err)
	}

	copies, err := m.store.ListChunkCopies(ctx, primary.FileID, primary.ChunkNumber)
	if err != nil {
		return fmt.Errorf("list copies: %w", err)
	}

	for _, replica := range copies {
		if !replica.IsReplica || replica.Status != metadata.ChunkUploaded || replica.Node == nil {
			continue
		}

		data, err := m.fetchVerified(ctx, replica)
		if err != nil {
			logger.Warn("Repair source replica unusable",
				"file_id", primary.FileID, "chunk", primary.ChunkNumber,
				"node", replica.Node.Name, "error", err)
			continue
		}

		client, err := m.dialer.Dial(ctx, node)
		if err != nil {
			return fmt.Errorf("dial primary node %s: %w", node.Name, err)
		}
		if err := client.EnsureBucket(ctx, node.Bucket); err != nil {
			return fmt.Errorf("ensure bucket: %w", err)
		}

		key := transfer.PrimaryObjectKey(file.Owner, primary.FileID, primary.ChunkNumber)
		if err := client.PutObject(ctx, node.Bucket, key, bytes.NewReader(data), int64(len(data))); err != nil {
			return fmt.Errorf("write repaired object: %w", err)
		}

		if err := m.store.RepairChunkRow(ctx, primary.ID, key); err != nil {
			return fmt.Errorf("repoint primary row: %w", err)
		}

		if m.invalidator != nil {
			m.invalidator.Invalidate(primary.FileID)
		}

		logger.Info("Primary repaired from replica",
			"file_id", primary.FileID, "chunk", primary.ChunkNumber,
			"source", replica.Node.Name, "node", node.Name)
		return nil
	}

	return fmt.Errorf("chunk %d of file %s: %w",
		primary.ChunkNumber, primary.FileID, ErrNoValidReplica)
}

// fetchVerified reads one copy and checks it against the stored digest.
func (m *Manager) fetchVerified(ctx context.Context, chunk *metadata.Chunk) ([]byte, error) {
	client, err := m.dialer.Dial(ctx, chunk.Node)
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
		return nil, err
	}

	digest := sha256.Sum256(data)
	if hex.EncodeToString(digest[:]) != chunk.Digest {
		return nil, fmt.Errorf("copy on %s: %w", chunk.Node.Name, backend.ErrIntegrity)
	}
	return data, nil
}

// CheckFileIntegrity reports whether a file can still be reconstructed:
// every gap in the uploaded primaries and every corrupt or failed
// primary must have an uploaded replica.
func (m *Manager) CheckFileIntegrity(ctx context.Context, file *metadata.StoredFile) (IntegrityReport, error) {
	report := IntegrityReport{FileID: file.ID, Recoverable: true}

	rows, err := m.store.ListChunksByFile(ctx, file.ID)
	if err != nil {
		return report, fmt.Errorf("list chunks: %w", err)
	}

	if len(rows) == 0 {
		// Zero chunks: an empty file, trivially intact.
		return report, nil
	}

	uploadedPrimaries := make(map[int]bool)
	total := 0
	for _, row := range rows {
		if row.ChunkNumber > total {
			total = row.ChunkNumber
		}
		if row.IsReplica {
			continue
		}
		switch row.Status {
		case metadata.ChunkUploaded:
			uploadedPrimaries[row.ChunkNumber] = true
		case metadata.ChunkCorrupt, metadata.ChunkFailed:
			report.CorruptPrimaries = append(report.CorruptPrimaries, row.ChunkNumber)
		}
	}
	report.TotalChunks = total

	for n := 1; n <= total; n++ {
		if !uploadedPrimaries[n] {
			report.MissingNumbers = append(report.MissingNumbers, n)
		}
	}

	// Corrupt primaries are a subset of the missing-uploaded set; one
	// replica check per affected number is enough.
	sort.Ints(report.MissingNumbers)
	for _, n := range report.MissingNumbers {
		count, err := m.store.CountUploadedReplicas(ctx, file.ID, n)
		if err != nil {
			return report, fmt.Errorf("count replicas for chunk %d: %w", n, err)
		}
		if count == 0 {
			report.Recoverable = false
			break
		}
	}

	return report, nil
}
