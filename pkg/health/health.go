// Package health aggregates node, file, and system health snapshots.
package health

import (
	"context"
	"fmt"

	"github.com/marmos91/shardstore/pkg/cluster"
	"github.com/marmos91/shardstore/pkg/metadata"
	"github.com/marmos91/shardstore/pkg/metadata/store"
	"github.com/marmos91/shardstore/pkg/redundancy"
)

// Status is a coarse health classification.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	// StatusOffline applies to nodes that are not administratively
	// active; their chunk health is not evaluated.
	StatusOffline Status = "offline"
)

// System-level thresholds (fractions).
const (
	systemNodeHealthy  = 0.75
	systemNodeWarning  = 0.50
	systemChunkHealthy = 0.95
	systemChunkWarning = 0.80

	nodeChunkHealthy = 0.95
	nodeChunkWarning = 0.80
)

// SystemReport is the cluster-wide health snapshot.
type SystemReport struct {
	Status         Status  `json:"status"`
	NodeHealth     float64 `json:"node_health"`
	ChunkHealth    float64 `json:"chunk_health"`
	TotalNodes     int     `json:"total_nodes"`
	ActiveNodes    int     `json:"active_nodes"`
	AvailableNodes int     `json:"available_nodes"`
	TotalChunks    int64   `json:"total_chunks"`
	UploadedChunks int64   `json:"uploaded_chunks"`
	CorruptChunks  int64   `json:"corrupt_chunks"`
	FailedChunks   int64   `json:"failed_chunks"`
}

// NodeReport is one node's health snapshot.
type NodeReport struct {
	NodeID         uint    `json:"node_id"`
	Name           string  `json:"name"`
	Status         Status  `json:"status"`
	Available      bool    `json:"available"`
	ChunkHealth    float64 `json:"chunk_health"`
	TotalChunks    int64   `json:"total_chunks"`
	UploadedChunks int64   `json:"uploaded_chunks"`
	CorruptChunks  int64   `json:"corrupt_chunks"`
	FailedChunks   int64   `json:"failed_chunks"`
}

// FileReport is one file's health snapshot.
type FileReport struct {
	FileID           string `json:"file_id"`
	Status           Status `json:"status"`
	CanRecover       bool   `json:"can_recover"`
	TotalChunks      int    `json:"total_chunks"`
	UploadedPrimary  int    `json:"uploaded_primary"`
	CorruptPrimary   int    `json:"corrupt_primary"`
	FailedPrimary    int    `json:"failed_primary"`
	UploadedReplicas int    `json:"uploaded_replicas"`
	MissingNumbers   []int  `json:"missing_numbers,omitempty"`
}

// Reporter computes health snapshots from the store, the monitor's
// availability view, and the redundancy manager's integrity checks.
type Reporter struct {
	store      store.Store
	monitor    *cluster.Monitor
	redundancy *redundancy.Manager
}

// NewReporter creates a reporter.
func NewReporter(s store.Store, monitor *cluster.Monitor, r *redundancy.Manager) *Reporter {
	return &Reporter{store: s, monitor: monitor, redundancy: r}
}

// OverallStatus computes the cluster-wide snapshot: node health is the
// active fraction of all nodes, chunk health the uploaded fraction of
// all settled (uploaded, corrupt, failed) chunk rows.
func (r *Reporter) OverallStatus(ctx context.Context) (SystemReport, error) {
	var report SystemReport

	nodes, err := r.store.ListNodes(ctx)
	if err != nil {
		return report, fmt.Errorf("list nodes: %w", err)
	}
	report.TotalNodes = len(nodes)
	for _, node := range nodes {
		if node.IsActive() {
			report.ActiveNodes++
		}
	}

	available, err := r.monitor.CountAvailable(ctx)
	if err != nil {
		return report, fmt.Errorf("count available nodes: %w", err)
	}
	report.AvailableNodes = available

	counts, err := r.store.ChunkStatusCounts(ctx)
	if err != nil {
		return report, fmt.Errorf("chunk status counts: %w", err)
	}
	report.UploadedChunks = counts[metadata.ChunkUploaded]
	report.CorruptChunks = counts[metadata.ChunkCorrupt]
	report.FailedChunks = counts[metadata.ChunkFailed]
	for _, n := range counts {
		report.TotalChunks += n
	}

	report.NodeHealth = ratio(int64(report.ActiveNodes), int64(report.TotalNodes))
	report.ChunkHealth = chunkHealth(report.UploadedChunks, report.CorruptChunks, report.FailedChunks)

	switch {
	case report.NodeHealth >= systemNodeHealthy && report.ChunkHealth >= systemChunkHealthy:
		report.Status = StatusHealthy
	case report.NodeHealth >= systemNodeWarning && report.ChunkHealth >= systemChunkWarning:
		report.Status = StatusWarning
	default:
		report.Status = StatusCritical
	}
	return report, nil
}

// NodeHealth reports one node: offline when not active, otherwise
// classified by the health of the chunks it holds.
func (r *Reporter) NodeHealth(ctx context.Context, node *metadata.Node) (NodeReport, error) {
	report := NodeReport{NodeID: node.ID, Name: node.Name}

	if !node.IsActive() {
		report.Status = StatusOffline
		return report, nil
	}
	report.Available = r.monitor.Available(ctx, node)

	counts, err := r.store.ChunkStatusCountsByNode(ctx, node.ID)
	if err != nil {
		return report, fmt.Errorf("chunk status counts: %w", err)
	}
	report.UploadedChunks = counts[metadata.ChunkUploaded]
	report.CorruptChunks = counts[metadata.ChunkCorrupt]
	report.FailedChunks = counts[metadata.ChunkFailed]
	for _, n := range counts {
		report.TotalChunks += n
	}

	report.ChunkHealth = chunkHealth(report.UploadedChunks, report.CorruptChunks, report.FailedChunks)

	switch {
	case report.ChunkHealth >= nodeChunkHealthy:
		report.Status = StatusHealthy
	case report.ChunkHealth >= nodeChunkWarning:
		report.Status = StatusWarning
	default:
		report.Status = StatusCritical
	}
	return report, nil
}

// FileHealth reports one file: critical when unrecoverable, warning
// when any primary is corrupt, failed, or missing but replicas cover
// the damage, healthy otherwise.
func (r *Reporter) FileHealth(ctx context.Context, file *metadata.StoredFile) (FileReport, error) {
	report := FileReport{FileID: file.ID}

	rows, err := r.store.ListChunksByFile(ctx, file.ID)
	if err != nil {
		return report, fmt.Errorf("list chunks: %w", err)
	}

	for _, row := range rows {
		if row.IsReplica {
			if row.Status == metadata.ChunkUploaded {
				report.UploadedReplicas++
			}
			continue
		}
		switch row.Status {
		case metadata.ChunkUploaded:
			report.UploadedPrimary++
		case metadata.ChunkCorrupt:
			report.CorruptPrimary++
		case metadata.ChunkFailed:
			report.FailedPrimary++
		}
	}

	integrity, err := r.redundancy.CheckFileIntegrity(ctx, file)
	if err != nil {
		return report, fmt.Errorf("integrity check: %w", err)
	}
	report.CanRecover = integrity.Recoverable
	report.TotalChunks = integrity.TotalChunks
	report.MissingNumbers = integrity.MissingNumbers

	switch {
	case !report.CanRecover:
		report.Status = StatusCritical
	case len(report.MissingNumbers) > 0 || report.CorruptPrimary > 0 || report.FailedPrimary > 0:
		report.Status = StatusWarning
	default:
		report.Status = StatusHealthy
	}
	return report, nil
}

// chunkHealth is the uploaded fraction of settled chunk rows. A store
// with no settled chunks counts as fully healthy.
func chunkHealth(uploaded, corrupt, failed int64) float64 {
	return ratio(uploaded, uploaded+corrupt+failed)
}

func ratio(part, whole int64) float64 {
	if whole == 0 {
		return 1
	}
	return float64(part) / float64(whole)
}
