// Package service wires the shardstore engine together and exposes the
// programmatic surface: upload, download, node administration,
// verification sweeps, and statistics. The API server and the CLI both
// sit on top of this package.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/shardstore/internal/logger"
	"github.com/marmos91/shardstore/internal/telemetry"
	"github.com/marmos91/shardstore/pkg/backend"
	"github.com/marmos91/shardstore/pkg/cluster"
	"github.com/marmos91/shardstore/pkg/filecache"
	"github.com/marmos91/shardstore/pkg/health"
	"github.com/marmos91/shardstore/pkg/metadata"
	"github.com/marmos91/shardstore/pkg/metadata/store"
	"github.com/marmos91/shardstore/pkg/redundancy"
	"github.com/marmos91/shardstore/pkg/transfer"
)

// Config bundles the engine's policy knobs.
type Config struct {
	Chunker    transfer.ChunkerConfig
	Redundancy redundancy.Config
	Drain      redundancy.DrainConfig
	Monitor    cluster.MonitorConfig
	Cache      filecache.Config

	// DrainInterval is the period of the background pending drainer.
	// Default: 5 minutes.
	DrainInterval time.Duration
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	c.Chunker.ApplyDefaults()
	c.Redundancy.ApplyDefaults()
	c.Drain.ApplyDefaults()
	c.Monitor.ApplyDefaults()
	c.Cache.ApplyDefaults()
	if c.DrainInterval <= 0 {
		c.DrainInterval = 5 * time.Minute
	}
}

// Service is the assembled engine.
type Service struct {
	store      store.Store
	dialer     backend.Dialer
	registry   *cluster.Registry
	monitor    *cluster.Monitor
	placement  *cluster.Placement
	chunker    *transfer.Chunker
	reassembly *transfer.Reassembler
	redundancy *redundancy.Manager
	cache      *filecache.Cache
	health     *health.Reporter
	metrics    *Metrics
	config     Config
}

// New assembles the engine over a metadata store and a backend dialer.
// metrics may be nil for an inert set.
func New(s store.Store, dialer backend.Dialer, metrics *Metrics, config Config) *Service {
	config.ApplyDefaults()
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	registry := cluster.NewRegistry(s)
	monitor := cluster.NewMonitor(s, dialer, config.Monitor)
	placement := cluster.NewPlacement(s, monitor)
	cache := filecache.New(config.Cache)
	red := redundancy.NewManager(s, dialer, monitor, cache, config.Redundancy)
	chunker := transfer.NewChunker(s, placement, monitor, dialer, red, config.Chunker)
	reassembly := transfer.NewReassembler(s, dialer)
	reporter := health.NewReporter(s, monitor, red)

	return &Service{
		store:      s,
		dialer:     dialer,
		registry:   registry,
		monitor:    monitor,
		placement:  placement,
		chunker:    chunker,
		reassembly: reassembly,
		redundancy: red,
		cache:      cache,
		health:     reporter,
		metrics:    metrics,
		config:     config,
	}
}

// Store gives handlers direct read access to metadata.
func (s *Service) Store() store.Store { return s.store }

// Registry returns the node registry.
func (s *Service) Registry() *cluster.Registry { return s.registry }

// Monitor returns the node monitor.
func (s *Service) Monitor() *cluster.Monitor { return s.monitor }

// Cache returns the whole-file cache.
func (s *Service) Cache() *filecache.Cache { return s.cache }

// Health returns the health reporter.
func (s *Service) Health() *health.Reporter { return s.health }

// ============================================
// FILES
// ============================================

// StoreFile uploads a stream as a new file.
func (s *Service) StoreFile(ctx context.Context, req transfer.StoreRequest, r io.Reader) (*metadata.StoredFile, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.StoreFile")
	defer span.End()

	start := time.Now()
	file, err := s.chunker.Store(ctx, req, r)
	if err != nil {
		telemetry.RecordError(ctx, err)
		s.metrics.UploadsFailed.Inc()
		return nil, err
	}

	s.metrics.Uploads.Inc()
	s.metrics.UploadBytes.Add(float64(file.SizeBytes))
	s.metrics.UploadDuration.Observe(time.Since(start).Seconds())
	return file, nil
}

// RetrieveFile streams a file's bytes to w, serving from the whole-file
// cache when possible and populating it after a successful reassembly
// of files under the cache size cap. The file's last_accessed stamp is
// updated after a successful stream start, outside the cache write.
func (s *Service) RetrieveFile(ctx context.Context, fileID string, w io.Writer) (*metadata.StoredFile, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.RetrieveFile")
	defer span.End()

	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if data, ok := s.cache.Get(fileID); ok {
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("write cached file: %w", err)
		}
		s.finishRetrieval(ctx, file, int64(len(data)), true)
		return file, nil
	}

	// Files small enough to cache are reassembled into memory first;
	// larger files stream straight through.
	if file.SizeBytes < s.cacheLimit() {
		var buf bytes.Buffer
		if err := s.reassembly.Reassemble(ctx, file, &buf); err != nil {
			telemetry.RecordError(ctx, err)
			s.metrics.DownloadsFailed.Inc()
			return nil, err
		}
		data := buf.Bytes()
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("write file: %w", err)
		}
		s.cache.Put(fileID, data)
		s.finishRetrieval(ctx, file, int64(len(data)), false)
		return file, nil
	}

	if err := s.reassembly.Reassemble(ctx, file, w); err != nil {
		telemetry.RecordError(ctx, err)
		s.metrics.DownloadsFailed.Inc()
		return nil, err
	}
	s.finishRetrieval(ctx, file, file.SizeBytes, false)
	return file, nil
}

func (s *Service) finishRetrieval(ctx context.Context, file *metadata.StoredFile, size int64, cached bool) {
	s.metrics.Downloads.Inc()
	s.metrics.DownloadBytes.Add(float64(size))
	if cached {
		s.metrics.CacheHits.Inc()
	} else {
		s.metrics.CacheMisses.Inc()
	}

	s.cache.RecordAccess(file.ID)
	if err := s.store.TouchLastAccessed(ctx, file.ID); err != nil {
		logger.Warn("Updating last_accessed failed", "file_id", file.ID, "error", err)
	}
}

func (s *Service) cacheLimit() int64 {
	limit := s.config.Cache.MaxFileSize
	if limit <= 0 {
		limit = 50 * 1024 * 1024
	}
	return limit
}

// GetFile returns a file's metadata.
func (s *Service) GetFile(ctx context.Context, fileID string) (*metadata.StoredFile, error) {
	return s.store.GetFile(ctx, fileID)
}

// ListFiles returns all stored files.
func (s *Service) ListFiles(ctx context.Context) ([]*metadata.StoredFile, error) {
	return s.store.ListFiles(ctx)
}

// DeleteFile removes a file: every chunk and replica object
// best-effort, then the metadata rows in one transaction, then the
// cache entry. Object deletions that fail are logged and skipped; the
// rows go regardless so the file disappears for callers.
func (s *Service) DeleteFile(ctx context.Context, fileID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.DeleteFile")
	defer span.End()

	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}

	rows, err := s.store.ListChunksByFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}

	for _, row := range rows {
		if row.Node == nil {
			continue
		}
		client, err := s.dialer.Dial(ctx, row.Node)
		if err != nil {
			logger.Warn("Delete: dial failed", "node", row.Node.Name, "error", err)
			continue
		}
		if err := client.RemoveObject(ctx, row.Node.Bucket, row.ObjectKey); err != nil {
			logger.Warn("Delete: object removal failed",
				"node", row.Node.Name, "key", row.ObjectKey, "error", err)
		}
	}

	if err := s.store.DeleteFile(ctx, fileID); err != nil {
		return err
	}

	s.cache.Invalidate(fileID)
	s.monitor.InvalidateLoadStats()
	logger.Info("File deleted", "file_id", fileID, "owner", file.Owner, "chunks", len(rows))
	return nil
}

// ============================================
// NODES
// ============================================

// AddNode registers a storage node and verifies its bucket exists,
// creating it when reachable. An unreachable node is still registered;
// the bucket check happens again on first use.
func (s *Service) AddNode(ctx context.Context, params cluster.AddNodeParams) (*metadata.Node, error) {
	node, err := s.registry.AddNode(ctx, params)
	if err != nil {
		return nil, err
	}

	client, err := s.dialer.Dial(ctx, node)
	if err == nil {
		if err := client.EnsureBucket(ctx, node.Bucket); err != nil {
			logger.Warn("Bucket check on new node failed", "node", node.Name, "error", err)
		}
	}

	s.monitor.InvalidateLoadStats()
	return node, nil
}

// SetNodeStatus changes a node's administrative status and re-elects
// the primary when the change could have removed it.
func (s *Service) SetNodeStatus(ctx context.Context, id uint, status metadata.NodeStatus) error {
	if err := s.registry.SetStatus(ctx, id, status); err != nil {
		return err
	}
	s.monitor.InvalidateLoadStats()

	if _, err := s.monitor.ElectPrimary(ctx); err != nil && !errors.Is(err, metadata.ErrNoActiveNodes) {
		logger.Warn("Primary re-election failed", "error", err)
	}
	return nil
}

// ElectPrimary forces a primary election.
func (s *Service) ElectPrimary(ctx context.Context) (*metadata.Node, error) {
	return s.monitor.ElectPrimary(ctx)
}

// ============================================
// MAINTENANCE
// ============================================

// VerifyAll runs a full verification and repair sweep.
func (s *Service) VerifyAll(ctx context.Context) (redundancy.VerifyStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.VerifyAll")
	defer span.End()

	stats, err := s.redundancy.VerifyAndRepairAllChunks(ctx)
	s.recordVerify(stats)
	return stats, err
}

// VerifyNode verifies the chunks on one node.
func (s *Service) VerifyNode(ctx context.Context, nodeID uint) (redundancy.VerifyStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.VerifyNode")
	defer span.End()

	stats, err := s.redundancy.VerifyNode(ctx, nodeID)
	s.recordVerify(stats)
	return stats, err
}

// VerifyFile verifies one file's chunks.
func (s *Service) VerifyFile(ctx context.Context, fileID string) (redundancy.VerifyStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.VerifyFile")
	defer span.End()

	stats, err := s.redundancy.VerifyFile(ctx, fileID)
	s.recordVerify(stats)
	return stats, err
}

func (s *Service) recordVerify(stats redundancy.VerifyStats) {
	s.metrics.ChunksVerified.Add(float64(stats.Checked))
	s.metrics.ChunksCorrupt.Add(float64(stats.Corrupt))
	s.metrics.ChunksRepaired.Add(float64(stats.Repaired))
}

// EnsureReplicas tops every uploaded primary up to the minimum replica
// count.
func (s *Service) EnsureReplicas(ctx context.Context) (redundancy.EnsureStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.EnsureReplicas")
	defer span.End()

	stats, err := s.redundancy.EnsureMinimumReplicas(ctx)
	s.metrics.ReplicasCreated.Add(float64(stats.Created))
	return stats, err
}

// DrainPendingReplications walks the pending backlog once.
func (s *Service) DrainPendingReplications(ctx context.Context) (redundancy.DrainStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.DrainPendingReplications")
	defer span.End()

	stats, err := s.redundancy.DrainPending(ctx, s.config.Drain)
	s.metrics.ReplicasCreated.Add(float64(stats.Created))
	return stats, err
}

// MaintainStats is the combined result of a full maintenance pass.
type MaintainStats struct {
	Verify redundancy.VerifyStats `json:"verify"`
	Ensure redundancy.EnsureStats `json:"ensure"`
	Drain  redundancy.DrainStats  `json:"drain"`
}

// Maintain chains a verification sweep, a replica top-up, and a backlog
// drain. Later phases run even when an earlier one errored; the first
// error is returned alongside the combined stats.
func (s *Service) Maintain(ctx context.Context) (MaintainStats, error) {
	var stats MaintainStats
	var firstErr error

	verify, err := s.VerifyAll(ctx)
	stats.Verify = verify
	if err != nil {
		firstErr = err
	}

	ensure, err := s.EnsureReplicas(ctx)
	stats.Ensure = ensure
	if err != nil && firstErr == nil {
		firstErr = err
	}

	drain, err := s.DrainPendingReplications(ctx)
	stats.Drain = drain
	if err != nil && firstErr == nil {
		firstErr = err
	}

	return stats, firstErr
}

// CheckFileIntegrity reports whether a file is recoverable.
func (s *Service) CheckFileIntegrity(ctx context.Context, fileID string) (redundancy.IntegrityReport, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return redundancy.IntegrityReport{}, err
	}
	return s.redundancy.CheckFileIntegrity(ctx, file)
}

// ============================================
// STATS
// ============================================

// SystemStats is the ShowStats snapshot.
type SystemStats struct {
	Nodes struct {
		Total     int `json:"total"`
		Active    int `json:"active"`
		Available int `json:"available"`
	} `json:"nodes"`
	Files   int64                          `json:"files"`
	Chunks  map[metadata.ChunkStatus]int64 `json:"chunks"`
	Pending int64                          `json:"pending_replications"`
	Cache   filecache.Stats                `json:"cache"`
	Health  health.SystemReport            `json:"health"`
}

// ShowStats collects the cluster-wide statistics snapshot.
func (s *Service) ShowStats(ctx context.Context) (SystemStats, error) {
	var stats SystemStats

	overall, err := s.health.OverallStatus(ctx)
	if err != nil {
		return stats, err
	}
	stats.Health = overall
	stats.Nodes.Total = overall.TotalNodes
	stats.Nodes.Active = overall.ActiveNodes
	stats.Nodes.Available = overall.AvailableNodes

	files, err := s.store.CountFiles(ctx)
	if err != nil {
		return stats, err
	}
	stats.Files = files

	chunks, err := s.store.ChunkStatusCounts(ctx)
	if err != nil {
		return stats, err
	}
	stats.Chunks = chunks

	pending, err := s.store.CountPending(ctx)
	if err != nil {
		return stats, err
	}
	stats.Pending = pending

	stats.Cache = s.cache.Stats()
	return stats, nil
}
