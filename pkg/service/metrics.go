package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments. A nil registerer
// yields working but unregistered (inert) instruments, so callers that
// do not scrape pay nothing.
type Metrics struct {
	Uploads         prometheus.Counter
	UploadsFailed   prometheus.Counter
	UploadBytes     prometheus.Counter
	UploadDuration  prometheus.Histogram
	Downloads       prometheus.Counter
	DownloadsFailed prometheus.Counter
	DownloadBytes   prometheus.Counter
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	ReplicasCreated prometheus.Counter
	ChunksVerified  prometheus.Counter
	ChunksCorrupt   prometheus.Counter
	ChunksRepaired  prometheus.Counter
}

// NewMetrics creates the instrument set, registered against reg when
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Uploads: factory.NewCounter(prometheus.CounterOpts{
			Name: "shardstore_uploads_total",
			Help: "Completed file uploads.",
		}),
		UploadsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "shardstore_uploads_failed_total",
			Help: "Failed file uploads.",
		}),
		UploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "shardstore_upload_bytes_total",
			Help: "Bytes accepted by completed uploads.",
		}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "shardstore_upload_duration_seconds",
			Help:    "Wall time of completed uploads.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		Downloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "shardstore_downloads_total",
			Help: "Completed file retrievals.",
		}),
		DownloadsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "shardstore_downloads_failed_total",
			Help: "Failed file retrievals.",
		}),
		DownloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "shardstore_download_bytes_total",
			Help: "Bytes served by completed retrievals.",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "shardstore_cache_hits_total",
			Help: "Retrievals served from the whole-file cache.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "shardstore_cache_misses_total",
			Help: "Retrievals that had to reassemble.",
		}),
		ReplicasCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "shardstore_replicas_created_total",
			Help: "Replica objects created.",
		}),
		ChunksVerified: factory.NewCounter(prometheus.CounterOpts{
			Name: "shardstore_chunks_verified_total",
			Help: "Chunk objects re-hashed by verification sweeps.",
		}),
		ChunksCorrupt: factory.NewCounter(prometheus.CounterOpts{
			Name: "shardstore_chunks_corrupt_total",
			Help: "Chunks found corrupt by verification sweeps.",
		}),
		ChunksRepaired: factory.NewCounter(prometheus.CounterOpts{
			Name: "shardstore_chunks_repaired_total",
			Help: "Corrupt or failed primaries repaired from replicas.",
		}),
	}
}
