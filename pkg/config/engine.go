package config

import (
	"fmt"

	"github.com/marmos91/shardstore/pkg/cluster"
	"github.com/marmos91/shardstore/pkg/filecache"
	"github.com/marmos91/shardstore/pkg/metadata/store"
	"github.com/marmos91/shardstore/pkg/redundancy"
	"github.com/marmos91/shardstore/pkg/service"
	"github.com/marmos91/shardstore/pkg/transfer"
)

// OpenStore opens the metadata store described by the configuration.
// The caller owns the returned store and must Close it.
func OpenStore(cfg *Config) (store.Store, error) {
	s, err := store.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	return s, nil
}

// EngineConfig converts the loaded configuration into the engine's
// policy knobs.
func EngineConfig(cfg *Config) service.Config {
	return service.Config{
		Chunker: transfer.ChunkerConfig{
			ChunkSize:         cfg.Storage.ChunkSize.Int64(),
			MinAvailableNodes: cfg.Storage.MinAvailableNodes,
		},
		Redundancy: redundancy.Config{
			MinReplicas: cfg.Replication.MinReplicas,
		},
		Drain: redundancy.DrainConfig{
			MaxAttempts: cfg.Replication.MaxDrainAttempts,
		},
		Monitor: cluster.MonitorConfig{
			Interval:     cfg.Monitor.Interval,
			ProbeTimeout: cfg.Monitor.ProbeTimeout,
			LoadStatsTTL: cfg.Monitor.LoadStatsTTL,
		},
		Cache: filecache.Config{
			FileTTL:        cfg.Cache.FileTTL,
			MaxFileSize:    cfg.Cache.MaxFileSize.Int64(),
			AccessCountTTL: cfg.Cache.AccessCountTTL,
		},
		DrainInterval: cfg.Replication.DrainInterval,
	}
}
