package commands

import (
	"context"

	"github.com/marmos91/shardstore/internal/logger"
	"github.com/marmos91/shardstore/pkg/backend/dial"
	"github.com/marmos91/shardstore/pkg/config"
	"github.com/marmos91/shardstore/pkg/service"
)

// withEngine loads the configuration, opens the metadata store, and runs
// fn with an assembled engine. Administrative commands use this to work
// directly against the store instead of going through the API server, so
// they work whether or not a server is running.
func withEngine(fn func(ctx context.Context, svc *service.Service) error) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	store, err := config.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("metadata store close error", "error", err)
		}
	}()

	svc := service.New(store, dial.New(cfg.Monitor.ProbeTimeout), nil, config.EngineConfig(cfg))
	return fn(context.Background(), svc)
}
