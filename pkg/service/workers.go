package service

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/shardstore/internal/logger"
	"github.com/marmos91/shardstore/pkg/metadata"
)

// Run starts the background workers and blocks until ctx is cancelled:
// the node monitor loop, and the periodic pending-replication drainer.
// The monitor's offline-to-online transitions trigger targeted drains
// in between periodic passes.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup

	s.monitor.OnNodeOnline(func(node *metadata.Node) {
		drainCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		if _, err := s.redundancy.DrainPendingForNode(drainCtx, node.ID, s.config.Drain); err != nil {
			logger.Warn("Targeted drain failed", "node", node.Name, "error", err)
		}
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.monitor.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.drainLoop(ctx)
	}()

	wg.Wait()
}

func (s *Service) drainLoop(ctx context.Context) {
	logger.Info("Pending drainer started", "interval", s.config.DrainInterval)

	ticker := time.NewTicker(s.config.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Pending drainer stopped")
			return
		case <-ticker.C:
			if _, err := s.DrainPendingReplications(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Periodic drain failed", "error", err)
			}
		}
	}
}
