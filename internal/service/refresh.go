package service

import (
	"context"
	"errors"
	"time"

	"github.com/voyagen/primecast/internal/cache"
	"github.com/voyagen/primecast/internal/catalog"
	"github.com/voyagen/primecast/internal/log"
)

// CatalogRefresher reloads the upstream catalog.
type CatalogRefresher interface {
	Refresh(ctx context.Context) (*catalog.Snapshot, error)
}

// RequestCatalogRefresh queues a forced catalog reload for the worker.
func RequestCatalogRefresh(ctx context.Context, rds *cache.Redis, requestedBy string) error {
	return cache.Enqueue(ctx, rds, cache.CatalogQueue, cache.CatalogRefreshJob{
		RequestedBy: requestedBy,
		RequestedAt: time.Now().UTC(),
	})
}

// RunCatalogWorker drains catalog refresh jobs until ctx is cancelled.
func RunCatalogWorker(ctx context.Context, rds *cache.Redis, cat CatalogRefresher, pollTimeout time.Duration) {
	logger := log.WithComponent("catalog-worker")
	logger.Info().Msg("catalog worker started")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("catalog worker stopping")
			return
		default:
		}

		job, err := cache.Dequeue(ctx, rds, cache.CatalogQueue, pollTimeout)
		if err != nil {
			logger.Error().Err(err).Msg("dequeue")
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}

		logger.Info().Str("requested_by", job.RequestedBy).Time("requested_at", job.RequestedAt).Msg("refreshing catalog")
		snap, err := cat.Refresh(ctx)
		switch {
		case errors.Is(err, catalog.ErrRefreshInProgress):
			logger.Info().Msg("refresh already running elsewhere, job dropped")
		case err != nil:
			logger.Error().Err(err).Msg("catalog refresh")
		default:
			logger.Info().Int("channels", len(snap.Channels)).Msg("catalog refreshed")
		}
	}
}
