// Package catalog provides read access to the iptv-org reference datasets
// (https://iptv-org.github.io/api): countries, channels, streams and logos.
//
// Datasets are held in memory as an immutable Snapshot that is reloaded once
// it is older than the configured TTL. When Redis is configured the raw JSON
// is shared between instances under catalog:<dataset> keys, and forced
// refreshes are serialised with a Redis lock.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/voyagen/primecast/internal/cache"
	"github.com/voyagen/primecast/internal/log"
	"github.com/voyagen/primecast/internal/metrics"
)

var (
	// ErrUnavailable wraps any failure to obtain a snapshot.
	ErrUnavailable = errors.New("catalog unavailable")
	// ErrRefreshInProgress is returned by Refresh while another instance holds
	// the refresh lock.
	ErrRefreshInProgress = errors.New("catalog refresh already in progress")
)

const (
	keyPrefix      = "catalog:"
	refreshLockKey = "catalog:refresh"
	refreshLockTTL = 5 * time.Minute
)

// DatasetFetcher downloads one raw dataset.
type DatasetFetcher interface {
	Fetch(ctx context.Context, dataset string) ([]byte, error)
}

// Catalog caches Snapshots in memory and optionally in Redis.
type Catalog struct {
	fetcher DatasetFetcher
	redis   *cache.Redis // nil disables the shared cache
	ttl     time.Duration
	now     func() time.Time
	logger  zerolog.Logger

	mu   sync.Mutex // serialises loads
	snap atomic.Pointer[Snapshot]
}

// New returns a Catalog. rds may be nil.
func New(f DatasetFetcher, rds *cache.Redis, ttl time.Duration) *Catalog {
	return &Catalog{
		fetcher: f,
		redis:   rds,
		ttl:     ttl,
		now:     time.Now,
		logger:  log.WithComponent("catalog"),
	}
}

// Snapshot returns the current datasets, loading them when missing or older
// than the TTL. If a reload fails and an older snapshot exists, the older one
// is served.
func (c *Catalog) Snapshot(ctx context.Context) (*Snapshot, error) {
	if s := c.fresh(); s != nil {
		return s, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.fresh(); s != nil {
		return s, nil
	}

	s, err := c.load(ctx, false)
	if err != nil {
		if stale := c.snap.Load(); stale != nil {
			c.logger.Warn().Err(err).Time("fetched_at", stale.FetchedAt).Msg("reload failed, serving stale catalog")
			return stale, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	c.store(s)
	return s, nil
}

// Refresh downloads every dataset from upstream, bypassing both caches.
func (c *Catalog) Refresh(ctx context.Context) (*Snapshot, error) {
	if c.redis != nil {
		unlock, err := cache.TryLock(ctx, c.redis, refreshLockKey, refreshLockTTL)
		if errors.Is(err, cache.ErrLocked) {
			return nil, ErrRefreshInProgress
		}
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.load(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	c.store(s)
	return s, nil
}

func (c *Catalog) fresh() *Snapshot {
	s := c.snap.Load()
	if s == nil || c.now().Sub(s.FetchedAt) >= c.ttl {
		return nil
	}
	return s
}

func (c *Catalog) store(s *Snapshot) {
	c.snap.Store(s)
	metrics.SetCatalogChannels(len(s.Channels))
	c.logger.Info().
		Int("countries", len(s.Countries)).
		Int("channels", len(s.Channels)).
		Int("streams", len(s.Streams)).
		Int("logos", len(s.Logos)).
		Msg("catalog loaded")
}

// load fetches all datasets concurrently and decodes them.
func (c *Catalog) load(ctx context.Context, force bool) (*Snapshot, error) {
	fetchedAt := c.now()
	raw := make(map[string][]byte, len(datasets))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range datasets {
		g.Go(func() error {
			data, err := c.dataset(gctx, name, force)
			if err != nil {
				return err
			}
			mu.Lock()
			raw[name] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return decodeSnapshot(raw, fetchedAt)
}

func (c *Catalog) dataset(ctx context.Context, name string, force bool) ([]byte, error) {
	key := keyPrefix + name
	if c.redis != nil && !force {
		data, err := c.redis.GetRaw(ctx, key)
		if err == nil {
			return data, nil
		}
		if !cache.IsMiss(err) {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache get")
		}
	}

	data, err := c.fetcher.Fetch(ctx, name)
	metrics.RecordCatalogFetch(name, err)
	if err != nil {
		return nil, err
	}
	if c.redis != nil {
		if err := c.redis.SetRaw(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache set")
		}
	}
	return data, nil
}
