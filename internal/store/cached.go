package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/voyagen/primecast/internal/cache"
	"github.com/voyagen/primecast/internal/log"
	"github.com/voyagen/primecast/internal/models"
)

const (
	keyUsers = "users:all"
	ttlUsers = 2 * time.Minute
)

// CachedStore wraps a Store with a Redis cache of the user list served to the
// back-office. Password hashes are never written to Redis. Every write invalidates it. Single-user reads go to the inner
// store so that suspensions apply on the next request.
type CachedStore struct {
	inner  Store
	cache  *cache.Redis
	logger zerolog.Logger
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis) *CachedStore {
	return &CachedStore{inner: inner, cache: c, logger: log.WithComponent("store")}
}

func (c *CachedStore) ListUsers(ctx context.Context) ([]models.User, error) {
	if users, err := cache.Get[[]models.User](ctx, c.cache, keyUsers); err == nil {
		return users, nil
	} else if !cache.IsMiss(err) {
		c.logger.Warn().Err(err).Str("key", keyUsers).Msg("cache get")
	}

	users, err := c.inner.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, keyUsers, users, ttlUsers); err != nil {
		c.logger.Warn().Err(err).Str("key", keyUsers).Msg("cache set")
	}
	return users, nil
}

// --- write operations with cache invalidation ---

func (c *CachedStore) CreateUser(ctx context.Context, u *models.User) error {
	if err := c.inner.CreateUser(ctx, u); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *CachedStore) UpdateUser(ctx context.Context, id string, fields UserUpdate) (*models.User, error) {
	u, err := c.inner.UpdateUser(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx)
	return u, nil
}

func (c *CachedStore) DeleteUser(ctx context.Context, id string) error {
	if err := c.inner.DeleteUser(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// --- passthrough (no caching) ---

func (c *CachedStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return c.inner.GetUserByID(ctx, id)
}

func (c *CachedStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return c.inner.GetUserByEmail(ctx, email)
}

// invalidate drops every users:* key, logging any errors.
func (c *CachedStore) invalidate(ctx context.Context) {
	if err := cache.DelPattern(ctx, c.cache, "users:*"); err != nil {
		c.logger.Warn().Err(err).Msg("cache invalidate users")
	}
}
