package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/primecast/internal/cache"
)

func newCached(t *testing.T) (*CachedStore, *Memory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	inner := NewMemory()
	return NewCachedStore(inner, cache.NewFromClient(client)), inner, mr
}

func TestCachedStore_ListServedFromCache(t *testing.T) {
	ctx := context.Background()
	cs, inner, mr := newCached(t)

	require.NoError(t, cs.CreateUser(ctx, newUser("a@x.io")))
	users, err := cs.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, mr.Exists(keyUsers))
	assert.Equal(t, "hash", users[0].PasswordHash, "first read comes from the inner store")

	raw, err := mr.Get(keyUsers)
	require.NoError(t, err)
	assert.Contains(t, raw, "a@x.io")
	assert.NotContains(t, raw, "hash", "password hashes stay out of Redis")

	// A write that bypasses the cache is not visible until invalidation.
	require.NoError(t, inner.CreateUser(ctx, newUser("b@x.io")))
	users, err = cs.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Empty(t, users[0].PasswordHash, "cached entries carry no hash")

	require.NoError(t, cs.CreateUser(ctx, newUser("c@x.io")))
	assert.False(t, mr.Exists(keyUsers))
	users, err = cs.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestCachedStore_WritesInvalidate(t *testing.T) {
	ctx := context.Background()
	cs, _, mr := newCached(t)
	u := newUser("a@x.io")
	require.NoError(t, cs.CreateUser(ctx, u))

	_, err := cs.ListUsers(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists(keyUsers))

	yes := true
	got, err := cs.UpdateUser(ctx, u.ID, UserUpdate{IsSuspended: &yes})
	require.NoError(t, err)
	assert.True(t, got.IsSuspended)
	assert.False(t, mr.Exists(keyUsers))

	_, err = cs.ListUsers(ctx)
	require.NoError(t, err)
	require.NoError(t, cs.DeleteUser(ctx, u.ID))
	assert.False(t, mr.Exists(keyUsers))

	_, err = cs.GetUserByID(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedStore_FailedWriteKeepsCache(t *testing.T) {
	ctx := context.Background()
	cs, _, mr := newCached(t)
	require.NoError(t, cs.CreateUser(ctx, newUser("a@x.io")))
	_, err := cs.ListUsers(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, cs.CreateUser(ctx, newUser("A@x.io")), ErrEmailTaken)
	assert.True(t, mr.Exists(keyUsers))
}
