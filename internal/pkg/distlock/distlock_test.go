package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	l1 := NewRedisLock(client, "sync:client-1", time.Minute)
	ok, err := l1.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second holder cannot acquire while held
	l2 := NewRedisLock(client, "sync:client-1", time.Minute)
	ok, err = l2.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l1.Release(ctx))

	ok, err = l2.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ReleaseOnlyIfOwned(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	l1 := NewRedisLock(client, "sync:client-2", time.Minute)
	ok, err := l1.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// A non-owner release must not free the lock
	l2 := NewRedisLock(client, "sync:client-2", time.Minute)
	require.NoError(t, l2.Release(ctx))

	l3 := NewRedisLock(client, "sync:client-2", time.Minute)
	ok, err = l3.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLock_DifferentClientsIndependent(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	l1 := NewSyncLock(client, nil, "client-a", time.Minute)
	l2 := NewSyncLock(client, nil, "client-b", time.Minute)

	ok, err := l1.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l2.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_Extend(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "sync:client-3", time.Minute)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Extend(ctx, 5*time.Minute))
}
