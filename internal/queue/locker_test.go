package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client, ""), srv
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "tick", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := locker.Acquire(ctx, "tick", time.Minute)
	require.NoError(t, err)
	assert.False(t, second, "lock is held, second acquire must lose")

	require.NoError(t, locker.Release(ctx, "tick"))

	third, err := locker.Acquire(ctx, "tick", time.Minute)
	require.NoError(t, err)
	assert.True(t, third, "released lock is acquirable again")
}

func TestRedisLocker_ExpiresAfterTTL(t *testing.T) {
	locker, srv := newTestLocker(t)
	ctx := context.Background()

	acquired, err := locker.Acquire(ctx, "tick", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	srv.FastForward(2 * time.Minute)

	again, err := locker.Acquire(ctx, "tick", time.Minute)
	require.NoError(t, err)
	assert.True(t, again, "expired lock is acquirable by the next worker")
}
