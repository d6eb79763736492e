package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/academy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockerIsExclusive(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewLocker(client)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "janitor", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "janitor", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// a stale token must not release someone else's lease
	require.NoError(t, locker.Release(ctx, "janitor", "other"))
	assert.True(t, m.Exists("janitor"))

	require.NoError(t, locker.Release(ctx, "janitor", token))
	assert.False(t, m.Exists("janitor"))
}

func TestLockerExpires(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewLocker(client)
	_, ok, err := locker.TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	m.FastForward(2 * time.Second)
	_, ok, err = locker.TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNilLocker(t *testing.T) {
	var locker *Locker
	_, _, err := locker.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.NoError(t, locker.Release(context.Background(), "k", "t"))
}

func TestRequired(t *testing.T) {
	assert.False(t, Required(config.Config{}))
	assert.True(t, Required(config.Config{RateLimit: config.RateLimitConfig{Backend: config.BackendRedis}}))
	assert.True(t, Required(config.Config{Webhook: config.WebhookConfig{Ledger: config.BackendRedis}}))
}
