package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fivePerMinute = config.RateLimitPolicy{MaxRequests: 5, Window: time.Minute}

func newRedisWindow(t *testing.T, c clock.Clock) (*RedisWindow, *miniredis.Miniredis) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := NewRedisWindow(client, c)
	require.NoError(t, err)
	return limiter, m
}

func TestLimiterWindow(t *testing.T) {
	backends := map[string]func(t *testing.T, c clock.Clock) Limiter{
		"memory": func(_ *testing.T, c clock.Clock) Limiter { return NewSlidingWindow(c) },
		"redis": func(t *testing.T, c clock.Clock) Limiter {
			l, _ := newRedisWindow(t, c)
			return l
		},
	}

	for name, build := range backends {
		t.Run(name, func(t *testing.T) {
			fake := clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
			limiter := build(t, fake)
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				res, err := limiter.Allow(ctx, "client-a", fivePerMinute)
				require.NoError(t, err)
				require.True(t, res.Allowed, "request %d", i+1)
				assert.Equal(t, 4-i, res.Remaining)
				fake.Advance(time.Second)
			}

			res, err := limiter.Allow(ctx, "client-a", fivePerMinute)
			require.NoError(t, err)
			assert.False(t, res.Allowed)
			assert.Equal(t, 0, res.Remaining)
			assert.Equal(t, 55*time.Second, res.RetryAfter)

			other, err := limiter.Allow(ctx, "client-b", fivePerMinute)
			require.NoError(t, err)
			assert.True(t, other.Allowed)

			fake.Advance(time.Minute)
			res, err = limiter.Allow(ctx, "client-a", fivePerMinute)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
		})
	}
}

func TestLimiterRejectsBadInput(t *testing.T) {
	limiter := NewSlidingWindow(clock.New())
	_, err := limiter.Allow(context.Background(), "", fivePerMinute)
	assert.Error(t, err)
	_, err = limiter.Allow(context.Background(), "k", config.RateLimitPolicy{MaxRequests: 0, Window: time.Minute})
	assert.Error(t, err)
}

func TestSlidingWindowEvictsIdleClients(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	limiter := NewSlidingWindow(fake)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "idle", fivePerMinute)
	require.NoError(t, err)
	assert.Equal(t, 1, limiter.Len())

	fake.Advance(2 * time.Minute)
	_, err = limiter.Allow(ctx, "active", fivePerMinute)
	require.NoError(t, err)
	assert.Equal(t, 1, limiter.Len())
}

func TestSlidingWindowConcurrentAdmissions(t *testing.T) {
	limiter := NewSlidingWindow(clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)))
	policy := config.RateLimitPolicy{MaxRequests: 10, Window: time.Minute}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.Allow(context.Background(), "shared", policy)
			if err == nil && res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

func TestServiceUsesPolicyGroups(t *testing.T) {
	holder := config.NewStaticPolicyConfigHolder(config.PolicyConfig{
		RateLimits: map[string]config.RateLimitPolicy{
			config.PolicyGroupAPI:      {MaxRequests: 100, Window: time.Minute},
			config.PolicyGroupCheckout: {MaxRequests: 1, Window: time.Minute},
		},
	})
	svc := NewService(ServiceParams{
		Log:      zap.NewNop(),
		Limiter:  NewSlidingWindow(clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))),
		Policies: holder,
	})
	ctx := context.Background()

	assert.True(t, svc.Allow(ctx, config.PolicyGroupCheckout, "u1").Allowed)
	assert.False(t, svc.Allow(ctx, config.PolicyGroupCheckout, "u1").Allowed)
	assert.True(t, svc.Allow(ctx, config.PolicyGroupAPI, "u1").Allowed)

	// unknown groups fall back to the api policy
	assert.Equal(t, 100, svc.Policy("reports").MaxRequests)
}

func TestServiceFailsOpenWhenRedisIsDown(t *testing.T) {
	limiter, m := newRedisWindow(t, clock.New())
	m.Close()

	svc := NewService(ServiceParams{
		Cfg:     config.Config{RateLimit: config.RateLimitConfig{MaxRequests: 5, Window: time.Minute}},
		Log:     zap.NewNop(),
		Limiter: limiter,
	})

	for i := 0; i < 10; i++ {
		res := svc.Allow(context.Background(), config.PolicyGroupAPI, "10.0.0.1")
		require.True(t, res.Allowed)
	}
}
