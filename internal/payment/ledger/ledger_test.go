package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/payment/domain"
	"github.com/smallbiznis/academy/internal/testutil"
	"github.com/smallbiznis/academy/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type backend struct {
	name    string
	ledger  domain.Ledger
	advance func(time.Duration)
}

func backends(t *testing.T) []backend {
	t.Helper()

	memClock := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	dbClock := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisLedger, err := NewRedis(client, clock.New())
	require.NoError(t, err)

	return []backend{
		{name: "memory", ledger: NewMemory(memClock), advance: memClock.Advance},
		{name: "database", ledger: NewDatabase(testutil.NewDB(t), dbClock), advance: dbClock.Advance},
		{name: "redis", ledger: redisLedger, advance: m.FastForward},
	}
}

func TestLedgerPutIfAbsent(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			event := domain.ProcessedEvent{
				EventID:   "evt_1",
				EventType: "checkout.session.completed",
				Payload:   datatypes.JSON(`{"id":"evt_1"}`),
			}

			inserted, err := b.ledger.PutIfAbsent(ctx, event, time.Hour)
			require.NoError(t, err)
			assert.True(t, inserted)

			inserted, err = b.ledger.PutIfAbsent(ctx, event, time.Hour)
			require.NoError(t, err)
			assert.False(t, inserted)

			require.NoError(t, b.ledger.Delete(ctx, "evt_1"))

			inserted, err = b.ledger.PutIfAbsent(ctx, event, time.Hour)
			require.NoError(t, err)
			assert.True(t, inserted, "released events can be recorded again")
		})
	}
}

func TestLedgerExpiry(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			event := domain.ProcessedEvent{EventID: "evt_exp", EventType: "invoice.payment_failed"}

			inserted, err := b.ledger.PutIfAbsent(ctx, event, time.Minute)
			require.NoError(t, err)
			require.True(t, inserted)

			b.advance(2 * time.Minute)

			inserted, err = b.ledger.PutIfAbsent(ctx, event, time.Minute)
			require.NoError(t, err)
			assert.True(t, inserted)
		})
	}
}

func TestMemoryLedgerConcurrentPutIsAtomic(t *testing.T) {
	ledger := NewMemory(clock.New())

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.PutIfAbsent(context.Background(), domain.ProcessedEvent{EventID: "evt_race"}, time.Hour)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestDatabaseLedgerPurge(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	ledger := NewDatabase(testutil.NewDB(t), fake)
	ctx := context.Background()

	_, err := ledger.PutIfAbsent(ctx, domain.ProcessedEvent{EventID: "old", EventType: "x"}, time.Minute)
	require.NoError(t, err)
	_, err = ledger.PutIfAbsent(ctx, domain.ProcessedEvent{EventID: "fresh", EventType: "x"}, 24*time.Hour)
	require.NoError(t, err)

	fake.Advance(time.Hour)
	janitor := NewJanitor(ledger, fake, zap.NewNop(), nil, time.Hour)
	removed, err := janitor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	inserted, err := ledger.PutIfAbsent(ctx, domain.ProcessedEvent{EventID: "fresh", EventType: "x"}, time.Hour)
	require.NoError(t, err)
	assert.False(t, inserted, "unexpired records survive the purge")
}

func TestJanitorSkipsWhenLockHeld(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fake := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	ledger := NewMemory(fake)
	_, err := ledger.PutIfAbsent(context.Background(), domain.ProcessedEvent{EventID: "old"}, time.Minute)
	require.NoError(t, err)
	fake.Advance(time.Hour)

	locker := kv.NewLocker(client)
	_, ok, err := locker.TryLock(context.Background(), janitorLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	janitor := NewJanitor(ledger, fake, zap.NewNop(), locker, time.Hour)
	removed, err := janitor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
