package ledger

import (
	"context"
	"time"

	"github.com/smallbiznis/academy/internal/cache"
	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/payment/domain"
)

// Memory keeps processed ids in process. Only suitable for a single instance.
type Memory struct {
	clock   clock.Clock
	entries cache.Cache[string, domain.ProcessedEvent]
}

func NewMemory(c clock.Clock) *Memory {
	return &Memory{
		clock:   c,
		entries: cache.NewTTLCacheWithClock[string, domain.ProcessedEvent](c),
	}
}

func (m *Memory) PutIfAbsent(_ context.Context, event domain.ProcessedEvent, ttl time.Duration) (bool, error) {
	event = stamp(event, m.clock, ttl)
	return m.entries.SetIfAbsent(event.EventID, event, ttl), nil
}

func (m *Memory) Delete(_ context.Context, eventID string) error {
	m.entries.Delete(eventID)
	return nil
}

func (m *Memory) Purge(_ context.Context, _ time.Time) (int64, error) {
	return int64(m.entries.Purge()), nil
}

func stamp(event domain.ProcessedEvent, c clock.Clock, ttl time.Duration) domain.ProcessedEvent {
	if event.SeenAt.IsZero() {
		event.SeenAt = c.Now()
	}
	event.ExpiresAt = event.SeenAt.Add(ttl)
	return event
}
