package ledger

import (
	"context"
	"time"

	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/payment/domain"
	"github.com/smallbiznis/academy/pkg/kv"
	"go.uber.org/zap"
)

const (
	janitorInterval = time.Hour
	janitorLockKey  = "academy:webhook:janitor"
)

// Janitor periodically drops expired ledger records. When a locker is
// available only one instance purges per tick.
type Janitor struct {
	ledger   domain.Ledger
	clock    clock.Clock
	log      *zap.Logger
	locker   *kv.Locker
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

func NewJanitor(ledger domain.Ledger, c clock.Clock, log *zap.Logger, locker *kv.Locker, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = janitorInterval
	}
	return &Janitor{
		ledger:   ledger,
		clock:    c,
		log:      log.Named("webhook.janitor"),
		locker:   locker,
		interval: interval,
	}
}

// RunOnce purges expired records and reports how many were removed.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	if j.locker != nil {
		token, ok, err := j.locker.TryLock(ctx, janitorLockKey, j.interval/2)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		defer func() {
			if err := j.locker.Release(context.Background(), janitorLockKey, token); err != nil {
				j.log.Warn("failed to release janitor lock", zap.Error(err))
			}
		}()
	}

	removed, err := j.ledger.Purge(ctx, j.clock.Now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		j.log.Info("purged processed webhook events", zap.Int64("removed", removed))
	}
	return removed, nil
}

func (j *Janitor) Start() {
	j.stop = make(chan struct{})
	j.done = make(chan struct{})

	go func() {
		defer close(j.done)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-j.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if _, err := j.RunOnce(ctx); err != nil {
					j.log.Warn("webhook ledger purge failed", zap.Error(err))
				}
				cancel()
			}
		}
	}()
}

func (j *Janitor) Stop(ctx context.Context) error {
	if j.stop == nil {
		return nil
	}
	close(j.stop)
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
