package ledger

import (
	"context"
	"time"

	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Database stores processed ids in processed_webhook_events and relies on
// the primary key for insert-if-absent.
type Database struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewDatabase(db *gorm.DB, c clock.Clock) *Database {
	return &Database{db: db, clock: c}
}

func (d *Database) PutIfAbsent(ctx context.Context, event domain.ProcessedEvent, ttl time.Duration) (bool, error) {
	event = stamp(event, d.clock, ttl)

	var inserted bool
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// an expired record no longer counts as processed
		if err := tx.Exec(
			`DELETE FROM processed_webhook_events WHERE event_id = ? AND expires_at <= ?`,
			event.EventID,
			event.SeenAt,
		).Error; err != nil {
			return err
		}

		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).Create(&event)
		if result.Error != nil {
			return result.Error
		}
		inserted = result.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (d *Database) Delete(ctx context.Context, eventID string) error {
	return d.db.WithContext(ctx).Exec(
		`DELETE FROM processed_webhook_events WHERE event_id = ?`,
		eventID,
	).Error
}

func (d *Database) Purge(ctx context.Context, now time.Time) (int64, error) {
	result := d.db.WithContext(ctx).Exec(
		`DELETE FROM processed_webhook_events WHERE expires_at <= ?`,
		now,
	)
	return result.RowsAffected, result.Error
}
