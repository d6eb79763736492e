package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/academy/internal/booking/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const bookingColumns = `id, user_id, course_id, payment_status, amount, currency,
	stripe_session_id, stripe_payment_intent_id, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, booking *domain.Booking) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO bookings (`+bookingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.ID,
		booking.UserID,
		booking.CourseID,
		booking.PaymentStatus,
		booking.Amount,
		booking.Currency,
		booking.StripeSessionID,
		booking.StripePaymentIntentID,
		booking.CreatedAt,
		booking.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Booking, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByUserCourse(ctx context.Context, db *gorm.DB, userID, courseID string) (*domain.Booking, error) {
	return r.findOne(ctx, db, `user_id = ? AND course_id = ?`, userID, courseID)
}

func (r *repo) FindBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Booking, error) {
	return r.findOne(ctx, db, `stripe_session_id = ?`, sessionID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Booking, error) {
	var booking domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT `+bookingColumns+` FROM bookings WHERE `+where+` LIMIT 1`,
		args...,
	).Scan(&booking).Error
	if err != nil {
		return nil, err
	}
	if booking.ID == "" {
		return nil, nil
	}
	return &booking, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id string, expected, next domain.PaymentStatus, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bookings SET payment_status = ?, updated_at = ?
		 WHERE id = ? AND payment_status = ?`,
		next,
		at,
		id,
		expected,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) UpdateCheckout(ctx context.Context, db *gorm.DB, booking *domain.Booking, expected domain.PaymentStatus) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET payment_status = ?, amount = ?, currency = ?, stripe_session_id = ?,
		     stripe_payment_intent_id = ?, updated_at = ?
		 WHERE id = ? AND payment_status = ?`,
		booking.PaymentStatus,
		booking.Amount,
		booking.Currency,
		booking.StripeSessionID,
		booking.StripePaymentIntentID,
		booking.UpdatedAt,
		booking.ID,
		expected,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) CountByCourseStatus(ctx context.Context, db *gorm.DB, courseID string, status domain.PaymentStatus) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM bookings WHERE course_id = ? AND payment_status = ?`,
		courseID,
		status,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Booking, error) {
	stmt := db.WithContext(ctx).Model(&domain.Booking{}).Where("user_id = ?", filter.UserID)
	if filter.CursorCreatedAt != nil && filter.CursorID != "" {
		stmt = stmt.Where(
			"(created_at < ? OR (created_at = ? AND id < ?))",
			*filter.CursorCreatedAt,
			*filter.CursorCreatedAt,
			filter.CursorID,
		)
	}
	if filter.Limit > 0 {
		// one extra row tells the caller whether another page exists
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var items []*domain.Booking
	if err := stmt.Order("created_at desc").Order("id desc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Stats(ctx context.Context, db *gorm.DB, filter domain.StatsFilter) ([]domain.StatusCount, error) {
	stmt := db.WithContext(ctx).Model(&domain.Booking{}).
		Select("payment_status, COUNT(1) AS count, COALESCE(SUM(amount), 0) AS amount")
	if filter.UserID != "" {
		stmt = stmt.Where("user_id = ?", filter.UserID)
	}
	if filter.CourseID != "" {
		stmt = stmt.Where("course_id = ?", filter.CourseID)
	}
	if filter.From != nil {
		stmt = stmt.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		stmt = stmt.Where("created_at <= ?", *filter.To)
	}

	var rows []domain.StatusCount
	if err := stmt.Group("payment_status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
