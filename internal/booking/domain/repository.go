package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type ListFilter struct {
	UserID          string
	Limit           int
	CursorID        string
	CursorCreatedAt *time.Time
}

type StatsFilter struct {
	UserID   string
	CourseID string
	From     *time.Time
	To       *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, booking *Booking) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Booking, error)
	FindByUserCourse(ctx context.Context, db *gorm.DB, userID, courseID string) (*Booking, error)
	FindBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*Booking, error)
	// UpdateStatus applies the change only while the row still holds expected.
	UpdateStatus(ctx context.Context, db *gorm.DB, id string, expected, next PaymentStatus, at time.Time) (int64, error)
	// UpdateCheckout rewrites status, amount, currency and provider references
	// while the row still holds expected.
	UpdateCheckout(ctx context.Context, db *gorm.DB, booking *Booking, expected PaymentStatus) (int64, error)
	CountByCourseStatus(ctx context.Context, db *gorm.DB, courseID string, status PaymentStatus) (int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Booking, error)
	Stats(ctx context.Context, db *gorm.DB, filter StatsFilter) ([]StatusCount, error)
}
