package domain

import "time"

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "PENDING"
	StatusPaid      PaymentStatus = "PAID"
	StatusFailed    PaymentStatus = "FAILED"
	StatusCancelled PaymentStatus = "CANCELLED"
	StatusRefunded  PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

type Booking struct {
	ID                    string        `gorm:"primaryKey" json:"id"`
	UserID                string        `gorm:"not null;uniqueIndex:bookings_user_id_course_id_key" json:"user_id"`
	CourseID              string        `gorm:"not null;uniqueIndex:bookings_user_id_course_id_key" json:"course_id"`
	PaymentStatus         PaymentStatus `gorm:"not null;default:PENDING" json:"payment_status"`
	Amount                int64         `gorm:"not null" json:"amount"`
	Currency              string        `gorm:"not null" json:"currency"`
	StripeSessionID       string        `gorm:"index" json:"stripe_session_id,omitempty"`
	StripePaymentIntentID string        `json:"stripe_payment_intent_id,omitempty"`
	CreatedAt             time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time     `gorm:"not null" json:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }

type StatusCount struct {
	PaymentStatus PaymentStatus
	Count         int64
	Amount        int64
}
