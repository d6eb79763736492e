package events

import (
	"context"
	"time"
)

const (
	TypeBookingPending   = "booking.pending"
	TypeBookingPaid      = "booking.paid"
	TypeBookingFailed    = "booking.failed"
	TypeBookingCancelled = "booking.cancelled"
	TypeBookingRefunded  = "booking.refunded"
)

// Event is the envelope published whenever a booking changes state.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	BookingID  string    `json:"booking_id"`
	UserID     string    `json:"user_id"`
	CourseID   string    `json:"course_id"`
	Status     string    `json:"status"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers events to whatever bus is configured.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
