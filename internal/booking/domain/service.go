package domain

import (
	"context"
	"time"

	coursedomain "github.com/smallbiznis/academy/internal/course/domain"
	"github.com/smallbiznis/academy/pkg/db/pagination"
)

type InitiateCheckoutRequest struct {
	UserID   string
	CourseID string
}

// Checkout is a PENDING booking together with the course it reserves.
type Checkout struct {
	Booking Booking
	Course  coursedomain.Course
}

type FinalizeRequest struct {
	UserID          string
	CourseID        string
	BookingID       string
	SessionID       string
	PaymentIntentID string
	Amount          int64
	Currency        string
}

type ListBookingsRequest struct {
	UserID string
	pagination.Pagination
}

type ListBookingsResponse struct {
	PageInfo pagination.PageInfo `json:"page_info"`
	Bookings []Booking           `json:"bookings"`
}

type Stats struct {
	Total        int64 `json:"total"`
	Pending      int64 `json:"pending"`
	Paid         int64 `json:"paid"`
	Failed       int64 `json:"failed"`
	Cancelled    int64 `json:"cancelled"`
	Refunded     int64 `json:"refunded"`
	TotalRevenue int64 `json:"totalRevenue"`
}

type StatsRequest struct {
	UserID   string     `form:"user_id"`
	CourseID string     `form:"course_id"`
	From     *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To       *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

type Service interface {
	// InitiateCheckout creates the caller's PENDING booking for a course, or
	// refreshes the existing one for a new attempt.
	InitiateCheckout(ctx context.Context, req InitiateCheckoutRequest) (Checkout, error)
	AttachSession(ctx context.Context, bookingID, sessionID, paymentIntentID string) error
	UpdatePaymentStatus(ctx context.Context, bookingID string, status PaymentStatus) (Booking, bool, error)
	// FinalizePaidCheckout records a payment the provider has confirmed.
	FinalizePaidCheckout(ctx context.Context, req FinalizeRequest) (Booking, error)
	GetForUser(ctx context.Context, userID, bookingID string) (Booking, error)
	FindBySessionRef(ctx context.Context, sessionID string) (*Booking, error)
	ListForUser(ctx context.Context, req ListBookingsRequest) (ListBookingsResponse, error)
	Stats(ctx context.Context, req StatsRequest) (Stats, error)
}
