package domain

import (
	"time"

	"gorm.io/datatypes"
)

// ProcessedEvent marks a provider event id as handled.
type ProcessedEvent struct {
	EventID   string         `json:"event_id" gorm:"primaryKey;type:text"`
	EventType string         `json:"event_type" gorm:"type:text;not null"`
	Payload   datatypes.JSON `json:"payload,omitempty"`
	SeenAt    time.Time      `json:"seen_at" gorm:"not null"`
	ExpiresAt time.Time      `json:"expires_at" gorm:"not null;index"`
}

func (ProcessedEvent) TableName() string { return "processed_webhook_events" }

// Provider event types the processor dispatches on.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventPaymentSucceeded      = "payment_intent.succeeded"
	EventPaymentFailed         = "payment_intent.payment_failed"
	EventPaymentCanceled       = "payment_intent.canceled"
	EventChargeRefunded        = "charge.refunded"
	EventDisputeCreated        = "charge.dispute.created"
	EventInvoicePaymentSuccess = "invoice.payment_succeeded"
	EventInvoicePaymentFailed  = "invoice.payment_failed"
)

// PaymentEvent is a verified provider event reduced to what booking
// dispatch needs.
type PaymentEvent struct {
	ID              string
	Type            string
	ObjectID        string
	BookingID       string
	CourseID        string
	UserID          string
	SessionID       string
	PaymentIntentID string
	PaymentStatus   string
	Amount          int64
	Currency        string
	Reason          string
	Created         time.Time
	Raw             []byte
}

type CheckoutSessionParams struct {
	BookingID     string
	CourseID      string
	UserID        string
	CustomerEmail string
	ProductName   string
	Description   string
	Amount        int64
	Currency      string
	SuccessURL    string
	CancelURL     string
}

type CheckoutSession struct {
	ID              string
	URL             string
	PaymentStatus   string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	CustomerEmail   string
	Metadata        map[string]string
}

// Paid reports whether the provider has captured the payment.
func (s CheckoutSession) Paid() bool {
	return s.PaymentStatus == "paid"
}
