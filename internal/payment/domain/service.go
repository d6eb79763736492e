package domain

import (
	"context"
	"time"
)

// Ledger remembers processed event ids. PutIfAbsent is the only write used on
// the hot path and must be atomic.
type Ledger interface {
	PutIfAbsent(ctx context.Context, event ProcessedEvent, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, eventID string) error
	// Purge drops records that expired before now.
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// Verifier authenticates a raw webhook body.
type Verifier interface {
	Verify(payload []byte, signature string) (*PaymentEvent, error)
}

// Gateway is the subset of the provider API used by checkout.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (CheckoutSession, error)
}

type WebhookResult struct {
	EventID   string
	EventType string
	Duplicate bool
}

type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signature string) (WebhookResult, error)
}
