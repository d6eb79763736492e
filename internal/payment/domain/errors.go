package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingSignature   = errors.New("missing_signature")
	ErrEmptyBody          = errors.New("empty_body")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrWebhookUnavailable = errors.New("webhook_unavailable")
	ErrGatewayUnavailable = errors.New("payment_gateway_unavailable")
)

const CodeResourceMissing = "resource_missing"

// ProviderError carries a failure reported by the payment provider's API.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment provider error (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("payment provider error: %s", e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Status falls back to 502 when the provider gave no usable status.
func (e *ProviderError) Status() int {
	if e.StatusCode >= 400 && e.StatusCode < 600 {
		return e.StatusCode
	}
	return http.StatusBadGateway
}

// IsResourceMissing reports whether err says the provider has no such object.
func IsResourceMissing(err error) bool {
	var providerErr *ProviderError
	return errors.As(err, &providerErr) && providerErr.Code == CodeResourceMissing
}
