package domain

import "github.com/smallbiznis/academy/internal/apperror"

var transitions = map[PaymentStatus][]PaymentStatus{
	StatusPending:   {StatusPaid, StatusFailed, StatusCancelled},
	StatusPaid:      {StatusRefunded},
	StatusCancelled: {StatusPending},
}

// CanTransition reports whether from -> to is an edge of the booking lifecycle.
func CanTransition(from, to PaymentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves b to the target status. Re-applying the current status
// is a no-op and reports changed=false. Any other move outside the
// lifecycle fails with INVALID_BOOKING_STATUS and leaves b untouched.
func Transition(b *Booking, to PaymentStatus) (changed bool, err error) {
	if b.PaymentStatus == to && to.Valid() {
		return false, nil
	}
	if !CanTransition(b.PaymentStatus, to) {
		return false, apperror.InvalidBookingStatus(string(b.PaymentStatus), string(to))
	}
	b.PaymentStatus = to
	return true, nil
}
