package domain

import (
	"testing"

	"github.com/smallbiznis/academy/internal/apperror"
)

func TestCanTransitionTable(t *testing.T) {
	allowed := map[[2]PaymentStatus]bool{
		{StatusPending, StatusPaid}:      true,
		{StatusPending, StatusFailed}:    true,
		{StatusPending, StatusCancelled}: true,
		{StatusPaid, StatusRefunded}:     true,
		{StatusCancelled, StatusPending}: true,
	}
	all := []PaymentStatus{StatusPending, StatusPaid, StatusFailed, StatusCancelled, StatusRefunded}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]PaymentStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTransitionRejectsUnlistedMoves(t *testing.T) {
	b := &Booking{ID: "b1", PaymentStatus: StatusPaid}

	changed, err := Transition(b, StatusPending)
	if changed {
		t.Fatalf("expected no change")
	}
	if !apperror.IsKind(err, apperror.KindInvalidBookingStatus) {
		t.Fatalf("expected invalid booking status, got %v", err)
	}
	if b.PaymentStatus != StatusPaid {
		t.Fatalf("status mutated to %s", b.PaymentStatus)
	}
	appErr, _ := apperror.As(err)
	if appErr.Category() != apperror.CategoryBusiness {
		t.Fatalf("expected business category, got %s", appErr.Category())
	}
	if appErr.Message() != "Cannot change booking status from PAID to PENDING" {
		t.Fatalf("unexpected message %q", appErr.Message())
	}
}

func TestTransitionSameStateIsNoop(t *testing.T) {
	b := &Booking{PaymentStatus: StatusPaid}
	changed, err := Transition(b, StatusPaid)
	if err != nil || changed {
		t.Fatalf("expected silent no-op, got changed=%v err=%v", changed, err)
	}
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	b := &Booking{PaymentStatus: "BOGUS"}
	if _, err := Transition(b, "BOGUS"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}
