package context

import (
	"context"
	"testing"
)

func TestRequestScopedValues(t *testing.T) {
	ctx := WithRequestID(context.Background(), " req-1 ")
	ctx = WithUserID(ctx, "user_1")
	ctx = WithClient(ctx, "10.0.0.1", "curl/8")

	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("unexpected request id %q", got)
	}
	if got := UserIDFromContext(ctx); got != "user_1" {
		t.Fatalf("unexpected user id %q", got)
	}
	ip, ua := ClientFromContext(ctx)
	if ip != "10.0.0.1" || ua != "curl/8" {
		t.Fatalf("unexpected client %q %q", ip, ua)
	}
	if RequestIDFromContext(context.Background()) != "" {
		t.Fatalf("expected empty request id")
	}
}
