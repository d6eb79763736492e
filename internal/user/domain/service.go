package domain

import "context"

type Service interface {
	// EnsureFromIdentity creates or refreshes the caller's row.
	EnsureFromIdentity(ctx context.Context, profile Profile) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
}
