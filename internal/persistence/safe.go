package persistence

import (
	"context"

	"gorm.io/gorm"
)

// Safe runs a storage call and maps its failure, so callers only ever
// see taxonomy errors.
func Safe[T any](ctx context.Context, fields Fields, op func(ctx context.Context) (T, error)) (T, error) {
	out, err := op(ctx)
	if err != nil {
		var zero T
		return zero, MapError(err, fields)
	}
	return out, nil
}

// SafeExec is Safe for calls that only return an error.
func SafeExec(ctx context.Context, fields Fields, op func(ctx context.Context) error) error {
	if err := op(ctx); err != nil {
		return MapError(err, fields)
	}
	return nil
}

// SafeTx runs fn inside a transaction and maps whatever made it fail.
func SafeTx(ctx context.Context, conn *gorm.DB, fields Fields, fn func(tx *gorm.DB) error) error {
	if err := conn.WithContext(ctx).Transaction(fn); err != nil {
		return MapError(err, fields)
	}
	return nil
}
