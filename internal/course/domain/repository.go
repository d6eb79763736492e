package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, course *Course) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Course, error)
	// FindByIDForUpdate locks the row for the rest of the transaction.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id string) (*Course, error)
	ListPublished(ctx context.Context, db *gorm.DB) ([]*Course, error)
}
