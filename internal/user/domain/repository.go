package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// InsertIfAbsent reports false when a row with the same id already exists.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, user *User) (bool, error)
	Update(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*User, error)
}
