package domain

import (
	"context"
	"time"
)

type CreateCourseRequest struct {
	Title       string     `json:"title" binding:"required,max=200"`
	Description string     `json:"description" binding:"max=5000"`
	Price       int64      `json:"price" binding:"gte=0"`
	Currency    string     `json:"currency" binding:"required,len=3"`
	Capacity    *int       `json:"capacity" binding:"omitempty,gte=1"`
	IsPublished bool       `json:"is_published"`
	StartsAt    *time.Time `json:"starts_at"`
}

type Service interface {
	Create(ctx context.Context, req CreateCourseRequest) (Course, error)
	GetByID(ctx context.Context, id string) (Course, error)
	// GetPublished fails with COURSE_NOT_PUBLISHED for drafts.
	GetPublished(ctx context.Context, id string) (Course, error)
	ListPublished(ctx context.Context) ([]Course, error)
}
