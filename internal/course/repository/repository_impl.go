package repository

import (
	"context"

	"github.com/smallbiznis/academy/internal/course/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, course *domain.Course) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO courses (id, slug, title, description, price, currency, capacity, is_published, starts_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		course.ID,
		course.Slug,
		course.Title,
		course.Description,
		course.Price,
		course.Currency,
		course.Capacity,
		course.IsPublished,
		course.StartsAt,
		course.CreatedAt,
		course.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Course, error) {
	return r.find(ctx, db.WithContext(ctx), id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id string) (*domain.Course, error) {
	stmt := db.WithContext(ctx)
	if stmt.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.find(ctx, stmt, id)
}

func (r *repo) find(_ context.Context, stmt *gorm.DB, id string) (*domain.Course, error) {
	var course domain.Course
	err := stmt.Model(&domain.Course{}).Where("id = ?", id).Limit(1).Find(&course).Error
	if err != nil {
		return nil, err
	}
	if course.ID == "" {
		return nil, nil
	}
	return &course, nil
}

func (r *repo) ListPublished(ctx context.Context, db *gorm.DB) ([]*domain.Course, error) {
	var courses []*domain.Course
	err := db.WithContext(ctx).
		Model(&domain.Course{}).
		Where("is_published = ?", true).
		Order("starts_at asc, created_at desc").
		Find(&courses).Error
	if err != nil {
		return nil, err
	}
	return courses, nil
}
