package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/academy/internal/apperror"
	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/course/domain"
	"github.com/smallbiznis/academy/internal/persistence"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("course.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCourseRequest) (domain.Course, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.Course{}, apperror.FieldValidation("title", "must not be empty")
	}
	if req.Price < 0 {
		return domain.Course{}, apperror.FieldValidation("price", "must not be negative")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return domain.Course{}, apperror.FieldValidation("currency", "must be a 3-letter ISO code")
	}
	if req.Capacity != nil && *req.Capacity <= 0 {
		return domain.Course{}, apperror.FieldValidation("capacity", "must be positive")
	}

	now := s.clock.Now()
	course := domain.Course{
		ID:          s.genID.Generate().String(),
		Slug:        slug.Make(title),
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
		Currency:    currency,
		Capacity:    req.Capacity,
		IsPublished: req.IsPublished,
		StartsAt:    req.StartsAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := persistence.SafeExec(ctx, persistence.Fields{"slug": course.Slug}, func(ctx context.Context) error {
		return s.repo.Insert(ctx, s.db, &course)
	})
	if err != nil {
		return domain.Course{}, err
	}

	s.log.Info("course created", zap.String("course_id", course.ID), zap.String("slug", course.Slug))
	return course, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Course, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Course{}, apperror.FieldValidation("courseId", "is required")
	}

	item, err := persistence.Safe(ctx, persistence.Fields{"courseId": id}, func(ctx context.Context) (*domain.Course, error) {
		return s.repo.FindByID(ctx, s.db, id)
	})
	if err != nil {
		return domain.Course{}, err
	}
	if item == nil {
		return domain.Course{}, apperror.CourseNotFound(id)
	}
	return *item, nil
}

func (s *Service) GetPublished(ctx context.Context, id string) (domain.Course, error) {
	course, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Course{}, err
	}
	if !course.IsPublished {
		return domain.Course{}, apperror.CourseNotPublished(course.ID)
	}
	return course, nil
}

func (s *Service) ListPublished(ctx context.Context) ([]domain.Course, error) {
	items, err := persistence.Safe(ctx, nil, func(ctx context.Context) ([]*domain.Course, error) {
		return s.repo.ListPublished(ctx, s.db)
	})
	if err != nil {
		return nil, err
	}

	courses := make([]domain.Course, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		courses = append(courses, *item)
	}
	return courses, nil
}
