package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/academy/internal/apperror"
	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/persistence"
	"github.com/smallbiznis/academy/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("user.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) EnsureFromIdentity(ctx context.Context, profile domain.Profile) (domain.User, error) {
	userID := strings.TrimSpace(profile.UserID)
	if userID == "" {
		return domain.User{}, apperror.UserValidation("user id is required")
	}
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, apperror.UserValidation("a valid email is required")
	}
	role := strings.TrimSpace(profile.Role)
	if role != domain.RoleAdmin {
		role = domain.RoleUser
	}

	fields := persistence.Fields{"email": email, "userId": userID}
	var out domain.User
	err := persistence.SafeTx(ctx, s.db, fields, func(tx *gorm.DB) error {
		existing, err := s.repo.FindByID(ctx, tx, userID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if existing == nil {
			out = domain.User{
				ID:        userID,
				Email:     email,
				Name:      strings.TrimSpace(profile.Name),
				Image:     strings.TrimSpace(profile.Image),
				Role:      role,
				CreatedAt: now,
				UpdatedAt: now,
			}
			inserted, err := s.repo.InsertIfAbsent(ctx, tx, &out)
			if err != nil || inserted {
				return err
			}
			// a concurrent first request created the row; refresh it instead
			existing, err = s.repo.FindByID(ctx, tx, userID)
			if err != nil {
				return err
			}
			if existing == nil {
				return apperror.UserNotFound(userID)
			}
		}

		out = *existing
		changed := false
		if out.Email != email {
			out.Email = email
			changed = true
		}
		if name := strings.TrimSpace(profile.Name); name != "" && name != out.Name {
			out.Name = name
			changed = true
		}
		if image := strings.TrimSpace(profile.Image); image != "" && image != out.Image {
			out.Image = image
			changed = true
		}
		if out.Role != role {
			out.Role = role
			changed = true
		}
		if !changed {
			return nil
		}
		out.UpdatedAt = now
		return s.repo.Update(ctx, tx, &out)
	})
	if err != nil {
		return domain.User{}, err
	}
	return out, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.User, error) {
	id = strings.TrimSpace(id)
	item, err := persistence.Safe(ctx, persistence.Fields{"userId": id}, func(ctx context.Context) (*domain.User, error) {
		return s.repo.FindByID(ctx, s.db, id)
	})
	if err != nil {
		return domain.User{}, err
	}
	if item == nil {
		return domain.User{}, apperror.UserNotFound(id)
	}
	return *item, nil
}
