package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/academy/internal/config"
	"github.com/smallbiznis/academy/internal/identity"
	"github.com/smallbiznis/academy/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	RoleAdmin = "role:admin"

	ObjectAdmin  = "admin"
	ActionAccess = "access"
)

var ErrInvalidActor = errors.New("authorization: invalid actor")

func subject(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

// NewEnforcer loads policies from the casbin_rule table and makes sure the
// admin policy and the configured admin users are present.
func NewEnforcer(db *gorm.DB, cfg config.Config) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer, cfg.AdminUserIDs); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// seedPolicies keeps the admin groupings in step with ADMIN_USER_IDS. Rows for
// users no longer listed are removed.
func seedPolicies(enforcer *casbin.SyncedEnforcer, adminUserIDs []string) error {
	has, err := enforcer.HasPolicy(RoleAdmin, ObjectAdmin, ActionAccess)
	if err != nil {
		return err
	}
	if !has {
		if _, err := enforcer.AddPolicy(RoleAdmin, ObjectAdmin, ActionAccess); err != nil {
			return err
		}
	}

	wanted := make(map[string]struct{}, len(adminUserIDs))
	for _, id := range adminUserIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		wanted[subject(id)] = struct{}{}
	}

	existing, err := enforcer.GetFilteredGroupingPolicy(1, RoleAdmin)
	if err != nil {
		return err
	}
	var stale [][]string
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if _, ok := wanted[rule[0]]; ok {
			delete(wanted, rule[0])
			continue
		}
		stale = append(stale, rule)
	}
	if len(stale) > 0 {
		if _, err := enforcer.RemoveGroupingPolicies(stale); err != nil {
			return err
		}
	}
	for sub := range wanted {
		if _, err := enforcer.AddGroupingPolicy(sub, RoleAdmin); err != nil {
			return err
		}
	}
	return nil
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

// IsAdmin evaluates the role claim of the current token against the role
// policy without storing it. Persistent grants come from ADMIN_USER_IDS only.
func (s *ServiceImpl) IsAdmin(ctx context.Context, id identity.Identity) (bool, error) {
	userID := strings.TrimSpace(id.UserID)
	if userID == "" {
		return false, ErrInvalidActor
	}

	sub := subject(userID)
	if strings.EqualFold(strings.TrimSpace(id.Role), "admin") {
		sub = RoleAdmin
	}

	allowed, err := s.enforcer.Enforce(sub, ObjectAdmin, ActionAccess)
	if err != nil {
		return false, err
	}
	if !allowed {
		logger.WithContext(ctx, s.log).Info("admin access denied", zap.String("user_id", userID))
	}
	return allowed, nil
}
