package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/academy/internal/config"
	"github.com/smallbiznis/academy/internal/identity"
	"github.com/smallbiznis/academy/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T, adminIDs ...string) Service {
	t.Helper()
	enforcer, err := NewEnforcer(testutil.NewDB(t), config.Config{AdminUserIDs: adminIDs})
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestIsAdmin(t *testing.T) {
	svc := newService(t, "u-admin", " ")
	ctx := context.Background()

	ok, err := svc.IsAdmin(ctx, identity.Identity{UserID: "u-admin"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsAdmin(ctx, identity.Identity{UserID: "u-student"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.IsAdmin(ctx, identity.Identity{UserID: "u-staff", Role: "admin"})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.IsAdmin(ctx, identity.Identity{})
	assert.ErrorIs(t, err, ErrInvalidActor)
}

func TestRoleClaimIsNotPersisted(t *testing.T) {
	db := testutil.NewDB(t)
	enforcer, err := NewEnforcer(db, config.Config{})
	require.NoError(t, err)
	svc := NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
	ctx := context.Background()

	ok, err := svc.IsAdmin(ctx, identity.Identity{UserID: "u-temp", Role: "admin"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsAdmin(ctx, identity.Identity{UserID: "u-temp", Role: "user"})
	require.NoError(t, err)
	assert.False(t, ok)

	rules, err := enforcer.GetFilteredGroupingPolicy(0, "user:u-temp")
	require.NoError(t, err)
	assert.Empty(t, rules)

	var count int64
	require.NoError(t, db.Table("casbin_rule").Where("ptype = ? AND v0 = ?", "g", "user:u-temp").Count(&count).Error)
	assert.Zero(t, count)
}

func TestConfiguredAdminsPersistAndRevoke(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := NewEnforcer(db, config.Config{AdminUserIDs: []string{"u1", "u2"}})
	require.NoError(t, err)

	reloaded, err := NewEnforcer(db, config.Config{AdminUserIDs: []string{"u2"}})
	require.NoError(t, err)

	ok, err := reloaded.Enforce("user:u1", ObjectAdmin, ActionAccess)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = reloaded.Enforce("user:u2", ObjectAdmin, ActionAccess)
	require.NoError(t, err)
	assert.True(t, ok)

	var count int64
	require.NoError(t, db.Table("casbin_rule").Where("ptype = ? AND v1 = ?", "g", RoleAdmin).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
