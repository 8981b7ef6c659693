package user

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/goadmin/pkg/auth"
	"github.com/goadmin/pkg/errors"
	"github.com/goadmin/services/admin/internal/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string, dept *model.Dept, roles ...model.Role) *model.User {
	t.Helper()
	u := &model.User{
		UUID:     uuid.NewString(),
		Username: name,
		Password: "x",
		Status:   model.StatusEnabled,
		IsStaff:  true,
		JoinTime: time.Now(),
		Roles:    roles,
	}
	if dept != nil {
		u.DeptID = &dept.ID
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func TestLoadPrincipal(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewRepository(db, time.Second)

	dept := &model.Dept{Name: "研发部", Status: model.StatusEnabled}
	require.NoError(t, db.Create(dept).Error)
	role := model.Role{
		Name:      "editor",
		DataScope: model.DataScopeCustom,
		Status:    model.StatusEnabled,
		Menus: []model.Menu{
			{Title: "新增", Perms: "sys:user:add", Status: model.StatusEnabled},
			{Title: "删除", Perms: "sys:user:del", Status: model.StatusDisabled},
		},
	}
	u := seedUser(t, db, "alice", dept, role)

	p, err := repo.LoadPrincipal(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, u.UUID, p.UUID)
	assert.True(t, p.Active)
	assert.True(t, p.IsStaff)
	assert.False(t, p.Locked())
	require.NotNil(t, p.Dept)
	assert.True(t, p.Dept.Active)
	require.Len(t, p.Roles, 1)
	assert.Equal(t, auth.DataScopeCustom, p.Roles[0].DataScope)
	require.Len(t, p.Roles[0].Menus, 2)

	missing, err := repo.LoadPrincipal(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLoadPrincipalSoftDeletedDeptLocks(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewRepository(db, 0)

	dept := &model.Dept{Name: "运维部", Status: model.StatusEnabled}
	require.NoError(t, db.Create(dept).Error)
	u := seedUser(t, db, "bob", dept)
	require.NoError(t, db.Delete(dept).Error)

	p, err := repo.LoadPrincipal(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, p.Dept)
	assert.True(t, p.Dept.Deleted)
	assert.True(t, p.Locked())
}

func TestToPrincipalFlags(t *testing.T) {
	u := &model.User{
		UUID:         "u-1",
		Status:       model.StatusDisabled,
		IsSuperuser:  true,
		IsMultiLogin: true,
		Dept:         &model.Dept{Status: model.StatusDisabled, DelFlag: true},
		Roles: []model.Role{
			{Name: "all", DataScope: model.DataScopeAll, Status: model.StatusDisabled},
		},
	}
	p := ToPrincipal(u)
	assert.False(t, p.Active)
	assert.True(t, p.IsSuperuser)
	assert.True(t, p.MultiLogin)
	assert.False(t, p.Dept.Active)
	assert.True(t, p.Dept.Deleted)
	assert.Equal(t, auth.DataScopeAll, p.Roles[0].DataScope)
	assert.False(t, p.Roles[0].Active)
	assert.True(t, p.Locked())
}

func TestReplaceRoles(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewRepository(db, 0)

	a := &model.Role{Name: "a", Status: model.StatusEnabled}
	b := &model.Role{Name: "b", Status: model.StatusEnabled}
	require.NoError(t, db.Create(a).Error)
	require.NoError(t, db.Create(b).Error)
	u := seedUser(t, db, "carol", nil, *a)

	require.NoError(t, repo.ReplaceRoles(ctx, u, []uint{b.ID}))
	got, err := repo.FindWithRelations(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got.Roles, 1)
	assert.Equal(t, "b", got.Roles[0].Name)

	err = repo.ReplaceRoles(ctx, u, []uint{a.ID, 42})
	assert.Equal(t, http.StatusNotFound, errors.GetCode(err))
	got, err = repo.FindWithRelations(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got.Roles, 1)

	require.NoError(t, repo.ReplaceRoles(ctx, u, nil))
	got, err = repo.FindWithRelations(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Roles)
}

func TestFindByUsernameAndLastLogin(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewRepository(db, 0)
	u := seedUser(t, db, "dave", nil)

	got, err := repo.FindByUsername(ctx, "dave")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.LastLoginTime)

	now := time.Now()
	require.NoError(t, repo.UpdateLastLogin(ctx, u.ID, now))
	got, err = repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginTime)

	none, err := repo.FindByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, none)
}
