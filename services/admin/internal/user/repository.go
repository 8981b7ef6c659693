package user

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/goadmin/pkg/auth"
	"github.com/goadmin/pkg/dal"
	"github.com/goadmin/pkg/errors"
	"github.com/goadmin/services/admin/internal/model"
)

// Repository 用户仓储接口
type Repository interface {
	dal.Repository[model.User]
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindWithRelations(ctx context.Context, id uint) (*model.User, error)
	LoadPrincipal(ctx context.Context, id uint) (*auth.Principal, error)
	ReplaceRoles(ctx context.Context, user *model.User, roleIDs []uint) error
	UpdateLastLogin(ctx context.Context, id uint, at time.Time) error
}

// repository 用户仓储实现
type repository struct {
	*dal.BaseRepository[model.User]
}

// NewRepository 创建用户仓储
func NewRepository(db *gorm.DB, timeout time.Duration) Repository {
	return &repository{
		BaseRepository: dal.NewBaseRepository[model.User](db, timeout),
	}
}

// FindByUsername 根据用户名查找
func (r *repository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.FindOne(ctx, map[string]interface{}{"username": username})
}

// FindWithRelations 查找用户并加载部门、角色及菜单
//
// 部门不过滤软删除，已删除的部门同样会锁定用户。
func (r *repository) FindWithRelations(ctx context.Context, id uint) (*model.User, error) {
	return r.FindByID(ctx, id,
		dal.WithPreload("Dept", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }),
		dal.WithPreload("Roles.Menus"),
	)
}

// LoadPrincipal 实现 middleware.PrincipalLoader
func (r *repository) LoadPrincipal(ctx context.Context, id uint) (*auth.Principal, error) {
	u, err := r.FindWithRelations(ctx, id)
	if err != nil || u == nil {
		return nil, err
	}
	return ToPrincipal(u), nil
}

// ReplaceRoles 替换用户角色，任一角色不存在时不做修改
func (r *repository) ReplaceRoles(ctx context.Context, user *model.User, roleIDs []uint) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		if len(roleIDs) == 0 {
			return tx.Model(user).Association("Roles").Clear()
		}
		var roles []model.Role
		if err := tx.Where("id IN ?", roleIDs).Find(&roles).Error; err != nil {
			return err
		}
		if len(roles) != len(roleIDs) {
			return errors.NotFound("角色")
		}
		return tx.Model(user).Association("Roles").Replace(roles)
	})
}

// UpdateLastLogin 更新最后登录时间
func (r *repository) UpdateLastLogin(ctx context.Context, id uint, at time.Time) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{"last_login_time": at})
}

// ToPrincipal 持久化模型转授权视图
func ToPrincipal(u *model.User) *auth.Principal {
	p := &auth.Principal{
		ID:          u.ID,
		UUID:        u.UUID,
		Username:    u.Username,
		Active:      u.Status == model.StatusEnabled,
		IsSuperuser: u.IsSuperuser,
		IsStaff:     u.IsStaff,
		MultiLogin:  u.IsMultiLogin,
		Roles:       make([]auth.Role, 0, len(u.Roles)),
	}
	if u.Dept != nil {
		p.Dept = &auth.Dept{
			ID:      u.Dept.ID,
			Active:  u.Dept.Status == model.StatusEnabled,
			Deleted: u.Dept.DelFlag || u.Dept.DeletedAt.Valid,
		}
	}
	for _, role := range u.Roles {
		ar := auth.Role{
			ID:        role.ID,
			Name:      role.Name,
			DataScope: auth.DataScope(role.DataScope),
			Active:    role.Status == model.StatusEnabled,
			Menus:     make([]auth.Menu, 0, len(role.Menus)),
		}
		for _, m := range role.Menus {
			ar.Menus = append(ar.Menus, auth.Menu{
				ID:       m.ID,
				ParentID: m.ParentID,
				Perms:    m.Perms,
				Active:   m.Status == model.StatusEnabled,
			})
		}
		p.Roles = append(p.Roles, ar)
	}
	return p
}
