package role

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/goadmin/pkg/dal"
	"github.com/goadmin/pkg/errors"
	"github.com/goadmin/services/admin/internal/model"
)

// Repository 角色仓储接口
type Repository interface {
	dal.Repository[model.Role]
	HolderUUIDs(ctx context.Context, roleID uint) ([]string, error)
	ReplaceMenus(ctx context.Context, role *model.Role, menuIDs []uint) error
	DeleteWithRelations(ctx context.Context, role *model.Role) error
}

// repository 角色仓储实现
type repository struct {
	*dal.BaseRepository[model.Role]
}

// NewRepository 创建角色仓储
func NewRepository(db *gorm.DB, timeout time.Duration) Repository {
	return &repository{
		BaseRepository: dal.NewBaseRepository[model.Role](db, timeout),
	}
}

// HolderUUIDs 持有该角色的用户UUID
func (r *repository) HolderUUIDs(ctx context.Context, roleID uint) ([]string, error) {
	db, cancel := r.Session(ctx)
	defer cancel()

	var uuids []string
	err := db.Model(&model.User{}).
		Joins("JOIN sys_user_role ON sys_user_role.user_id = sys_user.id").
		Where("sys_user_role.role_id = ?", roleID).
		Distinct().
		Pluck("sys_user.uuid", &uuids).Error
	return uuids, err
}

// ReplaceMenus 替换角色菜单，任一菜单不存在时不做修改
func (r *repository) ReplaceMenus(ctx context.Context, role *model.Role, menuIDs []uint) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		if len(menuIDs) == 0 {
			return tx.Model(role).Association("Menus").Clear()
		}
		var menus []model.Menu
		if err := tx.Where("id IN ?", menuIDs).Find(&menus).Error; err != nil {
			return err
		}
		if len(menus) != len(menuIDs) {
			return errors.NotFound("菜单")
		}
		return tx.Model(role).Association("Menus").Replace(menus)
	})
}

// DeleteWithRelations 删除角色及其用户、菜单关联
func (r *repository) DeleteWithRelations(ctx context.Context, role *model.Role) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM sys_user_role WHERE role_id = ?", role.ID).Error; err != nil {
			return err
		}
		if err := tx.Model(role).Association("Menus").Clear(); err != nil {
			return err
		}
		return tx.Delete(role).Error
	})
}
