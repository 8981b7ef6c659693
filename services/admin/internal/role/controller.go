package role

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/goadmin/pkg/errors"
	"github.com/goadmin/pkg/logger"
	"github.com/goadmin/pkg/permission"
	"github.com/goadmin/pkg/response"
	"github.com/goadmin/pkg/router"
	"github.com/goadmin/services/admin/internal/model"
)

// Controller 角色控制器
type Controller struct {
	router.BaseController
	repo  Repository
	perms permission.Invalidator
}

// NewController 创建角色控制器
func NewController(repo Repository, perms permission.Invalidator) *Controller {
	return &Controller{repo: repo, perms: perms}
}

// Prefix 路由前缀
func (c *Controller) Prefix() string {
	return "/roles"
}

// Routes 路由配置
func (c *Controller) Routes() []router.Route {
	return []router.Route{
		{Method: http.MethodPut, Path: ":id", Handler: c.update, Perm: "sys:role:edit"},
		{Method: http.MethodPut, Path: ":id/menus", Handler: c.setMenus, Perm: "sys:role:menu:edit"},
		{Method: http.MethodDelete, Path: ":id", Handler: c.delete, Perm: "sys:role:del"},
	}
}

func (c *Controller) update(ctx *fiber.Ctx) error {
	id, err := c.ParamID(ctx, "id")
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(ctx, &req); err != nil {
		return err
	}
	role, err := c.Update(ctx.UserContext(), id, &req)
	if err != nil {
		return err
	}
	return response.Success(ctx, role)
}

// Update 更新角色，状态与数据范围影响持有者的权限
func (c *Controller) Update(ctx context.Context, id uint, req *UpdateRequest) (*model.Role, error) {
	role, err := c.find(ctx, id)
	if err != nil {
		return nil, err
	}

	role.Name = req.Name
	role.Status = *req.Status
	role.Remark = req.Remark
	role.DataScope = req.DataScope
	if role.DataScope == 0 {
		role.DataScope = model.DataScopeCustom
	}
	if err := c.repo.UpdateFields(ctx, id, map[string]interface{}{
		"name":       role.Name,
		"status":     role.Status,
		"remark":     role.Remark,
		"data_scope": role.DataScope,
	}); err != nil {
		return nil, errors.Internal(err)
	}

	if err := c.invalidateHolders(ctx, id); err != nil {
		return nil, err
	}
	return role, nil
}

func (c *Controller) setMenus(ctx *fiber.Ctx) error {
	id, err := c.ParamID(ctx, "id")
	if err != nil {
		return err
	}
	var req MenusRequest
	if err := c.Bind(ctx, &req); err != nil {
		return err
	}
	if err := c.SetMenus(ctx.UserContext(), id, req.MenuIDs); err != nil {
		return err
	}
	return response.Success(ctx, nil)
}

// SetMenus 替换角色菜单并失效持有者的权限缓存
func (c *Controller) SetMenus(ctx context.Context, id uint, menuIDs []uint) error {
	role, err := c.find(ctx, id)
	if err != nil {
		return err
	}
	if err := c.repo.ReplaceMenus(ctx, role, menuIDs); err != nil {
		if errors.GetCode(err) == http.StatusNotFound {
			return err
		}
		return errors.Internal(err)
	}
	return c.invalidateHolders(ctx, id)
}

func (c *Controller) delete(ctx *fiber.Ctx) error {
	id, err := c.ParamID(ctx, "id")
	if err != nil {
		return err
	}
	if err := c.Delete(ctx.UserContext(), id); err != nil {
		return err
	}
	return response.Success(ctx, nil)
}

// Delete 删除角色，持有者在删除前确定
func (c *Controller) Delete(ctx context.Context, id uint) error {
	role, err := c.find(ctx, id)
	if err != nil {
		return err
	}
	holders, err := c.repo.HolderUUIDs(ctx, id)
	if err != nil {
		return errors.Internal(err)
	}
	if err := c.repo.DeleteWithRelations(ctx, role); err != nil {
		return errors.Internal(err)
	}
	return c.invalidate(ctx, holders)
}

func (c *Controller) invalidateHolders(ctx context.Context, id uint) error {
	holders, err := c.repo.HolderUUIDs(ctx, id)
	if err != nil {
		return errors.Internal(err)
	}
	return c.invalidate(ctx, holders)
}

func (c *Controller) invalidate(ctx context.Context, uuids []string) error {
	for _, uuid := range uuids {
		if err := c.perms.InvalidateUser(ctx, uuid); err != nil {
			return err
		}
	}
	logger.Debug("角色持有者权限缓存已失效", zap.Int("count", len(uuids)))
	return nil
}

func (c *Controller) find(ctx context.Context, id uint) (*model.Role, error) {
	role, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if role == nil {
		return nil, errors.NotFound("角色")
	}
	return role, nil
}
