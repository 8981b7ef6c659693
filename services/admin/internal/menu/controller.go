package menu

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/goadmin/pkg/dal"
	"github.com/goadmin/pkg/errors"
	"github.com/goadmin/pkg/permission"
	"github.com/goadmin/pkg/response"
	"github.com/goadmin/pkg/router"
	"github.com/goadmin/services/admin/internal/model"
)

// Repository 菜单仓储
type Repository = dal.Repository[model.Menu]

// NewRepository 创建菜单仓储
func NewRepository(db *gorm.DB, timeout time.Duration) Repository {
	return dal.NewBaseRepository[model.Menu](db, timeout)
}

// Controller 菜单控制器
//
// 菜单被所有角色共享，任何变更都失效全部用户的权限缓存。
type Controller struct {
	router.BaseController
	repo  Repository
	perms permission.Invalidator
}

// NewController 创建菜单控制器
func NewController(repo Repository, perms permission.Invalidator) *Controller {
	return &Controller{repo: repo, perms: perms}
}

// Prefix 路由前缀
func (c *Controller) Prefix() string {
	return "/menus"
}

// Routes 路由配置
func (c *Controller) Routes() []router.Route {
	return []router.Route{
		{Method: http.MethodPost, Path: "", Handler: c.create, Perm: "sys:menu:add"},
		{Method: http.MethodPut, Path: ":id", Handler: c.update, Perm: "sys:menu:edit"},
		{Method: http.MethodDelete, Path: ":id", Handler: c.delete, Perm: "sys:menu:del"},
	}
}

func (c *Controller) create(ctx *fiber.Ctx) error {
	var req Request
	if err := c.Bind(ctx, &req); err != nil {
		return err
	}
	m, err := c.Create(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return response.Success(ctx, m)
}

// Create 新增菜单
func (c *Controller) Create(ctx context.Context, req *Request) (*model.Menu, error) {
	m := &model.Menu{}
	req.apply(m)
	if err := c.repo.Create(ctx, m); err != nil {
		return nil, errors.Internal(err)
	}
	if err := c.perms.InvalidateAll(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Controller) update(ctx *fiber.Ctx) error {
	id, err := c.ParamID(ctx, "id")
	if err != nil {
		return err
	}
	var req Request
	if err := c.Bind(ctx, &req); err != nil {
		return err
	}
	m, err := c.Update(ctx.UserContext(), id, &req)
	if err != nil {
		return err
	}
	return response.Success(ctx, m)
}

// Update 更新菜单
func (c *Controller) Update(ctx context.Context, id uint, req *Request) (*model.Menu, error) {
	m, err := c.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.ParentID != nil && *req.ParentID == id {
		return nil, errors.BadRequest("禁止将自身设为上级菜单")
	}
	req.apply(m)
	if err := c.repo.Update(ctx, m); err != nil {
		return nil, errors.Internal(err)
	}
	if err := c.perms.InvalidateAll(ctx); err != nil {
		return nil, err
	}
	return m, nil
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

// Delete 删除菜单
func (c *Controller) Delete(ctx context.Context, id uint) error {
	if _, err := c.find(ctx, id); err != nil {
		return err
	}
	if err := c.repo.Delete(ctx, id); err != nil {
		return errors.Internal(err)
	}
	return c.perms.InvalidateAll(ctx)
}

func (c *Controller) find(ctx context.Context, id uint) (*model.Menu, error) {
	m, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if m == nil {
		return nil, errors.NotFound("菜单")
	}
	return m, nil
}
