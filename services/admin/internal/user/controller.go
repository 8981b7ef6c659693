package user

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/goadmin/pkg/auth"
	"github.com/goadmin/pkg/errors"
	"github.com/goadmin/pkg/logger"
	"github.com/goadmin/pkg/middleware"
	"github.com/goadmin/pkg/permission"
	"github.com/goadmin/pkg/response"
	"github.com/goadmin/pkg/router"
	"github.com/goadmin/services/admin/internal/model"
)

// TokenRevoker 令牌注销
type TokenRevoker interface {
	RevokeAll(ctx context.Context, sub uint, keepAccess string) error
}

// GroupRemover 删除用户在策略引擎中的分组
type GroupRemover interface {
	RemoveUserGroups(ctx context.Context, user string) error
}

// Controller 用户控制器（融合了Service层）
type Controller struct {
	router.BaseController
	repo   Repository
	tokens TokenRevoker
	perms  permission.Invalidator
	groups GroupRemover
}

// NewController 创建用户控制器，groups 可为 nil
func NewController(repo Repository, tokens TokenRevoker, perms permission.Invalidator, groups GroupRemover) *Controller {
	return &Controller{repo: repo, tokens: tokens, perms: perms, groups: groups}
}

// Prefix 路由前缀
func (c *Controller) Prefix() string {
	return "/users"
}

// Routes 路由配置
func (c *Controller) Routes() []router.Route {
	return []router.Route{
		{Method: http.MethodGet, Path: "me", Handler: c.me, Auth: true},
		{Method: http.MethodPut, Path: "me/password", Handler: c.changePassword, Auth: true},
		{Method: http.MethodPut, Path: ":id/roles", Handler: c.setRoles, Perm: "sys:user:role:edit"},
		{Method: http.MethodPut, Path: ":id/status", Handler: c.setStatus, Perm: "sys:user:status:edit"},
		{Method: http.MethodPut, Path: ":id/staff", Handler: c.setStaff, Perm: "sys:user:staff:edit"},
		{Method: http.MethodPut, Path: ":id/superuser", Handler: c.setSuperuser, Perm: "sys:user:superuser:edit"},
		{Method: http.MethodPut, Path: ":id/multi-login", Handler: c.setMultiLogin, Perm: "sys:user:multi:edit"},
		{Method: http.MethodDelete, Path: ":id", Handler: c.delete, Perm: "sys:user:del"},
	}
}

func (c *Controller) me(ctx *fiber.Ctx) error {
	p, err := c.Principal(ctx)
	if err != nil {
		return err
	}
	u, err := c.repo.FindWithRelations(ctx.UserContext(), p.ID)
	if err != nil {
		return errors.Internal(err)
	}
	if u == nil {
		return errors.ErrPrincipalNotFound
	}
	return response.Success(ctx, NewInfo(u))
}

func (c *Controller) changePassword(ctx *fiber.Ctx) error {
	p, err := c.Principal(ctx)
	if err != nil {
		return err
	}
	var req ChangePasswordRequest
	if err := c.Bind(ctx, &req); err != nil {
		return err
	}
	if err := c.ChangePassword(ctx.UserContext(), p.ID, &req); err != nil {
		return err
	}
	return response.SuccessWithMessage(ctx, "密码已修改，请重新登录", nil)
}

// ChangePassword 修改本人密码，成功后注销全部令牌
func (c *Controller) ChangePassword(ctx context.Context, id uint, req *ChangePasswordRequest) error {
	u, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return errors.Internal(err)
	}
	if u == nil {
		return errors.ErrPrincipalNotFound
	}
	ok, err := auth.CheckPassword(u.Password, req.OldPassword)
	if err != nil {
		return errors.Internal(err)
	}
	if !ok {
		return errors.Forbidden("原密码错误")
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return errors.Internal(err)
	}
	if err := c.repo.UpdateFields(ctx, id, map[string]interface{}{"password": hash}); err != nil {
		return errors.Internal(err)
	}
	return c.tokens.RevokeAll(ctx, id, "")
}

func (c *Controller) setRoles(ctx *fiber.Ctx) error {
	id, err := c.ParamID(ctx, "id")
	if err != nil {
		return err
	}
	var req RolesRequest
	if err := c.Bind(ctx, &req); err != nil {
		return err
	}
	if err := c.SetRoles(ctx.UserContext(), id, req.RoleIDs); err != nil {
		return err
	}
	return response.Success(ctx, nil)
}

// SetRoles 替换用户角色并失效该用户的权限缓存
func (c *Controller) SetRoles(ctx context.Context, id uint, roleIDs []uint) error {
	u, err := c.find(ctx, id)
	if err != nil {
		return err
	}
	if err := c.repo.ReplaceRoles(ctx, u, roleIDs); err != nil {
		if errors.GetCode(err) == http.StatusNotFound {
			return err
		}
		return errors.Internal(err)
	}
	return c.perms.InvalidateUser(ctx, u.UUID)
}

func (c *Controller) setStatus(ctx *fiber.Ctx) error {
	operator, target, err := c.target(ctx)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := c.Bind(ctx, &req); err != nil {
		return err
	}
	if err := c.SetStatus(ctx.UserContext(), operator, target, *req.Status); err != nil {
		return err
	}
	return response.Success(ctx, nil)
}

// SetStatus 修改用户状态，锁定时注销其全部令牌
func (c *Controller) SetStatus(ctx context.Context, operator *auth.Principal, id uint, status int8) error {
	if operator.ID == id {
		return errors.Forbidden("禁止修改自身状态")
	}
	if _, err := c.find(ctx, id); err != nil {
		return err
	}
	if err := c.repo.UpdateFields(ctx, id, map[string]interface{}{"status": status}); err != nil {
		return errors.Internal(err)
	}
	if status == model.StatusDisabled {
		return c.tokens.RevokeAll(ctx, id, "")
	}
	return nil
}

func (c *Controller) setStaff(ctx *fiber.Ctx) error {
	return c.setFlag(ctx, func(ctx context.Context, operator *auth.Principal, id uint, enabled bool) error {
		return c.SetStaff(ctx, operator, id, enabled)
	})
}

// SetStaff 修改后台管理登录权限，仅超级管理员可操作他人
func (c *Controller) SetStaff(ctx context.Context, operator *auth.Principal, id uint, enabled bool) error {
	if err := c.guardPrivilege(operator, id, "禁止修改自身后台管理登录权限"); err != nil {
		return err
	}
	return c.updateFlag(ctx, id, "is_staff", enabled)
}

func (c *Controller) setSuperuser(ctx *fiber.Ctx) error {
	return c.setFlag(ctx, func(ctx context.Context, operator *auth.Principal, id uint, enabled bool) error {
		return c.SetSuperuser(ctx, operator, id, enabled)
	})
}

// SetSuperuser 修改超级管理员权限，仅超级管理员可操作他人
func (c *Controller) SetSuperuser(ctx context.Context, operator *auth.Principal, id uint, enabled bool) error {
	if err := c.guardPrivilege(operator, id, "禁止修改自身超级管理员权限"); err != nil {
		return err
	}
	return c.updateFlag(ctx, id, "is_superuser", enabled)
}

func (c *Controller) setMultiLogin(ctx *fiber.Ctx) error {
	current := middleware.GetToken(ctx)
	return c.setFlag(ctx, func(ctx context.Context, operator *auth.Principal, id uint, enabled bool) error {
		return c.SetMultiLogin(ctx, operator, current, id, enabled)
	})
}

// SetMultiLogin 修改多端登录
//
// 关闭本人的多端登录时保留当前访问令牌，注销其余令牌；关闭他人的则注销其全部令牌；开启不注销。
func (c *Controller) SetMultiLogin(ctx context.Context, operator *auth.Principal, currentToken string, id uint, enabled bool) error {
	if err := c.updateFlag(ctx, id, "is_multi_login", enabled); err != nil {
		return err
	}
	if enabled {
		return nil
	}
	keep := ""
	if operator.ID == id {
		keep = currentToken
	}
	return c.tokens.RevokeAll(ctx, id, keep)
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

// Delete 删除用户，注销令牌并清理权限缓存和策略分组
func (c *Controller) Delete(ctx context.Context, id uint) error {
	u, err := c.find(ctx, id)
	if err != nil {
		return err
	}
	if err := c.repo.Delete(ctx, id); err != nil {
		return errors.Internal(err)
	}
	if err := c.tokens.RevokeAll(ctx, id, ""); err != nil {
		return err
	}
	if err := c.perms.InvalidateUser(ctx, u.UUID); err != nil {
		return err
	}
	if c.groups != nil {
		if err := c.groups.RemoveUserGroups(ctx, u.UUID); err != nil {
			logger.Warn("删除用户策略分组失败", zap.String("uuid", u.UUID), zap.Error(err))
		}
	}
	return nil
}

type flagFunc func(ctx context.Context, operator *auth.Principal, id uint, enabled bool) error

func (c *Controller) setFlag(ctx *fiber.Ctx, fn flagFunc) error {
	operator, id, err := c.target(ctx)
	if err != nil {
		return err
	}
	var req FlagRequest
	if err := c.Bind(ctx, &req); err != nil {
		return err
	}
	if err := fn(ctx.UserContext(), operator, id, *req.Enabled); err != nil {
		return err
	}
	return response.Success(ctx, nil)
}

// target 当前用户与路径中的目标用户ID
func (c *Controller) target(ctx *fiber.Ctx) (*auth.Principal, uint, error) {
	operator, err := c.Principal(ctx)
	if err != nil {
		return nil, 0, err
	}
	id, err := c.ParamID(ctx, "id")
	if err != nil {
		return nil, 0, err
	}
	return operator, id, nil
}

func (c *Controller) guardPrivilege(operator *auth.Principal, id uint, selfMsg string) error {
	if !operator.IsSuperuser {
		return errors.Forbidden("仅超级管理员可执行此操作")
	}
	if operator.ID == id {
		return errors.Forbidden(selfMsg)
	}
	return nil
}

func (c *Controller) updateFlag(ctx context.Context, id uint, column string, enabled bool) error {
	if _, err := c.find(ctx, id); err != nil {
		return err
	}
	if err := c.repo.UpdateFields(ctx, id, map[string]interface{}{column: enabled}); err != nil {
		return errors.Internal(err)
	}
	return nil
}

func (c *Controller) find(ctx context.Context, id uint) (*model.User, error) {
	u, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if u == nil {
		return nil, errors.NotFound("用户")
	}
	return u, nil
}
