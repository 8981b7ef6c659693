package casbin

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	pkgAuth "github.com/goadmin/pkg/auth"
	"github.com/goadmin/pkg/errors"
	"github.com/goadmin/pkg/response"
	"github.com/goadmin/pkg/router"
)

// PolicyManager 策略规则管理
type PolicyManager interface {
	Policies(sub string) ([]pkgAuth.PolicyRule, error)
	Groups(user string) ([]pkgAuth.PolicyRule, error)
	AddRule(ctx context.Context, sub, obj, act string) error
	AddRules(ctx context.Context, rules []pkgAuth.PolicyRule) error
	UpdateRule(ctx context.Context, old, updated pkgAuth.PolicyRule) error
	RemoveRule(ctx context.Context, sub, obj, act string) error
	RemoveRules(ctx context.Context, rules []pkgAuth.PolicyRule) error
	RemoveSubject(ctx context.Context, sub string) error
	AddGroup(ctx context.Context, user, role string) error
	AddGroups(ctx context.Context, rules []pkgAuth.PolicyRule) error
	RemoveGroup(ctx context.Context, user, role string) error
	RemoveGroups(ctx context.Context, rules []pkgAuth.PolicyRule) error
	RemoveUserGroups(ctx context.Context, user string) error
}

// Controller 策略规则控制器
type Controller struct {
	router.BaseController
	engine PolicyManager
}

// NewController 创建策略规则控制器
func NewController(engine PolicyManager) *Controller {
	return &Controller{engine: engine}
}

// Prefix 路由前缀
func (c *Controller) Prefix() string {
	return "/casbin"
}

// Routes 路由配置
func (c *Controller) Routes() []router.Route {
	return []router.Route{
		{Method: http.MethodGet, Path: "policies", Handler: c.policies, Perm: "casbin:p:list"},
		{Method: http.MethodPost, Path: "policy", Handler: c.addPolicy, Perm: "casbin:p:add"},
		{Method: http.MethodPost, Path: "policies", Handler: c.addPolicies, Perm: "casbin:p:group:add"},
		{Method: http.MethodPut, Path: "policy", Handler: c.updatePolicy, Perm: "casbin:p:edit"},
		{Method: http.MethodDelete, Path: "policy", Handler: c.removePolicy, Perm: "casbin:p:del"},
		{Method: http.MethodDelete, Path: "policies", Handler: c.removePolicies, Perm: "casbin:p:group:del"},
		{Method: http.MethodDelete, Path: "policies/all", Handler: c.removeSubject, Perm: "casbin:p:empty"},
		{Method: http.MethodGet, Path: "groups", Handler: c.groups, Perm: "casbin:g:list"},
		{Method: http.MethodPost, Path: "group", Handler: c.addGroup, Perm: "casbin:g:add"},
		{Method: http.MethodPost, Path: "groups", Handler: c.addGroups, Perm: "casbin:g:group:add"},
		{Method: http.MethodDelete, Path: "group", Handler: c.removeGroup, Perm: "casbin:g:del"},
		{Method: http.MethodDelete, Path: "groups", Handler: c.removeGroups, Perm: "casbin:g:group:del"},
		{Method: http.MethodDelete, Path: "groups/all", Handler: c.removeUserGroups, Perm: "casbin:g:empty"},
	}
}

func (c *Controller) policies(ctx *fiber.Ctx) error {
	rules, err := c.engine.Policies(ctx.Query("sub"))
	if err != nil {
		return errors.Unavailable(err)
	}
	return response.Success(ctx, rules)
}

func (c *Controller) addPolicy(ctx *fiber.Ctx) error {
	var req PolicyRequest
	if err := c.Bind(ctx, &req); err != nil {
		return err
	}
	if err := c.engine.AddRule(ctx.UserContext(), req.Sub, req.Path, req.Method); err != nil {
		return err
	}
	return response.Success(ctx, nil)
}

func (c *Controller) addPolicies(ctx *fiber.Ctx) error {
	reqs, err := bindList[PolicyRequest](ctx)
	if err != nil {
		return err
	}
	if err := c.engine.AddRules(ctx.UserContext(), policyRules(reqs)); err != nil {
		return err
	}
	return response.Success(ctx, nil)
}

func (c *Controller) updatePolicy(ctx *fiber.Ctx) error {
	var req UpdatePolicyRequest
	if err := c.Bind(ctx, &req); err != nil {
		return err
	}
	if err := c.engine.UpdateRule(ctx.UserContext(), req.Old.rule(), req.New.rule()); err != nil {
		return err
	}
	return response.Success(ctx, nil)
}

func (c *Controller) removePolicy(ctx *fiber.Ctx) error {
	var req PolicyRequest
	if err := c.Bind(ctx, &req); err != nil {
		return err
	}
	if err := c.engine.RemoveRule(ctx.UserContext(), req.Sub, req.Path, req.Method); err != nil {
		return err
	}
	return response.Success(ctx, nil)
}

func (c *Controller) removePolicies(ctx *fiber.Ctx) error {
	reqs, err := bindList[PolicyRequest](ctx)
	if err != nil {
		return err
	}
	if err := c.engine.RemoveRules(ctx.UserContext(), policyRules(reqs)); err != nil {
		return err
	}
	return response.Success(ctx, nil)
}

func (c *Controller) removeSubject(ctx *fiber.Ctx) error {
	var req SubjectRequest
	if err := c.Bind(ctx, &req); err != nil {
		return err
	}
	if err := c.engine.RemoveSubject(ctx.UserContext(), req.Sub); err != nil {
		return err
	}
	return response.Success(ctx, nil)
}

func (c *Controller) groups(ctx *fiber.Ctx) error {
	rules, err := c.engine.Groups(ctx.Query("uuid"))
	if err != nil {
		return errors.Unavailable(err)
	}
	return response.Success(ctx, rules)
}

func (c *Controller) addGroup(ctx *fiber.Ctx) error {
	var req GroupRequest
	if err := c.Bind(ctx, &req); err != nil {
		return err
	}
	if err := c.engine.AddGroup(ctx.UserContext(), req.UUID, req.Role); err != nil {
		return err
	}
	return response.Success(ctx, nil)
}

func (c *Controller) addGroups(ctx *fiber.Ctx) error {
	reqs, err := bindList[GroupRequest](ctx)
	if err != nil {
		return err
	}
	if err := c.engine.AddGroups(ctx.UserContext(), groupRules(reqs)); err != nil {
		return err
	}
	return response.Success(ctx, nil)
}

func (c *Controller) removeGroup(ctx *fiber.Ctx) error {
	var req GroupRequest
	if err := c.Bind(ctx, &req); err != nil {
		return err
	}
	if err := c.engine.RemoveGroup(ctx.UserContext(), req.UUID, req.Role); err != nil {
		return err
	}
	return response.Success(ctx, nil)
}

func (c *Controller) removeGroups(ctx *fiber.Ctx) error {
	reqs, err := bindList[GroupRequest](ctx)
	if err != nil {
		return err
	}
	if err := c.engine.RemoveGroups(ctx.UserContext(), groupRules(reqs)); err != nil {
		return err
	}
	return response.Success(ctx, nil)
}

func (c *Controller) removeUserGroups(ctx *fiber.Ctx) error {
	uuid := ctx.Query("uuid")
	if err := router.Validator().Var(uuid, "required,uuid"); err != nil {
		return errors.Validation("uuid 校验失败")
	}
	if err := c.engine.RemoveUserGroups(ctx.UserContext(), uuid); err != nil {
		return err
	}
	return response.Success(ctx, nil)
}

// bindList 解析并逐项校验数组请求体
func bindList[T any](ctx *fiber.Ctx) ([]T, error) {
	var items []T
	if err := ctx.BodyParser(&items); err != nil {
		return nil, errors.BadRequest("请求参数格式错误")
	}
	if len(items) == 0 {
		return nil, errors.Validation("规则列表不能为空")
	}
	for i := range items {
		if err := router.ValidateStruct(&items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (r PolicyRequest) rule() pkgAuth.PolicyRule {
	return pkgAuth.PolicyRule{Type: pkgAuth.RuleTypePermission, Sub: r.Sub, Obj: r.Path, Act: r.Method}
}

func policyRules(reqs []PolicyRequest) []pkgAuth.PolicyRule {
	rules := make([]pkgAuth.PolicyRule, 0, len(reqs))
	for _, r := range reqs {
		rules = append(rules, r.rule())
	}
	return rules
}

func groupRules(reqs []GroupRequest) []pkgAuth.PolicyRule {
	rules := make([]pkgAuth.PolicyRule, 0, len(reqs))
	for _, r := range reqs {
		rules = append(rules, pkgAuth.PolicyRule{Type: pkgAuth.RuleTypeGrouping, Sub: r.UUID, Obj: r.Role})
	}
	return rules
}
