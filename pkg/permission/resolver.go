// Package permission 请求级授权决策
//
// Resolver 在启动时选定一种策略：role-menu 按菜单权限标识判断，
// casbin 按 (用户UUID, 路径, 方法) 交由策略引擎判断。两种策略共享前置步骤，
// 且禁用菜单的权限标识始终优先于授予。
package permission

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goadmin/pkg/auth"
	"github.com/goadmin/pkg/config"
	apperrors "github.com/goadmin/pkg/errors"
)

// Request 一次授权判断的输入
type Request struct {
	Principal     *auth.Principal
	Authenticated bool
	Method        string
	Path          string
	// Tag 路由声明的权限标识，空表示无需权限
	Tag string
}

// Strategy 前置步骤之后的最终判断
type Strategy interface {
	Name() string
	Check(ctx context.Context, req *Request) error
}

// Enforcer 策略引擎
type Enforcer interface {
	Enforce(sub, obj, act string) (bool, error)
}

// Resolver 授权决策器
type Resolver struct {
	strategy Strategy
	bypass   map[string]struct{}
}

// NewResolver 按配置选定策略
func NewResolver(cfg *config.PermissionConfig, sets *Cache, enforcer Enforcer) (*Resolver, error) {
	var strategy Strategy
	switch cfg.Mode {
	case config.PermissionModeRoleMenu:
		strategy = &roleMenuStrategy{sets: sets}
	case config.PermissionModeCasbin:
		if enforcer == nil {
			return nil, fmt.Errorf("casbin mode requires a policy engine")
		}
		strategy = newPolicyStrategy(sets, enforcer, cfg.CasbinExclude)
	default:
		return nil, fmt.Errorf("invalid permission mode %q", cfg.Mode)
	}
	return NewResolverWithStrategy(strategy, cfg.TagExclude), nil
}

// NewResolverWithStrategy 使用指定策略
func NewResolverWithStrategy(strategy Strategy, tagExclude []string) *Resolver {
	bypass := make(map[string]struct{}, len(tagExclude))
	for _, t := range tagExclude {
		bypass[t] = struct{}{}
	}
	return &Resolver{strategy: strategy, bypass: bypass}
}

// Mode 当前策略名
func (r *Resolver) Mode() string {
	return r.strategy.Name()
}

// Resolve 返回 nil 表示放行
func (r *Resolver) Resolve(ctx context.Context, req *Request) error {
	if req.Tag == "" {
		return nil
	}
	if _, ok := r.bypass[req.Tag]; ok {
		return nil
	}

	p := req.Principal
	if !req.Authenticated || p == nil {
		return apperrors.ErrUnauthenticated
	}
	if p.IsSuperuser {
		return nil
	}

	roles := p.ActiveRoles()
	if len(roles) == 0 {
		return apperrors.Forbidden("用户未分配角色，请联系系统管理员")
	}
	hasMenus := false
	for _, role := range roles {
		if len(role.Menus) > 0 {
			hasMenus = true
			break
		}
	}
	if !hasMenus {
		return apperrors.Forbidden("用户未分配菜单，请联系系统管理员")
	}

	if req.Method != http.MethodGet && req.Method != http.MethodOptions && !p.IsStaff {
		return apperrors.Forbidden("此用户无权执行后台管理操作")
	}

	for _, role := range roles {
		if role.DataScope == auth.DataScopeAll {
			return nil
		}
	}

	return r.strategy.Check(ctx, req)
}
