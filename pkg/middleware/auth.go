package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/goadmin/pkg/auth"
	"github.com/goadmin/pkg/errors"
	"github.com/goadmin/pkg/logger"
)

// Authenticator 校验访问令牌
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// PrincipalLoader 按用户ID加载用户及其角色、部门、菜单；不存在时返回 nil, nil
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, id uint) (*auth.Principal, error)
}

// AuthConfig 认证中间件配置
type AuthConfig struct {
	// Exclude 跳过认证的路径
	Exclude []string
	// LoadTimeout 加载用户的超时
	LoadTimeout time.Duration
}

// Authentication 将 Bearer 令牌解析为当前用户
//
// 无 Authorization 头、非 Bearer 方案或路径被排除时直接放行，由后续鉴权决定是否需要登录。
func Authentication(tokens Authenticator, loader PrincipalLoader, cfg AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Next()
		}
		for _, pattern := range cfg.Exclude {
			if matchPath(pattern, c.Path()) {
				return c.Next()
			}
		}

		scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return c.Next()
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return errors.ErrInvalidToken
		}

		ctx := c.UserContext()
		claims, err := tokens.Authenticate(ctx, token)
		if err != nil {
			return err
		}
		id, err := claims.UserID()
		if err != nil {
			return err
		}

		principal, err := loadPrincipal(ctx, loader, id, cfg.LoadTimeout)
		if err != nil {
			logger.Error("加载用户失败", zap.Uint("user_id", id), zap.Error(err))
			return errors.Unavailable(err)
		}
		if principal == nil {
			return errors.ErrPrincipalNotFound
		}
		if principal.Locked() {
			return errors.ErrPrincipalLocked
		}

		c.Locals(LocalPrincipal, principal)
		c.Locals(LocalAuthenticated, true)
		c.Locals(LocalToken, token)
		return c.Next()
	}
}

func loadPrincipal(ctx context.Context, loader PrincipalLoader, id uint, timeout time.Duration) (*auth.Principal, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return loader.LoadPrincipal(ctx, id)
}

// RequireAuth 要求已登录，用于无权限标识但需要身份的路由
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !IsAuthenticated(c) || GetPrincipal(c) == nil {
			return errors.ErrUnauthenticated
		}
		return c.Next()
	}
}
