package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	pkgAuth "github.com/goadmin/pkg/auth"
	"github.com/goadmin/pkg/errors"
	"github.com/goadmin/pkg/logger"
	"github.com/goadmin/pkg/middleware"
	"github.com/goadmin/pkg/response"
	"github.com/goadmin/pkg/router"
	"github.com/goadmin/services/admin/internal/model"
	"github.com/goadmin/services/admin/internal/user"
)

// Tokens 会话令牌操作
type Tokens interface {
	IssuePair(ctx context.Context, sub uint, multiLogin bool) (*pkgAuth.TokenPair, error)
	Rotate(ctx context.Context, sub uint, oldAccess, oldRefresh string, multiLogin bool) (*pkgAuth.TokenPair, error)
	Revoke(ctx context.Context, sub uint, token string) error
	RevokeAll(ctx context.Context, sub uint, keepAccess string) error
	Decode(token string) (uint, error)
}

// Controller 认证控制器
type Controller struct {
	router.BaseController
	users   user.Repository
	tokens  Tokens
	limiter fiber.Handler
}

// NewController 创建认证控制器，limiter 用于登录限流，可为 nil
func NewController(users user.Repository, tokens Tokens, limiter fiber.Handler) *Controller {
	return &Controller{users: users, tokens: tokens, limiter: limiter}
}

// Prefix 路由前缀
func (c *Controller) Prefix() string {
	return "/auth"
}

// Routes 路由配置
func (c *Controller) Routes() []router.Route {
	login := router.Route{Method: http.MethodPost, Path: "login", Handler: c.login}
	if c.limiter != nil {
		login.Middlewares = []fiber.Handler{c.limiter}
	}
	return []router.Route{
		login,
		{Method: http.MethodPost, Path: "refresh", Handler: c.refresh},
		{Method: http.MethodPost, Path: "logout", Handler: c.logout, Auth: true},
	}
}

func (c *Controller) login(ctx *fiber.Ctx) error {
	var req LoginRequest
	if err := c.Bind(ctx, &req); err != nil {
		return err
	}
	resp, err := c.Login(ctx.UserContext(), &req)
	if err != nil {
		logger.Info("登录失败",
			zap.String("username", req.Username),
			zap.String("ip", ctx.IP()),
			zap.String("reason", errors.GetMessage(err)),
		)
		return err
	}
	return response.Success(ctx, resp)
}

// Login 校验用户名密码并签发令牌对
func (c *Controller) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	u, err := c.users.FindByUsername(ctx, req.Username)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if u == nil {
		return nil, errors.ErrInvalidCredential
	}
	ok, err := pkgAuth.CheckPassword(u.Password, req.Password)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if !ok {
		return nil, errors.ErrInvalidCredential
	}
	if u.Status != model.StatusEnabled {
		return nil, errors.ErrPrincipalLocked
	}

	pair, err := c.tokens.IssuePair(ctx, u.ID, u.IsMultiLogin)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := c.users.UpdateLastLogin(ctx, u.ID, now); err != nil {
		logger.Warn("更新最后登录时间失败", zap.Uint("user_id", u.ID), zap.Error(err))
	} else {
		u.LastLoginTime = &now
	}

	return &LoginResponse{TokenResponse: newTokenResponse(pair), User: user.NewInfo(u)}, nil
}

func (c *Controller) refresh(ctx *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.Bind(ctx, &req); err != nil {
		return err
	}
	resp, err := c.Refresh(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return response.Success(ctx, resp)
}

// Refresh 用刷新令牌轮换令牌对，访问令牌过期后仍可调用
func (c *Controller) Refresh(ctx context.Context, req *RefreshRequest) (*TokenResponse, error) {
	sub, err := c.tokens.Decode(req.RefreshToken)
	if err != nil {
		if errors.Is(err, errors.ErrExpiredToken) {
			return nil, errors.WithCause(errors.ErrExpiredRefreshToken, err)
		}
		return nil, err
	}
	u, err := c.users.FindByID(ctx, sub)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if u == nil {
		return nil, errors.ErrPrincipalNotFound
	}
	if u.Status != model.StatusEnabled {
		return nil, errors.ErrPrincipalLocked
	}

	pair, err := c.tokens.Rotate(ctx, sub, req.AccessToken, req.RefreshToken, u.IsMultiLogin)
	if err != nil {
		return nil, err
	}
	resp := newTokenResponse(pair)
	return &resp, nil
}

func (c *Controller) logout(ctx *fiber.Ctx) error {
	p, err := c.Principal(ctx)
	if err != nil {
		return err
	}
	if err := c.Logout(ctx.UserContext(), p, middleware.GetToken(ctx)); err != nil {
		return err
	}
	return response.Success(ctx, nil)
}

// Logout 多端登录时只注销当前令牌，否则注销全部令牌
func (c *Controller) Logout(ctx context.Context, p *pkgAuth.Principal, token string) error {
	if p.MultiLogin {
		return c.tokens.Revoke(ctx, p.ID, token)
	}
	return c.tokens.RevokeAll(ctx, p.ID, "")
}

func newTokenResponse(pair *pkgAuth.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:   pair.AccessToken,
		AccessExpire:  pair.AccessExpire,
		RefreshToken:  pair.RefreshToken,
		RefreshExpire: pair.RefreshExpire,
	}
}
