package middleware

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goadmin/pkg/auth"
	"github.com/goadmin/pkg/errors"
	"github.com/goadmin/pkg/logger"
	"github.com/goadmin/pkg/response"
)

// 上下文 key
const (
	LocalPrincipal     = "principal"
	LocalAuthenticated = "authenticated"
	LocalToken         = "token"
	LocalRequestID     = "requestId"
)

// Recovery 恢复中间件，panic 转为错误交由 ErrorHandler 输出 500
func Recovery() fiber.Handler {
	return recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			logger.Error("panic recovered",
				zap.Any("error", e),
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
				zap.String("request_id", GetRequestID(c)),
			)
		},
	})
}

// Cors 跨域中间件，只对白名单内的来源返回允许头
//
// 白名单为空时拒绝所有跨域来源；含 "*" 时放行所有来源但不允许携带凭证。
// 预检请求在此直接返回 204，不进入认证与鉴权。
func Cors(allowOrigins []string) fiber.Handler {
	cfg := cors.Config{
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,X-Requested-With,Content-Type,Accept,Authorization",
		ExposeHeaders:    "Content-Length,Retry-After,WWW-Authenticate,X-Request-ID",
		AllowCredentials: true,
	}
	switch {
	case len(allowOrigins) == 0:
		cfg.AllowOriginsFunc = func(string) bool { return false }
	case slices.Contains(allowOrigins, "*"):
		cfg.AllowOrigins = "*"
		cfg.AllowCredentials = false
	default:
		cfg.AllowOrigins = strings.Join(allowOrigins, ",")
	}
	return cors.New(cfg)
}

// RequestID 请求ID中间件，沿用客户端传入的 X-Request-ID
func RequestID() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:     fiber.HeaderXRequestID,
		Generator:  uuid.NewString,
		ContextKey: LocalRequestID,
	})
}

// ErrorHandler 统一错误输出，用作 fiber.Config.ErrorHandler
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return response.Error(c, fe.Code, fe.Message)
	}

	code := errors.GetCode(err)
	if code >= fiber.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("method", c.Method()),
			zap.String("request_id", GetRequestID(c)),
			zap.Error(err),
		)
	}

	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		return response.Fail(c, errors.ErrInternalServer)
	}
	return response.Fail(c, appErr)
}

// GetRequestID 从上下文获取请求ID
func GetRequestID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalRequestID).(string)
	return id
}

// GetPrincipal 从上下文获取当前用户，未认证时为 nil
func GetPrincipal(c *fiber.Ctx) *auth.Principal {
	p, _ := c.Locals(LocalPrincipal).(*auth.Principal)
	return p
}

// IsAuthenticated 是否已通过令牌认证
func IsAuthenticated(c *fiber.Ctx) bool {
	ok, _ := c.Locals(LocalAuthenticated).(bool)
	return ok
}

// GetToken 从上下文获取当前访问令牌
func GetToken(c *fiber.Ctx) string {
	token, _ := c.Locals(LocalToken).(string)
	return token
}

// matchPath 路径匹配：精确匹配或 /* 前缀匹配
func matchPath(pattern, path string) bool {
	if pattern == path {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(path, prefix)
	}
	return false
}
