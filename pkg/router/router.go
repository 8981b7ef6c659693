package router

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/goadmin/pkg/middleware"
	"github.com/goadmin/pkg/permission"
)

// Route 路由配置
type Route struct {
	Method      string          // HTTP方法
	Path        string          // 路径(相对路径或以/开头的绝对路径)
	Handler     fiber.Handler   // 处理函数
	Perm        string          // 权限标识，为空时不鉴权
	Auth        bool            // 无权限标识但要求登录
	Middlewares []fiber.Handler // 路由级中间件，位于鉴权之后
}

// Registrar 路由注册器接口
type Registrar interface {
	// Prefix 返回路由前缀
	Prefix() string
	// Routes 返回路由配置列表
	Routes() []Route
}

// Register 自动注册路由，带权限标识的路由插入鉴权中间件
func Register(app fiber.Router, resolver *permission.Resolver, controllers ...Registrar) {
	for _, ctrl := range controllers {
		prefix := ctrl.Prefix()

		// 创建路由组
		g := app.Group(prefix)

		for _, route := range ctrl.Routes() {
			handlers := buildHandlers(resolver, route)
			if strings.HasPrefix(route.Path, "/") && !strings.HasPrefix(route.Path, prefix) {
				// 绝对路径,直接注册到app
				app.Add(route.Method, route.Path, handlers...)
			} else {
				// 相对路径,注册到组
				g.Add(route.Method, route.Path, handlers...)
			}
		}
	}
}

// buildHandlers 构建处理器链(鉴权 + 中间件 + 处理函数)
func buildHandlers(resolver *permission.Resolver, route Route) []fiber.Handler {
	handlers := make([]fiber.Handler, 0, len(route.Middlewares)+2)
	switch {
	case route.Perm != "" && resolver != nil:
		handlers = append(handlers, middleware.RequirePermission(resolver, route.Perm))
	case route.Perm != "" || route.Auth:
		handlers = append(handlers, middleware.RequireAuth())
	}
	handlers = append(handlers, route.Middlewares...)
	handlers = append(handlers, route.Handler)
	return handlers
}
