package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/goadmin/pkg/permission"
)

// LocalPermission 路由声明的权限标识
const LocalPermission = "permission"

// RequirePermission 按路由声明的权限标识鉴权，拒绝时处理函数不会执行
func RequirePermission(resolver *permission.Resolver, tag string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(LocalPermission, tag)
		err := resolver.Resolve(c.UserContext(), &permission.Request{
			Principal:     GetPrincipal(c),
			Authenticated: IsAuthenticated(c),
			Method:        c.Method(),
			Path:          c.Path(),
			Tag:           tag,
		})
		if err != nil {
			return err
		}
		return c.Next()
	}
}
