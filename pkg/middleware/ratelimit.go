package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/goadmin/pkg/errors"
)

// RateLimit 按客户端 IP 的固定窗口限流，limit <= 0 时不限流
//
// storage 为 nil 时计数只在本进程内有效；传入共享存储后多个节点共用同一窗口。
// 超限时由 limiter 设置 Retry-After，再交给 ErrorHandler 输出 429。
func RateLimit(limit int, window time.Duration, storage fiber.Storage) fiber.Handler {
	if limit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return errors.ErrTooManyRequests
		},
		Storage: storage,
	})
}
