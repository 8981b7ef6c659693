package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	pkgAuth "github.com/goadmin/pkg/auth"
	"github.com/goadmin/pkg/cache"
	"github.com/goadmin/pkg/config"
	"github.com/goadmin/pkg/middleware"
	"github.com/goadmin/pkg/permission"
	"github.com/goadmin/pkg/router"
	"github.com/goadmin/services/admin/internal/auth"
	"github.com/goadmin/services/admin/internal/casbin"
	"github.com/goadmin/services/admin/internal/menu"
	"github.com/goadmin/services/admin/internal/role"
	"github.com/goadmin/services/admin/internal/user"
)

// Deps 组装应用所需的依赖
type Deps struct {
	Config *config.Config
	DB     *gorm.DB
	Tokens *pkgAuth.TokenService
	Perms  *permission.Cache
	Engine *pkgAuth.PolicyEngine
	// Store 为 nil 时登录限流只在本进程计数
	Store cache.Store
	// Audit 为 nil 时写入应用日志
	Audit middleware.AuditSink
}

// New 创建 Fiber 应用并注册全部路由
func New(d Deps) (*fiber.App, error) {
	cfg := d.Config

	var enforcer permission.Enforcer
	if d.Engine != nil {
		enforcer = d.Engine
	}
	resolver, err := permission.NewResolver(&cfg.Permission, d.Perms, enforcer)
	if err != nil {
		return nil, err
	}

	audit := d.Audit
	if audit == nil {
		audit = middleware.LoggerSink{}
	}

	timeout := cfg.Database.QueryTimeout
	users := user.NewRepository(d.DB, timeout)
	roles := role.NewRepository(d.DB, timeout)
	menus := menu.NewRepository(d.DB, timeout)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		ErrorHandler:          middleware.ErrorHandler,
		ReadTimeout:           seconds(cfg.Server.HTTP.ReadTimeout),
		WriteTimeout:          seconds(cfg.Server.HTTP.WriteTimeout),
		DisableStartupMessage: true,
	})

	// 全局中间件
	app.Use(middleware.RequestID())
	app.Use(middleware.Recovery())
	app.Use(middleware.Cors(cfg.Server.HTTP.AllowOrigins))
	app.Use(middleware.Authentication(d.Tokens, users, middleware.AuthConfig{
		Exclude:     cfg.Token.Exclude,
		LoadTimeout: timeout,
	}))
	app.Use(middleware.OperationLog(audit, cfg.App.Name))

	// 健康检查
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": cfg.App.Name,
			"mode":    resolver.Mode(),
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	var counters fiber.Storage
	if d.Store != nil {
		counters = cache.NewFiberStorage(d.Store, cfg.RateLimit.Prefix, cfg.Token.StoreTimeout)
	}
	loginLimit := middleware.RateLimit(cfg.RateLimit.Login, cfg.RateLimit.Window, counters)

	var groups user.GroupRemover
	if d.Engine != nil {
		groups = d.Engine
	}

	controllers := []router.Registrar{
		auth.NewController(users, d.Tokens, loginLimit),
		user.NewController(users, d.Tokens, d.Perms, groups),
		role.NewController(roles, d.Perms),
		menu.NewController(menus, d.Perms),
	}
	if d.Engine != nil {
		controllers = append(controllers, casbin.NewController(d.Engine))
	}

	api := app.Group("/api/v1")
	router.Register(api, resolver, controllers...)

	return app, nil
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
