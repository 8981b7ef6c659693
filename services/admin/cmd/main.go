package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/goadmin/pkg/auth"
	"github.com/goadmin/pkg/cache"
	"github.com/goadmin/pkg/config"
	"github.com/goadmin/pkg/database"
	"github.com/goadmin/pkg/lifecycle"
	"github.com/goadmin/pkg/logger"
	"github.com/goadmin/pkg/permission"
	"github.com/goadmin/services/admin/internal/server"
)

func main() {
	configPath := flag.String("c", "", "配置文件路径")
	flag.Parse()

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	// 初始化日志
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 初始化数据库
	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	db := database.Get()

	// 初始化Redis
	if err := database.InitRedis(&cfg.Redis); err != nil {
		logger.Fatal("初始化Redis失败", zap.Error(err))
	}
	rdb := database.GetRedis()
	store := cache.NewRedisStore(rdb)

	codec, err := auth.NewTokenCodec(cfg.Token.Secret, cfg.Token.Algorithm, cfg.Token.Issuer)
	if err != nil {
		logger.Fatal("初始化令牌编解码失败", zap.Error(err))
	}
	tokens := auth.NewTokenService(codec, store, &cfg.Token)
	perms := permission.NewCache(store, cfg.Permission.CachePrefix, cfg.Permission.StoreTimeout)

	engine, err := auth.NewPolicyEngine(db, &cfg.Casbin)
	if err != nil {
		logger.Fatal("初始化策略引擎失败", zap.Error(err))
	}
	watcher := auth.NewPolicyWatcher(rdb, cfg.Casbin.Channel, cfg.Casbin.ReloadInterval, engine)

	app, err := server.New(server.Deps{
		Config: cfg,
		DB:     db,
		Tokens: tokens,
		Perms:  perms,
		Engine: engine,
		Store:  store,
	})
	if err != nil {
		logger.Fatal("创建应用失败", zap.Error(err))
	}

	err = lifecycle.New(cfg.App.Name).
		Addr(cfg.Server.HTTP.Addr()).
		App(app).
		OnStart(func(ctx context.Context, s *lifecycle.Service) error {
			// 数据库迁移
			if err := server.Migrate(db); err != nil {
				return fmt.Errorf("数据库迁移失败: %w", err)
			}
			logger.Info("数据库迁移完成")
			return server.SeedAdmin(ctx, db, cfg.App.AdminUsername, cfg.App.AdminPassword, cfg.Token.MultiLogin)
		}).
		OnStart(func(ctx context.Context, s *lifecycle.Service) error {
			return watcher.Start(ctx)
		}).
		OnReady(func(ctx context.Context, s *lifecycle.Service) error {
			logger.Info("服务就绪",
				zap.String("addr", s.Addr()),
				zap.String("permission_mode", cfg.Permission.Mode),
				zap.String("node_id", watcher.NodeID()),
			)
			return nil
		}).
		OnStop(func(ctx context.Context, s *lifecycle.Service) error {
			if err := database.CloseRedis(); err != nil {
				return err
			}
			return database.Close()
		}).
		OnStop(func(ctx context.Context, s *lifecycle.Service) error {
			return watcher.Stop()
		}).
		Build().
		Run(context.Background())

	if err != nil {
		logger.Fatal("服务运行失败", zap.Error(err))
	}
}
