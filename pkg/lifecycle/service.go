package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/goadmin/pkg/logger"
)

// Hook 生命周期钩子
type Hook func(ctx context.Context, s *Service) error

// Service 进程包装器：启动钩子、监听、就绪钩子、等待信号、停止钩子
type Service struct {
	name            string
	addr            string
	app             *fiber.App
	shutdownTimeout time.Duration

	onStart []Hook
	onReady []Hook
	onStop  []Hook

	listener net.Listener
}

// Name 服务名称
func (s *Service) Name() string {
	return s.name
}

// App Fiber应用
func (s *Service) App() *fiber.App {
	return s.app
}

// Addr 实际监听地址，未监听时为配置地址
func (s *Service) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Run 运行服务直到收到 SIGINT/SIGTERM 或 ctx 结束
func (s *Service) Run(ctx context.Context) error {
	if s.app == nil {
		return errors.New("fiber app not set")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 执行启动钩子
	for _, fn := range s.onStart {
		if err := fn(ctx, s); err != nil {
			s.runStopHooks()
			return fmt.Errorf("start hook: %w", err)
		}
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.runStopHooks()
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = ln

	// 启动HTTP服务
	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务启动",
			zap.String("service", s.name),
			zap.String("address", ln.Addr().String()),
		)
		if err := s.app.Listener(ln); err != nil {
			errCh <- err
		}
	}()

	// 执行就绪钩子
	for _, fn := range s.onReady {
		if err := fn(ctx, s); err != nil {
			_ = s.Shutdown()
			return fmt.Errorf("ready hook: %w", err)
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("收到退出信号，正在关闭服务...")
	case err := <-errCh:
		s.runStopHooks()
		return fmt.Errorf("server error: %w", err)
	}

	return s.Shutdown()
}

// Shutdown 优雅关闭服务，先停止接收请求再执行停止钩子
func (s *Service) Shutdown() error {
	var shutdownErr error
	if s.app != nil {
		if err := s.app.ShutdownWithTimeout(s.shutdownTimeout); err != nil {
			logger.Error("关闭HTTP服务失败", zap.Error(err))
			shutdownErr = err
		}
	}

	s.runStopHooks()

	logger.Info("服务已关闭", zap.String("service", s.name))
	return shutdownErr
}

// runStopHooks 逆序执行停止钩子，错误只记录
func (s *Service) runStopHooks() {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	for i := len(s.onStop) - 1; i >= 0; i-- {
		if err := s.onStop[i](ctx, s); err != nil {
			logger.Error("停止钩子执行失败", zap.Error(err))
		}
	}
}
