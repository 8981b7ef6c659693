package lifecycle

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Builder 服务构建器 - 链式调用创建服务
type Builder struct {
	svc *Service
}

// New 创建服务构建器
func New(name string) *Builder {
	return &Builder{
		svc: &Service{
			name:            name,
			shutdownTimeout: 10 * time.Second,
		},
	}
}

// Addr 设置监听地址
func (b *Builder) Addr(addr string) *Builder {
	b.svc.addr = addr
	return b
}

// App 设置Fiber应用
func (b *Builder) App(app *fiber.App) *Builder {
	b.svc.app = app
	return b
}

// ShutdownTimeout 设置优雅关闭超时
func (b *Builder) ShutdownTimeout(d time.Duration) *Builder {
	if d > 0 {
		b.svc.shutdownTimeout = d
	}
	return b
}

// OnStart 添加启动钩子，监听之前执行，出错时不启动
func (b *Builder) OnStart(fn Hook) *Builder {
	b.svc.onStart = append(b.svc.onStart, fn)
	return b
}

// OnReady 添加就绪钩子，开始监听之后执行
func (b *Builder) OnReady(fn Hook) *Builder {
	b.svc.onReady = append(b.svc.onReady, fn)
	return b
}

// OnStop 添加停止钩子，按注册的逆序执行
func (b *Builder) OnStop(fn Hook) *Builder {
	b.svc.onStop = append(b.svc.onStop, fn)
	return b
}

// Build 构建服务
func (b *Builder) Build() *Service {
	return b.svc
}
