package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"github.com/goadmin/pkg/errors"
	"github.com/goadmin/pkg/logger"
)

// AuditEntry 操作日志
type AuditEntry struct {
	RequestID  string
	UserID     uint
	Username   string
	Module     string
	Action     string
	Method     string
	Path       string
	Permission string
	IP         string
	UserAgent  string
	Status     int
	Latency    time.Duration
	Err        string
}

// AuditSink 操作日志落地，实现方不应阻塞
type AuditSink interface {
	Record(ctx context.Context, entry *AuditEntry) error
}

// LoggerSink 写入应用日志
type LoggerSink struct{}

// Record 实现 AuditSink
func (LoggerSink) Record(_ context.Context, e *AuditEntry) error {
	logger.Named("audit").Info("operation",
		zap.String("request_id", e.RequestID),
		zap.Uint("user_id", e.UserID),
		zap.String("username", e.Username),
		zap.String("module", e.Module),
		zap.String("action", e.Action),
		zap.String("method", e.Method),
		zap.String("path", e.Path),
		zap.String("permission", e.Permission),
		zap.String("ip", e.IP),
		zap.Int("status", e.Status),
		zap.Duration("latency", e.Latency),
		zap.String("error", e.Err),
	)
	return nil
}

// OperationLog 操作日志中间件，写日志失败只记录，不影响响应；GET 请求不记录
func OperationLog(sink AuditSink, moduleName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodGet || c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		startTime := time.Now()
		err := c.Next()

		entry := &AuditEntry{
			RequestID: utils.CopyString(GetRequestID(c)),
			Module:    moduleName,
			Action:    getActionByMethod(c.Method()),
			Method:    utils.CopyString(c.Method()),
			Path:      utils.CopyString(c.Path()),
			IP:        utils.CopyString(c.IP()),
			UserAgent: utils.CopyString(c.Get(fiber.HeaderUserAgent)),
			Status:    c.Response().StatusCode(),
			Latency:   time.Since(startTime),
		}
		if tag, ok := c.Locals(LocalPermission).(string); ok {
			entry.Permission = tag
		}
		if p := GetPrincipal(c); p != nil {
			entry.UserID = p.ID
			entry.Username = p.Username
		}
		if err != nil {
			// 错误尚未经过 ErrorHandler，状态码以错误为准
			entry.Status = errors.GetCode(err)
			entry.Err = err.Error()
		}

		// fiber 会复用 Ctx，异步写入前已复制全部字段
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if recErr := sink.Record(ctx, entry); recErr != nil {
				logger.Warn("写入操作日志失败", zap.Error(recErr))
			}
		}()

		return err
	}
}

// getActionByMethod 根据HTTP方法获取操作类型
func getActionByMethod(method string) string {
	switch method {
	case fiber.MethodPost:
		return "新增"
	case fiber.MethodPut, fiber.MethodPatch:
		return "修改"
	case fiber.MethodDelete:
		return "删除"
	default:
		return "其他"
	}
}
