package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// 预定义错误
var (
	ErrNotFound          = New(http.StatusNotFound, "资源不存在")
	ErrBadRequest        = New(http.StatusBadRequest, "请求错误")
	ErrInternalServer    = New(http.StatusInternalServerError, "服务器内部错误")
	ErrValidation        = New(http.StatusBadRequest, "参数校验失败")
	ErrInvalidCredential = New(http.StatusUnauthorized, "用户名或密码错误")

	// 认证
	ErrInvalidToken         = New(http.StatusUnauthorized, "令牌无效")
	ErrExpiredToken         = New(http.StatusUnauthorized, "令牌已过期")
	ErrExpiredRefreshToken  = New(http.StatusUnauthorized, "刷新令牌已过期，请重新登录")
	ErrInvalidRefreshWindow = New(http.StatusBadRequest, "刷新令牌有效期无效")
	ErrPrincipalNotFound    = New(http.StatusUnauthorized, "用户不存在")
	ErrPrincipalLocked      = New(http.StatusUnauthorized, "用户已被锁定，请联系系统管理员")
	ErrUnauthenticated      = New(http.StatusUnauthorized, "未认证")

	// 授权
	ErrUnauthorized = New(http.StatusForbidden, "权限不足")

	ErrTooManyRequests    = New(http.StatusTooManyRequests, "请求过于频繁，请稍后重试")
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "服务暂不可用，请稍后重试")
)

// AppError 应用错误，Code 与 HTTP 状态码一致
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 解包错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 同码同消息视为同一类错误
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New 创建新错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(err error, code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithCause 以预定义错误为模板附带原因
func WithCause(kind *AppError, err error) *AppError {
	return &AppError{
		Code:    kind.Code,
		Message: kind.Message,
		Err:     err,
	}
}

// Is 检查是否为指定错误
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 类型转换错误
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// GetCode 获取错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// NotFound 创建未找到错误
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Message: fmt.Sprintf("%s不存在", resource),
	}
}

// BadRequest 创建请求错误
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Message: message,
	}
}

// Unauthenticated 创建未认证错误
func Unauthenticated(message string) *AppError {
	if message == "" {
		return ErrUnauthenticated
	}
	return &AppError{
		Code:    http.StatusUnauthorized,
		Message: message,
	}
}

// Forbidden 创建禁止访问错误，自定义消息仍归属 ErrUnauthorized
func Forbidden(message string) *AppError {
	if message == "" {
		return ErrUnauthorized
	}
	return &AppError{
		Code:    http.StatusForbidden,
		Message: message,
		Err:     ErrUnauthorized,
	}
}

// Validation 创建验证错误
func Validation(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Message: message,
	}
}

// Internal 创建内部错误
func Internal(err error) *AppError {
	return WithCause(ErrInternalServer, err)
}

// Unavailable 存储或下游故障
func Unavailable(err error) *AppError {
	return WithCause(ErrServiceUnavailable, err)
}
