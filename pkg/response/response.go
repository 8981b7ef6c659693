package response

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/goadmin/pkg/errors"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 响应消息定义
const (
	MsgSuccess = "请求成功"
)

// Success 成功响应
func Success(c *fiber.Ctx, data interface{}) error {
	return c.Status(http.StatusOK).JSON(Response{
		Code:    http.StatusOK,
		Message: MsgSuccess,
		Data:    data,
	})
}

// SuccessWithMessage 成功响应(带消息)
func SuccessWithMessage(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(http.StatusOK).JSON(Response{
		Code:    http.StatusOK,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应，HTTP 状态码与 code 一致
func Error(c *fiber.Ctx, code int, message string) error {
	if code == http.StatusUnauthorized {
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	}
	return c.Status(code).JSON(Response{
		Code:    code,
		Message: message,
	})
}

// Fail 按错误类型输出响应
func Fail(c *fiber.Ctx, err error) error {
	return Error(c, errors.GetCode(err), errors.GetMessage(err))
}
