package router

import (
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/goadmin/pkg/auth"
	"github.com/goadmin/pkg/errors"
	"github.com/goadmin/pkg/middleware"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator 共享的结构体校验器
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// BaseController 控制器基类
// 提供请求绑定、参数解析和当前用户获取
type BaseController struct{}

// Bind 解析请求体并校验
func (BaseController) Bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return errors.BadRequest("请求参数格式错误")
	}
	return ValidateStruct(dst)
}

// ValidateStruct 校验结构体，返回首个字段错误
func ValidateStruct(dst any) error {
	if err := Validator().Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return errors.Validation(fe.Field() + " 校验失败: " + fe.Tag())
		}
		return errors.Validation(err.Error())
	}
	return nil
}

// ParamID 解析路径中的ID参数
func (BaseController) ParamID(c *fiber.Ctx, name string) (uint, error) {
	return ParseID(c.Params(name))
}

// ParseID 解析单个正整数ID
func ParseID(s string) (uint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.BadRequest("ID不能为空")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v == 0 {
		return 0, errors.BadRequest("ID格式错误")
	}
	return uint(v), nil
}

// Principal 当前用户，路由已要求登录时不为 nil
func (BaseController) Principal(c *fiber.Ctx) (*auth.Principal, error) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		return nil, errors.ErrUnauthenticated
	}
	return p, nil
}
