package auth

import (
	"time"

	"github.com/goadmin/services/admin/internal/user"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Password string `json:"password" validate:"required,max=64"`
}

// RefreshRequest 刷新令牌请求
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
	// AccessToken 旧访问令牌，可为空
	AccessToken string `json:"accessToken"`
}

// TokenResponse 令牌对
type TokenResponse struct {
	AccessToken   string    `json:"accessToken"`
	AccessExpire  time.Time `json:"accessExpire"`
	RefreshToken  string    `json:"refreshToken"`
	RefreshExpire time.Time `json:"refreshExpire"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	TokenResponse
	User *user.Info `json:"user"`
}
