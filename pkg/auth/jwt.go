package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/goadmin/pkg/errors"
)

// 令牌种类
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims JWT声明
type Claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// TokenCodec 负责签名与校验，不涉及存储
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	issuer string
}

// NewTokenCodec 创建编解码器，algorithm 取 HS256/HS384/HS512
func NewTokenCodec(secret, algorithm, issuer string) (*TokenCodec, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is empty")
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported token algorithm %q", algorithm)
	}
	return &TokenCodec{
		secret: []byte(secret),
		method: method,
		issuer: issuer,
	}, nil
}

// Encode 签发令牌
func (c *TokenCodec) Encode(subject, kind string, expire time.Time) (string, error) {
	now := time.Now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expire),
			// 同一秒内签发的令牌也保持唯一
			ID: uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
}

// Decode 校验签名与过期时间
func (c *TokenCodec) Decode(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{c.method.Alg()}), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.WithCause(apperrors.ErrExpiredToken, err)
		}
		return nil, apperrors.WithCause(apperrors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}
