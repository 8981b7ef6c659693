package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/goadmin/pkg/cache"
	"github.com/goadmin/pkg/config"
	apperrors "github.com/goadmin/pkg/errors"
	"github.com/goadmin/pkg/logger"
)

// TokenPair 一次签发的访问令牌与刷新令牌
type TokenPair struct {
	AccessToken   string    `json:"accessToken"`
	AccessExpire  time.Time `json:"accessTokenExpireTime"`
	RefreshToken  string    `json:"refreshToken"`
	RefreshExpire time.Time `json:"refreshTokenExpireTime"`
}

// UserID 解析 subject 中的用户ID
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.ErrInvalidToken
	}
	return uint(id), nil
}

// TokenService 签发、校验、轮换令牌，并在存储中跟踪有效令牌
//
// 访问令牌存于 <accessPrefix>:<sub>:<token>，刷新令牌存于 <refreshPrefix>:<sub>:<token>，
// 值为令牌本身，TTL 与令牌有效期一致。
type TokenService struct {
	codec         *TokenCodec
	store         cache.Store
	accessTTL     time.Duration
	refreshTTL    time.Duration
	accessPrefix  string
	refreshPrefix string
	timeout       time.Duration
	now           func() time.Time
}

// NewTokenService 创建令牌服务
func NewTokenService(codec *TokenCodec, store cache.Store, cfg *config.TokenConfig) *TokenService {
	return &TokenService{
		codec:         codec,
		store:         store,
		accessTTL:     cfg.Expire,
		refreshTTL:    cfg.RefreshExpire,
		accessPrefix:  cfg.AccessPrefix,
		refreshPrefix: cfg.RefreshPrefix,
		timeout:       cfg.StoreTimeout,
		now:           time.Now,
	}
}

func (s *TokenService) accessNS(sub uint) string {
	return fmt.Sprintf("%s:%d:", s.accessPrefix, sub)
}

func (s *TokenService) refreshNS(sub uint) string {
	return fmt.Sprintf("%s:%d:", s.refreshPrefix, sub)
}

func (s *TokenService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// IssueAccessToken 签发访问令牌；禁止多端登录时先清除该用户已有的访问令牌
func (s *TokenService) IssueAccessToken(ctx context.Context, sub uint, multiLogin bool) (string, time.Time, error) {
	expire := s.now().Add(s.accessTTL)
	token, err := s.codec.Encode(strconv.FormatUint(uint64(sub), 10), KindAccess, expire)
	if err != nil {
		return "", time.Time{}, apperrors.Internal(err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if !multiLogin {
		if _, err := s.store.DeletePrefix(ctx, s.accessNS(sub)); err != nil {
			return "", time.Time{}, apperrors.Unavailable(err)
		}
	}
	if err := s.store.Set(ctx, s.accessNS(sub)+token, token, s.accessTTL); err != nil {
		return "", time.Time{}, apperrors.Unavailable(err)
	}
	return token, expire, nil
}

// IssueRefreshToken 签发刷新令牌
//
// anchor 非空时有效期为 anchor + 刷新窗口，anchor 已过去则返回 ErrInvalidRefreshWindow。
func (s *TokenService) IssueRefreshToken(ctx context.Context, sub uint, multiLogin bool, anchor *time.Time) (string, time.Time, error) {
	now := s.now()
	expire := now.Add(s.refreshTTL)
	if anchor != nil {
		if anchor.Before(now) {
			return "", time.Time{}, apperrors.ErrInvalidRefreshWindow
		}
		expire = anchor.Add(s.refreshTTL)
	}

	token, err := s.codec.Encode(strconv.FormatUint(uint64(sub), 10), KindRefresh, expire)
	if err != nil {
		return "", time.Time{}, apperrors.Internal(err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if !multiLogin {
		if _, err := s.store.DeletePrefix(ctx, s.refreshNS(sub)); err != nil {
			return "", time.Time{}, apperrors.Unavailable(err)
		}
	}
	if err := s.store.Set(ctx, s.refreshNS(sub)+token, token, expire.Sub(now)); err != nil {
		return "", time.Time{}, apperrors.Unavailable(err)
	}
	return token, expire, nil
}

// IssuePair 登录时签发一对令牌
func (s *TokenService) IssuePair(ctx context.Context, sub uint, multiLogin bool) (*TokenPair, error) {
	access, accessExpire, err := s.IssueAccessToken(ctx, sub, multiLogin)
	if err != nil {
		return nil, err
	}
	refresh, refreshExpire, err := s.IssueRefreshToken(ctx, sub, multiLogin, nil)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:   access,
		AccessExpire:  accessExpire,
		RefreshToken:  refresh,
		RefreshExpire: refreshExpire,
	}, nil
}

// Rotate 用刷新令牌换取新令牌对，旧的访问令牌与刷新令牌随之失效
//
// 刷新令牌通过 GetDel 取出，并发轮换时只有一方成功；之后签发失败会放回原刷新令牌，
// 客户端可在存储恢复后重试。
func (s *TokenService) Rotate(ctx context.Context, sub uint, oldAccess, oldRefresh string, multiLogin bool) (*TokenPair, error) {
	claims, err := s.codec.Decode(oldRefresh)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrExpiredToken) {
			return nil, apperrors.WithCause(apperrors.ErrExpiredRefreshToken, err)
		}
		return nil, err
	}
	if claims.Kind != KindRefresh {
		return nil, apperrors.ErrInvalidToken
	}
	if id, err := claims.UserID(); err != nil || id != sub {
		return nil, apperrors.ErrInvalidToken
	}

	tctx, cancel := s.withTimeout(ctx)
	stored, err := s.store.GetDel(tctx, s.refreshNS(sub)+oldRefresh)
	cancel()
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return nil, apperrors.ErrExpiredRefreshToken
	case err != nil:
		return nil, apperrors.Unavailable(err)
	case stored != oldRefresh:
		return nil, apperrors.ErrExpiredRefreshToken
	}

	access, accessExpire, err := s.IssueAccessToken(ctx, sub, multiLogin)
	if err != nil {
		s.restoreRefresh(ctx, sub, oldRefresh, claims, "")
		return nil, err
	}
	refresh, refreshExpire, err := s.IssueRefreshToken(ctx, sub, multiLogin, &accessExpire)
	if err != nil {
		s.restoreRefresh(ctx, sub, oldRefresh, claims, access)
		return nil, err
	}

	if oldAccess != "" {
		tctx, cancel := s.withTimeout(ctx)
		defer cancel()
		if err := s.store.Delete(tctx, s.accessNS(sub)+oldAccess); err != nil {
			return nil, apperrors.Unavailable(err)
		}
	}

	return &TokenPair{
		AccessToken:   access,
		AccessExpire:  accessExpire,
		RefreshToken:  refresh,
		RefreshExpire: refreshExpire,
	}, nil
}

// restoreRefresh 放回已取出的刷新令牌并撤销本次已签发的访问令牌，尽力而为
func (s *TokenService) restoreRefresh(ctx context.Context, sub uint, refresh string, claims *Claims, issued string) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if issued != "" {
		if err := s.store.Delete(ctx, s.accessNS(sub)+issued); err != nil {
			logger.Warn("撤销访问令牌失败", zap.Uint("user_id", sub), zap.Error(err))
		}
	}
	if claims.ExpiresAt == nil {
		return
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.store.Set(ctx, s.refreshNS(sub)+refresh, refresh, ttl); err != nil {
		logger.Warn("恢复刷新令牌失败", zap.Uint("user_id", sub), zap.Error(err))
	}
}

// Decode 校验令牌并返回用户ID
func (s *TokenService) Decode(token string) (uint, error) {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return 0, err
	}
	return claims.UserID()
}

// Authenticate 校验访问令牌，并确认它仍在存储中（未被注销或轮换）
func (s *TokenService) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return nil, err
	}
	if claims.Kind != KindAccess {
		return nil, apperrors.ErrInvalidToken
	}
	sub, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stored, err := s.store.Get(ctx, s.accessNS(sub)+token)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return nil, apperrors.ErrExpiredToken
	case err != nil:
		return nil, apperrors.Unavailable(err)
	case stored != token:
		return nil, apperrors.ErrExpiredToken
	}
	return claims, nil
}

// Revoke 注销单个访问令牌
func (s *TokenService) Revoke(ctx context.Context, sub uint, token string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.store.Delete(ctx, s.accessNS(sub)+token); err != nil {
		return apperrors.Unavailable(err)
	}
	return nil
}

// RevokeAll 注销用户的全部访问令牌与刷新令牌，keepAccess 非空时保留该访问令牌
func (s *TokenService) RevokeAll(ctx context.Context, sub uint, keepAccess string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var exclude []string
	if keepAccess != "" {
		exclude = append(exclude, s.accessNS(sub)+keepAccess)
	}
	if _, err := s.store.DeletePrefix(ctx, s.accessNS(sub), exclude...); err != nil {
		return apperrors.Unavailable(err)
	}
	if _, err := s.store.DeletePrefix(ctx, s.refreshNS(sub)); err != nil {
		return apperrors.Unavailable(err)
	}
	return nil
}

// ActiveSessions 当前有效的访问令牌数量
func (s *TokenService) ActiveSessions(ctx context.Context, sub uint) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	keys, err := s.store.ScanPrefix(ctx, s.accessNS(sub))
	if err != nil {
		return 0, apperrors.Unavailable(err)
	}
	return len(keys), nil
}
