package cache

import (
	"context"
	"errors"
	"time"
)

// FiberStorage 将 Store 适配为 fiber.Storage，供限流等 fiber 中间件共享计数
//
// fiber.Storage 不带 context，每次调用使用独立超时。
type FiberStorage struct {
	store   Store
	prefix  string
	timeout time.Duration
}

// NewFiberStorage prefix 用于隔离键空间，Reset 只清理该前缀
func NewFiberStorage(store Store, prefix string, timeout time.Duration) *FiberStorage {
	return &FiberStorage{store: store, prefix: prefix + ":", timeout: timeout}
}

func (s *FiberStorage) ctx() (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.Background(), func() {}
	}
	return context.WithTimeout(context.Background(), s.timeout)
}

// Get 不存在时返回 nil, nil
func (s *FiberStorage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	v, err := s.store.Get(ctx, s.prefix+key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}

// Set 空 key 或空值忽略
func (s *FiberStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	return s.store.Set(ctx, s.prefix+key, string(val), exp)
}

// Delete 删除单个 key
func (s *FiberStorage) Delete(key string) error {
	if key == "" {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	return s.store.Delete(ctx, s.prefix+key)
}

// Reset 清空前缀下的所有 key
func (s *FiberStorage) Reset() error {
	ctx, cancel := s.ctx()
	defer cancel()
	_, err := s.store.DeletePrefix(ctx, s.prefix)
	return err
}

// Close 底层 Store 由调用方管理
func (s *FiberStorage) Close() error {
	return nil
}
