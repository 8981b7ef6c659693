package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound key 不存在或已过期
var ErrNotFound = errors.New("cache: key not found")

// Store 令牌与权限缓存的键值存储
//
// 单个 Set/Delete/GetDel 必须是原子的；DeletePrefix 是扫描后删除，
// 与并发写入之间只保证最终一致。
type Store interface {
	// Get 获取值，不存在时返回 ErrNotFound
	Get(ctx context.Context, key string) (string, error)
	// Set 写入值，ttl <= 0 表示永不过期
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete 删除 key，不存在的 key 被忽略
	Delete(ctx context.Context, keys ...string) error
	// GetDel 原子读取并删除，不存在时返回 ErrNotFound
	GetDel(ctx context.Context, key string) (string, error)
	// DeletePrefix 删除前缀下的所有 key，exclude 中的 key 保留
	DeletePrefix(ctx context.Context, prefix string, exclude ...string) (int, error)
	// ScanPrefix 列出前缀下的所有 key
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
}

// excludeSet 构建排除集合
func excludeSet(keys []string) map[string]struct{} {
	if len(keys) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}
