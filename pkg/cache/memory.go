package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// item 缓存项
type item struct {
	value      string
	expiration int64 // Unix纳秒，0表示永不过期
}

// expired 检查是否过期
func (it *item) expired(now int64) bool {
	return it.expiration != 0 && now > it.expiration
}

// MemoryStore 进程内存储，单实例部署或测试使用
type MemoryStore struct {
	items map[string]*item
	mu    sync.RWMutex

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithCleanup(5 * time.Minute)
}

// NewMemoryStoreWithCleanup 创建带定期清理的内存存储
func NewMemoryStoreWithCleanup(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		items:           make(map[string]*item),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go s.cleanupLoop()
	}

	return s
}

// cleanupLoop 定期清理过期项
func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.deleteExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

// Get 获取值
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	it, ok := s.items[key]
	s.mu.RUnlock()

	if !ok || it.expired(time.Now().UnixNano()) {
		return "", ErrNotFound
	}
	return it.value, nil
}

// Set 写入值
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var exp int64
	if ttl > 0 {
		exp = time.Now().Add(ttl).UnixNano()
	}

	s.mu.Lock()
	s.items[key] = &item{value: value, expiration: exp}
	s.mu.Unlock()
	return nil
}

// Delete 删除 key
func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	for _, k := range keys {
		delete(s.items, k)
	}
	s.mu.Unlock()
	return nil
}

// GetDel 原子读取并删除
func (s *MemoryStore) GetDel(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		return "", ErrNotFound
	}
	delete(s.items, key)
	if it.expired(time.Now().UnixNano()) {
		return "", ErrNotFound
	}
	return it.value, nil
}

// DeletePrefix 删除指定前缀的所有 key
func (s *MemoryStore) DeletePrefix(ctx context.Context, prefix string, exclude ...string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	skip := excludeSet(exclude)

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for key := range s.items {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if _, ok := skip[key]; ok {
			continue
		}
		delete(s.items, key)
		count++
	}
	return count, nil
}

// ScanPrefix 列出前缀下未过期的 key，按字典序
func (s *MemoryStore) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now().UnixNano()

	s.mu.RLock()
	keys := make([]string, 0)
	for key, it := range s.items {
		if strings.HasPrefix(key, prefix) && !it.expired(now) {
			keys = append(keys, key)
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

// deleteExpired 删除所有过期项
func (s *MemoryStore) deleteExpired() {
	now := time.Now().UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, it := range s.items {
		if it.expired(now) {
			delete(s.items, key)
		}
	}
}

// Close 停止清理协程
func (s *MemoryStore) Close() {
	s.closeOnce.Do(func() {
		if s.cleanupInterval > 0 {
			close(s.stopCleanup)
		}
	})
}
