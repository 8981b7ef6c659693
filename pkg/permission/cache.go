package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/goadmin/pkg/auth"
	"github.com/goadmin/pkg/cache"
	apperrors "github.com/goadmin/pkg/errors"
	"github.com/goadmin/pkg/logger"
)

// Sets 用户的启用与禁用权限标识
type Sets struct {
	Enabled  map[string]struct{}
	Disabled map[string]struct{}
}

// Forbids 标识是否被禁用菜单禁止
func (s *Sets) Forbids(tag string) bool {
	_, ok := s.Disabled[tag]
	return ok
}

// Grants 标识是否被启用菜单授予
func (s *Sets) Grants(tag string) bool {
	_, ok := s.Enabled[tag]
	return ok
}

// Flatten 汇总启用角色下的全部菜单权限标识
func Flatten(p *auth.Principal) *Sets {
	sets := &Sets{
		Enabled:  make(map[string]struct{}),
		Disabled: make(map[string]struct{}),
	}
	for _, role := range p.ActiveRoles() {
		for _, menu := range role.Menus {
			target := sets.Enabled
			if !menu.Active {
				target = sets.Disabled
			}
			for _, id := range menu.Identifiers() {
				target[id] = struct{}{}
			}
		}
	}
	return sets
}

// Invalidator 权限缓存失效入口，所有修改角色、菜单、用户角色的操作都必须调用
type Invalidator interface {
	InvalidateUser(ctx context.Context, uuid string) error
	InvalidateAll(ctx context.Context) error
}

// Cache 按用户缓存权限标识集合，无过期时间，依赖显式失效
//
// key: <prefix>:<uuid>:enable 与 <prefix>:<uuid>:disable，值为 JSON 数组。
type Cache struct {
	store   cache.Store
	prefix  string
	timeout time.Duration
	group   singleflight.Group
}

var _ Invalidator = (*Cache)(nil)

// NewCache 创建权限缓存
func NewCache(store cache.Store, prefix string, timeout time.Duration) *Cache {
	return &Cache{store: store, prefix: prefix, timeout: timeout}
}

func (c *Cache) enableKey(uuid string) string {
	return fmt.Sprintf("%s:%s:enable", c.prefix, uuid)
}

func (c *Cache) disableKey(uuid string) string {
	return fmt.Sprintf("%s:%s:disable", c.prefix, uuid)
}

func (c *Cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Get 读取缓存，未命中时根据 principal 计算并回写
func (c *Cache) Get(ctx context.Context, p *auth.Principal) (*Sets, error) {
	sets, err := c.read(ctx, p.UUID)
	if err == nil {
		return sets, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return nil, apperrors.Unavailable(err)
	}

	v, err, _ := c.group.Do(p.UUID, func() (interface{}, error) {
		sets := Flatten(p)
		c.write(ctx, p.UUID, sets)
		return sets, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Sets), nil
}

// read 两个 key 均存在才视为命中
func (c *Cache) read(ctx context.Context, uuid string) (*Sets, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	enabled, err := c.readSet(ctx, c.enableKey(uuid))
	if err != nil {
		return nil, err
	}
	disabled, err := c.readSet(ctx, c.disableKey(uuid))
	if err != nil {
		return nil, err
	}
	return &Sets{Enabled: enabled, Disabled: disabled}, nil
}

func (c *Cache) readSet(ctx context.Context, key string) (map[string]struct{}, error) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		// 损坏的缓存按未命中处理，随后被覆盖
		return nil, cache.ErrNotFound
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// write 回写失败只记录日志
func (c *Cache) write(ctx context.Context, uuid string, sets *Sets) {
	ctx, cancel := c.withTimeout(context.WithoutCancel(ctx))
	defer cancel()

	for key, set := range map[string]map[string]struct{}{
		c.enableKey(uuid):  sets.Enabled,
		c.disableKey(uuid): sets.Disabled,
	} {
		data, _ := json.Marshal(sortedKeys(set))
		if err := c.store.Set(ctx, key, string(data), 0); err != nil {
			logger.Warn("写入权限缓存失败", zap.String("key", key), zap.Error(err))
		}
	}
}

// InvalidateUser 删除单个用户的权限缓存，不存在时不报错
func (c *Cache) InvalidateUser(ctx context.Context, uuid string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if _, err := c.store.DeletePrefix(ctx, fmt.Sprintf("%s:%s:", c.prefix, uuid)); err != nil {
		return apperrors.Unavailable(err)
	}
	return nil
}

// InvalidateAll 删除全部用户的权限缓存
func (c *Cache) InvalidateAll(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if _, err := c.store.DeletePrefix(ctx, c.prefix+":"); err != nil {
		return apperrors.Unavailable(err)
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
