package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/goadmin/pkg/config"
	apperrors "github.com/goadmin/pkg/errors"
	"github.com/goadmin/pkg/logger"
)

// DefaultModel 内置 RBAC 模型，路径支持 keyMatch/keyMatch3，动作支持 *
const DefaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (keyMatch(r.obj, p.obj) || keyMatch3(r.obj, p.obj)) && (r.act == p.act || p.act == "*")
`

// 规则类型
const (
	RuleTypePermission = "p"
	RuleTypeGrouping   = "g"
)

// RolePrefix 角色主体前缀
const RolePrefix = "role:"

var (
	ErrRuleExists   = apperrors.New(409, "策略已存在")
	ErrRuleNotFound = apperrors.New(404, "策略不存在")
)

// PolicyRule 持久化的策略规则，对应 sys_casbin_rule 一行
type PolicyRule struct {
	Type string `json:"ptype"`
	Sub  string `json:"sub"`
	Obj  string `json:"obj,omitempty"`
	Act  string `json:"act,omitempty"`
}

// RoleSubject 角色名转主体，已带前缀时原样返回
func RoleSubject(role string) string {
	if strings.HasPrefix(role, RolePrefix) {
		return role
	}
	return RolePrefix + role
}

// PolicySubject 权限规则主体：用户 UUID 原样保留，其余按角色名加前缀
//
// 分组规则的角色侧同样经过 RoleSubject，两条路径写入的角色主体因此一致。
func PolicySubject(sub string) string {
	if _, err := uuid.Parse(sub); err == nil {
		return sub
	}
	return RoleSubject(sub)
}

func policyRow(r PolicyRule) []string {
	return []string{PolicySubject(r.Sub), r.Obj, r.Act}
}

// ReloadNotifier 策略变更后通知其他节点
type ReloadNotifier interface {
	Notify(ctx context.Context) error
}

// PolicyEngine 策略引擎句柄
//
// 持久化表是唯一数据源，内存模型在启动、变更和收到其他节点通知时重建。
// casbin.Enforcer 本身不是并发安全的，所有访问都经过 mu。
type PolicyEngine struct {
	mu       sync.RWMutex
	enforcer *casbin.Enforcer
	notifier ReloadNotifier
}

// NewPolicyEngine 基于 gorm 适配器创建策略引擎
func NewPolicyEngine(db *gorm.DB, cfg *config.CasbinConfig) (*PolicyEngine, error) {
	adapter, err := gormadapter.NewAdapterByDBUseTableName(db, cfg.TablePrefix, cfg.TableName)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin adapter: %w", err)
	}

	var m model.Model
	if cfg.ModelPath != "" {
		m, err = model.NewModelFromFile(cfg.ModelPath)
	} else {
		m, err = model.NewModelFromString(DefaultModel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	enforcer.EnableAutoSave(true)

	return &PolicyEngine{enforcer: enforcer}, nil
}

// SetNotifier 设置跨节点通知
func (e *PolicyEngine) SetNotifier(n ReloadNotifier) {
	e.mu.Lock()
	e.notifier = n
	e.mu.Unlock()
}

// Enforce 权限检查
func (e *PolicyEngine) Enforce(sub, obj, act string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enforcer.Enforce(sub, obj, act)
}

// Reload 从持久化表重建内存模型
func (e *PolicyEngine) Reload() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enforcer.LoadPolicy(); err != nil {
		return fmt.Errorf("failed to load casbin policy: %w", err)
	}
	return nil
}

// Rules 当前全部规则
func (e *PolicyEngine) Rules() ([]PolicyRule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies, err := e.enforcer.GetPolicy()
	if err != nil {
		return nil, err
	}
	groups, err := e.enforcer.GetGroupingPolicy()
	if err != nil {
		return nil, err
	}

	rules := make([]PolicyRule, 0, len(policies)+len(groups))
	for _, p := range policies {
		rules = append(rules, toRule(RuleTypePermission, p))
	}
	for _, g := range groups {
		rules = append(rules, toRule(RuleTypeGrouping, g))
	}
	return rules, nil
}

// Policies 权限规则，sub 非空时按主体过滤
func (e *PolicyEngine) Policies(sub string) ([]PolicyRule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var (
		rows [][]string
		err  error
	)
	if sub == "" {
		rows, err = e.enforcer.GetPolicy()
	} else {
		rows, err = e.enforcer.GetFilteredPolicy(0, PolicySubject(sub))
	}
	if err != nil {
		return nil, err
	}
	rules := make([]PolicyRule, 0, len(rows))
	for _, r := range rows {
		rules = append(rules, toRule(RuleTypePermission, r))
	}
	return rules, nil
}

// Groups 分组规则，user 非空时按用户过滤
func (e *PolicyEngine) Groups(user string) ([]PolicyRule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var (
		rows [][]string
		err  error
	)
	if user == "" {
		rows, err = e.enforcer.GetGroupingPolicy()
	} else {
		rows, err = e.enforcer.GetFilteredGroupingPolicy(0, user)
	}
	if err != nil {
		return nil, err
	}
	rules := make([]PolicyRule, 0, len(rows))
	for _, r := range rows {
		rules = append(rules, toRule(RuleTypeGrouping, r))
	}
	return rules, nil
}

// AddRule 添加权限规则
func (e *PolicyEngine) AddRule(ctx context.Context, sub, obj, act string) error {
	return e.mutate(ctx, func(en *casbin.Enforcer) (bool, error) {
		return en.AddPolicy(PolicySubject(sub), obj, act)
	}, ErrRuleExists)
}

// AddRules 批量添加权限规则，任一已存在则整体失败
func (e *PolicyEngine) AddRules(ctx context.Context, rules []PolicyRule) error {
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, policyRow(r))
	}
	return e.mutate(ctx, func(en *casbin.Enforcer) (bool, error) {
		return en.AddPolicies(rows)
	}, ErrRuleExists)
}

// UpdateRule 替换权限规则
func (e *PolicyEngine) UpdateRule(ctx context.Context, old, updated PolicyRule) error {
	return e.mutate(ctx, func(en *casbin.Enforcer) (bool, error) {
		return en.UpdatePolicy(policyRow(old), policyRow(updated))
	}, ErrRuleNotFound)
}

// RemoveRule 删除权限规则
func (e *PolicyEngine) RemoveRule(ctx context.Context, sub, obj, act string) error {
	return e.mutate(ctx, func(en *casbin.Enforcer) (bool, error) {
		return en.RemovePolicy(PolicySubject(sub), obj, act)
	}, ErrRuleNotFound)
}

// RemoveRules 批量删除权限规则
func (e *PolicyEngine) RemoveRules(ctx context.Context, rules []PolicyRule) error {
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, policyRow(r))
	}
	return e.mutate(ctx, func(en *casbin.Enforcer) (bool, error) {
		return en.RemovePolicies(rows)
	}, ErrRuleNotFound)
}

// RemoveSubject 删除主体的全部权限规则，无规则时不报错
func (e *PolicyEngine) RemoveSubject(ctx context.Context, sub string) error {
	return e.mutate(ctx, func(en *casbin.Enforcer) (bool, error) {
		return en.RemoveFilteredPolicy(0, PolicySubject(sub))
	}, nil)
}

// AddGroup 将用户加入角色
func (e *PolicyEngine) AddGroup(ctx context.Context, user, role string) error {
	return e.mutate(ctx, func(en *casbin.Enforcer) (bool, error) {
		return en.AddGroupingPolicy(user, RoleSubject(role))
	}, ErrRuleExists)
}

// AddGroups 批量添加分组
func (e *PolicyEngine) AddGroups(ctx context.Context, rules []PolicyRule) error {
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, []string{r.Sub, RoleSubject(r.Obj)})
	}
	return e.mutate(ctx, func(en *casbin.Enforcer) (bool, error) {
		return en.AddGroupingPolicies(rows)
	}, ErrRuleExists)
}

// RemoveGroup 将用户移出角色
func (e *PolicyEngine) RemoveGroup(ctx context.Context, user, role string) error {
	return e.mutate(ctx, func(en *casbin.Enforcer) (bool, error) {
		return en.RemoveGroupingPolicy(user, RoleSubject(role))
	}, ErrRuleNotFound)
}

// RemoveGroups 批量删除分组
func (e *PolicyEngine) RemoveGroups(ctx context.Context, rules []PolicyRule) error {
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, []string{r.Sub, RoleSubject(r.Obj)})
	}
	return e.mutate(ctx, func(en *casbin.Enforcer) (bool, error) {
		return en.RemoveGroupingPolicies(rows)
	}, ErrRuleNotFound)
}

// RemoveUserGroups 删除用户的全部分组，无分组时不报错
func (e *PolicyEngine) RemoveUserGroups(ctx context.Context, user string) error {
	return e.mutate(ctx, func(en *casbin.Enforcer) (bool, error) {
		return en.RemoveFilteredGroupingPolicy(0, user)
	}, nil)
}

// mutate 在写锁内执行变更；未生效时返回 noop，nil 表示未生效也视为成功
func (e *PolicyEngine) mutate(ctx context.Context, fn func(*casbin.Enforcer) (bool, error), noop *apperrors.AppError) error {
	e.mu.Lock()
	ok, err := fn(e.enforcer)
	notifier := e.notifier
	e.mu.Unlock()

	if err != nil {
		return apperrors.Unavailable(err)
	}
	if !ok {
		if noop != nil {
			return noop
		}
		return nil
	}

	if notifier != nil {
		if err := notifier.Notify(ctx); err != nil {
			// 其他节点依赖定时重载兜底
			logger.Warn("策略变更通知失败", zap.Error(err))
		}
	}
	return nil
}

func toRule(ptype string, row []string) PolicyRule {
	r := PolicyRule{Type: ptype}
	if len(row) > 0 {
		r.Sub = row[0]
	}
	if len(row) > 1 {
		r.Obj = row[1]
	}
	if len(row) > 2 {
		r.Act = row[2]
	}
	return r
}
