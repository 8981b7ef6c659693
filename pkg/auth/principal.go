package auth

import "strings"

// DataScope 角色数据权限范围
type DataScope int

const (
	// DataScopeAll 全部数据权限，跳过细粒度权限校验
	DataScopeAll DataScope = 1
	// DataScopeCustom 自定义数据权限
	DataScopeCustom DataScope = 2
)

// Menu 菜单授权视图
type Menu struct {
	ID       uint
	ParentID *uint
	// Perms 权限标识，可为空，多个以逗号分隔
	Perms  string
	Active bool
}

// Identifiers 拆分权限标识
func (m Menu) Identifiers() []string {
	if m.Perms == "" {
		return nil
	}
	parts := strings.Split(m.Perms, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Role 角色授权视图
type Role struct {
	ID        uint
	Name      string
	DataScope DataScope
	Active    bool
	Menus     []Menu
}

// Dept 部门授权视图
type Dept struct {
	ID      uint
	Active  bool
	Deleted bool
}

// Principal 单次请求内解析出的身份，每次请求从存储重建
type Principal struct {
	ID          uint
	UUID        string
	Username    string
	Active      bool
	IsSuperuser bool
	IsStaff     bool
	MultiLogin  bool
	Dept        *Dept
	Roles       []Role
}

// ActiveRoles 启用状态的角色
func (p *Principal) ActiveRoles() []Role {
	roles := make([]Role, 0, len(p.Roles))
	for _, r := range p.Roles {
		if r.Active {
			roles = append(roles, r)
		}
	}
	return roles
}

// Locked 用户、部门或全部角色被停用时返回 true
func (p *Principal) Locked() bool {
	if !p.Active {
		return true
	}
	if p.Dept != nil && (!p.Dept.Active || p.Dept.Deleted) {
		return true
	}
	return len(p.Roles) > 0 && len(p.ActiveRoles()) == 0
}
