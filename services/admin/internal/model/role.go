package model

import "github.com/goadmin/pkg/dal"

// 数据范围
const (
	DataScopeAll    int8 = 1
	DataScopeCustom int8 = 2
)

// 菜单类型
const (
	MenuTypeDirectory int8 = 0
	MenuTypeMenu      int8 = 1
	MenuTypeButton    int8 = 2
)

// Role 角色模型
type Role struct {
	dal.Model
	Name      string `gorm:"size:50;uniqueIndex;not null" json:"name"`
	DataScope int8   `json:"dataScope"` // 1:全部数据 2:自定义
	Status    int8   `json:"status"`
	Remark    string `gorm:"size:255" json:"remark"`
	Menus     []Menu `gorm:"many2many:sys_role_menu;" json:"menus,omitempty"`
}

// TableName 表名
func (Role) TableName() string {
	return "sys_role"
}

// Menu 菜单模型
type Menu struct {
	dal.Model
	Title     string `gorm:"size:50;not null" json:"title"`
	Name      string `gorm:"size:50" json:"name"`
	Level     int    `json:"level"`
	Sort      int    `json:"sort"`
	Icon      string `gorm:"size:100" json:"icon"`
	Path      string `gorm:"size:200" json:"path"`
	MenuType  int8   `json:"menuType"` // 0:目录 1:菜单 2:按钮
	Component string `gorm:"size:255" json:"component"`
	Perms     string `gorm:"size:255" json:"perms"` // 权限标识，多个以逗号分隔
	Status    int8   `json:"status"`
	Show      int8   `json:"show"`
	Cache     int8   `json:"cache"`
	Remark    string `gorm:"size:255" json:"remark"`
	ParentID  *uint  `gorm:"index" json:"parentId"`
}

// TableName 表名
func (Menu) TableName() string {
	return "sys_menu"
}

// All 全部模型，用于迁移
func All() []interface{} {
	return []interface{}{&Dept{}, &Menu{}, &Role{}, &User{}}
}
