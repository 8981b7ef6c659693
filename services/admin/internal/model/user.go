package model

import (
	"time"

	"github.com/goadmin/pkg/dal"
)

// 状态
const (
	StatusDisabled int8 = 0
	StatusEnabled  int8 = 1
)

// User 用户模型
type User struct {
	dal.Model
	UUID          string     `gorm:"size:64;uniqueIndex;not null" json:"uuid"`
	Username      string     `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Nickname      string     `gorm:"size:50" json:"nickname"`
	Password      string     `gorm:"size:255;not null" json:"-"`
	Email         string     `gorm:"size:100" json:"email"`
	Phone         string     `gorm:"size:20" json:"phone"`
	Avatar        string     `gorm:"size:255" json:"avatar"`
	Status        int8       `json:"status"` // 1:正常 0:锁定
	IsSuperuser   bool       `json:"isSuperuser"`
	IsStaff       bool       `json:"isStaff"`
	IsMultiLogin  bool       `json:"isMultiLogin"`
	JoinTime      time.Time  `json:"joinTime"`
	LastLoginTime *time.Time `json:"lastLoginTime"`
	DeptID        *uint      `gorm:"index" json:"deptId"`
	Dept          *Dept      `gorm:"foreignKey:DeptID" json:"dept,omitempty"`
	Roles         []Role     `gorm:"many2many:sys_user_role;" json:"roles,omitempty"`
}

// TableName 表名
func (User) TableName() string {
	return "sys_user"
}

// Dept 部门模型
type Dept struct {
	dal.Model
	Name     string `gorm:"size:50;not null" json:"name"`
	Level    int    `json:"level"`
	Sort     int    `json:"sort"`
	Leader   string `gorm:"size:20" json:"leader"`
	Phone    string `gorm:"size:20" json:"phone"`
	Email    string `gorm:"size:100" json:"email"`
	Status   int8   `json:"status"`
	DelFlag  bool   `json:"delFlag"`
	ParentID *uint  `gorm:"index" json:"parentId"`
}

// TableName 表名
func (Dept) TableName() string {
	return "sys_dept"
}
