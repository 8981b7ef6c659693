package user

import (
	"time"

	"github.com/goadmin/services/admin/internal/model"
)

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword     string `json:"oldPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=64"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

// RolesRequest 分配角色请求
type RolesRequest struct {
	RoleIDs []uint `json:"roleIds" validate:"unique,dive,gt=0"`
}

// StatusRequest 修改状态请求
type StatusRequest struct {
	Status *int8 `json:"status" validate:"required,oneof=0 1"`
}

// FlagRequest 开关类请求
type FlagRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// Info 当前用户信息
type Info struct {
	ID            uint       `json:"id"`
	UUID          string     `json:"uuid"`
	Username      string     `json:"username"`
	Nickname      string     `json:"nickname"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	Avatar        string     `json:"avatar"`
	Status        int8       `json:"status"`
	IsSuperuser   bool       `json:"isSuperuser"`
	IsStaff       bool       `json:"isStaff"`
	IsMultiLogin  bool       `json:"isMultiLogin"`
	JoinTime      time.Time  `json:"joinTime"`
	LastLoginTime *time.Time `json:"lastLoginTime"`
	DeptID        *uint      `json:"deptId"`
	Roles         []RoleInfo `json:"roles"`
}

// RoleInfo 角色摘要
type RoleInfo struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Status int8   `json:"status"`
}

// NewInfo 构建用户信息
func NewInfo(u *model.User) *Info {
	info := &Info{
		ID:            u.ID,
		UUID:          u.UUID,
		Username:      u.Username,
		Nickname:      u.Nickname,
		Email:         u.Email,
		Phone:         u.Phone,
		Avatar:        u.Avatar,
		Status:        u.Status,
		IsSuperuser:   u.IsSuperuser,
		IsStaff:       u.IsStaff,
		IsMultiLogin:  u.IsMultiLogin,
		JoinTime:      u.JoinTime,
		LastLoginTime: u.LastLoginTime,
		DeptID:        u.DeptID,
		Roles:         make([]RoleInfo, 0, len(u.Roles)),
	}
	for _, r := range u.Roles {
		info.Roles = append(info.Roles, RoleInfo{ID: r.ID, Name: r.Name, Status: r.Status})
	}
	return info
}
