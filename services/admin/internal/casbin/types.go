package casbin

// PolicyRequest 权限规则：主体 + 路径 + 方法
type PolicyRequest struct {
	Sub    string `json:"sub" validate:"required,max=100"`
	Path   string `json:"path" validate:"required,max=255"`
	Method string `json:"method" validate:"required,oneof=GET POST PUT DELETE PATCH *"`
}

// UpdatePolicyRequest 替换权限规则
type UpdatePolicyRequest struct {
	Old PolicyRequest `json:"old" validate:"required"`
	New PolicyRequest `json:"new" validate:"required"`
}

// SubjectRequest 按主体删除
type SubjectRequest struct {
	Sub string `json:"sub" validate:"required,max=100"`
}

// GroupRequest 分组规则：用户UUID + 角色
type GroupRequest struct {
	UUID string `json:"uuid" validate:"required,uuid"`
	Role string `json:"role" validate:"required,max=100"`
}
