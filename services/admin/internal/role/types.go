package role

// UpdateRequest 更新角色请求
type UpdateRequest struct {
	Name      string `json:"name" validate:"required,max=50"`
	DataScope int8   `json:"dataScope" validate:"omitempty,oneof=1 2"`
	Status    *int8  `json:"status" validate:"required,oneof=0 1"`
	Remark    string `json:"remark" validate:"max=255"`
}

// MenusRequest 分配菜单请求
type MenusRequest struct {
	MenuIDs []uint `json:"menuIds" validate:"unique,dive,gt=0"`
}
