package menu

import "github.com/goadmin/services/admin/internal/model"

// Request 新增或更新菜单请求
type Request struct {
	Title     string `json:"title" validate:"required,max=50"`
	Name      string `json:"name" validate:"max=50"`
	ParentID  *uint  `json:"parentId" validate:"omitempty,gt=0"`
	Sort      int    `json:"sort" validate:"gte=0"`
	Icon      string `json:"icon" validate:"max=100"`
	Path      string `json:"path" validate:"max=200"`
	MenuType  int8   `json:"menuType" validate:"oneof=0 1 2"`
	Component string `json:"component" validate:"max=255"`
	Perms     string `json:"perms" validate:"max=255"`
	Status    *int8  `json:"status" validate:"required,oneof=0 1"`
	Show      int8   `json:"show" validate:"oneof=0 1"`
	Cache     int8   `json:"cache" validate:"oneof=0 1"`
	Remark    string `json:"remark" validate:"max=255"`
}

// apply 写入模型
func (r *Request) apply(m *model.Menu) {
	m.Title = r.Title
	m.Name = r.Name
	m.ParentID = r.ParentID
	m.Sort = r.Sort
	m.Icon = r.Icon
	m.Path = r.Path
	m.MenuType = r.MenuType
	m.Component = r.Component
	m.Perms = r.Perms
	m.Status = *r.Status
	m.Show = r.Show
	m.Cache = r.Cache
	m.Remark = r.Remark
}
