package rbac

import (
	"github.com/odyssey-erp/odyssey-rbac/internal/directory"
)

// Profile is the resolved view of a user used by the profile endpoint and the login response.
type Profile struct {
	Username    string     `json:"username"`
	Nickname    string     `json:"nickname"`
	RoleIDs     []int64    `json:"roleIds"`
	Permissions []string   `json:"permissions"`
	Menus       []MenuNode `json:"menus"`
}

// PermissionNode is a permission with its ordered children.
type PermissionNode struct {
	ID          int64            `json:"id"`
	ParentID    *int64           `json:"parentId,omitempty"`
	Code        string           `json:"code"`
	Name        string           `json:"name"`
	Kind        string           `json:"kind"`
	Path        string           `json:"path,omitempty"`
	Method      *string          `json:"method,omitempty"`
	Sort        *int             `json:"sort,omitempty"`
	Status      int              `json:"status"`
	Description string           `json:"description,omitempty"`
	Children    []PermissionNode `json:"children"`
}

// MenuNode is a menu with its ordered children.
type MenuNode struct {
	ID        int64      `json:"id"`
	ParentID  *int64     `json:"parentId,omitempty"`
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	Path      string     `json:"path,omitempty"`
	Component string     `json:"component,omitempty"`
	Icon      string     `json:"icon,omitempty"`
	Sort      *int       `json:"sort,omitempty"`
	Status    int        `json:"status"`
	Children  []MenuNode `json:"children"`
}

// TreeFilter narrows a tree listing. A nil Status keeps every status.
type TreeFilter struct {
	Status  *directory.Status
	Keyword string
}

func permissionNode(p directory.Permission, children []PermissionNode) PermissionNode {
	return PermissionNode{
		ID:          p.ID,
		ParentID:    p.ParentID,
		Code:        p.Code,
		Name:        p.Name,
		Kind:        string(p.Kind),
		Path:        p.Path,
		Method:      p.Method,
		Sort:        p.Sort,
		Status:      int(p.Status),
		Description: p.Description,
		Children:    children,
	}
}

func menuNode(m directory.Menu, children []MenuNode) MenuNode {
	return MenuNode{
		ID:        m.ID,
		ParentID:  m.ParentID,
		Code:      m.Code,
		Name:      m.Name,
		Path:      m.Path,
		Component: m.Component,
		Icon:      m.Icon,
		Sort:      m.Sort,
		Status:    int(m.Status),
		Children:  children,
	}
}
