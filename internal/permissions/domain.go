package permissions

import (
	"time"

	"github.com/odyssey-erp/odyssey-rbac/internal/directory"
)

// CreateInput describes a new permission node.
type CreateInput struct {
	ParentID    *int64                   `json:"parentId" validate:"omitempty,gt=0"`
	Code        string                   `json:"code" validate:"required,max=100"`
	Name        string                   `json:"name" validate:"required,max=100"`
	Kind        directory.PermissionKind `json:"kind" validate:"required,oneof=menu button api"`
	Path        string                   `json:"path" validate:"max=255"`
	Method      *string                  `json:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Sort        *int                     `json:"sort"`
	Status      *directory.Status        `json:"status" validate:"omitempty,oneof=0 1"`
	Description string                   `json:"description" validate:"max=500"`
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	ParentID    *int64                    `json:"parentId" validate:"omitempty,gt=0"`
	Code        *string                   `json:"code" validate:"omitempty,min=1,max=100"`
	Name        *string                   `json:"name" validate:"omitempty,min=1,max=100"`
	Kind        *directory.PermissionKind `json:"kind" validate:"omitempty,oneof=menu button api"`
	Path        *string                   `json:"path" validate:"omitempty,max=255"`
	Method      *string                   `json:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Sort        *int                      `json:"sort"`
	Status      *directory.Status         `json:"status" validate:"omitempty,oneof=0 1"`
	Description *string                   `json:"description" validate:"omitempty,max=500"`
}

// MenuUpdateInput is a partial menu update.
type MenuUpdateInput struct {
	ParentID  *int64            `json:"parentId" validate:"omitempty,gt=0"`
	Name      *string           `json:"name" validate:"omitempty,min=1,max=100"`
	Path      *string           `json:"path" validate:"omitempty,max=255"`
	Component *string           `json:"component" validate:"omitempty,max=255"`
	Icon      *string           `json:"icon" validate:"omitempty,max=100"`
	Sort      *int              `json:"sort"`
	Status    *directory.Status `json:"status" validate:"omitempty,oneof=0 1"`
}

// PermissionView is the JSON shape of a permission record.
type PermissionView struct {
	ID          int64                    `json:"id"`
	ParentID    *int64                   `json:"parentId"`
	Code        string                   `json:"code"`
	Name        string                   `json:"name"`
	Kind        directory.PermissionKind `json:"kind"`
	Path        string                   `json:"path,omitempty"`
	Method      *string                  `json:"method,omitempty"`
	Sort        *int                     `json:"sort"`
	Status      directory.Status         `json:"status"`
	Description string                   `json:"description,omitempty"`
	UpdatedAt   time.Time                `json:"updatedAt"`
}

// MenuView is the JSON shape of a menu record.
type MenuView struct {
	ID        int64            `json:"id"`
	ParentID  *int64           `json:"parentId"`
	Code      string           `json:"code"`
	Name      string           `json:"name"`
	Path      string           `json:"path,omitempty"`
	Component string           `json:"component,omitempty"`
	Icon      string           `json:"icon,omitempty"`
	Sort      *int             `json:"sort"`
	Status    directory.Status `json:"status"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func toPermissionView(p directory.Permission) PermissionView {
	return PermissionView{
		ID:          p.ID,
		ParentID:    p.ParentID,
		Code:        p.Code,
		Name:        p.Name,
		Kind:        p.Kind,
		Path:        p.Path,
		Method:      p.Method,
		Sort:        p.Sort,
		Status:      p.Status,
		Description: p.Description,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toMenuView(m directory.Menu) MenuView {
	return MenuView{
		ID:        m.ID,
		ParentID:  m.ParentID,
		Code:      m.Code,
		Name:      m.Name,
		Path:      m.Path,
		Component: m.Component,
		Icon:      m.Icon,
		Sort:      m.Sort,
		Status:    m.Status,
		UpdatedAt: m.UpdatedAt,
	}
}
