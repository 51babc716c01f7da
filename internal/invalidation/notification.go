package invalidation

import (
	"fmt"
	"strconv"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// ChangeType classifies a mutation that invalidated cached permissions.
type ChangeType string

const (
	RolePermissionsChanged ChangeType = "ROLE_PERMISSION_CHANGED"
	RoleMenusChanged       ChangeType = "ROLE_MENU_CHANGED"
	PermissionUpdated      ChangeType = "PERMISSION_UPDATED"
	MenuUpdated            ChangeType = "MENU_UPDATED"
	UserUpdated            ChangeType = "USER_UPDATED"
	UserRolesChanged       ChangeType = "USER_ROLES_CHANGED"
)

// Notification tells callers that credentials issued to the affected users carry a stale
// permission snapshot and should be refreshed. Credentials are never revoked server side.
type Notification struct {
	ChangeType      ChangeType `json:"changeType"`
	RoleID          *int64     `json:"roleId,omitempty"`
	PermissionID    *int64     `json:"permissionId,omitempty"`
	MenuID          *int64     `json:"menuId,omitempty"`
	UserID          *int64     `json:"userId,omitempty"`
	AffectedUserIDs []int64    `json:"affectedUserIds"`
	Message         string     `json:"message"`
	RequiresReauth  bool       `json:"requiresReauth"`
}

func newNotification(kind ChangeType, affected []int64) Notification {
	if affected == nil {
		affected = []int64{}
	}
	n := Notification{ChangeType: kind, AffectedUserIDs: affected, RequiresReauth: true}
	switch kind {
	case RolePermissionsChanged:
		n.Message = fmt.Sprintf("Role permissions changed, %d user(s) affected. Sign in again to load the latest permissions.", len(affected))
	case RoleMenusChanged:
		n.Message = fmt.Sprintf("Role menus changed, %d user(s) affected. Sign in again to load the latest menus.", len(affected))
	case PermissionUpdated:
		n.Message = "Permission updated. Sign in again to load the latest permissions."
	case MenuUpdated:
		n.Message = "Menu updated. Sign in again to load the latest menus."
	case UserUpdated, UserRolesChanged:
		n.Message = "User access changed. Sign in again to load the latest permissions."
	}
	return n
}

func (n Notification) auditLog() shared.AuditLog {
	entity, id := "", int64(0)
	switch {
	case n.RoleID != nil:
		entity, id = "role", *n.RoleID
	case n.PermissionID != nil:
		entity, id = "permission", *n.PermissionID
	case n.MenuID != nil:
		entity, id = "menu", *n.MenuID
	case n.UserID != nil:
		entity, id = "user", *n.UserID
	}
	return shared.AuditLog{
		Action:   string(n.ChangeType),
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"affectedUserIds": n.AffectedUserIDs},
	}
}

func idPtr(id int64) *int64 { return &id }
