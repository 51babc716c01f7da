package directory

import "time"

// Status toggles users, roles, permissions and menus on or off.
type Status int

const (
	StatusDisabled Status = 0
	StatusEnabled  Status = 1
)

// Toggle returns the opposite status.
func (s Status) Toggle() Status {
	if s == StatusEnabled {
		return StatusDisabled
	}
	return StatusEnabled
}

// PermissionKind classifies a permission node.
type PermissionKind string

const (
	KindMenu   PermissionKind = "menu"
	KindButton PermissionKind = "button"
	KindAPI    PermissionKind = "api"
)

// Valid reports whether k is a known kind.
func (k PermissionKind) Valid() bool {
	switch k {
	case KindMenu, KindButton, KindAPI:
		return true
	}
	return false
}

// User is an account that holds roles.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Nickname     string
	Email        string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Enabled reports whether the user may authenticate.
func (u User) Enabled() bool { return u.Status == StatusEnabled }

// Role groups permissions and menus.
type Role struct {
	ID          int64
	Code        string
	Name        string
	Description string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is a node of the permission tree. ParentID and Sort are nullable.
type Permission struct {
	ID          int64
	ParentID    *int64
	Code        string
	Name        string
	Kind        PermissionKind
	Path        string
	Method      *string
	Sort        *int
	Status      Status
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p Permission) NodeID() int64        { return p.ID }
func (p Permission) NodeParentID() *int64 { return p.ParentID }
func (p Permission) NodeSort() *int       { return p.Sort }

// Menu is a node of the navigation tree.
type Menu struct {
	ID        int64
	ParentID  *int64
	Code      string
	Name      string
	Path      string
	Component string
	Icon      string
	Sort      *int
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m Menu) NodeID() int64        { return m.ID }
func (m Menu) NodeParentID() *int64 { return m.ParentID }
func (m Menu) NodeSort() *int       { return m.Sort }

// UserRole links a user to a role.
type UserRole struct {
	UserID int64
	RoleID int64
}

// RolePermission links a role to a permission.
type RolePermission struct {
	RoleID       int64
	PermissionID int64
}

// RoleMenu links a role to a menu.
type RoleMenu struct {
	RoleID int64
	MenuID int64
}
