// Package directory holds the users, roles, permissions and menus of the RBAC graph
// together with the three association relations between them.
package directory

import "context"

// Store is the source of truth consumed by the resolver, the invalidation orchestrator and
// the mutation services. Lookups of a missing record return shared.ErrNotFound; uniqueness
// violations return shared.ErrConflict. Replace* operations are atomic.
type Store interface {
	FindUserByID(ctx context.Context, id int64) (User, error)
	FindUserByUsername(ctx context.Context, username string) (User, error)
	FindRolesForUser(ctx context.Context, userID int64) ([]int64, error)
	FindUsersByRole(ctx context.Context, roleID int64) ([]int64, error)
	ExistsRole(ctx context.Context, roleID int64) (bool, error)
	UpdateUser(ctx context.Context, user User) (User, error)
	ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	FindPermissionByID(ctx context.Context, id int64) (Permission, error)
	FindPermissionsByIDs(ctx context.Context, ids []int64) ([]Permission, error)
	FindPermissionsByParent(ctx context.Context, parentID int64) ([]Permission, error)
	ExistsPermissionWithCode(ctx context.Context, code string) (bool, error)
	CreatePermission(ctx context.Context, perm Permission) (Permission, error)
	UpdatePermission(ctx context.Context, perm Permission) (Permission, error)
	DeletePermission(ctx context.Context, id int64) error

	FindRolePermissions(ctx context.Context, roleIDs []int64) ([]RolePermission, error)
	FindRolesByPermission(ctx context.Context, permissionID int64) ([]int64, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error

	ListMenus(ctx context.Context) ([]Menu, error)
	FindMenuByID(ctx context.Context, id int64) (Menu, error)
	FindMenusByIDs(ctx context.Context, ids []int64) ([]Menu, error)
	UpdateMenu(ctx context.Context, menu Menu) (Menu, error)

	FindRoleMenus(ctx context.Context, roleIDs []int64) ([]RoleMenu, error)
	ReplaceRoleMenus(ctx context.Context, roleID int64, menuIDs []int64) error
}

// UniqueIDs returns ids without duplicates, preserving first occurrence order.
func UniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
