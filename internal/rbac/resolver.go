package rbac

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-rbac/internal/directory"
	"github.com/odyssey-erp/odyssey-rbac/internal/tree"
)

// DirectoryPort is the slice of the directory store the resolver reads.
type DirectoryPort interface {
	FindUserByID(ctx context.Context, id int64) (directory.User, error)
	FindUserByUsername(ctx context.Context, username string) (directory.User, error)
	FindRolesForUser(ctx context.Context, userID int64) ([]int64, error)
	FindRolePermissions(ctx context.Context, roleIDs []int64) ([]directory.RolePermission, error)
	FindPermissionsByIDs(ctx context.Context, ids []int64) ([]directory.Permission, error)
	FindRoleMenus(ctx context.Context, roleIDs []int64) ([]directory.RoleMenu, error)
	FindMenusByIDs(ctx context.Context, ids []int64) ([]directory.Menu, error)
	ListPermissions(ctx context.Context) ([]directory.Permission, error)
	ListMenus(ctx context.Context) ([]directory.Menu, error)
}

// CodeSource supplies permission codes for a user id during profile resolution.
type CodeSource func(ctx context.Context, userID int64) ([]string, error)

// Resolver computes effective permission codes, profiles and tree listings from the directory.
// It holds no state of its own; caching is layered on top by callers.
type Resolver struct {
	store DirectoryPort
	codes CodeSource
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCodeSource makes ResolveProfile take its permission codes from src (typically the
// codes cache) instead of resolving them inline.
func WithCodeSource(src CodeSource) ResolverOption {
	return func(r *Resolver) { r.codes = src }
}

// NewResolver constructs a Resolver.
func NewResolver(store DirectoryPort, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store}
	for _, opt := range opts {
		opt(r)
	}
	if r.codes == nil {
		r.codes = r.ResolvePermissionCodes
	}
	return r
}

// ResolvePermissionCodes returns the distinct permission codes reachable from the user's roles,
// parents before children. A user without roles or grants gets an empty, non-nil slice.
func (r *Resolver) ResolvePermissionCodes(ctx context.Context, userID int64) ([]string, error) {
	if _, err := r.store.FindUserByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("rbac: user %d: %w", userID, err)
	}
	roleIDs, err := r.store.FindRolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.codesForRoles(ctx, roleIDs)
}

// ResolveProfile builds the profile of username: role ids, permission codes and the menu forest.
func (r *Resolver) ResolveProfile(ctx context.Context, username string) (Profile, error) {
	user, err := r.store.FindUserByUsername(ctx, username)
	if err != nil {
		return Profile{}, fmt.Errorf("rbac: user %q: %w", username, err)
	}
	roleIDs, err := r.store.FindRolesForUser(ctx, user.ID)
	if err != nil {
		return Profile{}, err
	}
	codes, err := r.codes(ctx, user.ID)
	if err != nil {
		return Profile{}, err
	}
	menus, err := r.menusForRoles(ctx, roleIDs)
	if err != nil {
		return Profile{}, err
	}
	if roleIDs == nil {
		roleIDs = []int64{}
	}
	return Profile{
		Username:    user.Username,
		Nickname:    user.Nickname,
		RoleIDs:     roleIDs,
		Permissions: codes,
		Menus:       menus,
	}, nil
}

// PermissionTree lists every permission as a forest after applying filter.
func (r *Resolver) PermissionTree(ctx context.Context, filter TreeFilter) ([]PermissionNode, error) {
	perms, err := r.store.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	kw := tree.NewKeyword(filter.Keyword)
	perms = tree.Filter(perms, func(p directory.Permission) bool {
		if filter.Status != nil && p.Status != *filter.Status {
			return false
		}
		return kw.Match(p.Name, p.Code, p.Path)
	})
	return tree.Nest(tree.Build(perms), permissionNode), nil
}

// MenuTree lists every menu as a forest after applying filter.
func (r *Resolver) MenuTree(ctx context.Context, filter TreeFilter) ([]MenuNode, error) {
	menus, err := r.store.ListMenus(ctx)
	if err != nil {
		return nil, err
	}
	kw := tree.NewKeyword(filter.Keyword)
	menus = tree.Filter(menus, func(m directory.Menu) bool {
		if filter.Status != nil && m.Status != *filter.Status {
			return false
		}
		return kw.Match(m.Name, m.Code, m.Path)
	})
	return tree.Nest(tree.Build(menus), menuNode), nil
}

func (r *Resolver) codesForRoles(ctx context.Context, roleIDs []int64) ([]string, error) {
	codes := []string{}
	if len(roleIDs) == 0 {
		return codes, nil
	}
	links, err := r.store.FindRolePermissions(ctx, roleIDs)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(links))
	for _, link := range links {
		ids = append(ids, link.PermissionID)
	}
	ids = directory.UniqueIDs(ids)
	if len(ids) == 0 {
		return codes, nil
	}
	perms, err := r.store.FindPermissionsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(perms))
	for _, p := range tree.Build(tree.RestrictTo(perms, ids)).Flatten() {
		if _, dup := seen[p.Code]; dup {
			continue
		}
		seen[p.Code] = struct{}{}
		codes = append(codes, p.Code)
	}
	return codes, nil
}

func (r *Resolver) menusForRoles(ctx context.Context, roleIDs []int64) ([]MenuNode, error) {
	if len(roleIDs) == 0 {
		return []MenuNode{}, nil
	}
	links, err := r.store.FindRoleMenus(ctx, roleIDs)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(links))
	for _, link := range links {
		ids = append(ids, link.MenuID)
	}
	ids = directory.UniqueIDs(ids)
	if len(ids) == 0 {
		return []MenuNode{}, nil
	}
	menus, err := r.store.FindMenusByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return tree.Nest(tree.Build(tree.RestrictTo(menus, ids)), menuNode), nil
}
