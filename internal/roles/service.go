// Package roles manages the permission and menu grants of roles.
package roles

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-rbac/internal/directory"
	"github.com/odyssey-erp/odyssey-rbac/internal/invalidation"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// RepositoryPort defines data access methods for role grants.
type RepositoryPort interface {
	ExistsRole(ctx context.Context, roleID int64) (bool, error)
	FindRolePermissions(ctx context.Context, roleIDs []int64) ([]directory.RolePermission, error)
	FindRoleMenus(ctx context.Context, roleIDs []int64) ([]directory.RoleMenu, error)
}

// Invalidator replaces grants and evicts the affected users.
type Invalidator interface {
	OnRolePermissionsChanged(ctx context.Context, roleID int64, permissionIDs []int64) (invalidation.Notification, error)
	OnRoleMenusChanged(ctx context.Context, roleID int64, menuIDs []int64) (invalidation.Notification, error)
}

// Service handles role grant business logic.
type Service struct {
	repo        RepositoryPort
	invalidator Invalidator
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, invalidator Invalidator) *Service {
	return &Service{repo: repo, invalidator: invalidator}
}

// PermissionIDs returns the ids of the permissions granted to a role.
func (s *Service) PermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	if err := s.ensureRole(ctx, roleID); err != nil {
		return nil, err
	}
	links, err := s.repo.FindRolePermissions(ctx, []int64{roleID})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.PermissionID)
	}
	return ids, nil
}

// MenuIDs returns the ids of the menus granted to a role.
func (s *Service) MenuIDs(ctx context.Context, roleID int64) ([]int64, error) {
	if err := s.ensureRole(ctx, roleID); err != nil {
		return nil, err
	}
	links, err := s.repo.FindRoleMenus(ctx, []int64{roleID})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.MenuID)
	}
	return ids, nil
}

// SavePermissions replaces the permission set of a role.
func (s *Service) SavePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (invalidation.Notification, error) {
	return s.invalidator.OnRolePermissionsChanged(ctx, roleID, directory.UniqueIDs(permissionIDs))
}

// SaveMenus replaces the menu set of a role.
func (s *Service) SaveMenus(ctx context.Context, roleID int64, menuIDs []int64) (invalidation.Notification, error) {
	return s.invalidator.OnRoleMenusChanged(ctx, roleID, directory.UniqueIDs(menuIDs))
}

func (s *Service) ensureRole(ctx context.Context, roleID int64) error {
	ok, err := s.repo.ExistsRole(ctx, roleID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("roles: role %d: %w", roleID, shared.ErrNotFound)
	}
	return nil
}
