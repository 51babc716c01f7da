// Package permissions edits permission and menu records. Every successful edit clears the
// permission cache through the invalidation orchestrator.
package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-rbac/internal/directory"
	"github.com/odyssey-erp/odyssey-rbac/internal/invalidation"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// StorePort defines the directory access the service needs.
type StorePort interface {
	FindPermissionByID(ctx context.Context, id int64) (directory.Permission, error)
	FindPermissionsByParent(ctx context.Context, parentID int64) ([]directory.Permission, error)
	FindRolesByPermission(ctx context.Context, permissionID int64) ([]int64, error)
	ExistsPermissionWithCode(ctx context.Context, code string) (bool, error)
	CreatePermission(ctx context.Context, perm directory.Permission) (directory.Permission, error)
	UpdatePermission(ctx context.Context, perm directory.Permission) (directory.Permission, error)
	DeletePermission(ctx context.Context, id int64) error
	FindMenuByID(ctx context.Context, id int64) (directory.Menu, error)
	UpdateMenu(ctx context.Context, menu directory.Menu) (directory.Menu, error)
}

// Invalidator reacts to record edits.
type Invalidator interface {
	OnPermissionRecordChanged(ctx context.Context, permissionID int64) invalidation.Notification
	OnMenuRecordChanged(ctx context.Context, menuID int64) invalidation.Notification
}

// Service handles permission and menu record edits.
type Service struct {
	store       StorePort
	invalidator Invalidator
	logger      *slog.Logger
}

// NewService builds Service instance.
func NewService(store StorePort, invalidator Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, invalidator: invalidator, logger: logger}
}

// Create inserts a permission. Codes are unique.
func (s *Service) Create(ctx context.Context, in CreateInput) (directory.Permission, invalidation.Notification, error) {
	code := strings.TrimSpace(in.Code)
	name := strings.TrimSpace(in.Name)
	if code == "" || name == "" {
		return directory.Permission{}, invalidation.Notification{}, fmt.Errorf("permissions: code and name required: %w", shared.ErrInvalidArgument)
	}
	if err := s.ensureCodeFree(ctx, code); err != nil {
		return directory.Permission{}, invalidation.Notification{}, err
	}
	if in.ParentID != nil {
		if _, err := s.store.FindPermissionByID(ctx, *in.ParentID); err != nil {
			return directory.Permission{}, invalidation.Notification{}, fmt.Errorf("permissions: parent %d: %w", *in.ParentID, err)
		}
	}
	perm := directory.Permission{
		ParentID:    in.ParentID,
		Code:        code,
		Name:        name,
		Kind:        in.Kind,
		Path:        in.Path,
		Method:      in.Method,
		Sort:        in.Sort,
		Status:      directory.StatusEnabled,
		Description: in.Description,
	}
	if perm.Sort == nil {
		zero := 0
		perm.Sort = &zero
	}
	if in.Status != nil {
		perm.Status = *in.Status
	}
	created, err := s.store.CreatePermission(ctx, perm)
	if err != nil {
		return directory.Permission{}, invalidation.Notification{}, err
	}
	s.logger.Info("permission created", slog.Int64("permission_id", created.ID), slog.String("code", created.Code))
	return created, s.invalidator.OnPermissionRecordChanged(ctx, created.ID), nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (directory.Permission, invalidation.Notification, error) {
	perm, err := s.store.FindPermissionByID(ctx, id)
	if err != nil {
		return directory.Permission{}, invalidation.Notification{}, fmt.Errorf("permissions: permission %d: %w", id, err)
	}
	if in.Code != nil {
		code := strings.TrimSpace(*in.Code)
		if code != perm.Code {
			if err := s.ensureCodeFree(ctx, code); err != nil {
				return directory.Permission{}, invalidation.Notification{}, err
			}
		}
		perm.Code = code
	}
	if in.ParentID != nil {
		if *in.ParentID == id {
			return directory.Permission{}, invalidation.Notification{}, fmt.Errorf("permissions: permission %d cannot be its own parent: %w", id, shared.ErrInvalidArgument)
		}
		perm.ParentID = in.ParentID
	}
	if in.Name != nil {
		perm.Name = strings.TrimSpace(*in.Name)
	}
	if in.Kind != nil {
		perm.Kind = *in.Kind
	}
	if in.Path != nil {
		perm.Path = *in.Path
	}
	if in.Method != nil {
		perm.Method = in.Method
	}
	if in.Sort != nil {
		perm.Sort = in.Sort
	}
	if in.Status != nil {
		perm.Status = *in.Status
	}
	if in.Description != nil {
		perm.Description = *in.Description
	}
	updated, err := s.store.UpdatePermission(ctx, perm)
	if err != nil {
		return directory.Permission{}, invalidation.Notification{}, err
	}
	return updated, s.invalidator.OnPermissionRecordChanged(ctx, id), nil
}

// Delete removes a permission that no role references and that has no children. Both checks
// run before anything is deleted.
func (s *Service) Delete(ctx context.Context, id int64) (invalidation.Notification, error) {
	if _, err := s.store.FindPermissionByID(ctx, id); err != nil {
		return invalidation.Notification{}, fmt.Errorf("permissions: permission %d: %w", id, err)
	}
	roles, err := s.store.FindRolesByPermission(ctx, id)
	if err != nil {
		return invalidation.Notification{}, err
	}
	if len(roles) > 0 {
		return invalidation.Notification{}, fmt.Errorf("permission is used by %d role(s): %w", len(roles), shared.ErrConflict)
	}
	children, err := s.store.FindPermissionsByParent(ctx, id)
	if err != nil {
		return invalidation.Notification{}, err
	}
	if len(children) > 0 {
		return invalidation.Notification{}, fmt.Errorf("permission has %d child permission(s): %w", len(children), shared.ErrConflict)
	}
	if err := s.store.DeletePermission(ctx, id); err != nil {
		return invalidation.Notification{}, err
	}
	s.logger.Info("permission deleted", slog.Int64("permission_id", id))
	return s.invalidator.OnPermissionRecordChanged(ctx, id), nil
}

// ToggleStatus flips a permission between enabled and disabled.
func (s *Service) ToggleStatus(ctx context.Context, id int64) (directory.Permission, invalidation.Notification, error) {
	perm, err := s.store.FindPermissionByID(ctx, id)
	if err != nil {
		return directory.Permission{}, invalidation.Notification{}, fmt.Errorf("permissions: permission %d: %w", id, err)
	}
	perm.Status = perm.Status.Toggle()
	updated, err := s.store.UpdatePermission(ctx, perm)
	if err != nil {
		return directory.Permission{}, invalidation.Notification{}, err
	}
	return updated, s.invalidator.OnPermissionRecordChanged(ctx, id), nil
}

// UpdateMenu applies a partial menu update.
func (s *Service) UpdateMenu(ctx context.Context, id int64, in MenuUpdateInput) (directory.Menu, invalidation.Notification, error) {
	menu, err := s.store.FindMenuByID(ctx, id)
	if err != nil {
		return directory.Menu{}, invalidation.Notification{}, fmt.Errorf("permissions: menu %d: %w", id, err)
	}
	if in.ParentID != nil {
		if *in.ParentID == id {
			return directory.Menu{}, invalidation.Notification{}, fmt.Errorf("permissions: menu %d cannot be its own parent: %w", id, shared.ErrInvalidArgument)
		}
		menu.ParentID = in.ParentID
	}
	if in.Name != nil {
		menu.Name = strings.TrimSpace(*in.Name)
	}
	if in.Path != nil {
		menu.Path = *in.Path
	}
	if in.Component != nil {
		menu.Component = *in.Component
	}
	if in.Icon != nil {
		menu.Icon = *in.Icon
	}
	if in.Sort != nil {
		menu.Sort = in.Sort
	}
	if in.Status != nil {
		menu.Status = *in.Status
	}
	updated, err := s.store.UpdateMenu(ctx, menu)
	if err != nil {
		return directory.Menu{}, invalidation.Notification{}, err
	}
	return updated, s.invalidator.OnMenuRecordChanged(ctx, id), nil
}

// ToggleMenuStatus flips a menu between enabled and disabled.
func (s *Service) ToggleMenuStatus(ctx context.Context, id int64) (directory.Menu, invalidation.Notification, error) {
	menu, err := s.store.FindMenuByID(ctx, id)
	if err != nil {
		return directory.Menu{}, invalidation.Notification{}, fmt.Errorf("permissions: menu %d: %w", id, err)
	}
	menu.Status = menu.Status.Toggle()
	updated, err := s.store.UpdateMenu(ctx, menu)
	if err != nil {
		return directory.Menu{}, invalidation.Notification{}, err
	}
	return updated, s.invalidator.OnMenuRecordChanged(ctx, id), nil
}

func (s *Service) ensureCodeFree(ctx context.Context, code string) error {
	taken, err := s.store.ExistsPermissionWithCode(ctx, code)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("permission code %q already exists: %w", code, shared.ErrConflict)
	}
	return nil
}
