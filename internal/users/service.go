// Package users edits user attributes and role assignments.
package users

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-rbac/internal/directory"
	"github.com/odyssey-erp/odyssey-rbac/internal/invalidation"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	FindUserByID(ctx context.Context, id int64) (directory.User, error)
	FindRolesForUser(ctx context.Context, userID int64) ([]int64, error)
	UpdateUser(ctx context.Context, user directory.User) (directory.User, error)
}

// Invalidator evicts cached permissions after user edits.
type Invalidator interface {
	OnUserRecordChanged(ctx context.Context, userID int64) invalidation.Notification
	OnUserRolesChanged(ctx context.Context, userID int64, roleIDs []int64) (invalidation.Notification, error)
}

// Service handles user business logic.
type Service struct {
	repo        RepositoryPort
	invalidator Invalidator
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, invalidator Invalidator) *Service {
	return &Service{repo: repo, invalidator: invalidator}
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (directory.User, invalidation.Notification, error) {
	user, err := s.find(ctx, id)
	if err != nil {
		return directory.User{}, invalidation.Notification{}, err
	}
	if in.Nickname != nil {
		user.Nickname = *in.Nickname
	}
	if in.Email != nil {
		user.Email = *in.Email
	}
	if in.Status != nil {
		user.Status = *in.Status
	}
	return s.save(ctx, user)
}

// ToggleStatus enables a disabled user or disables an enabled one. Credentials already issued
// to a disabled user stay valid until they expire.
func (s *Service) ToggleStatus(ctx context.Context, id int64) (directory.User, invalidation.Notification, error) {
	user, err := s.find(ctx, id)
	if err != nil {
		return directory.User{}, invalidation.Notification{}, err
	}
	user.Status = user.Status.Toggle()
	return s.save(ctx, user)
}

// RoleIDs returns the roles assigned to a user.
func (s *Service) RoleIDs(ctx context.Context, id int64) ([]int64, error) {
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}
	ids, err := s.repo.FindRolesForUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// SaveRoles replaces the roles assigned to a user.
func (s *Service) SaveRoles(ctx context.Context, id int64, roleIDs []int64) (invalidation.Notification, error) {
	if _, err := s.find(ctx, id); err != nil {
		return invalidation.Notification{}, err
	}
	return s.invalidator.OnUserRolesChanged(ctx, id, directory.UniqueIDs(roleIDs))
}

func (s *Service) find(ctx context.Context, id int64) (directory.User, error) {
	user, err := s.repo.FindUserByID(ctx, id)
	if err != nil {
		return directory.User{}, fmt.Errorf("users: user %d: %w", id, err)
	}
	return user, nil
}

func (s *Service) save(ctx context.Context, user directory.User) (directory.User, invalidation.Notification, error) {
	updated, err := s.repo.UpdateUser(ctx, user)
	if err != nil {
		return directory.User{}, invalidation.Notification{}, err
	}
	return updated, s.invalidator.OnUserRecordChanged(ctx, updated.ID), nil
}
