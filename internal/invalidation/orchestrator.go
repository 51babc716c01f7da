// Package invalidation keeps the permission cache coherent with the directory. Association
// changes read the affected users before mutating, mutate inside one transaction and evict
// only afterwards. Eviction failures never fail the mutation; they are handed to a retry queue.
package invalidation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-rbac/internal/directory"
	"github.com/odyssey-erp/odyssey-rbac/internal/permcache"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// StorePort is the slice of the directory the orchestrator needs.
type StorePort interface {
	ExistsRole(ctx context.Context, roleID int64) (bool, error)
	FindUserByID(ctx context.Context, id int64) (directory.User, error)
	FindUsersByRole(ctx context.Context, roleID int64) ([]int64, error)
	FindRolesByPermission(ctx context.Context, permissionID int64) ([]int64, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	ReplaceRoleMenus(ctx context.Context, roleID int64, menuIDs []int64) error
	ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
}

// Evictor is a cache keyspace.
type Evictor interface {
	Name() string
	Evict(ctx context.Context, key string) error
	EvictAll(ctx context.Context) error
}

// RetryQueue defers evictions that failed.
type RetryQueue interface {
	EnqueueEviction(ctx context.Context, keyspace string, keys []string, all bool) error
}

// Auditor records completed mutations.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Orchestrator reacts to directory mutations by evicting cache entries.
type Orchestrator struct {
	store    StorePort
	codes    Evictor
	profiles Evictor
	retry    RetryQueue
	auditor  Auditor
	logger   *slog.Logger
}

// New constructs an Orchestrator. retry may be nil, in which case failed evictions are only logged.
func New(store StorePort, codes, profiles Evictor, retry RetryQueue, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: store, codes: codes, profiles: profiles, retry: retry, logger: logger}
}

// WithAuditor makes every emitted notification also land in the audit trail.
func (o *Orchestrator) WithAuditor(a Auditor) *Orchestrator {
	o.auditor = a
	return o
}

// OnRolePermissionsChanged replaces the permission set of a role and evicts the codes and
// profile entries of every user holding it.
func (o *Orchestrator) OnRolePermissionsChanged(ctx context.Context, roleID int64, permissionIDs []int64) (Notification, error) {
	affected, err := o.roleMembers(ctx, roleID)
	if err != nil {
		return Notification{}, err
	}
	targets := o.targetsFor(ctx, affected, true)
	if err := o.store.ReplaceRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return Notification{}, err
	}
	o.evict(ctx, targets)

	o.logger.Info("role permissions changed", slog.Int64("role_id", roleID), slog.Int("affected_users", len(affected)))
	n := newNotification(RolePermissionsChanged, affected)
	n.RoleID = idPtr(roleID)
	return o.emit(ctx, n), nil
}

// OnRoleMenusChanged replaces the menu set of a role. Menus only appear in profiles, so only
// profile entries are evicted.
func (o *Orchestrator) OnRoleMenusChanged(ctx context.Context, roleID int64, menuIDs []int64) (Notification, error) {
	affected, err := o.roleMembers(ctx, roleID)
	if err != nil {
		return Notification{}, err
	}
	targets := o.targetsFor(ctx, affected, false)
	if err := o.store.ReplaceRoleMenus(ctx, roleID, menuIDs); err != nil {
		return Notification{}, err
	}
	o.evict(ctx, targets)

	o.logger.Info("role menus changed", slog.Int64("role_id", roleID), slog.Int("affected_users", len(affected)))
	n := newNotification(RoleMenusChanged, affected)
	n.RoleID = idPtr(roleID)
	return o.emit(ctx, n), nil
}

// OnPermissionRecordChanged runs after a permission record was created, edited, toggled or
// deleted. The change can reorder or rename nodes inside any role's tree, so both keyspaces
// are cleared entirely.
func (o *Orchestrator) OnPermissionRecordChanged(ctx context.Context, permissionID int64) Notification {
	o.evictAll(ctx, o.profiles)
	o.evictAll(ctx, o.codes)

	n := newNotification(PermissionUpdated, o.permissionHolders(ctx, permissionID))
	n.PermissionID = idPtr(permissionID)
	o.logger.Info("permission record changed", slog.Int64("permission_id", permissionID), slog.Int("affected_users", len(n.AffectedUserIDs)))
	return o.emit(ctx, n)
}

// OnMenuRecordChanged runs after a menu record changed. Every profile is evicted.
func (o *Orchestrator) OnMenuRecordChanged(ctx context.Context, menuID int64) Notification {
	o.evictAll(ctx, o.profiles)

	o.logger.Info("menu record changed", slog.Int64("menu_id", menuID))
	n := newNotification(MenuUpdated, nil)
	n.MenuID = idPtr(menuID)
	return o.emit(ctx, n)
}

// OnUserRecordChanged runs after a user record changed (attributes or status).
func (o *Orchestrator) OnUserRecordChanged(ctx context.Context, userID int64) Notification {
	o.evict(ctx, o.targetsFor(ctx, []int64{userID}, true))

	n := newNotification(UserUpdated, []int64{userID})
	n.UserID = idPtr(userID)
	return o.emit(ctx, n)
}

// OnUserRolesChanged replaces the roles of a user and evicts that user.
func (o *Orchestrator) OnUserRolesChanged(ctx context.Context, userID int64, roleIDs []int64) (Notification, error) {
	targets := o.targetsFor(ctx, []int64{userID}, true)
	if err := o.store.ReplaceUserRoles(ctx, userID, roleIDs); err != nil {
		return Notification{}, err
	}
	o.evict(ctx, targets)

	o.logger.Info("user roles changed", slog.Int64("user_id", userID), slog.Int("roles", len(roleIDs)))
	n := newNotification(UserRolesChanged, []int64{userID})
	n.UserID = idPtr(userID)
	return o.emit(ctx, n), nil
}

// emit hands n to the auditor. Audit failures are logged and never fail the mutation.
func (o *Orchestrator) emit(ctx context.Context, n Notification) Notification {
	if o.auditor == nil {
		return n
	}
	entry := n.auditLog()
	if p := shared.PrincipalFromContext(ctx); p != nil {
		entry.Actor = p.Username
	}
	if err := o.auditor.Record(context.WithoutCancel(ctx), entry); err != nil {
		o.logger.Warn("audit record failed", slog.String("action", entry.Action), slog.Any("error", err))
	}
	return n
}

// roleMembers checks the role exists and returns its members as they are before the mutation.
func (o *Orchestrator) roleMembers(ctx context.Context, roleID int64) ([]int64, error) {
	ok, err := o.store.ExistsRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("invalidation: role %d: %w", roleID, shared.ErrNotFound)
	}
	return o.store.FindUsersByRole(ctx, roleID)
}

func (o *Orchestrator) permissionHolders(ctx context.Context, permissionID int64) []int64 {
	roleIDs, err := o.store.FindRolesByPermission(ctx, permissionID)
	if err != nil {
		o.logger.Warn("resolve permission holders", slog.Int64("permission_id", permissionID), slog.Any("error", err))
		return nil
	}
	var users []int64
	for _, roleID := range roleIDs {
		members, err := o.store.FindUsersByRole(ctx, roleID)
		if err != nil {
			o.logger.Warn("resolve permission holders", slog.Int64("role_id", roleID), slog.Any("error", err))
			continue
		}
		users = append(users, members...)
	}
	return directory.UniqueIDs(users)
}

// targets are the cache keys of a set of users. They are resolved before a mutation so that
// eviction can follow the commit without another directory round trip.
type targets struct {
	codeKeys    []string
	profileKeys []string
	profilesAll bool
}

// targetsFor collects the profile key of each user and, when withCodes is set, the codes key.
// A user whose username cannot be resolved forces a full profile eviction.
func (o *Orchestrator) targetsFor(ctx context.Context, userIDs []int64, withCodes bool) targets {
	var t targets
	for _, id := range userIDs {
		if withCodes {
			t.codeKeys = append(t.codeKeys, permcache.UserKey(id))
		}
		user, err := o.store.FindUserByID(ctx, id)
		if err != nil {
			o.logger.Warn("resolve username for eviction", slog.Int64("user_id", id), slog.Any("error", err))
			t.profilesAll = true
			continue
		}
		t.profileKeys = append(t.profileKeys, user.Username)
	}
	return t
}

func (o *Orchestrator) evict(ctx context.Context, t targets) {
	o.evictKeys(ctx, o.codes, t.codeKeys)
	if t.profilesAll {
		o.evictAll(ctx, o.profiles)
		return
	}
	o.evictKeys(ctx, o.profiles, t.profileKeys)
}

func (o *Orchestrator) evictKeys(ctx context.Context, ks Evictor, keys []string) {
	var failed []string
	for _, key := range keys {
		if err := ks.Evict(ctx, key); err != nil {
			o.logger.Error("cache eviction failed", slog.String("keyspace", ks.Name()), slog.String("key", key), slog.Any("error", err))
			failed = append(failed, key)
		}
	}
	if len(failed) > 0 {
		o.scheduleRetry(ctx, ks.Name(), failed, false)
	}
}

func (o *Orchestrator) evictAll(ctx context.Context, ks Evictor) {
	if err := ks.EvictAll(ctx); err != nil {
		o.logger.Error("cache eviction failed", slog.String("keyspace", ks.Name()), slog.Bool("all", true), slog.Any("error", err))
		o.scheduleRetry(ctx, ks.Name(), nil, true)
	}
}

func (o *Orchestrator) scheduleRetry(ctx context.Context, keyspace string, keys []string, all bool) {
	if o.retry == nil {
		return
	}
	if err := o.retry.EnqueueEviction(context.WithoutCancel(ctx), keyspace, keys, all); err != nil {
		o.logger.Error("enqueue eviction retry", slog.String("keyspace", keyspace), slog.Any("error", err))
	}
}
