package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const (
	userColumns       = `id, username, password_hash, nickname, email, status, created_at, updated_at`
	permissionColumns = `id, parent_id, code, name, kind, path, method, sort, status, description, created_at, updated_at`
	menuColumns       = `id, parent_id, code, name, path, component, icon, sort, status, created_at, updated_at`
)

// Repository implements Store on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// FindUserByID fetches a user by id.
func (r *Repository) FindUserByID(ctx context.Context, id int64) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM sys_user WHERE id = $1`, id))
}

// FindUserByUsername fetches a user by username.
func (r *Repository) FindUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM sys_user WHERE username = $1`, username))
}

// FindRolesForUser returns the role ids held by a user.
func (r *Repository) FindRolesForUser(ctx context.Context, userID int64) ([]int64, error) {
	return r.queryIDs(ctx, `SELECT role_id FROM sys_user_role WHERE user_id = $1 ORDER BY role_id`, userID)
}

// FindUsersByRole returns the distinct user ids holding a role.
func (r *Repository) FindUsersByRole(ctx context.Context, roleID int64) ([]int64, error) {
	return r.queryIDs(ctx, `SELECT DISTINCT user_id FROM sys_user_role WHERE role_id = $1 ORDER BY user_id`, roleID)
}

// ExistsRole reports whether a role exists.
func (r *Repository) ExistsRole(ctx context.Context, roleID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sys_role WHERE id = $1)`, roleID).Scan(&exists)
	return exists, err
}

// UpdateUser persists nickname, email and status.
func (r *Repository) UpdateUser(ctx context.Context, user User) (User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE sys_user SET nickname = $2, email = $3, status = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, user.ID, user.Nickname, user.Email, user.Status)
	updated, err := scanUser(row)
	return updated, mapError(err)
}

// ReplaceUserRoles swaps the role set of a user in one transaction.
func (r *Repository) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	return r.replaceLinks(ctx, "sys_user_role", "user_id", "role_id", userID, roleIDs)
}

// ListPermissions returns every permission.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM sys_permission`)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

// FindPermissionByID fetches a permission by id.
func (r *Repository) FindPermissionByID(ctx context.Context, id int64) (Permission, error) {
	return scanPermission(r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM sys_permission WHERE id = $1`, id))
}

// FindPermissionsByIDs resolves a set of permission ids. Unknown ids are skipped.
func (r *Repository) FindPermissionsByIDs(ctx context.Context, ids []int64) ([]Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM sys_permission WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

// FindPermissionsByParent returns the direct children of a permission.
func (r *Repository) FindPermissionsByParent(ctx context.Context, parentID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM sys_permission WHERE parent_id = $1`, parentID)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

// ExistsPermissionWithCode reports whether a permission code is taken.
func (r *Repository) ExistsPermissionWithCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sys_permission WHERE code = $1)`, code).Scan(&exists)
	return exists, err
}

// CreatePermission inserts a permission.
func (r *Repository) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO sys_permission (parent_id, code, name, kind, path, method, sort, status, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING `+permissionColumns,
		perm.ParentID, perm.Code, perm.Name, perm.Kind, perm.Path, perm.Method, perm.Sort, perm.Status, perm.Description)
	created, err := scanPermission(row)
	return created, mapError(err)
}

// UpdatePermission overwrites the mutable attributes of a permission.
func (r *Repository) UpdatePermission(ctx context.Context, perm Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE sys_permission
		SET parent_id = $2, code = $3, name = $4, kind = $5, path = $6, method = $7,
		    sort = $8, status = $9, description = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING `+permissionColumns,
		perm.ID, perm.ParentID, perm.Code, perm.Name, perm.Kind, perm.Path, perm.Method, perm.Sort, perm.Status, perm.Description)
	updated, err := scanPermission(row)
	return updated, mapError(err)
}

// DeletePermission removes a permission row.
func (r *Repository) DeletePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sys_permission WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindRolePermissions returns the role/permission pairs for the given roles.
func (r *Repository) FindRolePermissions(ctx context.Context, roleIDs []int64) ([]RolePermission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT role_id, permission_id FROM sys_role_permission WHERE role_id = ANY($1)`, roleIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (RolePermission, error) {
		var rp RolePermission
		err := row.Scan(&rp.RoleID, &rp.PermissionID)
		return rp, err
	})
}

// FindRolesByPermission returns the distinct role ids referencing a permission.
func (r *Repository) FindRolesByPermission(ctx context.Context, permissionID int64) ([]int64, error) {
	return r.queryIDs(ctx, `SELECT DISTINCT role_id FROM sys_role_permission WHERE permission_id = $1 ORDER BY role_id`, permissionID)
}

// ReplaceRolePermissions swaps the permission set of a role in one transaction.
func (r *Repository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return r.replaceLinks(ctx, "sys_role_permission", "role_id", "permission_id", roleID, permissionIDs)
}

// ListMenus returns every menu.
func (r *Repository) ListMenus(ctx context.Context) ([]Menu, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+menuColumns+` FROM sys_menu`)
	if err != nil {
		return nil, err
	}
	return collectMenus(rows)
}

// FindMenuByID fetches a menu by id.
func (r *Repository) FindMenuByID(ctx context.Context, id int64) (Menu, error) {
	return scanMenu(r.pool.QueryRow(ctx, `SELECT `+menuColumns+` FROM sys_menu WHERE id = $1`, id))
}

// FindMenusByIDs resolves a set of menu ids. Unknown ids are skipped.
func (r *Repository) FindMenusByIDs(ctx context.Context, ids []int64) ([]Menu, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+menuColumns+` FROM sys_menu WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return collectMenus(rows)
}

// UpdateMenu overwrites the mutable attributes of a menu.
func (r *Repository) UpdateMenu(ctx context.Context, menu Menu) (Menu, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE sys_menu
		SET parent_id = $2, code = $3, name = $4, path = $5, component = $6, icon = $7,
		    sort = $8, status = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING `+menuColumns,
		menu.ID, menu.ParentID, menu.Code, menu.Name, menu.Path, menu.Component, menu.Icon, menu.Sort, menu.Status)
	updated, err := scanMenu(row)
	return updated, mapError(err)
}

// FindRoleMenus returns the role/menu pairs for the given roles.
func (r *Repository) FindRoleMenus(ctx context.Context, roleIDs []int64) ([]RoleMenu, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT role_id, menu_id FROM sys_role_menu WHERE role_id = ANY($1)`, roleIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (RoleMenu, error) {
		var rm RoleMenu
		err := row.Scan(&rm.RoleID, &rm.MenuID)
		return rm, err
	})
}

// ReplaceRoleMenus swaps the menu set of a role in one transaction.
func (r *Repository) ReplaceRoleMenus(ctx context.Context, roleID int64, menuIDs []int64) error {
	return r.replaceLinks(ctx, "sys_role_menu", "role_id", "menu_id", roleID, menuIDs)
}

// replaceLinks deletes every association of owner and inserts targets inside one
// repeatable-read transaction so readers never observe a half-replaced set.
func (r *Repository) replaceLinks(ctx context.Context, table, ownerCol, targetCol string, owner int64, targets []int64) error {
	targets = UniqueIDs(targets)
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE `+ownerCol+` = $1`, owner); err != nil {
			return err
		}
		if len(targets) == 0 {
			return nil
		}
		rows := make([][]any, 0, len(targets))
		for _, target := range targets {
			rows = append(rows, []any{owner, target})
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{table}, []string{ownerCol, targetCol}, pgx.CopyFromRows(rows)); err != nil {
			return mapError(err)
		}
		return nil
	})
}

func (r *Repository) queryIDs(ctx context.Context, sql string, args ...any) ([]int64, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Nickname, &u.Email, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.ParentID, &p.Code, &p.Name, &p.Kind, &p.Path, &p.Method, &p.Sort, &p.Status, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

func scanMenu(row pgx.Row) (Menu, error) {
	var m Menu
	err := row.Scan(&m.ID, &m.ParentID, &m.Code, &m.Name, &m.Path, &m.Component, &m.Icon, &m.Sort, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Menu{}, shared.ErrNotFound
		}
		return Menu{}, err
	}
	return m, nil
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Permission, error) {
		return scanPermission(row)
	})
}

func collectMenus(rows pgx.Rows) ([]Menu, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Menu, error) {
		return scanMenu(row)
	})
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("directory: %s: %w", pgErr.ConstraintName, shared.ErrConflict)
		case pgForeignKeyViolation:
			return fmt.Errorf("directory: %s: %w", pgErr.Detail, shared.ErrNotFound)
		}
	}
	return err
}
