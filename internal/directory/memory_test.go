package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

func TestUniqueIDsPreservesOrder(t *testing.T) {
	require.Equal(t, []int64{3, 1, 2}, UniqueIDs([]int64{3, 1, 3, 2, 1}))
	require.Empty(t, UniqueIDs(nil))
}

func TestMemoryStoreReplaceRolePermissions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	role := store.AddRole(Role{Code: "OPS"})
	p1 := store.AddPermission(Permission{Code: "sys:user", Kind: KindMenu})
	p2 := store.AddPermission(Permission{Code: "sys:role", Kind: KindMenu})
	store.GrantPermission(role.ID, p1.ID)

	require.NoError(t, store.ReplaceRolePermissions(ctx, role.ID, []int64{p2.ID, p2.ID}))
	links, err := store.FindRolePermissions(ctx, []int64{role.ID})
	require.NoError(t, err)
	require.Equal(t, []RolePermission{{RoleID: role.ID, PermissionID: p2.ID}}, links)

	err = store.ReplaceRolePermissions(ctx, role.ID, []int64{999})
	require.ErrorIs(t, err, shared.ErrNotFound)
	links, err = store.FindRolePermissions(ctx, []int64{role.ID})
	require.NoError(t, err)
	require.Len(t, links, 1, "failed replace must leave the previous set intact")

	require.ErrorIs(t, store.ReplaceRolePermissions(ctx, 12345, nil), shared.ErrNotFound)
}

func TestMemoryStoreFindUsersByRoleIsDistinctAndSorted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	role := store.AddRole(Role{Code: "ADMIN"})
	u2 := store.AddUser(User{ID: 20, Username: "tom"})
	u1 := store.AddUser(User{ID: 10, Username: "jerry"})
	store.AssignRole(u2.ID, role.ID, role.ID)
	store.AssignRole(u1.ID, role.ID)

	ids, err := store.FindUsersByRole(ctx, role.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{u1.ID, u2.ID}, ids)
}

func TestMemoryStorePermissionCodeConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.CreatePermission(ctx, Permission{Code: "sys:user:list", Kind: KindAPI})
	require.NoError(t, err)

	_, err = store.CreatePermission(ctx, Permission{Code: "sys:user:list", Kind: KindAPI})
	require.ErrorIs(t, err, shared.ErrConflict)

	exists, err := store.ExistsPermissionWithCode(ctx, "sys:user:list")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestMemoryStoreInjectErrorAndCalls(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	boom := errors.New("boom")
	store.InjectError("FindRolesForUser", boom)

	_, err := store.FindRolesForUser(ctx, 1)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, store.Calls("FindRolesForUser"))

	store.InjectError("FindRolesForUser", nil)
	_, err = store.FindRolesForUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, store.Calls("FindRolesForUser"))
}

func TestStatusToggleAndKind(t *testing.T) {
	require.Equal(t, StatusDisabled, StatusEnabled.Toggle())
	require.Equal(t, StatusEnabled, StatusDisabled.Toggle())
	require.True(t, KindButton.Valid())
	require.False(t, PermissionKind("widget").Valid())
}
