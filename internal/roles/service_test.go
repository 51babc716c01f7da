package roles_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/directory"
	"github.com/odyssey-erp/odyssey-rbac/internal/invalidation"
	"github.com/odyssey-erp/odyssey-rbac/internal/permcache"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/roles"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
	_ "github.com/odyssey-erp/odyssey-rbac/testing"
)

type fixture struct {
	store    *directory.MemoryStore
	service  *roles.Service
	codes    *permcache.Keyspace[[]string]
	resolver *rbac.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := permcache.New(client, permcache.Config{Prefix: "roles"})

	store := directory.NewMemoryStore()
	store.Load(directory.DefaultDataset("hash"))
	codes := permcache.NewKeyspace[[]string](cache, permcache.KeyspaceCodes)
	profiles := permcache.NewKeyspace[rbac.Profile](cache, permcache.KeyspaceProfile)
	orch := invalidation.New(store, codes, profiles, nil, nil)
	return &fixture{
		store:    store,
		service:  roles.NewService(store, orch),
		codes:    codes,
		resolver: rbac.NewResolver(store),
	}
}

func (f *fixture) cachedCodes(t *testing.T, userID int64) []string {
	t.Helper()
	ctx := context.Background()
	codes, err := f.codes.GetOrCompute(ctx, permcache.UserKey(userID), func(ctx context.Context) ([]string, error) {
		return f.resolver.ResolvePermissionCodes(ctx, userID)
	})
	require.NoError(t, err)
	return codes
}

func TestSavePermissionsReplacesGrantsAndEvicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.Contains(t, f.cachedCodes(t, 4), "sys:user:list")

	n, err := f.service.SavePermissions(ctx, 3, []int64{1, 1})
	require.NoError(t, err)
	require.Equal(t, invalidation.RolePermissionsChanged, n.ChangeType)
	require.Equal(t, []int64{4}, n.AffectedUserIDs)

	ids, err := f.service.PermissionIDs(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, ids)
	require.Equal(t, []string{"sys:manage"}, f.cachedCodes(t, 4))
}

func TestSavePermissionsWithUnknownPermissionKeepsOldGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before, err := f.service.PermissionIDs(ctx, 2)
	require.NoError(t, err)

	_, err = f.service.SavePermissions(ctx, 2, []int64{1, 9999})
	require.ErrorIs(t, err, shared.ErrNotFound)

	after, err := f.service.PermissionIDs(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestMenusRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.service.SaveMenus(ctx, 2, []int64{1, 4})
	require.NoError(t, err)
	require.Equal(t, invalidation.RoleMenusChanged, n.ChangeType)

	ids, err := f.service.MenuIDs(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 4}, ids)
}

func TestUnknownRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.PermissionIDs(ctx, 77)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.service.MenuIDs(ctx, 77)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.service.SaveMenus(ctx, 77, nil)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRoleEndpoints(t *testing.T) {
	f := newFixture(t)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := &shared.Principal{Username: "admin", Permissions: []string{rbac.PermRolePerm}}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
		})
	})
	roles.NewHandler(nil, f.service, rbac.Middleware{}).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/roles/3/permissions", strings.NewReader(`{"ids":[1]}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var saved struct {
		Notification invalidation.Notification `json:"notification"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	require.Equal(t, []int64{4}, saved.Notification.AffectedUserIDs)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/roles/3/permissions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"ids":[1]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/roles/3/permissions", strings.NewReader(`{"ids":[0]}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/roles/3/menus", strings.NewReader(`{"ids":[1]}`)))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/roles/99/permissions", strings.NewReader(`{"ids":[]}`)))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
