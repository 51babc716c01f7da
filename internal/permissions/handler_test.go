package permissions_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/permissions"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

func newRouter(t *testing.T, granted ...string) (http.Handler, *recordingInvalidator) {
	t.Helper()
	svc, _, inv := newService(t)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := &shared.Principal{Username: "admin", Permissions: granted}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
		})
	})
	permissions.NewHandler(nil, svc, rbac.Middleware{}).MountRoutes(r)
	return r, inv
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreatePermissionEndpoint(t *testing.T) {
	h, inv := newRouter(t, rbac.PermPermissionAdd)

	rec := do(h, http.MethodPost, "/permissions", `{"code":"sys:audit","name":"Audit","kind":"menu"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Permission   permissions.PermissionView `json:"permission"`
		Notification struct {
			ChangeType     string `json:"changeType"`
			RequiresReauth bool   `json:"requiresReauth"`
		} `json:"notification"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "sys:audit", body.Permission.Code)
	assert.Equal(t, "PERMISSION_UPDATED", body.Notification.ChangeType)
	assert.True(t, body.Notification.RequiresReauth)
	assert.Len(t, inv.permissions, 1)
}

func TestCreatePermissionValidation(t *testing.T) {
	h, _ := newRouter(t, rbac.PermPermissionAdd)

	rec := do(h, http.MethodPost, "/permissions", `{"name":"Audit","kind":"folder"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Contains(t, problem.Detail, "code must satisfy required")
	assert.Contains(t, problem.Detail, "kind must satisfy oneof")

	rec = do(h, http.MethodPost, "/permissions", `{"code":"x","name":"y","kind":"api","extra":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteGuardReturnsConflict(t *testing.T) {
	h, _ := newRouter(t, rbac.PermPermissionDelete)

	// 8 is sys:user:list in the default dataset.
	rec := do(h, http.MethodDelete, "/permissions/8", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Contains(t, problem.Detail, "permission is used by 3 role(s)")

	rec = do(h, http.MethodDelete, "/permissions/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPermissionEndpointsRequireCodes(t *testing.T) {
	h, inv := newRouter(t, rbac.PermPermissionList)

	rec := do(h, http.MethodPut, "/permissions/1/toggle", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(h, http.MethodPut, "/menus/2", `{"name":"People"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, inv.permissions)
	require.Empty(t, inv.menus)
}

func TestMenuEndpoints(t *testing.T) {
	h, inv := newRouter(t, rbac.PermMenuEdit, rbac.PermMenuStatus)

	rec := do(h, http.MethodPut, "/menus/2", `{"name":"People"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(h, http.MethodPut, "/menus/2/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Menu permissions.MenuView `json:"menu"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "People", body.Menu.Name)
	assert.EqualValues(t, 0, body.Menu.Status)
	assert.Equal(t, []int64{2, 2}, inv.menus)

	rec = do(h, http.MethodPut, "/menus/42/toggle", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
