package rbac_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

type stubDecoder map[string]*shared.Principal

func (s stubDecoder) Principal(token string) (*shared.Principal, error) {
	p, ok := s[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return p, nil
}

func serve(t *testing.T, handler http.Handler, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestRequireAnyAndAll(t *testing.T) {
	decoder := stubDecoder{
		"editor": {Username: "jerry", Permissions: []string{"sys:user:edit", "sys:user:list"}},
		"viewer": {Username: "tom", Permissions: []string{"sys:user:list"}},
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotNil(t, shared.PrincipalFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})
	mw := rbac.Middleware{}
	auth := rbac.Authenticate(decoder, nil)

	anyHandler := auth(mw.RequireAny("SYS:USER:EDIT", "sys:role:perm")(ok))
	allHandler := auth(mw.RequireAll("sys:user:edit", "sys:user:list")(ok))

	require.Equal(t, http.StatusNoContent, serve(t, anyHandler, "editor").Code)
	require.Equal(t, http.StatusForbidden, serve(t, anyHandler, "viewer").Code)
	require.Equal(t, http.StatusNoContent, serve(t, allHandler, "editor").Code)
	require.Equal(t, http.StatusForbidden, serve(t, allHandler, "viewer").Code)
}

func TestInvalidCredentialDegradesToUnauthenticated(t *testing.T) {
	reached := false
	open := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		require.Nil(t, shared.PrincipalFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
	auth := rbac.Authenticate(stubDecoder{}, nil)

	rr := serve(t, auth(open), "garbage")
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, reached)

	protected := auth(rbac.Middleware{}.RequireAuthenticated()(open))
	rr = serve(t, protected, "garbage")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}
