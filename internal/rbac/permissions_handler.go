package rbac

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-rbac/internal/directory"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
)

// TreeHandler serves the permission and menu tree listings.
type TreeHandler struct {
	logger   *slog.Logger
	resolver *Resolver
	rbac     Middleware
}

// NewTreeHandler builds TreeHandler instance.
func NewTreeHandler(logger *slog.Logger, resolver *Resolver, rbac Middleware) *TreeHandler {
	return &TreeHandler{logger: logger, resolver: resolver, rbac: rbac}
}

// MountRoutes registers tree routes.
func (h *TreeHandler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(PermPermissionList)).Get("/permissions/tree", h.permissionTree)
	r.With(h.rbac.RequireAny(PermMenuList)).Get("/menus/tree", h.menuTree)
}

func (h *TreeHandler) permissionTree(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTreeFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	nodes, err := h.resolver.PermissionTree(r.Context(), filter)
	if err != nil {
		h.logger.Error("list permission tree", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, nodes)
}

func (h *TreeHandler) menuTree(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTreeFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	nodes, err := h.resolver.MenuTree(r.Context(), filter)
	if err != nil {
		h.logger.Error("list menu tree", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, nodes)
}

func parseTreeFilter(r *http.Request) (TreeFilter, error) {
	q := r.URL.Query()
	filter := TreeFilter{Keyword: q.Get("keyword")}
	if raw := q.Get("status"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || (v != int(directory.StatusDisabled) && v != int(directory.StatusEnabled)) {
			return TreeFilter{}, fmt.Errorf("%w: invalid status %q", httpx.ErrValidation, raw)
		}
		status := directory.Status(v)
		filter.Status = &status
	}
	return filter, nil
}
