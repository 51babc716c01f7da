package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-rbac/internal/invalidation"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
)

// Handler manages role grant endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles/{id}", func(r chi.Router) {
		r.With(h.rbac.RequireAny(rbac.PermRoleList, rbac.PermRolePerm)).Get("/permissions", h.permissionIDs)
		r.With(h.rbac.RequireAll(rbac.PermRolePerm)).Put("/permissions", h.savePermissions)
		r.With(h.rbac.RequireAny(rbac.PermRoleList, rbac.PermRoleMenu)).Get("/menus", h.menuIDs)
		r.With(h.rbac.RequireAll(rbac.PermRoleMenu)).Put("/menus", h.saveMenus)
	})
}

type idsRequest struct {
	IDs []int64 `json:"ids" validate:"required,dive,gt=0"`
}

type idsResponse struct {
	IDs []int64 `json:"ids"`
}

type saveResponse struct {
	Notification invalidation.Notification `json:"notification"`
}

func (h *Handler) permissionIDs(w http.ResponseWriter, r *http.Request) {
	roleID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ids, err := h.service.PermissionIDs(r.Context(), roleID)
	if err != nil {
		h.fail(w, "list role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, idsResponse{IDs: ids})
}

func (h *Handler) menuIDs(w http.ResponseWriter, r *http.Request) {
	roleID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ids, err := h.service.MenuIDs(r.Context(), roleID)
	if err != nil {
		h.fail(w, "list role menus", err)
		return
	}
	httpx.JSON(w, http.StatusOK, idsResponse{IDs: ids})
}

func (h *Handler) savePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, req, ok := h.decodeIDs(w, r)
	if !ok {
		return
	}
	n, err := h.service.SavePermissions(r.Context(), roleID, req.IDs)
	if err != nil {
		h.fail(w, "save role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, saveResponse{Notification: n})
}

func (h *Handler) saveMenus(w http.ResponseWriter, r *http.Request) {
	roleID, req, ok := h.decodeIDs(w, r)
	if !ok {
		return
	}
	n, err := h.service.SaveMenus(r.Context(), roleID, req.IDs)
	if err != nil {
		h.fail(w, "save role menus", err)
		return
	}
	httpx.JSON(w, http.StatusOK, saveResponse{Notification: n})
}

func (h *Handler) decodeIDs(w http.ResponseWriter, r *http.Request) (int64, idsRequest, bool) {
	roleID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, idsRequest{}, false
	}
	var req idsRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return 0, idsRequest{}, false
	}
	return roleID, req, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
