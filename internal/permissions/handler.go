package permissions

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-rbac/internal/invalidation"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
)

// Handler manages permission and menu record endpoints.
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

// MountRoutes registers permission and menu routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermPermissionAdd)).Post("/permissions", h.createPermission)
	r.With(h.rbac.RequireAny(rbac.PermPermissionEdit)).Put("/permissions/{id}", h.updatePermission)
	r.With(h.rbac.RequireAny(rbac.PermPermissionDelete)).Delete("/permissions/{id}", h.deletePermission)
	r.With(h.rbac.RequireAny(rbac.PermPermissionStatus)).Put("/permissions/{id}/toggle", h.togglePermission)
	r.With(h.rbac.RequireAny(rbac.PermMenuEdit)).Put("/menus/{id}", h.updateMenu)
	r.With(h.rbac.RequireAny(rbac.PermMenuStatus)).Put("/menus/{id}/toggle", h.toggleMenu)
}

type permissionResponse struct {
	Permission   PermissionView            `json:"permission"`
	Notification invalidation.Notification `json:"notification"`
}

type menuResponse struct {
	Menu         MenuView                  `json:"menu"`
	Notification invalidation.Notification `json:"notification"`
}

type deleteResponse struct {
	Notification invalidation.Notification `json:"notification"`
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeAndValidate(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, n, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, permissionResponse{Permission: toPermissionView(perm), Notification: n})
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in UpdateInput
	if err := httpx.DecodeAndValidate(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, n, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionResponse{Permission: toPermissionView(perm), Notification: n})
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	n, err := h.service.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, "delete permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, deleteResponse{Notification: n})
}

func (h *Handler) togglePermission(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, n, err := h.service.ToggleStatus(r.Context(), id)
	if err != nil {
		h.fail(w, "toggle permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionResponse{Permission: toPermissionView(perm), Notification: n})
}

func (h *Handler) updateMenu(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in MenuUpdateInput
	if err := httpx.DecodeAndValidate(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	menu, n, err := h.service.UpdateMenu(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update menu", err)
		return
	}
	httpx.JSON(w, http.StatusOK, menuResponse{Menu: toMenuView(menu), Notification: n})
}

func (h *Handler) toggleMenu(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	menu, n, err := h.service.ToggleMenuStatus(r.Context(), id)
	if err != nil {
		h.fail(w, "toggle menu", err)
		return
	}
	httpx.JSON(w, http.StatusOK, menuResponse{Menu: toMenuView(menu), Notification: n})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
