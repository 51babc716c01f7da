package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-rbac/internal/invalidation"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
)

// Handler manages user management endpoints.
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

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/users/{id}", func(r chi.Router) {
		r.With(h.rbac.RequireAny(rbac.PermUserEdit)).Put("/", h.update)
		r.With(h.rbac.RequireAny(rbac.PermUserStatus)).Put("/toggle", h.toggle)
		r.With(h.rbac.RequireAny(rbac.PermUserEdit)).Get("/roles", h.roleIDs)
		r.With(h.rbac.RequireAny(rbac.PermUserEdit)).Put("/roles", h.saveRoles)
	})
}

type userResponse struct {
	User         UserView                  `json:"user"`
	Notification invalidation.Notification `json:"notification"`
}

type rolesRequest struct {
	RoleIDs []int64 `json:"roleIds" validate:"required,dive,gt=0"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
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
	user, n, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, userResponse{User: toView(user), Notification: n})
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, n, err := h.service.ToggleStatus(r.Context(), id)
	if err != nil {
		h.fail(w, "toggle user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, userResponse{User: toView(user), Notification: n})
}

func (h *Handler) roleIDs(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ids, err := h.service.RoleIDs(r.Context(), id)
	if err != nil {
		h.fail(w, "list user roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string][]int64{"roleIds": ids})
}

func (h *Handler) saveRoles(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req rolesRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	n, err := h.service.SaveRoles(r.Context(), id, req.RoleIDs)
	if err != nil {
		h.fail(w, "save user roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"notification": n})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
