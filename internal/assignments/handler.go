package assignments

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/keystone-iam/keystone/internal/platform/httpx"
	"github.com/keystone-iam/keystone/internal/rbac"
	"github.com/keystone-iam/keystone/internal/shared"
)

// Handler exposes user-role membership over HTTP. Routes are mounted under
// /users/{id}/roles.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), rbac: rbac}
}

// MountRoutes registers assignment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView, shared.PermUsersManage))
		r.Get("/", h.list)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersManage))
		r.Post("/", h.assign)
		r.Delete("/{roleID}", h.remove)
	})
}

type assignRequest struct {
	RoleID int64 `json:"role_id" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	details, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("list assignments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "assignments listed", details)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	actorID, _ := shared.ActorID(r.Context())
	assignment, created, err := h.service.Assign(r.Context(), actorID, userID, req.RoleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if created {
		httpx.Created(w, "role assigned", assignment)
		return
	}
	httpx.OK(w, "role already assigned", assignment)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	actorID, _ := shared.ActorID(r.Context())
	if err := h.service.Remove(r.Context(), actorID, userID, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "role removed", nil)
}

func userIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, shared.ErrValidation
	}
	return id, nil
}
