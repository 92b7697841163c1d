package grants

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/keystone-iam/keystone/internal/platform/httpx"
	"github.com/keystone-iam/keystone/internal/rbac"
	"github.com/keystone-iam/keystone/internal/shared"
)

// Handler exposes a role's permission bindings over HTTP. Routes are
// mounted under /roles/{id}/permissions.
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

// MountRoutes registers binding routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRolesView, shared.PermRolesManage))
		r.Get("/", h.list)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRolesManage))
		r.Post("/", h.grant)
		r.Put("/", h.reconcile)
		r.Delete("/{permissionID}", h.revoke)
		r.Post("/{permissionID}/suspend", h.suspend)
		r.Post("/{permissionID}/resume", h.resume)
	})
}

type grantRequest struct {
	PermissionID int64 `json:"permission_id" validate:"required"`
}

type reconcileRequest struct {
	PermissionIDs []int64 `json:"permission_ids"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	roleID, err := roleIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	details, err := h.service.ListForRole(r.Context(), roleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "role permissions listed", details)
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	roleID, err := roleIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	actorID, _ := shared.ActorID(r.Context())
	grant, outcome, err := h.service.Grant(r.Context(), actorID, roleID, req.PermissionID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if outcome == OutcomeGranted {
		httpx.Created(w, string(outcome), grant)
		return
	}
	httpx.OK(w, string(outcome), grant)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	roleID, err := roleIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reconcileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	actorID, _ := shared.ActorID(r.Context())
	result, err := h.service.Reconcile(r.Context(), actorID, roleID, req.PermissionIDs)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	message := "role permissions reconciled"
	if skipped := len(result.SkippedIDs); skipped > 0 {
		message = fmt.Sprintf("role permissions reconciled, %d unknown id(s) skipped", skipped)
	}
	httpx.OK(w, message, result)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	roleID, permissionID, err := pairParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorID(r.Context())
	if err := h.service.Revoke(r.Context(), actorID, roleID, permissionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "permission revoked", nil)
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	roleID, permissionID, err := pairParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorID(r.Context())
	if err := h.service.Suspend(r.Context(), actorID, roleID, permissionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "permission suspended", nil)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	roleID, permissionID, err := pairParams(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorID(r.Context())
	if err := h.service.Resume(r.Context(), actorID, roleID, permissionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, "permission resumed", nil)
}

func roleIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, shared.ErrValidation
	}
	return id, nil
}

func pairParams(r *http.Request) (int64, int64, error) {
	roleID, err := roleIDParam(r)
	if err != nil {
		return 0, 0, err
	}
	permissionID, err := strconv.ParseInt(chi.URLParam(r, "permissionID"), 10, 64)
	if err != nil {
		return 0, 0, shared.ErrValidation
	}
	return roleID, permissionID, nil
}
