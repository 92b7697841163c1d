package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keystone-iam/keystone/internal/platform/httpx"
	"github.com/keystone-iam/keystone/internal/shared"
)

// Handler exposes authorization inspection endpoints.
type Handler struct {
	logger   *slog.Logger
	resolver *Resolver
	rbac     Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver, rbac Middleware) *Handler {
	return &Handler{logger: logger, resolver: resolver, rbac: rbac}
}

// MountRoutes registers inspection routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermAuthzInspect))
		r.Get("/users/{id}/permissions", h.userPermissions)
		r.Get("/users/{id}/check", h.check)
	})
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	granted := h.resolver.UserPermissions(r.Context(), userID)
	if granted == nil {
		granted = []string{}
	}
	httpx.OK(w, "effective permissions", map[string]any{"user_id": userID, "permissions": granted})
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	permission := strings.TrimSpace(r.URL.Query().Get("permission"))
	if permission == "" {
		httpx.Fail(w, http.StatusBadRequest, "permission query parameter required")
		return
	}
	allowed := h.resolver.UserHasPermission(r.Context(), userID, permission)
	httpx.OK(w, "permission checked", map[string]any{
		"user_id":    userID,
		"permission": permission,
		"allowed":    allowed,
	})
}
