package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/keystone-iam/keystone/internal/platform/httpx"
	"github.com/keystone-iam/keystone/internal/shared"
)

// Middleware wires authorization guards for HTTP handlers.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted, ok := m.effective(w, r)
			if !ok {
				return
			}
			if hasAnyPermission(granted, normalized) {
				m.Resolver.count(DecisionAllow)
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w)
		})
	}
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted, ok := m.effective(w, r)
			if !ok {
				return
			}
			if hasAllPermissions(granted, normalized) {
				m.Resolver.count(DecisionAllow)
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w)
		})
	}
}

// effective resolves the caller's permission set, writing the deny itself
// when no actor is attached. Resolution failures surface as an empty set,
// so the guards treat them as no access.
func (m Middleware) effective(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	userID, ok := shared.ActorID(r.Context())
	if !ok {
		m.deny(w)
		return nil, false
	}
	return m.Resolver.UserPermissions(r.Context(), userID), true
}

func (m Middleware) deny(w http.ResponseWriter) {
	m.Resolver.count(DecisionDeny)
	httpx.Fail(w, http.StatusForbidden, http.StatusText(http.StatusForbidden))
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
