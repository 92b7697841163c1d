package rbac

import (
	"context"
	"log/slog"
	"strings"
)

// Decision labels for authorization metrics.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
	DecisionError = "error"
)

// RepositoryPort answers effective-permission queries.
type RepositoryPort interface {
	UserPermissions(ctx context.Context, userID int64) ([]string, error)
	HasPermission(ctx context.Context, userID int64, systemName string) (bool, error)
}

// MetricsPort counts authorization decisions.
type MetricsPort interface {
	AuthzDecision(decision string)
}

// Resolver computes a user's effective permissions. All checks fail closed:
// a resolution error never grants access.
type Resolver struct {
	repo    RepositoryPort
	metrics MetricsPort
	logger  *slog.Logger
}

// NewResolver builds Resolver instance.
func NewResolver(repo RepositoryPort, metrics MetricsPort, logger *slog.Logger) *Resolver {
	return &Resolver{repo: repo, metrics: metrics, logger: logger}
}

// UserPermissions returns the deduplicated system names the user holds.
// A user with no roles, or only inactive ones, gets an empty set. Lookup
// failures are logged and counted, and answer the empty set as well.
func (r *Resolver) UserPermissions(ctx context.Context, userID int64) []string {
	granted, err := r.repo.UserPermissions(ctx, userID)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("permission resolution failed",
				slog.Int64("user_id", userID), slog.Any("error", err))
		}
		r.count(DecisionError)
		return []string{}
	}
	return granted
}

// UserHasPermission reports whether the user holds one permission. Lookup
// failures are logged and counted, and answer false.
func (r *Resolver) UserHasPermission(ctx context.Context, userID int64, systemName string) bool {
	systemName = strings.TrimSpace(strings.ToLower(systemName))
	if systemName == "" {
		r.count(DecisionDeny)
		return false
	}
	held, err := r.repo.HasPermission(ctx, userID, systemName)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("permission check failed",
				slog.Int64("user_id", userID), slog.String("permission", systemName), slog.Any("error", err))
		}
		r.count(DecisionError)
		return false
	}
	if held {
		r.count(DecisionAllow)
	} else {
		r.count(DecisionDeny)
	}
	return held
}

func (r *Resolver) count(decision string) {
	if r.metrics != nil {
		r.metrics.AuthzDecision(decision)
	}
}
