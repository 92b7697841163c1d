package grants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/keystone-iam/keystone/internal/permissions"
	"github.com/keystone-iam/keystone/internal/roles"
	"github.com/keystone-iam/keystone/internal/shared"
)

// RepositoryPort defines data access for role-permission bindings.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, roleID, permissionID int64) (Grant, error)
	ListForRole(ctx context.Context, roleID int64) ([]GrantDetail, error)
	BoundIDs(ctx context.Context, roleID int64) ([]int64, error)
	Insert(ctx context.Context, grant Grant) error
	SetActive(ctx context.Context, roleID, permissionID int64, active bool) error
	Delete(ctx context.Context, roleID, permissionID int64) error
}

// RolePort confirms role existence.
type RolePort interface {
	Get(ctx context.Context, id int64) (roles.Role, error)
}

// PermissionPort confirms permission existence and filters id sets.
type PermissionPort interface {
	Get(ctx context.Context, id int64) (permissions.Permission, error)
	ExistingIDs(ctx context.Context, ids []int64) ([]int64, error)
}

// Locker serializes writers mutating the same role's permission set.
type Locker interface {
	Lock(ctx context.Context, roleID int64) (func(), error)
}

// AuditPort records administrative changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the role-permission association.
type Service struct {
	repo   RepositoryPort
	roles  RolePort
	perms  PermissionPort
	locker Locker
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, roles RolePort, perms PermissionPort, locker Locker, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, roles: roles, perms: perms, locker: locker, audit: audit, logger: logger}
}

// ListForRole returns the role's bindings with permission detail.
func (s *Service) ListForRole(ctx context.Context, roleID int64) ([]GrantDetail, error) {
	if _, err := s.roles.Get(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListForRole(ctx, roleID)
}

// Grant binds a permission to a role. Granting an already-active binding is
// a reported no-op; granting a suspended one re-activates it. The pair never
// gets a second row.
func (s *Service) Grant(ctx context.Context, actorID, roleID, permissionID int64) (Grant, Outcome, error) {
	if _, err := s.roles.Get(ctx, roleID); err != nil {
		return Grant{}, "", err
	}
	if _, err := s.perms.Get(ctx, permissionID); err != nil {
		return Grant{}, "", err
	}
	unlock, err := s.lockRole(ctx, roleID)
	if err != nil {
		return Grant{}, "", err
	}
	defer unlock()

	existing, err := s.repo.Get(ctx, roleID, permissionID)
	switch {
	case err == nil && existing.IsActive:
		return existing, OutcomeAlreadyGranted, nil
	case err == nil:
		if err := s.repo.SetActive(ctx, roleID, permissionID, true); err != nil {
			return Grant{}, "", err
		}
		existing.IsActive = true
		s.recordAudit(ctx, actorID, "GRANT_REACTIVATE", roleID, map[string]any{"permission_id": permissionID})
		return existing, OutcomeReactivated, nil
	case errors.Is(err, shared.ErrNotFound):
		grant := Grant{RoleID: roleID, PermissionID: permissionID, IsActive: true}
		if err := s.repo.Insert(ctx, grant); err != nil {
			return Grant{}, "", err
		}
		s.recordAudit(ctx, actorID, "GRANT_CREATE", roleID, map[string]any{"permission_id": permissionID})
		return grant, OutcomeGranted, nil
	default:
		return Grant{}, "", err
	}
}

// Revoke removes a binding row outright.
func (s *Service) Revoke(ctx context.Context, actorID, roleID, permissionID int64) error {
	unlock, err := s.lockRole(ctx, roleID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.repo.Delete(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "GRANT_REVOKE", roleID, map[string]any{"permission_id": permissionID})
	return nil
}

// Suspend deactivates a binding without revoking it.
func (s *Service) Suspend(ctx context.Context, actorID, roleID, permissionID int64) error {
	return s.setActive(ctx, actorID, roleID, permissionID, false)
}

// Resume re-activates a suspended binding.
func (s *Service) Resume(ctx context.Context, actorID, roleID, permissionID int64) error {
	return s.setActive(ctx, actorID, roleID, permissionID, true)
}

func (s *Service) setActive(ctx context.Context, actorID, roleID, permissionID int64, active bool) error {
	unlock, err := s.lockRole(ctx, roleID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.repo.SetActive(ctx, roleID, permissionID, active); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "GRANT_TOGGLE", roleID, map[string]any{"permission_id": permissionID, "is_active": active})
	return nil
}

// Reconcile moves the role's bound permission set to exactly the desired
// ids, as one atomic unit. Ids present in both sets are left untouched.
// Desired ids missing from the catalog are skipped, not failed; the skip is
// logged and reported in the result.
func (s *Service) Reconcile(ctx context.Context, actorID, roleID int64, desired []int64) (ReconcileResult, error) {
	if _, err := s.roles.Get(ctx, roleID); err != nil {
		return ReconcileResult{}, err
	}
	unlock, err := s.lockRole(ctx, roleID)
	if err != nil {
		return ReconcileResult{}, err
	}
	defer unlock()

	desiredSet := make(map[int64]struct{}, len(desired))
	for _, id := range desired {
		desiredSet[id] = struct{}{}
	}
	deduped := make([]int64, 0, len(desiredSet))
	for id := range desiredSet {
		deduped = append(deduped, id)
	}
	known, err := s.perms.ExistingIDs(ctx, deduped)
	if err != nil {
		return ReconcileResult{}, err
	}
	knownSet := make(map[int64]struct{}, len(known))
	for _, id := range known {
		knownSet[id] = struct{}{}
	}
	var result ReconcileResult
	for id := range desiredSet {
		if _, ok := knownSet[id]; !ok {
			result.SkippedIDs = append(result.SkippedIDs, id)
		}
	}
	if len(result.SkippedIDs) > 0 && s.logger != nil {
		s.logger.Warn("reconcile skipping unknown permission ids",
			slog.Int64("role_id", roleID), slog.Any("permission_ids", result.SkippedIDs))
	}

	current, err := s.repo.BoundIDs(ctx, roleID)
	if err != nil {
		return ReconcileResult{}, err
	}
	currentSet := make(map[int64]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, id := range current {
			if _, keep := knownSet[id]; keep {
				result.Unchanged++
				continue
			}
			if err := tx.Delete(ctx, roleID, id); err != nil {
				return err
			}
			result.Removed++
		}
		for _, id := range known {
			if _, bound := currentSet[id]; bound {
				continue
			}
			if err := tx.Insert(ctx, Grant{RoleID: roleID, PermissionID: id, IsActive: true}); err != nil {
				return err
			}
			result.Added++
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	s.recordAudit(ctx, actorID, "GRANT_RECONCILE", roleID, map[string]any{
		"added": result.Added, "removed": result.Removed, "skipped": len(result.SkippedIDs),
	})
	return result, nil
}

func (s *Service) lockRole(ctx context.Context, roleID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	unlock, err := s.locker.Lock(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("grants: lock role %d: %w", roleID, err)
	}
	return unlock, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, roleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role_permission",
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
