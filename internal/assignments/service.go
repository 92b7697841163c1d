package assignments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/keystone-iam/keystone/internal/roles"
	"github.com/keystone-iam/keystone/internal/shared"
)

// RepositoryPort defines data access for user-role assignments.
type RepositoryPort interface {
	Get(ctx context.Context, userID, roleID int64) (Assignment, error)
	ListForUser(ctx context.Context, userID int64) ([]AssignmentDetail, error)
	Insert(ctx context.Context, a Assignment) (Assignment, error)
	Delete(ctx context.Context, userID, roleID int64) error
}

// UserPort confirms user existence.
type UserPort interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// RolePort confirms role existence.
type RolePort interface {
	Get(ctx context.Context, id int64) (roles.Role, error)
}

// AuditPort records administrative changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns user-role membership.
type Service struct {
	repo   RepositoryPort
	users  UserPort
	roles  RolePort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, users UserPort, roles RolePort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, users: users, roles: roles, audit: audit, logger: logger}
}

// ListForUser returns the user's assignments with role detail.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]AssignmentDetail, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListForUser(ctx, userID)
}

// Assign grants a role to a user. Assigning a role the user already holds
// returns the existing assignment unchanged.
func (s *Service) Assign(ctx context.Context, actorID, userID, roleID int64) (Assignment, bool, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return Assignment{}, false, err
	}
	if _, err := s.roles.Get(ctx, roleID); err != nil {
		return Assignment{}, false, err
	}

	existing, err := s.repo.Get(ctx, userID, roleID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return Assignment{}, false, err
	}

	created, err := s.repo.Insert(ctx, Assignment{UserID: userID, RoleID: roleID, AssignedAt: time.Now().UTC()})
	if err != nil {
		// Concurrent writer beat us to it; surface the row it made.
		if errors.Is(err, shared.ErrDuplicateKey) {
			return s.lookupAfterRace(ctx, userID, roleID)
		}
		return Assignment{}, false, err
	}
	s.recordAudit(ctx, actorID, "ASSIGN_CREATE", created.ID, map[string]any{"user_id": userID, "role_id": roleID})
	return created, true, nil
}

// Remove takes a role away from a user.
func (s *Service) Remove(ctx context.Context, actorID, userID, roleID int64) error {
	if err := s.repo.Delete(ctx, userID, roleID); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ASSIGN_REMOVE", 0, map[string]any{"user_id": userID, "role_id": roleID})
	return nil
}

func (s *Service) lookupAfterRace(ctx context.Context, userID, roleID int64) (Assignment, bool, error) {
	existing, err := s.repo.Get(ctx, userID, roleID)
	if err != nil {
		return Assignment{}, false, err
	}
	return existing, false, nil
}

func (s *Service) requireUser(ctx context.Context, userID int64) error {
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %d: %w", userID, shared.ErrNotFound)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user_role",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, entry); err != nil && s.logger != nil {
		s.logger.Error("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
