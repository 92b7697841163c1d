package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/keystone-iam/keystone/internal/shared"
)

// RepositoryPort defines data access methods for the role catalog.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context) ([]Role, error)
	Get(ctx context.Context, id int64) (Role, error)
	Create(ctx context.Context, role Role) (Role, error)
	Update(ctx context.Context, role Role) (Role, error)
	AssignmentCount(ctx context.Context, roleID int64) (int64, error)
}

// AuditPort records administrative changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Sweeper schedules a catalog integrity sweep after cascading deletes.
type Sweeper interface {
	EnqueueIntegritySweep(ctx context.Context) error
}

// Service owns role definitions and their lifecycle guards.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	sweeper Sweeper
	logger  *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditPort, sweeper Sweeper, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, sweeper: sweeper, logger: logger}
}

// CreateInput carries fields for a new custom role. Preset status can only
// be set by seeding, never through this path.
type CreateInput struct {
	Name        string
	Description string
	IsActive    bool
}

// UpdateInput carries the mutable role fields. IsPreset is accepted only so
// an attempted downgrade can be rejected; it is never written.
type UpdateInput struct {
	Name        string
	Description string
	IsActive    bool
	IsPreset    bool
}

// List returns all roles.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// Get fetches a role by id.
func (s *Service) Get(ctx context.Context, id int64) (Role, error) {
	return s.repo.Get(ctx, id)
}

// Create inserts a new custom role. The name must be unused.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Role{}, fmt.Errorf("role name required: %w", shared.ErrValidation)
	}
	now := time.Now().UTC()
	created, err := s.repo.Create(ctx, Role{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		IsPreset:    false,
		IsActive:    input.IsActive,
		CreatedBy:   actorID,
		CreatedAt:   now,
		UpdatedBy:   actorID,
		UpdatedAt:   now,
	})
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, actorID, "ROLE_CREATE", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// Update edits a role. Preset status is write-once: a request carrying
// IsPreset=false against a preset role is rejected, everything else leaves
// the flag untouched.
func (s *Service) Update(ctx context.Context, actorID int64, id int64, input UpdateInput) (Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Role{}, fmt.Errorf("role name required: %w", shared.ErrValidation)
	}
	stored, err := s.repo.Get(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if stored.IsPreset && !input.IsPreset {
		return Role{}, shared.Policy(shared.PolicyPreset, "preset status cannot be revoked")
	}
	stored.Name = name
	stored.Description = strings.TrimSpace(input.Description)
	stored.IsActive = input.IsActive
	stored.UpdatedBy = actorID
	stored.UpdatedAt = time.Now().UTC()
	updated, err := s.repo.Update(ctx, stored)
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, actorID, "ROLE_UPDATE", id, map[string]any{"name": updated.Name})
	return updated, nil
}

// Delete removes a custom role and its binding rows as one atomic unit.
// Preset roles and roles still held by users cannot be deleted.
func (s *Service) Delete(ctx context.Context, actorID int64, id int64) error {
	stored, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if stored.IsPreset {
		return shared.Policy(shared.PolicyPreset, fmt.Sprintf("role %q is preset and cannot be deleted", stored.Name))
	}
	holders, err := s.repo.AssignmentCount(ctx, id)
	if err != nil {
		return err
	}
	if holders > 0 {
		return shared.Policy(shared.PolicyInUse, fmt.Sprintf("role %q is still assigned to %d user(s)", stored.Name, holders))
	}
	var removedGrants int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		removed, err := tx.DeleteGrants(ctx, id)
		if err != nil {
			return err
		}
		removedGrants = removed
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ROLE_DELETE", id, map[string]any{"name": stored.Name, "removed_grants": removedGrants})
	if s.sweeper != nil {
		if err := s.sweeper.EnqueueIntegritySweep(ctx); err != nil && s.logger != nil {
			s.logger.Warn("enqueue integrity sweep", slog.Any("error", err))
		}
	}
	return nil
}

// Clone creates a new role carrying a deep copy of the source's permission
// set at clone time. The clone is never preset, even when the source is, and
// shares no binding rows with the source.
func (s *Service) Clone(ctx context.Context, actorID int64, sourceID int64, newName string) (Role, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return Role{}, fmt.Errorf("role name required: %w", shared.ErrValidation)
	}
	source, err := s.repo.Get(ctx, sourceID)
	if err != nil {
		return Role{}, err
	}
	now := time.Now().UTC()
	var clone Role
	var copiedGrants int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.Create(ctx, Role{
			Name:        newName,
			Description: source.Description,
			IsPreset:    false,
			IsActive:    source.IsActive,
			CreatedBy:   source.CreatedBy,
			CreatedAt:   now,
			UpdatedBy:   actorID,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}
		copied, err := tx.CopyGrants(ctx, sourceID, created.ID)
		if err != nil {
			return err
		}
		clone = created
		copiedGrants = copied
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, actorID, "ROLE_CLONE", clone.ID, map[string]any{"source_id": sourceID, "copied_grants": copiedGrants})
	return clone, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
