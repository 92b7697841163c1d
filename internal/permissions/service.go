package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/keystone-iam/keystone/internal/shared"
)

// RepositoryPort defines data access methods for the permission catalog.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context) ([]Permission, error)
	ListByCategory(ctx context.Context, category string) ([]Permission, error)
	Get(ctx context.Context, id int64) (Permission, error)
	ExistingIDs(ctx context.Context, ids []int64) ([]int64, error)
	Create(ctx context.Context, p Permission) (Permission, error)
	Update(ctx context.Context, p Permission) (Permission, error)
}

// AuditPort records administrative changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Sweeper schedules a catalog integrity sweep after cascading deletes.
type Sweeper interface {
	EnqueueIntegritySweep(ctx context.Context) error
}

// Service owns permission definitions.
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

// Input carries caller-supplied permission fields.
type Input struct {
	Name        string
	Description string
	Category    string
	SystemName  string
	IsActive    bool
}

func (in *Input) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	// System names are stored lowercase so resolution, which folds the
	// queried name to lowercase, always matches the stored spelling.
	in.SystemName = strings.ToLower(strings.TrimSpace(in.SystemName))
	in.Category = strings.TrimSpace(in.Category)
	if in.Name == "" {
		return fmt.Errorf("permission name required: %w", shared.ErrValidation)
	}
	if in.SystemName == "" {
		return fmt.Errorf("permission system name required: %w", shared.ErrValidation)
	}
	return nil
}

// List returns the whole catalog.
func (s *Service) List(ctx context.Context) ([]Permission, error) {
	return s.repo.List(ctx)
}

// ListByCategory returns the catalog slice for one grouping label.
func (s *Service) ListByCategory(ctx context.Context, category string) ([]Permission, error) {
	return s.repo.ListByCategory(ctx, category)
}

// Get fetches one permission.
func (s *Service) Get(ctx context.Context, id int64) (Permission, error) {
	return s.repo.Get(ctx, id)
}

// ExistingIDs filters ids to those the catalog actually contains.
func (s *Service) ExistingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return s.repo.ExistingIDs(ctx, ids)
}

// Create inserts a new permission. The system name must be unused.
func (s *Service) Create(ctx context.Context, actorID int64, input Input) (Permission, error) {
	if err := input.normalize(); err != nil {
		return Permission{}, err
	}
	created, err := s.repo.Create(ctx, Permission{
		Name:        input.Name,
		Description: strings.TrimSpace(input.Description),
		Category:    input.Category,
		SystemName:  input.SystemName,
		IsActive:    input.IsActive,
	})
	if err != nil {
		return Permission{}, err
	}
	s.recordAudit(ctx, actorID, "PERMISSION_CREATE", created.ID, map[string]any{"system_name": created.SystemName})
	return created, nil
}

// Update overwrites an existing permission. Moving the system name onto one
// already owned by a different permission fails with DuplicateKey.
func (s *Service) Update(ctx context.Context, actorID int64, id int64, input Input) (Permission, error) {
	if err := input.normalize(); err != nil {
		return Permission{}, err
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return Permission{}, err
	}
	updated, err := s.repo.Update(ctx, Permission{
		ID:          id,
		Name:        input.Name,
		Description: strings.TrimSpace(input.Description),
		Category:    input.Category,
		SystemName:  input.SystemName,
		IsActive:    input.IsActive,
	})
	if err != nil {
		return Permission{}, err
	}
	s.recordAudit(ctx, actorID, "PERMISSION_UPDATE", id, map[string]any{"system_name": updated.SystemName})
	return updated, nil
}

// Delete removes a permission and every role binding referencing it, as one
// atomic unit. There is deliberately no in-use guard here: retiring a
// permission revokes it everywhere at once.
func (s *Service) Delete(ctx context.Context, actorID int64, id int64) error {
	var removedGrants int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		removed, err := tx.DeleteGrantsForPermission(ctx, id)
		if err != nil {
			return err
		}
		removedGrants = removed
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "PERMISSION_DELETE", id, map[string]any{"removed_grants": removedGrants})
	if s.sweeper != nil {
		if err := s.sweeper.EnqueueIntegritySweep(ctx); err != nil && s.logger != nil {
			s.logger.Warn("enqueue integrity sweep", slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "permission",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
