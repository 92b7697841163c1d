package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keystone-iam/keystone/internal/platform/db"
	"github.com/keystone-iam/keystone/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Create(ctx context.Context, role Role) (Role, error)
	CopyGrants(ctx context.Context, sourceID, targetID int64) (int64, error)
	DeleteGrants(ctx context.Context, roleID int64) (int64, error)
	Delete(ctx context.Context, roleID int64) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const roleColumns = `id, name, description, is_preset, is_active, created_by, created_at, updated_by, updated_at`

// List returns all roles ordered by name.
func (r *Repository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsPreset, &role.IsActive, &role.CreatedBy, &role.CreatedAt, &role.UpdatedBy, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// Get fetches a role by id.
func (r *Repository) Get(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.IsPreset, &role.IsActive, &role.CreatedBy, &role.CreatedAt, &role.UpdatedBy, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("role %d: %w", id, shared.ErrNotFound)
		}
		return Role{}, err
	}
	return role, nil
}

// Create inserts a new role.
func (r *Repository) Create(ctx context.Context, role Role) (Role, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, description, is_preset, is_active, created_by, created_at, updated_by, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		role.Name, role.Description, role.IsPreset, role.IsActive, role.CreatedBy, role.CreatedAt, role.UpdatedBy, role.UpdatedAt).Scan(&role.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, fmt.Errorf("role name %q: %w", role.Name, shared.ErrDuplicateKey)
		}
		return Role{}, err
	}
	return role, nil
}

// Update overwrites the mutable fields of an existing role.
func (r *Repository) Update(ctx context.Context, role Role) (Role, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE roles SET name = $2, description = $3, is_active = $4, updated_by = $5, updated_at = $6 WHERE id = $1`,
		role.ID, role.Name, role.Description, role.IsActive, role.UpdatedBy, role.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, fmt.Errorf("role name %q: %w", role.Name, shared.ErrDuplicateKey)
		}
		return Role{}, err
	}
	if tag.RowsAffected() == 0 {
		return Role{}, fmt.Errorf("role %d: %w", role.ID, shared.ErrNotFound)
	}
	return role, nil
}

// AssignmentCount reports how many users currently hold the role.
func (r *Repository) AssignmentCount(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_roles WHERE role_id = $1`, roleID).Scan(&count)
	return count, err
}

// Create inserts a role inside the transaction (used by Clone).
func (t *txRepo) Create(ctx context.Context, role Role) (Role, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO roles (name, description, is_preset, is_active, created_by, created_at, updated_by, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		role.Name, role.Description, role.IsPreset, role.IsActive, role.CreatedBy, role.CreatedAt, role.UpdatedBy, role.UpdatedAt).Scan(&role.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, fmt.Errorf("role name %q: %w", role.Name, shared.ErrDuplicateKey)
		}
		return Role{}, err
	}
	return role, nil
}

// CopyGrants deep-copies every binding row from source to target, keeping
// each row's is_active flag. The copy shares no storage with the source.
func (t *txRepo) CopyGrants(ctx context.Context, sourceID, targetID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id, is_active)
		 SELECT $2, permission_id, is_active FROM role_permissions WHERE role_id = $1`,
		sourceID, targetID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteGrants removes every binding row owned by the role.
func (t *txRepo) DeleteGrants(ctx context.Context, roleID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes the role record itself.
func (t *txRepo) Delete(ctx context.Context, roleID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("role %d: %w", roleID, shared.ErrNotFound)
	}
	return nil
}
