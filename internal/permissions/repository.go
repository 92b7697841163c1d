package permissions

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
	DeleteGrantsForPermission(ctx context.Context, permissionID int64) (int64, error)
	Delete(ctx context.Context, id int64) error
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

const permissionColumns = `id, name, description, category, system_name, is_active`

// List returns all permissions ordered by category then system name.
func (r *Repository) List(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY category, system_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// ListByCategory returns permissions in one category.
func (r *Repository) ListByCategory(ctx context.Context, category string) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE category = $1 ORDER BY system_name`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// Get fetches a permission by id.
func (r *Repository) Get(ctx context.Context, id int64) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.SystemName, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, fmt.Errorf("permission %d: %w", id, shared.ErrNotFound)
		}
		return Permission{}, err
	}
	return p, nil
}

// ExistingIDs filters ids down to those present in the catalog.
func (r *Repository) ExistingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM permissions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var found []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found = append(found, id)
	}
	return found, rows.Err()
}

// Create inserts a new permission.
func (r *Repository) Create(ctx context.Context, p Permission) (Permission, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (name, description, category, system_name, is_active)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.Name, p.Description, p.Category, p.SystemName, p.IsActive).Scan(&p.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Permission{}, fmt.Errorf("permission system name %q: %w", p.SystemName, shared.ErrDuplicateKey)
		}
		return Permission{}, err
	}
	return p, nil
}

// Update overwrites an existing permission.
func (r *Repository) Update(ctx context.Context, p Permission) (Permission, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE permissions SET name = $2, description = $3, category = $4, system_name = $5, is_active = $6 WHERE id = $1`,
		p.ID, p.Name, p.Description, p.Category, p.SystemName, p.IsActive)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Permission{}, fmt.Errorf("permission system name %q: %w", p.SystemName, shared.ErrDuplicateKey)
		}
		return Permission{}, err
	}
	if tag.RowsAffected() == 0 {
		return Permission{}, fmt.Errorf("permission %d: %w", p.ID, shared.ErrNotFound)
	}
	return p, nil
}

// DeleteGrantsForPermission removes every binding row referencing the permission.
func (t *txRepo) DeleteGrantsForPermission(ctx context.Context, permissionID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM role_permissions WHERE permission_id = $1`, permissionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes the permission record itself.
func (t *txRepo) Delete(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("permission %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func scanPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.SystemName, &p.IsActive); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
