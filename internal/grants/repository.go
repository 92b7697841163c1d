package grants

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

// TxRepository exposes transactional operations used by Reconcile.
type TxRepository interface {
	Insert(ctx context.Context, grant Grant) error
	Delete(ctx context.Context, roleID, permissionID int64) error
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

// Get fetches one binding row.
func (r *Repository) Get(ctx context.Context, roleID, permissionID int64) (Grant, error) {
	var g Grant
	err := r.pool.QueryRow(ctx,
		`SELECT role_id, permission_id, is_active FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID).Scan(&g.RoleID, &g.PermissionID, &g.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Grant{}, fmt.Errorf("permission %d not granted to role %d: %w", permissionID, roleID, shared.ErrNotFound)
		}
		return Grant{}, err
	}
	return g, nil
}

// ListForRole returns the role's binding rows joined with permission detail.
func (r *Repository) ListForRole(ctx context.Context, roleID int64) ([]GrantDetail, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT rp.role_id, rp.permission_id, rp.is_active, p.system_name, p.name, p.category, p.is_active
		 FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE rp.role_id = $1
		 ORDER BY p.category, p.system_name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var details []GrantDetail
	for rows.Next() {
		var d GrantDetail
		if err := rows.Scan(&d.RoleID, &d.PermissionID, &d.IsActive, &d.SystemName, &d.Name, &d.Category, &d.PermissionActive); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// BoundIDs returns the permission ids currently bound to the role.
func (r *Repository) BoundIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Insert adds a new binding row.
func (r *Repository) Insert(ctx context.Context, grant Grant) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id, is_active) VALUES ($1, $2, $3)`,
		grant.RoleID, grant.PermissionID, grant.IsActive)
	return err
}

// SetActive toggles a binding row's suspension flag.
func (r *Repository) SetActive(ctx context.Context, roleID, permissionID int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE role_permissions SET is_active = $3 WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("permission %d not granted to role %d: %w", permissionID, roleID, shared.ErrNotFound)
	}
	return nil
}

// Delete removes a binding row outright.
func (r *Repository) Delete(ctx context.Context, roleID, permissionID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("permission %d not granted to role %d: %w", permissionID, roleID, shared.ErrNotFound)
	}
	return nil
}

func (t *txRepo) Insert(ctx context.Context, grant Grant) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id, is_active) VALUES ($1, $2, $3)`,
		grant.RoleID, grant.PermissionID, grant.IsActive)
	return err
}

func (t *txRepo) Delete(ctx context.Context, roleID, permissionID int64) error {
	_, err := t.tx.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID)
	return err
}
