package rbac

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository answers permission-resolution queries. Every query applies the
// same three activity filters: the role, the grant row and the permission
// itself must all be active for a permission to count.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const effectiveJoin = `
	FROM user_roles ur
	JOIN roles r ON r.id = ur.role_id AND r.is_active
	JOIN role_permissions rp ON rp.role_id = ur.role_id AND rp.is_active
	JOIN permissions p ON p.id = rp.permission_id AND p.is_active`

// UserPermissions returns the distinct system names of every permission the
// user holds through an active role, an active grant and an active permission.
func (r *Repository) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT p.system_name`+effectiveJoin+` WHERE ur.user_id = $1 ORDER BY p.system_name`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// HasPermission reports whether the user effectively holds one permission.
func (r *Repository) HasPermission(ctx context.Context, userID int64, systemName string) (bool, error) {
	var held bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1`+effectiveJoin+` WHERE ur.user_id = $1 AND p.system_name = $2)`,
		userID, systemName).Scan(&held)
	return held, err
}
