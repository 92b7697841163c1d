package assignments

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

// Get fetches the assignment for a user-role pair.
func (r *Repository) Get(ctx context.Context, userID, roleID int64) (Assignment, error) {
	var a Assignment
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, role_id, assigned_at FROM user_roles WHERE user_id = $1 AND role_id = $2`,
		userID, roleID).Scan(&a.ID, &a.UserID, &a.RoleID, &a.AssignedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, fmt.Errorf("assignment user %d role %d: %w", userID, roleID, shared.ErrNotFound)
		}
		return Assignment{}, err
	}
	return a, nil
}

// ListForUser returns the user's assignments joined with role detail.
func (r *Repository) ListForUser(ctx context.Context, userID int64) ([]AssignmentDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ur.id, ur.user_id, ur.role_id, r.name, r.is_active, r.is_preset, ur.assigned_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var details []AssignmentDetail
	for rows.Next() {
		var d AssignmentDetail
		if err := rows.Scan(&d.ID, &d.UserID, &d.RoleID, &d.RoleName, &d.RoleIsActive, &d.RoleIsPreset, &d.AssignedAt); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// Insert stores a new assignment.
func (r *Repository) Insert(ctx context.Context, a Assignment) (Assignment, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO user_roles (user_id, role_id, assigned_at) VALUES ($1, $2, $3) RETURNING id`,
		a.UserID, a.RoleID, a.AssignedAt).Scan(&a.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Assignment{}, fmt.Errorf("assignment user %d role %d: %w", a.UserID, a.RoleID, shared.ErrDuplicateKey)
		}
		return Assignment{}, err
	}
	return a, nil
}

// Delete removes an assignment row.
func (r *Repository) Delete(ctx context.Context, userID, roleID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("role %d not held by user %d: %w", roleID, userID, shared.ErrNotFound)
	}
	return nil
}
