package jobs

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/keystone-iam/keystone/internal/jobs"
)

// IntegritySweeper removes binding rows whose role, permission or user no
// longer exists. Domain deletes cascade inside their own transaction, so a
// sweep normally finds nothing; it exists to repair drift from manual data
// surgery or interrupted migrations.
type IntegritySweeper struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewIntegritySweeper constructs a sweeper.
func NewIntegritySweeper(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegritySweeper {
	return &IntegritySweeper{pool: pool, logger: logger, metrics: metrics}
}

// Run executes one sweep.
func (s *IntegritySweeper) Run(ctx context.Context) error {
	return s.metrics.Track("catalog_integrity_sweep").End(s.run(ctx))
}

func (s *IntegritySweeper) run(ctx context.Context) error {
	orphanGrants, err := s.sweep(ctx, `
		DELETE FROM role_permissions rp
		WHERE NOT EXISTS (SELECT 1 FROM roles r WHERE r.id = rp.role_id)
		   OR NOT EXISTS (SELECT 1 FROM permissions p WHERE p.id = rp.permission_id)`)
	if err != nil {
		return err
	}
	orphanAssignments, err := s.sweep(ctx, `
		DELETE FROM user_roles ur
		WHERE NOT EXISTS (SELECT 1 FROM users u WHERE u.id = ur.user_id)
		   OR NOT EXISTS (SELECT 1 FROM roles r WHERE r.id = ur.role_id)`)
	if err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Info("catalog integrity sweep finished",
			slog.Int64("orphan_grants", orphanGrants),
			slog.Int64("orphan_assignments", orphanAssignments))
	}
	return nil
}

func (s *IntegritySweeper) sweep(ctx context.Context, query string) (int64, error) {
	tag, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
