package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RequiredTables must exist before a binary reports ready; a pod started
// against an unmigrated database stays out of rotation.
var RequiredTables = []string{"customers", "learning_metrics", "status_transitions", "manual_reviews"}

// HealthChecker reports Postgres readiness: reachable and migrated.
type HealthChecker struct {
	pool   *pgxpool.Pool
	tables []string
}

func NewHealthChecker(pool *pgxpool.Pool) *HealthChecker {
	return &HealthChecker{pool: pool, tables: RequiredTables}
}

func (h *HealthChecker) Name() string {
	return "postgres"
}

// Check blocks up to ctx when the pool is exhausted.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.pool == nil {
		return errors.New("database pool is nil")
	}

	var missing []string
	err := h.pool.QueryRow(ctx, `
		SELECT COALESCE(array_agg(t), '{}')
		FROM unnest($1::text[]) AS t
		WHERE to_regclass(t) IS NULL`, h.tables).Scan(&missing)
	if err != nil {
		return fmt.Errorf("postgres unreachable: %w", err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema not migrated: missing %s", strings.Join(missing, ", "))
	}
	return nil
}
