// Package store implements the lifecycle storage ports on PostgreSQL with
// pgx: customer profiles, learning metrics, the append-only transition log,
// the manual review queue, and the dashboard aggregations.
package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/tagflow/internal/lifecycle"
)

var (
	_ lifecycle.ProfileStore    = (*PostgresStore)(nil)
	_ lifecycle.MetricsStore    = (*PostgresStore)(nil)
	_ lifecycle.TransitionStore = (*PostgresStore)(nil)
	_ lifecycle.ReviewQueue     = (*PostgresStore)(nil)
	_ lifecycle.DashboardQuery  = (*PostgresStore)(nil)
)

// Postgres error codes the store maps to domain errors.
const (
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// PostgresStore is the Postgres adapter for every lifecycle storage port.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	if db == nil {
		panic("store: database pool cannot be nil")
	}
	return &PostgresStore{db: db}
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
