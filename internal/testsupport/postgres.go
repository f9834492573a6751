// Package testsupport provides in-memory fakes of the lifecycle ports,
// Prometheus assertion helpers, and ephemeral Postgres/Redis containers for
// integration tests.
package testsupport

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rafaeljc/tagflow/internal/config"
	"github.com/rafaeljc/tagflow/internal/database"
)

// PostgresContainer is a migrated Postgres and a pool connected to it.
type PostgresContainer struct {
	Container        testcontainers.Container
	DB               *pgxpool.Pool
	ConnectionString string
}

// Terminate stops and removes the docker container.
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	c.DB.Close()
	return c.Container.Terminate(ctx)
}

// StartPostgresContainer runs postgres:16-alpine with every .sql file of
// migrationsDir applied in name order.
func StartPostgresContainer(ctx context.Context, migrationsDir string) (*PostgresContainer, error) {
	dir, err := filepath.Abs(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("migrations dir: %w", err)
	}
	migrations, err := getMigrationFiles(dir)
	switch {
	case err != nil:
		return nil, err
	case len(migrations) == 0:
		return nil, fmt.Errorf("no .sql migrations in %s", dir)
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("tagflow_test"),
		postgres.WithUsername("tagflow"),
		postgres.WithPassword("tagflow-test-pass"),
		postgres.WithInitScripts(migrations...),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(10*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("postgres connection string: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, &config.DatabaseConfig{
		URL:             connStr,
		MaxConns:        8,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  5 * time.Second,
		PingMaxRetries:  5,
		PingBackoff:     500 * time.Millisecond,
		ApplicationName: "tagflow-test",
	})
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	return &PostgresContainer{
		Container:        pgContainer,
		DB:               pool,
		ConnectionString: connStr,
	}, nil
}

// Reset truncates every table between subtests.
func (c *PostgresContainer) Reset(ctx context.Context) error {
	_, err := c.DB.Exec(ctx, `TRUNCATE manual_reviews, status_transitions, learning_metrics, customers RESTART IDENTITY CASCADE`)
	return err
}

// getMigrationFiles lists dir/*.sql in lexical order, which is also the
// order the numbered migrations must run in.
func getMigrationFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("bad migrations pattern: %w", err)
	}
	slices.Sort(files)
	return files, nil
}
