package store

import (
	"context"
	"fmt"

	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
)

const profileColumns = `id, current_status_tag, tag_applied_at, tier, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*lifecycle.Profile, error) {
	var (
		p   lifecycle.Profile
		tag string
	)
	if err := row.Scan(&p.ID, &tag, &p.TagAppliedAt, &p.Tier, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.CurrentTag = ruleengine.StatusTag(tag)
	return &p, nil
}

// GetProfile returns lifecycle.ErrCustomerNotFound for unknown ids.
func (s *PostgresStore) GetProfile(ctx context.Context, customerID string) (*lifecycle.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM customers WHERE id = $1`

	p, err := scanProfile(s.db.QueryRow(ctx, query, customerID))
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrCustomerNotFound, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load customer %s: %w", customerID, err)
	}
	return p, nil
}

// ListActive pages active customers by id (keyset pagination).
func (s *PostgresStore) ListActive(ctx context.Context, afterID string, limit int) ([]*lifecycle.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM customers
		WHERE active AND id > $1
		ORDER BY id
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	profiles := make([]*lifecycle.Profile, 0, limit)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return profiles, nil
}

// UpsertCustomer creates the customer or updates its tier. The current tag
// is only set on insert; afterwards it moves through CommitTransition.
func (s *PostgresStore) UpsertCustomer(ctx context.Context, p *lifecycle.Profile) error {
	tag := p.CurrentTag
	if tag == "" {
		tag = ruleengine.InitialTag
	}
	tier := p.Tier
	if tier == "" {
		tier = "basic"
	}

	query := `
		INSERT INTO customers (id, current_status_tag, tier)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET tier = EXCLUDED.tier, updated_at = now()
		RETURNING current_status_tag, tag_applied_at, created_at
	`

	var current string
	err := s.db.QueryRow(ctx, query, p.ID, string(tag), tier).Scan(&current, &p.TagAppliedAt, &p.CreatedAt)
	if err != nil {
		if pgCode(err) == pgCheckViolation {
			return fmt.Errorf("%w: %s", lifecycle.ErrUnknownTag, tag)
		}
		return fmt.Errorf("failed to upsert customer %s: %w", p.ID, err)
	}
	p.CurrentTag = ruleengine.StatusTag(current)
	p.Tier = tier
	return nil
}
