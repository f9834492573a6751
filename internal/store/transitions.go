package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
)

// CommitTransition moves the current tag and appends the audit row in one
// transaction. The UPDATE is guarded by the expected from-tag, so a
// concurrent change makes it affect no rows and the commit fails with
// lifecycle.ErrStaleTag.
func (s *PostgresStore) CommitTransition(ctx context.Context, t *lifecycle.Transition) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE customers
		SET current_status_tag = $2, tag_applied_at = now(), updated_at = now()
		WHERE id = $1 AND current_status_tag = $3
	`, t.CustomerID, string(t.ToTag), string(t.FromTag))
	if err != nil {
		if pgCode(err) == pgCheckViolation {
			return fmt.Errorf("%w: %s", lifecycle.ErrUnknownTag, t.ToTag)
		}
		return fmt.Errorf("failed to update current tag: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, t.CustomerID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check customer: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", lifecycle.ErrCustomerNotFound, t.CustomerID)
		}
		return fmt.Errorf("%w: %s is no longer %s", lifecycle.ErrStaleTag, t.CustomerID, t.FromTag)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO status_transitions
			(id, customer_id, from_tag, to_tag, applied_by, reason, automation_trigger, rule_id, confidence_score)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)
		RETURNING created_at
	`,
		t.ID,
		t.CustomerID,
		string(t.FromTag),
		string(t.ToTag),
		t.AppliedBy,
		t.Reason,
		t.AutomationTrigger,
		t.RuleID,
		t.Confidence,
	).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}
	return nil
}

// ListTransitions returns the customer's transitions, newest first.
func (s *PostgresStore) ListTransitions(ctx context.Context, customerID string, limit int) ([]*lifecycle.Transition, error) {
	query := `
		SELECT id, customer_id, from_tag, to_tag, applied_by, reason,
		       COALESCE(automation_trigger, ''), COALESCE(rule_id, ''), confidence_score, created_at
		FROM status_transitions
		WHERE customer_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	out := make([]*lifecycle.Transition, 0, limit)
	for rows.Next() {
		var (
			t        lifecycle.Transition
			from, to string
		)
		if err := rows.Scan(
			&t.ID,
			&t.CustomerID,
			&from,
			&to,
			&t.AppliedBy,
			&t.Reason,
			&t.AutomationTrigger,
			&t.RuleID,
			&t.Confidence,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transition row: %w", err)
		}
		t.FromTag = ruleengine.StatusTag(from)
		t.ToTag = ruleengine.StatusTag(to)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}
