package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
)

const reviewColumns = `id, customer_id, evaluation, status, COALESCE(resolved_by, ''), created_at, resolved_at`

func scanReview(row rowScanner) (*lifecycle.Review, error) {
	var (
		r      lifecycle.Review
		raw    []byte
		status string
	)
	if err := row.Scan(&r.ID, &r.CustomerID, &raw, &status, &r.ResolvedBy, &r.CreatedAt, &r.ResolvedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &r.Evaluation); err != nil {
		return nil, fmt.Errorf("decode evaluation of review %d: %w", r.ID, err)
	}
	r.Status = lifecycle.ReviewStatus(status)
	return &r, nil
}

// Enqueue stores eval for sign-off. A customer has at most one pending
// review; a newer evaluation replaces the pending one.
func (s *PostgresStore) Enqueue(ctx context.Context, customerID string, eval ruleengine.Evaluation) (*lifecycle.Review, error) {
	payload, err := json.Marshal(eval)
	if err != nil {
		return nil, fmt.Errorf("encode evaluation: %w", err)
	}

	query := `
		INSERT INTO manual_reviews (customer_id, evaluation)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (customer_id) WHERE status = 'pending'
		DO UPDATE SET evaluation = EXCLUDED.evaluation, created_at = now()
		RETURNING ` + reviewColumns

	r, err := scanReview(s.db.QueryRow(ctx, query, customerID, string(payload)))
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return nil, fmt.Errorf("%w: %s", lifecycle.ErrCustomerNotFound, customerID)
		}
		return nil, fmt.Errorf("failed to enqueue review for %s: %w", customerID, err)
	}
	return r, nil
}

// ListPending returns the oldest pending reviews first.
func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]*lifecycle.Review, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM manual_reviews
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT $1
	`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	out := make([]*lifecycle.Review, 0, limit)
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// Resolve decides a pending review. The status guard in the UPDATE makes
// concurrent resolutions race safely: exactly one wins.
func (s *PostgresStore) Resolve(ctx context.Context, id int64, decision lifecycle.ReviewDecision, operator string) (*lifecycle.Review, error) {
	status := lifecycle.ReviewRejected
	if decision == lifecycle.DecisionApprove {
		status = lifecycle.ReviewApproved
	}

	query := `
		UPDATE manual_reviews
		SET status = $2, resolved_by = $3, resolved_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + reviewColumns

	r, err := scanReview(s.db.QueryRow(ctx, query, id, string(status), operator))
	if err == nil {
		return r, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("failed to resolve review %d: %w", id, err)
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM manual_reviews WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check review %d: %w", id, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %d", lifecycle.ErrReviewNotFound, id)
	}
	return nil, fmt.Errorf("%w: %d", lifecycle.ErrReviewResolved, id)
}
