package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
)

// StatusDistribution counts active customers per tag. Every tag is present,
// in declaration order, including empty ones.
func (s *PostgresStore) StatusDistribution(ctx context.Context) ([]lifecycle.TagCount, error) {
	rows, err := s.db.Query(ctx, `
		SELECT current_status_tag, count(*)
		FROM customers
		WHERE active
		GROUP BY current_status_tag
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count customers per tag: %w", err)
	}
	defer rows.Close()

	counts := make(map[ruleengine.StatusTag]int64)
	for rows.Next() {
		var (
			tag string
			n   int64
		)
		if err := rows.Scan(&tag, &n); err != nil {
			return nil, fmt.Errorf("failed to scan distribution row: %w", err)
		}
		counts[ruleengine.StatusTag(tag)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	out := make([]lifecycle.TagCount, 0, len(counts))
	for _, tag := range ruleengine.AllTags() {
		out = append(out, lifecycle.TagCount{Tag: tag, Name: tag.Name(), Count: counts[tag]})
	}
	return out, nil
}

// TransitionAnalytics aggregates transitions created at or after since,
// busiest edge first.
func (s *PostgresStore) TransitionAnalytics(ctx context.Context, since time.Time) ([]lifecycle.EdgeStat, error) {
	rows, err := s.db.Query(ctx, `
		SELECT from_tag, to_tag,
		       count(*),
		       count(*) FILTER (WHERE applied_by = $2),
		       count(*) FILTER (WHERE applied_by <> $2),
		       avg(confidence_score)
		FROM status_transitions
		WHERE created_at >= $1
		GROUP BY from_tag, to_tag
		ORDER BY count(*) DESC, from_tag, to_tag
	`, since, lifecycle.AppliedByAuto)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate transitions: %w", err)
	}
	defer rows.Close()

	var out []lifecycle.EdgeStat
	for rows.Next() {
		var (
			e        lifecycle.EdgeStat
			from, to string
		)
		if err := rows.Scan(&from, &to, &e.Total, &e.Automatic, &e.Manual, &e.AvgConfidence); err != nil {
			return nil, fmt.Errorf("failed to scan edge row: %w", err)
		}
		e.FromTag = ruleengine.StatusTag(from)
		e.ToTag = ruleengine.StatusTag(to)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CustomerHistory(ctx context.Context, customerID string, limit int) ([]*lifecycle.Transition, error) {
	return s.ListTransitions(ctx, customerID, limit)
}

func (s *PostgresStore) PendingReviewCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM manual_reviews WHERE status = 'pending'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending reviews: %w", err)
	}
	return n, nil
}
