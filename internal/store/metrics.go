package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
)

// metricColumns maps learning_metrics columns to catalog metrics, in table order.
var metricColumns = []ruleengine.Metric{
	ruleengine.MetricModulesCompleted,
	ruleengine.MetricAssessmentScoreAvg,
	ruleengine.MetricDaysSinceEnrollment,
	ruleengine.MetricDaysSinceLastLogin,
	ruleengine.MetricCourseCompletionRate,
	ruleengine.MetricEngagementDelta,
	ruleengine.MetricSessionsLast7Days,
	ruleengine.MetricLifetimeValue,
	ruleengine.MetricCustomerTier,
	ruleengine.MetricSubscriptionStatus,
}

func metricColumnList(alias string) string {
	cols := make([]string, len(metricColumns))
	for i, m := range metricColumns {
		cols[i] = alias + string(m)
	}
	return strings.Join(cols, ", ")
}

// GetMetrics reads the latest snapshot. NULL columns are left out of the
// result; a customer without a metrics row yields an empty snapshot.
func (s *PostgresStore) GetMetrics(ctx context.Context, customerID string) (ruleengine.Metrics, error) {
	query := `
		SELECT ` + metricColumnList("m.") + `
		FROM customers c
		LEFT JOIN learning_metrics m ON m.customer_id = c.id
		WHERE c.id = $1
	`

	nums := make([]*float64, len(metricColumns))
	texts := make([]*string, len(metricColumns))
	dest := make([]any, len(metricColumns))
	for i, m := range metricColumns {
		if kind, _ := m.Kind(); kind == ruleengine.KindText {
			dest[i] = &texts[i]
		} else {
			dest[i] = &nums[i]
		}
	}

	err := s.db.QueryRow(ctx, query, customerID).Scan(dest...)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrCustomerNotFound, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics for %s: %w", customerID, err)
	}

	out := make(ruleengine.Metrics, len(metricColumns))
	for i, m := range metricColumns {
		switch {
		case nums[i] != nil:
			out[m] = ruleengine.Number(*nums[i])
		case texts[i] != nil:
			out[m] = ruleengine.Text(*texts[i])
		}
	}
	return out, nil
}

// UpsertMetrics replaces the customer's snapshot. Metrics absent from m are
// stored as NULL.
func (s *PostgresStore) UpsertMetrics(ctx context.Context, customerID string, m ruleengine.Metrics) error {
	args := make([]any, 0, len(metricColumns)+1)
	args = append(args, customerID)
	placeholders := make([]string, len(metricColumns))
	updates := make([]string, len(metricColumns))

	for i, metric := range metricColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		updates[i] = fmt.Sprintf("%s = EXCLUDED.%s", metric, metric)

		v, ok := m[metric]
		if kind, _ := metric.Kind(); ok && v.Kind != kind {
			return fmt.Errorf("metric %s: expected %s, got %s", metric, kind, v.Kind)
		}
		switch {
		case !ok:
			args = append(args, nil)
		case v.Kind == ruleengine.KindText:
			args = append(args, v.Text)
		default:
			args = append(args, v.Num)
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO learning_metrics (customer_id, %s)
		VALUES ($1, %s)
		ON CONFLICT (customer_id) DO UPDATE SET %s, updated_at = now()
	`, metricColumnList(""), strings.Join(placeholders, ", "), strings.Join(updates, ", "))

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return fmt.Errorf("%w: %s", lifecycle.ErrCustomerNotFound, customerID)
		}
		return fmt.Errorf("failed to upsert metrics for %s: %w", customerID, err)
	}
	return nil
}
