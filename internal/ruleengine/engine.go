package ruleengine

import (
	"log/slog"
	"time"
)

// DefaultReviewThreshold is the confidence below which a recommendation is
// routed to manual review.
const DefaultReviewThreshold = 0.7

// Engine is the orchestrator for lifecycle evaluation.
// It holds no per-customer state; Evaluate is a pure function of its inputs.
type Engine struct {
	strategies      map[Operator]ConditionEvaluator
	reviewThreshold float64
	schedule        Schedule
	logger          *slog.Logger // Dedicated logger instance (DI)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithReviewThreshold overrides DefaultReviewThreshold.
func WithReviewThreshold(t float64) Option {
	return func(e *Engine) {
		if t > 0 && t <= 1 {
			e.reviewThreshold = t
		}
	}
}

// WithSchedule overrides the re-evaluation cadence.
func WithSchedule(s Schedule) Option {
	return func(e *Engine) { e.schedule = s }
}

// New creates a new Engine.
// If logger is nil, it defaults to slog.Default().
func New(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		logger:          logger,
		reviewThreshold: DefaultReviewThreshold,
		schedule:        DefaultSchedule(),
		strategies: map[Operator]ConditionEvaluator{
			OpGreaterOrEqual: &ThresholdEvaluator{Op: OpGreaterOrEqual},
			OpLessOrEqual:    &ThresholdEvaluator{Op: OpLessOrEqual},
			OpLess:           &ThresholdEvaluator{Op: OpLess},
			OpEqual:          &EqualityEvaluator{},
			OpIn:             &MembershipEvaluator{},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate scores every rule leaving current against the metrics snapshot and
// selects the best fully satisfied rule. Ties are broken by catalog order.
func (e *Engine) Evaluate(catalog *Catalog, current StatusTag, metrics Metrics, now time.Time) Evaluation {
	eval := Evaluation{
		CurrentTag:  current,
		RuleResults: []RuleResult{},
		Terminal:    catalog.IsTerminal(current),
	}

	var (
		best     *TransitionRule
		bestConf float64
		metCount int
	)

	for _, rule := range catalog.RulesFrom(current) {
		result := e.evaluateRule(rule, metrics)
		eval.RuleResults = append(eval.RuleResults, result)

		if !result.ConditionsMet {
			continue
		}
		metCount++
		// Strictly greater: an equal score never displaces an earlier rule.
		if best == nil || result.Confidence > bestConf {
			best = rule
			bestConf = result.Confidence
		}
	}

	if best != nil {
		eval.Recommended = &Recommendation{
			RuleID:       best.ID,
			From:         current,
			To:           best.To,
			Confidence:   bestConf,
			Notification: best.Notification,
		}
		eval.Confidence = bestConf

		if metCount > 1 {
			eval.ReviewReasons = append(eval.ReviewReasons, ReviewAmbiguous)
		}
		if bestConf < e.reviewThreshold {
			eval.ReviewReasons = append(eval.ReviewReasons, ReviewLowConfidence)
		}
		if catalog.IsCritical(best.To) || catalog.IsCritical(current) {
			eval.ReviewReasons = append(eval.ReviewReasons, ReviewCriticalStatus)
		}
		eval.RequiresManualReview = len(eval.ReviewReasons) > 0
	}

	if !eval.Terminal {
		next := e.schedule.Next(current, metrics, now)
		eval.NextEvaluationDate = &next
	}

	return eval
}

// evaluateRule scores each condition. A rule is met only if every condition is
// met; its confidence is the mean of condition confidences either way.
func (e *Engine) evaluateRule(rule *TransitionRule, metrics Metrics) RuleResult {
	result := RuleResult{
		RuleID:        rule.ID,
		To:            rule.To,
		ConditionsMet: true,
		Conditions:    make([]ConditionResult, 0, len(rule.Conditions)),
	}

	var sum float64
	for _, cond := range rule.Conditions {
		cr := ConditionResult{
			Metric:   cond.Metric,
			Operator: cond.Operator,
			Expected: cond.Expected(),
		}

		actual, present := metrics[cond.Metric]
		kind, _ := cond.Metric.Kind()
		switch {
		case !present:
			// Missing metric: unmet with zero confidence.
			e.logger.Debug("metric missing from snapshot",
				"rule_id", rule.ID,
				"metric", cond.Metric,
			)
		case actual.Kind != kind:
			e.logger.Warn("metric has wrong kind, treating as unmet",
				"rule_id", rule.ID,
				"metric", cond.Metric,
				"expected", kind.String(),
				"got", actual.Kind.String(),
			)
		default:
			v := actual
			cr.Actual = &v
			strategy := e.strategies[cond.Operator]
			cr.Met, cr.Confidence = strategy.Eval(cond, actual)
		}

		if !cr.Met {
			result.ConditionsMet = false
		}
		sum += cr.Confidence
		result.Conditions = append(result.Conditions, cr)
	}

	result.Confidence = sum / float64(len(rule.Conditions))
	return result
}
