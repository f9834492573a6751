package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rafaeljc/tagflow/internal/observability"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
)

// ReviewOutcome is the result of resolving a review. Result is set only for
// approvals.
type ReviewOutcome struct {
	Review *Review                 `json:"review"`
	Result *StatusTransitionResult `json:"result,omitempty"`
}

// EnqueueReview routes an evaluation to the manual review queue.
func (s *Service) EnqueueReview(ctx context.Context, eval ruleengine.Evaluation) (*Review, error) {
	if eval.Recommended == nil {
		return nil, ErrNothingToApply
	}

	review, err := s.deps.Reviews.Enqueue(ctx, eval.CustomerID, eval)
	if err != nil {
		return nil, fmt.Errorf("enqueue review for %s: %w", eval.CustomerID, err)
	}
	observability.ReviewsEnqueuedTotal.Inc()

	s.logger.Info("evaluation queued for manual review",
		slog.String("customer_id", eval.CustomerID),
		slog.Int64("review_id", review.ID),
		slog.String("to_tag", string(eval.Recommended.To)),
		slog.Any("reasons", eval.ReviewReasons),
	)
	return review, nil
}

// ResolveReview records an operator decision. An approval applies the
// reviewed recommendation on behalf of the operator; the rule's manual
// override flag does not apply since the engine proposed the transition.
func (s *Service) ResolveReview(ctx context.Context, id int64, decision ReviewDecision, operator string) (*ReviewOutcome, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, fmt.Errorf("unknown review decision %q", decision)
	}
	if operator == "" {
		return nil, errors.New("operator is required")
	}

	review, err := s.deps.Reviews.Resolve(ctx, id, decision, operator)
	if err != nil {
		return nil, fmt.Errorf("resolve review %d: %w", id, err)
	}

	out := &ReviewOutcome{Review: review}
	if decision == DecisionReject {
		s.logger.Info("review rejected", slog.Int64("review_id", id), slog.String("operator", operator))
		return out, nil
	}

	rec := review.Evaluation.Recommended
	if rec == nil {
		return out, ErrNothingToApply
	}

	confidence := rec.Confidence
	out.Result = s.Apply(ctx, ApplyRequest{
		CustomerID:   review.CustomerID,
		ToTag:        rec.To,
		Reason:       fmt.Sprintf("manual review %d approved (rule %s)", id, rec.RuleID),
		AppliedBy:    operator,
		Trigger:      TriggerManualReview,
		ExpectedFrom: rec.From,
		Confidence:   &confidence,
	})
	return out, nil
}
