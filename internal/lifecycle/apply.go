package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rafaeljc/tagflow/internal/observability"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
)

// ApplyRequest asks for a customer to be moved to ToTag.
type ApplyRequest struct {
	CustomerID string
	ToTag      ruleengine.StatusTag
	Reason     string

	// AppliedBy is AppliedByAuto or an operator id.
	AppliedBy string

	// Trigger records what caused the transition (e.g. TriggerDailySweep).
	Trigger string

	// ExpectedFrom, when set, must equal the re-read current tag. The sweeper
	// passes the tag it evaluated against so a concurrent change is not
	// silently overwritten.
	ExpectedFrom ruleengine.StatusTag

	Confidence *float64
}

// StatusTransitionResult is the outcome of Apply. PreviousTag and NewTag are
// always populated when known, including on failure.
type StatusTransitionResult struct {
	Success      bool                 `json:"success"`
	PreviousTag  ruleengine.StatusTag `json:"previous_tag"`
	NewTag       ruleengine.StatusTag `json:"new_tag"`
	Transition   *Transition          `json:"transition,omitempty"`
	Error        string               `json:"error,omitempty"`
	ActionErrors []string             `json:"action_errors,omitempty"`

	// Err is the underlying error for errors.Is checks.
	Err error `json:"-"`
}

func (r *StatusTransitionResult) fail(err error) *StatusTransitionResult {
	r.Success = false
	r.Err = err
	r.Error = err.Error()
	return r
}

// Apply validates and commits a transition, then dispatches the tag-entry
// actions and the analytics event. Failures are reported in the result and
// never returned past this boundary. Action and analytics failures are logged
// and do not undo the committed transition.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) *StatusTransitionResult {
	res := &StatusTransitionResult{NewTag: req.ToTag}
	actor := actorLabel(req.AppliedBy)

	log := s.logger.With(
		slog.String("customer_id", req.CustomerID),
		slog.String("to_tag", string(req.ToTag)),
		slog.String("applied_by", req.AppliedBy),
	)

	if err := s.validateRequest(req); err != nil {
		observability.TransitionsTotal.WithLabelValues(actor, "rejected").Inc()
		return res.fail(err)
	}

	// 1. Re-read the current tag
	profile, err := s.deps.Profiles.GetProfile(ctx, req.CustomerID)
	if err != nil {
		observability.TransitionsTotal.WithLabelValues(actor, statusFor(err)).Inc()
		return res.fail(fmt.Errorf("fetch profile: %w", err))
	}
	res.PreviousTag = profile.CurrentTag

	if req.ExpectedFrom != "" && profile.CurrentTag != req.ExpectedFrom {
		observability.TransitionsTotal.WithLabelValues(actor, "rejected").Inc()
		return res.fail(fmt.Errorf("%w: expected %s, found %s", ErrStaleTag, req.ExpectedFrom, profile.CurrentTag))
	}

	// 2. Validate against the catalog
	rule, ok := s.catalog.RuleFor(profile.CurrentTag, req.ToTag)
	if !ok {
		observability.TransitionsTotal.WithLabelValues(actor, "rejected").Inc()
		log.Info("transition rejected", slog.String("from_tag", string(profile.CurrentTag)))
		return res.fail(fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, profile.CurrentTag, req.ToTag))
	}
	if req.AppliedBy != AppliedByAuto && req.Trigger != TriggerManualReview && !rule.ManualOverrideAllowed {
		observability.TransitionsTotal.WithLabelValues(actor, "rejected").Inc()
		return res.fail(fmt.Errorf("%w: rule %s", ErrManualOverrideNotAllowed, rule.ID))
	}

	// 3. Commit atomically
	t := &Transition{
		CustomerID:        req.CustomerID,
		FromTag:           profile.CurrentTag,
		ToTag:             req.ToTag,
		AppliedBy:         req.AppliedBy,
		Reason:            req.Reason,
		AutomationTrigger: req.Trigger,
		RuleID:            rule.ID,
		Confidence:        req.Confidence,
	}
	if err := s.deps.Transitions.CommitTransition(ctx, t); err != nil {
		observability.TransitionsTotal.WithLabelValues(actor, statusFor(err)).Inc()
		log.Error("failed to commit transition", slog.String("error", err.Error()))
		return res.fail(fmt.Errorf("commit transition: %w", err))
	}
	res.Success = true
	res.Transition = t
	observability.TransitionsTotal.WithLabelValues(actor, "success").Inc()

	log.Info("transition applied",
		slog.String("from_tag", string(t.FromTag)),
		slog.String("rule_id", rule.ID),
		slog.String("transition_id", t.ID.String()),
	)

	// 4. Best-effort actions
	res.ActionErrors = s.dispatchActions(ctx, log, t, rule)

	// 5. Analytics
	elapsed := t.CreatedAt.Sub(profile.TagAppliedAt).Milliseconds()
	if elapsed < 0 || profile.TagAppliedAt.IsZero() {
		elapsed = 0
	}
	ev := TransitionEvent{
		CustomerID: t.CustomerID,
		FromTag:    t.FromTag,
		ToTag:      t.ToTag,
		AppliedBy:  t.AppliedBy,
		ElapsedMs:  elapsed,
		OccurredAt: t.CreatedAt,
	}
	if err := s.deps.Analytics.TrackStatusTransition(ctx, ev); err != nil {
		observability.ActionFailuresTotal.WithLabelValues("analytics").Inc()
		log.Warn("failed to track transition", slog.String("error", err.Error()))
		res.ActionErrors = append(res.ActionErrors, "analytics: "+err.Error())
	}

	return res
}

func (s *Service) validateRequest(req ApplyRequest) error {
	if req.CustomerID == "" {
		return errors.New("customer id is required")
	}
	if req.AppliedBy == "" {
		return errors.New("applied_by is required")
	}
	if !req.ToTag.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTag, req.ToTag)
	}
	return nil
}

// dispatchActions fires the side effects for entering t.ToTag and returns
// the failures as human-readable strings.
func (s *Service) dispatchActions(ctx context.Context, log *slog.Logger, t *Transition, rule *ruleengine.TransitionRule) []string {
	var failures []string

	for _, action := range s.catalog.ActionsFor(t.ToTag) {
		var err error
		switch action.Kind {
		case ruleengine.ActionNotify:
			err = s.deps.Notifier.SendNotification(ctx, Notification{
				CustomerID: t.CustomerID,
				Team:       rule.Notification.Team,
				Priority:   rule.Notification.Priority,
				Template:   rule.Notification.Template,
				FromTag:    t.FromTag,
				ToTag:      t.ToTag,
			})
		case ruleengine.ActionUnlockContent:
			err = s.deps.Content.UnlockContent(ctx, t.CustomerID, action.Target)
		case ruleengine.ActionIssueCertificate:
			err = s.deps.Certificates.IssueCertificate(ctx, t.CustomerID, t.ToTag)
		case ruleengine.ActionStartCampaign:
			err = s.deps.Campaigns.StartCampaign(ctx, t.CustomerID, action.Target)
		}

		if err != nil {
			observability.ActionFailuresTotal.WithLabelValues(string(action.Kind)).Inc()
			log.Warn("tag action failed",
				slog.String("action", string(action.Kind)),
				slog.String("target", action.Target),
				slog.String("error", err.Error()),
			)
			failures = append(failures, fmt.Sprintf("%s: %v", action.Kind, err))
		}
	}

	return failures
}

func actorLabel(appliedBy string) string {
	if appliedBy == AppliedByAuto {
		return "auto"
	}
	return "manual"
}

// statusFor separates business rejections from infrastructure failures.
func statusFor(err error) string {
	switch {
	case errors.Is(err, ErrCustomerNotFound), errors.Is(err, ErrStaleTag):
		return "rejected"
	default:
		return "error"
	}
}
