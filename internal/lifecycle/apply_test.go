package lifecycle_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
	"github.com/rafaeljc/tagflow/internal/testsupport"
)

func TestService_Apply_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		current  ruleengine.StatusTag
		req      lifecycle.ApplyRequest
		wantErr  error
		wantPrev ruleengine.StatusTag
	}{
		{
			name:    "Should reject a transition out of a terminal tag",
			current: ruleengine.TagChurned,
			req: lifecycle.ApplyRequest{
				CustomerID: "cust1", ToTag: ruleengine.TagProgressing,
				Reason: "manual bump", AppliedBy: lifecycle.AppliedByAuto,
			},
			wantErr:  lifecycle.ErrInvalidTransition,
			wantPrev: ruleengine.TagChurned,
		},
		{
			name:    "Should reject an edge absent from the catalog",
			current: ruleengine.TagActiveLearning,
			req: lifecycle.ApplyRequest{
				CustomerID: "cust1", ToTag: ruleengine.TagMastery,
				Reason: "skip ahead", AppliedBy: lifecycle.AppliedByAuto,
			},
			wantErr:  lifecycle.ErrInvalidTransition,
			wantPrev: ruleengine.TagActiveLearning,
		},
		{
			name:    "Should reject a manual churn when the rule forbids overrides",
			current: ruleengine.TagDecliningRisk,
			req: lifecycle.ApplyRequest{
				CustomerID: "cust1", ToTag: ruleengine.TagChurned,
				Reason: "customer asked", AppliedBy: "ops-42",
			},
			wantErr:  lifecycle.ErrManualOverrideNotAllowed,
			wantPrev: ruleengine.TagDecliningRisk,
		},
		{
			name:    "Should reject an unknown target tag",
			current: ruleengine.TagActiveLearning,
			req: lifecycle.ApplyRequest{
				CustomerID: "cust1", ToTag: "ST_999", AppliedBy: lifecycle.AppliedByAuto,
			},
			wantErr: lifecycle.ErrUnknownTag,
		},
		{
			name:    "Should reject when the tag moved since evaluation",
			current: ruleengine.TagProgressing,
			req: lifecycle.ApplyRequest{
				CustomerID: "cust1", ToTag: ruleengine.TagProgressing,
				AppliedBy: lifecycle.AppliedByAuto, ExpectedFrom: ruleengine.TagActiveLearning,
			},
			wantErr:  lifecycle.ErrStaleTag,
			wantPrev: ruleengine.TagProgressing,
		},
		{
			name:    "Should report unknown customers",
			current: ruleengine.TagActiveLearning,
			req: lifecycle.ApplyRequest{
				CustomerID: "ghost", ToTag: ruleengine.TagProgressing, AppliedBy: lifecycle.AppliedByAuto,
			},
			wantErr: lifecycle.ErrCustomerNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := testsupport.NewMemoryStore()
			actions := testsupport.NewRecordingActions()
			store.PutCustomer("cust1", tt.current, ruleengine.Metrics{})
			svc := newService(t, store, actions)

			res := svc.Apply(context.Background(), tt.req)

			assert.False(t, res.Success)
			assert.ErrorIs(t, res.Err, tt.wantErr)
			assert.NotEmpty(t, res.Error)
			assert.Equal(t, tt.wantPrev, res.PreviousTag)
			assert.Equal(t, tt.req.ToTag, res.NewTag, "new tag is reported even on failure")
			assert.Nil(t, res.Transition)

			assert.Empty(t, store.Transitions(), "nothing is written before validation passes")
			assert.Empty(t, actions.CallLog())
			assert.Equal(t, tt.current, store.Tag("cust1"))
		})
	}
}

func TestService_Apply_InvalidTransitionMessage(t *testing.T) {
	t.Parallel()

	store := testsupport.NewMemoryStore()
	store.PutCustomer("cust1", ruleengine.TagChurned, ruleengine.Metrics{})
	svc := newService(t, store, testsupport.NewRecordingActions())

	res := svc.Apply(context.Background(), lifecycle.ApplyRequest{
		CustomerID: "cust1",
		ToTag:      ruleengine.TagProgressing,
		Reason:     "manual bump",
		AppliedBy:  lifecycle.AppliedByAuto,
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Invalid transition")
	assert.Equal(t, ruleengine.TagChurned, res.PreviousTag)
	assert.Equal(t, ruleengine.TagProgressing, res.NewTag)
}

func TestService_Apply_Success(t *testing.T) {
	t.Parallel()

	store := testsupport.NewMemoryStore()
	actions := testsupport.NewRecordingActions()
	store.PutCustomer("cust1", ruleengine.TagActiveLearning, progressingMetrics())
	svc := newService(t, store, actions)

	confidence := 1.0
	res := svc.Apply(context.Background(), lifecycle.ApplyRequest{
		CustomerID:   "cust1",
		ToTag:        ruleengine.TagProgressing,
		Reason:       "rule matched",
		AppliedBy:    lifecycle.AppliedByAuto,
		Trigger:      lifecycle.TriggerDailySweep,
		ExpectedFrom: ruleengine.TagActiveLearning,
		Confidence:   &confidence,
	})

	require.True(t, res.Success, res.Error)
	assert.Empty(t, res.ActionErrors)
	assert.Equal(t, ruleengine.TagActiveLearning, res.PreviousTag)
	assert.Equal(t, ruleengine.TagProgressing, res.NewTag)

	require.NotNil(t, res.Transition)
	assert.NotEmpty(t, res.Transition.ID.String())
	assert.Equal(t, "progression_active_to_progressing", res.Transition.RuleID)
	assert.Equal(t, lifecycle.TriggerDailySweep, res.Transition.AutomationTrigger)

	// Projection and audit log move together.
	assert.Equal(t, ruleengine.TagProgressing, store.Tag("cust1"))
	require.Len(t, store.Transitions(), 1)

	// Progressing fires notify + unlock, then analytics.
	assert.Equal(t, []string{
		"notify:cust1:progress_milestone",
		"unlock_content:cust1:advanced-modules",
		"analytics:cust1",
	}, actions.CallLog())

	require.Len(t, actions.Events, 1)
	assert.Equal(t, ruleengine.TagActiveLearning, actions.Events[0].FromTag)
	assert.Positive(t, actions.Events[0].ElapsedMs)
}

func TestService_Apply_ManualOverride(t *testing.T) {
	t.Parallel()

	store := testsupport.NewMemoryStore()
	actions := testsupport.NewRecordingActions()
	store.PutCustomer("cust1", ruleengine.TagProgressing, ruleengine.Metrics{})
	svc := newService(t, store, actions)

	res := svc.Apply(context.Background(), lifecycle.ApplyRequest{
		CustomerID: "cust1",
		ToTag:      ruleengine.TagMastery,
		Reason:     "passed external exam",
		AppliedBy:  "ops-42",
		Trigger:    lifecycle.TriggerOperator,
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "ops-42", res.Transition.AppliedBy)
	assert.Contains(t, actions.CallLog(), "issue_certificate:cust1:ST_003")
}

func TestService_Apply_ActionFailureKeepsTransition(t *testing.T) {
	t.Parallel()

	var logBuffer bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuffer, nil))

	store := testsupport.NewMemoryStore()
	actions := testsupport.NewRecordingActions()
	actions.Fail["unlock_content"] = errors.New("lms timeout")
	actions.Fail["analytics"] = errors.New("stream full")
	store.PutCustomer("cust1", ruleengine.TagActiveLearning, progressingMetrics())

	svc := lifecycle.New(logger, ruleengine.DefaultCatalog(), ruleengine.New(logger),
		testsupport.Dependencies(store, actions))

	res := svc.Apply(context.Background(), lifecycle.ApplyRequest{
		CustomerID: "cust1",
		ToTag:      ruleengine.TagProgressing,
		AppliedBy:  lifecycle.AppliedByAuto,
	})

	assert.True(t, res.Success)
	assert.Equal(t, []string{"unlock_content: lms timeout", "analytics: stream full"}, res.ActionErrors)
	assert.Equal(t, ruleengine.TagProgressing, store.Tag("cust1"))
	assert.Len(t, store.Transitions(), 1)

	assert.Contains(t, logBuffer.String(), "tag action failed")
	assert.Contains(t, logBuffer.String(), "lms timeout")
}

func TestService_Apply_CommitFailure(t *testing.T) {
	t.Parallel()

	store := testsupport.NewMemoryStore()
	actions := testsupport.NewRecordingActions()
	store.PutCustomer("cust1", ruleengine.TagActiveLearning, progressingMetrics())
	store.CommitErr = errors.New("connection reset")
	svc := newService(t, store, actions)

	res := svc.Apply(context.Background(), lifecycle.ApplyRequest{
		CustomerID: "cust1",
		ToTag:      ruleengine.TagProgressing,
		AppliedBy:  lifecycle.AppliedByAuto,
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "connection reset")
	assert.Equal(t, ruleengine.TagActiveLearning, res.PreviousTag)
	assert.Empty(t, actions.CallLog(), "no actions fire without a committed transition")
}

func TestService_Apply_Metrics(t *testing.T) {
	store := testsupport.NewMemoryStore()
	store.PutCustomer("cust-metrics", ruleengine.TagChurned, ruleengine.Metrics{})
	svc := newService(t, store, testsupport.NewRecordingActions())

	labels := map[string]string{"applied_by": "manual", "status": "rejected"}
	testsupport.AssertMetricDelta(t, "tagflow_lifecycle_transitions_total", labels, 1, func() {
		svc.Apply(context.Background(), lifecycle.ApplyRequest{
			CustomerID: "cust-metrics",
			ToTag:      ruleengine.TagActiveLearning,
			AppliedBy:  "ops-1",
		})
	})
}
