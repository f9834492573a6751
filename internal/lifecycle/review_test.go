package lifecycle_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
	"github.com/rafaeljc/tagflow/internal/testsupport"
)

func decliningMetrics() ruleengine.Metrics {
	return ruleengine.Metrics{
		ruleengine.MetricDaysSinceLastLogin: ruleengine.Number(75),
		ruleengine.MetricSubscriptionStatus: ruleengine.Text("cancelled"),
	}
}

func TestService_ResolveReview(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T) (*lifecycle.Service, *testsupport.MemoryStore, *lifecycle.Review) {
		t.Helper()

		store := testsupport.NewMemoryStore()
		store.PutCustomer("cust1", ruleengine.TagDecliningRisk, decliningMetrics())
		svc := newService(t, store, testsupport.NewRecordingActions())

		eval, err := svc.Evaluate(context.Background(), "cust1")
		require.NoError(t, err)
		require.True(t, eval.RequiresManualReview)

		review, err := svc.EnqueueReview(context.Background(), *eval)
		require.NoError(t, err)
		return svc, store, review
	}

	t.Run("Should apply the recommendation on approval even without manual override", func(t *testing.T) {
		t.Parallel()
		svc, store, review := setup(t)

		out, err := svc.ResolveReview(context.Background(), review.ID, lifecycle.DecisionApprove, "ops-7")
		require.NoError(t, err)

		assert.Equal(t, lifecycle.ReviewApproved, out.Review.Status)
		require.NotNil(t, out.Result)
		require.True(t, out.Result.Success, out.Result.Error)
		assert.Equal(t, "ops-7", out.Result.Transition.AppliedBy)
		assert.Equal(t, lifecycle.TriggerManualReview, out.Result.Transition.AutomationTrigger)
		assert.Equal(t, ruleengine.TagChurned, store.Tag("cust1"))
	})

	t.Run("Should leave the customer untouched on rejection", func(t *testing.T) {
		t.Parallel()
		svc, store, review := setup(t)

		out, err := svc.ResolveReview(context.Background(), review.ID, lifecycle.DecisionReject, "ops-7")
		require.NoError(t, err)

		assert.Equal(t, lifecycle.ReviewRejected, out.Review.Status)
		assert.Nil(t, out.Result)
		assert.Equal(t, ruleengine.TagDecliningRisk, store.Tag("cust1"))
	})

	t.Run("Should refuse to resolve twice", func(t *testing.T) {
		t.Parallel()
		svc, _, review := setup(t)

		_, err := svc.ResolveReview(context.Background(), review.ID, lifecycle.DecisionReject, "ops-7")
		require.NoError(t, err)

		_, err = svc.ResolveReview(context.Background(), review.ID, lifecycle.DecisionApprove, "ops-8")
		assert.ErrorIs(t, err, lifecycle.ErrReviewResolved)
	})

	t.Run("Should report a stale review when the tag moved", func(t *testing.T) {
		t.Parallel()
		svc, store, review := setup(t)
		store.SetTag("cust1", ruleengine.TagReengagement)

		out, err := svc.ResolveReview(context.Background(), review.ID, lifecycle.DecisionApprove, "ops-7")
		require.NoError(t, err)
		assert.False(t, out.Result.Success)
		assert.ErrorIs(t, out.Result.Err, lifecycle.ErrStaleTag)
	})

	t.Run("Should validate decision and operator", func(t *testing.T) {
		t.Parallel()
		svc, _, review := setup(t)

		_, err := svc.ResolveReview(context.Background(), review.ID, "maybe", "ops-7")
		assert.Error(t, err)

		_, err = svc.ResolveReview(context.Background(), review.ID, lifecycle.DecisionApprove, "")
		assert.Error(t, err)

		_, err = svc.ResolveReview(context.Background(), 999, lifecycle.DecisionApprove, "ops-7")
		assert.ErrorIs(t, err, lifecycle.ErrReviewNotFound)
	})
}

func TestService_EnqueueReview_RequiresRecommendation(t *testing.T) {
	t.Parallel()

	svc := newService(t, testsupport.NewMemoryStore(), testsupport.NewRecordingActions())

	_, err := svc.EnqueueReview(context.Background(), ruleengine.Evaluation{CustomerID: "cust1"})
	assert.ErrorIs(t, err, lifecycle.ErrNothingToApply)
}
