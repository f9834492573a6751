package lifecycle_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
	"github.com/rafaeljc/tagflow/internal/testsupport"
)

var fixedNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T, store *testsupport.MemoryStore, actions *testsupport.RecordingActions) *lifecycle.Service {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return lifecycle.New(
		logger,
		ruleengine.DefaultCatalog(),
		ruleengine.New(logger),
		testsupport.Dependencies(store, actions),
		lifecycle.WithClock(func() time.Time { return fixedNow }),
	)
}

func progressingMetrics() ruleengine.Metrics {
	return ruleengine.Metrics{
		ruleengine.MetricModulesCompleted:    ruleengine.Number(3),
		ruleengine.MetricAssessmentScoreAvg:  ruleengine.Number(80),
		ruleengine.MetricDaysSinceEnrollment: ruleengine.Number(10),
	}
}

func TestNew_PanicsOnMissingDependencies(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps := testsupport.Dependencies(testsupport.NewMemoryStore(), testsupport.NewRecordingActions())

	assert.PanicsWithValue(t, "critical error: rule catalog cannot be nil", func() {
		lifecycle.New(logger, nil, ruleengine.New(logger), deps)
	})

	tests := []struct {
		name   string
		mutate func(d *lifecycle.Dependencies)
		want   string
	}{
		{
			name:   "nil analytics sink",
			mutate: func(d *lifecycle.Dependencies) { d.Analytics = nil },
			want:   "critical error: analytics sink cannot be nil",
		},
		{
			name: "typed nil notifier",
			mutate: func(d *lifecycle.Dependencies) {
				var actions *testsupport.RecordingActions
				d.Notifier = actions
			},
			want: "critical error: notifier cannot be nil",
		},
		{
			name: "typed nil transition store",
			mutate: func(d *lifecycle.Dependencies) {
				var store *testsupport.MemoryStore
				d.Transitions = store
			},
			want: "critical error: transition store cannot be nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			missing := deps
			tt.mutate(&missing)
			assert.PanicsWithValue(t, tt.want, func() {
				lifecycle.New(logger, ruleengine.DefaultCatalog(), ruleengine.New(logger), missing)
			})
		})
	}
}

func TestService_Evaluate(t *testing.T) {
	t.Parallel()

	t.Run("Should recommend progression for a qualifying learner", func(t *testing.T) {
		t.Parallel()

		store := testsupport.NewMemoryStore()
		store.PutCustomer("cust1", ruleengine.TagActiveLearning, progressingMetrics())
		svc := newService(t, store, testsupport.NewRecordingActions())

		eval, err := svc.Evaluate(context.Background(), "cust1")
		require.NoError(t, err)

		assert.Equal(t, "cust1", eval.CustomerID)
		require.NotNil(t, eval.Recommended)
		assert.Equal(t, ruleengine.TagProgressing, eval.Recommended.To)
		assert.Equal(t, 1.0, eval.Confidence)
		assert.False(t, eval.RequiresManualReview)

		require.NotNil(t, eval.NextEvaluationDate)
		assert.Equal(t, time.Date(2026, 5, 7, 0, 0, 0, 0, time.UTC), *eval.NextEvaluationDate)
	})

	t.Run("Should not write anything", func(t *testing.T) {
		t.Parallel()

		store := testsupport.NewMemoryStore()
		actions := testsupport.NewRecordingActions()
		store.PutCustomer("cust1", ruleengine.TagActiveLearning, progressingMetrics())
		svc := newService(t, store, actions)

		_, err := svc.Evaluate(context.Background(), "cust1")
		require.NoError(t, err)

		assert.Empty(t, store.Transitions())
		assert.Empty(t, store.Reviews())
		assert.Empty(t, actions.CallLog())
		assert.Equal(t, ruleengine.TagActiveLearning, store.Tag("cust1"))
	})

	t.Run("Should return ErrCustomerNotFound for unknown customers", func(t *testing.T) {
		t.Parallel()

		svc := newService(t, testsupport.NewMemoryStore(), testsupport.NewRecordingActions())

		eval, err := svc.Evaluate(context.Background(), "ghost")
		assert.Nil(t, eval)
		assert.ErrorIs(t, err, lifecycle.ErrCustomerNotFound)
	})

	t.Run("Should propagate metrics fetch failures", func(t *testing.T) {
		t.Parallel()

		store := testsupport.NewMemoryStore()
		store.PutCustomer("cust1", ruleengine.TagActiveLearning, progressingMetrics())
		boom := errors.New("metrics warehouse unavailable")
		store.MetricsErr["cust1"] = boom
		svc := newService(t, store, testsupport.NewRecordingActions())

		_, err := svc.Evaluate(context.Background(), "cust1")
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "fetch metrics")
	})
}
