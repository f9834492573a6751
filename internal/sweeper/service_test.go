package sweeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/tagflow/internal/config"
	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
	"github.com/rafaeljc/tagflow/internal/testsupport"
)

var sweepTime = time.Date(2026, 5, 4, 3, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.SweeperConfig {
	return config.SweeperConfig{
		BatchSize:          50,
		RunHourUTC:         2,
		TickInterval:       time.Minute,
		LockTTL:            time.Hour,
		ShardCount:         1,
		AutoApplyThreshold: 0.8,
	}
}

type fixture struct {
	store   *testsupport.MemoryStore
	actions *testsupport.RecordingActions
	svc     *lifecycle.Service
}

func newFixture() *fixture {
	store := testsupport.NewMemoryStore()
	actions := testsupport.NewRecordingActions()
	svc := lifecycle.New(quietLogger(), ruleengine.DefaultCatalog(), ruleengine.New(quietLogger()),
		testsupport.Dependencies(store, actions),
		lifecycle.WithClock(func() time.Time { return sweepTime }),
	)
	return &fixture{store: store, actions: actions, svc: svc}
}

func (f *fixture) sweeper(cfg config.SweeperConfig, coord Coordinator) *Service {
	return New(quietLogger(), cfg, f.store, f.svc, coord, WithClock(func() time.Time { return sweepTime }))
}

func readyToProgress() ruleengine.Metrics {
	return ruleengine.Metrics{
		ruleengine.MetricModulesCompleted:    ruleengine.Number(4),
		ruleengine.MetricAssessmentScoreAvg:  ruleengine.Number(82),
		ruleengine.MetricDaysSinceEnrollment: ruleengine.Number(20),
		ruleengine.MetricDaysSinceLastLogin:  ruleengine.Number(1),
	}
}

func slipping() ruleengine.Metrics {
	return ruleengine.Metrics{
		ruleengine.MetricDaysSinceLastLogin: ruleengine.Number(21),
		ruleengine.MetricEngagementDelta:    ruleengine.Number(-0.45),
	}
}

func idle() ruleengine.Metrics {
	return ruleengine.Metrics{
		ruleengine.MetricModulesCompleted:   ruleengine.Number(1),
		ruleengine.MetricDaysSinceLastLogin: ruleengine.Number(2),
	}
}

func TestRunDailyEvaluation_MixedPopulation(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.PutCustomer("a-progress", ruleengine.TagActiveLearning, readyToProgress())
	f.store.PutCustomer("b-slipping", ruleengine.TagProgressing, slipping())
	f.store.PutCustomer("c-idle", ruleengine.TagActiveLearning, idle())
	f.store.PutCustomer("d-churned", ruleengine.TagChurned, idle())
	f.store.PutCustomer("e-broken", ruleengine.TagActiveLearning, idle())
	f.store.MetricsErr["e-broken"] = errors.New("metrics backend down")

	report, err := f.sweeper(testConfig(), nil).RunDailyEvaluation(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalEvaluated, "terminal customers are not evaluated")
	assert.Equal(t, 1, report.TransitionsApplied)
	assert.Equal(t, 1, report.ManualReviews)
	assert.Equal(t, 1, report.NoChange)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 1, report.SkippedTerminal)
	assert.True(t, report.Balanced())
	assert.False(t, report.Cancelled)
	assert.NotEmpty(t, report.SweepID)

	byID := map[string]CustomerResult{}
	for _, r := range report.Results {
		byID[r.CustomerID] = r
	}
	assert.Equal(t, ActionApplied, byID["a-progress"].Action)
	assert.Equal(t, ruleengine.TagProgressing, byID["a-progress"].ToTag)
	assert.Equal(t, ActionManualReview, byID["b-slipping"].Action)
	assert.NotZero(t, byID["b-slipping"].ReviewID)
	assert.Equal(t, ActionNoChange, byID["c-idle"].Action)
	assert.Equal(t, ActionSkippedTerminal, byID["d-churned"].Action)
	assert.Equal(t, ActionError, byID["e-broken"].Action)
	assert.Contains(t, byID["e-broken"].Error, "metrics backend down")

	assert.Equal(t, ruleengine.TagProgressing, f.store.Tag("a-progress"))
	assert.Equal(t, ruleengine.TagProgressing, f.store.Tag("b-slipping"), "critical transitions wait for review")

	transitions := f.store.Transitions()
	require.Len(t, transitions, 1)
	assert.Equal(t, lifecycle.AppliedByAuto, transitions[0].AppliedBy)
	assert.Equal(t, lifecycle.TriggerDailySweep, transitions[0].AutomationTrigger)
	require.NotNil(t, transitions[0].Confidence)
	assert.Equal(t, 1.0, *transitions[0].Confidence)

	reviews := f.store.Reviews()
	require.Len(t, reviews, 1)
	assert.Equal(t, "b-slipping", reviews[0].CustomerID)
}

func TestRunDailyEvaluation_PagesInBatches(t *testing.T) {
	t.Parallel()

	f := newFixture()
	for i := range 120 {
		f.store.PutCustomer(fmt.Sprintf("cust-%03d", i), ruleengine.TagActiveLearning, idle())
	}
	var pages []int
	f.store.OnList = func(page int) { pages = append(pages, page) }

	report, err := f.sweeper(testConfig(), nil).RunDailyEvaluation(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, pages, "50 + 50 + 20, the short page ends the sweep")
	assert.Equal(t, 120, report.TotalEvaluated)
	assert.Equal(t, 120, report.NoChange)
	assert.True(t, report.Balanced())
}

func TestRunDailyEvaluation_CancelledBetweenBatches(t *testing.T) {
	t.Parallel()

	f := newFixture()
	for i := range 75 {
		f.store.PutCustomer(fmt.Sprintf("cust-%03d", i), ruleengine.TagActiveLearning, readyToProgress())
	}

	cfg := testConfig()
	cfg.BatchDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan *DailyEvaluationReport, 1)
	go func() {
		report, _ := f.sweeper(cfg, nil).RunDailyEvaluation(ctx)
		done <- report
	}()

	require.Eventually(t, func() bool {
		return len(f.store.Transitions()) == 50
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	var report *DailyEvaluationReport
	select {
	case report = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not stop after cancellation")
	}

	assert.True(t, report.Cancelled)
	assert.Equal(t, 50, report.TotalEvaluated)
	assert.Equal(t, 50, report.TransitionsApplied)
	assert.True(t, report.Balanced())
	assert.Len(t, f.store.Transitions(), 50, "second batch never started")
}

func TestRunDailyEvaluation_ShardsPartitionCustomers(t *testing.T) {
	t.Parallel()

	f := newFixture()
	for i := range 40 {
		f.store.PutCustomer(fmt.Sprintf("cust-%03d", i), ruleengine.TagActiveLearning, idle())
	}

	seen := map[string]int{}
	total := 0
	for shard := range 2 {
		cfg := testConfig()
		cfg.ShardIndex, cfg.ShardCount = shard, 2

		report, err := f.sweeper(cfg, nil).RunDailyEvaluation(context.Background())
		require.NoError(t, err)
		total += report.TotalEvaluated
		for _, r := range report.Results {
			seen[r.CustomerID]++
		}
	}

	assert.Equal(t, 40, total)
	assert.Len(t, seen, 40)
	for id, n := range seen {
		assert.Equal(t, 1, n, "customer %s swept by more than one shard", id)
	}
}

func TestRunDailyEvaluation_ApplyFailureIsAnError(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.PutCustomer("cust-1", ruleengine.TagActiveLearning, readyToProgress())
	f.store.CommitErr = errors.New("deadlock detected")

	report, err := f.sweeper(testConfig(), nil).RunDailyEvaluation(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, ActionError, report.Results[0].Action)
	assert.Contains(t, report.Results[0].Error, "deadlock detected")
	assert.Equal(t, 1, report.Errors)
	assert.True(t, report.Balanced())
}

func TestRunDailyEvaluation_BelowAutoApplyThresholdIsNoChange(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.PutCustomer("cust-1", ruleengine.TagActiveLearning, readyToProgress())

	cfg := testConfig()
	cfg.AutoApplyThreshold = 1
	report, err := f.sweeper(cfg, nil).RunDailyEvaluation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TransitionsApplied, "a met rule scores exactly 1.0")

	f2 := newFixture()
	f2.store.PutCustomer("cust-1", ruleengine.TagActiveLearning, readyToProgress())
	s := f2.sweeper(testConfig(), nil)
	s.config.AutoApplyThreshold = 1.01
	report, err = s.RunDailyEvaluation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.NoChange)
	assert.Empty(t, f2.store.Transitions())
}

// panickyLifecycle panics while evaluating one customer.
type panickyLifecycle struct {
	Lifecycle
	victim string
}

func (p *panickyLifecycle) EvaluateProfile(ctx context.Context, prof *lifecycle.Profile) (*ruleengine.Evaluation, error) {
	if prof.ID == p.victim {
		panic("nil metrics map")
	}
	return p.Lifecycle.EvaluateProfile(ctx, prof)
}

func TestRunDailyEvaluation_RecoversPerCustomerPanics(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.PutCustomer("cust-1", ruleengine.TagActiveLearning, idle())
	f.store.PutCustomer("cust-2", ruleengine.TagActiveLearning, idle())

	s := New(quietLogger(), testConfig(), f.store, &panickyLifecycle{Lifecycle: f.svc, victim: "cust-1"}, nil)
	report, err := s.RunDailyEvaluation(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 1, report.NoChange)
	assert.Contains(t, report.Results[0].Error, "panic: nil metrics map")
}

func TestRunDailyEvaluation_ListFailureStillReports(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.ListErr = errors.New("connection refused")

	report, err := f.sweeper(testConfig(), nil).RunDailyEvaluation(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	require.NotNil(t, report)
	assert.Zero(t, report.TotalEvaluated)
	assert.False(t, report.FinishedAt.IsZero())
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture()
	assert.Panics(t, func() { New(nil, testConfig(), nil, f.svc, nil) })
	assert.Panics(t, func() { New(nil, testConfig(), f.store, nil, nil) })

	s := New(nil, config.SweeperConfig{}, f.store, f.svc, nil)
	assert.Equal(t, 50, s.config.BatchSize)
	assert.Equal(t, 1, s.config.ShardCount)
	assert.Equal(t, 0.8, s.config.AutoApplyThreshold)
	assert.Equal(t, "0-of-1", ShardName(s.config))

	assert.Panics(t, func() { _ = s.Run(context.Background()) }, "Run needs a coordinator")
}
