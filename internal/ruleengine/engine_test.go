package ruleengine

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var evalTime = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

func quietEngine() *Engine {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEngine_Evaluate_Scenarios(t *testing.T) {
	t.Parallel()

	catalog := DefaultCatalog()

	tests := []struct {
		name        string
		current     StatusTag
		metrics     Metrics
		wantTo      StatusTag // empty means no recommendation
		wantConf    float64
		wantReview  bool
		wantReasons []ReviewReason
	}{
		{
			name:    "Should recommend Progressing when every progression condition is met",
			current: TagActiveLearning,
			metrics: Metrics{
				MetricModulesCompleted:    Number(3),
				MetricAssessmentScoreAvg:  Number(80),
				MetricDaysSinceEnrollment: Number(10),
			},
			wantTo:     TagProgressing,
			wantConf:   1.0,
			wantReview: false,
		},
		{
			name:    "Should not recommend anything when no rule is fully satisfied",
			current: TagActiveLearning,
			metrics: Metrics{
				MetricModulesCompleted:    Number(1),
				MetricAssessmentScoreAvg:  Number(50),
				MetricDaysSinceEnrollment: Number(10),
			},
		},
		{
			name:    "Should require review when leaving Declining-Risk even at full confidence",
			current: TagDecliningRisk,
			metrics: Metrics{
				MetricDaysSinceLastLogin: Number(1),
				MetricSessionsLast7Days:  Number(4),
			},
			wantTo:      TagReengagement,
			wantConf:    1.0,
			wantReview:  true,
			wantReasons: []ReviewReason{ReviewCriticalStatus},
		},
		{
			name:    "Should require review when entering Declining-Risk",
			current: TagProgressing,
			metrics: Metrics{
				MetricDaysSinceLastLogin:   Number(20),
				MetricEngagementDelta:      Number(-0.5),
				MetricCourseCompletionRate: Number(0.2),
				MetricAssessmentScoreAvg:   Number(40),
			},
			wantTo:      TagDecliningRisk,
			wantConf:    1.0,
			wantReview:  true,
			wantReasons: []ReviewReason{ReviewCriticalStatus},
		},
		{
			name:    "Should flag ambiguity and prefer the earlier rule when two rules are met",
			current: TagActiveLearning,
			metrics: Metrics{
				MetricModulesCompleted:    Number(5),
				MetricAssessmentScoreAvg:  Number(90),
				MetricDaysSinceEnrollment: Number(20),
				MetricDaysSinceLastLogin:  Number(15),
				MetricEngagementDelta:     Number(-0.4),
			},
			wantTo:      TagProgressing,
			wantConf:    1.0,
			wantReview:  true,
			wantReasons: []ReviewReason{ReviewAmbiguous},
		},
		{
			name:    "Should match membership conditions on text metrics",
			current: TagDecliningRisk,
			metrics: Metrics{
				MetricDaysSinceLastLogin:   Number(75),
				MetricSessionsLast7Days:    Number(0),
				MetricSubscriptionStatus:   Text("expired"),
				MetricCustomerTier:         Text("basic"),
				MetricCourseCompletionRate: Number(0.1),
			},
			wantTo:      TagChurned,
			wantConf:    1.0,
			wantReview:  true,
			wantReasons: []ReviewReason{ReviewCriticalStatus},
		},
		{
			name:    "Should apply equality conditions",
			current: TagReengagement,
			metrics: Metrics{
				MetricDaysSinceLastLogin: Number(50),
				MetricSessionsLast7Days:  Number(0),
				MetricEngagementDelta:    Number(-0.2),
			},
			wantTo:     TagChurned,
			wantConf:   1.0,
			wantReview: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := quietEngine().Evaluate(catalog, tt.current, tt.metrics, evalTime)

			assert.Equal(t, tt.current, got.CurrentTag)
			if tt.wantTo == "" {
				assert.Nil(t, got.Recommended)
				assert.False(t, got.RequiresManualReview)
				return
			}

			require.NotNil(t, got.Recommended)
			assert.Equal(t, tt.wantTo, got.Recommended.To)
			assert.Equal(t, tt.current, got.Recommended.From)
			assert.Equal(t, tt.wantConf, got.Confidence)
			assert.Equal(t, tt.wantReview, got.RequiresManualReview)
			assert.Equal(t, tt.wantReasons, got.ReviewReasons)
		})
	}
}

func TestEngine_Evaluate_TerminalTagHasNoRecommendation(t *testing.T) {
	t.Parallel()

	catalog := DefaultCatalog()
	metrics := Metrics{
		MetricModulesCompleted:   Number(10),
		MetricAssessmentScoreAvg: Number(99),
		MetricSessionsLast7Days:  Number(7),
		MetricEngagementDelta:    Number(0.9),
	}

	for _, tag := range catalog.TerminalTags() {
		got := quietEngine().Evaluate(catalog, tag, metrics, evalTime)

		assert.Nil(t, got.Recommended, "terminal tag %s must not recommend", tag)
		assert.True(t, got.Terminal)
		assert.Empty(t, got.RuleResults)
		assert.Nil(t, got.NextEvaluationDate, "terminal tags are not rescheduled")
	}
}

func TestEngine_Evaluate_IsIdempotent(t *testing.T) {
	t.Parallel()

	catalog := DefaultCatalog()
	engine := quietEngine()
	metrics := Metrics{
		MetricModulesCompleted:    Number(2),
		MetricAssessmentScoreAvg:  Number(75),
		MetricDaysSinceEnrollment: Number(12),
		MetricDaysSinceLastLogin:  Number(9),
		MetricEngagementDelta:     Number(-0.1),
	}

	first := engine.Evaluate(catalog, TagActiveLearning, metrics, evalTime)
	second := engine.Evaluate(catalog, TagActiveLearning, metrics, evalTime.Add(3*time.Hour))

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("same-day evaluations differ (-first +second):\n%s", diff)
	}
}

func TestEngine_Evaluate_PartialRuleConfidenceIsMean(t *testing.T) {
	t.Parallel()

	got := quietEngine().Evaluate(DefaultCatalog(), TagActiveLearning, Metrics{
		MetricModulesCompleted:    Number(1),  // 1 - 2/3
		MetricAssessmentScoreAvg:  Number(50), // 1 - 20/70
		MetricDaysSinceEnrollment: Number(10), // met
	}, evalTime)

	require.NotEmpty(t, got.RuleResults)
	progression := got.RuleResults[0]
	assert.Equal(t, "progression_active_to_progressing", progression.RuleID)
	assert.False(t, progression.ConditionsMet)

	want := ((1.0 - 2.0/3.0) + (1.0 - 20.0/70.0) + 1.0) / 3.0
	assert.InDelta(t, want, progression.Confidence, 1e-9)

	// Risk rule metrics are absent: unmet, zero confidence, no actual value.
	risk := got.RuleResults[1]
	assert.Equal(t, "risk_learning_declining", risk.RuleID)
	assert.Zero(t, risk.Confidence)
	for _, c := range risk.Conditions {
		assert.Nil(t, c.Actual)
		assert.False(t, c.Met)
	}
}

func TestEngine_Evaluate_TieBreakIsCatalogOrder(t *testing.T) {
	t.Parallel()

	catalog := MustCatalog(CatalogSpec{
		Rules: []TransitionRule{
			{
				ID: "first", Group: GroupProgression,
				From: []StatusTag{TagActiveLearning}, To: TagProgressing,
				Conditions: []Condition{When(MetricModulesCompleted, OpGreaterOrEqual, 1)},
			},
			{
				ID: "second", Group: GroupRisk,
				From: []StatusTag{TagActiveLearning}, To: TagMastery,
				Conditions: []Condition{When(MetricModulesCompleted, OpGreaterOrEqual, 1)},
			},
		},
	})

	got := quietEngine().Evaluate(catalog, TagActiveLearning, Metrics{MetricModulesCompleted: Number(4)}, evalTime)

	require.NotNil(t, got.Recommended)
	assert.Equal(t, "first", got.Recommended.RuleID)
	assert.Equal(t, 2, got.MetRuleCount())
	assert.True(t, got.RequiresManualReview)
	assert.Equal(t, []ReviewReason{ReviewAmbiguous}, got.ReviewReasons)
}

func TestEngine_Evaluate_LogsWrongMetricKind(t *testing.T) {
	t.Parallel()

	var logBuffer bytes.Buffer
	engine := New(slog.New(slog.NewTextHandler(&logBuffer, nil)))

	got := engine.Evaluate(DefaultCatalog(), TagActiveLearning, Metrics{
		MetricModulesCompleted:    Text("three"),
		MetricAssessmentScoreAvg:  Number(80),
		MetricDaysSinceEnrollment: Number(10),
	}, evalTime)

	assert.Nil(t, got.Recommended)
	assert.Contains(t, logBuffer.String(), "metric has wrong kind")
}

func TestEngine_Evaluate_NextEvaluationDate(t *testing.T) {
	t.Parallel()

	startOfDay := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		tag     StatusTag
		metrics Metrics
		want    time.Time
	}{
		{"active learner", TagActiveLearning, Metrics{MetricDaysSinceLastLogin: Number(2)}, startOfDay.Add(3 * day)},
		{"inactive active learner", TagActiveLearning, Metrics{MetricDaysSinceLastLogin: Number(8)}, startOfDay.Add(day)},
		{"progressing", TagProgressing, Metrics{}, startOfDay.Add(7 * day)},
		{"mastery", TagMastery, Metrics{}, startOfDay.Add(14 * day)},
		{"declining risk", TagDecliningRisk, Metrics{}, startOfDay.Add(day)},
		{"re-engagement", TagReengagement, Metrics{}, startOfDay.Add(2 * day)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := quietEngine().Evaluate(DefaultCatalog(), tt.tag, tt.metrics, evalTime)
			require.NotNil(t, got.NextEvaluationDate)
			assert.Equal(t, tt.want, *got.NextEvaluationDate)
		})
	}
}

func TestEngine_WithReviewThreshold(t *testing.T) {
	t.Parallel()

	e := New(nil, WithReviewThreshold(0.95), WithReviewThreshold(7))
	assert.Equal(t, 0.95, e.reviewThreshold, "out-of-range thresholds are ignored")
}

func TestEngine_WithSchedule(t *testing.T) {
	t.Parallel()

	e := New(nil, WithSchedule(Schedule{
		Cadence:  map[StatusTag]time.Duration{TagProgressing: 2 * day},
		Fallback: 5 * day,
	}))
	startOfDay := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	got := e.Evaluate(DefaultCatalog(), TagProgressing, Metrics{}, evalTime)
	require.NotNil(t, got.NextEvaluationDate)
	assert.Equal(t, startOfDay.Add(2*day), *got.NextEvaluationDate)

	got = e.Evaluate(DefaultCatalog(), TagMastery, Metrics{}, evalTime)
	require.NotNil(t, got.NextEvaluationDate)
	assert.Equal(t, startOfDay.Add(5*day), *got.NextEvaluationDate, "tags without a cadence use the fallback")
}
