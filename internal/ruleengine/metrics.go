package ruleengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Metric is a typed key into a LearningMetrics snapshot.
// Conditions referencing a metric outside this set fail catalog validation.
type Metric string

const (
	MetricModulesCompleted     Metric = "modules_completed"
	MetricAssessmentScoreAvg   Metric = "assessment_score_avg"
	MetricDaysSinceEnrollment  Metric = "days_since_enrollment"
	MetricDaysSinceLastLogin   Metric = "days_since_last_login"
	MetricCourseCompletionRate Metric = "course_completion_rate"
	MetricEngagementDelta      Metric = "engagement_delta"
	MetricSessionsLast7Days    Metric = "sessions_last_7_days"
	MetricLifetimeValue        Metric = "lifetime_value"
	MetricCustomerTier         Metric = "customer_tier"
	MetricSubscriptionStatus   Metric = "subscription_status"
)

// ValueKind distinguishes numeric from textual metric values.
type ValueKind int

const (
	KindNumber ValueKind = iota + 1
	KindText
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

var metricKinds = map[Metric]ValueKind{
	MetricModulesCompleted:     KindNumber,
	MetricAssessmentScoreAvg:   KindNumber,
	MetricDaysSinceEnrollment:  KindNumber,
	MetricDaysSinceLastLogin:   KindNumber,
	MetricCourseCompletionRate: KindNumber,
	MetricEngagementDelta:      KindNumber,
	MetricSessionsLast7Days:    KindNumber,
	MetricLifetimeValue:        KindNumber,
	MetricCustomerTier:         KindText,
	MetricSubscriptionStatus:   KindText,
}

// Kind returns the value kind of the metric and whether the metric is known.
func (m Metric) Kind() (ValueKind, bool) {
	k, ok := metricKinds[m]
	return k, ok
}

// Value is a single metric value or condition operand.
type Value struct {
	Kind ValueKind
	Num  float64
	Text string
}

// Number builds a numeric Value.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Text builds a textual Value.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// Equal compares kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	if v.Kind == KindNumber {
		return v.Num == o.Num
	}
	return v.Text == o.Text
}

func (v Value) String() string {
	if v.Kind == KindNumber {
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	return v.Text
}

// MarshalJSON encodes numbers as JSON numbers and text as JSON strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Num)
	case KindText:
		return json.Marshal(v.Text)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a JSON number or string.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("value cannot be null")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("value must be a number or string: %w", err)
	}
	*v = Number(f)
	return nil
}

// Metrics is a per-customer LearningMetrics snapshot.
// It is fetched fresh for every evaluation and never cached.
type Metrics map[Metric]Value

// UnmarshalJSON decodes a flat JSON object. Keys outside the known metric set
// are ignored so the metrics producer can add fields ahead of the catalog;
// a known key with the wrong kind is an error.
func (m *Metrics) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid metrics payload: %w", err)
	}

	out := make(Metrics, len(raw))
	for key, rawVal := range raw {
		metric := Metric(key)
		kind, known := metric.Kind()
		if !known {
			continue
		}
		var v Value
		if err := json.Unmarshal(rawVal, &v); err != nil {
			return fmt.Errorf("metric %s: %w", key, err)
		}
		if v.Kind != kind {
			return fmt.Errorf("metric %s: expected %s, got %s", key, kind, v.Kind)
		}
		out[metric] = v
	}
	*m = out
	return nil
}
