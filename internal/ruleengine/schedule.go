package ruleengine

import "time"

const day = 24 * time.Hour

// Schedule decides when a customer should be evaluated again.
type Schedule struct {
	// Cadence is the default delay per tag.
	Cadence map[StatusTag]time.Duration

	// InactiveAfterDays shortens the cadence of Active-Learning customers who
	// have not logged in for at least this many days.
	InactiveAfterDays float64
	InactiveCadence   time.Duration

	// Fallback applies to tags without an explicit cadence.
	Fallback time.Duration
}

// DefaultSchedule re-checks at-risk tags daily and stable tags less often.
func DefaultSchedule() Schedule {
	return Schedule{
		Cadence: map[StatusTag]time.Duration{
			TagActiveLearning: 3 * day,
			TagProgressing:    7 * day,
			TagMastery:        14 * day,
			TagDecliningRisk:  1 * day,
			TagReengagement:   2 * day,
		},
		InactiveAfterDays: 7,
		InactiveCadence:   1 * day,
		Fallback:          7 * day,
	}
}

// Next returns the start of the evaluation day (UTC) plus the tag cadence.
// Truncating to the day keeps repeated same-day evaluations identical.
func (s Schedule) Next(tag StatusTag, metrics Metrics, now time.Time) time.Time {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	delay, ok := s.Cadence[tag]
	if !ok {
		delay = s.Fallback
	}

	if tag == TagActiveLearning && s.InactiveCadence > 0 {
		if v, ok := metrics[MetricDaysSinceLastLogin]; ok && v.Kind == KindNumber && v.Num >= s.InactiveAfterDays {
			delay = s.InactiveCadence
		}
	}

	return start.Add(delay)
}
