package testsupport

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GetMetricValue sums every series of metricName whose labels contain
// labelFilter. Counters and gauges report their value, histograms their
// sample count. Unknown metrics read as 0.
func GetMetricValue(t *testing.T, metricName string, labelFilter map[string]string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err, "failed to gather metrics")

	var total float64
	for _, mf := range families {
		if mf.GetName() != metricName {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !matchesLabels(m, labelFilter) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

func matchesLabels(m *dto.Metric, filter map[string]string) bool {
	if len(filter) == 0 {
		return true
	}
	have := make(map[string]string, len(m.GetLabel()))
	for _, pair := range m.GetLabel() {
		have[pair.GetName()] = pair.GetValue()
	}
	for k, v := range filter {
		if have[k] != v {
			return false
		}
	}
	return true
}

// AssertMetricDelta asserts that fn moves the metric by exactly expectedDelta.
// Tests using it must not run in parallel with others touching the same series.
func AssertMetricDelta(t *testing.T, metricName string, labels map[string]string, expectedDelta float64, fn func()) {
	t.Helper()

	initial := GetMetricValue(t, metricName, labels)
	fn()
	final := GetMetricValue(t, metricName, labels)

	assert.Equal(t, expectedDelta, final-initial, "metric %s%v delta mismatch", metricName, labels)
}

// AssertMetricDeltaAsync is AssertMetricDelta for work finishing in the
// background, such as the sweeper loop.
func AssertMetricDeltaAsync(t *testing.T, metricName string, labels map[string]string, expectedDelta float64, fn func()) {
	t.Helper()

	initial := GetMetricValue(t, metricName, labels)
	fn()

	require.Eventually(t, func() bool {
		return GetMetricValue(t, metricName, labels) == initial+expectedDelta
	}, 2*time.Second, 20*time.Millisecond, "metric %s%v never reached delta %+.0f", metricName, labels, expectedDelta)
}

// AssertHistogramRecorded asserts at least one observation.
func AssertHistogramRecorded(t *testing.T, metricName string, labels map[string]string) {
	t.Helper()

	assert.Greater(t, GetMetricValue(t, metricName, labels), 0.0, "histogram %s%v has no samples", metricName, labels)
}
