package dashboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/tagflow/internal/testsupport"
)

func TestService_CacheMetrics(t *testing.T) {
	s := newService(t, testsupport.NewMemoryStore())
	ctx := context.Background()

	testsupport.AssertMetricDelta(t, "tagflow_dashboard_l1_cache_misses_total", nil, 1, func() {
		_, err := s.StatusDistribution(ctx)
		require.NoError(t, err)
	})
	testsupport.AssertMetricDelta(t, "tagflow_dashboard_l1_cache_hits_total", nil, 2, func() {
		_, err := s.StatusDistribution(ctx)
		require.NoError(t, err)
		_, err = s.StatusDistribution(ctx)
		require.NoError(t, err)
	})
}
