package controlapi_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/tagflow/internal/testsupport"
)

// Metrics are global, so these cases run serially.
func TestMetrics_RouteLabels(t *testing.T) {
	e := newEnv(t, true)

	t.Run("records metrics for a successful request", func(t *testing.T) {
		testsupport.AssertMetricDelta(t, "tagflow_api_http_requests_total",
			map[string]string{"method": "GET", "route": "/health", "code": "200"}, 1, func() {
				rr := httptest.NewRecorder()
				e.api.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
				require.Equal(t, http.StatusOK, rr.Code)
			})
		testsupport.AssertHistogramRecorded(t, "tagflow_api_http_handling_seconds",
			map[string]string{"method": "GET", "route": "/health"})
	})

	t.Run("keeps the route pattern for a business 404", func(t *testing.T) {
		testsupport.AssertMetricDelta(t, "tagflow_api_http_requests_total",
			map[string]string{"method": "GET", "route": "/api/v1/customers/{id}/evaluation", "code": "404"}, 1, func() {
				rr := httptest.NewRecorder()
				e.api.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/customers/missing-42/evaluation", nil))
				require.Equal(t, http.StatusNotFound, rr.Code)
			})
	})

	t.Run("collapses unknown paths to not_found", func(t *testing.T) {
		testsupport.AssertMetricDelta(t, "tagflow_api_http_requests_total",
			map[string]string{"method": "GET", "route": "not_found", "code": "404"}, 1, func() {
				rr := httptest.NewRecorder()
				e.api.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin.php", nil))
				require.Equal(t, http.StatusNotFound, rr.Code)
			})
	})
}
