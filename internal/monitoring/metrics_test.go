package monitoring

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)

	m.RecordHTTPRequest("POST", "/api/v1/forecast", 200, 150*time.Millisecond)
	m.RecordAnalysis("backtest", "success", 2*time.Second)
	m.RecordSkippedUnits("backtest", 3)
	m.RecordSkippedUnits("backtest", 0)
	m.RecordCacheOperation("get", true, time.Millisecond)
	m.RecordDataset("sample", 14212, 2)
	m.RecordSystemMetrics()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `prescription_analytics_http_requests_total{endpoint="/api/v1/forecast",method="POST",status_code="200"} 1`)
	assert.Contains(t, text, `prescription_analytics_skipped_units_total{operation="backtest"} 3`)
	assert.Contains(t, text, `prescription_analytics_cache_operations_total{operation="get",result="hit"} 1`)
	assert.Contains(t, text, `prescription_analytics_dataset_observations{mode="sample"} 14212`)
	assert.Contains(t, text, "prescription_analytics_dataset_version 2")

	info := m.GetMetrics()
	assert.Contains(t, info, "uptime_seconds")
}

func TestNewPrometheusMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusMetrics(prometheus.NewRegistry())
		NewPrometheusMetrics(prometheus.NewRegistry())
	})
}
