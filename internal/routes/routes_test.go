package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prescription-analytics-api/internal/backtest"
	"prescription-analytics-api/internal/cache"
	"prescription-analytics-api/internal/config"
	"prescription-analytics-api/internal/dataset"
	"prescription-analytics-api/internal/forecast"
	"prescription-analytics-api/internal/models"
	"prescription-analytics-api/internal/monitoring"
	"prescription-analytics-api/internal/services"
	"prescription-analytics-api/internal/session"
)

type twoRegionLoader struct{}

func (twoRegionLoader) Load(context.Context) (*dataset.Dataset, error) {
	return dataset.GenerateSynthetic(dataset.DefaultSeed).Where(func(o models.Observation) bool {
		return o.Region == "LONDON" || o.Region == "SOUTH WEST"
	}), nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		RequestID      string `json:"request_id"`
		DatasetVersion uint64 `json:"dataset_version"`
		Cached         bool   `json:"cached"`
	} `json:"meta"`
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{RequestTimeout: time.Minute},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Metrics:   config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func setupRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	forecaster := forecast.NewForecaster(forecast.DefaultConfig(), logger)
	cacheManager := cache.NewManager(cache.DefaultConfig(), nil, logger)
	metrics := monitoring.NewPrometheusMetrics(prometheus.NewRegistry())
	service := services.NewAnalyticsService(
		session.NewStore(twoRegionLoader{}, logger),
		cacheManager,
		forecaster,
		backtest.NewGenerator(forecaster, backtest.DefaultConfig(), logger),
		metrics,
		services.Defaults{Horizon: 6, TestPeriods: 6, Threshold: 1.5, Contamination: 0.1, Clusters: 2},
		logger,
	)

	router := gin.New()
	SetupRoutes(router, cfg, service, cacheManager, metrics, logger)
	return router
}

func do(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestRoutes_Dataset(t *testing.T) {
	router := setupRouter(t, testConfig())

	w, env := do(t, router, http.MethodGet, "/api/v1/dataset/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, w.Header().Get("X-Request-ID"), env.Meta.RequestID)

	var summary struct {
		Version int      `json:"version"`
		Regions []string `json:"regions"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 1, summary.Version)
	assert.Equal(t, []string{"LONDON", "SOUTH WEST"}, summary.Regions)

	w, env = do(t, router, http.MethodPost, "/api/v1/dataset/reload", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint64(2), env.Meta.DatasetVersion)

	w, _ = do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"dataset":"ok"`)
}

func TestRoutes_Forecast(t *testing.T) {
	router := setupRouter(t, testConfig())

	w, env := do(t, router, http.MethodPost, "/api/v1/forecast", `{"region":"LONDON","horizon":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, env.Meta.Cached)

	_, env = do(t, router, http.MethodPost, "/api/v1/forecast", `{"region":"LONDON","horizon":2}`)
	assert.True(t, env.Meta.Cached)

	w, env = do(t, router, http.MethodPost, "/api/v1/forecast", `{"horizon":99}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	w, env = do(t, router, http.MethodPost, "/api/v1/forecast", `{"region":"ATLANTIS"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	w, env = do(t, router, http.MethodPost, "/api/v1/forecast", `{"from":"2031-01"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "EMPTY_SELECTION", env.Error.Code)

	w, env = do(t, router, http.MethodPost, "/api/v1/forecast", `{"horizon":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", env.Error.Code)
}

func TestRoutes_Insights(t *testing.T) {
	router := setupRouter(t, testConfig())

	w, env := do(t, router, http.MethodGet, "/api/v1/dashboard/regions?from=2024-01", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	w, _ = do(t, router, http.MethodGet, "/api/v1/dashboard/regions/"+url.PathEscape("SOUTH WEST"), "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, router, http.MethodGet, "/api/v1/dashboard/regions/ATLANTIS", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, router, http.MethodGet, "/api/v1/categories?category="+url.QueryEscape("13: Skin"), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"top_category":"13"`)

	w, _ = do(t, router, http.MethodGet, "/api/v1/categories/trends?top=3", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, router, http.MethodGet, "/api/v1/categories?from=2024-99", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestRoutes_Analyses(t *testing.T) {
	router := setupRouter(t, testConfig())

	w, _ := do(t, router, http.MethodPost, "/api/v1/outliers", `{"method":"iqr","granularity":"temporal"}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env := do(t, router, http.MethodPost, "/api/v1/outliers", `{"threshold":5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	w, _ = do(t, router, http.MethodPost, "/api/v1/clusters", `{"group_by":"category","clusters":3}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = do(t, router, http.MethodPost, "/api/v1/fairness", `{"mode":"simulated"}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"parity_gap"`)

	w, _ = do(t, router, http.MethodGet, "/api/v1/admin/cache/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"local_size"`)

	w, _ = do(t, router, http.MethodPost, "/api/v1/admin/cache/clear", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_Fallbacks(t *testing.T) {
	router := setupRouter(t, testConfig())

	w, env := do(t, router, http.MethodGet, "/api/v1/nothing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	w, env = do(t, router, http.MethodGet, "/api/v1/forecast", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", env.Error.Code)

	do(t, router, http.MethodGet, "/api/v1/dataset/summary", "")
	w, _ = do(t, router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "prescription_analytics_http_requests_total")
}

func TestRoutes_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, BurstSize: 1}
	router := setupRouter(t, cfg)

	w, _ := do(t, router, http.MethodGet, "/api/v1/dataset/summary", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := do(t, router, http.MethodGet, "/api/v1/dataset/summary", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", env.Error.Code)
}
