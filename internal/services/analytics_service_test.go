package services

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prescription-analytics-api/internal/backtest"
	"prescription-analytics-api/internal/cache"
	"prescription-analytics-api/internal/cluster"
	"prescription-analytics-api/internal/dataset"
	"prescription-analytics-api/internal/dto"
	"prescription-analytics-api/internal/forecast"
	"prescription-analytics-api/internal/models"
	"prescription-analytics-api/internal/monitoring"
	"prescription-analytics-api/internal/session"
)

type syntheticLoader struct {
	regions map[string]bool
	loads   int
}

func (l *syntheticLoader) Load(context.Context) (*dataset.Dataset, error) {
	l.loads++
	return dataset.GenerateSynthetic(dataset.DefaultSeed).Where(func(o models.Observation) bool {
		return l.regions[o.Region]
	}), nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newTestService(t *testing.T) (*AnalyticsService, *syntheticLoader) {
	t.Helper()
	logger := quietLogger()
	loader := &syntheticLoader{regions: map[string]bool{"LONDON": true, "MIDLANDS": true, "NORTH WEST": true}}

	forecaster := forecast.NewForecaster(forecast.DefaultConfig(), logger)
	generator := backtest.NewGenerator(forecaster, backtest.Config{TestPeriods: 6, Workers: 4}, logger)
	svc := NewAnalyticsService(
		session.NewStore(loader, logger),
		cache.NewManager(cache.DefaultConfig(), nil, logger),
		forecaster,
		generator,
		monitoring.NewPrometheusMetrics(prometheus.NewRegistry()),
		Defaults{Horizon: 6, TestPeriods: 6, Threshold: 1.5, Contamination: 0.1, Clusters: 2},
		logger,
	)
	return svc, loader
}

func TestAnalyticsService_Summary(t *testing.T) {
	svc, loader := newTestService(t)

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), summary.Version)
	assert.Equal(t, "sample", summary.Mode)
	assert.Equal(t, []string{"LONDON", "MIDLANDS", "NORTH WEST"}, summary.Regions)
	assert.Len(t, summary.Categories, len(dataset.BNFChapters))
	assert.Equal(t, 2020, summary.FirstMonth.Year())

	reloaded, err := svc.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), reloaded.Version)
	assert.Equal(t, 2, loader.loads)
	assert.Equal(t, uint64(2), svc.DatasetVersion())
}

func TestAnalyticsService_Forecast(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	t.Run("region series is cached per version", func(t *testing.T) {
		resp, info, err := svc.Forecast(ctx, &dto.ForecastRequest{Region: "LONDON", Horizon: 3})
		require.NoError(t, err)
		assert.Len(t, resp.Forecast.Points, 3)
		assert.Len(t, resp.History, 68)
		assert.False(t, info.Cached)

		again, info, err := svc.Forecast(ctx, &dto.ForecastRequest{Region: "LONDON", Horizon: 3})
		require.NoError(t, err)
		assert.True(t, info.Cached)
		assert.Equal(t, resp.Forecast.Order, again.Forecast.Order)

		_, err = svc.Reload(ctx)
		require.NoError(t, err)
		_, info, err = svc.Forecast(ctx, &dto.ForecastRequest{Region: "LONDON", Horizon: 3})
		require.NoError(t, err)
		assert.False(t, info.Cached)
		assert.Equal(t, uint64(2), info.DatasetVersion)
	})

	t.Run("default horizon", func(t *testing.T) {
		resp, _, err := svc.Forecast(ctx, &dto.ForecastRequest{})
		require.NoError(t, err)
		assert.Len(t, resp.Forecast.Points, 6)
	})

	t.Run("unknown region", func(t *testing.T) {
		_, _, err := svc.Forecast(ctx, &dto.ForecastRequest{Region: "ATLANTIS"})
		assert.True(t, errors.Is(err, models.ErrUnknownGroup))
	})

	t.Run("invalid horizon", func(t *testing.T) {
		_, _, err := svc.Forecast(ctx, &dto.ForecastRequest{Horizon: 100})
		assert.True(t, errors.Is(err, models.ErrInvalidParameter))
	})

	t.Run("empty date range", func(t *testing.T) {
		_, _, err := svc.Forecast(ctx, &dto.ForecastRequest{DateFilter: dto.DateFilter{From: "2030-01"}})
		assert.True(t, errors.Is(err, models.ErrEmptyDataset))
	})
}

func TestAnalyticsService_RegionForecast(t *testing.T) {
	svc, _ := newTestService(t)

	resp, _, err := svc.RegionForecast(context.Background(), &dto.RegionForecastRequest{
		Region:     "MIDLANDS",
		Categories: []string{"02: Cardiovascular System", "99: Unknown"},
		Horizon:    3,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Forecasts, 1)
	assert.Contains(t, resp.Forecasts, "02: Cardiovascular System")
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, "MIDLANDS", resp.Failed[0].Region)
	assert.Equal(t, "99: Unknown", resp.Failed[0].Category)
	require.NotNil(t, resp.Total)
	require.NotNil(t, resp.Accuracy)
	assert.Equal(t, 3, resp.Accuracy.TestSize)

	_, _, err = svc.RegionForecast(context.Background(), &dto.RegionForecastRequest{Region: "ATLANTIS"})
	assert.True(t, errors.Is(err, models.ErrUnknownGroup))
}

func TestAnalyticsService_BacktestAndFairness(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	report, _, err := svc.Backtest(ctx, &dto.ErrorsRequest{Mode: "simulated"})
	require.NoError(t, err)
	assert.Equal(t, backtest.ModeSimulated, report.Mode)
	assert.Len(t, report.Records, 3*len(dataset.BNFChapters))

	fair, _, err := svc.Fairness(ctx, &dto.ErrorsRequest{Mode: "simulated"})
	require.NoError(t, err)
	require.NotNil(t, fair.Summary)
	assert.Len(t, fair.Summary.Regions, 3)
	assert.Equal(t, 3*len(dataset.BNFChapters), fair.Summary.RecordCount)

	require.NoError(t, svc.Warm(ctx))
	_, info, err := svc.Fairness(ctx, &dto.ErrorsRequest{})
	require.NoError(t, err)
	assert.True(t, info.Cached)
}

func TestAnalyticsService_Outliers(t *testing.T) {
	svc, _ := newTestService(t)

	result, _, err := svc.Outliers(context.Background(), &dto.OutlierRequest{Method: "z-score", Threshold: 2, Limit: 2})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Outliers), 2)
	assert.Equal(t, 3*len(dataset.BNFChapters)*68, result.TotalRecords)

	_, _, err = svc.Outliers(context.Background(), &dto.OutlierRequest{Contamination: 0.5})
	assert.True(t, errors.Is(err, models.ErrInvalidParameter))
}

func TestAnalyticsService_Clusters(t *testing.T) {
	svc, _ := newTestService(t)

	result, _, err := svc.Clusters(context.Background(), &dto.ClusterRequest{GroupBy: "category", Clusters: 3})
	require.NoError(t, err)
	assert.Equal(t, cluster.StatusClustered, result.Status)
	assert.Len(t, result.Assignments, len(dataset.BNFChapters))

	_, _, err = svc.Clusters(context.Background(), &dto.ClusterRequest{GroupBy: "region", Clusters: 4})
	assert.True(t, errors.Is(err, models.ErrInvalidParameter))
}

func TestAnalyticsService_Insights(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	dash, _, err := svc.Dashboard(ctx, dto.DateFilter{})
	require.NoError(t, err)
	assert.Len(t, dash.Regions, 3)
	assert.Len(t, dash.National.Monthly, 68)

	kpi, _, err := svc.RegionKPIs(ctx, "LONDON", dto.DateFilter{From: "2024-01", To: "2024-12"})
	require.NoError(t, err)
	assert.Equal(t, 3, kpi.RegionCount)

	_, _, err = svc.RegionKPIs(ctx, "ATLANTIS", dto.DateFilter{})
	assert.True(t, errors.Is(err, models.ErrUnknownGroup))

	trends, _, err := svc.CategoryTrends(ctx, &dto.CategoryQuery{Top: 4})
	require.NoError(t, err)
	assert.Len(t, trends, 4)

	overview, _, err := svc.Categories(ctx, &dto.CategoryQuery{Categories: []string{"13: Skin"}})
	require.NoError(t, err)
	assert.Equal(t, "13", overview.TopCategory)

	require.NoError(t, svc.ClearCache(ctx))
	assert.Equal(t, int64(0), svc.CacheStats().LocalSize)
}
