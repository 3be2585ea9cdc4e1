package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"prescription-analytics-api/internal/backtest"
	"prescription-analytics-api/internal/cache"
	"prescription-analytics-api/internal/cluster"
	"prescription-analytics-api/internal/dataset"
	"prescription-analytics-api/internal/dto"
	"prescription-analytics-api/internal/fairness"
	"prescription-analytics-api/internal/forecast"
	"prescription-analytics-api/internal/insights"
	"prescription-analytics-api/internal/models"
	"prescription-analytics-api/internal/monitoring"
	"prescription-analytics-api/internal/outlier"
	"prescription-analytics-api/internal/session"
)

// Defaults are the analysis parameters used when a request leaves them unset
type Defaults struct {
	Horizon       int
	TestPeriods   int
	Threshold     float64
	Contamination float64
	Clusters      int
}

// Info describes how a result was produced
type Info struct {
	DatasetVersion uint64
	DatasetMode    string
	Cached         bool
	Duration       time.Duration
}

// AnalyticsService runs analyses against the current dataset with caching
type AnalyticsService struct {
	store      *session.Store
	cache      *cache.Manager
	forecaster *forecast.Forecaster
	generator  *backtest.Generator
	evaluator  *fairness.Evaluator
	clusters   *cluster.Engine
	insights   *insights.Calculator
	metrics    monitoring.MetricsService
	defaults   Defaults
	logger     *logrus.Logger
}

// NewAnalyticsService creates a new analytics service. Every dataset reload
// clears cached results.
func NewAnalyticsService(
	store *session.Store,
	cacheManager *cache.Manager,
	forecaster *forecast.Forecaster,
	generator *backtest.Generator,
	metrics monitoring.MetricsService,
	defaults Defaults,
	logger *logrus.Logger,
) *AnalyticsService {
	s := &AnalyticsService{
		store:      store,
		cache:      cacheManager,
		forecaster: forecaster,
		generator:  generator,
		evaluator:  fairness.NewEvaluator(logger),
		clusters:   cluster.NewEngine(logger),
		insights:   insights.NewCalculator(logger),
		metrics:    metrics,
		defaults:   defaults,
		logger:     logger,
	}

	store.OnReload(s.onReload)
	return s
}

func (s *AnalyticsService) onReload(snap session.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.cache.Clear(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to clear cache after dataset load")
	}
	s.metrics.RecordDataset(string(snap.Dataset.Mode), snap.Dataset.Len(), snap.Version)

	s.logger.WithFields(logrus.Fields{
		"version":      snap.Version,
		"mode":         snap.Dataset.Mode,
		"observations": snap.Dataset.Len(),
		"dropped_rows": snap.Dataset.DroppedRows,
	}).Info("Dataset published")
}

// Summary describes the loaded dataset
func (s *AnalyticsService) Summary(ctx context.Context) (*dto.DatasetSummary, error) {
	snap, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	return summarize(snap), nil
}

// Reload reloads the dataset and publishes it under a new version
func (s *AnalyticsService) Reload(ctx context.Context) (*dto.DatasetSummary, error) {
	start := time.Now()
	snap, err := s.store.Reload(ctx)
	s.finish("reload", start, err)
	if err != nil {
		return nil, err
	}
	return summarize(snap), nil
}

func summarize(snap session.Snapshot) *dto.DatasetSummary {
	ds := snap.Dataset
	first, last := ds.MonthRange()
	return &dto.DatasetSummary{
		Version:      snap.Version,
		Mode:         string(ds.Mode),
		Source:       ds.Source,
		Observations: ds.Len(),
		DroppedRows:  ds.DroppedRows,
		Regions:      ds.Regions(),
		Categories:   ds.Categories(),
		FirstMonth:   first,
		LastMonth:    last,
		TotalCost:    decimal.NewFromFloat(ds.TotalCost()).Round(2),
		LoadedAt:     ds.LoadedAt,
	}
}

// Dashboard ranks every region and reports national totals
func (s *AnalyticsService) Dashboard(ctx context.Context, filter dto.DateFilter) (*dto.DashboardResponse, *Info, error) {
	return runCached(ctx, s, "dashboard", filter, []interface{}{filter.CacheKey()},
		func(ds *dataset.Dataset) (*dto.DashboardResponse, error) {
			return &dto.DashboardResponse{
				Regions:  s.insights.RegionRankings(ds),
				National: s.insights.National(ds),
			}, nil
		})
}

// RegionKPIs returns the dashboard indicators of one region
func (s *AnalyticsService) RegionKPIs(ctx context.Context, region string, filter dto.DateFilter) (*insights.RegionKPI, *Info, error) {
	return runCached(ctx, s, "region_kpis", filter, []interface{}{region, filter.CacheKey()},
		func(ds *dataset.Dataset) (*insights.RegionKPI, error) {
			return s.insights.RegionKPIs(ds, region)
		})
}

// Categories summarises the selected categories
func (s *AnalyticsService) Categories(ctx context.Context, query *dto.CategoryQuery) (*insights.CategoryOverview, *Info, error) {
	if err := query.Validate(); err != nil {
		return nil, nil, err
	}
	return runCached(ctx, s, "categories", query.DateFilter, []interface{}{selectionKey(query.Categories), query.CacheKey()},
		func(ds *dataset.Dataset) (*insights.CategoryOverview, error) {
			return s.insights.Categories(ds, query.Categories), nil
		})
}

// CategoryTrends returns monthly trends of the top categories
func (s *AnalyticsService) CategoryTrends(ctx context.Context, query *dto.CategoryQuery) ([]insights.CategoryTrend, *Info, error) {
	if err := query.Validate(); err != nil {
		return nil, nil, err
	}
	return runCached(ctx, s, "category_trends", query.DateFilter, []interface{}{selectionKey(query.Categories), query.Top, query.CacheKey()},
		func(ds *dataset.Dataset) ([]insights.CategoryTrend, error) {
			return s.insights.CategoryTrends(ds, query.Categories, query.Top), nil
		})
}

// Forecast forecasts the series selected by region and category. Empty
// selectors aggregate over that dimension.
func (s *AnalyticsService) Forecast(ctx context.Context, req *dto.ForecastRequest) (*dto.ForecastResponse, *Info, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	req.SetDefaults(s.defaults.Horizon)

	return runCached(ctx, s, "forecast", req.DateFilter, []interface{}{req.Region, req.Category, req.Horizon, req.CacheKey()},
		func(ds *dataset.Dataset) (*dto.ForecastResponse, error) {
			series, err := selectSeries(ds, req.Region, req.Category)
			if err != nil {
				return nil, err
			}

			result, err := s.forecaster.Forecast(series, req.Horizon)
			if err != nil {
				return nil, err
			}
			return &dto.ForecastResponse{
				Region:   req.Region,
				Category: req.Category,
				History:  series,
				Forecast: result,
			}, nil
		})
}

func selectSeries(ds *dataset.Dataset, region, category string) (models.Series, error) {
	if region != "" && !ds.HasRegion(region) {
		return nil, fmt.Errorf("%w: region %q", models.ErrUnknownGroup, region)
	}
	if category != "" && !contains(ds.Categories(), category) {
		return nil, fmt.Errorf("%w: category %q", models.ErrUnknownGroup, category)
	}

	switch {
	case region != "" && category != "":
		return ds.Series(region, category), nil
	case region != "":
		return ds.RegionSeries(region), nil
	case category != "":
		return ds.SeriesFor(func(o models.Observation) bool { return o.Category == category }), nil
	default:
		return ds.MonthlyTotals(), nil
	}
}

// RegionForecast forecasts each selected category of a region, the region
// total, and the accuracy of the total when history allows
func (s *AnalyticsService) RegionForecast(ctx context.Context, req *dto.RegionForecastRequest) (*dto.RegionForecastResponse, *Info, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	req.SetDefaults(s.defaults.Horizon)

	return runCached(ctx, s, "region_forecast", req.DateFilter,
		[]interface{}{req.Region, selectionKey(req.Categories), req.Horizon, req.CacheKey()},
		func(ds *dataset.Dataset) (*dto.RegionForecastResponse, error) {
			if !ds.HasRegion(req.Region) {
				return nil, fmt.Errorf("%w: region %q", models.ErrUnknownGroup, req.Region)
			}
			regional := ds.Where(func(o models.Observation) bool { return o.Region == req.Region })

			names := req.Categories
			if len(names) == 0 {
				names = regional.Categories()
			}
			series := make(map[string]models.Series, len(names))
			for _, name := range names {
				series[name] = regional.Series(req.Region, name)
			}

			results, failed := s.forecaster.ForecastMany(series, names, req.Horizon)
			for i := range failed {
				failed[i].Region = req.Region
			}
			if failed == nil {
				failed = []models.SkippedUnit{}
			}

			total := regional.MonthlyTotals()
			resp := &dto.RegionForecastResponse{
				Region:    req.Region,
				Horizon:   req.Horizon,
				Forecasts: results,
				Failed:    failed,
				History:   total,
			}

			if fc, err := s.forecaster.Forecast(total, req.Horizon); err != nil {
				resp.TotalError = err.Error()
			} else {
				resp.Total = fc
			}

			if len(total) >= forecast.MinAccuracyObservations {
				accuracy, err := s.forecaster.EvaluateAccuracy(total, req.Horizon)
				if err != nil {
					s.logger.WithFields(logrus.Fields{
						"region": req.Region,
						"error":  err,
					}).Debug("Accuracy not available")
				}
				resp.Accuracy = accuracy
			}

			s.metrics.RecordSkippedUnits("region_forecast", len(failed))
			return resp, nil
		})
}

// Backtest produces per-series error records in the requested mode
func (s *AnalyticsService) Backtest(ctx context.Context, req *dto.ErrorsRequest) (*backtest.Report, *Info, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	req.SetDefaults(s.defaults.TestPeriods)

	mode, err := backtest.ParseMode(req.Mode)
	if err != nil {
		return nil, nil, err
	}

	return runCached(ctx, s, "backtest", req.DateFilter, []interface{}{mode, req.TestPeriods, req.CacheKey()},
		func(ds *dataset.Dataset) (*backtest.Report, error) {
			report, err := s.errorReport(ctx, ds, mode, req.TestPeriods)
			if err != nil {
				return nil, err
			}
			s.metrics.RecordSkippedUnits("backtest", len(report.Skipped))
			return report, nil
		})
}

func (s *AnalyticsService) errorReport(ctx context.Context, ds *dataset.Dataset, mode backtest.Mode, testPeriods int) (*backtest.Report, error) {
	if mode == backtest.ModeSimulated {
		return s.generator.Simulate(ds), nil
	}
	return s.generator.Run(ctx, ds, testPeriods)
}

// Fairness evaluates regional parity of the error records of a backtest run
func (s *AnalyticsService) Fairness(ctx context.Context, req *dto.ErrorsRequest) (*dto.FairnessResponse, *Info, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	req.SetDefaults(s.defaults.TestPeriods)

	return runCached(ctx, s, "fairness", req.DateFilter, []interface{}{req.Mode, req.TestPeriods, req.CacheKey()},
		func(*dataset.Dataset) (*dto.FairnessResponse, error) {
			report, _, err := s.Backtest(ctx, req)
			if err != nil {
				return nil, err
			}

			summary, err := s.evaluator.Evaluate(report.Records)
			if err != nil {
				return nil, err
			}
			return &dto.FairnessResponse{
				Mode:        report.Mode,
				TestPeriods: req.TestPeriods,
				Summary:     summary,
				Skipped:     report.Skipped,
			}, nil
		})
}

// Outliers flags anomalous costs
func (s *AnalyticsService) Outliers(ctx context.Context, req *dto.OutlierRequest) (*outlier.Result, *Info, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	req.SetDefaults(s.defaults.Threshold, s.defaults.Contamination)

	method := outlier.ParseMethod(req.Method)
	granularity, err := outlier.ParseGranularity(req.Granularity)
	if err != nil {
		return nil, nil, err
	}
	if err := outlier.Validate(req.Threshold, req.Contamination); err != nil {
		return nil, nil, err
	}

	return runCached(ctx, s, "outliers", req.DateFilter,
		[]interface{}{method, granularity, req.Threshold, req.Contamination, req.Limit, req.CacheKey()},
		func(ds *dataset.Dataset) (*outlier.Result, error) {
			detector := outlier.NewDetector(method, req.Threshold, req.Contamination)
			result, err := detector.Detect(ds, granularity)
			if err != nil {
				return nil, err
			}
			if req.Limit > 0 && len(result.Outliers) > req.Limit {
				result.Outliers = result.Outliers[:req.Limit]
			}
			return result, nil
		})
}

// Clusters groups regions or categories by cost profile
func (s *AnalyticsService) Clusters(ctx context.Context, req *dto.ClusterRequest) (*cluster.Result, *Info, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	req.SetDefaults(s.defaults.Clusters)

	groupBy, err := cluster.ParseGroupBy(req.GroupBy)
	if err != nil {
		return nil, nil, err
	}
	algorithm := cluster.ParseAlgorithm(req.Algorithm)

	return runCached(ctx, s, "clusters", req.DateFilter, []interface{}{groupBy, algorithm, req.Clusters, req.CacheKey()},
		func(ds *dataset.Dataset) (*cluster.Result, error) {
			return s.clusters.Cluster(ds, groupBy, algorithm, req.Clusters)
		})
}

// Warm precomputes the default backtest and fairness summary
func (s *AnalyticsService) Warm(ctx context.Context) error {
	if _, _, err := s.Fairness(ctx, &dto.ErrorsRequest{}); err != nil {
		return fmt.Errorf("failed to warm fairness summary: %w", err)
	}
	return nil
}

// CacheStats returns result cache statistics
func (s *AnalyticsService) CacheStats() *cache.Stats {
	return s.cache.GetStats()
}

// ClearCache drops every cached result
func (s *AnalyticsService) ClearCache(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// DatasetVersion returns the published dataset version, zero before the first load
func (s *AnalyticsService) DatasetVersion() uint64 {
	return s.store.Version()
}

// runCached resolves the current snapshot, serves a cached result for the
// same parameters and dataset version when present, and otherwise computes
// it over the date-filtered dataset and caches it.
func runCached[T any](
	ctx context.Context,
	s *AnalyticsService,
	operation string,
	filter dto.DateFilter,
	params []interface{},
	compute func(ds *dataset.Dataset) (T, error),
) (T, *Info, error) {
	start := time.Now()
	var zero T

	snap, err := s.store.Get(ctx)
	if err != nil {
		s.finish(operation, start, err)
		return zero, nil, err
	}
	info := &Info{
		DatasetVersion: snap.Version,
		DatasetMode:    string(snap.Dataset.Mode),
	}

	key := cache.Key(append([]interface{}{operation, snap.Version}, params...)...)
	var result T
	if s.cache.Get(ctx, key, &result) {
		info.Cached = true
		info.Duration = time.Since(start)
		s.finish(operation, start, nil)
		return result, info, nil
	}

	dateRange, err := filter.Range()
	if err != nil {
		s.finish(operation, start, err)
		return zero, nil, err
	}
	ds := snap.Dataset.Filter(dateRange)
	if ds.IsEmpty() {
		err := fmt.Errorf("%w: %s", models.ErrEmptyDataset, describeRange(filter))
		s.finish(operation, start, err)
		return zero, nil, err
	}

	result, err = compute(ds)
	if err != nil {
		s.finish(operation, start, err)
		return zero, nil, err
	}

	if err := s.cache.Set(ctx, key, result, 0); err != nil {
		s.logger.WithFields(logrus.Fields{
			"operation": operation,
			"error":     err,
		}).Warn("Failed to cache analysis result")
	}

	info.Duration = time.Since(start)
	s.finish(operation, start, nil)
	return result, info, nil
}

func (s *AnalyticsService) finish(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordAnalysis(operation, status, time.Since(start))

	entry := s.logger.WithFields(logrus.Fields{
		"operation": operation,
		"duration":  time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Warn("Analysis failed")
		return
	}
	entry.Debug("Analysis completed")
}

func describeRange(filter dto.DateFilter) string {
	if filter.From == "" && filter.To == "" {
		return "dataset is empty"
	}
	return fmt.Sprintf("no data between %q and %q", filter.From, filter.To)
}

func selectionKey(values []string) string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	return fmt.Sprint(sorted)
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
