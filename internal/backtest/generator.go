package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"prescription-analytics-api/internal/dataset"
	"prescription-analytics-api/internal/forecast"
	"prescription-analytics-api/internal/models"
)

// Mode selects how error records are produced
type Mode string

const (
	// ModeBacktest forecasts held-out months and measures real error
	ModeBacktest Mode = "backtest"
	// ModeSimulated draws plausible errors from the series level
	ModeSimulated Mode = "simulated"
)

// ParseMode resolves a mode name, defaulting to backtest
func ParseMode(name string) (Mode, error) {
	switch Mode(name) {
	case "", ModeBacktest:
		return ModeBacktest, nil
	case ModeSimulated:
		return ModeSimulated, nil
	default:
		return "", fmt.Errorf("%w: unknown error mode %q", models.ErrInvalidParameter, name)
	}
}

// Minimum history beyond the test window needed to fit a model
const minTrainPoints = 3

// MinSimulatedPoints is the shortest series given a simulated error record
const MinSimulatedPoints = 12

// SeriesForecaster forecasts a monthly series
type SeriesForecaster interface {
	Forecast(series models.Series, horizon int) (*forecast.Result, error)
}

// Config configures the error generator
type Config struct {
	TestPeriods int   `json:"test_periods"`
	Workers     int   `json:"workers"`
	Seed        int64 `json:"seed"`
}

// DefaultConfig holds out six months and uses one worker per CPU
func DefaultConfig() Config {
	return Config{
		TestPeriods: 6,
		Workers:     runtime.NumCPU(),
		Seed:        42,
	}
}

// ErrorRecord is the forecast error of one (region, category) series
type ErrorRecord struct {
	Region       string          `json:"region"`
	Category     string          `json:"category"`
	CategoryCode string          `json:"category_code"`
	MeanActual   float64         `json:"mean_actual"`
	MAE          float64         `json:"mae"`
	Bias         float64         `json:"bias"`
	MAPE         float64         `json:"-"`
	Order        *forecast.Order `json:"order,omitempty"`
}

// MAPEDefined reports whether every actual in the window was non-zero
func (r ErrorRecord) MAPEDefined() bool {
	return !math.IsNaN(r.MAPE)
}

// MarshalJSON writes an undefined MAPE as null
func (r ErrorRecord) MarshalJSON() ([]byte, error) {
	type alias ErrorRecord
	return json.Marshal(struct {
		alias
		MAPE *float64 `json:"mape"`
	}{alias(r), models.Finite(r.MAPE)})
}

// UnmarshalJSON reads a null MAPE back as undefined
func (r *ErrorRecord) UnmarshalJSON(data []byte) error {
	type alias ErrorRecord
	aux := struct {
		*alias
		MAPE *float64 `json:"mape"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.MAPE = math.NaN()
	if aux.MAPE != nil {
		r.MAPE = *aux.MAPE
	}
	return nil
}

// Report is the outcome of an error generation run
type Report struct {
	Mode        Mode                 `json:"mode"`
	TestPeriods int                  `json:"test_periods"`
	Evaluated   int                  `json:"evaluated"`
	Records     []ErrorRecord        `json:"records"`
	Skipped     []models.SkippedUnit `json:"skipped"`
	Duration    time.Duration        `json:"duration"`
}

// Generator produces per-series error records
type Generator struct {
	forecaster SeriesForecaster
	config     Config
	logger     *logrus.Logger
}

// NewGenerator creates a new error generator
func NewGenerator(forecaster SeriesForecaster, config Config, logger *logrus.Logger) *Generator {
	if config.TestPeriods <= 0 {
		config.TestPeriods = 6
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.Seed == 0 {
		config.Seed = 42
	}

	return &Generator{
		forecaster: forecaster,
		config:     config,
		logger:     logger,
	}
}

// TestPeriods returns the configured hold-out length
func (g *Generator) TestPeriods() int {
	return g.config.TestPeriods
}

type unitResult struct {
	record  *ErrorRecord
	skipped *models.SkippedUnit
}

// Run backtests every (region, category) series of ds with testPeriods held
// out. Series that are too short or fail to forecast are skipped. Results do
// not depend on worker scheduling.
func (g *Generator) Run(ctx context.Context, ds *dataset.Dataset, testPeriods int) (*Report, error) {
	if testPeriods <= 0 {
		testPeriods = g.config.TestPeriods
	}

	start := time.Now()
	keys, series := ds.GroupedSeries()
	results := make([]unitResult, len(keys))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.config.Workers)
	for i, key := range keys {
		i, key := i, key
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			results[i] = g.evaluate(key, series[key], testPeriods)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("backtest cancelled: %w", err)
	}

	report := collect(results)
	report.Mode = ModeBacktest
	report.TestPeriods = testPeriods
	report.Evaluated = len(keys)
	report.Duration = time.Since(start)

	g.logger.WithFields(logrus.Fields{
		"series":   len(keys),
		"records":  len(report.Records),
		"skipped":  len(report.Skipped),
		"workers":  g.config.Workers,
		"duration": report.Duration,
	}).Info("Backtest completed")

	return report, nil
}

func (g *Generator) evaluate(key models.SeriesKey, series models.Series, testPeriods int) (result unitResult) {
	defer func() {
		if r := recover(); r != nil {
			result = skip(key, fmt.Sprintf("unexpected failure: %v", r))
		}
	}()

	if len(series) < testPeriods+minTrainPoints {
		return skip(key, fmt.Sprintf("%d points, need %d", len(series), testPeriods+minTrainPoints))
	}

	split := len(series) - testPeriods
	train, test := series[:split], series[split:]

	fc, err := g.forecaster.Forecast(train, testPeriods)
	if err != nil {
		g.logger.WithFields(logrus.Fields{
			"region":   key.Region,
			"category": key.Category,
			"error":    err,
		}).Debug("Backtest unit skipped")
		return skip(key, err.Error())
	}
	if len(fc.Points) != len(test) {
		return skip(key, "forecast length mismatch")
	}

	metrics := forecast.ComputeErrorMetrics(test.Values(), fc.Values())
	order := fc.Order
	return unitResult{record: &ErrorRecord{
		Region:       key.Region,
		Category:     key.Category,
		CategoryCode: models.CategoryCode(key.Category),
		MeanActual:   metrics.MeanActual,
		MAE:          metrics.MAE,
		Bias:         metrics.Bias,
		MAPE:         metrics.MAPE,
		Order:        &order,
	}}
}

// Simulate draws error records around ten percent of each series level,
// for series with at least MinSimulatedPoints months.
func (g *Generator) Simulate(ds *dataset.Dataset) *Report {
	start := time.Now()
	rng := rand.New(rand.NewSource(g.config.Seed))
	keys, series := ds.GroupedSeries()

	results := make([]unitResult, 0, len(keys))
	for _, key := range keys {
		s := series[key]
		if len(s) < MinSimulatedPoints {
			results = append(results, skip(key, fmt.Sprintf("%d points, need %d", len(s), MinSimulatedPoints)))
			continue
		}

		meanActual := stat.Mean(s.Values(), nil)
		baseError := meanActual * 0.1

		mae := math.Abs(baseError + rng.NormFloat64()*baseError*0.3)
		bias := rng.NormFloat64() * baseError * 0.2
		mape := 0.0
		if meanActual > 0 {
			mape = mae / meanActual * 100
		}

		results = append(results, unitResult{record: &ErrorRecord{
			Region:       key.Region,
			Category:     key.Category,
			CategoryCode: models.CategoryCode(key.Category),
			MeanActual:   meanActual,
			MAE:          mae,
			Bias:         bias,
			MAPE:         mape,
		}})
	}

	report := collect(results)
	report.Mode = ModeSimulated
	report.Evaluated = len(keys)
	report.Duration = time.Since(start)
	return report
}

func skip(key models.SeriesKey, reason string) unitResult {
	return unitResult{skipped: &models.SkippedUnit{
		Region:   key.Region,
		Category: key.Category,
		Reason:   reason,
	}}
}

func collect(results []unitResult) *Report {
	report := &Report{
		Records: make([]ErrorRecord, 0, len(results)),
		Skipped: make([]models.SkippedUnit, 0),
	}
	for _, r := range results {
		switch {
		case r.record != nil:
			report.Records = append(report.Records, *r.record)
		case r.skipped != nil:
			report.Skipped = append(report.Skipped, *r.skipped)
		}
	}
	return report
}
