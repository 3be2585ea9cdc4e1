package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"

	"prescription-analytics-api/internal/models"
)

// MinObservations is the shortest series the forecaster will fit
const MinObservations = 3

// DefaultCandidates are tried in order; earlier orders win AIC ties
var DefaultCandidates = []Order{
	{P: 1, D: 1, Q: 1},
	{P: 2, D: 1, Q: 1},
	{P: 1, D: 0, Q: 1},
	{P: 0, D: 1, Q: 1},
	{P: 1, D: 1, Q: 0},
}

// Config configures the forecaster
type Config struct {
	Candidates []Order `json:"candidates"`
	Confidence float64 `json:"confidence"`
}

// DefaultConfig returns the standard candidate list with a 95% interval
func DefaultConfig() Config {
	return Config{
		Candidates: DefaultCandidates,
		Confidence: 0.95,
	}
}

// Point is one forecast month
type Point struct {
	Month    time.Time `json:"month"`
	Forecast float64   `json:"forecast"`
	Lower    float64   `json:"lower"`
	Upper    float64   `json:"upper"`
}

// CandidateFit records how one candidate order fared
type CandidateFit struct {
	Order     Order   `json:"order"`
	Converged bool    `json:"converged"`
	AIC       float64 `json:"aic,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Result is a forecast from the best candidate model
type Result struct {
	Order      Order          `json:"order"`
	AIC        float64        `json:"aic"`
	Sigma2     float64        `json:"sigma2"`
	Confidence float64        `json:"confidence"`
	Points     []Point        `json:"points"`
	Candidates []CandidateFit `json:"candidates"`
}

// Values returns the point forecasts in order
func (r *Result) Values() []float64 {
	values := make([]float64, len(r.Points))
	for i, p := range r.Points {
		values[i] = p.Forecast
	}
	return values
}

// Forecaster selects an ARIMA order by AIC and forecasts monthly series
type Forecaster struct {
	config Config
	z      float64
	logger *logrus.Logger
}

// NewForecaster creates a new forecaster
func NewForecaster(config Config, logger *logrus.Logger) *Forecaster {
	if len(config.Candidates) == 0 {
		config.Candidates = DefaultCandidates
	}
	if config.Confidence <= 0 || config.Confidence >= 1 {
		config.Confidence = 0.95
	}

	return &Forecaster{
		config: config,
		z:      distuv.UnitNormal.Quantile(0.5 + config.Confidence/2),
		logger: logger,
	}
}

// Forecast fits every candidate order to series and forecasts horizon months
// past its last observation with the lowest-AIC model.
func (f *Forecaster) Forecast(series models.Series, horizon int) (*Result, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("%w: horizon must be at least 1, got %d", models.ErrInvalidParameter, horizon)
	}
	if len(series) < MinObservations {
		return nil, fmt.Errorf("%w: need at least %d points, have %d",
			models.ErrInsufficientData, MinObservations, len(series))
	}

	values := series.Values()
	fits := make([]CandidateFit, 0, len(f.config.Candidates))

	var best *arimaModel
	for _, order := range f.config.Candidates {
		model, err := fitARIMA(values, order)
		if err != nil {
			fits = append(fits, CandidateFit{Order: order, Error: err.Error()})
			f.logger.WithFields(logrus.Fields{
				"order": order.String(),
				"error": err,
			}).Debug("Candidate model skipped")
			continue
		}

		fits = append(fits, CandidateFit{Order: order, Converged: true, AIC: model.aic})
		if best == nil || model.aic < best.aic {
			best = model
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: all %d candidates failed", models.ErrModelFit, len(f.config.Candidates))
	}

	forecasts, stderr := best.forecast(horizon)
	last := series.LastMonth()

	points := make([]Point, horizon)
	for i := 0; i < horizon; i++ {
		half := f.z * stderr[i]
		points[i] = Point{
			Month:    models.AddMonths(last, i+1),
			Forecast: forecasts[i],
			Lower:    forecasts[i] - half,
			Upper:    forecasts[i] + half,
		}
	}

	return &Result{
		Order:      best.order,
		AIC:        best.aic,
		Sigma2:     best.sigma2,
		Confidence: f.config.Confidence,
		Points:     points,
		Candidates: fits,
	}, nil
}

// ForecastMany forecasts several named series. Series that cannot be
// forecast are reported as skipped rather than failing the batch.
func (f *Forecaster) ForecastMany(series map[string]models.Series, names []string, horizon int) (map[string]*Result, []models.SkippedUnit) {
	results := make(map[string]*Result, len(names))
	var skipped []models.SkippedUnit

	for _, name := range names {
		s, ok := series[name]
		if !ok || len(s) < MinObservations {
			skipped = append(skipped, models.SkippedUnit{
				Category: name,
				Reason:   fmt.Sprintf("fewer than %d monthly points", MinObservations),
			})
			continue
		}

		result, err := f.Forecast(s, horizon)
		if err != nil {
			skipped = append(skipped, models.SkippedUnit{Category: name, Reason: err.Error()})
			continue
		}
		results[name] = result
	}

	return results, skipped
}

// Accuracy backtests the forecaster on the last horizon points of series
type Accuracy struct {
	TrainSize int      `json:"train_size"`
	TestSize  int      `json:"test_size"`
	MAE       float64  `json:"mae"`
	MAPE      *float64 `json:"mape"`
	Accuracy  *float64 `json:"accuracy"`
}

// MinAccuracyObservations is the shortest series for which accuracy is reported
const MinAccuracyObservations = 12

// EvaluateAccuracy holds out the last horizon points, forecasts them and
// reports MAE, MAPE and accuracy = max(0, 100 - MAPE).
func (f *Forecaster) EvaluateAccuracy(series models.Series, horizon int) (*Accuracy, error) {
	if len(series) < MinAccuracyObservations {
		return nil, fmt.Errorf("%w: accuracy needs at least %d points, have %d",
			models.ErrInsufficientData, MinAccuracyObservations, len(series))
	}

	trainSize := len(series) - horizon
	if trainSize < MinObservations || horizon < 1 {
		return nil, fmt.Errorf("%w: horizon %d leaves %d training points",
			models.ErrInsufficientData, horizon, trainSize)
	}

	train, test := series[:trainSize], series[trainSize:]
	result, err := f.Forecast(train, len(test))
	if err != nil {
		return nil, err
	}

	metrics := ComputeErrorMetrics(test.Values(), result.Values())
	accuracy := &Accuracy{
		TrainSize: trainSize,
		TestSize:  len(test),
		MAE:       metrics.MAE,
		MAPE:      models.Finite(metrics.MAPE),
	}
	if accuracy.MAPE != nil {
		accuracy.Accuracy = models.Finite(math.Max(0, 100-*accuracy.MAPE))
	}
	return accuracy, nil
}
