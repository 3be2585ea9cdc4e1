package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrorMetrics summarises forecast error over a test window
type ErrorMetrics struct {
	MeanActual float64
	MAE        float64
	Bias       float64
	MAPE       float64
}

// ComputeErrorMetrics compares forecasts against actuals of the same length.
// Bias is forecast minus actual. MAPE is NaN when any actual is zero.
func ComputeErrorMetrics(actual, predicted []float64) ErrorMetrics {
	n := len(actual)
	if n == 0 || n != len(predicted) {
		return ErrorMetrics{MeanActual: math.NaN(), MAE: math.NaN(), Bias: math.NaN(), MAPE: math.NaN()}
	}

	absErr := make([]float64, n)
	signed := make([]float64, n)
	pct := make([]float64, n)
	mapeDefined := true
	for i := range actual {
		diff := predicted[i] - actual[i]
		absErr[i] = math.Abs(diff)
		signed[i] = diff
		if actual[i] == 0 {
			mapeDefined = false
			continue
		}
		pct[i] = math.Abs(diff / actual[i])
	}

	metrics := ErrorMetrics{
		MeanActual: stat.Mean(actual, nil),
		MAE:        stat.Mean(absErr, nil),
		Bias:       stat.Mean(signed, nil),
		MAPE:       math.NaN(),
	}
	if mapeDefined {
		metrics.MAPE = stat.Mean(pct, nil) * 100
	}
	return metrics
}
