package fairness

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prescription-analytics-api/internal/backtest"
	"prescription-analytics-api/internal/models"
)

func newTestEvaluator() *Evaluator {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewEvaluator(logger)
}

func record(region string, meanActual, mae, bias float64) backtest.ErrorRecord {
	return backtest.ErrorRecord{Region: region, MeanActual: meanActual, MAE: mae, Bias: bias}
}

func TestEvaluator_Evaluate(t *testing.T) {
	e := newTestEvaluator()
	records := []backtest.ErrorRecord{
		record("LONDON", 100, 10, 2),
		record("LONDON", 200, 30, 5),
		record("LONDON", 300, 20, -1),
		record("MIDLANDS", 100, 5, -3),
		record("MIDLANDS", 400, 15, -6),
		record("MIDLANDS", 150, 10, -2),
	}

	summary, err := e.Evaluate(records)
	require.NoError(t, err)

	// 75th percentile of {100,100,150,200,300,400} by linear interpolation
	assert.InDelta(t, 275, summary.CostThreshold, 1e-9)
	require.Len(t, summary.Regions, 2)

	london := summary.Regions[0]
	assert.Equal(t, "LONDON", london.Region)
	assert.InDelta(t, 1.0/3, london.HighCostRate, 1e-9)
	assert.InDelta(t, 20.0/200, london.RelativeErrorRate, 1e-9)
	assert.InDelta(t, 20, london.MAEMean, 1e-9)
	assert.InDelta(t, 2, london.BiasMean, 1e-9)

	midlands := summary.Regions[1]
	assert.InDelta(t, 10.0/(650.0/3), midlands.RelativeErrorRate, 1e-9)

	assert.InDelta(t, london.RelativeErrorRate-midlands.RelativeErrorRate, summary.ParityGap, 1e-9)
	assert.GreaterOrEqual(t, summary.ParityGap, 0.0)
	assert.False(t, summary.TestsDegenerate)
	assert.Greater(t, summary.BiasANOVA.Statistic, 0.0)
	assert.Less(t, summary.BiasANOVA.PValue, 1.0)
}

func TestEvaluator_SingleRegionIsNeutral(t *testing.T) {
	summary, err := newTestEvaluator().Evaluate([]backtest.ErrorRecord{
		record("LONDON", 100, 10, 1),
		record("LONDON", 120, 12, -1),
	})
	require.NoError(t, err)

	assert.True(t, summary.TestsDegenerate)
	for _, r := range []TestResult{summary.BiasANOVA, summary.MAEKruskal, summary.BiasKruskal} {
		assert.Equal(t, 0.0, r.Statistic)
		assert.Equal(t, 1.0, r.PValue)
		assert.False(t, r.Significant)
	}
	assert.Equal(t, 0.0, summary.ParityGap)
}

func TestEvaluator_IdenticalRatesGiveZeroGap(t *testing.T) {
	summary, err := newTestEvaluator().Evaluate([]backtest.ErrorRecord{
		record("A", 100, 10, 1),
		record("A", 100, 10, 1),
		record("B", 200, 20, 1),
		record("B", 200, 20, 1),
	})
	require.NoError(t, err)
	assert.InDelta(t, 0, summary.ParityGap, 1e-12)
	assert.False(t, summary.ParityConcern)
	// identical bias everywhere cannot be tested
	assert.True(t, summary.TestsDegenerate)
}

func TestEvaluator_Empty(t *testing.T) {
	_, err := newTestEvaluator().Evaluate(nil)
	assert.True(t, errors.Is(err, models.ErrEmptyDataset))
}

func TestOneWayANOVA(t *testing.T) {
	// F = 3 with df (2, 6), survival (1 + 2F/6)^-3 = 1/8
	result, err := OneWayANOVA([][]float64{{1, 2, 3}, {2, 3, 4}, {3, 4, 5}})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, result.Statistic, 1e-9)
	assert.InDelta(t, 0.125, result.PValue, 1e-3)

	_, err = OneWayANOVA([][]float64{{1, 1}, {2, 2}})
	assert.True(t, errors.Is(err, models.ErrDegenerateInput))
}

func TestKruskalWallis(t *testing.T) {
	result, err := KruskalWallis([][]float64{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)
	// ranks 6 and 15, H = 12/42*(36/3+225/3) - 21 = 3.857
	assert.InDelta(t, 3.857142857, result.Statistic, 1e-6)
	assert.InDelta(t, 0.0495, result.PValue, 1e-3)
	assert.True(t, result.Significant)

	_, err = KruskalWallis([][]float64{{7, 7}, {7, 7}})
	assert.True(t, errors.Is(err, models.ErrDegenerateInput))

	_, err = KruskalWallis([][]float64{{1, 2}, {3}})
	assert.True(t, errors.Is(err, models.ErrDegenerateInput))
}
