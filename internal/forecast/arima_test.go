package forecast

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartialToCoefficients(t *testing.T) {
	phi := partialToCoefficients([]float64{0.5, 0.2})
	require.Len(t, phi, 2)
	assert.InDelta(t, 0.4, phi[0], 1e-12)
	assert.InDelta(t, 0.2, phi[1], 1e-12)

	assert.Empty(t, partialToCoefficients(nil))
}

func TestDifferenceAndIntegrate(t *testing.T) {
	values := []float64{1, 4, 9, 16}
	levels := differenceLevels(values, 2)
	assert.Equal(t, []float64{3, 5, 7}, levels[1])
	assert.Equal(t, []float64{2, 2}, levels[2])

	assert.Equal(t, []float64{25, 36}, integrate(levels, []float64{2, 2}))
}

func TestPsiWeights(t *testing.T) {
	t.Run("random walk", func(t *testing.T) {
		assert.Equal(t, []float64{1, 1, 1, 1}, psiWeights(nil, nil, 1, 4))
	})

	t.Run("ar1", func(t *testing.T) {
		psi := psiWeights([]float64{0.5}, nil, 0, 3)
		assert.InDeltaSlice(t, []float64{1, 0.5, 0.25}, psi, 1e-12)
	})

	t.Run("ma1", func(t *testing.T) {
		psi := psiWeights(nil, []float64{0.3}, 0, 3)
		assert.InDeltaSlice(t, []float64{1, 0.3, 0}, psi, 1e-12)
	})
}

func TestFitARIMA_TooShort(t *testing.T) {
	_, err := fitARIMA([]float64{1, 2, 3}, Order{P: 1, D: 1, Q: 1})
	assert.Error(t, err)
}

func TestFitARIMA_AR1Recovery(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	values := make([]float64, 120)
	values[0] = 100
	for i := 1; i < len(values); i++ {
		values[i] = 100 + 0.6*(values[i-1]-100) + rng.NormFloat64()*5
	}

	model, err := fitARIMA(values, Order{P: 1, D: 0, Q: 0})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(model.aic))
	assert.Greater(t, model.ar[0], 0.35)
	assert.Less(t, model.ar[0], 0.85)
	assert.InDelta(t, 100, model.mean, 5)
}

func TestComputeErrorMetrics(t *testing.T) {
	m := ComputeErrorMetrics([]float64{100, 200}, []float64{110, 180})
	assert.InDelta(t, 150, m.MeanActual, 1e-12)
	assert.InDelta(t, 15, m.MAE, 1e-12)
	assert.InDelta(t, -5, m.Bias, 1e-12)
	assert.InDelta(t, 10, m.MAPE, 1e-12)

	zero := ComputeErrorMetrics([]float64{0, 200}, []float64{10, 190})
	assert.True(t, math.IsNaN(zero.MAPE))
	assert.InDelta(t, 10, zero.MAE, 1e-12)
}
