package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// Order is an ARIMA (p, d, q) configuration
type Order struct {
	P int `json:"p"`
	D int `json:"d"`
	Q int `json:"q"`
}

func (o Order) String() string {
	return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q)
}

// includesMean reports whether the model carries a constant level.
// Differenced models are fitted without drift.
func (o Order) includesMean() bool {
	return o.D == 0
}

func (o Order) paramCount() int {
	k := o.P + o.Q
	if o.includesMean() {
		k++
	}
	return k
}

const minSigma2 = 1e-10

var errNonFinite = errors.New("non-finite likelihood")

// arimaModel is a fitted ARIMA model conditioned on its training series
type arimaModel struct {
	order     Order
	mean      float64
	ar        []float64
	ma        []float64
	sigma2    float64
	logLik    float64
	aic       float64
	nobs      int
	levels    [][]float64
	residuals []float64
}

// fitARIMA estimates an ARIMA model by conditional sum of squares.
// AR and MA coefficients are searched through a partial-autocorrelation
// parameterisation so every candidate is stationary and invertible.
func fitARIMA(values []float64, order Order) (*arimaModel, error) {
	if order.P < 0 || order.D < 0 || order.Q < 0 {
		return nil, fmt.Errorf("invalid order %s", order)
	}

	levels := differenceLevels(values, order.D)
	y := levels[order.D]
	m := len(y) - order.P
	k := order.paramCount()
	if m <= k {
		return nil, fmt.Errorf("order %s needs more than %d conditioned observations, have %d", order, k, m)
	}

	scale := stat.StdDev(y, nil)
	if math.IsNaN(scale) || scale < 1e-12 {
		scale = math.Max(math.Abs(stat.Mean(y, nil)), 1)
	}
	z := make([]float64, len(y))
	floats.ScaleTo(z, 1/scale, y)

	x0 := make([]float64, k)
	if order.includesMean() {
		x0[0] = stat.Mean(z, nil)
	}

	var best []float64
	var bestCSS float64
	if k == 0 {
		best = x0
		bestCSS = conditionalSumOfSquares(z, order, x0, nil)
	} else {
		problem := optimize.Problem{
			Func: func(x []float64) float64 {
				css := conditionalSumOfSquares(z, order, x, nil)
				if math.IsNaN(css) {
					return math.Inf(1)
				}
				return css
			},
		}
		settings := &optimize.Settings{
			MajorIterations: 2000,
			FuncEvaluations: 20000,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-10,
				Relative:   1e-10,
				Iterations: 200,
			},
		}

		result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
		if result == nil {
			return nil, fmt.Errorf("order %s: optimiser failed: %w", order, err)
		}
		if result.Status == optimize.Failure {
			return nil, fmt.Errorf("order %s: optimiser reported failure", order)
		}
		best = result.X
		bestCSS = result.F
	}

	if math.IsNaN(bestCSS) || math.IsInf(bestCSS, 0) {
		return nil, fmt.Errorf("order %s: %w", order, errNonFinite)
	}

	model := &arimaModel{
		order:  order,
		nobs:   m,
		levels: levels,
	}
	mu, ar, ma := unpackParams(order, best)
	model.mean = mu * scale
	model.ar = ar
	model.ma = ma

	model.residuals = make([]float64, len(y))
	css := conditionalSumOfSquares(y, order, packParams(order, model.mean, best), model.residuals)

	model.sigma2 = math.Max(css/float64(m), minSigma2)
	model.logLik = -0.5 * float64(m) * (math.Log(2*math.Pi*model.sigma2) + 1)
	model.aic = 2*float64(k+1) - 2*model.logLik

	if math.IsNaN(model.aic) || math.IsInf(model.aic, 0) {
		return nil, fmt.Errorf("order %s: %w", order, errNonFinite)
	}

	return model, nil
}

// forecast returns point forecasts and their standard errors for h steps
func (m *arimaModel) forecast(h int) ([]float64, []float64) {
	y := m.levels[m.order.D]
	n := len(y)

	ext := make([]float64, n, n+h)
	copy(ext, y)
	shocks := make([]float64, n, n+h)
	copy(shocks, m.residuals)

	diffForecasts := make([]float64, h)
	for s := 0; s < h; s++ {
		t := n + s
		value := m.mean
		for i, phi := range m.ar {
			value += phi * (ext[t-1-i] - m.mean)
		}
		for j, theta := range m.ma {
			if t-1-j >= 0 {
				value += theta * shocks[t-1-j]
			}
		}
		ext = append(ext, value)
		shocks = append(shocks, 0)
		diffForecasts[s] = value
	}

	points := integrate(m.levels, diffForecasts)

	psi := psiWeights(m.ar, m.ma, m.order.D, h)
	stderr := make([]float64, h)
	cumulative := 0.0
	for s := 0; s < h; s++ {
		cumulative += psi[s] * psi[s]
		stderr[s] = math.Sqrt(m.sigma2 * cumulative)
	}

	return points, stderr
}

// conditionalSumOfSquares runs the ARMA recursion over y, conditioning on the
// first p observations. When residuals is non-nil the innovations are stored.
func conditionalSumOfSquares(y []float64, order Order, x []float64, residuals []float64) float64 {
	mu, ar, ma := unpackParams(order, x)
	p := order.P

	e := residuals
	if e == nil {
		e = make([]float64, len(y))
	}
	for t := 0; t < p && t < len(e); t++ {
		e[t] = 0
	}

	css := 0.0
	for t := p; t < len(y); t++ {
		pred := mu
		for i, phi := range ar {
			pred += phi * (y[t-1-i] - mu)
		}
		for j, theta := range ma {
			if t-1-j >= 0 {
				pred += theta * e[t-1-j]
			}
		}
		e[t] = y[t] - pred
		css += e[t] * e[t]
	}
	return css
}

// unpackParams maps the unconstrained search vector to (mean, ar, ma)
func unpackParams(order Order, x []float64) (float64, []float64, []float64) {
	idx := 0
	mu := 0.0
	if order.includesMean() {
		mu = x[0]
		idx = 1
	}

	arRaw := make([]float64, order.P)
	for i := range arRaw {
		arRaw[i] = math.Tanh(x[idx+i])
	}
	idx += order.P

	maRaw := make([]float64, order.Q)
	for i := range maRaw {
		maRaw[i] = math.Tanh(x[idx+i])
	}

	ar := partialToCoefficients(arRaw)
	ma := partialToCoefficients(maRaw)
	for i := range ma {
		ma[i] = -ma[i]
	}
	return mu, ar, ma
}

// packParams rebuilds a search vector with a replaced mean
func packParams(order Order, mean float64, x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	if order.includesMean() {
		out[0] = mean
	}
	return out
}

// partialToCoefficients turns partial autocorrelations in (-1, 1) into the
// coefficients of a stationary autoregressive polynomial (Durbin-Levinson).
func partialToCoefficients(r []float64) []float64 {
	p := len(r)
	phi := make([]float64, p)
	prev := make([]float64, p)
	for k := 0; k < p; k++ {
		phi[k] = r[k]
		for j := 0; j < k; j++ {
			phi[j] = prev[j] - r[k]*prev[k-1-j]
		}
		copy(prev, phi)
	}
	return phi
}

// differenceLevels returns the series at every differencing level 0..d
func differenceLevels(values []float64, d int) [][]float64 {
	levels := make([][]float64, d+1)
	levels[0] = append([]float64(nil), values...)
	for k := 1; k <= d; k++ {
		prev := levels[k-1]
		if len(prev) < 2 {
			levels[k] = nil
			continue
		}
		next := make([]float64, len(prev)-1)
		for i := 1; i < len(prev); i++ {
			next[i-1] = prev[i] - prev[i-1]
		}
		levels[k] = next
	}
	return levels
}

// integrate undoes differencing, anchoring each level on its last observation
func integrate(levels [][]float64, forecasts []float64) []float64 {
	current := append([]float64(nil), forecasts...)
	for k := len(levels) - 2; k >= 0; k-- {
		level := levels[k]
		last := level[len(level)-1]
		for i := range current {
			last += current[i]
			current[i] = last
		}
	}
	return current
}

// psiWeights expands the integrated ARMA model into its MA(infinity) weights
func psiWeights(ar, ma []float64, d, h int) []float64 {
	poly := make([]float64, len(ar)+1)
	poly[0] = 1
	for i, phi := range ar {
		poly[i+1] = -phi
	}
	for k := 0; k < d; k++ {
		next := make([]float64, len(poly)+1)
		for i, c := range poly {
			next[i] += c
			next[i+1] -= c
		}
		poly = next
	}

	psi := make([]float64, h)
	for j := 0; j < h; j++ {
		if j == 0 {
			psi[0] = 1
			continue
		}
		value := 0.0
		if j <= len(ma) {
			value = ma[j-1]
		}
		for i := 1; i < len(poly) && i <= j; i++ {
			value += -poly[i] * psi[j-i]
		}
		psi[j] = value
	}
	return psi
}
