package fairness

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"prescription-analytics-api/internal/models"
)

// TestResult is the outcome of one hypothesis test
type TestResult struct {
	Statistic   float64 `json:"statistic"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
}

// neutralResult is reported when a test cannot be computed
var neutralResult = TestResult{Statistic: 0, PValue: 1}

func newTestResult(statistic, pValue float64) TestResult {
	pValue = math.Min(1, math.Max(0, pValue))
	return TestResult{
		Statistic:   statistic,
		PValue:      pValue,
		Significant: pValue < SignificanceLevel,
	}
}

func checkGroups(groups [][]float64) error {
	if len(groups) < 2 {
		return fmt.Errorf("%w: need at least two groups, have %d", models.ErrDegenerateInput, len(groups))
	}
	for i, g := range groups {
		if len(g) < 2 {
			return fmt.Errorf("%w: group %d has %d observations", models.ErrDegenerateInput, i, len(g))
		}
	}
	return nil
}

// OneWayANOVA tests whether the group means differ
func OneWayANOVA(groups [][]float64) (TestResult, error) {
	if err := checkGroups(groups); err != nil {
		return neutralResult, err
	}

	var all []float64
	for _, g := range groups {
		all = append(all, g...)
	}
	grandMean := stat.Mean(all, nil)

	ssBetween, ssWithin := 0.0, 0.0
	for _, g := range groups {
		mean := stat.Mean(g, nil)
		ssBetween += float64(len(g)) * (mean - grandMean) * (mean - grandMean)
		for _, v := range g {
			ssWithin += (v - mean) * (v - mean)
		}
	}

	dfBetween := float64(len(groups) - 1)
	dfWithin := float64(len(all) - len(groups))
	if dfWithin <= 0 || ssWithin == 0 {
		return neutralResult, fmt.Errorf("%w: no within-group variance", models.ErrDegenerateInput)
	}

	f := (ssBetween / dfBetween) / (ssWithin / dfWithin)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return neutralResult, fmt.Errorf("%w: F statistic is not finite", models.ErrDegenerateInput)
	}

	dist := distuv.F{D1: dfBetween, D2: dfWithin}
	return newTestResult(f, 1-dist.CDF(f)), nil
}

// KruskalWallis tests whether the groups come from the same distribution,
// using average ranks for ties and the tie correction.
func KruskalWallis(groups [][]float64) (TestResult, error) {
	if err := checkGroups(groups); err != nil {
		return neutralResult, err
	}

	type ranked struct {
		value float64
		group int
	}
	var all []ranked
	for gi, g := range groups {
		for _, v := range g {
			all = append(all, ranked{value: v, group: gi})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].value < all[j].value })

	n := float64(len(all))
	rankSums := make([]float64, len(groups))
	tieSum := 0.0
	for i := 0; i < len(all); {
		j := i
		for j < len(all) && all[j].value == all[i].value {
			j++
		}
		avgRank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			rankSums[all[k].group] += avgRank
		}
		t := float64(j - i)
		tieSum += t*t*t - t
		i = j
	}

	correction := 1 - tieSum/(n*n*n-n)
	if correction <= 0 {
		return neutralResult, fmt.Errorf("%w: all values are identical", models.ErrDegenerateInput)
	}

	h := 0.0
	for gi, g := range groups {
		h += rankSums[gi] * rankSums[gi] / float64(len(g))
	}
	h = 12/(n*(n+1))*h - 3*(n+1)
	h /= correction

	dist := distuv.ChiSquared{K: float64(len(groups) - 1)}
	return newTestResult(h, 1-dist.CDF(h)), nil
}
