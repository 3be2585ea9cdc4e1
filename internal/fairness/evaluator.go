package fairness

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"prescription-analytics-api/internal/backtest"
	"prescription-analytics-api/internal/models"
	"prescription-analytics-api/pkg/statutil"
)

const (
	// SignificanceLevel flags a statistically significant regional difference
	SignificanceLevel = 0.05
	// ParityGapThreshold flags a material fairness concern
	ParityGapThreshold = 0.1
	// HighCostPercentile sets the high-cost threshold on mean actual cost
	HighCostPercentile = 0.75
)

// RegionParity aggregates forecast error for one region
type RegionParity struct {
	Region            string  `json:"region"`
	Records           int     `json:"records"`
	HighCostRate      float64 `json:"high_cost_rate"`
	RelativeErrorRate float64 `json:"relative_error_rate"`
	MAEMean           float64 `json:"mae_mean"`
	BiasMean          float64 `json:"bias_mean"`
}

// Summary is the fairness audit of a set of error records
type Summary struct {
	CostThreshold    float64        `json:"cost_threshold"`
	Regions          []RegionParity `json:"regions"`
	ParityGap        float64        `json:"parity_gap"`
	ParityConcern    bool           `json:"parity_concern"`
	BiasANOVA        TestResult     `json:"bias_anova"`
	MAEKruskal       TestResult     `json:"mae_kruskal"`
	BiasKruskal      TestResult     `json:"bias_kruskal"`
	TestsDegenerate  bool           `json:"tests_degenerate"`
	DegenerateReason string         `json:"degenerate_reason,omitempty"`
	RecordCount      int            `json:"record_count"`
}

// Evaluator audits forecast error parity across regions
type Evaluator struct {
	logger *logrus.Logger
}

// NewEvaluator creates a new fairness evaluator
func NewEvaluator(logger *logrus.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Evaluate builds the fairness summary. Hypothesis tests that cannot be
// computed make all three tests report statistic 0 and p-value 1.
func (e *Evaluator) Evaluate(records []backtest.ErrorRecord) (*Summary, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no error records to evaluate", models.ErrEmptyDataset)
	}

	meanActuals := make([]float64, len(records))
	for i, r := range records {
		meanActuals[i] = r.MeanActual
	}
	threshold := statutil.Percentile(meanActuals, HighCostPercentile)

	byRegion := make(map[string][]backtest.ErrorRecord)
	for _, r := range records {
		byRegion[r.Region] = append(byRegion[r.Region], r)
	}
	regions := make([]string, 0, len(byRegion))
	for region := range byRegion {
		regions = append(regions, region)
	}
	sort.Strings(regions)

	summary := &Summary{
		CostThreshold: threshold,
		Regions:       make([]RegionParity, 0, len(regions)),
		RecordCount:   len(records),
	}

	maeGroups := make([][]float64, 0, len(regions))
	biasGroups := make([][]float64, 0, len(regions))
	minRate, maxRate := math.Inf(1), math.Inf(-1)

	for _, region := range regions {
		rs := byRegion[region]
		maes := make([]float64, len(rs))
		biases := make([]float64, len(rs))
		actuals := make([]float64, len(rs))
		highCost := 0
		for i, r := range rs {
			maes[i] = r.MAE
			biases[i] = r.Bias
			actuals[i] = r.MeanActual
			if r.MeanActual >= threshold {
				highCost++
			}
		}

		maeMean := stat.Mean(maes, nil)
		actualMean := stat.Mean(actuals, nil)
		relative := 0.0
		if actualMean != 0 {
			relative = maeMean / actualMean
		}

		summary.Regions = append(summary.Regions, RegionParity{
			Region:            region,
			Records:           len(rs),
			HighCostRate:      float64(highCost) / float64(len(rs)),
			RelativeErrorRate: relative,
			MAEMean:           maeMean,
			BiasMean:          stat.Mean(biases, nil),
		})

		minRate = math.Min(minRate, relative)
		maxRate = math.Max(maxRate, relative)
		maeGroups = append(maeGroups, maes)
		biasGroups = append(biasGroups, biases)
	}

	summary.ParityGap = maxRate - minRate
	summary.ParityConcern = summary.ParityGap > ParityGapThreshold

	e.runTests(summary, maeGroups, biasGroups)

	e.logger.WithFields(logrus.Fields{
		"regions":    len(regions),
		"records":    len(records),
		"parity_gap": summary.ParityGap,
		"degenerate": summary.TestsDegenerate,
	}).Debug("Fairness evaluated")

	return summary, nil
}

func (e *Evaluator) runTests(summary *Summary, maeGroups, biasGroups [][]float64) {
	anova, errANOVA := OneWayANOVA(biasGroups)
	maeKW, errMAE := KruskalWallis(maeGroups)
	biasKW, errBias := KruskalWallis(biasGroups)

	for _, err := range []error{errANOVA, errMAE, errBias} {
		if err != nil {
			summary.BiasANOVA = neutralResult
			summary.MAEKruskal = neutralResult
			summary.BiasKruskal = neutralResult
			summary.TestsDegenerate = true
			summary.DegenerateReason = err.Error()
			return
		}
	}

	summary.BiasANOVA = anova
	summary.MAEKruskal = maeKW
	summary.BiasKruskal = biasKW
}
