package outlier

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"prescription-analytics-api/internal/dataset"
	"prescription-analytics-api/internal/models"
	"prescription-analytics-api/pkg/statutil"
)

// Method is a closed set of detection strategies
type Method string

const (
	MethodIQR             Method = "iqr"
	MethodZScore          Method = "z_score"
	MethodIsolationForest Method = "isolation_forest"
	MethodEnsemble        Method = "ensemble"
)

// Granularity selects what values are tested
type Granularity string

const (
	GranularityRecord   Granularity = "record"
	GranularityTemporal Granularity = "temporal"
)

const (
	DefaultThreshold     = 1.5
	DefaultContamination = 0.1
	DefaultSeed          = 42
	ensembleVotes        = 2
)

// ParseMethod maps a method name to a Method. Unrecognised or empty names
// resolve to the ensemble.
func ParseMethod(name string) Method {
	normalized := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(name)))
	switch normalized {
	case "iqr":
		return MethodIQR
	case "z_score", "zscore":
		return MethodZScore
	case "isolation_forest", "isolationforest":
		return MethodIsolationForest
	default:
		return MethodEnsemble
	}
}

// ParseGranularity maps a granularity name, defaulting to record level
func ParseGranularity(name string) (Granularity, error) {
	switch Granularity(strings.ToLower(strings.TrimSpace(name))) {
	case "", GranularityRecord:
		return GranularityRecord, nil
	case GranularityTemporal, "monthly":
		return GranularityTemporal, nil
	default:
		return "", fmt.Errorf("%w: unknown granularity %q", models.ErrInvalidParameter, name)
	}
}

// SupportedMethods returns the detection methods in display order
func SupportedMethods() []Method {
	return []Method{MethodEnsemble, MethodIQR, MethodZScore, MethodIsolationForest}
}

// Detector flags outlying cost values
type Detector struct {
	method        Method
	threshold     float64
	contamination float64
	seed          int64
}

// NewDetector creates a new outlier detector
func NewDetector(method Method, threshold, contamination float64) *Detector {
	if method == "" {
		method = MethodEnsemble
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if contamination <= 0 || contamination >= 1 {
		contamination = DefaultContamination
	}

	return &Detector{
		method:        method,
		threshold:     threshold,
		contamination: contamination,
		seed:          DefaultSeed,
	}
}

// Validate checks the detection parameters
func Validate(threshold, contamination float64) error {
	if threshold <= 0 || math.IsNaN(threshold) {
		return fmt.Errorf("%w: threshold must be positive, got %v", models.ErrInvalidParameter, threshold)
	}
	if contamination <= 0 || contamination >= 1 || math.IsNaN(contamination) {
		return fmt.Errorf("%w: contamination must be in (0, 1), got %v", models.ErrInvalidParameter, contamination)
	}
	return nil
}

// Method returns the detection method
func (d *Detector) Method() Method {
	return d.method
}

// DetectOutliers returns the indices of flagged values in ascending order
func (d *Detector) DetectOutliers(values []float64) []int {
	switch d.method {
	case MethodIQR:
		return d.detectOutliersIQR(values)
	case MethodZScore:
		return d.detectOutliersZScore(values)
	case MethodIsolationForest:
		return d.detectOutliersIsolationForest(values)
	default:
		return d.detectOutliersEnsemble(values)
	}
}

// detectOutliersZScore flags |x - mean| / std above the threshold
func (d *Detector) detectOutliersZScore(values []float64) []int {
	scores := d.calculateZScores(values)
	if scores == nil {
		return nil // No variation in data
	}

	var outliers []int
	for i, score := range scores {
		if score > d.threshold {
			outliers = append(outliers, i)
		}
	}
	return outliers
}

// detectOutliersIQR flags values outside [Q1 - k*IQR, Q3 + k*IQR]
func (d *Detector) detectOutliersIQR(values []float64) []int {
	lower, upper, ok := d.iqrBounds(values)
	if !ok {
		return nil
	}

	var outliers []int
	for i, value := range values {
		if value < lower || value > upper {
			outliers = append(outliers, i)
		}
	}
	return outliers
}

// detectOutliersIsolationForest flags the most isolated contamination share
func (d *Detector) detectOutliersIsolationForest(values []float64) []int {
	scores := d.calculateIsolationScores(values)
	if scores == nil {
		return nil
	}

	cutoff := statutil.Percentile(scores, 1-d.contamination)

	var outliers []int
	for i, score := range scores {
		if score > cutoff {
			outliers = append(outliers, i)
		}
	}
	return outliers
}

// detectOutliersEnsemble flags values that at least two methods agree on
func (d *Detector) detectOutliersEnsemble(values []float64) []int {
	votes := d.ensembleVotes(values)

	var outliers []int
	for i, v := range votes {
		if v >= ensembleVotes {
			outliers = append(outliers, i)
		}
	}
	return outliers
}

func (d *Detector) ensembleVotes(values []float64) []int {
	votes := make([]int, len(values))
	for _, flagged := range [][]int{
		d.detectOutliersIQR(values),
		d.detectOutliersZScore(values),
		d.detectOutliersIsolationForest(values),
	} {
		for _, idx := range flagged {
			votes[idx]++
		}
	}
	return votes
}

// Helper methods

func (d *Detector) iqrBounds(values []float64) (float64, float64, bool) {
	if len(values) == 0 {
		return 0, 0, false
	}

	q1, q3 := statutil.Quartiles(values)
	iqr := q3 - q1
	if iqr == 0 {
		return 0, 0, false // No variation in quartiles
	}

	return q1 - d.threshold*iqr, q3 + d.threshold*iqr, true
}

func (d *Detector) calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, value := range values {
		sum += value
	}
	return sum / float64(len(values))
}

func (d *Detector) calculateStdDev(values []float64, mean float64) float64 {
	if len(values) <= 1 {
		return 0
	}

	sumSquaredDiff := 0.0
	for _, value := range values {
		diff := value - mean
		sumSquaredDiff += diff * diff
	}

	variance := sumSquaredDiff / float64(len(values)-1)
	return math.Sqrt(variance)
}

func (d *Detector) calculateZScores(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}

	mean := d.calculateMean(values)
	stdDev := d.calculateStdDev(values, mean)

	if stdDev == 0 {
		return nil
	}

	scores := make([]float64, len(values))
	for i, value := range values {
		scores[i] = math.Abs((value - mean) / stdDev)
	}
	return scores
}

func (d *Detector) calculateIQRScores(values []float64) []float64 {
	q1, q3 := statutil.Quartiles(values)
	iqr := q3 - q1

	scores := make([]float64, len(values))
	if iqr == 0 {
		return scores
	}

	for i, value := range values {
		if value < q1 {
			scores[i] = (q1 - value) / iqr
		} else if value > q3 {
			scores[i] = (value - q3) / iqr
		}
	}
	return scores
}

func (d *Detector) calculateIsolationScores(values []float64) []float64 {
	if len(values) < minIsolationSamples {
		return nil
	}
	rng := rand.New(rand.NewSource(d.seed))
	forest := fitIsolationForest(values, defaultTrees, defaultMaxSamples, rng)
	return forest.scores(values)
}

// scoreValues returns the per-value score of the configured method
func (d *Detector) scoreValues(values []float64) []float64 {
	switch d.method {
	case MethodIQR:
		return d.calculateIQRScores(values)
	case MethodZScore:
		if scores := d.calculateZScores(values); scores != nil {
			return scores
		}
		return make([]float64, len(values))
	case MethodIsolationForest:
		if scores := d.calculateIsolationScores(values); scores != nil {
			return scores
		}
		return make([]float64, len(values))
	default:
		votes := d.ensembleVotes(values)
		scores := make([]float64, len(values))
		for i, v := range votes {
			scores[i] = float64(v)
		}
		return scores
	}
}

// Flagged is one flagged observation with the score that flagged it
type Flagged struct {
	models.Observation
	Score float64 `json:"score"`
}

// Bounds are the IQR fences used, when defined
type Bounds struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Result contains detailed outlier detection results
type Result struct {
	Method            Method         `json:"method"`
	Granularity       Granularity    `json:"granularity"`
	Threshold         float64        `json:"threshold"`
	Contamination     float64        `json:"contamination"`
	Outliers          []Flagged      `json:"outliers"`
	FlaggedMonths     []time.Time    `json:"flagged_months,omitempty"`
	MethodCounts      map[Method]int `json:"method_counts"`
	Bounds            *Bounds        `json:"bounds,omitempty"`
	TotalValues       int            `json:"total_values"`
	TotalRecords      int            `json:"total_records"`
	OutlierCount      int            `json:"outlier_count"`
	OutlierPercentage float64        `json:"outlier_percentage"`
}

// Detect runs detection over a dataset at the requested granularity.
// Temporal detection tests monthly totals and returns every record of a
// flagged month.
func (d *Detector) Detect(ds *dataset.Dataset, granularity Granularity) (*Result, error) {
	if ds.IsEmpty() {
		return nil, fmt.Errorf("%w: outlier detection needs observations", models.ErrEmptyDataset)
	}

	result := &Result{
		Method:        d.method,
		Granularity:   granularity,
		Threshold:     d.threshold,
		Contamination: d.contamination,
		TotalRecords:  ds.Len(),
		Outliers:      make([]Flagged, 0),
	}

	switch granularity {
	case GranularityTemporal:
		monthly := ds.MonthlyTotals()
		values := monthly.Values()
		flagged := d.DetectOutliers(values)
		scores := d.scoreValues(values)

		monthScores := make(map[time.Time]float64, len(flagged))
		for _, idx := range flagged {
			monthScores[monthly[idx].Month] = scores[idx]
			result.FlaggedMonths = append(result.FlaggedMonths, monthly[idx].Month)
		}
		for _, o := range ds.Observations {
			if score, ok := monthScores[o.Month]; ok {
				result.Outliers = append(result.Outliers, Flagged{Observation: o, Score: score})
			}
		}
		d.describe(result, values)

	default:
		result.Granularity = GranularityRecord
		values := ds.Costs()
		flagged := d.DetectOutliers(values)
		scores := d.scoreValues(values)

		for _, idx := range flagged {
			result.Outliers = append(result.Outliers, Flagged{Observation: ds.Observations[idx], Score: scores[idx]})
		}
		d.describe(result, values)
	}

	sort.SliceStable(result.Outliers, func(i, j int) bool {
		return result.Outliers[i].Score > result.Outliers[j].Score
	})

	result.OutlierCount = len(result.Outliers)
	result.OutlierPercentage = float64(result.OutlierCount) / float64(result.TotalRecords) * 100

	return result, nil
}

func (d *Detector) describe(result *Result, values []float64) {
	result.TotalValues = len(values)
	result.MethodCounts = map[Method]int{
		MethodIQR:             len(d.detectOutliersIQR(values)),
		MethodZScore:          len(d.detectOutliersZScore(values)),
		MethodIsolationForest: len(d.detectOutliersIsolationForest(values)),
	}
	if d.method == MethodEnsemble {
		result.MethodCounts[MethodEnsemble] = len(d.detectOutliersEnsemble(values))
	}
	if lower, upper, ok := d.iqrBounds(values); ok {
		result.Bounds = &Bounds{Lower: lower, Upper: upper}
	}
}
