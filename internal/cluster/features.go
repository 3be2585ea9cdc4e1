package cluster

import (
	"fmt"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"prescription-analytics-api/internal/dataset"
	"prescription-analytics-api/internal/models"
)

// GroupBy is the key observations are grouped by before clustering
type GroupBy string

const (
	GroupByRegion   GroupBy = "region"
	GroupByCategory GroupBy = "category"
)

// ParseGroupBy resolves a grouping key, defaulting to region
func ParseGroupBy(name string) (GroupBy, error) {
	switch GroupBy(strings.ToLower(strings.TrimSpace(name))) {
	case "", GroupByRegion:
		return GroupByRegion, nil
	case GroupByCategory, "bnf", "bnf_category":
		return GroupByCategory, nil
	default:
		return "", fmt.Errorf("%w: unknown grouping key %q", models.ErrInvalidParameter, name)
	}
}

// noun is the plural used in cluster explanations
func (g GroupBy) noun() string {
	if g == GroupByCategory {
		return "categories"
	}
	return "regions"
}

func (g GroupBy) key(o models.Observation) string {
	if g == GroupByCategory {
		return o.Category
	}
	return o.Region
}

// FeatureNames lists the columns that are standardized and clustered
var FeatureNames = []string{"total_cost", "mean_cost", "cost_variability", "cost_per_record"}

// GroupFeatures are the summary statistics of one group's costs
type GroupFeatures struct {
	Group           string  `json:"group"`
	TotalCost       float64 `json:"total_cost"`
	MeanCost        float64 `json:"mean_cost"`
	StdCost         float64 `json:"std_cost"`
	RecordCount     int     `json:"record_count"`
	CostPerRecord   float64 `json:"cost_per_record"`
	CostVariability float64 `json:"cost_variability"`
}

func (f GroupFeatures) vector() []float64 {
	return []float64{f.TotalCost, f.MeanCost, f.CostVariability, f.CostPerRecord}
}

// BuildFeatures summarises costs per group, sorted by group name. Sum, mean
// and std are rounded to two decimals before the derived ratios are taken.
func BuildFeatures(ds *dataset.Dataset, groupBy GroupBy) []GroupFeatures {
	costs := make(map[string]stats.Float64Data)
	for _, o := range ds.Observations {
		k := groupBy.key(o)
		costs[k] = append(costs[k], o.Cost)
	}

	groups := make([]string, 0, len(costs))
	for g := range costs {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	features := make([]GroupFeatures, 0, len(groups))
	for _, g := range groups {
		features = append(features, summarize(g, costs[g]))
	}
	return features
}

func summarize(group string, data stats.Float64Data) GroupFeatures {
	f := GroupFeatures{Group: group, RecordCount: data.Len()}

	total, _ := data.Sum()
	mean, _ := data.Mean()
	f.TotalCost = round2(total)
	f.MeanCost = round2(mean)

	// a single record has no sample deviation
	if data.Len() > 1 {
		std, err := data.StandardDeviationSample()
		if err == nil {
			f.StdCost = round2(std)
		}
	}

	if f.RecordCount > 0 {
		f.CostPerRecord = f.TotalCost / float64(f.RecordCount)
	}
	if f.MeanCost != 0 {
		f.CostVariability = f.StdCost / f.MeanCost
	}
	return f
}

func round2(v float64) float64 {
	r, err := stats.Round(v, 2)
	if err != nil {
		return v
	}
	return r
}

// featureMatrix returns the n x 4 matrix of clustering features
func featureMatrix(features []GroupFeatures) *mat.Dense {
	x := mat.NewDense(len(features), len(FeatureNames), nil)
	for i, f := range features {
		x.SetRow(i, f.vector())
	}
	return x
}

// hasVariation reports whether the summed sample std of the feature
// columns is positive
func hasVariation(x *mat.Dense) bool {
	r, c := x.Dims()
	if r < 2 {
		return false
	}
	total := 0.0
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		total += stat.StdDev(col, nil)
	}
	return total > 0
}

// standardize scales each column to zero mean and unit population
// variance. Constant columns become zero.
func standardize(x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		mean, std := stat.PopMeanStdDev(col, nil)
		for i := 0; i < r; i++ {
			if std == 0 {
				out.Set(i, j, 0)
				continue
			}
			out.Set(i, j, (col[i]-mean)/std)
		}
	}
	return out
}

func rows(x *mat.Dense) [][]float64 {
	r, _ := x.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		out[i] = mat.Row(nil, i, x)
	}
	return out
}
