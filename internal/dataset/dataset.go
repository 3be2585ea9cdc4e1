package dataset

import (
	"sort"
	"time"

	"prescription-analytics-api/internal/models"
)

// Mode reports where a dataset came from
type Mode string

const (
	ModeReal   Mode = "real"
	ModeSample Mode = "sample"
)

// Dataset is an immutable set of observations shared read-only between analyses
type Dataset struct {
	Observations []models.Observation `json:"-"`
	Mode         Mode                 `json:"mode"`
	Source       string               `json:"source"`
	DroppedRows  int                  `json:"dropped_rows"`
	LoadedAt     time.Time            `json:"loaded_at"`
}

// New wraps observations in a dataset
func New(observations []models.Observation, mode Mode, source string) *Dataset {
	return &Dataset{
		Observations: observations,
		Mode:         mode,
		Source:       source,
		LoadedAt:     time.Now().UTC(),
	}
}

// Len returns the number of observations
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Observations)
}

// IsEmpty reports whether there is anything to analyse
func (d *Dataset) IsEmpty() bool {
	return d.Len() == 0
}

// Filter returns a dataset restricted to an inclusive month range
func (d *Dataset) Filter(r models.DateRange) *Dataset {
	if r.IsZero() {
		return d
	}
	filtered := make([]models.Observation, 0, len(d.Observations))
	for _, o := range d.Observations {
		if r.Contains(o.Month) {
			filtered = append(filtered, o)
		}
	}
	return &Dataset{
		Observations: filtered,
		Mode:         d.Mode,
		Source:       d.Source,
		DroppedRows:  d.DroppedRows,
		LoadedAt:     d.LoadedAt,
	}
}

// Where returns a dataset holding only the observations accepted by keep
func (d *Dataset) Where(keep func(models.Observation) bool) *Dataset {
	filtered := make([]models.Observation, 0)
	for _, o := range d.Observations {
		if keep(o) {
			filtered = append(filtered, o)
		}
	}
	return &Dataset{
		Observations: filtered,
		Mode:         d.Mode,
		Source:       d.Source,
		DroppedRows:  d.DroppedRows,
		LoadedAt:     d.LoadedAt,
	}
}

// SeriesFor returns the monthly totals of the observations accepted by keep
func (d *Dataset) SeriesFor(keep func(models.Observation) bool) models.Series {
	return d.Where(keep).MonthlyTotals()
}

// Regions returns the sorted distinct region labels
func (d *Dataset) Regions() []string {
	return d.distinct(func(o models.Observation) string { return o.Region })
}

// Categories returns the sorted distinct category labels
func (d *Dataset) Categories() []string {
	return d.distinct(func(o models.Observation) string { return o.Category })
}

// HasRegion reports whether any observation belongs to region
func (d *Dataset) HasRegion(region string) bool {
	for _, o := range d.Observations {
		if o.Region == region {
			return true
		}
	}
	return false
}

// MonthRange returns the first and last observed months
func (d *Dataset) MonthRange() (time.Time, time.Time) {
	var first, last time.Time
	for i, o := range d.Observations {
		if i == 0 || o.Month.Before(first) {
			first = o.Month
		}
		if i == 0 || o.Month.After(last) {
			last = o.Month
		}
	}
	return first, last
}

// TotalCost sums every observation
func (d *Dataset) TotalCost() float64 {
	total := 0.0
	for _, o := range d.Observations {
		total += o.Cost
	}
	return total
}

// Costs returns the cost of every observation in dataset order
func (d *Dataset) Costs() []float64 {
	costs := make([]float64, len(d.Observations))
	for i, o := range d.Observations {
		costs[i] = o.Cost
	}
	return costs
}

// MonthlyTotals sums cost per month across the whole dataset
func (d *Dataset) MonthlyTotals() models.Series {
	return aggregate(d.Observations)
}

// RegionSeries sums cost per month for one region
func (d *Dataset) RegionSeries(region string) models.Series {
	return aggregate(d.Where(func(o models.Observation) bool { return o.Region == region }).Observations)
}

// Series sums cost per month for one (region, category) pair
func (d *Dataset) Series(region, category string) models.Series {
	return aggregate(d.Where(func(o models.Observation) bool {
		return o.Region == region && o.Category == category
	}).Observations)
}

// GroupedSeries builds every (region, category) series in one pass.
// Keys are returned sorted by region then category.
func (d *Dataset) GroupedSeries() ([]models.SeriesKey, map[models.SeriesKey]models.Series) {
	buckets := make(map[models.SeriesKey][]models.Observation)
	for _, o := range d.Observations {
		key := models.SeriesKey{Region: o.Region, Category: o.Category}
		buckets[key] = append(buckets[key], o)
	}

	keys := make([]models.SeriesKey, 0, len(buckets))
	series := make(map[models.SeriesKey]models.Series, len(buckets))
	for key, obs := range buckets {
		keys = append(keys, key)
		series[key] = aggregate(obs)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Region != keys[j].Region {
			return keys[i].Region < keys[j].Region
		}
		return keys[i].Category < keys[j].Category
	})
	return keys, series
}

func (d *Dataset) distinct(field func(models.Observation) string) []string {
	seen := make(map[string]struct{})
	for _, o := range d.Observations {
		seen[field(o)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// aggregate sums observations by month. Missing months stay missing.
func aggregate(observations []models.Observation) models.Series {
	totals := make(map[time.Time]float64)
	for _, o := range observations {
		totals[o.Month] += o.Cost
	}
	series := make(models.Series, 0, len(totals))
	for month, total := range totals {
		series = append(series, models.SeriesPoint{Month: month, Value: total})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Month.Before(series[j].Month) })
	return series
}
