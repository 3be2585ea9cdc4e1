package insights

import (
	"fmt"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"prescription-analytics-api/internal/dataset"
	"prescription-analytics-api/internal/models"
)

// DefaultTrendCategories is how many categories a trend view carries
const DefaultTrendCategories = 8

var hundred = decimal.NewFromInt(100)

// money rounds a float cost to pence
func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// RegionKPI holds the dashboard indicators of one region
type RegionKPI struct {
	Region         string               `json:"region"`
	TotalCost      decimal.Decimal      `json:"total_cost"`
	MonthlyAverage decimal.Decimal      `json:"monthly_average"`
	Rank           int                  `json:"rank"`
	RegionCount    int                  `json:"region_count"`
	MarketShare    decimal.Decimal      `json:"market_share"`
	Coordinates    *dataset.Coordinates `json:"coordinates,omitempty"`
	Trend          models.Series        `json:"trend,omitempty"`
}

// NationalOverview summarises monthly totals over all regions
type NationalOverview struct {
	TotalCost      decimal.Decimal  `json:"total_cost"`
	MonthlyAverage decimal.Decimal  `json:"monthly_average"`
	GrowthRate     *decimal.Decimal `json:"growth_rate"`
	Monthly        models.Series    `json:"monthly"`
}

// CategoryTotal is one category's total cost
type CategoryTotal struct {
	Category  string          `json:"category"`
	Code      string          `json:"code"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// CategoryOverview summarises a selection of categories
type CategoryOverview struct {
	Totals      []CategoryTotal `json:"totals"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	AverageCost decimal.Decimal `json:"average_cost"`
	Records     int             `json:"records"`
	TopCategory string          `json:"top_category,omitempty"`
}

// CategoryTrend is the monthly total series of one category
type CategoryTrend struct {
	Category string        `json:"category"`
	Monthly  models.Series `json:"monthly"`
	// Seasonal is the mean monthly total per calendar month, January first
	Seasonal []*float64              `json:"seasonal"`
	Annual   map[int]decimal.Decimal `json:"annual"`
}

// Calculator derives dashboard and category indicators
type Calculator struct {
	logger *logrus.Logger
}

// NewCalculator creates a new insights calculator
func NewCalculator(logger *logrus.Logger) *Calculator {
	return &Calculator{logger: logger}
}

// RegionRankings returns every region's KPIs, highest total first
func (c *Calculator) RegionRankings(ds *dataset.Dataset) []RegionKPI {
	totals := make(map[string]float64)
	for _, o := range ds.Observations {
		totals[o.Region] += o.Cost
	}
	national := ds.TotalCost()

	kpis := make([]RegionKPI, 0, len(totals))
	for region, total := range totals {
		kpi := RegionKPI{
			Region:         region,
			TotalCost:      money(total),
			MonthlyAverage: money(meanOf(ds.RegionSeries(region).Values())),
			RegionCount:    len(totals),
			MarketShare:    decimal.Zero,
		}
		if national > 0 {
			kpi.MarketShare = decimal.NewFromFloat(total).Div(decimal.NewFromFloat(national)).Mul(hundred).Round(2)
		}
		if coords, ok := dataset.RegionCoordinates(region); ok {
			kpi.Coordinates = &coords
		}
		kpis = append(kpis, kpi)
	}

	sort.Slice(kpis, func(i, j int) bool {
		if totals[kpis[i].Region] != totals[kpis[j].Region] {
			return totals[kpis[i].Region] > totals[kpis[j].Region]
		}
		return kpis[i].Region < kpis[j].Region
	})

	// equal totals share the best rank
	for i := range kpis {
		if i > 0 && totals[kpis[i].Region] == totals[kpis[i-1].Region] {
			kpis[i].Rank = kpis[i-1].Rank
			continue
		}
		kpis[i].Rank = i + 1
	}
	return kpis
}

// RegionKPIs returns the KPIs and monthly trend of one region
func (c *Calculator) RegionKPIs(ds *dataset.Dataset, region string) (*RegionKPI, error) {
	if !ds.HasRegion(region) {
		return nil, fmt.Errorf("%w: region %q", models.ErrUnknownGroup, region)
	}

	for _, kpi := range c.RegionRankings(ds) {
		if kpi.Region == region {
			kpi.Trend = ds.RegionSeries(region)
			return &kpi, nil
		}
	}
	return nil, fmt.Errorf("%w: region %q", models.ErrUnknownGroup, region)
}

// National returns national monthly totals and their growth over the range
func (c *Calculator) National(ds *dataset.Dataset) *NationalOverview {
	monthly := ds.MonthlyTotals()
	overview := &NationalOverview{
		TotalCost:      money(ds.TotalCost()),
		MonthlyAverage: money(meanOf(monthly.Values())),
		Monthly:        monthly,
	}

	if len(monthly) > 0 && monthly[0].Value != 0 {
		first := decimal.NewFromFloat(monthly[0].Value)
		last := decimal.NewFromFloat(monthly[len(monthly)-1].Value)
		growth := last.Sub(first).Div(first).Mul(hundred).Round(2)
		overview.GrowthRate = &growth
	}
	return overview
}

// Categories summarises the selected categories, or all when none are
// selected. Unknown selections are ignored.
func (c *Calculator) Categories(ds *dataset.Dataset, selected []string) *CategoryOverview {
	filtered := selectCategories(ds, selected)

	overview := &CategoryOverview{
		Totals:      categoryTotals(filtered),
		TotalCost:   money(filtered.TotalCost()),
		AverageCost: decimal.Zero,
		Records:     filtered.Len(),
	}
	if overview.Records > 0 {
		overview.AverageCost = money(filtered.TotalCost() / float64(overview.Records))
	}
	if len(overview.Totals) > 0 {
		overview.TopCategory = overview.Totals[0].Code
	}
	return overview
}

// CategoryTrends returns monthly series for the top categories by total
// cost within the selection
func (c *Calculator) CategoryTrends(ds *dataset.Dataset, selected []string, top int) []CategoryTrend {
	if top <= 0 {
		top = DefaultTrendCategories
	}

	filtered := selectCategories(ds, selected)
	totals := categoryTotals(filtered)
	if len(totals) > top {
		totals = totals[:top]
	}

	trends := make([]CategoryTrend, 0, len(totals))
	for _, t := range totals {
		category := t.Category
		monthly := filtered.Where(func(o models.Observation) bool { return o.Category == category }).MonthlyTotals()
		trends = append(trends, CategoryTrend{
			Category: category,
			Monthly:  monthly,
			Seasonal: seasonal(monthly),
			Annual:   annual(monthly),
		})
	}

	c.logger.WithFields(logrus.Fields{
		"selected": len(selected),
		"trends":   len(trends),
	}).Debug("Category trends computed")

	return trends
}

func selectCategories(ds *dataset.Dataset, selected []string) *dataset.Dataset {
	if len(selected) == 0 {
		return ds
	}
	keep := make(map[string]bool, len(selected))
	for _, s := range selected {
		keep[s] = true
	}
	return ds.Where(func(o models.Observation) bool { return keep[o.Category] })
}

func categoryTotals(ds *dataset.Dataset) []CategoryTotal {
	sums := make(map[string]float64)
	for _, o := range ds.Observations {
		sums[o.Category] += o.Cost
	}

	totals := make([]CategoryTotal, 0, len(sums))
	for category := range sums {
		totals = append(totals, CategoryTotal{
			Category:  category,
			Code:      models.CategoryCode(category),
			TotalCost: money(sums[category]),
		})
	}
	sort.Slice(totals, func(i, j int) bool {
		if sums[totals[i].Category] != sums[totals[j].Category] {
			return sums[totals[i].Category] > sums[totals[j].Category]
		}
		return totals[i].Category < totals[j].Category
	})
	return totals
}

func seasonal(monthly models.Series) []*float64 {
	var sums [12]float64
	var counts [12]int
	for _, p := range monthly {
		m := p.Month.Month() - time.January
		sums[m] += p.Value
		counts[m]++
	}

	out := make([]*float64, 12)
	for m := range out {
		if counts[m] > 0 {
			out[m] = models.Finite(sums[m] / float64(counts[m]))
		}
	}
	return out
}

func annual(monthly models.Series) map[int]decimal.Decimal {
	sums := make(map[int]float64)
	for _, p := range monthly {
		sums[p.Month.Year()] += p.Value
	}
	out := make(map[int]decimal.Decimal, len(sums))
	for year, total := range sums {
		out[year] = money(total)
	}
	return out
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return 0
	}
	return mean
}
