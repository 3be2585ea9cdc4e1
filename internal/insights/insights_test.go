package insights

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prescription-analytics-api/internal/dataset"
	"prescription-analytics-api/internal/models"
)

func newTestCalculator() *Calculator {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewCalculator(logger)
}

func obs(year int, month time.Month, region, category string, cost float64) models.Observation {
	return models.Observation{
		Month:    time.Date(year, month, 1, 0, 0, 0, 0, time.UTC),
		Region:   region,
		Category: category,
		Cost:     cost,
	}
}

func sampleDataset() *dataset.Dataset {
	return dataset.New([]models.Observation{
		obs(2024, time.January, "LONDON", "01: Gastro", 100),
		obs(2024, time.January, "LONDON", "02: Cardio", 300),
		obs(2024, time.February, "LONDON", "01: Gastro", 200),
		obs(2024, time.January, "MIDLANDS", "01: Gastro", 200),
		obs(2024, time.February, "MIDLANDS", "02: Cardio", 400),
		obs(2025, time.January, "EAST OF ENGLAND", "02: Cardio", 50),
		obs(2025, time.January, "NORTH WEST", "03: Respiratory", 50),
	}, dataset.ModeSample, "test")
}

func TestCalculator_RegionRankings(t *testing.T) {
	c := newTestCalculator()
	kpis := c.RegionRankings(sampleDataset())
	require.Len(t, kpis, 4)

	// LONDON and MIDLANDS both total 600
	assert.Equal(t, "LONDON", kpis[0].Region)
	assert.Equal(t, 1, kpis[0].Rank)
	assert.Equal(t, "MIDLANDS", kpis[1].Region)
	assert.Equal(t, 1, kpis[1].Rank)
	assert.Equal(t, 3, kpis[2].Rank)
	assert.Equal(t, 3, kpis[3].Rank)

	assert.True(t, decimal.NewFromInt(600).Equal(kpis[0].TotalCost))
	assert.True(t, decimal.RequireFromString("46.15").Equal(kpis[0].MarketShare))
	assert.Equal(t, 4, kpis[0].RegionCount)
	assert.NotNil(t, kpis[0].Coordinates)
}

func TestCalculator_RegionKPIs(t *testing.T) {
	c := newTestCalculator()

	kpi, err := c.RegionKPIs(sampleDataset(), "LONDON")
	require.NoError(t, err)
	// monthly sums 400 and 200
	assert.True(t, decimal.NewFromInt(300).Equal(kpi.MonthlyAverage))
	assert.Len(t, kpi.Trend, 2)

	_, err = c.RegionKPIs(sampleDataset(), "ATLANTIS")
	assert.True(t, errors.Is(err, models.ErrUnknownGroup))
}

func TestCalculator_National(t *testing.T) {
	c := newTestCalculator()
	overview := c.National(sampleDataset())

	assert.True(t, decimal.NewFromInt(1300).Equal(overview.TotalCost))
	require.Len(t, overview.Monthly, 3)
	// 600, 600, 100
	require.NotNil(t, overview.GrowthRate)
	assert.True(t, decimal.RequireFromString("-83.33").Equal(*overview.GrowthRate))
}

func TestCalculator_Categories(t *testing.T) {
	c := newTestCalculator()
	ds := sampleDataset()

	all := c.Categories(ds, nil)
	require.Len(t, all.Totals, 3)
	assert.Equal(t, "02: Cardio", all.Totals[0].Category)
	assert.Equal(t, "02", all.TopCategory)
	assert.Equal(t, 7, all.Records)

	selected := c.Categories(ds, []string{"01: Gastro"})
	require.Len(t, selected.Totals, 1)
	assert.True(t, decimal.NewFromInt(500).Equal(selected.TotalCost))
	assert.True(t, decimal.RequireFromString("166.67").Equal(selected.AverageCost))
}

func TestCalculator_CategoryTrends(t *testing.T) {
	c := newTestCalculator()

	trends := c.CategoryTrends(sampleDataset(), nil, 2)
	require.Len(t, trends, 2)
	assert.Equal(t, "02: Cardio", trends[0].Category)
	assert.Equal(t, "01: Gastro", trends[1].Category)

	cardio := trends[0]
	require.Len(t, cardio.Seasonal, 12)
	require.NotNil(t, cardio.Seasonal[0])
	// January totals 300 (2024) and 50 (2025)
	assert.InDelta(t, 175, *cardio.Seasonal[0], 1e-9)
	assert.Nil(t, cardio.Seasonal[5])
	assert.True(t, decimal.NewFromInt(700).Equal(cardio.Annual[2024]))

	assert.Len(t, c.CategoryTrends(sampleDataset(), nil, 0), 3)
}
