package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prescription-analytics-api/internal/models"
)

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

func sampleDataset() *Dataset {
	return New([]models.Observation{
		{Month: month(2023, 2), Region: "LONDON", Category: "01: A", Cost: 20},
		{Month: month(2023, 1), Region: "LONDON", Category: "01: A", Cost: 10},
		{Month: month(2023, 1), Region: "LONDON", Category: "01: A", Cost: 5},
		{Month: month(2023, 4), Region: "LONDON", Category: "01: A", Cost: 40},
		{Month: month(2023, 1), Region: "MIDLANDS", Category: "02: B", Cost: 7},
	}, ModeReal, "test")
}

func TestDataset_Series(t *testing.T) {
	ds := sampleDataset()

	series := ds.Series("LONDON", "01: A")
	require.Len(t, series, 3)
	assert.Equal(t, month(2023, 1), series[0].Month)
	assert.Equal(t, 15.0, series[0].Value)
	// March is missing and stays missing
	assert.Equal(t, month(2023, 4), series[2].Month)
}

func TestDataset_GroupedSeries(t *testing.T) {
	keys, series := sampleDataset().GroupedSeries()
	require.Len(t, keys, 2)
	assert.Equal(t, models.SeriesKey{Region: "LONDON", Category: "01: A"}, keys[0])
	assert.Len(t, series[keys[1]], 1)
}

func TestDataset_Filter(t *testing.T) {
	ds := sampleDataset()
	filtered := ds.Filter(models.DateRange{From: month(2023, 2), To: month(2023, 3)})
	assert.Equal(t, 1, filtered.Len())

	assert.Same(t, ds, ds.Filter(models.DateRange{}))
}

func TestDataset_Accessors(t *testing.T) {
	ds := sampleDataset()
	assert.Equal(t, []string{"LONDON", "MIDLANDS"}, ds.Regions())
	assert.Equal(t, []string{"01: A", "02: B"}, ds.Categories())
	assert.True(t, ds.HasRegion("MIDLANDS"))
	assert.False(t, ds.HasRegion("WALES"))
	assert.Equal(t, 82.0, ds.TotalCost())

	first, last := ds.MonthRange()
	assert.Equal(t, month(2023, 1), first)
	assert.Equal(t, month(2023, 4), last)

	monthly := ds.MonthlyTotals()
	require.Len(t, monthly, 3)
	assert.Equal(t, 22.0, monthly[0].Value)
}
