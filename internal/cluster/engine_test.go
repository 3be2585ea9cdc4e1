package cluster

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prescription-analytics-api/internal/dataset"
	"prescription-analytics-api/internal/models"
)

func newTestEngine() *Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewEngine(logger)
}

// regionsDataset gives every region four identical monthly costs
func regionsDataset(costs map[string]float64) *dataset.Dataset {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	var obs []models.Observation
	for region, cost := range costs {
		for i := 0; i < 4; i++ {
			obs = append(obs, models.Observation{
				Month:    models.AddMonths(start, i),
				Region:   region,
				Category: "04: Central Nervous System",
				Cost:     cost,
			})
		}
	}
	return dataset.New(obs, dataset.ModeSample, "test")
}

func twoBlobs() *dataset.Dataset {
	return regionsDataset(map[string]float64{
		"A": 100, "B": 101, "C": 102,
		"D": 1000, "E": 1001, "F": 1002,
	})
}

func TestParseAlgorithm(t *testing.T) {
	assert.Equal(t, AlgorithmKMeans, ParseAlgorithm("K-Means"))
	assert.Equal(t, AlgorithmDBSCAN, ParseAlgorithm("DBSCAN"))
	assert.Equal(t, AlgorithmHierarchical, ParseAlgorithm("Hierarchical"))
	assert.Equal(t, AlgorithmHierarchical, ParseAlgorithm(""))
	assert.Equal(t, AlgorithmHierarchical, ParseAlgorithm("spectral"))
}

func TestParseGroupBy(t *testing.T) {
	g, err := ParseGroupBy("category")
	require.NoError(t, err)
	assert.Equal(t, GroupByCategory, g)

	_, err = ParseGroupBy("practice")
	assert.True(t, errors.Is(err, models.ErrInvalidParameter))
}

func TestBuildFeatures(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	ds := dataset.New([]models.Observation{
		{Month: start, Region: "LONDON", Category: "01: Gastro", Cost: 10},
		{Month: models.AddMonths(start, 1), Region: "LONDON", Category: "01: Gastro", Cost: 20},
		{Month: models.AddMonths(start, 2), Region: "LONDON", Category: "01: Gastro", Cost: 30},
		{Month: start, Region: "MIDLANDS", Category: "01: Gastro", Cost: 50},
	}, dataset.ModeSample, "test")

	features := BuildFeatures(ds, GroupByRegion)
	require.Len(t, features, 2)

	london := features[0]
	assert.Equal(t, "LONDON", london.Group)
	assert.Equal(t, 60.0, london.TotalCost)
	assert.Equal(t, 20.0, london.MeanCost)
	assert.Equal(t, 10.0, london.StdCost)
	assert.Equal(t, 3, london.RecordCount)
	assert.Equal(t, 20.0, london.CostPerRecord)
	assert.InDelta(t, 0.5, london.CostVariability, 1e-12)

	midlands := features[1]
	assert.Equal(t, 0.0, midlands.StdCost)
	assert.Equal(t, 0.0, midlands.CostVariability)

	byCategory := BuildFeatures(ds, GroupByCategory)
	require.Len(t, byCategory, 1)
	assert.Equal(t, 4, byCategory[0].RecordCount)
}

func TestEngine_InsufficientVariation(t *testing.T) {
	e := newTestEngine()

	t.Run("identical groups", func(t *testing.T) {
		ds := regionsDataset(map[string]float64{"A": 100, "B": 100, "C": 100, "D": 100, "E": 100})
		result, err := e.Cluster(ds, GroupByRegion, AlgorithmHierarchical, 4)
		require.NoError(t, err)
		assert.Equal(t, StatusInsufficientVariation, result.Status)
		assert.Empty(t, result.Assignments)
	})

	t.Run("no groups", func(t *testing.T) {
		result, err := e.Cluster(dataset.New(nil, dataset.ModeSample, "empty"), GroupByRegion, AlgorithmHierarchical, 2)
		require.NoError(t, err)
		assert.Equal(t, StatusInsufficientVariation, result.Status)
	})

	t.Run("single group", func(t *testing.T) {
		result, err := e.Cluster(regionsDataset(map[string]float64{"A": 5}), GroupByRegion, AlgorithmKMeans, 1)
		require.NoError(t, err)
		assert.Equal(t, StatusInsufficientVariation, result.Status)
	})
}

func TestEngine_InvalidClusterCount(t *testing.T) {
	e := newTestEngine()

	_, err := e.Cluster(twoBlobs(), GroupByRegion, AlgorithmHierarchical, 0)
	assert.True(t, errors.Is(err, models.ErrInvalidParameter))

	_, err = e.Cluster(twoBlobs(), GroupByRegion, AlgorithmHierarchical, 7)
	assert.True(t, errors.Is(err, models.ErrInvalidParameter))
}

func TestEngine_Cluster(t *testing.T) {
	e := newTestEngine()

	for _, algorithm := range []Algorithm{AlgorithmHierarchical, AlgorithmKMeans, AlgorithmDBSCAN} {
		t.Run(string(algorithm), func(t *testing.T) {
			result, err := e.Cluster(twoBlobs(), GroupByRegion, algorithm, 2)
			require.NoError(t, err)
			require.Equal(t, StatusClustered, result.Status)
			require.Len(t, result.Assignments, 6)

			labels := make(map[string]string)
			for _, a := range result.Assignments {
				labels[a.Group] = a.Cluster
			}
			assert.Equal(t, "0", labels["A"])
			assert.Equal(t, labels["A"], labels["B"])
			assert.Equal(t, labels["A"], labels["C"])
			assert.Equal(t, "1", labels["D"])
			assert.Equal(t, labels["D"], labels["E"])
			assert.Equal(t, labels["D"], labels["F"])

			assert.Equal(t, 2, result.Clusters)
			assert.Equal(t, 3, result.LargestCluster)
		})
	}

	t.Run("deterministic", func(t *testing.T) {
		first, err := e.Cluster(twoBlobs(), GroupByRegion, AlgorithmKMeans, 3)
		require.NoError(t, err)
		second, err := e.Cluster(twoBlobs(), GroupByRegion, AlgorithmKMeans, 3)
		require.NoError(t, err)
		assert.Equal(t, first.Assignments, second.Assignments)
	})
}

func TestEngine_ProjectionAndProfiles(t *testing.T) {
	e := newTestEngine()
	result, err := e.Cluster(twoBlobs(), GroupByRegion, AlgorithmHierarchical, 2)
	require.NoError(t, err)

	a, d := result.Assignments[0], result.Assignments[3]
	assert.Less(t, a.PC1*d.PC1, 0.0, "blobs sit on opposite sides of the first component")
	require.Len(t, result.ExplainedVariance, 2)
	assert.InDelta(t, 1.0, result.ExplainedVariance[0], 1e-6)

	require.Len(t, result.Profiles, 2)
	low := result.Profiles[0]
	assert.Equal(t, []string{"A", "B", "C"}, low.Members)
	assert.Equal(t, []string{
		"These regions have lower total costs than average.",
		"They have more stable costs.",
		"Each record tends to have a lower cost.",
	}, low.Reasons)

	high := result.Profiles[1]
	assert.Equal(t, "These regions have higher total costs than average.", high.Reasons[0])
	assert.Equal(t, "Each record tends to have a higher cost.", high.Reasons[2])
}

func TestWardLinkage(t *testing.T) {
	points := [][]float64{{0}, {0.1}, {5}, {5.2}, {10}}
	assert.Equal(t, []int{0, 0, 1, 1, 2}, wardLinkage(points, 3))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, wardLinkage(points, 5))
	assert.Equal(t, []int{0, 0, 0, 0, 0}, wardLinkage(points, 1))
}

func TestDBSCAN(t *testing.T) {
	points := [][]float64{{0}, {0.3}, {5}, {10}, {10.2}}
	assert.Equal(t, []int{0, 0, noiseLabel, 1, 1}, dbscan(points, 0.5, 2))
}
