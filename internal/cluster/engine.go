package cluster

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"

	"prescription-analytics-api/internal/dataset"
	"prescription-analytics-api/internal/models"
)

// Algorithm is a closed set of clustering strategies
type Algorithm string

const (
	AlgorithmHierarchical Algorithm = "hierarchical"
	AlgorithmKMeans       Algorithm = "kmeans"
	AlgorithmDBSCAN       Algorithm = "dbscan"
)

// ParseAlgorithm resolves an algorithm name. Unrecognised or empty names
// resolve to hierarchical clustering.
func ParseAlgorithm(name string) Algorithm {
	normalized := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(name)))
	switch normalized {
	case "kmeans":
		return AlgorithmKMeans
	case "dbscan":
		return AlgorithmDBSCAN
	default:
		return AlgorithmHierarchical
	}
}

// Status describes whether clustering produced labels
type Status string

const (
	StatusClustered             Status = "clustered"
	StatusInsufficientVariation Status = "insufficient_variation"
)

const (
	DefaultClusters = 4
	DefaultSeed     = 42
	// NoiseLabel marks points density clustering left unassigned
	NoiseLabel = "-1"
)

// Assignment places one group in a cluster and on the 2D projection
type Assignment struct {
	GroupFeatures
	Cluster string  `json:"cluster"`
	PC1     float64 `json:"pc1"`
	PC2     float64 `json:"pc2"`
}

// Profile describes one cluster relative to all groups
type Profile struct {
	Cluster             string   `json:"cluster"`
	Size                int      `json:"size"`
	Members             []string `json:"members"`
	MeanTotalCost       float64  `json:"mean_total_cost"`
	MeanCost            float64  `json:"mean_cost"`
	MeanCostVariability float64  `json:"mean_cost_variability"`
	MeanCostPerRecord   float64  `json:"mean_cost_per_record"`
	Reasons             []string `json:"reasons"`
}

// Result is the outcome of a clustering run
type Result struct {
	Status            Status          `json:"status"`
	Message           string          `json:"message,omitempty"`
	GroupBy           GroupBy         `json:"group_by"`
	Algorithm         Algorithm       `json:"algorithm"`
	Clusters          int             `json:"clusters"`
	Features          []GroupFeatures `json:"features"`
	Assignments       []Assignment    `json:"assignments,omitempty"`
	Profiles          []Profile       `json:"profiles,omitempty"`
	ExplainedVariance []float64       `json:"explained_variance,omitempty"`
	LargestCluster    int             `json:"largest_cluster,omitempty"`
}

// Engine derives group features and partitions groups
type Engine struct {
	seed   int64
	logger *logrus.Logger
}

// NewEngine creates a new cluster engine
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{seed: DefaultSeed, logger: logger}
}

// Cluster partitions the dataset's groups into k clusters. Zero groups or
// features without variation yield StatusInsufficientVariation and no labels.
func (e *Engine) Cluster(ds *dataset.Dataset, groupBy GroupBy, algorithm Algorithm, k int) (*Result, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: cluster count must be at least 1, got %d", models.ErrInvalidParameter, k)
	}

	features := BuildFeatures(ds, groupBy)
	result := &Result{
		GroupBy:   groupBy,
		Algorithm: algorithm,
		Features:  features,
	}

	x := featureMatrix(features)
	if len(features) == 0 || !hasVariation(x) {
		result.Status = StatusInsufficientVariation
		result.Message = fmt.Sprintf("insufficient data variation to cluster %s", groupBy.noun())
		e.logger.WithFields(logrus.Fields{
			"group_by": groupBy,
			"groups":   len(features),
		}).Info("Clustering skipped, no variation")
		return result, nil
	}

	if algorithm != AlgorithmDBSCAN && k > len(features) {
		return nil, fmt.Errorf("%w: %d clusters requested for %d %s",
			models.ErrInvalidParameter, k, len(features), groupBy.noun())
	}

	scaled := standardize(x)
	points := rows(scaled)

	var labels []int
	switch algorithm {
	case AlgorithmKMeans:
		labels = kmeans(points, k, rand.New(rand.NewSource(e.seed)))
	case AlgorithmDBSCAN:
		labels = dbscan(points, dbscanEps, dbscanMinSamples)
	default:
		result.Algorithm = AlgorithmHierarchical
		labels = wardLinkage(points, k)
	}

	coords, explained := project2D(scaled)
	result.ExplainedVariance = explained
	result.Assignments = make([]Assignment, len(features))
	for i, f := range features {
		result.Assignments[i] = Assignment{
			GroupFeatures: f,
			Cluster:       labelName(labels[i]),
			PC1:           coords[i][0],
			PC2:           coords[i][1],
		}
	}

	result.Profiles = profile(result.Assignments, features, groupBy)
	result.Clusters = len(result.Profiles)
	for _, p := range result.Profiles {
		if p.Size > result.LargestCluster {
			result.LargestCluster = p.Size
		}
	}
	result.Status = StatusClustered

	e.logger.WithFields(logrus.Fields{
		"group_by":  groupBy,
		"algorithm": result.Algorithm,
		"groups":    len(features),
		"clusters":  result.Clusters,
	}).Debug("Clustering complete")

	return result, nil
}

func labelName(label int) string {
	if label == noiseLabel {
		return NoiseLabel
	}
	return strconv.Itoa(label)
}

// profile summarises each cluster in label order and explains it against
// the mean over all groups
func profile(assignments []Assignment, features []GroupFeatures, groupBy GroupBy) []Profile {
	overallTotal, _ := stats.Mean(column(features, func(f GroupFeatures) float64 { return f.TotalCost }))
	overallVar, _ := stats.Mean(column(features, func(f GroupFeatures) float64 { return f.CostVariability }))
	overallPerRecord, _ := stats.Mean(column(features, func(f GroupFeatures) float64 { return f.CostPerRecord }))

	members := make(map[string][]GroupFeatures)
	var order []string
	for _, a := range assignments {
		if _, ok := members[a.Cluster]; !ok {
			order = append(order, a.Cluster)
		}
		members[a.Cluster] = append(members[a.Cluster], a.GroupFeatures)
	}
	sortLabels(order)

	profiles := make([]Profile, 0, len(order))
	for _, label := range order {
		group := members[label]
		p := Profile{Cluster: label, Size: len(group)}
		for _, f := range group {
			p.Members = append(p.Members, f.Group)
		}
		p.MeanTotalCost, _ = stats.Mean(column(group, func(f GroupFeatures) float64 { return f.TotalCost }))
		p.MeanCost, _ = stats.Mean(column(group, func(f GroupFeatures) float64 { return f.MeanCost }))
		p.MeanCostVariability, _ = stats.Mean(column(group, func(f GroupFeatures) float64 { return f.CostVariability }))
		p.MeanCostPerRecord, _ = stats.Mean(column(group, func(f GroupFeatures) float64 { return f.CostPerRecord }))

		noun := groupBy.noun()
		if p.MeanTotalCost > overallTotal {
			p.Reasons = append(p.Reasons, fmt.Sprintf("These %s have higher total costs than average.", noun))
		} else {
			p.Reasons = append(p.Reasons, fmt.Sprintf("These %s have lower total costs than average.", noun))
		}
		if p.MeanCostVariability > overallVar {
			p.Reasons = append(p.Reasons, "They show more variability in costs.")
		} else {
			p.Reasons = append(p.Reasons, "They have more stable costs.")
		}
		if p.MeanCostPerRecord > overallPerRecord {
			p.Reasons = append(p.Reasons, "Each record tends to have a higher cost.")
		} else {
			p.Reasons = append(p.Reasons, "Each record tends to have a lower cost.")
		}
		profiles = append(profiles, p)
	}
	return profiles
}

func column(features []GroupFeatures, field func(GroupFeatures) float64) stats.Float64Data {
	out := make(stats.Float64Data, len(features))
	for i, f := range features {
		out[i] = field(f)
	}
	return out
}

// sortLabels orders numeric labels ascending with noise first
func sortLabels(labels []string) {
	sort.Slice(labels, func(i, j int) bool {
		a, _ := strconv.Atoi(labels[i])
		b, _ := strconv.Atoi(labels[j])
		return a < b
	})
}
