package cluster

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

const (
	kmeansRestarts      = 10
	kmeansMaxIterations = 300
)

// kmeans runs Lloyd's algorithm from several k-means++ seeds and keeps the
// lowest inertia
func kmeans(points [][]float64, k int, rng *rand.Rand) []int {
	var best []int
	bestInertia := math.Inf(1)

	for run := 0; run < kmeansRestarts; run++ {
		labels, inertia := lloyd(points, seedCentroids(points, k, rng))
		if inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
	}
	return relabel(best)
}

// seedCentroids picks k starting centroids by k-means++ sampling
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := [][]float64{copyOf(points[rng.Intn(len(points))])}
	weights := make([]float64, len(points))

	for len(centroids) < k {
		for i, p := range points {
			weights[i] = nearest(p, centroids).distance
		}
		total := floats.Sum(weights)
		if total == 0 {
			centroids = append(centroids, copyOf(points[rng.Intn(len(points))]))
			continue
		}

		target := rng.Float64() * total
		pick := len(points) - 1
		for i, w := range weights {
			target -= w
			if target < 0 {
				pick = i
				break
			}
		}
		centroids = append(centroids, copyOf(points[pick]))
	}
	return centroids
}

func lloyd(points [][]float64, centroids [][]float64) ([]int, float64) {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}
	dims := len(points[0])

	for iter := 0; iter < kmeansMaxIterations; iter++ {
		changed := false
		for i, p := range points {
			if c := nearest(p, centroids).index; c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, len(centroids))
		counts := make([]int, len(centroids))
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, p := range points {
			floats.Add(sums[labels[i]], p)
			counts[labels[i]]++
		}
		for c := range centroids {
			// an emptied cluster keeps its previous centroid
			if counts[c] > 0 {
				floats.Scale(1/float64(counts[c]), sums[c])
				centroids[c] = sums[c]
			}
		}
	}

	inertia := 0.0
	for i, p := range points {
		inertia += squaredDistance(p, centroids[labels[i]])
	}
	return labels, inertia
}

type match struct {
	index    int
	distance float64
}

func nearest(p []float64, centroids [][]float64) match {
	best := match{index: -1, distance: math.Inf(1)}
	for c, centroid := range centroids {
		if d := squaredDistance(p, centroid); d < best.distance {
			best = match{index: c, distance: d}
		}
	}
	return best
}

func copyOf(v []float64) []float64 {
	return append([]float64(nil), v...)
}
