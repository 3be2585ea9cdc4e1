package cluster

import "gonum.org/v1/gonum/floats"

const (
	dbscanEps        = 0.5
	dbscanMinSamples = 2
	noiseLabel       = -1
)

// dbscan groups density-connected points. A point is core when at least
// minSamples points, itself included, lie within eps. Unreached points get
// the noise label.
func dbscan(points [][]float64, eps float64, minSamples int) []int {
	labels := make([]int, len(points))
	visited := make([]bool, len(points))
	for i := range labels {
		labels[i] = noiseLabel
	}

	neighbours := func(i int) []int {
		var out []int
		for j, q := range points {
			if floats.Distance(points[i], q, 2) <= eps {
				out = append(out, j)
			}
		}
		return out
	}

	cluster := 0
	for i := range points {
		if visited[i] {
			continue
		}
		visited[i] = true

		seeds := neighbours(i)
		if len(seeds) < minSamples {
			continue
		}

		labels[i] = cluster
		for s := 0; s < len(seeds); s++ {
			j := seeds[s]
			if labels[j] == noiseLabel {
				labels[j] = cluster
			}
			if visited[j] {
				continue
			}
			visited[j] = true
			if more := neighbours(j); len(more) >= minSamples {
				seeds = append(seeds, more...)
			}
		}
		cluster++
	}
	return labels
}
