package cluster

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

func squaredDistance(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

// wardLinkage merges points bottom-up under Ward's minimum variance
// criterion until k clusters remain. Returns a cluster index per point.
// Ties merge the lowest index pair first.
func wardLinkage(points [][]float64, k int) []int {
	n := len(points)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := 0; j < i; j++ {
			d := squaredDistance(points[i], points[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}

	size := make([]float64, n)
	root := make([]int, n)
	active := make([]bool, n)
	for i := 0; i < n; i++ {
		size[i] = 1
		root[i] = i
		active[i] = true
	}

	for remaining := n; remaining > k; remaining-- {
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && dist[i][j] < best {
					best, bi, bj = dist[i][j], i, j
				}
			}
		}

		// Lance-Williams update for Ward on squared distances
		for m := 0; m < n; m++ {
			if !active[m] || m == bi || m == bj {
				continue
			}
			ni, nj, nm := size[bi], size[bj], size[m]
			d := ((ni+nm)*dist[bi][m] + (nj+nm)*dist[bj][m] - nm*best) / (ni + nj + nm)
			dist[bi][m] = d
			dist[m][bi] = d
		}

		size[bi] += size[bj]
		active[bj] = false
		for p := range root {
			if root[p] == bj {
				root[p] = bi
			}
		}
	}

	return relabel(root)
}

// relabel maps arbitrary cluster ids to 0..k-1 in order of first appearance
func relabel(ids []int) []int {
	next := 0
	seen := make(map[int]int)
	out := make([]int, len(ids))
	for i, id := range ids {
		label, ok := seen[id]
		if !ok {
			label = next
			seen[id] = label
			next++
		}
		out[i] = label
	}
	return out
}
