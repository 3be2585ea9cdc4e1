package outlier

import (
	"math"
	"math/rand"
)

const (
	defaultTrees        = 100
	defaultMaxSamples   = 256
	minIsolationSamples = 2
	eulerGamma          = 0.5772156649015329
)

type isoNode struct {
	split       float64
	left, right *isoNode
	size        int
}

func (n *isoNode) isLeaf() bool {
	return n.left == nil && n.right == nil
}

// isolationForest scores one-dimensional values by how quickly random
// splits isolate them
type isolationForest struct {
	trees      []*isoNode
	sampleSize int
}

func fitIsolationForest(values []float64, trees, maxSamples int, rng *rand.Rand) *isolationForest {
	sampleSize := maxSamples
	if len(values) < sampleSize {
		sampleSize = len(values)
	}
	heightLimit := int(math.Ceil(math.Log2(math.Max(float64(sampleSize), 2))))

	forest := &isolationForest{
		trees:      make([]*isoNode, trees),
		sampleSize: sampleSize,
	}

	sample := make([]float64, sampleSize)
	for t := 0; t < trees; t++ {
		perm := rng.Perm(len(values))
		for i := 0; i < sampleSize; i++ {
			sample[i] = values[perm[i]]
		}
		forest.trees[t] = buildIsoTree(append([]float64(nil), sample...), 0, heightLimit, rng)
	}
	return forest
}

func buildIsoTree(values []float64, depth, limit int, rng *rand.Rand) *isoNode {
	if depth >= limit || len(values) <= 1 {
		return &isoNode{size: len(values)}
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		return &isoNode{size: len(values)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right []float64
	for _, v := range values {
		if v < split {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}

	return &isoNode{
		split: split,
		left:  buildIsoTree(left, depth+1, limit, rng),
		right: buildIsoTree(right, depth+1, limit, rng),
		size:  len(values),
	}
}

func pathLength(x float64, node *isoNode, depth int) float64 {
	for !node.isLeaf() {
		if x < node.split {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(node.size)
}

// averagePathLength is the expected path length of an unsuccessful search
// in a binary search tree of n points
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

// scores returns anomaly scores in (0, 1]; higher is more anomalous
func (f *isolationForest) scores(values []float64) []float64 {
	norm := averagePathLength(f.sampleSize)
	out := make([]float64, len(values))
	for i, x := range values {
		total := 0.0
		for _, tree := range f.trees {
			total += pathLength(x, tree, 0)
		}
		mean := total / float64(len(f.trees))
		out[i] = math.Pow(2, -mean/norm)
	}
	return out
}
