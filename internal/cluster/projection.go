package cluster

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// project2D projects centred rows onto the first two principal components.
// Missing components project to zero.
func project2D(x *mat.Dense) ([][2]float64, []float64) {
	r, c := x.Dims()
	coords := make([][2]float64, r)
	if r < 2 {
		return coords, nil
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return coords, nil
	}

	var vectors mat.Dense
	pc.VectorsTo(&vectors)
	vars := pc.VarsTo(nil)

	_, nc := vectors.Dims()
	comps := nc
	if comps > 2 {
		comps = 2
	}

	var proj mat.Dense
	proj.Mul(x, vectors.Slice(0, c, 0, comps))
	for i := 0; i < r; i++ {
		for j := 0; j < comps; j++ {
			coords[i][j] = proj.At(i, j)
		}
	}

	explained := make([]float64, 2)
	if total := floats.Sum(vars); total > 0 {
		for j := 0; j < comps && j < len(vars); j++ {
			explained[j] = vars[j] / total
		}
	}
	return coords, explained
}
