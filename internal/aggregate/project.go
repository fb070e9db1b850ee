package aggregate

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Project centres X and maps it onto its leading principal components. It
// returns the projected rows and each kept component's share of variance.
func Project(X [][]float64, dims int) ([][]float64, []float64, error) {
	n := len(X)
	if n < 2 {
		return nil, nil, fmt.Errorf("project: need at least 2 rows, got %d", n)
	}
	d := len(X[0])
	dims = min(dims, d, n)
	if dims <= 0 {
		return nil, nil, fmt.Errorf("project: no components to keep")
	}

	means := make([]float64, d)
	for _, row := range X {
		if len(row) != d {
			return nil, nil, fmt.Errorf("project: ragged input")
		}
		floats.Add(means, row)
	}
	floats.Scale(1/float64(n), means)

	a := mat.NewDense(n, d, nil)
	for i, row := range X {
		for j, v := range row {
			a.Set(i, j, v-means[j])
		}
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(a, nil); !ok {
		return nil, nil, fmt.Errorf("project: decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	var proj mat.Dense
	proj.Mul(a, vecs.Slice(0, d, 0, dims))

	out := make([][]float64, n)
	for i := range out {
		out[i] = mat.Row(nil, i, &proj)
	}

	total := floats.Sum(vars)
	ratio := make([]float64, dims)
	if total > 0 {
		for i := range ratio {
			ratio[i] = vars[i] / total
		}
	}
	return out, ratio, nil
}
