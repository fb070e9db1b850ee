package cluster

import (
	"context"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Noise is the label of points that belong to no density cluster.
const Noise = -1

const (
	DefaultMinSamples   = 5
	DefaultEpsQuantile  = 0.95
	elbowFlatness       = 1e-9
	unvisited           = -2
	cancelCheckInterval = 256
)

// DBSCAN clusters by density. Neighborhoods include the point itself, so a
// core point has at least MinSamples points within Eps. Eps <= 0 selects it
// from the k-distance curve.
type DBSCAN struct {
	Eps         float64
	MinSamples  int
	EpsQuantile float64
}

func (db DBSCAN) Fit(ctx context.Context, X [][]float64) (*Model, []int, error) {
	if err := checkMatrix(X); err != nil {
		return nil, nil, err
	}
	if db.MinSamples <= 0 {
		db.MinSamples = DefaultMinSamples
	}
	if db.EpsQuantile <= 0 || db.EpsQuantile > 1 {
		db.EpsQuantile = DefaultEpsQuantile
	}
	eps := db.Eps
	if eps <= 0 {
		eps = EstimateEps(X, db.MinSamples, db.EpsQuantile)
	}

	n := len(X)
	ix := newIndex(X)
	queries := 0
	region := func(i int) ([]int, error) {
		if queries++; queries%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		return ix.within(X[i], eps), nil
	}

	core := make([]bool, n)
	for i := range X {
		nb, err := region(i)
		if err != nil {
			return nil, nil, err
		}
		core[i] = len(nb) >= db.MinSamples
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}
	next := 0
	for i := range X {
		if labels[i] != unvisited {
			continue
		}
		if !core[i] {
			labels[i] = Noise
			continue
		}
		id := next
		next++
		labels[i] = id
		// Every row enters the stack at most once.
		stack := []int{i}
		for len(stack) > 0 {
			j := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			nb, err := region(j)
			if err != nil {
				return nil, nil, err
			}
			for _, q := range nb {
				switch labels[q] {
				case Noise:
					labels[q] = id
				case unvisited:
					labels[q] = id
					if core[q] {
						stack = append(stack, q)
					}
				}
			}
		}
	}

	m := &Model{
		Algorithm:  AlgorithmDBSCAN,
		NSamples:   n,
		FittedAt:   time.Now().UTC(),
		Eps:        eps,
		MinSamples: db.MinSamples,
	}
	for i := range X {
		if core[i] {
			m.CorePoints = append(m.CorePoints, clone(X[i]))
			m.CoreLabels = append(m.CoreLabels, labels[i])
		}
	}
	return m, labels, nil
}

// KDistances returns each point's distance to its k-th nearest other point,
// sorted ascending, with k = minSamples-1 clamped to [1, n-1].
func KDistances(X [][]float64, minSamples int) []float64 {
	n := len(X)
	if n < 2 || len(X[0]) == 0 {
		return nil
	}
	k := min(max(minSamples-1, 1), n-1)
	ix := newIndex(X)
	out := make([]float64, n)
	for i := range X {
		out[i] = ix.kthDistance(X[i], k+1)
	}
	sort.Float64s(out)
	return out
}

// EstimateEps picks eps at the elbow of the k-distance curve: the point
// farthest from the chord between its ends, with both axes scaled to [0,1].
// A curve without an elbow falls back to its q-quantile.
func EstimateEps(X [][]float64, minSamples int, q float64) float64 {
	kd := KDistances(X, minSamples)
	if len(kd) == 0 {
		return 0
	}
	eps, ok := elbow(kd)
	if !ok {
		eps = stat.Quantile(q, stat.Empirical, kd, nil)
	}
	return eps
}

func elbow(sorted []float64) (float64, bool) {
	n := len(sorted)
	if n < 3 {
		return 0, false
	}
	lo, hi := sorted[0], sorted[n-1]
	span := hi - lo
	if span <= 0 {
		return 0, false
	}
	// Chord from (0,0) to (1,1) in scaled coordinates: distance is
	// |x - y| / sqrt(2).
	best, bestDist := 0, 0.0
	for i, v := range sorted {
		x := float64(i) / float64(n-1)
		y := (v - lo) / span
		if d := math.Abs(x-y) / math.Sqrt2; d > bestDist {
			best, bestDist = i, d
		}
	}
	if bestDist < elbowFlatness {
		return 0, false
	}
	return sorted[best], true
}
