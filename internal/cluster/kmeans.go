package cluster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/melonattacker/honeycluster/internal/model"
)

// ErrTooFewSamples is returned when a view has fewer rows than clusters.
var ErrTooFewSamples = errors.New("too few samples")

const (
	DefaultRestarts = 10
	DefaultMaxIter  = 300
	DefaultTol      = 1e-4
)

// KMeans is Lloyd's algorithm with k-means++ seeding. Restarts run in
// parallel; restart i is seeded with Seed+i and the lowest inertia wins,
// ties going to the lower restart index.
type KMeans struct {
	K        int
	Restarts int
	MaxIter  int
	Tol      float64
	Seed     uint64
}

type kmRun struct {
	centroids [][]float64
	labels    []int
	inertia   float64
	iters     int
}

func (km KMeans) withDefaults() KMeans {
	if km.Restarts <= 0 {
		km.Restarts = DefaultRestarts
	}
	if km.MaxIter <= 0 {
		km.MaxIter = DefaultMaxIter
	}
	if km.Tol <= 0 {
		km.Tol = DefaultTol
	}
	return km
}

func (km KMeans) Fit(ctx context.Context, X [][]float64) (*Model, []int, error) {
	km = km.withDefaults()
	if km.K <= 0 {
		return nil, nil, fmt.Errorf("kmeans: k must be positive, got %d", km.K)
	}
	if len(X) < km.K {
		return nil, nil, fmt.Errorf("kmeans: %d rows for k=%d: %w: %w", len(X), km.K, model.ErrEmptyDataset, ErrTooFewSamples)
	}
	if err := checkMatrix(X); err != nil {
		return nil, nil, err
	}

	runs := make([]kmRun, km.Restarts)
	g, gctx := errgroup.WithContext(ctx)
	for i := range runs {
		g.Go(func() error {
			r, err := km.run(gctx, X, km.Seed+uint64(i))
			if err != nil {
				return err
			}
			runs[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	best := 0
	for i := 1; i < len(runs); i++ {
		if runs[i].inertia < runs[best].inertia {
			best = i
		}
	}
	r := runs[best]
	m := &Model{
		Algorithm:  AlgorithmKMeans,
		NSamples:   len(X),
		FittedAt:   time.Now().UTC(),
		Centroids:  r.centroids,
		Inertia:    r.inertia,
		Iterations: r.iters,
	}
	return m, r.labels, nil
}

func (km KMeans) run(ctx context.Context, X [][]float64, seed uint64) (kmRun, error) {
	rng := rand.New(rand.NewPCG(seed, seed))
	centroids := seedPlusPlus(X, km.K, rng)
	d := len(X[0])
	labels := make([]int, len(X))

	iters := 0
	for iters < km.MaxIter {
		if err := ctx.Err(); err != nil {
			return kmRun{}, err
		}
		iters++
		for i, x := range X {
			labels[i], _ = nearest(centroids, x)
		}

		next := make([][]float64, km.K)
		counts := make([]int, km.K)
		for c := range next {
			next[c] = make([]float64, d)
		}
		for i, x := range X {
			floats.Add(next[labels[i]], x)
			counts[labels[i]]++
		}
		shift := 0.0
		for c := range next {
			if counts[c] == 0 {
				// Empty cluster keeps its previous centroid.
				copy(next[c], centroids[c])
				continue
			}
			floats.Scale(1/float64(counts[c]), next[c])
			shift = math.Max(shift, floats.Distance(next[c], centroids[c], 2))
		}
		centroids = next
		if shift <= km.Tol {
			break
		}
	}

	inertia := 0.0
	for i, x := range X {
		var dist float64
		labels[i], dist = nearest(centroids, x)
		inertia += dist * dist
	}
	return kmRun{centroids: centroids, labels: labels, inertia: inertia, iters: iters}, nil
}

// seedPlusPlus picks k initial centroids, each new one drawn with probability
// proportional to its squared distance from the nearest chosen centroid.
func seedPlusPlus(X [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(X)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(X[rng.IntN(n)]))

	d2 := make([]float64, n)
	for i, x := range X {
		dist := floats.Distance(x, centroids[0], 2)
		d2[i] = dist * dist
	}
	for len(centroids) < k {
		total := floats.Sum(d2)
		var pick int
		if total == 0 {
			pick = rng.IntN(n)
		} else {
			target := rng.Float64() * total
			acc := 0.0
			pick = n - 1
			for i, w := range d2 {
				acc += w
				if acc > target {
					pick = i
					break
				}
			}
		}
		c := clone(X[pick])
		centroids = append(centroids, c)
		for i, x := range X {
			dist := floats.Distance(x, c, 2)
			d2[i] = math.Min(d2[i], dist*dist)
		}
	}
	return centroids
}

// nearest returns the index of the closest centroid and its distance. Ties
// resolve to the lower index.
func nearest(centroids [][]float64, x []float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, ct := range centroids {
		if dist := floats.Distance(x, ct, 2); dist < bestDist {
			best, bestDist = c, dist
		}
	}
	return best, bestDist
}

func clone(x []float64) []float64 { return append([]float64(nil), x...) }

func checkMatrix(X [][]float64) error {
	if len(X) == 0 {
		return model.EmptyDataset("cluster")
	}
	d := len(X[0])
	if d == 0 {
		return errors.New("cluster: zero-width matrix")
	}
	for i, row := range X {
		if len(row) != d {
			return fmt.Errorf("cluster: row %d has %d columns, want %d", i, len(row), d)
		}
	}
	return nil
}
