package cluster

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// point is a row of a matrix tagged with its row number. The tree reorders
// its points while building.
type point struct {
	x []float64
	i int
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 { return p.x[d] - c.(point).x[d] }

func (p point) Dims() int { return len(p.x) }

// Distance is the squared Euclidean distance.
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	var sum float64
	for d, v := range p.x {
		diff := v - q.x[d]
		sum += diff * diff
	}
	return sum
}

type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Pivot(d kdtree.Dim) int                { return plane{points: p, Dim: d}.Pivot() }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

type plane struct {
	kdtree.Dim
	points
}

func (p plane) Less(i, j int) bool { return p.points[i].x[p.Dim] < p.points[j].x[p.Dim] }
func (p plane) Pivot() int         { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}
func (p plane) Swap(i, j int) { p.points[i], p.points[j] = p.points[j], p.points[i] }

// index answers radius and k-nearest queries over the rows of a matrix.
// Rows must be non-empty and of equal width.
type index struct {
	tree *kdtree.Tree
}

func newIndex(X [][]float64) *index {
	pts := make(points, len(X))
	for i, x := range X {
		pts[i] = point{x: x, i: i}
	}
	return &index{tree: kdtree.New(pts, false)}
}

// within returns the rows at distance <= eps from x, x itself included when
// it is indexed.
func (ix *index) within(x []float64, eps float64) []int {
	keep := kdtree.NewDistKeeper(eps * eps)
	ix.tree.NearestSet(keep, point{x: x, i: -1})
	out := make([]int, 0, len(keep.Heap))
	for _, c := range keep.Heap {
		out = append(out, c.Comparable.(point).i)
	}
	return out
}

// kthDistance returns the distance from x to its k-th nearest indexed row,
// counting x itself when it is indexed.
func (ix *index) kthDistance(x []float64, k int) float64 {
	keep := kdtree.NewNKeeper(k)
	ix.tree.NearestSet(keep, point{x: x, i: -1})
	far := 0.0
	for _, c := range keep.Heap {
		far = math.Max(far, c.Dist)
	}
	return math.Sqrt(far)
}

// nearest returns the closest indexed row and its distance.
func (ix *index) nearest(x []float64) (int, float64) {
	c, d := ix.tree.Nearest(point{x: x, i: -1})
	return c.(point).i, math.Sqrt(d)
}
