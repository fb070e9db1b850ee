// Package aggregate reduces labeled feature rows to per-cluster statistics.
package aggregate

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/melonattacker/honeycluster/internal/model"
)

// NoiseLabel is the density-based label of unclustered rows.
const NoiseLabel = -1

type Stats struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
}

type Cluster struct {
	ID       int     `json:"cluster_id"`
	Size     int     `json:"size"`
	Features []Stats `json:"features"`
}

// Summary holds one view's clusters ordered by descending population.
// Features[i] of every cluster describes column Names[i].
type Summary struct {
	Names    []string  `json:"features"`
	Clusters []Cluster `json:"clusters"`
	Noise    int       `json:"noise"`
	Total    int       `json:"total"`
}

// Summarize groups X by label. Rows labeled NoiseLabel are counted in Noise
// and not summarized.
func Summarize(names []string, X [][]float64, labels []int) (Summary, error) {
	if len(X) != len(labels) {
		return Summary{}, fmt.Errorf("summarize: %d rows but %d labels", len(X), len(labels))
	}
	if len(X) == 0 {
		return Summary{}, model.EmptyDataset("aggregate")
	}
	for i, row := range X {
		if len(row) != len(names) {
			return Summary{}, fmt.Errorf("summarize: row %d has %d columns, want %d", i, len(row), len(names))
		}
	}

	out := Summary{Names: append([]string(nil), names...), Total: len(X)}
	members := map[int][]int{}
	for i, l := range labels {
		if l == NoiseLabel {
			out.Noise++
			continue
		}
		members[l] = append(members[l], i)
	}

	col := make([]float64, 0, len(X))
	for id, idx := range members {
		c := Cluster{ID: id, Size: len(idx), Features: make([]Stats, len(names))}
		for j := range names {
			col = col[:0]
			for _, i := range idx {
				col = append(col, X[i][j])
			}
			c.Features[j] = describe(col)
		}
		out.Clusters = append(out.Clusters, c)
	}
	sort.Slice(out.Clusters, func(i, j int) bool {
		if out.Clusters[i].Size != out.Clusters[j].Size {
			return out.Clusters[i].Size > out.Clusters[j].Size
		}
		return out.Clusters[i].ID < out.Clusters[j].ID
	})
	return out, nil
}

// describe sorts x in place.
func describe(x []float64) Stats {
	var s Stats
	if len(x) == 0 {
		return s
	}
	if len(x) > 1 {
		s.Mean, s.Std = stat.MeanStdDev(x, nil)
	} else {
		s.Mean = x[0]
	}
	s.Min = floats.Min(x)
	s.Max = floats.Max(x)
	sort.Float64s(x)
	s.Median = median(x)
	return s
}

// median of sorted x; even counts average the middle pair.
func median(x []float64) float64 {
	n := len(x)
	if n%2 == 1 {
		return x[n/2]
	}
	return (x[n/2-1] + x[n/2]) / 2
}

// Sizes maps cluster id to population.
func (s Summary) Sizes() map[int]int {
	out := make(map[int]int, len(s.Clusters))
	for _, c := range s.Clusters {
		out[c.ID] = c.Size
	}
	return out
}
