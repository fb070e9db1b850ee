package aggregate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melonattacker/honeycluster/internal/model"
)

func TestSummarizeOrdersBySizeAndCountsNoise(t *testing.T) {
	names := []string{"a", "b"}
	X := [][]float64{
		{1, 10},
		{3, 30},
		{2, 20},
		{4, 40},
		{100, 100},
		{5, 50},
		{7, 70},
	}
	labels := []int{1, 1, 1, 1, NoiseLabel, 0, 0}

	s, err := Summarize(names, X, labels)
	require.NoError(t, err)
	assert.Equal(t, 7, s.Total)
	assert.Equal(t, 1, s.Noise)
	require.Len(t, s.Clusters, 2)

	big := s.Clusters[0]
	assert.Equal(t, 1, big.ID)
	assert.Equal(t, 4, big.Size)
	assert.InDelta(t, 2.5, big.Features[0].Mean, 1e-12)
	assert.InDelta(t, 2.5, big.Features[0].Median, 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3.0), big.Features[0].Std, 1e-12)
	assert.Equal(t, 1.0, big.Features[0].Min)
	assert.Equal(t, 4.0, big.Features[0].Max)
	assert.InDelta(t, 25.0, big.Features[1].Mean, 1e-12)

	small := s.Clusters[1]
	assert.Equal(t, 0, small.ID)
	assert.Equal(t, 6.0, small.Features[0].Median)
	assert.Equal(t, map[int]int{0: 2, 1: 4}, s.Sizes())

	// Input order is left untouched.
	assert.Equal(t, 3.0, X[1][0])
}

func TestSummarizeTiesBreakByID(t *testing.T) {
	s, err := Summarize([]string{"x"}, [][]float64{{1}, {2}}, []int{5, 2})
	require.NoError(t, err)
	require.Len(t, s.Clusters, 2)
	assert.Equal(t, 2, s.Clusters[0].ID)
	assert.Equal(t, 0.0, s.Clusters[0].Features[0].Std)
}

func TestSummarizeErrors(t *testing.T) {
	_, err := Summarize([]string{"x"}, nil, nil)
	assert.ErrorIs(t, err, model.ErrEmptyDataset)

	_, err = Summarize([]string{"x"}, [][]float64{{1}}, []int{0, 1})
	assert.Error(t, err)

	_, err = Summarize([]string{"x", "y"}, [][]float64{{1}}, []int{0})
	assert.Error(t, err)
}

func TestProject(t *testing.T) {
	// Points on a line in 3-D: one component carries all the variance.
	X := [][]float64{{0, 0, 0}, {1, 2, 3}, {2, 4, 6}, {3, 6, 9}}
	proj, ratio, err := Project(X, 2)
	require.NoError(t, err)
	require.Len(t, proj, 4)
	require.Len(t, proj[0], 2)
	require.Len(t, ratio, 2)
	assert.InDelta(t, 1.0, ratio[0], 1e-9)
	assert.InDelta(t, 0.0, ratio[1], 1e-9)

	// Distances along the first component match distances along the line.
	step := math.Sqrt(1 + 4 + 9)
	assert.InDelta(t, step, math.Abs(proj[1][0]-proj[0][0]), 1e-9)

	_, _, err = Project(X[:1], 2)
	assert.Error(t, err)
}
