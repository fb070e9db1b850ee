package scaler

import (
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/melonattacker/honeycluster/internal/cluster"
	"github.com/melonattacker/honeycluster/internal/model"
)

var names = []string{"a", "b"}

func data() [][]float64 {
	return [][]float64{{1, 5}, {2, 5}, {3, 5}, {4, 5}}
}

func TestFitTransform(t *testing.T) {
	X := data()
	s, err := Fit(names, X)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, s.Mean[0], 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), s.Std[0], 1e-12)
	// Constant column.
	assert.Equal(t, 1.0, s.Std[1])

	Z, err := s.Transform(X)
	require.NoError(t, err)
	for _, row := range Z {
		assert.Equal(t, 0.0, row[1])
	}
	var sum, sq float64
	for _, row := range Z {
		sum += row[0]
		sq += row[0] * row[0]
	}
	assert.InDelta(t, 0, sum/4, 1e-12)
	assert.InDelta(t, 1, sq/4, 1e-12)

	// Input untouched, and transform is repeatable.
	assert.Equal(t, data(), X)
	Z2, err := s.Transform(X)
	require.NoError(t, err)
	assert.Equal(t, Z, Z2)

	_, err = s.Transform([][]float64{{1}})
	assert.Error(t, err)
}

func TestFitEmpty(t *testing.T) {
	_, err := Fit(names, nil)
	assert.ErrorIs(t, err, model.ErrEmptyDataset)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts", "scaler.json")
	_, err := Load(path)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	s, err := Fit(names, data())
	require.NoError(t, err)
	require.NoError(t, Save(path, s))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s.Names, got.Names)
	assert.Equal(t, s.Mean, got.Mean)
	assert.Equal(t, s.Std, got.Std)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = Load(path)
	var mse *model.ModelStateError
	assert.ErrorAs(t, err, &mse)

	require.NoError(t, os.WriteFile(path, []byte(`{"feature_names":["a"],"mean":[1,2],"std":[1]}`), 0o600))
	_, err = Load(path)
	assert.ErrorAs(t, err, &mse)
}

func TestPrepare(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scaler.json")
	log := zap.NewNop()

	s1, fitted, err := Prepare(cluster.ReuseExisting, path, names, data(), log)
	require.NoError(t, err)
	assert.True(t, fitted)

	// Reuse ignores the new data.
	other := [][]float64{{100, 1}, {200, 2}}
	s2, fitted, err := Prepare(cluster.ReuseExisting, path, names, other, log)
	require.NoError(t, err)
	assert.False(t, fitted)
	assert.Equal(t, s1.Mean, s2.Mean)

	s3, fitted, err := Prepare(cluster.FitNew, path, names, other, log)
	require.NoError(t, err)
	assert.True(t, fitted)
	assert.InDelta(t, 150, s3.Mean[0], 1e-12)

	// A feature-name change forces a refit.
	s4, fitted, err := Prepare(cluster.ReuseExisting, path, []string{"a", "c"}, data(), log)
	require.NoError(t, err)
	assert.True(t, fitted)
	assert.Equal(t, []string{"a", "c"}, s4.Names)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	_, fitted, err = Prepare(cluster.ReuseExisting, path, names, data(), log)
	require.NoError(t, err)
	assert.True(t, fitted)
}
