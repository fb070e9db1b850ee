// Package scaler standardizes feature columns to zero mean and unit variance
// and persists the fitted parameters between runs.
package scaler

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/melonattacker/honeycluster/internal/cluster"
	"github.com/melonattacker/honeycluster/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// State is a fitted standard scaler.
type State struct {
	Names    []string  `json:"feature_names"`
	Mean     []float64 `json:"mean"`
	Std      []float64 `json:"std"`
	N        int       `json:"n_samples"`
	FittedAt time.Time `json:"fitted_at"`
}

// Fit computes population mean and std per column. A zero std is stored as 1
// so constant columns transform to 0.
func Fit(names []string, X [][]float64) (State, error) {
	if len(X) == 0 {
		return State{}, model.EmptyDataset("scaler")
	}
	d := len(names)
	st := State{
		Names:    slices.Clone(names),
		Mean:     make([]float64, d),
		Std:      make([]float64, d),
		N:        len(X),
		FittedAt: time.Now().UTC(),
	}
	col := make([]float64, len(X))
	for j := 0; j < d; j++ {
		for i, row := range X {
			if len(row) != d {
				return State{}, fmt.Errorf("scaler: row %d has %d columns, want %d", i, len(row), d)
			}
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		st.Mean[j] = mean
		st.Std[j] = std
	}
	return st, nil
}

// Transform returns a standardized copy of X.
func (s State) Transform(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("scaler: row %d has %d columns, want %d", i, len(row), len(s.Mean))
		}
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - s.Mean[j]) / s.Std[j]
		}
		out[i] = r
	}
	return out, nil
}

func (s State) validate() error {
	d := len(s.Names)
	if d == 0 {
		return errors.New("no features")
	}
	if len(s.Mean) != d || len(s.Std) != d {
		return fmt.Errorf("dimension mismatch: %d names, %d means, %d stds", d, len(s.Mean), len(s.Std))
	}
	for j, v := range s.Std {
		if v <= 0 {
			return fmt.Errorf("non-positive std for %s", s.Names[j])
		}
	}
	return nil
}

// Save writes the state atomically.
func Save(path string, s State) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Load reads a saved state. A missing file yields an fs.ErrNotExist error;
// an undecodable or inconsistent one yields *model.ModelStateError.
func Load(path string) (State, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return State{}, &model.ModelStateError{Path: path, Err: err}
	}
	if err := s.validate(); err != nil {
		return State{}, &model.ModelStateError{Path: path, Err: err}
	}
	return s, nil
}

// Prepare returns the scaler for this run. In ReuseExisting mode a usable
// saved state with the same feature names is returned as is; anything else
// is fitted on X and saved. fitted reports which path was taken.
func Prepare(mode cluster.Mode, path string, names []string, X [][]float64, log *zap.Logger) (State, bool, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if mode == cluster.ReuseExisting {
		s, err := Load(path)
		switch {
		case err == nil && slices.Equal(s.Names, names):
			log.Info("reusing scaler", zap.String("path", path), zap.Int("fit_samples", s.N))
			return s, false, nil
		case err == nil:
			log.Warn("scaler features changed, refitting", zap.String("path", path), zap.Strings("saved", s.Names))
		case errors.Is(err, fs.ErrNotExist):
			log.Info("no saved scaler, fitting", zap.String("path", path))
		default:
			var mse *model.ModelStateError
			if !errors.As(err, &mse) {
				return State{}, false, err
			}
			log.Warn("saved scaler unusable, refitting", zap.Error(err))
		}
	}

	s, err := Fit(names, X)
	if err != nil {
		return State{}, false, err
	}
	if err := Save(path, s); err != nil {
		return State{}, false, fmt.Errorf("save scaler: %w", err)
	}
	log.Info("fitted scaler", zap.String("path", path), zap.Int("samples", s.N))
	return s, true, nil
}
