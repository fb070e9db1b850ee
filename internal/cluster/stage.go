package cluster

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"

	"go.uber.org/zap"

	"github.com/melonattacker/honeycluster/internal/metrics"
	"github.com/melonattacker/honeycluster/internal/model"
)

// View is one clustering of a column subset of the scaled feature table.
type View struct {
	Name      string    `yaml:"name" json:"name"`
	Algorithm Algorithm `yaml:"algorithm" json:"algorithm"`
	// Features lists the columns; empty means every column.
	Features   []string `yaml:"features,omitempty" json:"features,omitempty"`
	K          int      `yaml:"k,omitempty" json:"k,omitempty"`
	Eps        float64  `yaml:"eps,omitempty" json:"eps,omitempty"`
	MinSamples int      `yaml:"min_samples,omitempty" json:"min_samples,omitempty"`
	Disabled   bool     `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

func DefaultViews() []View {
	return []View{
		{Name: "global", Algorithm: AlgorithmKMeans, K: 3},
		{Name: "expertise", Algorithm: AlgorithmKMeans, K: 2, Features: []string{
			model.FeatUniqueCommandsRatio, model.FeatCommandDiversity, model.FeatToolSignatures, model.FeatErrorRate,
		}},
		{Name: "temporal", Algorithm: AlgorithmKMeans, K: 3, Features: []string{
			model.FeatInterCommandTiming, model.FeatSessionDuration, model.FeatTimeOfDaySin, model.FeatTimeOfDayCos,
		}},
		{Name: "command", Algorithm: AlgorithmKMeans, K: 3, Features: []string{
			model.FeatUniqueCommandsRatio, model.FeatCommandDiversity, model.FeatToolSignatures,
		}},
		{Name: "behavioral", Algorithm: AlgorithmKMeans, K: 3, Features: []string{
			model.FeatReconVsExploit, model.FeatErrorRate, model.FeatCorrectionAttempts,
		}},
		{Name: "density", Algorithm: AlgorithmDBSCAN, MinSamples: DefaultMinSamples, Disabled: true},
	}
}

func (v View) Validate() error {
	if v.Name == "" || v.Name != filepath.Base(v.Name) || v.Name == "." {
		return fmt.Errorf("invalid view name %q", v.Name)
	}
	switch v.Algorithm {
	case AlgorithmKMeans:
		if v.K <= 0 {
			return fmt.Errorf("view %s: k must be positive", v.Name)
		}
	case AlgorithmDBSCAN:
		if v.MinSamples < 0 || v.Eps < 0 {
			return fmt.Errorf("view %s: eps and min_samples must not be negative", v.Name)
		}
	default:
		return fmt.Errorf("view %s: unknown algorithm %q", v.Name, v.Algorithm)
	}
	_, err := v.Columns(model.FeatureNames())
	return err
}

// Columns maps the view's features onto positions in names.
func (v View) Columns(names []string) ([]int, error) {
	if len(v.Features) == 0 {
		idx := make([]int, len(names))
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}
	idx := make([]int, 0, len(v.Features))
	for _, f := range v.Features {
		i := slices.Index(names, f)
		if i < 0 {
			return nil, fmt.Errorf("view %s: unknown feature %q", v.Name, f)
		}
		idx = append(idx, i)
	}
	return idx, nil
}

// Select copies the given columns out of X.
func Select(X [][]float64, cols []int) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		r := make([]float64, len(cols))
		for j, c := range cols {
			r[j] = row[c]
		}
		out[i] = r
	}
	return out
}

type Transition string

const (
	TransitionFitted   Transition = "fitted"
	TransitionReused   Transition = "reused"
	TransitionRefitted Transition = "refitted"
)

type Result struct {
	View       string
	Names      []string
	X          [][]float64
	Labels     []int
	Model      *Model
	Transition Transition
}

// Stage fits or reuses one model per view under ModelDir. It only sees
// already-scaled data.
type Stage struct {
	ModelDir string
	Seed     uint64
	Restarts int
	MaxIter  int
	Tol      float64
	Log      *zap.Logger
	Metrics  *metrics.Pipeline
}

func (s *Stage) ModelPath(view string) string {
	return filepath.Join(s.ModelDir, view+".json")
}

func (s *Stage) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Run clusters the view's columns of X (whose columns are named by names).
//
//	no usable model            -> fit, save        (fitted)
//	model, ReuseExisting       -> predict, re-save (reused)
//	model, FitNew              -> fit, save        (refitted)
//
// A model that fails to decode, or was fitted on other features or with
// another algorithm, counts as no model.
func (s *Stage) Run(ctx context.Context, mode Mode, view View, names []string, X [][]float64) (Result, error) {
	log := s.logger().With(zap.String("view", view.Name))
	cols, err := view.Columns(names)
	if err != nil {
		return Result{}, err
	}
	res := Result{View: view.Name, X: Select(X, cols)}
	for _, c := range cols {
		res.Names = append(res.Names, names[c])
	}

	path := s.ModelPath(view.Name)
	existing, err := s.load(path, view, res.Names, log)
	if err != nil {
		return Result{}, err
	}

	if existing != nil && mode == ReuseExisting {
		labels, err := existing.Predict(res.X)
		if err != nil {
			return Result{}, err
		}
		if err := SaveModel(path, existing); err != nil {
			return Result{}, fmt.Errorf("save model %s: %w", view.Name, err)
		}
		res.Labels, res.Model, res.Transition = labels, existing, TransitionReused
	} else {
		m, labels, err := s.fit(ctx, view, res.X)
		if err != nil {
			return Result{}, fmt.Errorf("view %s: %w", view.Name, err)
		}
		m.View = view.Name
		m.Features = res.Names
		if err := SaveModel(path, m); err != nil {
			return Result{}, fmt.Errorf("save model %s: %w", view.Name, err)
		}
		res.Labels, res.Model, res.Transition = labels, m, TransitionFitted
		if existing != nil {
			res.Transition = TransitionRefitted
		}
	}

	s.Metrics.Transition(view.Name, string(res.Transition))
	log.Info("clustered view",
		zap.String("transition", string(res.Transition)),
		zap.String("model_id", res.Model.ID),
		zap.Int("rows", len(res.X)),
		zap.Int("clusters", res.Model.Clusters()),
	)
	return res, nil
}

func (s *Stage) load(path string, view View, features []string, log *zap.Logger) (*Model, error) {
	m, err := LoadModel(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		var mse *model.ModelStateError
		if errors.As(err, &mse) {
			log.Warn("saved model unusable, treating as absent", zap.Error(err))
			return nil, nil
		}
		return nil, err
	}
	if m.Algorithm != view.Algorithm || !slices.Equal(m.Features, features) {
		log.Warn("saved model does not match view, treating as absent",
			zap.String("path", path), zap.String("algorithm", string(m.Algorithm)), zap.Strings("features", m.Features))
		return nil, nil
	}
	return m, nil
}

func (s *Stage) fit(ctx context.Context, view View, X [][]float64) (*Model, []int, error) {
	switch view.Algorithm {
	case AlgorithmKMeans:
		return KMeans{K: view.K, Restarts: s.Restarts, MaxIter: s.MaxIter, Tol: s.Tol, Seed: s.Seed}.Fit(ctx, X)
	case AlgorithmDBSCAN:
		return DBSCAN{Eps: view.Eps, MinSamples: view.MinSamples}.Fit(ctx, X)
	default:
		return nil, nil, fmt.Errorf("unknown algorithm %q", view.Algorithm)
	}
}
