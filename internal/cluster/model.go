package cluster

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/melonattacker/honeycluster/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Algorithm string

const (
	AlgorithmKMeans Algorithm = "kmeans"
	AlgorithmDBSCAN Algorithm = "dbscan"
)

// Model is a fitted clustering of one view. K-means keeps its centroids;
// DBSCAN keeps its core points so later rows can be labeled without a refit.
type Model struct {
	ID        string    `json:"id"`
	View      string    `json:"view"`
	Algorithm Algorithm `json:"algorithm"`
	Features  []string  `json:"features"`
	NSamples  int       `json:"n_samples"`
	FittedAt  time.Time `json:"fitted_at"`

	Centroids  [][]float64 `json:"centroids,omitempty"`
	Inertia    float64     `json:"inertia,omitempty"`
	Iterations int         `json:"iterations,omitempty"`

	Eps        float64     `json:"eps,omitempty"`
	MinSamples int         `json:"min_samples,omitempty"`
	CorePoints [][]float64 `json:"core_points,omitempty"`
	CoreLabels []int       `json:"core_labels,omitempty"`
}

// Clusters returns the number of non-noise labels the model can emit.
func (m *Model) Clusters() int {
	switch m.Algorithm {
	case AlgorithmKMeans:
		return len(m.Centroids)
	case AlgorithmDBSCAN:
		n := 0
		for _, l := range m.CoreLabels {
			n = max(n, l+1)
		}
		return n
	}
	return 0
}

// Predict labels rows. K-means picks the nearest centroid; DBSCAN takes the
// label of the nearest core point within eps, else Noise.
func (m *Model) Predict(X [][]float64) ([]int, error) {
	d := len(m.Features)
	for i, row := range X {
		if len(row) != d {
			return nil, fmt.Errorf("predict: row %d has %d columns, model %s wants %d", i, len(row), m.View, d)
		}
	}
	out := make([]int, len(X))
	switch m.Algorithm {
	case AlgorithmKMeans:
		for i, x := range X {
			out[i], _ = nearest(m.Centroids, x)
		}
	case AlgorithmDBSCAN:
		var ix *index
		if len(m.CorePoints) > 0 {
			ix = newIndex(m.CorePoints)
		}
		for i, x := range X {
			out[i] = Noise
			if ix == nil {
				continue
			}
			c, dist := ix.nearest(x)
			if dist <= m.Eps {
				out[i] = m.CoreLabels[c]
			}
		}
	default:
		return nil, fmt.Errorf("predict: unknown algorithm %q", m.Algorithm)
	}
	return out, nil
}

func (m *Model) validate() error {
	d := len(m.Features)
	if d == 0 {
		return errors.New("no features")
	}
	check := func(pts [][]float64) error {
		for _, p := range pts {
			if len(p) != d {
				return fmt.Errorf("point has %d dims, want %d", len(p), d)
			}
		}
		return nil
	}
	switch m.Algorithm {
	case AlgorithmKMeans:
		if len(m.Centroids) == 0 {
			return errors.New("no centroids")
		}
		return check(m.Centroids)
	case AlgorithmDBSCAN:
		if len(m.CorePoints) != len(m.CoreLabels) {
			return errors.New("core points and labels differ in length")
		}
		return check(m.CorePoints)
	default:
		return fmt.Errorf("unknown algorithm %q", m.Algorithm)
	}
}

// SaveModel writes m atomically, assigning an id on first save.
func SaveModel(path string, m *Model) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	b, err := json.MarshalIndent(m, "", "  ")
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

// LoadModel reads a saved model: fs.ErrNotExist when absent,
// *model.ModelStateError when unusable.
func LoadModel(path string) (*Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, &model.ModelStateError{Path: path, Err: err}
	}
	if err := m.validate(); err != nil {
		return nil, &model.ModelStateError{Path: path, Err: err}
	}
	return &m, nil
}
