package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/melonattacker/honeycluster/internal/sampling"
)

const MetaVersion = 1

const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// ViewMeta records the outcome of one clustering view in a run.
type ViewMeta struct {
	Name       string `json:"name"`
	Algorithm  string `json:"algorithm"`
	ModelID    string `json:"model_id"`
	Transition string `json:"transition"`
	Rows       int    `json:"rows"`
	Clusters   int    `json:"clusters"`
	Noise      int    `json:"noise"`
}

// Meta is runs/<id>/meta.json.
type Meta struct {
	RunID        string           `json:"run_id"`
	StartTS      int64            `json:"start_ts"`
	EndTS        int64            `json:"end_ts,omitempty"`
	Command      string           `json:"command"`
	Argv         []string         `json:"argv,omitempty"`
	Mode         string           `json:"mode"`
	Status       string           `json:"status"`
	Error        string           `json:"error,omitempty"`
	FeatureRows  int              `json:"feature_rows"`
	Sampling     *sampling.Report `json:"sampling,omitempty"`
	ScalerFitted bool             `json:"scaler_fitted"`
	Views        []ViewMeta       `json:"views,omitempty"`
	Version      int              `json:"version"`
}

func MetaPath(runDir string) string { return filepath.Join(runDir, "meta.json") }

func WriteMeta(runDir string, m Meta) error {
	if m.Version == 0 {
		m.Version = MetaVersion
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(runDir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", runDir, err)
	}
	tmp := filepath.Join(runDir, "meta.json.tmp")
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write meta tmp: %w", err)
	}
	if err := os.Rename(tmp, MetaPath(runDir)); err != nil {
		return fmt.Errorf("rename meta: %w", err)
	}
	return nil
}

func ReadMeta(runDir string) (Meta, error) {
	var m Meta
	b, err := os.ReadFile(MetaPath(runDir))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("decode %s: %w", MetaPath(runDir), err)
	}
	return m, nil
}

// ListRuns reads every run's meta, oldest first. Runs whose meta cannot be
// read are returned with only RunID set and Status empty.
func (w Workspace) ListRuns() ([]Meta, error) {
	ids, err := w.RunIDs()
	if err != nil {
		return nil, err
	}
	out := make([]Meta, 0, len(ids))
	for _, id := range ids {
		m, err := ReadMeta(w.RunDir(id))
		if err != nil {
			m = Meta{RunID: id}
		}
		out = append(out, m)
	}
	return out, nil
}
