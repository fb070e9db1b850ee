package pipeline

import (
	"context"
	"errors"
	"os"
	"slices"

	"github.com/melonattacker/honeycluster/internal/cluster"
	"github.com/melonattacker/honeycluster/internal/model"
	"github.com/melonattacker/honeycluster/internal/scaler"
	"github.com/melonattacker/honeycluster/internal/segment"
	"github.com/melonattacker/honeycluster/internal/storage"
	"github.com/melonattacker/honeycluster/internal/workspace"
)

// Status is a read-only snapshot of how far the workspace has progressed.
type Status struct {
	Home             string          `json:"home"`
	OriginalFiles    int             `json:"original_files"`
	PendingClean     int             `json:"pending_clean"`
	CleanedFiles     int             `json:"cleaned_files"`
	PendingProcess   int             `json:"pending_process"`
	ProcessedSources int             `json:"processed_sources"`
	FeatureRows      int             `json:"feature_rows"`
	Scaler           bool            `json:"scaler"`
	Models           map[string]bool `json:"models"`
	LastRun          *workspace.Meta `json:"last_run,omitempty"`
}

// Inspect gathers Status without writing anything.
func (p *Pipeline) Inspect(ctx context.Context) (Status, error) {
	st := Status{Home: p.WS.Home, Models: map[string]bool{}}

	originals, err := listOrEmpty(p.WS.OriginalDir(), segment.InputSuffixes...)
	if err != nil {
		return st, err
	}
	st.OriginalFiles = len(originals)
	for _, f := range originals {
		if _, err := os.Stat(segment.CleanedPath(p.WS.CleanedDir(), f)); err != nil {
			st.PendingClean++
		}
	}

	cleaned, err := listOrEmpty(p.WS.CleanedDir(), segment.CleanedSuffix)
	if err != nil {
		return st, err
	}
	st.CleanedFiles = len(cleaned)

	done := map[string]bool{}
	if _, err := os.Stat(p.WS.FeatureDB()); err == nil {
		db, err := storage.OpenSQLiteReadOnly(p.WS.FeatureDB())
		if err != nil {
			return st, err
		}
		defer db.Close()
		files, err := db.ProcessedFiles(ctx)
		if err != nil {
			return st, err
		}
		for _, f := range files {
			done[f.Source] = true
		}
		st.ProcessedSources = len(files)
		if st.FeatureRows, err = db.CountFeatures(ctx); err != nil {
			return st, err
		}
	}
	for _, f := range cleaned {
		if !done[segment.Source(f)] {
			st.PendingProcess++
		}
	}

	if sc, err := scaler.Load(p.WS.ScalerPath()); err == nil && slices.Equal(sc.Names, model.FeatureNames()) {
		st.Scaler = true
	}
	models := p.stage()
	for _, v := range p.Cfg.EnabledViews() {
		_, err := cluster.LoadModel(models.ModelPath(v.Name))
		st.Models[v.Name] = err == nil
	}

	if id, err := p.WS.LastRunID(); err == nil {
		if m, err := workspace.ReadMeta(p.WS.RunDir(id)); err == nil {
			st.LastRun = &m
		} else {
			st.LastRun = &workspace.Meta{RunID: id}
		}
	}
	return st, nil
}

func listOrEmpty(dir string, suffixes ...string) ([]string, error) {
	files, err := segment.CollectFiles(dir, suffixes...)
	if errors.Is(err, model.ErrMissingInput) {
		return nil, nil
	}
	return files, err
}
