package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"

	"go.uber.org/zap"

	"github.com/melonattacker/honeycluster/internal/cluster"
	"github.com/melonattacker/honeycluster/internal/model"
	"github.com/melonattacker/honeycluster/internal/scaler"
	"github.com/melonattacker/honeycluster/internal/storage"
	"github.com/melonattacker/honeycluster/internal/workspace"
)

// Assign labels the whole feature table with the saved scaler and models.
// Nothing is fitted: a view without a usable model is skipped, and a missing
// scaler fails the command.
func (p *Pipeline) Assign(ctx context.Context) (ClusterReport, error) {
	defer p.Metrics.Time("assign")()
	var rep ClusterReport

	sc, err := scaler.Load(p.WS.ScalerPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return rep, fmt.Errorf("no scaler, run cluster first: %w", model.MissingInput(p.WS.ScalerPath()))
		}
		return rep, err
	}
	names := model.FeatureNames()
	if !slices.Equal(sc.Names, names) {
		return rep, &model.ModelStateError{Path: p.WS.ScalerPath(), Err: fmt.Errorf("feature names %v do not match %v", sc.Names, names)}
	}

	db, err := storage.OpenSQLite(p.WS.FeatureDB())
	if err != nil {
		return rep, err
	}
	defer db.Close()

	rows, err := db.LoadFeatures(ctx, storage.LoadOptions{})
	if err != nil {
		return rep, fmt.Errorf("load features: %w", err)
	}
	if len(rows) == 0 {
		return rep, model.EmptyDataset("assign")
	}
	raw := storage.Matrix(rows)
	Z, err := sc.Transform(raw)
	if err != nil {
		return rep, err
	}

	st := p.stage()
	type prepared struct {
		view cluster.View
		res  cluster.Result
	}
	var ready []prepared
	for _, v := range p.Cfg.EnabledViews() {
		res, ok, err := p.predictView(st, v, names, Z)
		if err != nil {
			return rep, fmt.Errorf("view %s: %w", v.Name, err)
		}
		if ok {
			ready = append(ready, prepared{view: v, res: res})
		}
	}
	if len(ready) == 0 {
		return rep, fmt.Errorf("no usable models, run cluster first: %w", model.MissingInput(p.WS.ModelDir()))
	}

	start := p.now()
	runID, err := workspace.NewRunID(p.WS.RunsDir(), "assign", start)
	if err != nil {
		return rep, err
	}
	rep.RunID = runID
	rep.RunDir = p.WS.RunDir(runID)
	rep.Meta = workspace.Meta{
		RunID:       runID,
		StartTS:     start.UnixNano(),
		Command:     "assign",
		Argv:        p.Argv,
		Mode:        "predict",
		Status:      workspace.StatusRunning,
		FeatureRows: len(rows),
	}
	if err := workspace.WriteMeta(rep.RunDir, rep.Meta); err != nil {
		return rep, err
	}

	out := &runOutput{db: db, runID: runID, runDir: rep.RunDir, rows: rows, raw: raw, labels: map[string][]int{}}
	for _, pv := range ready {
		if err = ctx.Err(); err != nil {
			break
		}
		var vr ViewReport
		vr, err = p.emitView(ctx, out, pv.view, pv.res)
		if err != nil {
			err = fmt.Errorf("view %s: %w", pv.view.Name, err)
			break
		}
		rep.Views = append(rep.Views, vr)
	}
	if err == nil {
		err = out.finish(rep.Views)
	}
	rep.Meta.Views = viewMetas(rep.Views)
	p.finishRun(rep.RunDir, &rep.Meta, err)
	p.flushMetrics("assign")
	return rep, err
}

// predictView labels Z with the saved model of v. ok is false when the
// model is missing, unreadable or was fitted on other columns.
func (p *Pipeline) predictView(st *cluster.Stage, v cluster.View, names []string, Z [][]float64) (cluster.Result, bool, error) {
	log := p.Log.With(zap.String("view", v.Name))
	cols, err := v.Columns(names)
	if err != nil {
		return cluster.Result{}, false, err
	}
	vnames := make([]string, len(cols))
	for i, c := range cols {
		vnames[i] = names[c]
	}

	path := st.ModelPath(v.Name)
	m, err := cluster.LoadModel(path)
	if err != nil {
		var mse *model.ModelStateError
		if errors.Is(err, fs.ErrNotExist) || errors.As(err, &mse) {
			log.Warn("no usable model, view skipped", zap.String("path", path), zap.Error(err))
			return cluster.Result{}, false, nil
		}
		return cluster.Result{}, false, err
	}
	if m.Algorithm != v.Algorithm || !slices.Equal(m.Features, vnames) {
		log.Warn("model does not match view, view skipped", zap.String("path", path), zap.Strings("model_features", m.Features))
		return cluster.Result{}, false, nil
	}

	X := cluster.Select(Z, cols)
	labels, err := m.Predict(X)
	if err != nil {
		return cluster.Result{}, false, err
	}
	return cluster.Result{
		View:       v.Name,
		Names:      vnames,
		X:          X,
		Labels:     labels,
		Model:      m,
		Transition: cluster.TransitionReused,
	}, true, nil
}
