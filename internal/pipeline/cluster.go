package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/melonattacker/honeycluster/internal/aggregate"
	"github.com/melonattacker/honeycluster/internal/cluster"
	"github.com/melonattacker/honeycluster/internal/model"
	"github.com/melonattacker/honeycluster/internal/scaler"
	"github.com/melonattacker/honeycluster/internal/storage"
	"github.com/melonattacker/honeycluster/internal/workspace"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ViewReport is one view's entry in summary.json.
type ViewReport struct {
	View       string             `json:"view"`
	Algorithm  cluster.Algorithm  `json:"algorithm"`
	ModelID    string             `json:"model_id"`
	Transition cluster.Transition `json:"transition"`
	// Explained is the variance ratio of each projected component.
	Explained []float64         `json:"explained_variance,omitempty"`
	Summary   aggregate.Summary `json:"summary"`
}

type ClusterReport struct {
	RunID  string         `json:"run_id"`
	RunDir string         `json:"run_dir"`
	Meta   workspace.Meta `json:"meta"`
	Views  []ViewReport   `json:"views"`
}

// Cluster samples the feature table, scales it and clusters every enabled
// view. Each view's summary and labels land in SQLite and in a new run
// directory.
func (p *Pipeline) Cluster(ctx context.Context, mode cluster.Mode) (ClusterReport, error) {
	defer p.Metrics.Time("cluster")()
	var rep ClusterReport

	db, err := storage.OpenSQLite(p.WS.FeatureDB())
	if err != nil {
		return rep, err
	}
	defer db.Close()

	rows, err := db.LoadFeatures(ctx, storage.LoadOptions{Dedupe: p.Cfg.Dedupe})
	if err != nil {
		return rep, fmt.Errorf("load features: %w", err)
	}
	if len(rows) == 0 {
		return rep, model.EmptyDataset("cluster")
	}
	sample, srep, err := p.Cfg.Sampling.Sample(rows)
	if err != nil {
		return rep, err
	}
	for _, t := range srep.Tiers {
		p.Metrics.Sampled(string(t.Tier), t.Drawn)
	}
	p.Log.Info("sampled",
		zap.Int("input", srep.Input),
		zap.Int("sampled", srep.Sampled),
		zap.Int("shortfall", srep.Shortfall),
	)
	if len(sample) == 0 {
		return rep, model.EmptyDataset("sampling")
	}

	names := model.FeatureNames()
	raw := storage.Matrix(sample)
	sc, fitted, err := scaler.Prepare(mode, p.WS.ScalerPath(), names, raw, p.Log)
	if err != nil {
		return rep, err
	}
	Z, err := sc.Transform(raw)
	if err != nil {
		return rep, err
	}

	start := p.now()
	runID, err := workspace.NewRunID(p.WS.RunsDir(), "cluster", start)
	if err != nil {
		return rep, err
	}
	rep.RunID = runID
	rep.RunDir = p.WS.RunDir(runID)
	rep.Meta = workspace.Meta{
		RunID:        runID,
		StartTS:      start.UnixNano(),
		Command:      "cluster",
		Argv:         p.Argv,
		Mode:         mode.String(),
		Status:       workspace.StatusRunning,
		FeatureRows:  len(rows),
		Sampling:     &srep,
		ScalerFitted: fitted,
	}
	if err := workspace.WriteMeta(rep.RunDir, rep.Meta); err != nil {
		return rep, err
	}

	// Saved models live in the old scaled space once the scaler is refit.
	viewMode := mode
	if fitted && mode == cluster.ReuseExisting {
		p.Log.Warn("scaler was refit, refitting every view model")
		viewMode = cluster.FitNew
	}

	st := p.stage()
	out := &runOutput{db: db, runID: runID, runDir: rep.RunDir, rows: sample, raw: raw, labels: map[string][]int{}}
	for _, v := range p.Cfg.EnabledViews() {
		if err = ctx.Err(); err != nil {
			break
		}
		var res cluster.Result
		res, err = st.Run(ctx, viewMode, v, names, Z)
		if err != nil {
			err = fmt.Errorf("view %s: %w", v.Name, err)
			break
		}
		var vr ViewReport
		vr, err = p.emitView(ctx, out, v, res)
		if err != nil {
			err = fmt.Errorf("view %s: %w", v.Name, err)
			break
		}
		rep.Views = append(rep.Views, vr)
	}
	if err == nil {
		err = out.finish(rep.Views)
	}
	rep.Meta.Views = viewMetas(rep.Views)
	p.finishRun(rep.RunDir, &rep.Meta, err)
	p.flushMetrics("cluster")
	return rep, err
}

// runOutput accumulates what one run writes across views.
type runOutput struct {
	db     *storage.SQLite
	runID  string
	runDir string
	rows   []storage.FeatureRow
	raw    [][]float64
	views  []string
	labels map[string][]int
}

// emitView summarizes one view on the unscaled columns and persists the
// summary, the per-session labels and the optional projection.
func (p *Pipeline) emitView(ctx context.Context, out *runOutput, v cluster.View, res cluster.Result) (ViewReport, error) {
	vr := ViewReport{View: v.Name, Algorithm: v.Algorithm, Transition: res.Transition}
	if res.Model != nil {
		vr.ModelID = res.Model.ID
	}
	cols, err := v.Columns(model.FeatureNames())
	if err != nil {
		return vr, err
	}
	sum, err := aggregate.Summarize(res.Names, cluster.Select(out.raw, cols), res.Labels)
	if err != nil {
		return vr, err
	}
	vr.Summary = sum

	if err := out.db.SaveSummary(ctx, out.runID, v.Name, sum); err != nil {
		return vr, fmt.Errorf("save summary: %w", err)
	}
	as := make([]storage.Assignment, len(out.rows))
	for i, r := range out.rows {
		as[i] = storage.Assignment{Source: r.Source, SessionID: r.SessionID, ClusterID: res.Labels[i]}
	}
	if err := out.db.SaveAssignments(ctx, out.runID, v.Name, as); err != nil {
		return vr, fmt.Errorf("save assignments: %w", err)
	}
	if err := storage.WriteFileAtomic(filepath.Join(out.runDir, "summary_"+v.Name+".csv"), func(w io.Writer) error {
		return storage.WriteSummaryCSV(w, sum)
	}); err != nil {
		return vr, err
	}

	if p.Cfg.Projection.Enabled && len(res.X) >= 2 {
		proj, ratio, err := aggregate.Project(res.X, p.Cfg.Projection.Dims)
		if err != nil {
			p.Log.Warn("projection skipped", zap.String("view", v.Name), zap.Error(err))
		} else {
			vr.Explained = ratio
			if err := storage.WriteFileAtomic(filepath.Join(out.runDir, "projection_"+v.Name+".csv"), func(w io.Writer) error {
				return storage.WriteProjectionCSV(w, out.rows, proj, res.Labels)
			}); err != nil {
				return vr, err
			}
		}
	}

	out.views = append(out.views, v.Name)
	out.labels[v.Name] = res.Labels
	p.Log.Info("view clustered",
		zap.String("view", v.Name),
		zap.String("transition", string(res.Transition)),
		zap.Int("clusters", len(sum.Clusters)),
		zap.Int("noise", sum.Noise),
	)
	return vr, nil
}

// finish writes the run-wide summary.json and assignments.csv.
func (o *runOutput) finish(views []ViewReport) error {
	if err := storage.WriteFileAtomic(filepath.Join(o.runDir, "summary.json"), func(w io.Writer) error {
		b, err := jsonAPI.MarshalIndent(views, "", "  ")
		if err != nil {
			return err
		}
		_, err = w.Write(append(b, '\n'))
		return err
	}); err != nil {
		return err
	}
	return storage.WriteFileAtomic(filepath.Join(o.runDir, "assignments.csv"), func(w io.Writer) error {
		return storage.WriteAssignmentsCSV(w, o.rows, o.views, o.labels)
	})
}

func viewMetas(views []ViewReport) []workspace.ViewMeta {
	out := make([]workspace.ViewMeta, 0, len(views))
	for _, v := range views {
		out = append(out, workspace.ViewMeta{
			Name:       v.View,
			Algorithm:  string(v.Algorithm),
			ModelID:    v.ModelID,
			Transition: string(v.Transition),
			Rows:       v.Summary.Total,
			Clusters:   len(v.Summary.Clusters),
			Noise:      v.Summary.Noise,
		})
	}
	return out
}

// finishRun stamps the final status into meta.json and hands the run
// directory back to the sudo caller.
func (p *Pipeline) finishRun(runDir string, m *workspace.Meta, runErr error) {
	m.EndTS = p.now().UnixNano()
	m.Status = workspace.StatusOK
	if runErr != nil {
		m.Status = workspace.StatusFailed
		m.Error = runErr.Error()
	}
	if err := workspace.WriteMeta(runDir, *m); err != nil {
		p.Log.Warn("write run meta", zap.String("run_dir", runDir), zap.Error(err))
	}
	_ = workspace.ChownToSudoUser(runDir)
}

// All runs clean, process and cluster in order. A skipped clean or process
// stage does not stop the run; an empty feature table does.
func (p *Pipeline) All(ctx context.Context, mode cluster.Mode) (CleanReport, ProcessReport, ClusterReport, error) {
	cr, err := p.Clean(ctx)
	if err != nil {
		return cr, ProcessReport{}, ClusterReport{}, fmt.Errorf("clean: %w", err)
	}
	pr, err := p.Process(ctx)
	if err != nil {
		return cr, pr, ClusterReport{}, fmt.Errorf("process: %w", err)
	}
	rep, err := p.Cluster(ctx, mode)
	return cr, pr, rep, err
}
