// Package pipeline wires the stages together over one workspace: clean the
// original dumps, process cleaned sessions into the feature table, then
// sample, scale, cluster and summarize.
//
// Stages share no locks. Two invocations against the same workspace must be
// serialized by the caller.
package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/melonattacker/honeycluster/internal/cluster"
	"github.com/melonattacker/honeycluster/internal/config"
	"github.com/melonattacker/honeycluster/internal/features"
	"github.com/melonattacker/honeycluster/internal/metrics"
	"github.com/melonattacker/honeycluster/internal/vocab"
	"github.com/melonattacker/honeycluster/internal/workspace"
)

type Pipeline struct {
	WS      workspace.Workspace
	Cfg     config.Config
	Vocab   *vocab.Vocabulary
	Log     *zap.Logger
	Metrics *metrics.Pipeline
	// Argv is recorded in run metadata.
	Argv []string
	Now  func() time.Time
}

// New builds a pipeline. Metrics are collected only when the config enables
// them.
func New(ws workspace.Workspace, cfg config.Config, v *vocab.Vocabulary, log *zap.Logger) (*Pipeline, error) {
	if v == nil {
		return nil, fmt.Errorf("pipeline: nil vocabulary")
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pipeline{WS: ws, Cfg: cfg, Vocab: v, Log: log, Now: time.Now}
	if cfg.Metrics {
		p.Metrics = metrics.New()
	}
	return p, nil
}

func (p *Pipeline) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func (p *Pipeline) extractor() *features.Extractor {
	return features.NewExtractor(p.Vocab, p.Cfg.Features.Options())
}

func (p *Pipeline) stage() *cluster.Stage {
	return &cluster.Stage{
		ModelDir: p.WS.ModelDir(),
		Seed:     p.Cfg.Cluster.Seed,
		Restarts: p.Cfg.Cluster.Restarts,
		MaxIter:  p.Cfg.Cluster.MaxIter,
		Tol:      p.Cfg.Cluster.Tol,
		Log:      p.Log,
		Metrics:  p.Metrics,
	}
}

// flushMetrics dumps the registry for node_exporter. Failures only warn.
func (p *Pipeline) flushMetrics(stage string) {
	if p.Metrics == nil {
		return
	}
	path := p.WS.MetricsPath(stage)
	if err := p.Metrics.WriteTextfile(path); err != nil {
		p.Log.Warn("write metrics", zap.String("path", path), zap.Error(err))
		return
	}
	_ = workspace.ChownToSudoUser(path)
}
