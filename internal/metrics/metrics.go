package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/melonattacker/honeycluster/internal/model"
)

const namespace = "honeycluster"

// Pipeline holds the counters of one honeycluster invocation. Each invocation
// owns a private registry that is dumped in the node_exporter textfile format
// when the run ends. A nil *Pipeline is valid and records nothing.
type Pipeline struct {
	reg *prometheus.Registry

	EventsClassified *prometheus.CounterVec
	SessionsEmitted  prometheus.Counter
	SessionsDropped  prometheus.Counter
	RecordsMalformed *prometheus.CounterVec
	FilesProcessed   *prometheus.CounterVec
	FilesSkipped     *prometheus.CounterVec
	FeatureRows      prometheus.Counter
	SampleRows       *prometheus.GaugeVec
	ClusterFits      *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
}

func New() *Pipeline {
	p := &Pipeline{
		reg: prometheus.NewRegistry(),
		EventsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_classified_total",
			Help:      "Raw honeypot events by taxonomy code.",
		}, []string{"code"}),
		SessionsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_emitted_total",
			Help:      "Sessions with at least one interesting event.",
		}),
		SessionsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_dropped_total",
			Help:      "Sessions dropped because no event was interesting.",
		}),
		RecordsMalformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_malformed_total",
			Help:      "Sessions or lines skipped because they failed to decode.",
		}, []string{"stage"}),
		FilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Input files completed by a stage.",
		}, []string{"stage"}),
		FilesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_skipped_total",
			Help:      "Input files skipped by a stage.",
		}, []string{"stage", "reason"}),
		FeatureRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_rows_written_total",
			Help:      "Feature vectors written to the feature table.",
		}),
		SampleRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sample_rows",
			Help:      "Rows drawn per sampling tier in the last clustering run.",
		}, []string{"tier"}),
		ClusterFits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cluster_model_transitions_total",
			Help:      "Cluster model state transitions per view.",
		}, []string{"view", "transition"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time per pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),
	}
	p.reg.MustRegister(
		p.EventsClassified,
		p.SessionsEmitted,
		p.SessionsDropped,
		p.RecordsMalformed,
		p.FilesProcessed,
		p.FilesSkipped,
		p.FeatureRows,
		p.SampleRows,
		p.ClusterFits,
		p.StageDuration,
	)
	return p
}

func (p *Pipeline) Registry() *prometheus.Registry {
	if p == nil {
		return nil
	}
	return p.reg
}

func (p *Pipeline) Event(c model.Code) {
	if p == nil {
		return
	}
	p.EventsClassified.WithLabelValues(c.String()).Inc()
}

func (p *Pipeline) Session(emitted bool) {
	if p == nil {
		return
	}
	if emitted {
		p.SessionsEmitted.Inc()
	} else {
		p.SessionsDropped.Inc()
	}
}

func (p *Pipeline) Malformed(stage string) {
	if p == nil {
		return
	}
	p.RecordsMalformed.WithLabelValues(stage).Inc()
}

func (p *Pipeline) FileDone(stage string) {
	if p == nil {
		return
	}
	p.FilesProcessed.WithLabelValues(stage).Inc()
}

func (p *Pipeline) FileSkipped(stage, reason string) {
	if p == nil {
		return
	}
	p.FilesSkipped.WithLabelValues(stage, reason).Inc()
}

func (p *Pipeline) Rows(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.FeatureRows.Add(float64(n))
}

func (p *Pipeline) Sampled(tier string, n int) {
	if p == nil {
		return
	}
	p.SampleRows.WithLabelValues(tier).Set(float64(n))
}

func (p *Pipeline) Transition(view, transition string) {
	if p == nil {
		return
	}
	p.ClusterFits.WithLabelValues(view, transition).Inc()
}

// Time starts a stage timer; call the returned func when the stage ends.
func (p *Pipeline) Time(stage string) func() {
	if p == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		p.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// WriteTextfile dumps the registry to path for node_exporter's textfile
// collector.
func (p *Pipeline) WriteTextfile(path string) error {
	if p == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := prometheus.WriteToTextfile(path, p.reg); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
