package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/melonattacker/honeycluster/internal/model"
	"github.com/melonattacker/honeycluster/internal/segment"
)

type CleanReport struct {
	Files     int  `json:"files"`
	Cleaned   int  `json:"cleaned"`
	Existing  int  `json:"existing"`
	Malformed int  `json:"malformed_files"`
	Sessions  int  `json:"sessions"`
	Dropped   int  `json:"dropped_sessions"`
	Skipped   bool `json:"skipped"`
}

// Clean segments every original dump into a cleaned JSONL file. Files whose
// output already exists are left alone; a dump whose structure is broken is
// skipped and leaves no output behind.
func (p *Pipeline) Clean(ctx context.Context) (CleanReport, error) {
	defer p.Metrics.Time("clean")()
	var rep CleanReport

	files, err := segment.CollectFiles(p.WS.OriginalDir(), segment.InputSuffixes...)
	if err != nil {
		if errors.Is(err, model.ErrMissingInput) {
			p.Log.Warn("clean skipped", zap.Error(err))
			rep.Skipped = true
			return rep, nil
		}
		return rep, err
	}
	if err := os.MkdirAll(p.WS.CleanedDir(), 0o700); err != nil {
		return rep, fmt.Errorf("mkdir %s: %w", p.WS.CleanedDir(), err)
	}

	seg := segment.New(p.Log, p.Metrics)
	for _, in := range files {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Files++
		out := segment.CleanedPath(p.WS.CleanedDir(), in)
		if _, err := os.Stat(out); err == nil {
			rep.Existing++
			p.Metrics.FileSkipped("clean", "exists")
			p.Log.Debug("cleaned output exists", zap.String("file", in))
			continue
		}

		st, err := p.cleanFile(ctx, seg, in, out)
		switch {
		case errors.Is(err, model.ErrMalformedFile):
			rep.Malformed++
			p.Metrics.FileSkipped("clean", "malformed")
			p.Log.Warn("skip malformed file", zap.String("file", in), zap.Error(err))
			continue
		case err != nil:
			return rep, err
		}
		rep.Cleaned++
		rep.Sessions += st.Sessions
		rep.Dropped += st.Dropped
		p.Metrics.FileDone("clean")
		p.Log.Info("cleaned",
			zap.String("file", in),
			zap.Int("sessions", st.Sessions),
			zap.Int("dropped", st.Dropped),
			zap.Int("malformed", st.Malformed),
		)
	}
	p.flushMetrics("clean")
	return rep, nil
}

func (p *Pipeline) cleanFile(ctx context.Context, seg *segment.Segmenter, in, out string) (segment.Stats, error) {
	w, err := segment.NewWriter(out)
	if err != nil {
		return segment.Stats{}, err
	}
	st, err := seg.Stream(ctx, in, w.Append)
	if err != nil {
		_ = w.Abort()
		return st, err
	}
	if err := w.Commit(); err != nil {
		return st, fmt.Errorf("commit %s: %w", out, err)
	}
	return st, nil
}
