package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/melonattacker/honeycluster/internal/features"
	"github.com/melonattacker/honeycluster/internal/model"
	"github.com/melonattacker/honeycluster/internal/segment"
	"github.com/melonattacker/honeycluster/internal/storage"
)

type ProcessReport struct {
	Files     int  `json:"files"`
	Processed int  `json:"processed"`
	Existing  int  `json:"existing"`
	Rows      int  `json:"rows"`
	Malformed int  `json:"malformed_lines"`
	Broken    int  `json:"malformed_files"`
	Skipped   bool `json:"skipped"`
}

// Process extracts a feature vector from every session of every cleaned file
// that has no completion marker yet. Each file is written in one transaction
// together with its marker, so an interrupted file is redone from scratch.
func (p *Pipeline) Process(ctx context.Context) (ProcessReport, error) {
	defer p.Metrics.Time("process")()
	var rep ProcessReport

	files, err := segment.CollectFiles(p.WS.CleanedDir(), segment.CleanedSuffix)
	if err != nil {
		if errors.Is(err, model.ErrMissingInput) {
			p.Log.Warn("process skipped", zap.Error(err))
			rep.Skipped = true
			return rep, nil
		}
		return rep, err
	}

	db, err := storage.OpenSQLite(p.WS.FeatureDB())
	if err != nil {
		return rep, err
	}
	defer db.Close()

	ex := p.extractor()
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Files++
		src := segment.Source(f)
		done, err := db.IsProcessed(ctx, src)
		if err != nil {
			return rep, fmt.Errorf("check %s: %w", src, err)
		}
		if done {
			rep.Existing++
			p.Metrics.FileSkipped("process", "exists")
			p.Log.Debug("source already processed", zap.String("source", src))
			continue
		}

		n, bad, err := p.processFile(ctx, db, ex, f, src)
		rep.Malformed += bad
		switch {
		case errors.Is(err, model.ErrMalformedFile):
			rep.Broken++
			p.Metrics.FileSkipped("process", "malformed")
			p.Log.Warn("skip unreadable cleaned file", zap.String("file", f), zap.Error(err))
			continue
		case err != nil:
			return rep, err
		}
		rep.Processed++
		rep.Rows += n
		p.Metrics.Rows(n)
		p.Metrics.FileDone("process")
		p.Log.Info("processed", zap.String("source", src), zap.Int("rows", n), zap.Int("malformed", bad))
	}
	p.flushMetrics("process")
	return rep, nil
}

func (p *Pipeline) processFile(ctx context.Context, db *storage.SQLite, ex *features.Extractor, path, src string) (int, int, error) {
	batch, err := db.BeginSource(ctx, src)
	if err != nil {
		return 0, 0, err
	}
	bad := 0
	onMalformed := func(err error) {
		bad++
		p.Metrics.Malformed("process")
		p.Log.Warn("skip malformed line", zap.Error(err))
	}
	err = segment.ReadSessions(ctx, path, func(s model.Session) error {
		return batch.Add(ctx, storage.NewFeatureRow(s, ex.ExtractSession(s)))
	}, onMalformed)
	if err != nil {
		_ = batch.Rollback()
		return 0, bad, fmt.Errorf("process %s: %w", src, err)
	}
	n := batch.Count()
	if err := batch.Commit(ctx); err != nil {
		return 0, bad, fmt.Errorf("commit %s: %w", src, err)
	}
	return n, bad, nil
}
