package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/melonattacker/honeycluster/internal/model"
)

// FeatureRow is one session's row in the feature table. Identifier columns
// travel beside the numeric vector and are never scaled.
type FeatureRow struct {
	ID        int64
	Source    string
	SessionID string
	LogDate   string
	StartTS   int64
	EndTS     int64
	Features  model.FeatureVector
}

// NewFeatureRow builds the row of an extracted session.
func NewFeatureRow(s model.Session, fv model.FeatureVector) FeatureRow {
	r := FeatureRow{Source: s.Source, SessionID: s.ID, LogDate: s.LogDate, Features: fv}
	if !s.Start.IsZero() {
		r.StartTS = s.Start.UnixNano()
	}
	if !s.End.IsZero() {
		r.EndTS = s.End.UnixNano()
	}
	return r
}

func (r FeatureRow) Values() []float64 { return r.Features.Values() }

// Matrix flattens rows into a row-major feature matrix.
func Matrix(rows []FeatureRow) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Values()
	}
	return out
}

const defaultChunk = 5000

var featureCols = strings.Join(model.FeatureNames(), ", ")

// SourceBatch writes all rows of one cleaned file inside one transaction
// together with the file's completion marker.
type SourceBatch struct {
	source string
	tx     *sql.Tx
	stmt   *sql.Stmt
	n      int
}

func (s *SQLite) BeginSource(ctx context.Context, source string) (*SourceBatch, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	// A half-processed source from an interrupted run never committed its
	// marker; drop whatever rows it left before writing again.
	if _, err := tx.ExecContext(ctx, `DELETE FROM features WHERE source=?`, source); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("clear source %s: %w", source, err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", 5+len(model.FeatureNames())), ", ")
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO features(source, session_id, log_date, start_ts, end_ts, `+featureCols+`)
		 VALUES(`+placeholders+`)`)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return &SourceBatch{source: source, tx: tx, stmt: stmt}, nil
}

func (b *SourceBatch) Add(ctx context.Context, r FeatureRow) error {
	args := []any{b.source, r.SessionID, nullStr(r.LogDate), nullInt64(r.StartTS), nullInt64(r.EndTS)}
	for _, v := range r.Values() {
		args = append(args, v)
	}
	if _, err := b.stmt.ExecContext(ctx, args...); err != nil {
		return fmt.Errorf("insert feature row %s/%s: %w", b.source, r.SessionID, err)
	}
	b.n++
	return nil
}

func (b *SourceBatch) Count() int { return b.n }

// Commit records the completion marker and commits.
func (b *SourceBatch) Commit(ctx context.Context) error {
	defer b.stmt.Close()
	if _, err := b.tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO processed_files(source, sessions, processed_ts) VALUES(?, ?, ?)`,
		b.source, b.n, time.Now().UTC().UnixNano(),
	); err != nil {
		_ = b.tx.Rollback()
		return fmt.Errorf("mark source %s: %w", b.source, err)
	}
	return b.tx.Commit()
}

func (b *SourceBatch) Rollback() error {
	_ = b.stmt.Close()
	return b.tx.Rollback()
}

// IsProcessed reports whether source has a completion marker.
func (s *SQLite) IsProcessed(ctx context.Context, source string) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM processed_files WHERE source=?`, source).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type ProcessedFile struct {
	Source      string
	Sessions    int
	ProcessedTS int64
}

func (s *SQLite) ProcessedFiles(ctx context.Context) ([]ProcessedFile, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT source, sessions, processed_ts FROM processed_files ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProcessedFile
	for rows.Next() {
		var p ProcessedFile
		if err := rows.Scan(&p.Source, &p.Sessions, &p.ProcessedTS); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) CountFeatures(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM features`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// IterateFeatures reads the feature table in id order, chunk rows at a time.
func (s *SQLite) IterateFeatures(ctx context.Context, chunk int, fn func([]FeatureRow) error) error {
	if chunk <= 0 {
		chunk = defaultChunk
	}
	var after int64
	for {
		rows, err := s.DB.QueryContext(ctx,
			`SELECT id, source, session_id, log_date, start_ts, end_ts, `+featureCols+`
			 FROM features WHERE id > ? ORDER BY id LIMIT ?`, after, chunk)
		if err != nil {
			return err
		}
		batch, err := scanFeatureRows(rows)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		after = batch[len(batch)-1].ID
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < chunk {
			return nil
		}
	}
}

func scanFeatureRows(rows *sql.Rows) ([]FeatureRow, error) {
	defer rows.Close()
	var out []FeatureRow
	vals := make([]float64, len(model.FeatureNames()))
	for rows.Next() {
		var r FeatureRow
		var logDate sql.NullString
		var startTS, endTS sql.NullInt64
		dest := []any{&r.ID, &r.Source, &r.SessionID, &logDate, &startTS, &endTS}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		r.LogDate = logDate.String
		r.StartTS = startTS.Int64
		r.EndTS = endTS.Int64
		fv, err := model.FeatureVectorFromValues(vals)
		if err != nil {
			return nil, err
		}
		r.Features = fv
		out = append(out, r)
	}
	return out, rows.Err()
}

type LoadOptions struct {
	// Dedupe rounds every feature to two decimals and keeps the first row of
	// each distinct rounded vector.
	Dedupe bool
	Chunk  int
}

// LoadFeatures reads the whole feature table.
func (s *SQLite) LoadFeatures(ctx context.Context, opts LoadOptions) ([]FeatureRow, error) {
	var out []FeatureRow
	seen := map[string]struct{}{}
	err := s.IterateFeatures(ctx, opts.Chunk, func(batch []FeatureRow) error {
		for _, r := range batch {
			if opts.Dedupe {
				vals := r.Values()
				for i := range vals {
					vals[i] = round2(vals[i])
				}
				key := fmt.Sprint(vals)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				fv, err := model.FeatureVectorFromValues(vals)
				if err != nil {
					return err
				}
				r.Features = fv
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func round2(x float64) float64 {
	r := math.Round(x*100) / 100
	if r == 0 {
		return 0
	}
	return r
}
