package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/melonattacker/honeycluster/internal/aggregate"
	"github.com/melonattacker/honeycluster/internal/model"
)

// Assignment is the cluster label of one session in one view.
type Assignment struct {
	Source    string
	SessionID string
	ClusterID int
}

// SaveAssignments replaces the labels of (runID, view).
func (s *SQLite) SaveAssignments(ctx context.Context, runID, view string, as []Assignment) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE run_id=? AND view=?`, runID, view); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO assignments(run_id, view, source, session_id, cluster_id) VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, a := range as {
		if _, err := stmt.ExecContext(ctx, runID, view, a.Source, a.SessionID, a.ClusterID); err != nil {
			return fmt.Errorf("insert assignment %s/%s: %w", a.Source, a.SessionID, err)
		}
	}
	return tx.Commit()
}

// ClusterCount is the population of one cluster label.
type ClusterCount struct {
	ClusterID int
	Count     int
}

// AssignmentCounts returns label populations of (runID, view), largest first.
func (s *SQLite) AssignmentCounts(ctx context.Context, runID, view string) ([]ClusterCount, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT cluster_id, COUNT(1) AS c FROM assignments WHERE run_id=? AND view=?
		 GROUP BY cluster_id ORDER BY c DESC, cluster_id ASC`, runID, view)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ClusterCount
	for rows.Next() {
		var c ClusterCount
		if err := rows.Scan(&c.ClusterID, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveSummary replaces the stored summary of (runID, view).
func (s *SQLite) SaveSummary(ctx context.Context, runID, view string, sum aggregate.Summary) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM cluster_summaries WHERE run_id=? AND view=?`,
		`DELETE FROM cluster_noise WHERE run_id=? AND view=?`,
	} {
		if _, err := tx.ExecContext(ctx, q, runID, view); err != nil {
			return err
		}
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cluster_summaries(run_id, view, cluster_id, size, feature, mean, std, min, median, max)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range sum.Clusters {
		for j, st := range c.Features {
			if _, err := stmt.ExecContext(ctx, runID, view, c.ID, c.Size, sum.Names[j],
				st.Mean, st.Std, st.Min, st.Median, st.Max); err != nil {
				return fmt.Errorf("insert summary %s/%d/%s: %w", view, c.ID, sum.Names[j], err)
			}
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cluster_noise(run_id, view, noise, total) VALUES(?, ?, ?, ?)`,
		runID, view, sum.Noise, sum.Total); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadSummary rebuilds a stored summary. Feature order follows the feature
// table where names match, then the remaining names alphabetically.
func (s *SQLite) LoadSummary(ctx context.Context, runID, view string) (aggregate.Summary, error) {
	var out aggregate.Summary
	err := s.DB.QueryRowContext(ctx,
		`SELECT noise, total FROM cluster_noise WHERE run_id=? AND view=?`, runID, view).Scan(&out.Noise, &out.Total)
	if err == sql.ErrNoRows {
		return out, fmt.Errorf("no summary for run %q view %q", runID, view)
	}
	if err != nil {
		return out, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT cluster_id, size, feature, mean, std, min, median, max
		 FROM cluster_summaries WHERE run_id=? AND view=?`, runID, view)
	if err != nil {
		return out, err
	}
	defer rows.Close()

	type rec struct {
		id, size int
		feature  string
		st       aggregate.Stats
	}
	var recs []rec
	names := map[string]struct{}{}
	for rows.Next() {
		var r rec
		if err := rows.Scan(&r.id, &r.size, &r.feature, &r.st.Mean, &r.st.Std, &r.st.Min, &r.st.Median, &r.st.Max); err != nil {
			return out, err
		}
		names[r.feature] = struct{}{}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return out, err
	}

	out.Names = orderedNames(names)
	pos := map[string]int{}
	for i, n := range out.Names {
		pos[n] = i
	}
	byID := map[int]*aggregate.Cluster{}
	for _, r := range recs {
		c, ok := byID[r.id]
		if !ok {
			c = &aggregate.Cluster{ID: r.id, Size: r.size, Features: make([]aggregate.Stats, len(out.Names))}
			byID[r.id] = c
		}
		c.Features[pos[r.feature]] = r.st
	}
	for _, c := range byID {
		out.Clusters = append(out.Clusters, *c)
	}
	sort.Slice(out.Clusters, func(i, j int) bool {
		if out.Clusters[i].Size != out.Clusters[j].Size {
			return out.Clusters[i].Size > out.Clusters[j].Size
		}
		return out.Clusters[i].ID < out.Clusters[j].ID
	})
	return out, nil
}

// SummaryViews lists the views with a stored summary for runID.
func (s *SQLite) SummaryViews(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT view FROM cluster_noise WHERE run_id=? ORDER BY view`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func orderedNames(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for _, n := range model.FeatureNames() {
		if _, ok := set[n]; ok {
			out = append(out, n)
			delete(set, n)
		}
	}
	rest := make([]string, 0, len(set))
	for n := range set {
		rest = append(rest, n)
	}
	sort.Strings(rest)
	return append(out, rest...)
}
