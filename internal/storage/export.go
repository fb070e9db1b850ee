package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/melonattacker/honeycluster/internal/aggregate"
)

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', 8, 64) }

// WriteSummaryCSV writes one line per (cluster, feature) in pandas describe
// layout.
func WriteSummaryCSV(w io.Writer, sum aggregate.Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"cluster_id", "size", "feature", "mean", "std", "min", "median", "max"}); err != nil {
		return err
	}
	for _, c := range sum.Clusters {
		for j, st := range c.Features {
			rec := []string{
				strconv.Itoa(c.ID),
				strconv.Itoa(c.Size),
				sum.Names[j],
				formatFloat(st.Mean),
				formatFloat(st.Std),
				formatFloat(st.Min),
				formatFloat(st.Median),
				formatFloat(st.Max),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	if sum.Noise > 0 {
		if err := cw.Write([]string{strconv.Itoa(aggregate.NoiseLabel), strconv.Itoa(sum.Noise), "", "", "", "", "", ""}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAssignmentsCSV writes source, session_id and one label column per view.
func WriteAssignmentsCSV(w io.Writer, rows []FeatureRow, views []string, labels map[string][]int) error {
	cw := csv.NewWriter(w)
	header := append([]string{"source", "session_id"}, views...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, r := range rows {
		rec := []string{r.Source, r.SessionID}
		for _, v := range views {
			ls := labels[v]
			if i >= len(ls) {
				return fmt.Errorf("view %s: %d labels for %d rows", v, len(ls), len(rows))
			}
			rec = append(rec, strconv.Itoa(ls[i]))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteProjectionCSV writes principal-component coordinates with labels.
func WriteProjectionCSV(w io.Writer, rows []FeatureRow, proj [][]float64, labels []int) error {
	if len(proj) != len(rows) || len(labels) != len(rows) {
		return fmt.Errorf("projection: %d rows, %d points, %d labels", len(rows), len(proj), len(labels))
	}
	cw := csv.NewWriter(w)
	dims := 0
	if len(proj) > 0 {
		dims = len(proj[0])
	}
	header := []string{"source", "session_id", "cluster_id"}
	for i := 0; i < dims; i++ {
		header = append(header, fmt.Sprintf("pc%d", i+1))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, r := range rows {
		rec := []string{r.Source, r.SessionID, strconv.Itoa(labels[i])}
		for _, v := range proj[i] {
			rec = append(rec, formatFloat(v))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFileAtomic writes through fn into path via a temporary sibling.
func WriteFileAtomic(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", tmp, err)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
