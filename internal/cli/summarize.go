package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/melonattacker/honeycluster/internal/aggregate"
	"github.com/melonattacker/honeycluster/internal/cliui"
	"github.com/melonattacker/honeycluster/internal/storage"
	"github.com/melonattacker/honeycluster/internal/workspace"
)

type viewSummary struct {
	View    string            `json:"view"`
	Summary aggregate.Summary `json:"summary"`
}

type summarizeOut struct {
	RunID string          `json:"run_id"`
	Meta  *workspace.Meta `json:"meta,omitempty"`
	Views []viewSummary   `json:"views"`
}

func newSummarizeCommand(o *options) *cobra.Command {
	var (
		view   string
		stat   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "summarize [run-id|last]",
		Short: "Print per-cluster feature statistics of a run (default: last)",
		Long: `Prints the cluster summaries stored for a run: population, share and a
per-feature statistic of every cluster, largest cluster first. Statistics
are computed on unscaled feature values.`,
		Example: `  honeycluster summarize
  honeycluster summarize 20260214-010203-cluster --view expertise --stat median
  honeycluster summarize last --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pick, err := statPicker(stat)
			if err != nil {
				return err
			}
			e, err := o.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			sel := "last"
			if len(args) == 1 {
				sel = args[0]
			}
			runID, runDir, err := e.ws.ResolveRun(sel)
			if err != nil {
				return err
			}
			out := summarizeOut{RunID: runID}
			if m, err := workspace.ReadMeta(runDir); err == nil {
				out.Meta = &m
			}

			db, err := storage.OpenSQLiteReadOnly(e.ws.FeatureDB())
			if err != nil {
				return err
			}
			defer db.Close()

			views, err := db.SummaryViews(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if view = strings.TrimSpace(view); view != "" {
				if !slices.Contains(views, view) {
					return fmt.Errorf("run %s has no summary for view %q (have %s)", runID, view, strings.Join(views, ", "))
				}
				views = []string{view}
			}
			for _, v := range views {
				sum, err := db.LoadSummary(cmd.Context(), runID, v)
				if err != nil {
					return fmt.Errorf("load summary %s: %w", v, err)
				}
				out.Views = append(out.Views, viewSummary{View: v, Summary: sum})
			}

			if asJSON {
				return writeJSON(e.out, out)
			}
			if len(out.Views) == 0 {
				fmt.Fprintf(e.out, "(no summaries for run %s)\n", runID)
				return nil
			}
			fmt.Fprintf(e.out, "Run: %s\n", runID)
			for _, vs := range out.Views {
				fmt.Fprintln(e.out)
				printSummary(e.out, e.color, vs, stat, pick)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&view, "view", "", "only this view")
	cmd.Flags().StringVar(&stat, "stat", "mean", "statistic per feature: mean|median|std|min|max")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func statPicker(name string) (func(aggregate.Stats) float64, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mean":
		return func(s aggregate.Stats) float64 { return s.Mean }, nil
	case "median":
		return func(s aggregate.Stats) float64 { return s.Median }, nil
	case "std":
		return func(s aggregate.Stats) float64 { return s.Std }, nil
	case "min":
		return func(s aggregate.Stats) float64 { return s.Min }, nil
	case "max":
		return func(s aggregate.Stats) float64 { return s.Max }, nil
	default:
		return nil, fmt.Errorf("invalid --stat %q (expected mean|median|std|min|max)", name)
	}
}

func printSummary(w io.Writer, c cliui.Colorizer, vs viewSummary, stat string, pick func(aggregate.Stats) float64) {
	s := vs.Summary
	fmt.Fprintf(w, "== %s  %s\n", vs.View, cliui.JoinKV(
		cliui.KV{K: "rows", V: fmt.Sprint(s.Total)},
		cliui.KV{K: "clusters", V: fmt.Sprint(len(s.Clusters))},
		cliui.KV{K: "noise", V: fmt.Sprint(s.Noise)},
		cliui.KV{K: "stat", V: stat},
	))

	cols := []cliui.Column{
		{Name: "cluster", MaxWidth: 7, AlignRight: true},
		{Name: "size", MaxWidth: 10, AlignRight: true},
		{Name: "share", MaxWidth: 6, AlignRight: true},
	}
	for _, n := range s.Names {
		cols = append(cols, cliui.Column{Name: n, MaxWidth: 14, AlignRight: true})
	}
	tbl := cliui.NewTable(cols...)
	for _, cl := range s.Clusters {
		cells := []string{c.Cluster(cl.ID), fmt.Sprint(cl.Size), cliui.Percent(cl.Size, s.Total)}
		for _, st := range cl.Features {
			cells = append(cells, cliui.Float(pick(st), 3))
		}
		tbl.Add(cells...)
	}
	tbl.Render(w)
}
