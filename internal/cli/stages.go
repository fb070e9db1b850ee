package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/melonattacker/honeycluster/internal/cliui"
	"github.com/melonattacker/honeycluster/internal/cluster"
	"github.com/melonattacker/honeycluster/internal/pipeline"
)

func newCleanCommand(o *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Segment original dumps into cleaned JSONL",
		Long: `Reads <home>/original/*.json.gz (or *.json) and writes one cleaned
JSONL file per dump to <home>/cleaned/. Dumps that already have a cleaned
file are skipped; a dump that cannot be parsed is skipped with a warning.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := o.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			p, err := e.pipeline(o.argv)
			if err != nil {
				return err
			}
			rep, err := p.Clean(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(e.out, rep)
			}
			printClean(e.out, rep)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func newProcessCommand(o *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Extract feature vectors from cleaned sessions",
		Long: `Reads <home>/cleaned/*.jsonl and appends one feature row per session
to <home>/processed/features.sqlite. A file is recorded as processed in the
same transaction as its rows, so re-running only picks up new files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := o.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			p, err := e.pipeline(o.argv)
			if err != nil {
				return err
			}
			rep, err := p.Process(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(e.out, rep)
			}
			printProcess(e.out, rep)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func newClusterCommand(o *options) *cobra.Command {
	var (
		refit  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Sample, scale and cluster the feature table",
		Long: `Draws a stratified sample from the feature table, scales it and
clusters every enabled view. Saved scaler and models are reused unless
--refit is given or they no longer match the configured columns.

Each invocation writes a new run under <home>/runs/.`,
		Example: `  honeycluster cluster
  honeycluster cluster --refit --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := o.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			p, err := e.pipeline(o.argv)
			if err != nil {
				return err
			}
			rep, err := p.Cluster(cmd.Context(), cluster.ModeFromRefit(refit))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(e.out, rep)
			}
			printRun(e.out, e.color, rep)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refit, "refit", false, "fit a new scaler and models even when saved ones exist")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func newAssignCommand(o *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Label every feature row with the saved models",
		Long: `Scales the whole feature table with the saved scaler and predicts a
cluster for every row with each view's saved model. Nothing is refitted;
views without a usable model are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := o.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			p, err := e.pipeline(o.argv)
			if err != nil {
				return err
			}
			rep, err := p.Assign(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(e.out, rep)
			}
			printRun(e.out, e.color, rep)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func newRunCommand(o *options) *cobra.Command {
	var (
		refit  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Clean, process and cluster in one go",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := o.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			p, err := e.pipeline(o.argv)
			if err != nil {
				return err
			}
			cr, pr, rep, err := p.All(cmd.Context(), cluster.ModeFromRefit(refit))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(e.out, struct {
					Clean   pipeline.CleanReport   `json:"clean"`
					Process pipeline.ProcessReport `json:"process"`
					Cluster pipeline.ClusterReport `json:"cluster"`
				}{cr, pr, rep})
			}
			printClean(e.out, cr)
			printProcess(e.out, pr)
			fmt.Fprintln(e.out)
			printRun(e.out, e.color, rep)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refit, "refit", false, "fit a new scaler and models even when saved ones exist")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func printClean(w io.Writer, r pipeline.CleanReport) {
	if r.Skipped {
		fmt.Fprintln(w, "clean:    skipped (no original directory)")
		return
	}
	fmt.Fprintf(w, "clean:    %s\n", cliui.JoinKV(
		cliui.KV{K: "files", V: fmt.Sprint(r.Files)},
		cliui.KV{K: "cleaned", V: fmt.Sprint(r.Cleaned)},
		cliui.KV{K: "existing", V: fmt.Sprint(r.Existing)},
		cliui.KV{K: "malformed", V: fmt.Sprint(r.Malformed)},
		cliui.KV{K: "sessions", V: fmt.Sprint(r.Sessions)},
		cliui.KV{K: "dropped", V: fmt.Sprint(r.Dropped)},
	))
}

func printProcess(w io.Writer, r pipeline.ProcessReport) {
	if r.Skipped {
		fmt.Fprintln(w, "process:  skipped (no cleaned directory)")
		return
	}
	fmt.Fprintf(w, "process:  %s\n", cliui.JoinKV(
		cliui.KV{K: "files", V: fmt.Sprint(r.Files)},
		cliui.KV{K: "processed", V: fmt.Sprint(r.Processed)},
		cliui.KV{K: "existing", V: fmt.Sprint(r.Existing)},
		cliui.KV{K: "rows", V: fmt.Sprint(r.Rows)},
		cliui.KV{K: "malformed", V: fmt.Sprint(r.Malformed)},
		cliui.KV{K: "unreadable", V: fmt.Sprint(r.Broken)},
	))
}

func printRun(w io.Writer, c cliui.Colorizer, r pipeline.ClusterReport) {
	m := r.Meta
	fmt.Fprintf(w, "Run:       %s (%s)\n", r.RunID, c.Status(m.Status))
	fmt.Fprintf(w, "Command:   %s  mode=%s\n", m.Command, m.Mode)
	fmt.Fprintf(w, "Rows:      %d", m.FeatureRows)
	if s := m.Sampling; s != nil {
		fmt.Fprintf(w, "  sampled=%d  shortfall=%d", s.Sampled, s.Shortfall)
	}
	fmt.Fprintln(w)
	if m.Command == "cluster" {
		scaler := "reused"
		if m.ScalerFitted {
			scaler = "fitted"
		}
		fmt.Fprintf(w, "Scaler:    %s\n", c.Transition(scaler))
	}
	fmt.Fprintf(w, "Output:    %s\n\n", r.RunDir)

	tbl := cliui.NewTable(
		cliui.Column{Name: "view", MaxWidth: 12},
		cliui.Column{Name: "algorithm", MaxWidth: 9},
		cliui.Column{Name: "model", MaxWidth: 9},
		cliui.Column{Name: "clusters", MaxWidth: 8, AlignRight: true},
		cliui.Column{Name: "noise", MaxWidth: 8, AlignRight: true},
		cliui.Column{Name: "largest", MaxWidth: 8, AlignRight: true},
		cliui.Column{Name: "id", MaxWidth: 8},
	)
	for _, v := range r.Views {
		largest := "-"
		if len(v.Summary.Clusters) > 0 {
			largest = cliui.Percent(v.Summary.Clusters[0].Size, v.Summary.Total)
		}
		tbl.Add(
			v.View,
			string(v.Algorithm),
			c.Transition(string(v.Transition)),
			fmt.Sprint(len(v.Summary.Clusters)),
			fmt.Sprint(v.Summary.Noise),
			largest,
			shortID(v.ModelID),
		)
	}
	tbl.Render(w)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}
