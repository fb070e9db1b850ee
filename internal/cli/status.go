package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/melonattacker/honeycluster/internal/cliui"
	"github.com/melonattacker/honeycluster/internal/pipeline"
)

type statusRequired struct {
	Models bool `json:"models"`
}

type statusJSON struct {
	pipeline.Status
	Required statusRequired `json:"required"`
	Ready    bool           `json:"ready"`
	Reasons  []string       `json:"reasons"`
}

func newStatusCommand(o *options) *cobra.Command {
	var (
		asJSON bool
		req    statusRequired
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check how far the workspace has progressed",
		Long: `Reports original, cleaned and processed inputs, the feature table, the
saved scaler and models, and the last run.

Ready=YES means cluster can run on fully processed input: every original
dump is cleaned, every cleaned file is processed and the feature table is
not empty. With --models, a saved scaler and a model for every enabled
view are required too, which is what assign needs.`,
		Example: `  honeycluster status
  honeycluster status --models --json`,
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
			st, err := p.Inspect(cmd.Context())
			if err != nil {
				return err
			}
			out := statusJSON{Status: st, Required: req}
			out.Ready, out.Reasons = decideReady(st, req)
			if asJSON {
				return writeJSON(e.out, out)
			}
			writeStatus(e.out, e.color, out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	cmd.Flags().BoolVar(&req.Models, "models", false, "require a saved scaler and models")
	return cmd
}

func decideReady(st pipeline.Status, req statusRequired) (bool, []string) {
	reasons := make([]string, 0, 4)
	if st.OriginalFiles == 0 && st.CleanedFiles == 0 {
		reasons = append(reasons, "no_input_logs")
	}
	if st.PendingClean > 0 {
		reasons = append(reasons, "uncleaned_original_logs")
	}
	if st.PendingProcess > 0 {
		reasons = append(reasons, "unprocessed_cleaned_logs")
	}
	if st.FeatureRows == 0 {
		reasons = append(reasons, "empty_feature_table")
	}
	if req.Models {
		if !st.Scaler {
			reasons = append(reasons, "scaler_missing")
		}
		for _, v := range sortedKeys(st.Models) {
			if !st.Models[v] {
				reasons = append(reasons, "model_missing:"+v)
			}
		}
	}
	return len(reasons) == 0, reasons
}

func writeStatus(w io.Writer, c cliui.Colorizer, s statusJSON) {
	word := func(ok bool) string {
		if ok {
			return "OK"
		}
		return "MISSING"
	}

	fmt.Fprintf(w, "Home:          %s\n", s.Home)
	fmt.Fprintf(w, "Original:      %d files (%d not cleaned)\n", s.OriginalFiles, s.PendingClean)
	fmt.Fprintf(w, "Cleaned:       %d files (%d not processed)\n", s.CleanedFiles, s.PendingProcess)
	fmt.Fprintf(w, "Features:      %d rows from %d sources\n", s.FeatureRows, s.ProcessedSources)
	fmt.Fprintf(w, "Scaler:        %s\n", word(s.Scaler))
	if len(s.Models) > 0 {
		parts := make([]string, 0, len(s.Models))
		for _, v := range sortedKeys(s.Models) {
			parts = append(parts, v+" "+word(s.Models[v]))
		}
		fmt.Fprintf(w, "Models:        %s\n", strings.Join(parts, "  "))
	}
	if r := s.LastRun; r != nil {
		status := r.Status
		if status == "" {
			status = "unreadable"
		}
		fmt.Fprintf(w, "Last run:      %s (%s, %s)\n", r.RunID, orDash(r.Command), c.Status(status))
	} else {
		fmt.Fprintf(w, "Last run:      -\n")
	}
	readyWord := "NO"
	if s.Ready {
		readyWord = "YES"
	}
	fmt.Fprintf(w, "Ready:         %s\n", c.Status(readyWord))
	if len(s.Reasons) > 0 {
		fmt.Fprintf(w, "Reasons:       %s\n", strings.Join(s.Reasons, ", "))
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
