package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/melonattacker/honeycluster/internal/cliui"
	"github.com/melonattacker/honeycluster/internal/workspace"
)

type runRow struct {
	RunID      string `json:"run_id"`
	StartTS    int64  `json:"start_ts"`
	EndTS      int64  `json:"end_ts"`
	Command    string `json:"command"`
	Mode       string `json:"mode"`
	Status     string `json:"status"`
	Rows       int    `json:"feature_rows"`
	Sampled    int    `json:"sampled"`
	Views      int    `json:"views"`
	Error      string `json:"error,omitempty"`
	Unreadable bool   `json:"unreadable,omitempty"`
}

func toRunRow(m workspace.Meta) runRow {
	r := runRow{
		RunID:   m.RunID,
		StartTS: m.StartTS,
		EndTS:   m.EndTS,
		Command: m.Command,
		Mode:    m.Mode,
		Status:  m.Status,
		Rows:    m.FeatureRows,
		Views:   len(m.Views),
		Error:   m.Error,
	}
	if m.Sampling != nil {
		r.Sampled = m.Sampling.Sampled
	}
	if m.Status == "" {
		r.Unreadable = true
	}
	return r
}

func newRunsCommand(o *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List saved runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := o.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			metas, err := e.ws.ListRuns()
			if err != nil {
				return err
			}
			rows := make([]runRow, 0, len(metas))
			for _, m := range metas {
				rows = append(rows, toRunRow(m))
			}
			if asJSON {
				return writeJSON(e.out, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(e.out, "(no runs)")
				return nil
			}

			tbl := cliui.NewTable(
				cliui.Column{Name: "run", MaxWidth: 40},
				cliui.Column{Name: "start", MaxWidth: 20},
				cliui.Column{Name: "took", MaxWidth: 8, AlignRight: true},
				cliui.Column{Name: "command", MaxWidth: 8},
				cliui.Column{Name: "mode", MaxWidth: 7},
				cliui.Column{Name: "status", MaxWidth: 10},
				cliui.Column{Name: "rows", MaxWidth: 10, AlignRight: true},
				cliui.Column{Name: "sampled", MaxWidth: 10, AlignRight: true},
				cliui.Column{Name: "views", MaxWidth: 5, AlignRight: true},
			)
			for _, r := range rows {
				status := r.Status
				if r.Unreadable {
					status = "unreadable"
				}
				tbl.Add(
					r.RunID,
					cliui.FormatTime(r.StartTS),
					cliui.FormatDuration(r.StartTS, r.EndTS),
					orDash(r.Command),
					orDash(r.Mode),
					e.color.Status(status),
					fmt.Sprint(r.Rows),
					fmt.Sprint(r.Sampled),
					fmt.Sprint(r.Views),
				)
			}
			tbl.Render(e.out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
