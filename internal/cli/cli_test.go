package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"

	"github.com/melonattacker/honeycluster/internal/aggregate"
	"github.com/melonattacker/honeycluster/internal/model"
	"github.com/melonattacker/honeycluster/internal/pipeline"
	"github.com/melonattacker/honeycluster/internal/storage"
	"github.com/melonattacker/honeycluster/internal/workspace"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func TestDecideReady_OK(t *testing.T) {
	st := pipeline.Status{OriginalFiles: 2, CleanedFiles: 2, ProcessedSources: 2, FeatureRows: 10}
	ready, reasons := decideReady(st, statusRequired{})
	if !ready {
		t.Fatalf("expected ready=true, got false reasons=%v", reasons)
	}
	if len(reasons) != 0 {
		t.Fatalf("expected no reasons, got %v", reasons)
	}
}

func TestDecideReady_Pending(t *testing.T) {
	st := pipeline.Status{OriginalFiles: 3, PendingClean: 1, CleanedFiles: 2, PendingProcess: 2}
	ready, reasons := decideReady(st, statusRequired{})
	if ready {
		t.Fatalf("expected ready=false")
	}
	for _, want := range []string{"uncleaned_original_logs", "unprocessed_cleaned_logs", "empty_feature_table"} {
		if !contains(reasons, want) {
			t.Fatalf("expected %s in reasons, got %v", want, reasons)
		}
	}
	if contains(reasons, "no_input_logs") {
		t.Fatalf("unexpected no_input_logs: %v", reasons)
	}
}

func TestDecideReady_ModelsRequirement(t *testing.T) {
	st := pipeline.Status{
		OriginalFiles: 1, CleanedFiles: 1, ProcessedSources: 1, FeatureRows: 5,
		Scaler: true,
		Models: map[string]bool{"global": true, "temporal": false},
	}
	ready, reasons := decideReady(st, statusRequired{Models: true})
	if ready {
		t.Fatalf("expected ready=false")
	}
	if len(reasons) != 1 || reasons[0] != "model_missing:temporal" {
		t.Fatalf("expected model_missing:temporal only, got %v", reasons)
	}

	ready, reasons = decideReady(st, statusRequired{})
	if !ready {
		t.Fatalf("expected ready=true when models not required, got reasons=%v", reasons)
	}
}

func TestStatusEmptyWorkspace(t *testing.T) {
	home := filepath.Join(t.TempDir(), "hc")
	out, err := execute(t, "--home", home, "--color", "never", "status")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Ready:         NO") || !strings.Contains(out, "no_input_logs") {
		t.Fatalf("unexpected status output:\n%s", out)
	}

	out, err = execute(t, "--home", home, "status", "--json", "--models")
	if err != nil {
		t.Fatal(err)
	}
	var got statusJSON
	if err := jsoniter.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if got.Ready || got.Home != home || !got.Required.Models || !contains(got.Reasons, "scaler_missing") {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestRunsJSON(t *testing.T) {
	home := filepath.Join(t.TempDir(), "hc")
	ws, err := workspace.Open(home)
	if err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "--home", home, "runs")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "(no runs)" {
		t.Fatalf("got %q", out)
	}

	m := workspace.Meta{RunID: "20260101-000000-cluster", StartTS: 1, EndTS: 2, Command: "cluster", Mode: "reuse", Status: workspace.StatusOK, FeatureRows: 7}
	if err := workspace.WriteMeta(ws.RunDir(m.RunID), m); err != nil {
		t.Fatal(err)
	}
	out, err = execute(t, "--home", home, "runs", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var rows []runRow
	if err := jsoniter.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].RunID != m.RunID || rows[0].Rows != 7 || rows[0].Unreadable {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestSummarize(t *testing.T) {
	home := filepath.Join(t.TempDir(), "hc")
	ws, err := workspace.Open(home)
	if err != nil {
		t.Fatal(err)
	}
	runID := "20260101-000000-cluster"
	if err := workspace.WriteMeta(ws.RunDir(runID), workspace.Meta{RunID: runID, Command: "cluster", Status: workspace.StatusOK}); err != nil {
		t.Fatal(err)
	}
	db, err := storage.OpenSQLite(ws.FeatureDB())
	if err != nil {
		t.Fatal(err)
	}
	sum, err := aggregate.Summarize(
		[]string{"error_rate", "tool_signatures"},
		[][]float64{{0.1, 0}, {0.2, 0}, {0.9, 1}},
		[]int{0, 0, 1},
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SaveSummary(context.Background(), runID, "behavioral", sum); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--home", home, "summarize", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var got summarizeOut
	if err := jsoniter.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != runID || len(got.Views) != 1 || got.Views[0].Summary.Clusters[0].Size != 2 {
		t.Fatalf("unexpected summary: %+v", got)
	}

	out, err = execute(t, "--home", home, "summarize", runID, "--stat", "max")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "== behavioral") || !strings.Contains(out, "66.7%") {
		t.Fatalf("unexpected text output:\n%s", out)
	}

	if _, err := execute(t, "--home", home, "summarize", "--view", "temporal"); err == nil {
		t.Fatalf("expected error for unknown view")
	}
	if _, err := execute(t, "--home", home, "summarize", "--stat", "mode"); err == nil {
		t.Fatalf("expected error for bad --stat")
	}
}

func TestClusterEmptyWorkspace(t *testing.T) {
	home := filepath.Join(t.TempDir(), "hc")
	_, err := execute(t, "--home", home, "cluster")
	if !errors.Is(err, model.ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset, got %v", err)
	}
}

func TestInvalidGlobalFlags(t *testing.T) {
	home := filepath.Join(t.TempDir(), "hc")
	if _, err := execute(t, "--home", home, "--color", "sometimes", "runs"); err == nil {
		t.Fatalf("expected error for bad --color")
	}
	if _, err := execute(t, "--home", home, "--log-level", "loud", "runs"); err == nil {
		t.Fatalf("expected error for bad --log-level")
	}
	if _, err := execute(t, "--home", home, "--config", filepath.Join(home, "missing.yaml"), "runs"); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}
