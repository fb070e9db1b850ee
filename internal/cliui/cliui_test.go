package cliui

import (
	"strings"
	"testing"
	"time"
)

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 5); got != "ab..." {
		t.Fatalf("truncate: got %q", got)
	}
	if got := Truncate("abc", 5); got != "abc" {
		t.Fatalf("no truncate: got %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	start := int64(1_000_000_000)
	if got := FormatDuration(start, start+2_500_000_000); got != "2.5s" {
		t.Fatalf("short: got %q", got)
	}
	if got := FormatDuration(start, start+int64(90*time.Second)); got != "1m30s" {
		t.Fatalf("long: got %q", got)
	}
	if got := FormatDuration(start, 0); got != "-" {
		t.Fatalf("open: got %q", got)
	}
	if got := FormatTime(time.Date(2019, 5, 18, 3, 4, 5, 0, time.UTC).UnixNano()); got != "2019-05-18 03:04:05Z" {
		t.Fatalf("time: got %q", got)
	}
}

func TestFloatAndPercent(t *testing.T) {
	cases := map[float64]string{0.5: "0.5", 1: "1", -0.00001: "0", 0.12346: "0.1235"}
	for in, want := range cases {
		if got := Float(in, 4); got != want {
			t.Fatalf("Float(%v)=%q want %q", in, got, want)
		}
	}
	if got := Percent(1, 3); got != "33.3%" {
		t.Fatalf("percent: got %q", got)
	}
	if got := Percent(1, 0); got != "-" {
		t.Fatalf("percent of zero: got %q", got)
	}
}

func TestColorizer(t *testing.T) {
	off := Colorizer{}
	if off.Cluster(-1) != "-1" || off.Transition("fitted") != "fitted" {
		t.Fatalf("disabled colorizer must not decorate")
	}
	on := Colorizer{Enabled: true}
	if got := stripANSI(on.Cluster(2)); got != "2" {
		t.Fatalf("cluster: got %q", got)
	}
	if on.Status("failed") == "failed" {
		t.Fatalf("expected decorated status")
	}
	if _, err := ParseColorMode("sometimes"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRenderTable(t *testing.T) {
	tbl := NewTable(Column{Name: "a", MaxWidth: 3}, Column{Name: "b", MaxWidth: 5})
	tbl.Add("1", "hello world")
	out := tbl.String()
	if !strings.Contains(out, "a") || !strings.Contains(out, "he...") {
		t.Fatalf("unexpected table output: %q", out)
	}
}

func TestRenderTable_ANSIWidth(t *testing.T) {
	colored := Colorizer{Enabled: true}.Transition("reused")
	out := SprintTable(
		[]Column{
			{Name: "transition", MaxWidth: 10},
			{Name: "rows", MaxWidth: 6},
		},
		[][]string{
			{colored, "123"},
		},
	)
	plain := stripANSI(out)
	if strings.Contains(plain, "re...") {
		t.Fatalf("ansi cell should not be truncated by hidden escape bytes: %q", plain)
	}
	if !strings.Contains(plain, "reused") {
		t.Fatalf("expected plain output to include reused: %q", plain)
	}
}
