package main

import (
	"strings"
	"testing"
)

func TestDisplayLabel(t *testing.T) {
	cases := map[string]string{
		"needs_revision": "Needs Revision",
		"half_open":      "Half Open",
		"completed":      "Completed",
		"":               "-",
	}
	for input, want := range cases {
		if got := displayLabel(input); got != want {
			t.Errorf("displayLabel(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate preserved short string badly: %q", got)
	}
	got := truncate("a-very-long-identifier", 10)
	if len(got) != 10 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate to 10 = %q", got)
	}
}

func TestRenderStatusLine(t *testing.T) {
	line := renderStatusLine("Running", statusOK, "yes", false)
	if !strings.Contains(line, "Running:") || !strings.Contains(line, "[OK] yes") {
		t.Fatalf("unexpected status line: %q", line)
	}
	colored := renderStatusLine("Running", statusError, "no", true)
	if !strings.HasPrefix(colored, ansiRed) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected colored line, got %q", colored)
	}
}

func TestRenderTableAlignsColumns(t *testing.T) {
	out := renderTable(
		[]string{"Name", "Count"},
		[][]string{{"alpha", "3"}, {"beta", "12"}},
		[]columnAlignment{alignLeft, alignRight},
	)
	if !strings.Contains(out, "alpha") || !strings.Contains(out, "12") {
		t.Fatalf("table missing rows: %q", out)
	}
}
