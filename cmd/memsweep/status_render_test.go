package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"memsweep/internal/api"
	"memsweep/internal/preflight"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Memsweep", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Memsweep:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Memsweep", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestMemoryLinesWarnAboveThreshold(t *testing.T) {
	lines := memoryLines(api.MemoryStatus{LoadPercent: 91, TotalBytes: 1 << 30}, api.Policy{ThresholdPercent: 80}, false)
	if !strings.Contains(lines[0], "[WARN] 91%") {
		t.Fatalf("expected warn load line, got %q", lines[0])
	}
	lines = memoryLines(api.MemoryStatus{Error: "memory information unavailable"}, api.Policy{}, false)
	if len(lines) != 1 || !strings.Contains(lines[0], "[ERROR]") {
		t.Fatalf("expected single error line, got %v", lines)
	}
}

func TestSchedulerLinesReportsFailures(t *testing.T) {
	lines := schedulerLines(api.SchedulerStatus{
		IntervalMinutes: 30,
		Policy:          api.Policy{HighUsageEnabled: true, ThresholdPercent: 75, CooldownMinutes: 10},
		LastPass: &api.Pass{
			Trigger:    "interval",
			FreedBytes: 0,
			Actions:    []string{"a", "b"},
			Failures:   []api.Failure{{Capability: "b", Error: "denied"}},
		},
	}, false)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"Every 30 minutes", "At 75% (cooldown 10 min)", "Memory already optimized", "1 of 2 actions failed"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in %q", want, joined)
		}
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestReadinessLinesSeverity(t *testing.T) {
	lines := readinessLines([]preflight.Result{
		{Name: "State directory", Passed: true, Detail: "/state"},
		{Name: "flush-standby-list", Optional: true, Detail: "not writable"},
		{Name: "Runtime directory", Detail: "missing"},
		{Name: "Notifications", Optional: true},
	}, false)
	if len(lines) != 3 {
		t.Fatalf("expected notifications to be skipped, got %v", lines)
	}
	for i, want := range []string{"[OK]", "[WARN]", "[ERROR]"} {
		if !strings.Contains(lines[i], want) {
			t.Fatalf("line %d: expected %s in %q", i, want, lines[i])
		}
	}
}
