package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"memsweep/internal/api"
	"memsweep/internal/config"
)

func TestCLIStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "[OK] 60%")
	requireContains(t, out, "Interval:")

	out, _, err = runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status json: %v (%q)", err, out)
	}
	if !status.Running || status.Role != "leader" || status.Memory.LoadPercent != 60 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestCLIStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(t.TempDir(), "control.sock")

	out, _, err := runCLI(t, []string{"status"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "60%")
}

func TestCLICleanAndHistory(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"clean", "--wait"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("clean --wait: %v", err)
	}
	requireContains(t, out, "(pass ")

	out, _, err = runCLI(t, []string{"history"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "manual")
	requireContains(t, out, "1 passes")

	if _, _, err := runCLI(t, []string{"clean", "--action", "defragment-ram"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unknown capability to fail")
	}
	if _, _, err := runCLI(t, []string{"history", "--limit", "0"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected --limit 0 to fail")
	}
}

func TestCLIHistoryEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"history"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No passes recorded")
}

func TestCLIIntervalAndThreshold(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"interval", "15"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("interval 15: %v", err)
	}
	requireContains(t, out, "Cleaning every 15 minutes")

	out, _, err = runCLI(t, []string{"interval", "--next"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("interval --next: %v", err)
	}
	requireContains(t, out, "Cleaning every 30 minutes")

	out, _, err = runCLI(t, []string{"interval", "0"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("interval 0: %v", err)
	}
	requireContains(t, out, "Periodic cleaning disabled")

	if _, _, err := runCLI(t, []string{"interval"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected interval without arguments to fail")
	}

	out, _, err = runCLI(t, []string{"threshold", "85", "--cooldown", "5"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("threshold: %v", err)
	}
	requireContains(t, out, "Cleaning at 85% memory load (cooldown 5 minutes)")

	policy := env.daemon.Status(t.Context()).Scheduler.Policy
	if !policy.HighUsageEnabled || policy.ThresholdPercent != 85 {
		t.Fatalf("expected daemon policy updated, got %+v", policy)
	}

	out, _, err = runCLI(t, []string{"threshold", "--off"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("threshold --off: %v", err)
	}
	requireContains(t, out, "High usage cleaning disabled")

	if _, _, err := runCLI(t, []string{"threshold", "150"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected out of range threshold to fail")
	}
	for _, args := range [][]string{
		{"interval", "200000000"},
		{"threshold", "--cooldown", "200000000"},
	} {
		if _, _, err := runCLI(t, args, env.socketPath, env.configPath); err == nil {
			t.Fatalf("expected %v to be rejected", args)
		}
	}
	if got := env.daemon.Status(t.Context()).Scheduler.IntervalMinutes; got != 0 {
		t.Fatalf("interval changed by rejected request: %d", got)
	}
}

func TestCLICapabilitiesAndNotify(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"capabilities"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("capabilities: %v", err)
	}
	for _, name := range []string{config.ActionFlushStandbyList, config.ActionEmptyRecycleBin} {
		requireContains(t, out, name)
	}
	if !strings.Contains(out, "yes") {
		t.Fatalf("expected configured actions marked, got %q", out)
	}

	out, _, err = runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Test notification sent")
}

func TestCLIStopWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"stop"}, filepath.Join(t.TempDir(), "control.sock"), env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestCLIDialErrorMentionsStart(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"clean"}, filepath.Join(t.TempDir(), "control.sock"), env.configPath)
	if err == nil || !strings.Contains(err.Error(), "memsweep start") {
		t.Fatalf("expected dial hint, got %v", err)
	}
}

func TestNextInterval(t *testing.T) {
	tests := []struct {
		current int
		want    int
	}{
		{0, 5},
		{5, 10},
		{20, 30},
		{180, 0},
		{500, 0},
	}
	for _, tt := range tests {
		if got := nextInterval(tt.current); got != tt.want {
			t.Fatalf("nextInterval(%d) = %d, want %d", tt.current, got, tt.want)
		}
	}
}
