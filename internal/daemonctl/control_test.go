package daemonctl_test

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"memsweep/internal/daemonctl"
)

func TestStopWithoutDaemon(t *testing.T) {
	dir := t.TempDir()
	_, err := daemonctl.StopAndTerminate(filepath.Join(dir, "control.sock"), filepath.Join(dir, "memsweep.pid"), time.Second)
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestWaitForShutdownReturnsWhenSocketMissing(t *testing.T) {
	if err := daemonctl.WaitForShutdown(filepath.Join(t.TempDir(), "control.sock"), time.Second); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
}

func TestWaitForClientTimesOut(t *testing.T) {
	start := time.Now()
	if _, err := daemonctl.WaitForClient(filepath.Join(t.TempDir(), "control.sock"), 300*time.Millisecond); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("WaitForClient took too long: %s", elapsed)
	}
}

func TestForceKillRefusesCurrentProcess(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "memsweep.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := daemonctl.ForceKillProcess(pidPath, 0); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
	if _, err := daemonctl.ForceKillProcess(filepath.Join(t.TempDir(), "missing.pid"), 0); err == nil {
		t.Fatal("expected error without any pid")
	}
}
