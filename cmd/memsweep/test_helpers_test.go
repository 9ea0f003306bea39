package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"memsweep/internal/config"
	"memsweep/internal/daemon"
	"memsweep/internal/instance"
	"memsweep/internal/ipc"
	"memsweep/internal/logging"
	"memsweep/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t,
		testsupport.WithFakeProc(1000, 400),
		testsupport.WithActions(config.ActionFlushSystemWorkingSet),
	)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	logger := logging.NewNop()
	d, err := daemon.New(cfg, logger, daemon.Options{
		Transport: instance.NewMemoryHub().Transport(),
		Clock:     testsupport.NewFakeClock(time.Now()),
		Store:     testsupport.MustOpenHistory(t, cfg),
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := cfg.ControlSocketPath()
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
state_dir = %q
runtime_dir = %q

[scheduler]
auto_actions = [%q]
manual_actions = [%q]

[reclaim]
proc_root = %q
cgroup_root = %q
temp_dirs = [%q]
trash_dir = %q

[logging]
retention_days = 0
`,
		cfg.Paths.StateDir,
		cfg.Paths.RuntimeDir,
		config.ActionFlushSystemWorkingSet,
		config.ActionFlushSystemWorkingSet,
		cfg.Reclaim.ProcRoot,
		cfg.Reclaim.CgroupRoot,
		cfg.Reclaim.TempDirs[0],
		cfg.Reclaim.TrashDir,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
