package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"memsweep/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// State, runtime, procfs, cgroup, temp and trash roots all live under one
// temp dir so nothing touches the host.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.RuntimeDir = filepath.Join(base, "run")
	cfgVal.Reclaim.ProcRoot = filepath.Join(base, "proc")
	cfgVal.Reclaim.CgroupRoot = filepath.Join(base, "cgroup")
	cfgVal.Reclaim.TempDirs = []string{filepath.Join(base, "tmp")}
	cfgVal.Reclaim.TrashDir = filepath.Join(base, "Trash")
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithInterval sets the periodic cleaning interval.
func WithInterval(minutes int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.IntervalMinutes = minutes
	}
}

// WithThreshold enables high usage cleaning at percent.
func WithThreshold(percent int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.HighUsageEnabled = true
		b.cfg.Scheduler.ThresholdPercent = percent
	}
}

// WithActions overrides both the automatic and manual action lists.
func WithActions(actions ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.AutoActions = append([]string(nil), actions...)
		b.cfg.Scheduler.ManualActions = append([]string(nil), actions...)
	}
}

// WithFakeProc writes a meminfo file and the procfs/cgroup control files the
// Linux capabilities write to.
func WithFakeProc(totalKB, availableKB uint64) ConfigOption {
	return func(b *configBuilder) {
		WriteMeminfo(b.t, b.cfg.Reclaim.ProcRoot, totalKB, availableKB)
		proc := b.cfg.Reclaim.ProcRoot
		cg := filepath.Join(b.cfg.Reclaim.CgroupRoot, "user.slice")
		files := map[string]string{
			filepath.Join(proc, "self", "cgroup"):             "0::/user.slice\n",
			filepath.Join(proc, "sys", "vm", "compact_memory"): "",
			filepath.Join(proc, "sys", "vm", "drop_caches"):    "",
			filepath.Join(cg, "memory.current"):                "0\n",
			filepath.Join(cg, "memory.reclaim"):                "",
		}
		for path, content := range files {
			writeText(b.t, path, content)
		}
	}
}

// WriteMeminfo writes a minimal /proc/meminfo under procRoot.
func WriteMeminfo(t testing.TB, procRoot string, totalKB, availableKB uint64) {
	t.Helper()
	content := fmt.Sprintf("MemTotal: %d kB\nMemAvailable: %d kB\n", totalKB, availableKB)
	writeText(t, filepath.Join(procRoot, "meminfo"), content)
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

func writeText(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WithCleanOnStartup enables the startup pass.
func WithCleanOnStartup() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.CleanOnStartup = true
	}
}
