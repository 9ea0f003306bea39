package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains state and session runtime directories.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	RuntimeDir string `toml:"runtime_dir"`
}

// Scheduler contains the clean trigger policy.
type Scheduler struct {
	IntervalMinutes  int      `toml:"interval_minutes"`
	HighUsageEnabled bool     `toml:"high_usage_enabled"`
	ThresholdPercent int      `toml:"threshold_percent"`
	CooldownMinutes  int      `toml:"cooldown_minutes"`
	SampleIntervalMS int      `toml:"sample_interval_ms"`
	CleanOnStartup   bool     `toml:"clean_on_startup"`
	AutoActions      []string `toml:"auto_actions"`
	ManualActions    []string `toml:"manual_actions"`
}

// Reclaim tunes the Linux implementations of the reclaim capabilities.
type Reclaim struct {
	ProcRoot          string   `toml:"proc_root"`
	CgroupRoot        string   `toml:"cgroup_root"`
	TempDirs          []string `toml:"temp_dirs"`
	TempMinAgeMinutes int      `toml:"temp_min_age_minutes"`
	TrashDir          string   `toml:"trash_dir"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic       string `toml:"ntfy_topic"`
	RequestTimeout  int    `toml:"request_timeout"`
	Clean           bool   `toml:"clean"`
	Foreground      bool   `toml:"foreground"`
	NotifyZeroFreed bool   `toml:"notify_zero_freed"`
}

// History contains configuration for the pass history database.
type History struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for memsweep.
//
// Configuration sections by subsystem:
//   - Paths: persistent state and per-session runtime directories
//   - Scheduler: interval, high usage threshold, cooldown and action lists
//   - Reclaim: procfs/cgroup roots and disk cleanup targets
//   - Notifications: ntfy push notification settings
//   - History: pass history retention
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Reclaim       Reclaim       `toml:"reclaim"`
	Notifications Notifications `toml:"notifications"`
	History       History       `toml:"history"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/memsweep/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("memsweep.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.LogDir(), c.Paths.RuntimeDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogDir returns the directory holding daemon log files.
func (c *Config) LogDir() string {
	return filepath.Join(c.Paths.StateDir, "logs")
}

// HistoryPath returns the pass history database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath returns the session-wide exclusive lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.RuntimeDir, "memsweep.lock")
}

// SignalSocketPath returns the follower to leader signaling endpoint.
func (c *Config) SignalSocketPath() string {
	return filepath.Join(c.Paths.RuntimeDir, "signal.sock")
}

// ControlSocketPath returns the JSON-RPC control endpoint.
func (c *Config) ControlSocketPath() string {
	return filepath.Join(c.Paths.RuntimeDir, "control.sock")
}

// Cooldown returns the threshold cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Scheduler.CooldownMinutes) * time.Minute
}

// SampleInterval returns the memory sampling cadence.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Scheduler.SampleIntervalMS) * time.Millisecond
}

// TempMinAge returns the minimum age before a temp file is considered abandoned.
func (c *Config) TempMinAge() time.Duration {
	return time.Duration(c.Reclaim.TempMinAgeMinutes) * time.Minute
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// defaultRuntimeDir prefers the session-scoped XDG runtime directory so the
// single-instance lock is per login session rather than per user.
func defaultRuntimeDir() string {
	if base, ok := os.LookupEnv("XDG_RUNTIME_DIR"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "memsweep")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("memsweep-%d", os.Getuid()))
}

// SampleConfig returns the annotated sample configuration.
func SampleConfig() string { return sampleConfig }

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
