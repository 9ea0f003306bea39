package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeReclaim(); err != nil {
		return err
	}
	c.normalizeScheduler()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.RuntimeDir) == "" {
		c.Paths.RuntimeDir = defaultRuntimeDir()
	}
	if c.Paths.RuntimeDir, err = expandPath(c.Paths.RuntimeDir); err != nil {
		return fmt.Errorf("paths.runtime_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeReclaim() error {
	var err error
	if strings.TrimSpace(c.Reclaim.ProcRoot) == "" {
		c.Reclaim.ProcRoot = defaultProcRoot
	}
	if strings.TrimSpace(c.Reclaim.CgroupRoot) == "" {
		c.Reclaim.CgroupRoot = defaultCgroupRoot
	}
	if strings.TrimSpace(c.Reclaim.TrashDir) == "" {
		c.Reclaim.TrashDir = defaultTrashDir
	}
	if c.Reclaim.TrashDir, err = expandPath(c.Reclaim.TrashDir); err != nil {
		return fmt.Errorf("reclaim.trash_dir: %w", err)
	}
	if len(c.Reclaim.TempDirs) == 0 {
		c.Reclaim.TempDirs = []string{os.TempDir(), "/var/tmp"}
	}
	dirs := make([]string, 0, len(c.Reclaim.TempDirs))
	seen := make(map[string]struct{}, len(c.Reclaim.TempDirs))
	for _, dir := range c.Reclaim.TempDirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		expanded, err := expandPath(strings.TrimSpace(dir))
		if err != nil {
			return fmt.Errorf("reclaim.temp_dirs: %w", err)
		}
		if _, ok := seen[expanded]; ok {
			continue
		}
		seen[expanded] = struct{}{}
		dirs = append(dirs, expanded)
	}
	c.Reclaim.TempDirs = dirs
	return nil
}

func (c *Config) normalizeScheduler() {
	c.Scheduler.AutoActions = normalizeActions(c.Scheduler.AutoActions)
	c.Scheduler.ManualActions = normalizeActions(c.Scheduler.ManualActions)
	if len(c.Scheduler.ManualActions) == 0 {
		c.Scheduler.ManualActions = append([]string(nil), c.Scheduler.AutoActions...)
	}
	if c.Scheduler.SampleIntervalMS == 0 {
		c.Scheduler.SampleIntervalMS = defaultSampleIntervalMS
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("MEMSWEEP_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func normalizeActions(actions []string) []string {
	if len(actions) == 0 {
		return nil
	}
	out := make([]string, 0, len(actions))
	for _, action := range actions {
		name := strings.ToLower(strings.TrimSpace(action))
		name = strings.ReplaceAll(name, "_", "-")
		if name == "" {
			continue
		}
		out = append(out, name)
	}
	return out
}
