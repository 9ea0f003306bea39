package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// SaveScheduler writes the policy half of the [scheduler] table back to the
// config file at path, creating it when missing. Other tables and scheduler
// keys are carried over as parsed; comments are not preserved.
func SaveScheduler(path string, s Scheduler) error {
	if path == "" {
		return errors.New("save scheduler: no config path")
	}
	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("read config: %w", err)
	}

	table, _ := doc["scheduler"].(map[string]any)
	if table == nil {
		table = map[string]any{}
	}
	table["interval_minutes"] = s.IntervalMinutes
	table["high_usage_enabled"] = s.HighUsageEnabled
	table["threshold_percent"] = s.ThresholdPercent
	table["cooldown_minutes"] = s.CooldownMinutes
	table["auto_actions"] = s.AutoActions
	table["manual_actions"] = s.ManualActions
	doc["scheduler"] = table

	out, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return writeFileAtomic(path, out, 0o644)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
