package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateReclaim(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateScheduler() error {
	s := c.Scheduler
	if s.IntervalMinutes < 0 || s.IntervalMinutes > MaxIntervalMinutes {
		return fmt.Errorf("scheduler.interval_minutes must be between 0 (disabled) and %d", MaxIntervalMinutes)
	}
	if s.ThresholdPercent < 0 || s.ThresholdPercent > 100 {
		return errors.New("scheduler.threshold_percent must be between 0 and 100")
	}
	if s.CooldownMinutes < 0 || s.CooldownMinutes > MaxCooldownMinutes {
		return fmt.Errorf("scheduler.cooldown_minutes must be between 0 and %d", MaxCooldownMinutes)
	}
	if s.SampleIntervalMS < 100 {
		return errors.New("scheduler.sample_interval_ms must be at least 100")
	}
	if len(s.AutoActions) == 0 {
		return errors.New("scheduler.auto_actions must include at least one capability")
	}
	return nil
}

func (c *Config) validateReclaim() error {
	if c.Reclaim.TempMinAgeMinutes < 0 {
		return errors.New("reclaim.temp_min_age_minutes must not be negative")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.History.RetentionDays < 0 {
		return errors.New("history.retention_days must not be negative")
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
