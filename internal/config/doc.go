// Package config loads, normalizes, and validates memsweep configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MEMSWEEP_NTFY_TOPIC. The Config type centralizes every knob the daemon and
// CLI need: where state and the session runtime files live, the clean
// scheduler policy, the reclaim capability tuning, and notification targets.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical action names, and clear validation errors.
package config
