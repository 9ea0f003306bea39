// Package notifications delivers cleaning results and foreground requests via
// ntfy.
//
// NewService publishes to the topic configured in config.toml and degrades to
// a no-op when none is set. Clean notifications are suppressed when a pass
// freed nothing unless notify_zero_freed is enabled. Reporter adapts a Service
// to the scheduler's outcome sink.
package notifications
