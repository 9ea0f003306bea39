// Package logging assembles structured slog loggers and formatting helpers used
// across memsweep services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes typed attribute helpers so the scheduler, coordinator
// and capability code tag log lines with pass IDs, triggers and components in
// the same shape. The package also provides a no-op logger for tests and
// wiring code that cannot fail.
package logging
