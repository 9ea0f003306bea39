// Package api defines wire-format types and converters for the control
// socket. It translates scheduler outcomes and daemon status into
// transport-friendly DTOs so the CLI renders them without coupling to
// internal types.
//
// # Key Types
//
// Pass: one cleaning pass with before/after used bytes, the freed delta, the
// actions it ran and any failures.
//
// DaemonStatus: role, lock, live memory snapshot, scheduler policy and state,
// capabilities, and lifetime history totals.
//
// # Converters
//
// FromOutcome: scheduler.Outcome -> Pass.
//
// FromDaemonStatus: daemon.Status -> DaemonStatus.
//
// FromPolicy: scheduler.Policy -> Policy.
//
// # Design Notes
//
// Timestamps use RFC3339 with milliseconds and durations are milliseconds.
// Byte counts stay raw integers; formatting is the renderer's job.
package api
