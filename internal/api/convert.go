package api

import (
	"time"

	"memsweep/internal/daemon"
	"memsweep/internal/history"
	"memsweep/internal/scheduler"
)

// FromOutcome converts a scheduler outcome to its API representation.
func FromOutcome(o scheduler.Outcome) Pass {
	pass := Pass{
		ID:          o.ID,
		Trigger:     string(o.Trigger),
		StartedAt:   formatTime(o.StartedAt),
		DurationMS:  o.Duration.Milliseconds(),
		BytesBefore: o.BytesBefore,
		BytesAfter:  o.BytesAfter,
		FreedBytes:  o.FreedBytes,
		Actions:     append([]string{}, o.Actions...),
		SampleError: o.SampleError,
	}
	for _, f := range o.Failures {
		pass.Failures = append(pass.Failures, Failure{Capability: f.Capability, Error: f.Error})
	}
	return pass
}

// FromOutcomes converts a slice of outcomes, preserving order.
func FromOutcomes(outcomes []scheduler.Outcome) []Pass {
	passes := make([]Pass, 0, len(outcomes))
	for _, o := range outcomes {
		passes = append(passes, FromOutcome(o))
	}
	return passes
}

// FromPolicy converts a scheduler policy.
func FromPolicy(p scheduler.Policy) Policy {
	return Policy{
		IntervalMinutes:  p.IntervalMinutes,
		HighUsageEnabled: p.HighUsageEnabled,
		ThresholdPercent: int(p.ThresholdPercent),
		CooldownMinutes:  int(p.Cooldown / time.Minute),
		AutoActions:      append([]string{}, p.AutoActions...),
		ManualActions:    append([]string{}, p.ManualActions...),
	}
}

// FromTotals converts history totals.
func FromTotals(t history.Totals) HistoryTotals {
	return HistoryTotals{
		Passes:     t.Passes,
		FreedBytes: t.FreedBytes,
		Failures:   t.Failures,
		Since:      formatTime(t.Since),
	}
}

// FromDaemonStatus converts daemon runtime status.
func FromDaemonStatus(s daemon.Status) DaemonStatus {
	dto := DaemonStatus{
		Running:   s.Running,
		PID:       s.PID,
		Role:      s.Role,
		Locked:    s.Locked,
		StartedAt: formatTime(s.StartedAt),
		Memory: MemoryStatus{
			TotalBytes:     s.Memory.TotalBytes,
			AvailableBytes: s.Memory.AvailableBytes,
			UsedBytes:      s.Memory.UsedBytes(),
			LoadPercent:    int(s.Memory.LoadPercent),
			SampledAt:      formatTime(s.Memory.TakenAt),
			Error:          s.MemoryError,
		},
		Scheduler: SchedulerStatus{
			Policy:             FromPolicy(s.Scheduler.Policy),
			IntervalMinutes:    s.Scheduler.IntervalMinutes,
			PassInProgress:     s.Scheduler.PassInProgress,
			LastThresholdClean: formatTime(s.Scheduler.LastThresholdClean),
		},
		Capabilities:       append([]string{}, s.Capabilities...),
		ForegroundRequests: s.ForegroundRequests,
		LockPath:           s.LockPath,
		HistoryPath:        s.HistoryPath,
	}
	if s.Scheduler.LastOutcome != nil {
		last := FromOutcome(*s.Scheduler.LastOutcome)
		dto.Scheduler.LastPass = &last
	}
	if s.History != nil {
		totals := FromTotals(*s.History)
		dto.History = &totals
	}
	return dto
}

// ParseTime parses a timestamp produced by this package. Empty or malformed
// values yield the zero time.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
