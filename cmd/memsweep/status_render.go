package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"memsweep/internal/api"
	"memsweep/internal/config"
	"memsweep/internal/daemon"
	"memsweep/internal/ipc"
	"memsweep/internal/memory"
	"memsweep/internal/notifications"
	"memsweep/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

// buildStatusSnapshot asks the daemon for status and falls back to a local
// memory sample and the configured policy when nothing is listening.
func buildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) api.DaemonStatus {
	if client, err := ipc.Dial(socketPath); err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil {
			return resp.Status
		}
	}

	status := api.DaemonStatus{
		Role:     "stopped",
		LockPath: cfg.LockPath(),
		Scheduler: api.SchedulerStatus{
			Policy: api.FromPolicy(daemon.PolicyFromConfig(cfg)),
		},
	}
	status.Scheduler.IntervalMinutes = status.Scheduler.Policy.IntervalMinutes
	sampleCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	snap, err := memory.NewProcSampler(cfg.Reclaim.ProcRoot).Sample(sampleCtx)
	if err != nil {
		status.Memory.Error = err.Error()
	} else {
		status.Memory = api.MemoryStatus{
			TotalBytes:     snap.TotalBytes,
			AvailableBytes: snap.AvailableBytes,
			UsedBytes:      snap.UsedBytes(),
			LoadPercent:    int(snap.LoadPercent),
		}
	}
	return status
}

func renderStatus(status api.DaemonStatus, cfg *config.Config, colorize bool) []string {
	lines := renderSectionHeader("Daemon", colorize)
	if status.Running {
		lines = append(lines, renderStatusLine("Memsweep", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
		lockDetail := "Held"
		lockKind := statusOK
		if !status.Locked {
			lockDetail = "Not held (lock unavailable, running without single-instance guarantee)"
			lockKind = statusWarn
		}
		lines = append(lines, renderStatusLine("Session lock", lockKind, lockDetail, colorize))
		if status.ForegroundRequests > 0 {
			lines = append(lines, renderStatusLine("Relaunches", statusInfo, fmt.Sprintf("%d", status.ForegroundRequests), colorize))
		}
	} else {
		lines = append(lines, renderStatusLine("Memsweep", statusWarn, "Not running (run `memsweep start`)", colorize))
	}
	if cfg != nil && strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, renderStatusLine("Notifications", statusOK, "Configured", colorize))
	} else {
		lines = append(lines, renderStatusLine("Notifications", statusInfo, "Not configured", colorize))
	}
	lines = append(lines, "")

	lines = append(lines, renderSectionHeader("Memory", colorize)...)
	lines = append(lines, memoryLines(status.Memory, status.Scheduler.Policy, colorize)...)
	lines = append(lines, "")

	lines = append(lines, renderSectionHeader("Scheduler", colorize)...)
	lines = append(lines, schedulerLines(status.Scheduler, colorize)...)

	if cfg != nil {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Readiness", colorize)...)
		lines = append(lines, readinessLines(preflight.RunAll(cfg), colorize)...)
	}

	if status.History != nil && status.History.Passes > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("History", colorize)...)
		lines = append(lines,
			renderStatusLine("Passes", statusInfo, fmt.Sprintf("%d", status.History.Passes), colorize),
			renderStatusLine("Total freed", statusInfo, memory.FormatMegabytes(status.History.FreedBytes), colorize),
		)
		if status.History.Failures > 0 {
			lines = append(lines, renderStatusLine("Failed actions", statusWarn, fmt.Sprintf("%d", status.History.Failures), colorize))
		}
	}
	return lines
}

func memoryLines(mem api.MemoryStatus, policy api.Policy, colorize bool) []string {
	if mem.Error != "" {
		return []string{renderStatusLine("Load", statusError, mem.Error, colorize)}
	}
	kind := statusOK
	if policy.ThresholdPercent > 0 && mem.LoadPercent >= policy.ThresholdPercent {
		kind = statusWarn
	}
	return []string{
		renderStatusLine("Load", kind, fmt.Sprintf("%d%%", mem.LoadPercent), colorize),
		renderStatusLine("Used", statusInfo, memory.FormatBytes(mem.UsedBytes), colorize),
		renderStatusLine("Available", statusInfo, memory.FormatBytes(mem.AvailableBytes), colorize),
		renderStatusLine("Total", statusInfo, memory.FormatBytes(mem.TotalBytes), colorize),
	}
}

func schedulerLines(s api.SchedulerStatus, colorize bool) []string {
	lines := make([]string, 0, 6)
	if s.IntervalMinutes > 0 {
		lines = append(lines, renderStatusLine("Interval", statusOK, fmt.Sprintf("Every %d minutes", s.IntervalMinutes), colorize))
	} else {
		lines = append(lines, renderStatusLine("Interval", statusInfo, "Disabled", colorize))
	}
	if s.Policy.HighUsageEnabled {
		lines = append(lines, renderStatusLine("High usage", statusOK,
			fmt.Sprintf("At %d%% (cooldown %d min)", s.Policy.ThresholdPercent, s.Policy.CooldownMinutes), colorize))
	} else {
		lines = append(lines, renderStatusLine("High usage", statusInfo, "Disabled", colorize))
	}
	if s.PassInProgress {
		lines = append(lines, renderStatusLine("Pass", statusInfo, "In progress", colorize))
	}
	if s.LastPass != nil {
		detail := notifications.Summary(s.LastPass.FreedBytes)
		if started := api.ParseTime(s.LastPass.StartedAt); !started.IsZero() {
			detail = fmt.Sprintf("%s (%s, %s)", detail, s.LastPass.Trigger, started.Local().Format("15:04:05"))
		}
		kind := statusOK
		if len(s.LastPass.Failures) > 0 {
			kind = statusWarn
			detail = fmt.Sprintf("%s, %d of %d actions failed", detail, len(s.LastPass.Failures), len(s.LastPass.Actions))
		}
		lines = append(lines, renderStatusLine("Last pass", kind, detail, colorize))
	}
	return lines
}

func readinessLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		if r.Name == "Notifications" {
			continue
		}
		kind := statusOK
		switch {
		case r.Passed:
		case r.Optional:
			kind = statusWarn
		default:
			kind = statusError
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
