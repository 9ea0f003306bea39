// Package daemonrun hosts the long-running memsweep process: logging setup,
// leadership resolution, the control socket, and signal handling.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"memsweep/internal/config"
	"memsweep/internal/daemon"
	"memsweep/internal/history"
	"memsweep/internal/instance"
	"memsweep/internal/ipc"
	"memsweep/internal/logging"
	"memsweep/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Stdout receives user-facing messages such as the follower notice.
	Stdout io.Writer
	// ConfigPath is the file policy changes are written back to.
	ConfigPath string
}

// Run starts the memsweep daemon runtime loop. When another instance already
// owns the session it signals that instance and returns nil.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.LogDir(), fmt.Sprintf("memsweep-%s.log", runID))
	baseLogger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With(logging.String("run_id", uuid.NewString()))

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg)
		if err != nil {
			logging.WarnWithContext(logger, "pass history unavailable", "history_open_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "passes will not be recorded"),
				logging.String(logging.FieldErrorHint, "check paths.state_dir permissions or set history.enabled = false"),
			)
			store = nil
		} else {
			defer store.Close()
		}
	}

	d, err := daemon.New(cfg, logger, daemon.Options{Store: store, ConfigPath: opts.ConfigPath})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		if errors.Is(err, instance.ErrNotLeader) {
			_ = os.Remove(logPath)
			logger.Info("memsweep already running; signalled the active instance",
				logging.String(logging.FieldRole, instance.RoleFollower.String()),
				logging.String(logging.FieldEventType, "follower_exit"))
			if opts.Stdout != nil {
				fmt.Fprintln(opts.Stdout, "memsweep is already running; asked it to come to the foreground")
			}
			return nil
		}
		return fmt.Errorf("start daemon: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.LogDir(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update memsweep.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.LogDir(), Pattern: "memsweep-*.log", Exclude: []string{logPath}},
	)
	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ipcServer, err := ipc.NewServer(signalCtx, cfg.ControlSocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	logRuntimeSnapshot(logger, cfg, store)
	logPreflight(logger, cfg)

	select {
	case <-signalCtx.Done():
	case <-d.Done():
	}
	logger.Info("memsweep daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// PIDPath returns the pid file written by a running leader.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.RuntimeDir, "memsweep.pid")
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "memsweep.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logRuntimeSnapshot(logger *slog.Logger, cfg *config.Config, store *history.Store) {
	historyPath := ""
	if store != nil {
		historyPath = store.Path()
	}
	logger.Info("runtime snapshot",
		logging.String(logging.FieldEventType, "runtime_snapshot"),
		logging.Int("interval_minutes", cfg.Scheduler.IntervalMinutes),
		logging.Bool("high_usage_enabled", cfg.Scheduler.HighUsageEnabled),
		logging.Int("threshold_percent", cfg.Scheduler.ThresholdPercent),
		logging.Int("cooldown_minutes", cfg.Scheduler.CooldownMinutes),
		logging.Bool("notifications_configured", cfg.Notifications.NtfyTopic != ""),
		logging.String("control_socket", cfg.ControlSocketPath()),
		logging.String("history_path", historyPath),
	)
}

func logPreflight(logger *slog.Logger, cfg *config.Config) {
	for _, check := range preflight.Failed(preflight.RunAll(cfg)) {
		if check.Optional && check.Name == "Notifications" {
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldImpact, "passes will record this capability as failed"),
			logging.String(logging.FieldErrorHint, "run memsweep with the required privileges or remove the action from scheduler.*_actions"),
		)
	}
}
