package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"memsweep/internal/config"
	"memsweep/internal/history"
	"memsweep/internal/instance"
	"memsweep/internal/logging"
	"memsweep/internal/memory"
	"memsweep/internal/notifications"
	"memsweep/internal/reclaim"
	"memsweep/internal/scheduler"
)

// Options overrides the daemon's collaborators. Zero values select the Linux
// implementations derived from the config.
type Options struct {
	Sampler   memory.Sampler
	Registry  *reclaim.Registry
	Transport instance.Transport
	Clock     scheduler.Clock
	Notifier  notifications.Service
	Store     *history.Store
	// ConfigPath receives policy changes made through Configure. Empty
	// keeps them in memory only.
	ConfigPath string
}

// Status represents daemon runtime information.
type Status struct {
	Running            bool
	PID                int
	Role               string
	Locked             bool
	StartedAt          time.Time
	Memory             memory.Snapshot
	MemoryError        string
	Scheduler          scheduler.Status
	Capabilities       []string
	ForegroundRequests int64
	History            *history.Totals
	LockPath           string
	HistoryPath        string
}

// PolicyUpdate carries scheduler settings to change. Nil fields keep their
// current value.
type PolicyUpdate struct {
	IntervalMinutes  *int
	HighUsageEnabled *bool
	ThresholdPercent *int
	CooldownMinutes  *int
	AutoActions      []string
	ManualActions    []string
}

// Daemon is the leader-side runtime.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	sampler  memory.Sampler
	registry *reclaim.Registry
	clock    scheduler.Clock
	notifier notifications.Service
	store    *history.Store
	cfgPath  string
	coord    *instance.Coordinator
	sched    *scheduler.Scheduler

	running    atomic.Bool
	startedAt  time.Time
	lastSample atomic.Pointer[memory.Snapshot]
	foreground atomic.Int64

	mu       sync.Mutex
	cancel   context.CancelFunc
	loops    sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		sampler:  opts.Sampler,
		registry: opts.Registry,
		clock:    opts.Clock,
		notifier: opts.Notifier,
		store:    opts.Store,
		cfgPath:  opts.ConfigPath,
		done:     make(chan struct{}),
	}
	if d.sampler == nil {
		d.sampler = memory.NewProcSampler(cfg.Reclaim.ProcRoot)
	}
	if d.registry == nil {
		d.registry = reclaim.NewLinuxRegistry(reclaim.OptionsFromConfig(cfg, logger))
	}
	if d.clock == nil {
		d.clock = scheduler.SystemClock()
	}
	if d.notifier == nil {
		d.notifier = notifications.NewService(cfg)
	}
	if unknown := d.registry.Unknown(append(append([]string(nil), cfg.Scheduler.AutoActions...), cfg.Scheduler.ManualActions...)); len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %v", reclaim.ErrUnknownCapability, unknown)
	}

	transport := opts.Transport
	if transport == nil {
		transport = instance.NewFileTransport(cfg.LockPath(), cfg.SignalSocketPath())
	}
	d.coord = instance.New(instance.Options{
		Transport:    transport,
		OnForeground: d.handleForeground,
		Logger:       logger,
	})

	reporters := scheduler.Reporters{notifications.NewReporter(d.notifier, logger)}
	if d.store != nil {
		reporters = append(scheduler.Reporters{history.NewRecorder(d.store, logger)}, reporters...)
	}
	sched, err := scheduler.New(scheduler.Options{
		Sampler:  d.sampler,
		Actions:  d.registry,
		Reporter: reporters,
		Clock:    d.clock,
		Logger:   logger,
		Policy:   PolicyFromConfig(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	d.sched = sched
	return d, nil
}

// PolicyFromConfig maps the [scheduler] section onto a scheduler.Policy.
func PolicyFromConfig(cfg *config.Config) scheduler.Policy {
	s := cfg.Scheduler
	threshold := s.ThresholdPercent
	if threshold < 0 {
		threshold = 0
	}
	return scheduler.Policy{
		IntervalMinutes:  s.IntervalMinutes,
		HighUsageEnabled: s.HighUsageEnabled,
		ThresholdPercent: uint32(threshold),
		Cooldown:         cfg.Cooldown(),
		AutoActions:      append([]string(nil), s.AutoActions...),
		ManualActions:    append([]string(nil), s.ManualActions...),
	}
}

// Start resolves the instance role. A follower has already signalled the
// leader when Start returns instance.ErrNotLeader. A leader starts the
// interval timer, the sampling loop, and the optional startup clean.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if role := d.coord.TryAcquireLeadership(ctx); role != instance.RoleLeader {
		return instance.ErrNotLeader
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	d.startedAt = time.Now()
	d.running.Store(true)

	d.pruneHistory(loopCtx)
	d.sched.Apply(d.sched.Policy())

	d.loops.Add(1)
	go d.sampleLoop(loopCtx)

	if d.cfg.Scheduler.CleanOnStartup {
		if _, err := d.sched.RequestStartupClean(); err != nil {
			d.logger.Info("startup clean skipped", logging.Error(err))
		}
	}

	d.logger.Info("memsweep daemon started",
		logging.String("lock", d.cfg.LockPath()),
		logging.Bool("locked", d.coord.Locked()),
		logging.Strings("capabilities", d.registry.Names()),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Stop halts sampling and scheduling, then releases the session lock.
func (d *Daemon) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		d.coord.Shutdown()
		return
	}
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.loops.Wait()
	d.sched.Close()
	d.coord.Shutdown()
	d.logger.Info("memsweep daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon. The history store is owned by
// the caller.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// RequestShutdown asks the hosting process to exit.
func (d *Daemon) RequestShutdown() {
	d.doneOnce.Do(func() { close(d.done) })
}

// Done is closed once RequestShutdown is called.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Capabilities lists registered reclaim capabilities in order.
func (d *Daemon) Capabilities() []string {
	return d.registry.Names()
}

// Clean starts a manual pass. With wait set it runs the pass on the calling
// goroutine and returns its outcome; otherwise only the pass ID is set.
func (d *Daemon) Clean(ctx context.Context, actions []string, wait bool) (scheduler.Outcome, error) {
	if !d.running.Load() {
		return scheduler.Outcome{}, errors.New("daemon not running")
	}
	if unknown := d.registry.Unknown(actions); len(unknown) > 0 {
		return scheduler.Outcome{}, fmt.Errorf("%w: %v", reclaim.ErrUnknownCapability, unknown)
	}
	if !wait {
		id, err := d.sched.RequestManualClean(actions)
		return scheduler.Outcome{ID: id, Trigger: scheduler.TriggerManual}, err
	}
	if len(actions) == 0 {
		actions = d.sched.Policy().ManualActions
	}
	return d.sched.RunPass(ctx, scheduler.TriggerManual, actions)
}

// Configure applies a scheduler policy change and returns the policy in force.
func (d *Daemon) Configure(update PolicyUpdate) (scheduler.Policy, error) {
	policy := d.sched.Policy()
	if v := update.IntervalMinutes; v != nil {
		if *v < 0 || *v > config.MaxIntervalMinutes {
			return policy, fmt.Errorf("interval_minutes must be between 0 and %d", config.MaxIntervalMinutes)
		}
		policy.IntervalMinutes = *v
	}
	if v := update.HighUsageEnabled; v != nil {
		policy.HighUsageEnabled = *v
	}
	if v := update.ThresholdPercent; v != nil {
		if *v < 0 || *v > 100 {
			return policy, fmt.Errorf("threshold_percent must be between 0 and 100")
		}
		policy.ThresholdPercent = uint32(*v)
	}
	if v := update.CooldownMinutes; v != nil {
		if *v < 0 || *v > config.MaxCooldownMinutes {
			return policy, fmt.Errorf("cooldown_minutes must be between 0 and %d", config.MaxCooldownMinutes)
		}
		policy.Cooldown = time.Duration(*v) * time.Minute
	}
	for _, list := range [][]string{update.AutoActions, update.ManualActions} {
		if unknown := d.registry.Unknown(list); len(unknown) > 0 {
			return policy, fmt.Errorf("%w: %v", reclaim.ErrUnknownCapability, unknown)
		}
	}
	if len(update.AutoActions) > 0 {
		policy.AutoActions = append([]string(nil), update.AutoActions...)
	}
	if len(update.ManualActions) > 0 {
		policy.ManualActions = append([]string(nil), update.ManualActions...)
	}

	d.sched.Apply(policy)
	d.logger.Info("scheduler policy updated",
		logging.Int("interval_minutes", policy.IntervalMinutes),
		logging.Bool("high_usage_enabled", policy.HighUsageEnabled),
		logging.Int("threshold_percent", int(policy.ThresholdPercent)),
		logging.Duration("cooldown", policy.Cooldown),
		logging.String(logging.FieldEventType, "policy_updated"),
	)
	d.persistPolicy(policy)
	return d.sched.Policy(), nil
}

// persistPolicy writes the applied policy to the config file so it survives
// a restart. A write failure leaves the in-memory policy in force.
func (d *Daemon) persistPolicy(policy scheduler.Policy) {
	if d.cfgPath == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.cfg.Scheduler
	s.IntervalMinutes = policy.IntervalMinutes
	s.HighUsageEnabled = policy.HighUsageEnabled
	s.ThresholdPercent = int(policy.ThresholdPercent)
	s.CooldownMinutes = int(policy.Cooldown / time.Minute)
	s.AutoActions = append([]string(nil), policy.AutoActions...)
	s.ManualActions = append([]string(nil), policy.ManualActions...)
	if err := config.SaveScheduler(d.cfgPath, s); err != nil {
		logging.WarnWithContext(d.logger, "policy change not saved", "policy_persist_failed",
			logging.String("config_path", d.cfgPath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the previous policy returns after a restart"),
		)
		return
	}
	d.logger.Debug("policy saved", logging.String("config_path", d.cfgPath))
}

// History returns recent passes, newest first, and lifetime totals.
func (d *Daemon) History(ctx context.Context, limit int) ([]scheduler.Outcome, history.Totals, error) {
	if d.store == nil {
		return nil, history.Totals{}, errors.New("pass history disabled")
	}
	passes, err := d.store.Recent(ctx, limit)
	if err != nil {
		return nil, history.Totals{}, err
	}
	totals, err := d.store.Totals(ctx)
	if err != nil {
		return nil, history.Totals{}, err
	}
	return passes, totals, nil
}

// TestNotification sends a test notification with the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.notifier.TestNotification(ctx)
}

// Status reports daemon runtime information.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:            d.running.Load(),
		PID:                os.Getpid(),
		Role:               d.coord.State().String(),
		Locked:             d.coord.Locked(),
		StartedAt:          d.startedAt,
		Scheduler:          d.sched.Status(),
		Capabilities:       d.registry.Names(),
		ForegroundRequests: d.foreground.Load(),
		LockPath:           d.cfg.LockPath(),
	}
	if snap := d.lastSample.Load(); snap != nil {
		status.Memory = *snap
	} else if snap, err := d.sampler.Sample(ctx); err == nil {
		status.Memory = snap
	} else {
		status.MemoryError = err.Error()
	}
	if d.store != nil {
		status.HistoryPath = d.store.Path()
		if totals, err := d.store.Totals(ctx); err == nil {
			status.History = &totals
		}
	}
	return status
}

func (d *Daemon) sampleLoop(ctx context.Context) {
	defer d.loops.Done()
	interval := d.cfg.SampleInterval()
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := d.clock.NewTicker(interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
		snap, err := d.sampler.Sample(ctx)
		if err != nil {
			if !failing {
				logging.WarnWithContext(d.logger, "memory sampling failed", "sample_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check reclaim.proc_root"),
					logging.String(logging.FieldImpact, "threshold cleaning paused until sampling recovers"),
				)
			}
			failing = true
			continue
		}
		failing = false
		d.lastSample.Store(&snap)
		d.sched.OnSampleTick(snap, d.sched.Policy())
	}
}

func (d *Daemon) handleForeground(instance.ForegroundRequest) {
	count := d.foreground.Add(1)
	d.logger.Info("another launch requested the running instance",
		logging.Int64("requests", count),
		logging.String(logging.FieldEventType, "foreground_requested"),
	)
	go func() {
		if err := d.notifier.NotifyForeground(context.Background()); err != nil {
			d.logger.Debug("foreground notification failed", logging.Error(err))
		}
	}()
}

func (d *Daemon) pruneHistory(ctx context.Context) {
	if d.store == nil || d.cfg.History.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -d.cfg.History.RetentionDays)
	removed, err := d.store.Prune(ctx, cutoff)
	if err != nil {
		logging.WarnWithContext(d.logger, "history prune failed", "history_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "old passes remain in history"),
		)
		return
	}
	if removed > 0 {
		d.logger.Info("history pruned",
			logging.Int64("removed", removed),
			logging.String(logging.FieldEventType, "history_pruned"),
		)
	}
}
