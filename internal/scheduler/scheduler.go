// Package scheduler decides when cleaning passes run and measures their
// effect.
//
// Passes start from a manual request, the periodic interval timer, the
// memory pressure threshold, or process startup. Only one pass runs at a
// time; a request arriving while a pass is in flight is rejected with
// ErrPassInProgress. Each pass samples memory strictly before the first
// capability and strictly after the last.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"memsweep/internal/config"
	"memsweep/internal/logging"
	"memsweep/internal/memory"
)

const (
	defaultCloseGrace = 5 * time.Second
	maxCooldown       = config.MaxCooldownMinutes * time.Minute
)

// ErrPassInProgress is returned when a pass is requested while another runs.
var ErrPassInProgress = errors.New("cleaning pass already in progress")

// ErrClosed is returned for requests made after Close.
var ErrClosed = errors.New("scheduler closed")

// Invoker runs a named reclaim capability.
type Invoker interface {
	Invoke(ctx context.Context, name string) error
}

// Options configures a Scheduler.
type Options struct {
	Sampler  memory.Sampler
	Actions  Invoker
	Reporter Reporter
	Clock    Clock
	Logger   *slog.Logger
	Policy   Policy
	// CloseGrace bounds each of Close's two waits for in-flight passes:
	// before and after the pass context is cancelled. Defaults to 5s.
	CloseGrace time.Duration
}

// Status is a point-in-time view of scheduler state.
type Status struct {
	Policy             Policy
	IntervalMinutes    int
	PassInProgress     bool
	LastThresholdClean time.Time
	LastOutcome        *Outcome
}

// Scheduler owns the trigger state for one leader process.
type Scheduler struct {
	sampler  memory.Sampler
	actions  Invoker
	reporter Reporter
	clock    Clock
	logger   *slog.Logger
	grace    time.Duration

	policy         atomic.Pointer[Policy]
	passInProgress atomic.Bool
	lastOutcome    atomic.Pointer[Outcome]

	mu              sync.Mutex
	intervalMinutes int
	lastThreshold   time.Time
	ticker          Ticker
	tickerStop      chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	passes sync.WaitGroup
	loops  sync.WaitGroup
	closed atomic.Bool
}

// New constructs a scheduler. The interval timer is not started until
// ConfigureInterval or Apply is called.
func New(opts Options) (*Scheduler, error) {
	if opts.Sampler == nil {
		return nil, errors.New("scheduler requires a memory sampler")
	}
	if opts.Actions == nil {
		return nil, errors.New("scheduler requires a capability invoker")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.CloseGrace <= 0 {
		opts.CloseGrace = defaultCloseGrace
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		sampler:  opts.Sampler,
		actions:  opts.Actions,
		reporter: opts.Reporter,
		clock:    opts.Clock,
		logger:   logging.NewComponentLogger(opts.Logger, "scheduler"),
		grace:    opts.CloseGrace,
		ctx:      ctx,
		cancel:   cancel,
	}
	policy := opts.Policy.clone()
	s.policy.Store(&policy)
	return s, nil
}

// Policy returns a copy of the active policy.
func (s *Scheduler) Policy() Policy {
	return s.policy.Load().clone()
}

// Apply replaces the policy wholesale. A pass already running keeps the
// action list it started with. The interval timer is restarted only when the
// interval changed.
func (s *Scheduler) Apply(policy Policy) {
	next := policy.clone()
	s.policy.Store(&next)

	s.mu.Lock()
	current := s.intervalMinutes
	running := s.tickerStop != nil
	s.mu.Unlock()
	if current != next.IntervalMinutes || (next.IntervalMinutes > 0 && !running) {
		s.ConfigureInterval(next.IntervalMinutes)
	}
}

// ConfigureInterval sets the periodic trigger. Zero disables it; a positive
// value replaces any running timer. Values above config.MaxIntervalMinutes are
// clamped to it. It never starts a pass by itself.
func (s *Scheduler) ConfigureInterval(minutes int) {
	minutes = min(max(minutes, 0), config.MaxIntervalMinutes)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTickerLocked()
	s.intervalMinutes = minutes
	if minutes == 0 || s.closed.Load() {
		s.logger.Info("interval cleaning disabled",
			logging.String(logging.FieldEventType, "interval_configured"),
		)
		return
	}

	ticker := s.clock.NewTicker(time.Duration(minutes) * time.Minute)
	stop := make(chan struct{})
	s.ticker = ticker
	s.tickerStop = stop
	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		for {
			select {
			case <-stop:
				return
			case <-s.ctx.Done():
				return
			case <-ticker.Chan():
				select {
				case <-stop:
					return
				default:
				}
				s.OnPeriodicTick()
			}
		}
	}()
	s.logger.Info("interval cleaning scheduled",
		logging.Int("interval_minutes", minutes),
		logging.String(logging.FieldEventType, "interval_configured"),
	)
}

func (s *Scheduler) stopTickerLocked() {
	if s.tickerStop == nil {
		return
	}
	close(s.tickerStop)
	s.ticker.Stop()
	s.tickerStop = nil
	s.ticker = nil
}

// RequestManualClean starts a manual pass on a worker goroutine. An empty
// action list uses the policy's manual actions.
func (s *Scheduler) RequestManualClean(actions []string) (string, error) {
	if len(actions) == 0 {
		actions = s.policy.Load().ManualActions
	}
	return s.dispatch(TriggerManual, actions)
}

// RequestStartupClean starts the clean-on-startup pass with the automatic
// action list.
func (s *Scheduler) RequestStartupClean() (string, error) {
	return s.dispatch(TriggerStartup, s.policy.Load().AutoActions)
}

// OnPeriodicTick starts an interval pass.
func (s *Scheduler) OnPeriodicTick() {
	_, _ = s.dispatch(TriggerInterval, s.policy.Load().AutoActions)
}

// OnSampleTick evaluates the memory pressure threshold against sample. The
// cooldown timestamp is recorded before the pass is dispatched, so a slow
// pass cannot cause a burst of threshold passes. It reports whether a pass
// was requested.
func (s *Scheduler) OnSampleTick(sample memory.Snapshot, policy Policy) bool {
	if !policy.HighUsageEnabled {
		return false
	}
	cooldown := policy.Cooldown
	if cooldown < 0 || cooldown > maxCooldown {
		cooldown = maxCooldown
	}
	s.mu.Lock()
	now := s.clock.Now()
	if !s.lastThreshold.IsZero() && now.Sub(s.lastThreshold) < cooldown {
		s.mu.Unlock()
		return false
	}
	if sample.LoadPercent < policy.ThresholdPercent {
		s.mu.Unlock()
		return false
	}
	s.lastThreshold = now
	s.mu.Unlock()

	s.logger.Info("memory load above threshold",
		logging.Int("load_percent", int(sample.LoadPercent)),
		logging.Int("threshold_percent", int(policy.ThresholdPercent)),
		logging.String(logging.FieldEventType, "threshold_exceeded"),
	)
	_, _ = s.dispatch(TriggerThreshold, policy.AutoActions)
	return true
}

func (s *Scheduler) dispatch(trigger Trigger, actions []string) (string, error) {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return "", ErrClosed
	}
	if !s.passInProgress.CompareAndSwap(false, true) {
		s.mu.Unlock()
		s.logger.Info("pass skipped; another pass is running",
			logging.String(logging.FieldTrigger, string(trigger)),
			logging.String(logging.FieldEventType, "pass_skipped"),
		)
		return "", ErrPassInProgress
	}
	s.passes.Add(1)
	s.mu.Unlock()

	id := uuid.NewString()
	actions = slices.Clone(actions)
	go func() {
		defer s.passes.Done()
		s.runPass(s.ctx, id, trigger, actions)
	}()
	return id, nil
}

// RunPass runs one pass synchronously on the caller's goroutine.
func (s *Scheduler) RunPass(ctx context.Context, trigger Trigger, actions []string) (Outcome, error) {
	if !s.passInProgress.CompareAndSwap(false, true) {
		s.logger.Info("pass skipped; another pass is running",
			logging.String(logging.FieldTrigger, string(trigger)),
			logging.String(logging.FieldEventType, "pass_skipped"),
		)
		return Outcome{}, ErrPassInProgress
	}
	return s.runPass(ctx, uuid.NewString(), trigger, slices.Clone(actions)), nil
}

// runPass expects passInProgress to be set and clears it after reporting.
func (s *Scheduler) runPass(ctx context.Context, id string, trigger Trigger, actions []string) Outcome {
	defer s.passInProgress.Store(false)

	logger := s.logger.With(
		logging.String(logging.FieldPassID, id),
		logging.String(logging.FieldTrigger, string(trigger)),
	)
	started := s.clock.Now()
	outcome := Outcome{
		ID:        id,
		Trigger:   trigger,
		StartedAt: started,
		Actions:   actions,
	}
	logger.Info("pass started",
		logging.Strings("actions", actions),
		logging.String(logging.FieldEventType, "pass_started"),
	)

	before, beforeErr := s.sampler.Sample(ctx)
	for _, name := range actions {
		if err := s.invoke(ctx, name); err != nil {
			outcome.Failures = append(outcome.Failures, ActionFailure{Capability: name, Error: err.Error()})
			logging.WarnWithContext(logger, "capability failed; continuing pass", "capability_failed",
				logging.String(logging.FieldCapability, name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "some capabilities need elevated privileges"),
				logging.String(logging.FieldImpact, "less memory reclaimed by this pass"),
			)
		}
	}
	after, afterErr := s.sampler.Sample(ctx)

	if sampleErr := errors.Join(beforeErr, afterErr); sampleErr != nil {
		outcome.SampleError = sampleErr.Error()
		logging.WarnWithContext(logger, "memory sampling failed; freed bytes unknown", "sample_failed",
			logging.Error(sampleErr),
			logging.String(logging.FieldImpact, "pass reports zero freed bytes"),
		)
	} else {
		outcome.BytesBefore = int64(before.UsedBytes())
		outcome.BytesAfter = int64(after.UsedBytes())
		outcome.FreedBytes = outcome.BytesBefore - outcome.BytesAfter
	}
	outcome.Duration = s.clock.Now().Sub(started)

	logger.Info("pass completed",
		logging.Int64("freed_bytes", outcome.FreedBytes),
		logging.String("freed", memory.FormatMegabytes(outcome.FreedBytes)),
		logging.Int("failures", len(outcome.Failures)),
		logging.Duration("duration", outcome.Duration),
		logging.String(logging.FieldEventType, "pass_completed"),
	)

	stored := outcome
	s.lastOutcome.Store(&stored)
	if s.reporter != nil {
		s.reporter.ReportOutcome(ctx, outcome)
	}
	return outcome
}

func (s *Scheduler) invoke(ctx context.Context, name string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capability panicked: %v", r)
		}
	}()
	return s.actions.Invoke(ctx, name)
}

// Status reports the current scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	interval := s.intervalMinutes
	last := s.lastThreshold
	s.mu.Unlock()

	var outcome *Outcome
	if o := s.lastOutcome.Load(); o != nil {
		copied := *o
		outcome = &copied
	}
	return Status{
		Policy:             s.Policy(),
		IntervalMinutes:    interval,
		PassInProgress:     s.passInProgress.Load(),
		LastThresholdClean: last,
		LastOutcome:        outcome,
	}
}

// Wait blocks until dispatched passes have finished.
func (s *Scheduler) Wait() {
	s.passes.Wait()
}

// Close stops the interval timer and rejects further requests. An in-flight
// pass gets one grace period to finish, then its context is cancelled and it
// gets one more. A capability that ignores cancellation is abandoned.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if !s.closed.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return
	}
	s.stopTickerLocked()
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.passes.Wait()
		close(drained)
	}()
	finished := waitFor(drained, s.grace)
	s.cancel()
	if !finished && !waitFor(drained, s.grace) {
		logging.WarnWithContext(s.logger, "pass still running at shutdown; abandoning it", "pass_abandoned",
			logging.Duration("grace", 2*s.grace),
			logging.String(logging.FieldErrorHint, "a capability is ignoring cancellation"),
			logging.String(logging.FieldImpact, "the pass outcome is not recorded"),
		)
	}
	s.loops.Wait()
}

func waitFor(done <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
