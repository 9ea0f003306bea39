package scheduler_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"memsweep/internal/config"
	"memsweep/internal/memory"
	"memsweep/internal/scheduler"
	"memsweep/internal/testsupport"
)

type recordingInvoker struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error
	panics  map[string]bool
	block   chan struct{}
	started chan struct{}
}

func (r *recordingInvoker) Invoke(ctx context.Context, name string) error {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	started, block := r.started, r.block
	r.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if r.panics[name] {
		panic("boom")
	}
	return r.fail[name]
}

func (r *recordingInvoker) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

type outcomeSink struct {
	ch chan scheduler.Outcome
}

func newOutcomeSink() *outcomeSink {
	return &outcomeSink{ch: make(chan scheduler.Outcome, 16)}
}

func (s *outcomeSink) ReportOutcome(_ context.Context, o scheduler.Outcome) {
	s.ch <- o
}

func (s *outcomeSink) next(t *testing.T) scheduler.Outcome {
	t.Helper()
	select {
	case o := <-s.ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return scheduler.Outcome{}
	}
}

func (s *outcomeSink) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case o := <-s.ch:
		t.Fatalf("unexpected outcome: trigger=%s", o.Trigger)
	case <-time.After(wait):
	}
}

type fixture struct {
	sched   *scheduler.Scheduler
	sampler *testsupport.SequenceSampler
	invoker *recordingInvoker
	sink    *outcomeSink
	clock   *testsupport.FakeClock
}

func newFixture(t *testing.T, policy scheduler.Policy, used ...uint64) *fixture {
	t.Helper()
	f := &fixture{
		sampler: testsupport.NewSequenceSampler(1000, used...),
		invoker: &recordingInvoker{},
		sink:    newOutcomeSink(),
		clock:   testsupport.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	sched, err := scheduler.New(scheduler.Options{
		Sampler:  f.sampler,
		Actions:  f.invoker,
		Reporter: f.sink,
		Clock:    f.clock,
		Policy:   policy,
	})
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	t.Cleanup(sched.Close)
	f.sched = sched
	return f
}

func thresholdPolicy() scheduler.Policy {
	return scheduler.Policy{
		HighUsageEnabled: true,
		ThresholdPercent: 70,
		Cooldown:         10 * time.Minute,
		AutoActions:      []string{"a"},
	}
}

func TestRunPassSamplesExactlyTwice(t *testing.T) {
	tests := []struct {
		name    string
		actions []string
	}{
		{"empty", nil},
		{"one", []string{"a"}},
		{"many", []string{"a", "b", "c", "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, scheduler.Policy{}, 600)
			outcome, err := f.sched.RunPass(context.Background(), scheduler.TriggerManual, tt.actions)
			if err != nil {
				t.Fatalf("RunPass: %v", err)
			}
			if got := f.sampler.Calls(); got != 2 {
				t.Fatalf("expected 2 samples, got %d", got)
			}
			if !slices.Equal(f.invoker.Calls(), tt.actions) {
				t.Fatalf("unexpected invocation order: %v", f.invoker.Calls())
			}
			if len(tt.actions) == 0 && outcome.FreedBytes != 0 {
				t.Fatalf("expected zero freed bytes for empty pass, got %d", outcome.FreedBytes)
			}
		})
	}
}

func TestRunPassMeasuresFreedBytes(t *testing.T) {
	f := newFixture(t, scheduler.Policy{}, 800, 500)
	outcome, err := f.sched.RunPass(context.Background(), scheduler.TriggerManual, []string{"a"})
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if outcome.BytesBefore != 800 || outcome.BytesAfter != 500 || outcome.FreedBytes != 300 {
		t.Fatalf("unexpected measurement: %+v", outcome)
	}
	if outcome.ID == "" || outcome.Trigger != scheduler.TriggerManual {
		t.Fatalf("unexpected identity: %+v", outcome)
	}
	if got := f.sink.next(t); got.ID != outcome.ID {
		t.Fatalf("reported outcome %s differs from returned %s", got.ID, outcome.ID)
	}
	if last := f.sched.Status().LastOutcome; last == nil || last.ID != outcome.ID {
		t.Fatalf("expected status to expose last outcome, got %+v", last)
	}
}

func TestRunPassReportsZeroWhenSamplingFails(t *testing.T) {
	f := newFixture(t, scheduler.Policy{}, 800)
	f.sampler.Fail(errors.New("meminfo unreadable"))

	outcome, err := f.sched.RunPass(context.Background(), scheduler.TriggerManual, []string{"a"})
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if outcome.FreedBytes != 0 || outcome.SampleError == "" {
		t.Fatalf("expected zero freed with sample error, got %+v", outcome)
	}
	if !slices.Equal(f.invoker.Calls(), []string{"a"}) {
		t.Fatalf("actions must still run: %v", f.invoker.Calls())
	}
}

func TestFailingActionDoesNotStopPass(t *testing.T) {
	f := newFixture(t, scheduler.Policy{}, 900, 700)
	f.invoker.fail = map[string]error{"b": errors.New("permission denied")}
	f.invoker.panics = map[string]bool{"c": true}

	outcome, err := f.sched.RunPass(context.Background(), scheduler.TriggerManual, []string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if !slices.Equal(f.invoker.Calls(), []string{"a", "b", "c", "d"}) {
		t.Fatalf("expected every action to run, got %v", f.invoker.Calls())
	}
	if len(outcome.Failures) != 2 || outcome.Failures[0].Capability != "b" || outcome.Failures[1].Capability != "c" {
		t.Fatalf("unexpected failures: %+v", outcome.Failures)
	}
	if outcome.FreedBytes != 200 {
		t.Fatalf("expected 200 freed, got %d", outcome.FreedBytes)
	}
	f.sink.next(t)
	f.sink.none(t, 50*time.Millisecond)
}

func TestOverlappingPassIsRejected(t *testing.T) {
	f := newFixture(t, scheduler.Policy{ManualActions: []string{"slow"}}, 500)
	f.invoker.block = make(chan struct{})
	f.invoker.started = make(chan struct{}, 1)

	if _, err := f.sched.RequestManualClean(nil); err != nil {
		t.Fatalf("RequestManualClean: %v", err)
	}
	<-f.invoker.started
	if !f.sched.Status().PassInProgress {
		t.Fatal("expected pass to be in progress")
	}
	if _, err := f.sched.RequestManualClean(nil); !errors.Is(err, scheduler.ErrPassInProgress) {
		t.Fatalf("expected ErrPassInProgress, got %v", err)
	}
	if _, err := f.sched.RunPass(context.Background(), scheduler.TriggerManual, nil); !errors.Is(err, scheduler.ErrPassInProgress) {
		t.Fatalf("expected ErrPassInProgress from RunPass, got %v", err)
	}

	close(f.invoker.block)
	f.sched.Wait()
	if got := f.sink.next(t); got.Trigger != scheduler.TriggerManual {
		t.Fatalf("unexpected trigger %s", got.Trigger)
	}
	if f.sched.Status().PassInProgress {
		t.Fatal("expected flag cleared after pass")
	}
	if got := f.sampler.Calls(); got != 2 {
		t.Fatalf("rejected requests must not sample, got %d samples", got)
	}
}

func TestThresholdCooldown(t *testing.T) {
	tests := []struct {
		name   string
		gap    time.Duration
		passes int
	}{
		{"within cooldown", time.Minute, 1},
		{"after cooldown", 11 * time.Minute, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := thresholdPolicy()
			f := newFixture(t, policy, 500)
			sample := memory.NewSnapshot(100, 25, time.Time{})

			f.sched.OnSampleTick(sample, policy)
			f.sched.Wait()
			f.clock.Advance(tt.gap)
			f.sched.OnSampleTick(sample, policy)
			f.sched.Wait()

			for i := 0; i < tt.passes; i++ {
				if got := f.sink.next(t); got.Trigger != scheduler.TriggerThreshold {
					t.Fatalf("unexpected trigger %s", got.Trigger)
				}
			}
			f.sink.none(t, 50*time.Millisecond)
		})
	}
}

func TestThresholdIgnoredBelowLimitOrWhenDisabled(t *testing.T) {
	policy := thresholdPolicy()
	f := newFixture(t, policy, 500)

	if f.sched.OnSampleTick(memory.NewSnapshot(100, 31, time.Time{}), policy) {
		t.Fatal("load 69% must not trigger at threshold 70")
	}
	disabled := policy
	disabled.HighUsageEnabled = false
	if f.sched.OnSampleTick(memory.NewSnapshot(100, 5, time.Time{}), disabled) {
		t.Fatal("disabled policy must not trigger")
	}
	if !f.sched.Status().LastThresholdClean.IsZero() {
		t.Fatal("cooldown timestamp must stay unset when nothing triggered")
	}
	f.sink.none(t, 50*time.Millisecond)
}

func TestThresholdRecordsCooldownBeforePass(t *testing.T) {
	policy := thresholdPolicy()
	f := newFixture(t, policy, 500)
	f.invoker.block = make(chan struct{})
	f.invoker.started = make(chan struct{}, 1)

	if !f.sched.OnSampleTick(memory.NewSnapshot(100, 10, time.Time{}), policy) {
		t.Fatal("expected threshold pass")
	}
	<-f.invoker.started
	if got := f.sched.Status().LastThresholdClean; !got.Equal(f.clock.Now()) {
		t.Fatalf("expected cooldown recorded while pass runs, got %s", got)
	}
	close(f.invoker.block)
	f.sched.Wait()
}

func TestConfigureIntervalTriggersPeriodically(t *testing.T) {
	f := newFixture(t, scheduler.Policy{AutoActions: []string{"a"}}, 500)

	f.sched.ConfigureInterval(5)
	f.sched.ConfigureInterval(0)
	if got := f.clock.ActiveTickers(); got != 0 {
		t.Fatalf("expected timers stopped, %d active", got)
	}
	f.clock.Advance(time.Hour)
	f.sink.none(t, 100*time.Millisecond)

	f.sched.ConfigureInterval(15)
	f.sink.none(t, 50*time.Millisecond)

	f.clock.Advance(14 * time.Minute)
	f.sink.none(t, 50*time.Millisecond)
	f.clock.Advance(time.Minute)
	if got := f.sink.next(t); got.Trigger != scheduler.TriggerInterval {
		t.Fatalf("unexpected trigger %s", got.Trigger)
	}
	f.sched.Wait()

	f.clock.Advance(15 * time.Minute)
	f.sink.next(t)
	f.sched.Wait()

	f.sched.ConfigureInterval(0)
	f.clock.Advance(time.Hour)
	f.sink.none(t, 100*time.Millisecond)
}

func TestApplySwapsPolicyWithoutDisturbingPass(t *testing.T) {
	f := newFixture(t, scheduler.Policy{ManualActions: []string{"a", "b"}}, 800, 600)
	f.invoker.block = make(chan struct{})
	f.invoker.started = make(chan struct{}, 2)

	if _, err := f.sched.RequestManualClean(nil); err != nil {
		t.Fatalf("RequestManualClean: %v", err)
	}
	<-f.invoker.started
	f.sched.Apply(scheduler.Policy{ManualActions: []string{"z"}, IntervalMinutes: 30})
	close(f.invoker.block)
	f.sched.Wait()

	outcome := f.sink.next(t)
	if !slices.Equal(outcome.Actions, []string{"a", "b"}) || outcome.FreedBytes != 200 {
		t.Fatalf("in-flight pass changed by Apply: %+v", outcome)
	}
	status := f.sched.Status()
	if status.IntervalMinutes != 30 || !slices.Equal(status.Policy.ManualActions, []string{"z"}) {
		t.Fatalf("policy not applied: %+v", status)
	}
}

func TestStartupCleanUsesAutoActions(t *testing.T) {
	f := newFixture(t, scheduler.Policy{AutoActions: []string{"auto"}, ManualActions: []string{"manual"}}, 500)
	if _, err := f.sched.RequestStartupClean(); err != nil {
		t.Fatalf("RequestStartupClean: %v", err)
	}
	outcome := f.sink.next(t)
	if outcome.Trigger != scheduler.TriggerStartup || !slices.Equal(outcome.Actions, []string{"auto"}) {
		t.Fatalf("unexpected startup outcome: %+v", outcome)
	}
}

func TestClosedSchedulerRejectsRequests(t *testing.T) {
	f := newFixture(t, scheduler.Policy{}, 500)
	f.sched.Close()
	if _, err := f.sched.RequestManualClean([]string{"a"}); !errors.Is(err, scheduler.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestConfigureIntervalClampsOversizedValues(t *testing.T) {
	sched, err := scheduler.New(scheduler.Options{
		Sampler: testsupport.NewSequenceSampler(1000, 500),
		Actions: &recordingInvoker{},
		Clock:   scheduler.SystemClock(),
	})
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	defer sched.Close()

	tests := []struct {
		minutes int
		want    int
	}{
		{200000000, config.MaxIntervalMinutes},
		{-5, 0},
		{15, 15},
	}
	for _, tt := range tests {
		sched.ConfigureInterval(tt.minutes)
		if got := sched.Status().IntervalMinutes; got != tt.want {
			t.Fatalf("ConfigureInterval(%d): interval = %d, want %d", tt.minutes, got, tt.want)
		}
	}
}

func TestOversizedCooldownStillSuppressesThreshold(t *testing.T) {
	oversized := 200000000
	for _, cooldown := range []time.Duration{
		time.Duration(oversized) * time.Minute,
		-time.Minute,
	} {
		policy := thresholdPolicy()
		policy.Cooldown = cooldown
		f := newFixture(t, policy, 500)
		sample := memory.NewSnapshot(100, 25, time.Time{})

		if !f.sched.OnSampleTick(sample, policy) {
			t.Fatalf("cooldown %v: first tick above threshold must trigger", cooldown)
		}
		f.sched.Wait()
		f.clock.Advance(time.Hour)
		if f.sched.OnSampleTick(sample, policy) {
			t.Fatalf("cooldown %v: second tick inside the window must not trigger", cooldown)
		}
		f.sched.Wait()
		f.sink.next(t)
		f.sink.none(t, 20*time.Millisecond)
	}
}

type cancelAwareInvoker struct {
	started chan struct{}
}

func (c *cancelAwareInvoker) Invoke(ctx context.Context, _ string) error {
	c.started <- struct{}{}
	<-ctx.Done()
	return ctx.Err()
}

func TestCloseBoundedByStuckCapability(t *testing.T) {
	const grace = 50 * time.Millisecond
	aware := &cancelAwareInvoker{started: make(chan struct{}, 1)}
	stuck := &recordingInvoker{block: make(chan struct{}), started: make(chan struct{}, 1)}
	t.Cleanup(func() { close(stuck.block) })

	tests := []struct {
		name    string
		actions scheduler.Invoker
		started chan struct{}
	}{
		{"honours cancellation", aware, aware.started},
		{"ignores cancellation", stuck, stuck.started},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched, err := scheduler.New(scheduler.Options{
				Sampler:    testsupport.NewSequenceSampler(1000, 500),
				Actions:    tt.actions,
				Clock:      testsupport.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
				CloseGrace: grace,
			})
			if err != nil {
				t.Fatalf("scheduler.New: %v", err)
			}
			if _, err := sched.RequestManualClean([]string{"a"}); err != nil {
				t.Fatalf("RequestManualClean: %v", err)
			}
			<-tt.started

			done := make(chan struct{})
			go func() {
				sched.Close()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2*grace + time.Second):
				t.Fatal("Close did not return while a capability was running")
			}
		})
	}
}
