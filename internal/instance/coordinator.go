package instance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"memsweep/internal/logging"
)

// ErrNotLeader is returned by operations that require the Leader role.
var ErrNotLeader = errors.New("another instance is already running")

// Role is the outcome of leadership acquisition.
type Role int

const (
	RoleLeader Role = iota + 1
	RoleFollower
)

func (r Role) String() string {
	switch r {
	case RoleLeader:
		return "leader"
	case RoleFollower:
		return "follower"
	default:
		return "unknown"
	}
}

// State tracks the coordinator lifecycle.
type State int

const (
	StateUnstarted State = iota
	StateLeader
	StateFollower
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateLeader:
		return "leader"
	case StateFollower:
		return "follower"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ForegroundRequest is raised on the leader when a follower signals it.
type ForegroundRequest struct {
	ReceivedAt time.Time
	Signal     byte
}

// ForegroundHandler observes foreground requests. It runs on the listener
// goroutine and must not block.
type ForegroundHandler func(ForegroundRequest)

const (
	defaultNotifyTimeout = 2 * time.Second
	defaultRetryBackoff  = 100 * time.Millisecond
	defaultShutdownWait  = time.Second
	dialRetryInterval    = 50 * time.Millisecond
	signalByte           = byte(1)
)

// Options configures a Coordinator. Zero durations take the defaults.
type Options struct {
	Transport    Transport
	OnForeground ForegroundHandler
	Logger       *slog.Logger

	NotifyTimeout time.Duration
	RetryBackoff  time.Duration
	ShutdownWait  time.Duration
}

// Coordinator enforces a single leader per session and relays follower
// signals to it.
type Coordinator struct {
	transport Transport
	handler   ForegroundHandler
	logger    *slog.Logger

	notifyTimeout time.Duration
	retryBackoff  time.Duration
	shutdownWait  time.Duration

	mu     sync.Mutex
	state  State
	role   Role
	locked bool
	cancel context.CancelFunc
	done   chan struct{}

	shutdownOnce sync.Once
}

// New constructs an unstarted coordinator.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		transport:     opts.Transport,
		handler:       opts.OnForeground,
		logger:        logging.NewComponentLogger(opts.Logger, "instance"),
		notifyTimeout: opts.NotifyTimeout,
		retryBackoff:  opts.RetryBackoff,
		shutdownWait:  opts.ShutdownWait,
	}
	if c.notifyTimeout <= 0 {
		c.notifyTimeout = defaultNotifyTimeout
	}
	if c.retryBackoff <= 0 {
		c.retryBackoff = defaultRetryBackoff
	}
	if c.shutdownWait <= 0 {
		c.shutdownWait = defaultShutdownWait
	}
	return c
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Locked reports whether the leader actually holds the exclusive lock. It is
// false for a leader admitted through the lock failure fallback.
func (c *Coordinator) Locked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked
}

// TryAcquireLeadership resolves this process's role. A leader starts its
// listener loop in the background and returns immediately. A follower
// notifies the leader before returning, whether or not that succeeds.
// Calling it again returns the role already resolved.
func (c *Coordinator) TryAcquireLeadership(ctx context.Context) Role {
	c.mu.Lock()
	if c.state != StateUnstarted {
		role := c.role
		c.mu.Unlock()
		return role
	}

	acquired, err := c.acquire()
	if err != nil {
		// Availability wins over exclusivity when the lock primitive fails.
		logging.WarnWithContext(c.logger, "session lock unavailable; running without single-instance guarantee", "instance_lock_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check runtime_dir permissions"),
			logging.String(logging.FieldImpact, "a second instance may run concurrently"),
		)
		acquired = true
	} else if acquired {
		c.locked = true
	}

	if !acquired {
		c.state = StateFollower
		c.role = RoleFollower
		c.mu.Unlock()
		delivered := c.notify(ctx)
		c.logger.Info("another instance is running",
			logging.String(logging.FieldRole, RoleFollower.String()),
			logging.Bool("notified", delivered),
			logging.String(logging.FieldEventType, "instance_follower"),
		)
		return RoleFollower
	}

	listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = StateLeader
	c.role = RoleLeader
	done := c.done
	c.mu.Unlock()

	go c.listen(listenCtx, done)
	c.logger.Info("instance leadership acquired",
		logging.String(logging.FieldRole, RoleLeader.String()),
		logging.Bool("locked", acquired && err == nil),
		logging.String(logging.FieldEventType, "instance_leader"),
	)
	return RoleLeader
}

func (c *Coordinator) acquire() (bool, error) {
	if c.transport == nil {
		return false, errors.New("no transport configured")
	}
	return c.transport.Acquire()
}

// Shutdown stops the listener, waits briefly for it to exit, then releases
// the lock. It is safe to call repeatedly and before acquisition.
func (c *Coordinator) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		cancel, done, locked := c.cancel, c.done, c.locked
		c.locked = false
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if done != nil {
			timer := time.NewTimer(c.shutdownWait)
			select {
			case <-done:
			case <-timer.C:
				logging.WarnWithContext(c.logger, "listener did not stop in time", "instance_listener_stuck",
					logging.Duration("wait", c.shutdownWait),
					logging.String(logging.FieldImpact, "listener goroutine exits on its own"),
				)
			}
			timer.Stop()
		}
		if locked {
			if err := c.transport.Release(); err != nil {
				logging.WarnWithContext(c.logger, "session lock release failed", "instance_release_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "lock clears when the process exits"),
				)
			}
		}

		c.mu.Lock()
		c.state = StateStopped
		c.mu.Unlock()
	})
}

func (c *Coordinator) listen(ctx context.Context, done chan struct{}) {
	defer close(done)
	for ctx.Err() == nil {
		req, err := c.acceptOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("signal listener retrying",
				logging.Error(err),
				logging.Duration("backoff", c.retryBackoff),
			)
			if !sleepContext(ctx, c.retryBackoff) {
				return
			}
			continue
		}
		c.logger.Debug("foreground requested",
			logging.String(logging.FieldEventType, "foreground_requested"),
		)
		if c.handler != nil {
			c.handler(req)
		}
	}
}

func (c *Coordinator) acceptOne(ctx context.Context) (ForegroundRequest, error) {
	endpoint, err := c.transport.Listen()
	if err != nil {
		return ForegroundRequest{}, err
	}
	defer endpoint.Close()

	conn, err := endpoint.Accept(ctx)
	if err != nil {
		return ForegroundRequest{}, err
	}
	defer conn.Close()

	if dl, ok := conn.(interface{ SetReadDeadline(time.Time) error }); ok {
		_ = dl.SetReadDeadline(time.Now().Add(c.notifyTimeout))
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var buf [1]byte
	if _, err := io.ReadFull(conn, buf[:]); err != nil {
		return ForegroundRequest{}, err
	}
	return ForegroundRequest{ReceivedAt: time.Now(), Signal: buf[0]}, nil
}

// notify signals the leader and reports whether the leader read the signal.
// Failures are absorbed.
func (c *Coordinator) notify(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.notifyTimeout)
	defer cancel()

	var lastErr error
	for {
		conn, err := c.transport.Connect(ctx)
		if err == nil {
			lastErr = deliverSignal(ctx, conn)
			if lastErr == nil {
				return true
			}
		} else {
			lastErr = err
		}
		// The leader reopens its endpoint between clients; retry until the deadline.
		if !sleepContext(ctx, dialRetryInterval) {
			break
		}
	}
	c.logger.Debug("leader notification failed",
		logging.Error(lastErr),
		logging.Duration("timeout", c.notifyTimeout),
	)
	return false
}

// deliverSignal writes the signal byte and waits for the leader to hang up.
// The leader closes a connection only after reading its byte, so a clean EOF
// confirms delivery. A connection still queued when the leader closed its
// endpoint is reset instead, and the caller retries.
func deliverSignal(ctx context.Context, conn io.ReadWriteCloser) error {
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if dl, ok := conn.(interface{ SetDeadline(time.Time) error }); ok {
			_ = dl.SetDeadline(deadline)
		}
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if _, err := conn.Write([]byte{signalByte}); err != nil {
		return err
	}
	var buf [1]byte
	switch _, err := conn.Read(buf[:]); {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return err
	default:
		return errors.New("unexpected reply on signal socket")
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
