package instance

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
)

// ErrNoListener is returned by MemoryTransport.Connect when no leader is
// listening.
var ErrNoListener = errors.New("no listener")

// MemoryHub is the in-process stand-in for the session: it owns the shared
// lock and the currently open endpoint. Transports created from one hub
// behave like processes in the same session.
type MemoryHub struct {
	mu        sync.Mutex
	locked    bool
	endpoint  *memoryEndpoint
	lockErr   error
	listenErr error
	failures  int
}

// NewMemoryHub returns an unlocked hub with no listener.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{}
}

// FailAcquire makes every subsequent Acquire return err.
func (h *MemoryHub) FailAcquire(err error) {
	h.mu.Lock()
	h.lockErr = err
	h.mu.Unlock()
}

// FailListen makes the next n Listen calls return err.
func (h *MemoryHub) FailListen(n int, err error) {
	h.mu.Lock()
	h.failures = n
	h.listenErr = err
	h.mu.Unlock()
}

// Locked reports whether some transport holds the lock.
func (h *MemoryHub) Locked() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.locked
}

// Transport returns a new process-local view of the hub.
func (h *MemoryHub) Transport() *MemoryTransport {
	return &MemoryTransport{hub: h}
}

// MemoryTransport implements Transport against a MemoryHub.
type MemoryTransport struct {
	hub  *MemoryHub
	held bool
}

func (t *MemoryTransport) Acquire() (bool, error) {
	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lockErr != nil {
		return false, h.lockErr
	}
	if t.held {
		return true, nil
	}
	if h.locked {
		return false, nil
	}
	h.locked = true
	t.held = true
	return true, nil
}

func (t *MemoryTransport) Release() error {
	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if t.held {
		t.held = false
		h.locked = false
	}
	return nil
}

func (t *MemoryTransport) Listen() (Endpoint, error) {
	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failures > 0 {
		h.failures--
		return nil, h.listenErr
	}
	ep := &memoryEndpoint{
		hub:    h,
		conns:  make(chan net.Conn, 1),
		closed: make(chan struct{}),
	}
	h.endpoint = ep
	return ep, nil
}

func (t *MemoryTransport) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := t.hub
	h.mu.Lock()
	ep := h.endpoint
	if ep == nil {
		h.mu.Unlock()
		return nil, ErrNoListener
	}
	// Single client: the endpoint is detached once a client claims it.
	h.endpoint = nil
	h.mu.Unlock()

	client, server := net.Pipe()
	select {
	case ep.conns <- server:
		return client, nil
	case <-ep.closed:
	case <-ctx.Done():
	}
	client.Close()
	server.Close()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNoListener
}

type memoryEndpoint struct {
	hub    *MemoryHub
	conns  chan net.Conn
	closed chan struct{}
	once   sync.Once
}

func (e *memoryEndpoint) Accept(ctx context.Context) (io.ReadCloser, error) {
	select {
	case conn := <-e.conns:
		return conn, nil
	case <-e.closed:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *memoryEndpoint) Close() error {
	e.once.Do(func() {
		close(e.closed)
		e.hub.mu.Lock()
		if e.hub.endpoint == e {
			e.hub.endpoint = nil
		}
		e.hub.mu.Unlock()
	})
	return nil
}
