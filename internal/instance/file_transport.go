package instance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// FileTransport implements Transport with an flock(2) lock file and a unix
// domain socket, both inside the session runtime directory.
type FileTransport struct {
	lockPath   string
	socketPath string

	mu   sync.Mutex
	lock *flock.Flock
	held bool
}

// NewFileTransport builds a transport for the given lock and socket paths.
func NewFileTransport(lockPath, socketPath string) *FileTransport {
	return &FileTransport{
		lockPath:   lockPath,
		socketPath: socketPath,
		lock:       flock.New(lockPath),
	}
}

// LockPath returns the lock file location.
func (t *FileTransport) LockPath() string { return t.lockPath }

// SocketPath returns the signal socket location.
func (t *FileTransport) SocketPath() string { return t.socketPath }

func (t *FileTransport) Acquire() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.held {
		return true, nil
	}
	if err := os.MkdirAll(filepath.Dir(t.lockPath), 0o700); err != nil {
		return false, fmt.Errorf("create runtime directory: %w", err)
	}
	ok, err := t.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	t.held = ok
	return ok, nil
}

func (t *FileTransport) Release() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.held {
		return nil
	}
	t.held = false
	if err := t.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (t *FileTransport) Listen() (Endpoint, error) {
	// Only the lock holder listens, so any socket file left behind belongs to
	// a dead leader.
	if err := os.Remove(t.socketPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", t.socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on signal socket: %w", err)
	}
	if err := os.Chmod(t.socketPath, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("restrict signal socket: %w", err)
	}
	return &socketEndpoint{listener: listener}, nil
}

func (t *FileTransport) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", t.socketPath)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type socketEndpoint struct {
	listener net.Listener
	once     sync.Once
	closeErr error
}

func (e *socketEndpoint) Accept(ctx context.Context) (io.ReadCloser, error) {
	stop := context.AfterFunc(ctx, func() { _ = e.Close() })
	defer stop()
	conn, err := e.listener.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return conn, nil
}

func (e *socketEndpoint) Close() error {
	e.once.Do(func() { e.closeErr = e.listener.Close() })
	return e.closeErr
}
