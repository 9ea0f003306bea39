package instance

import (
	"context"
	"io"
)

// Transport abstracts the session-wide exclusive lock and the single-client
// signal endpoint used by followers to reach the leader.
type Transport interface {
	// Acquire tries to take the exclusive lock without blocking. It reports
	// false when another process already holds it.
	Acquire() (bool, error)
	// Release drops the lock if this transport holds it.
	Release() error
	// Listen opens a fresh endpoint that accepts a single client.
	Listen() (Endpoint, error)
	// Connect dials the leader's endpoint. Reads on the returned connection
	// see io.EOF once the leader has consumed the signal and hung up.
	Connect(ctx context.Context) (io.ReadWriteCloser, error)
}

// Endpoint is one listening instance. Endpoints are not reused after a
// client disconnects.
type Endpoint interface {
	// Accept blocks until a client connects or ctx is cancelled.
	Accept(ctx context.Context) (io.ReadCloser, error)
	Close() error
}
