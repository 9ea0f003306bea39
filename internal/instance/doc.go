// Package instance guarantees a single memsweep leader per login session.
//
// The first process to take the session lock becomes the Leader and listens
// for one-byte signals from later launches. Those Followers connect, send
// the signal so the leader can surface itself, and exit. Transport hides the
// lock and the signal channel; FileTransport uses flock(2) and a unix socket,
// MemoryTransport simulates a session in-process.
package instance
