// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns control socket lifecycle, request/response DTOs, and the mapping
// from daemon calls to wire types in package api. The server embeds the
// daemon; the client dials with a short timeout so CLI commands fail fast
// when no daemon is running.
package ipc
