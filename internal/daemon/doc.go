// Package daemon wires the memsweep leader process together.
//
// A Daemon resolves its instance role through the session coordinator, then
// owns the clean scheduler, the memory sampling loop that feeds threshold
// evaluation, the pass history recorder, and ntfy notifications. The ipc
// package exposes it over the control socket and daemonrun drives its
// lifecycle.
package daemon
