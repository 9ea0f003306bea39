// Package preflight reports whether this session can run memsweep's
// configured capabilities.
//
// Checks cover the state and runtime directories, /proc/meminfo, and the
// kernel control files each configured capability writes. They run in two
// places:
//   - The daemon logs failing checks once at startup so permission problems
//     show up before the first pass fails.
//   - `memsweep status` prints them in its Readiness section.
//
// Control file checks are gated by the configured action lists; a capability
// nobody runs is not checked.
package preflight
