// Package reclaim holds the named memory reclaim capabilities a cleaning pass
// invokes.
//
// A Registry maps capability names to Actions in registration order. The
// Linux implementations write to procfs and cgroup v2 control files, call
// sync(2), and prune abandoned temp files and the freedesktop trash. Actions
// never report how much they freed; callers measure the effect by sampling
// memory before and after.
package reclaim
