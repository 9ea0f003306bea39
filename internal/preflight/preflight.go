package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/sys/unix"

	"memsweep/internal/config"
	"memsweep/internal/reclaim"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes all applicable checks for the given config.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Runtime directory", cfg.Paths.RuntimeDir),
		CheckMeminfo(cfg.Reclaim.ProcRoot),
	}

	opts := reclaim.OptionsFromConfig(cfg, nil)
	for _, name := range configuredActions(cfg) {
		results = append(results, CheckCapability(opts, name))
	}

	notify := Result{Name: "Notifications", Optional: true, Passed: cfg.Notifications.NtfyTopic != ""}
	if notify.Passed {
		notify.Detail = "ntfy topic configured"
	} else {
		notify.Detail = "not configured"
	}
	return append(results, notify)
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckMeminfo verifies memory statistics can be read from procRoot.
func CheckMeminfo(procRoot string) Result {
	const name = "Memory statistics"
	path := filepath.Join(procRoot, "meminfo")
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s unreadable (%v); falling back to sysinfo", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckCapability verifies the kernel control file behind a capability is
// writable by this process. Missing privileges are reported, not fatal: the
// pass records the failure and continues with the next action.
func CheckCapability(opts reclaim.Options, name string) Result {
	result := Result{Name: name, Optional: true}
	path, err := reclaim.ControlPath(opts, name)
	switch {
	case errors.Is(err, reclaim.ErrNoCgroupV2):
		result.Detail = "session is not in a unified (v2) cgroup"
		return result
	case err != nil:
		result.Detail = err.Error()
		return result
	case path == "":
		result.Passed = true
		result.Detail = "no kernel control file needed"
		return result
	}
	if err := unix.Access(path, unix.W_OK); err != nil {
		if errors.Is(err, unix.ENOENT) {
			result.Detail = fmt.Sprintf("%s missing (kernel support unavailable)", path)
		} else {
			result.Detail = fmt.Sprintf("%s not writable (%v)", path, err)
		}
		return result
	}
	result.Passed = true
	result.Detail = path
	return result
}

func configuredActions(cfg *config.Config) []string {
	var names []string
	for _, list := range [][]string{cfg.Scheduler.AutoActions, cfg.Scheduler.ManualActions} {
		for _, name := range list {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	return names
}
