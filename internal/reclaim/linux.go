package reclaim

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"memsweep/internal/config"
	"memsweep/internal/logging"
)

// ErrNoCgroupV2 is returned when the session is not placed in a unified cgroup.
var ErrNoCgroupV2 = errors.New("cgroup v2 membership not found")

// Options configures the Linux capability implementations.
type Options struct {
	ProcRoot   string
	CgroupRoot string
	TempDirs   []string
	TempMinAge time.Duration
	TrashDir   string
	Logger     *slog.Logger

	// Sync flushes dirty pages; defaults to unix.Sync.
	Sync func()
	// Now defaults to time.Now.
	Now func() time.Time
}

// OptionsFromConfig maps the [reclaim] section onto Options.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	if cfg == nil {
		return Options{Logger: logger}
	}
	return Options{
		ProcRoot:   cfg.Reclaim.ProcRoot,
		CgroupRoot: cfg.Reclaim.CgroupRoot,
		TempDirs:   append([]string(nil), cfg.Reclaim.TempDirs...),
		TempMinAge: cfg.TempMinAge(),
		TrashDir:   cfg.Reclaim.TrashDir,
		Logger:     logger,
	}
}

type linux struct {
	opts   Options
	logger *slog.Logger
}

// NewLinuxRegistry registers every Linux capability in canonical order.
func NewLinuxRegistry(opts Options) *Registry {
	if strings.TrimSpace(opts.ProcRoot) == "" {
		opts.ProcRoot = "/proc"
	}
	if strings.TrimSpace(opts.CgroupRoot) == "" {
		opts.CgroupRoot = "/sys/fs/cgroup"
	}
	if opts.Sync == nil {
		opts.Sync = unix.Sync
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := &linux{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "reclaim")}

	reg := NewRegistry()
	for _, entry := range []struct {
		name   string
		action Action
	}{
		{FlushProcessWorkingSets, l.flushProcessWorkingSets},
		{FlushSystemWorkingSet, l.flushSystemWorkingSet},
		{FlushModifiedPages, l.flushModifiedPages},
		{FlushStandbyList, l.dropCaches("3")},
		{FlushLowPriorityStandby, l.dropCaches("1")},
		{PurgeTempFiles, l.purgeTempFiles},
		{EmptyRecycleBin, l.emptyRecycleBin},
	} {
		// Names are constants and unique, so Register cannot fail here.
		_ = reg.Register(entry.name, entry.action)
	}
	return reg
}

// flushProcessWorkingSets asks the kernel to reclaim the session cgroup's
// charged memory through memory.reclaim.
func (l *linux) flushProcessWorkingSets(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := l.sessionCgroup()
	if err != nil {
		return err
	}
	current, err := readUint(filepath.Join(dir, "memory.current"))
	if err != nil {
		return fmt.Errorf("read memory.current: %w", err)
	}
	if current == 0 {
		return nil
	}
	err = writeControl(filepath.Join(dir, "memory.reclaim"), strconv.FormatUint(current, 10))
	if errors.Is(err, unix.EAGAIN) {
		// The kernel reclaimed less than requested; whatever it got is kept.
		l.logger.Debug("memory.reclaim returned partial result",
			logging.String("cgroup", dir),
			logging.Uint64("requested_bytes", current),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("write memory.reclaim: %w", err)
	}
	return nil
}

func (l *linux) sessionCgroup() (string, error) {
	return SessionCgroup(l.opts.ProcRoot, l.opts.CgroupRoot)
}

// SessionCgroup resolves the unified cgroup directory of the calling process.
func SessionCgroup(procRoot, cgroupRoot string) (string, error) {
	file, err := os.Open(filepath.Join(procRoot, "self", "cgroup"))
	if err != nil {
		return "", fmt.Errorf("open cgroup membership: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		// Unified hierarchy entries look like "0::/user.slice/...".
		rel, ok := strings.CutPrefix(scanner.Text(), "0::")
		if !ok {
			continue
		}
		return filepath.Join(cgroupRoot, filepath.Clean("/"+rel)), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read cgroup membership: %w", err)
	}
	return "", ErrNoCgroupV2
}

// ControlPath returns the kernel control file a capability writes. Capabilities
// that only touch user files return "".
func ControlPath(opts Options, name string) (string, error) {
	vm := filepath.Join(opts.ProcRoot, "sys", "vm")
	switch name {
	case FlushProcessWorkingSets:
		dir, err := SessionCgroup(opts.ProcRoot, opts.CgroupRoot)
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "memory.reclaim"), nil
	case FlushSystemWorkingSet:
		return filepath.Join(vm, "compact_memory"), nil
	case FlushStandbyList, FlushLowPriorityStandby:
		return filepath.Join(vm, "drop_caches"), nil
	case FlushModifiedPages, PurgeTempFiles, EmptyRecycleBin:
		return "", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}
}

func (l *linux) flushSystemWorkingSet(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeControl(filepath.Join(l.opts.ProcRoot, "sys", "vm", "compact_memory"), "1")
}

func (l *linux) flushModifiedPages(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.opts.Sync()
	return nil
}

// dropCaches writes mode to drop_caches after a sync; "1" drops the page cache
// only, "3" also drops dentries and inodes.
func (l *linux) dropCaches(mode string) Action {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.opts.Sync()
		return writeControl(filepath.Join(l.opts.ProcRoot, "sys", "vm", "drop_caches"), mode)
	}
}

func writeControl(path, value string) error {
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	if _, err := file.WriteString(value); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func readUint(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}
