package memory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNoMemInfo is returned when neither /proc/meminfo nor sysinfo(2) yield data.
var ErrNoMemInfo = errors.New("memory information unavailable")

// ProcSampler reads memory statistics from procfs, falling back to sysinfo(2).
type ProcSampler struct {
	procRoot string
	now      func() time.Time
	sysinfo  func() (total, available uint64, err error)
}

// NewProcSampler builds a sampler rooted at procRoot (normally "/proc").
func NewProcSampler(procRoot string) *ProcSampler {
	if strings.TrimSpace(procRoot) == "" {
		procRoot = "/proc"
	}
	return &ProcSampler{procRoot: procRoot, now: time.Now, sysinfo: sysinfoMemory}
}

// Sample returns the current memory snapshot.
func (p *ProcSampler) Sample(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	total, available, err := p.readMeminfo()
	if err != nil {
		var sysErr error
		total, available, sysErr = p.sysinfo()
		if sysErr != nil {
			return Snapshot{}, fmt.Errorf("%w: meminfo: %v; sysinfo: %v", ErrNoMemInfo, err, sysErr)
		}
	}
	return NewSnapshot(total, available, p.now()), nil
}

func (p *ProcSampler) readMeminfo() (uint64, uint64, error) {
	file, err := os.Open(filepath.Join(p.procRoot, "meminfo"))
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()
	return parseMeminfo(file)
}

// parseMeminfo extracts MemTotal and MemAvailable. Kernels older than 3.14
// lack MemAvailable, in which case free + buffers + cached approximates it.
func parseMeminfo(r io.Reader) (uint64, uint64, error) {
	fields := make(map[string]uint64, 8)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		switch key {
		case "MemTotal", "MemAvailable", "MemFree", "Buffers", "Cached":
		default:
			continue
		}
		parts := strings.Fields(rest)
		if len(parts) == 0 {
			continue
		}
		value, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("parse %s: %w", key, err)
		}
		if len(parts) > 1 && strings.EqualFold(parts[1], "kB") {
			value *= 1024
		}
		fields[key] = value
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, fmt.Errorf("read meminfo: %w", err)
	}

	total, ok := fields["MemTotal"]
	if !ok || total == 0 {
		return 0, 0, errors.New("meminfo: MemTotal missing")
	}
	available, ok := fields["MemAvailable"]
	if !ok {
		available = fields["MemFree"] + fields["Buffers"] + fields["Cached"]
	}
	return total, available, nil
}
