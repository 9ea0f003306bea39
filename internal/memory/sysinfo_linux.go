//go:build linux

package memory

import "golang.org/x/sys/unix"

func sysinfoMemory() (uint64, uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, 0, err
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	total := uint64(info.Totalram) * unit
	available := (uint64(info.Freeram) + uint64(info.Bufferram)) * unit
	return total, available, nil
}
