//go:build !linux

package memory

import "errors"

func sysinfoMemory() (uint64, uint64, error) {
	return 0, 0, errors.New("sysinfo not supported on this platform")
}
