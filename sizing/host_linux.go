//go:build linux

package sizing

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func freeMemoryGB() (float64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("sizing: sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	free := (uint64(info.Freeram) + uint64(info.Bufferram)) * unit
	return float64(free) / bytesPerGB, nil
}
