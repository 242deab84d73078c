//go:build !linux

package sizing

import "runtime"

// Without sysinfo, the Go heap's view of system memory is the best
// conservative figure available.
func freeMemoryGB() (float64, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.Sys-ms.HeapInuse) / bytesPerGB, nil
}
