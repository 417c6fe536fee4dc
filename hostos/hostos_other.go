//go:build !linux

package hostos

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("hostos: not supported on this platform")

// Uptime is unsupported outside Linux in this build; CollectSnapshot leaves
// UptimeMinutes zero rather than failing the whole snapshot.
func Uptime() (time.Duration, error) {
	return 0, errUnsupported
}

// DiskUsage is unsupported outside Linux in this build.
func DiskUsage(path string) (capacity, used uint64, err error) {
	return 0, 0, errUnsupported
}

// CPUPercent is unsupported outside Linux in this build.
func CPUPercent(window time.Duration) (float64, error) {
	return 0, errUnsupported
}

// MemoryUsage is unsupported outside Linux in this build.
func MemoryUsage() (capacity, used uint64, err error) {
	return 0, 0, errUnsupported
}

func killTree(pid int) error {
	return errUnsupported
}

// FlushDNS is a no-op outside Linux in this build.
func FlushDNS() error {
	return nil
}

// RebootHost is unsupported outside Linux in this build.
func RebootHost() error {
	return errUnsupported
}
