//go:build linux

package hostos

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Uptime reads /proc/uptime.
func Uptime() (time.Duration, error) {
	f, err := os.Open("/proc/uptime")
	if err != nil {
		return 0, fmt.Errorf("hostos: open /proc/uptime: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, fmt.Errorf("hostos: empty /proc/uptime")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) == 0 {
		return 0, fmt.Errorf("hostos: malformed /proc/uptime")
	}
	secs, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("hostos: parse /proc/uptime: %w", err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// DiskUsage reports capacity and used bytes for the filesystem containing
// path, via statfs(2).
func DiskUsage(path string) (capacity, used uint64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, fmt.Errorf("hostos: statfs %s: %w", path, err)
	}
	capacity = stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	if free > capacity {
		free = capacity
	}
	used = capacity - free
	return capacity, used, nil
}

// cpuTimes holds the jiffie counters read from /proc/stat's aggregate
// "cpu" line, in the order the kernel documents them.
type cpuTimes struct {
	user, nice, system, idle, iowait, irq, softirq, steal uint64
}

func (t cpuTimes) total() uint64 {
	return t.user + t.nice + t.system + t.idle + t.iowait + t.irq + t.softirq + t.steal
}

func (t cpuTimes) busy() uint64 {
	return t.total() - t.idle - t.iowait
}

func readCPUTimes() (cpuTimes, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return cpuTimes{}, fmt.Errorf("hostos: open /proc/stat: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return cpuTimes{}, fmt.Errorf("hostos: empty /proc/stat")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 9 || fields[0] != "cpu" {
		return cpuTimes{}, fmt.Errorf("hostos: malformed /proc/stat aggregate line")
	}

	vals := make([]uint64, 8)
	for i := range vals {
		v, err := strconv.ParseUint(fields[i+1], 10, 64)
		if err != nil {
			return cpuTimes{}, fmt.Errorf("hostos: parse /proc/stat field %d: %w", i, err)
		}
		vals[i] = v
	}
	return cpuTimes{
		user: vals[0], nice: vals[1], system: vals[2], idle: vals[3],
		iowait: vals[4], irq: vals[5], softirq: vals[6], steal: vals[7],
	}, nil
}

// CPUPercent samples /proc/stat twice, window apart, and returns the
// fraction of CPU time busy (non-idle, non-iowait) across that interval.
func CPUPercent(window time.Duration) (float64, error) {
	before, err := readCPUTimes()
	if err != nil {
		return 0, err
	}
	time.Sleep(window)
	after, err := readCPUTimes()
	if err != nil {
		return 0, err
	}

	totalDelta := after.total() - before.total()
	if totalDelta == 0 {
		return 0, nil
	}
	busyDelta := after.busy() - before.busy()
	return float64(busyDelta) / float64(totalDelta) * 100, nil
}

// MemoryUsage reports total and used memory in bytes, from /proc/meminfo.
// Used is derived as MemTotal-MemAvailable, matching what most monitoring
// tools report as "in use" (excludes reclaimable cache/buffers).
func MemoryUsage() (capacity, used uint64, err error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0, fmt.Errorf("hostos: open /proc/meminfo: %w", err)
	}
	defer f.Close()

	var total, available uint64
	var haveTotal, haveAvailable bool

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch strings.TrimSuffix(fields[0], ":") {
		case "MemTotal":
			if v, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
				total = v * 1024
				haveTotal = true
			}
		case "MemAvailable":
			if v, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
				available = v * 1024
				haveAvailable = true
			}
		}
		if haveTotal && haveAvailable {
			break
		}
	}
	if !haveTotal {
		return 0, 0, fmt.Errorf("hostos: /proc/meminfo missing MemTotal")
	}
	if !haveAvailable {
		return total, 0, nil
	}
	if available > total {
		available = total
	}
	return total, total - available, nil
}

// killTree kills pid's process group. Callers launch capture subprocesses
// with Setpgid so this reaches children without tracking them individually.
func killTree(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// FlushDNS flushes the system resolver cache, best-effort: most Linux
// distributions have no single authoritative cache to drop, so this is a
// no-op unless systemd-resolved is present.
func FlushDNS() error {
	return runCommand("resolvectl", "flush-caches")
}

// RebootHost issues an immediate host reboot. This is the last resort the
// Dispatcher reaches for after sustained acquire failure or a coordinator
// "Reboot" response.
func RebootHost() error {
	return runCommand("shutdown", "-r", "now")
}
