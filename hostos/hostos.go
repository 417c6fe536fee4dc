// Package hostos provides the OS-level primitives RunController and
// HealthReporter need: process tree teardown, free-disk probing, uptime,
// and DNS cache flushing. The concrete syscalls are split per-platform in
// hostos_linux.go / hostos_other.go, following the flock/SysProcAttr split
// in the browser-reuse subprocess launcher this package is grounded on.
package hostos

import (
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Snapshot is the set of host facts HealthReporter folds into a
// diagnostics payload.
type Snapshot struct {
	Hostname        string
	UptimeMinutes   int
	DiskCapacity    uint64
	DiskUsed        uint64
	CPUPercent      float64
	MemoryCapacity  uint64
	MemoryUsed      uint64
}

// cpuSampleWindow is how long CollectSnapshot blocks sampling /proc/stat
// to compute a CPU busy percentage. HealthReporter only calls this once a
// minute, so a short synchronous sample is cheap relative to its period.
const cpuSampleWindow = 200 * time.Millisecond

// CollectSnapshot gathers the host facts available on this platform.
// Probes that fail (e.g. statfs on an unsupported platform) leave their
// fields zero rather than failing the whole snapshot. CPU sampling blocks
// for cpuSampleWindow; callers on a tight loop should not call this more
// often than HealthReporter does.
func CollectSnapshot(workDir string) Snapshot {
	snap := Snapshot{}

	if hostname, err := os.Hostname(); err == nil {
		snap.Hostname = hostname
	}

	if uptime, err := Uptime(); err == nil {
		snap.UptimeMinutes = int(uptime / time.Minute)
	}

	if capacity, used, err := DiskUsage(workDir); err == nil {
		snap.DiskCapacity = capacity
		snap.DiskUsed = used
	}

	if percent, err := CPUPercent(cpuSampleWindow); err == nil {
		snap.CPUPercent = percent
	}

	if capacity, used, err := MemoryUsage(); err == nil {
		snap.MemoryCapacity = capacity
		snap.MemoryUsed = used
	}

	return snap
}

// KillProcessTree terminates pid and any children it spawned. Child
// processes (capture back-ends) are tracked by the caller via exec.Cmd;
// this is the fallback for processes that escape that tracking (e.g. a
// browser that forked helper processes).
func KillProcessTree(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("hostos: find process %d: %w", pid, err)
	}
	if err := killTree(pid); err != nil {
		// Fall back to killing just the named process.
		return proc.Kill()
	}
	return nil
}

// runCommand runs name with args and waits for it to exit; the
// per-platform files use it to shell out to resolvectl and shutdown.
func runCommand(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	return cmd.Run()
}
