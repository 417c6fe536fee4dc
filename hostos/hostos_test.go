package hostos

import "testing"

func TestCollectSnapshot_HostnamePopulated(t *testing.T) {
	snap := CollectSnapshot(".")
	if snap.Hostname == "" {
		t.Error("expected non-empty hostname")
	}
}

func TestCollectSnapshot_DiskUsageWithinCapacity(t *testing.T) {
	snap := CollectSnapshot(".")
	if snap.DiskCapacity > 0 && snap.DiskUsed > snap.DiskCapacity {
		t.Errorf("DiskUsed %d exceeds DiskCapacity %d", snap.DiskUsed, snap.DiskCapacity)
	}
}

func TestCollectSnapshot_MemoryUsageWithinCapacity(t *testing.T) {
	snap := CollectSnapshot(".")
	if snap.MemoryCapacity > 0 && snap.MemoryUsed > snap.MemoryCapacity {
		t.Errorf("MemoryUsed %d exceeds MemoryCapacity %d", snap.MemoryUsed, snap.MemoryCapacity)
	}
}

func TestCollectSnapshot_CPUPercentInRange(t *testing.T) {
	snap := CollectSnapshot(".")
	if snap.CPUPercent < 0 || snap.CPUPercent > 100 {
		t.Errorf("CPUPercent %f out of [0,100] range", snap.CPUPercent)
	}
}

func TestKillProcessTree_InvalidPid(t *testing.T) {
	// A very large pid is unlikely to be live; either branch of
	// KillProcessTree should return an error, not panic.
	if err := KillProcessTree(1 << 30); err == nil {
		t.Log("KillProcessTree did not error for an implausible pid; acceptable if the platform allows probing non-existent pids")
	}
}
