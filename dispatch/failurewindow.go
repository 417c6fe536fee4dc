package dispatch

import (
	"sync"
	"time"
)

const (
	rebootFailureThreshold = 3
	rebootWindow           = 30 * time.Minute
)

// failureWindow tracks consecutive acquire failures within a sliding
// window. Reaching rebootFailureThreshold within rebootWindow signals the
// Dispatcher should escalate a host reboot.
type failureWindow struct {
	mu       sync.Mutex
	failures []time.Time
}

// RecordFailure appends a failure timestamp and reports whether the
// threshold has been reached within the window.
func (f *failureWindow) RecordFailure(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failures = append(f.failures, now)
	cutoff := now.Add(-rebootWindow)
	kept := f.failures[:0]
	for _, t := range f.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	f.failures = kept

	return len(f.failures) >= rebootFailureThreshold
}

// RecordSuccess clears the failure history.
func (f *failureWindow) RecordSuccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = nil
}
