package runtime

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wptagent/agent/types"
)

// loadIdleReason names which of the five priority-ordered termination
// conditions ended a recording step.
type loadIdleReason int

const (
	loadIdleReasonNone loadIdleReason = iota
	loadIdleReasonNavigationError
	loadIdleReasonTimeBudget
	loadIdleReasonRequestOverflow
	loadIdleReasonWaitFor
	loadIdleReasonActivityQuiet
)

// loadIdleWait implements RunController's load-idle termination predicate
// as an EventSink: it watches the devtools StepEvent stream for
// checkpoint signals the BrowserDriver reports (navigation error, load
// event, per-request activity, optional waitfor satisfaction) and applies
// the five conditions in priority order on its own clock, independent of
// how the driver detects the underlying devtools signals.
type loadIdleWait struct {
	mu sync.Mutex

	runStart           time.Time
	timeoutSeconds      int
	scriptStepCount     int
	maxRequests         int // 0 = unbounded
	minimumTestSeconds  int
	waitFor             string
	activityTimeoutMs   time.Duration

	navigationError bool
	hasLoad         bool
	loadEventAt     time.Time
	lastActivityAt  time.Time
	requestCount    int
	waitForSatisfied bool

	done   chan struct{}
	once   sync.Once
	reason loadIdleReason
	result int
}

func newLoadIdleWait(task *types.Task, timeoutSeconds, activityTimeoutMs, maxRequests, minimumTestSeconds int, waitFor string) *loadIdleWait {
	now := time.Now()
	return &loadIdleWait{
		runStart:           now,
		timeoutSeconds:     timeoutSeconds,
		scriptStepCount:    max(task.ScriptStepCount, 1),
		maxRequests:        maxRequests,
		minimumTestSeconds: minimumTestSeconds,
		waitFor:            waitFor,
		activityTimeoutMs:  time.Duration(activityTimeoutMs) * time.Millisecond,
		lastActivityAt:     now,
		done:               make(chan struct{}),
	}
}

// IngestEvent implements EventSink. It never blocks and never returns an
// error that would terminate the task; load-idle conditions are surfaced
// through Wait, not through ingestion failures.
func (w *loadIdleWait) IngestEvent(_ context.Context, event *types.StepEvent) error {
	switch event.Type {
	case types.StepEventRequest:
		w.mu.Lock()
		w.requestCount++
		w.lastActivityAt = time.Now()
		w.mu.Unlock()
	case types.StepEventCheckpoint:
		w.applyCheckpoint(event)
	case types.StepEventProgress:
		w.mu.Lock()
		w.lastActivityAt = time.Now()
		w.mu.Unlock()
	}
	w.evaluate()
	return nil
}

// IngestArtifactChunk implements EventSink; artifact traffic is activity.
func (w *loadIdleWait) IngestArtifactChunk(_ context.Context, _ *types.ArtifactChunk) error {
	w.mu.Lock()
	w.lastActivityAt = time.Now()
	w.mu.Unlock()
	return nil
}

func (w *loadIdleWait) applyCheckpoint(event *types.StepEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	note, _ := event.Payload["checkpoint_id"].(string)
	switch note {
	case "navigation_error":
		w.navigationError = true
	case "load_event":
		w.hasLoad = true
		w.loadEventAt = time.Now()
	case "waitfor_satisfied":
		w.waitForSatisfied = true
	default:
		if strings.HasPrefix(note, "waitfor:") {
			if note == "waitfor:"+w.waitFor {
				w.waitForSatisfied = true
			}
		}
	}
	w.lastActivityAt = time.Now()
}

// evaluate checks the five termination conditions in priority order and
// signals Done with the first one that fires.
func (w *loadIdleWait) evaluate() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reason != loadIdleReasonNone {
		return
	}

	now := time.Now()
	elapsed := now.Sub(w.runStart)

	// 1. Navigation error with no prior load. This condition bypasses
	// minimumTestSeconds: a navigation error is already terminal, so
	// there is no load in progress for the minimum-duration gate to
	// protect.
	if w.navigationError && !w.hasLoad {
		w.finish(loadIdleReasonNavigationError, types.ResultDriverLaunchFailed)
		return
	}

	minElapsed := time.Duration(w.minimumTestSeconds) * time.Second
	if w.minimumTestSeconds > 0 && elapsed < minElapsed {
		return
	}

	// 2. Time budget exhausted without load.
	budget := time.Duration(w.timeoutSeconds*w.scriptStepCount) * time.Second
	if elapsed >= budget && !w.hasLoad {
		w.finish(loadIdleReasonTimeBudget, types.ResultPageLoadTimeout)
		return
	}

	// 3. Max requests exceeded without load.
	if w.maxRequests > 0 && w.requestCount > w.maxRequests && !w.hasLoad {
		w.finish(loadIdleReasonRequestOverflow, types.ResultRequestOverflow)
		return
	}

	// 4. Optional waitfor script satisfied.
	if w.waitFor != "" && w.waitForSatisfied {
		w.finish(loadIdleReasonWaitFor, types.ResultSuccess)
		return
	}

	// 5. Load observed and activity/quiet window elapsed.
	if w.hasLoad {
		activityQuiet := now.Sub(w.lastActivityAt) >= w.activityTimeoutMs
		postLoadQuiet := now.Sub(w.loadEventAt) >= time.Second
		if activityQuiet && postLoadQuiet {
			w.finish(loadIdleReasonActivityQuiet, types.ResultSuccess)
		}
	}
}

func (w *loadIdleWait) finish(reason loadIdleReason, result int) {
	w.reason = reason
	w.result = result
	w.once.Do(func() { close(w.done) })
}

// Wait blocks until a termination condition fires or ctx is canceled
// (reported as a time-budget timeout), evaluating on a 100ms tick.
func (w *loadIdleWait) Wait(ctx context.Context) (loadIdleReason, int) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			w.mu.Lock()
			defer w.mu.Unlock()
			return w.reason, w.result
		case <-ctx.Done():
			return loadIdleReasonTimeBudget, types.ResultPageLoadTimeout
		case <-ticker.C:
			w.evaluate()
		}
	}
}

// String returns the reason's name, for logging.
func (r loadIdleReason) String() string {
	switch r {
	case loadIdleReasonNavigationError:
		return "navigation_error"
	case loadIdleReasonTimeBudget:
		return "time_budget"
	case loadIdleReasonRequestOverflow:
		return "request_overflow"
	case loadIdleReasonWaitFor:
		return "waitfor"
	case loadIdleReasonActivityQuiet:
		return "activity_quiet"
	default:
		return "none:" + strconv.Itoa(int(r))
	}
}
