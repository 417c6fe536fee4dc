package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/wptagent/agent/types"
)

func newTestTask() *types.Task {
	return &types.Task{ID: "t1", ScriptStepCount: 1}
}

func TestLoadIdleWait_NavigationErrorWithoutLoad(t *testing.T) {
	w := newLoadIdleWait(newTestTask(), 30, 2000, 0, 0, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = w.IngestEvent(ctx, &types.StepEvent{Type: types.StepEventCheckpoint, Payload: map[string]any{"checkpoint_id": "navigation_error"}})

	reason, result := w.Wait(ctx)
	if reason != loadIdleReasonNavigationError {
		t.Errorf("reason = %v, want navigation error", reason)
	}
	if result != types.ResultDriverLaunchFailed {
		t.Errorf("result = %d, want %d", result, types.ResultDriverLaunchFailed)
	}
}

func TestLoadIdleWait_TimeBudgetExhaustedWithoutLoad(t *testing.T) {
	w := newLoadIdleWait(newTestTask(), 0, 2000, 0, 0, "")
	// timeoutSeconds=0 means the time budget is exhausted immediately.
	reason, result := w.Wait(context.Background())
	if reason != loadIdleReasonTimeBudget {
		t.Errorf("reason = %v, want time budget", reason)
	}
	if result != types.ResultPageLoadTimeout {
		t.Errorf("result = %d, want %d", result, types.ResultPageLoadTimeout)
	}
}

func TestLoadIdleWait_RequestOverflowWithoutLoad(t *testing.T) {
	w := newLoadIdleWait(newTestTask(), 30, 2000, 2, 0, "")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = w.IngestEvent(ctx, &types.StepEvent{Type: types.StepEventRequest})
	}
	reason, result := w.Wait(ctx)
	if reason != loadIdleReasonRequestOverflow {
		t.Errorf("reason = %v, want request overflow", reason)
	}
	if result != types.ResultRequestOverflow {
		t.Errorf("result = %d, want %d", result, types.ResultRequestOverflow)
	}
}

func TestLoadIdleWait_WaitForSatisfied(t *testing.T) {
	w := newLoadIdleWait(newTestTask(), 30, 2000, 0, 0, "customCheck")
	ctx := context.Background()
	_ = w.IngestEvent(ctx, &types.StepEvent{Type: types.StepEventCheckpoint, Payload: map[string]any{"checkpoint_id": "waitfor:customCheck"}})

	reason, result := w.Wait(ctx)
	if reason != loadIdleReasonWaitFor {
		t.Errorf("reason = %v, want waitfor", reason)
	}
	if result != types.ResultSuccess {
		t.Errorf("result = %d, want %d", result, types.ResultSuccess)
	}
}

func TestLoadIdleWait_LoadThenActivityQuiet(t *testing.T) {
	w := newLoadIdleWait(newTestTask(), 30, 50, 0, 0, "")
	ctx := context.Background()

	_ = w.IngestEvent(ctx, &types.StepEvent{Type: types.StepEventCheckpoint, Payload: map[string]any{"checkpoint_id": "load_event"}})

	reason, result := w.Wait(ctx)
	if reason != loadIdleReasonActivityQuiet {
		t.Errorf("reason = %v, want activity quiet", reason)
	}
	if result != types.ResultSuccess {
		t.Errorf("result = %d, want %d", result, types.ResultSuccess)
	}
}

func TestLoadIdleWait_NavigationErrorBypassesMinimumTestSeconds(t *testing.T) {
	w := newLoadIdleWait(newTestTask(), 30, 2000, 0, 30, "")
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	// minimumTestSeconds=30 would otherwise suppress evaluation for the
	// whole test; navigation error must still surface immediately.
	_ = w.IngestEvent(ctx, &types.StepEvent{Type: types.StepEventCheckpoint, Payload: map[string]any{"checkpoint_id": "navigation_error"}})

	reason, result := w.Wait(ctx)
	if reason != loadIdleReasonNavigationError {
		t.Errorf("reason = %v, want navigation error", reason)
	}
	if result != types.ResultDriverLaunchFailed {
		t.Errorf("result = %d, want %d", result, types.ResultDriverLaunchFailed)
	}
}

func TestLoadIdleWait_MinimumTestSecondsDelaysEvaluation(t *testing.T) {
	w := newLoadIdleWait(newTestTask(), 0, 2000, 0, 1, "")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// The time-budget condition would fire immediately without the minimum
	// test duration gate; instead Wait should fall through to the context
	// deadline fallback since evaluate() never runs the checks.
	reason, result := w.Wait(ctx)
	if reason != loadIdleReasonTimeBudget {
		t.Errorf("reason = %v", reason)
	}
	if result != types.ResultPageLoadTimeout {
		t.Errorf("result = %d", result)
	}
}
