package runtime

import (
	"testing"

	"github.com/wptagent/agent/types"
)

func newTestJob(runs int, firstViewOnly bool, warmupRuns int) *types.Job {
	return &types.Job{
		TestID:        "test123",
		URL:           "https://example.com",
		Runs:          runs,
		FirstViewOnly: firstViewOnly,
		WarmupRuns:    warmupRuns,
	}
}

type producedTask struct {
	run    int
	cached bool
	warmup bool
}

func drainAll(t *testing.T, c *RunController) []producedTask {
	t.Helper()
	var out []producedTask
	for {
		run, cached, warmup, ok := c.AdvanceState()
		if !ok {
			return out
		}
		out = append(out, producedTask{run, cached, warmup})
	}
}

func TestAdvanceState_TwoRunsNoWarmup(t *testing.T) {
	job := newTestJob(2, false, 0)
	c, err := NewRunController(job, 0)
	if err != nil {
		t.Fatalf("NewRunController: %v", err)
	}

	got := drainAll(t, c)
	want := []producedTask{
		{1, false, false}, {1, true, false},
		{2, false, false}, {2, true, false},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d tasks, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("task %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestAdvanceState_FirstViewOnlySkipsCached(t *testing.T) {
	job := newTestJob(3, true, 0)
	c, err := NewRunController(job, 0)
	if err != nil {
		t.Fatalf("NewRunController: %v", err)
	}

	got := drainAll(t, c)
	want := []producedTask{{1, false, false}, {2, false, false}, {3, false, false}}
	if len(got) != len(want) {
		t.Fatalf("got %d tasks, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("task %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestAdvanceState_WarmupRunsFirstAtRunOne(t *testing.T) {
	job := newTestJob(1, false, 2)
	c, err := NewRunController(job, 0)
	if err != nil {
		t.Fatalf("NewRunController: %v", err)
	}

	got := drainAll(t, c)
	want := []producedTask{
		{1, false, true}, {1, false, true},
		{1, false, false}, {1, true, false},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d tasks, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("task %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestAdvanceState_DoneAfterLastRun(t *testing.T) {
	job := newTestJob(1, false, 0)
	c, err := NewRunController(job, 0)
	if err != nil {
		t.Fatalf("NewRunController: %v", err)
	}
	drainAll(t, c)
	if !job.State.Done {
		t.Error("expected job.State.Done after draining all tasks")
	}
	if _, _, _, ok := c.AdvanceState(); ok {
		t.Error("AdvanceState should return ok=false once done")
	}
}

func TestNextTask_PrefixAndPort(t *testing.T) {
	job := newTestJob(1, false, 0)
	c, err := NewRunController(job, 250)
	if err != nil {
		t.Fatalf("NewRunController: %v", err)
	}

	first, err := c.NextTask()
	if err != nil {
		t.Fatalf("NextTask: %v", err)
	}
	if first.Prefix != "test123_1" {
		t.Errorf("Prefix = %q, want test123_1", first.Prefix)
	}
	if first.Cached {
		t.Error("first task should not be cached")
	}

	second, err := c.NextTask()
	if err != nil {
		t.Fatalf("NextTask: %v", err)
	}
	if second.Prefix != "test123_1_Cached" {
		t.Errorf("Prefix = %q, want test123_1_Cached", second.Prefix)
	}
	if second.DevtoolsPort == first.DevtoolsPort {
		t.Error("expected devtools port to change between tasks")
	}

	third, err := c.NextTask()
	if err != nil {
		t.Fatalf("NextTask: %v", err)
	}
	if third != nil {
		t.Errorf("expected nil task once job is done, got %+v", third)
	}
}
