package runtime

import (
	"fmt"
	"strconv"

	"github.com/wptagent/agent/script"
	"github.com/wptagent/agent/types"
)

// RunController drives a single Job's run×view state machine, producing one
// Task per call to NextTask until the job is done.
type RunController struct {
	job          *types.Job
	compiled     *script.CompiledScript
	testRunCount int // monotonic counter across this process's lifetime, for port allocation
	taskSeq      int

	// driverFactory builds the driverHandle DriveTask drives. Defaults to a
	// real subprocess (NewDriverProcess); tests substitute a fake to drive
	// DriveTask/DriveJob without spawning a browser driver.
	driverFactory func(*DriverConfig) driverHandle
}

// NewRunController compiles job's script once and prepares a controller to
// drive it. The job's State must be the zero JobState (run=1, not done).
func NewRunController(job *types.Job, testRunCount int) (*RunController, error) {
	compiled, err := script.Compile(job)
	if err != nil {
		return nil, fmt.Errorf("runcontroller: compile script: %w", err)
	}
	if job.State.Run == 0 {
		job.State.Run = 1
	}
	job.WarmupCountdown = job.WarmupRuns
	return &RunController{
		job:           job,
		compiled:      compiled,
		testRunCount:  testRunCount,
		driverFactory: func(cfg *DriverConfig) driverHandle { return NewDriverProcess(cfg) },
	}, nil
}

// AdvanceState applies the transition rules to job.State and returns the
// (run, cached, warmup) the NEXT produced task should use, or ok=false when
// the job's state machine has terminated.
//
// States are (run, repeat_view, done). A warmup task is produced, without
// touching (run, repeat_view), whenever warmup_countdown > 0. Otherwise:
// repeat_view=false means the run's first (uncached) view has not been
// produced yet; producing it sets repeat_view=true unless first_view_only,
// in which case the run is immediately complete. repeat_view=true means the
// first view is done, so the next task produced is the run's repeat
// (cached) view, after which run advances and repeat_view resets to false.
// The job is done once run exceeds runs.
func (c *RunController) AdvanceState() (run int, cached bool, warmup bool, ok bool) {
	st := &c.job.State
	if st.Done {
		return 0, false, false, false
	}
	if st.Run > c.job.Runs {
		st.Done = true
		return 0, false, false, false
	}

	if c.job.WarmupCountdown > 0 {
		c.job.WarmupCountdown--
		return st.Run, false, true, true
	}

	if !st.RepeatView {
		run = st.Run
		if c.job.FirstViewOnly {
			st.Run++
		} else {
			st.RepeatView = true
		}
		if st.Run > c.job.Runs {
			st.Done = true
		}
		return run, false, false, true
	}

	run = st.Run
	st.Run++
	st.RepeatView = false
	if st.Run > c.job.Runs {
		st.Done = true
	}
	return run, true, false, true
}

// NextTask produces the next Task in the job's run×view sequence, or nil
// when the job is done. Per-task script, block list, host rules, and DNS
// overrides are copied from the compiled script; the devtools port is
// allocated from the process-wide test-run counter.
func (c *RunController) NextTask() (*types.Task, error) {
	run, cached, warmup, ok := c.AdvanceState()
	if !ok {
		return nil, nil
	}

	c.taskSeq++
	c.testRunCount++

	prefix := fmt.Sprintf("%s_%d", c.job.TestID, run)
	if cached {
		prefix += "_Cached"
	}
	videoSubdir := "video_" + prefix

	task := &types.Task{
		ID:                fmt.Sprintf("%s-%d", c.job.TestID, c.taskSeq),
		Run:               run,
		Cached:            cached,
		Warmup:            warmup,
		Prefix:            prefix,
		VideoSubdirectory: videoSubdir,
		Script:            append([]types.Command(nil), c.compiled.Commands...),
		ScriptStepCount:   c.compiled.ScriptStepCount,
		BlockList:         c.compiled.BlockList,
		HostRules:         c.compiled.HostRules,
		DNSOverride:       c.compiled.DNSOverride,
		CombineSteps:      c.compiled.CombineSteps,
		DevtoolsPort:      AllocatePort(c.testRunCount),
		Step:              1,
	}
	return task, nil
}

// Job returns the job this controller drives.
func (c *RunController) Job() *types.Job { return c.job }

// taskLabel returns a short human label for logging, e.g. "run 2 cached".
func taskLabel(t *types.Task) string {
	label := "run " + strconv.Itoa(t.Run)
	if t.Cached {
		label += " cached"
	}
	if t.Warmup {
		label += " warmup"
	}
	return label
}
