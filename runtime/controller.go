package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wptagent/agent/log"
	"github.com/wptagent/agent/types"
)

// agentIdentitySuffix is appended to a task's user agent unless the job
// suppresses it.
const agentIdentitySuffix = "PTST-agent"

// TaskResult is what DriveTask hands to ArtifactProcessor/ResultAssembler:
// the task as driven (including its accumulated artifacts) plus its outcome.
type TaskResult struct {
	Task      *types.Task
	Outcome   types.TaskOutcome
	Artifacts *ArtifactManager
}

// DriveOptions configures one DriveTask invocation.
type DriveOptions struct {
	DriverPath         string
	WorkDirRoot        string
	BrowserWSEndpoint  string // shared browser, or "" to let the driver launch its own
	Shaper             *types.ShaperProfile
	// NewFileWriter builds the FileWriter for one task's working
	// directory, called once per DriveTask after that task's directory
	// has been created. May be nil, in which case file_write frames fail
	// ingestion for that task.
	NewFileWriter      func(workDir string) FileWriter
	MaxRequests        int
	MinimumTestSeconds int
	WaitFor            string
	SuppressUAIdentity bool
}

// DriveTask drives one Task against a BrowserDriver subprocess end to end:
// creates its working directory, launches the driver, ingests its devtools
// event stream while running the load-idle wait, waits for the process to
// exit, and classifies the outcome. Any non-fatal task error terminates
// only this task; the caller's run-state machine still advances via the
// next NextTask call.
func (c *RunController) DriveTask(ctx context.Context, task *types.Task, lineage *types.JobLineage, logger *log.Logger, opts DriveOptions) (*TaskResult, error) {
	workDir, err := ensureTaskWorkDir(opts.WorkDirRoot, task)
	if err != nil {
		return nil, fmt.Errorf("drive task: %w", err)
	}
	task.WorkDir = workDir

	ua := effectiveUserAgent(c.job, opts.SuppressUAIdentity)

	driver := c.driverFactory(&DriverConfig{
		DriverPath:        opts.DriverPath,
		Task:              task,
		Lineage:           lineage,
		Shaper:            opts.Shaper,
		BrowserWSEndpoint: opts.BrowserWSEndpoint,
		UserAgent:         ua,
	})

	if err := driver.Start(ctx); err != nil {
		return &TaskResult{
			Task:    task,
			Outcome: types.TaskOutcome{Status: types.TaskOutcomeCrash, Message: fmt.Sprintf("failed to launch browser driver: %v", err)},
		}, nil
	}

	artifacts := NewArtifactManager()
	wait := newLoadIdleWait(task, c.job.TimeoutSeconds, c.job.ActivityTimeoutMs, opts.MaxRequests, opts.MinimumTestSeconds, opts.WaitFor)

	var fileWriter FileWriter
	if opts.NewFileWriter != nil {
		fileWriter = opts.NewFileWriter(workDir)
	}
	engine := NewIngestionEngine(driver.Stdout(), wait, artifacts, fileWriter, logger, lineage, driver.Stdin())

	var ingestErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ingestErr = engine.Run(ctx)
	}()

	reason, _ := wait.Wait(ctx)
	logger.Debug("load-idle resolved", map[string]any{"task": task.ID, "reason": reason.String()})

	// loadIdleWait is the sole authoritative decision-maker: the driver does
	// not stop itself when a condition fires, so Kill forces the subprocess
	// down now rather than leaving ingestion to block on a stream that may
	// never close on its own (e.g. a hung page with no terminal event).
	// When the driver already exited on its own, the process is already
	// gone and Kill is a harmless no-op; Wait does not watch the stream, so
	// an early exit does not by itself end the load-idle wait.
	if err := driver.Kill(); err != nil {
		logger.Debug("killing driver after load-idle resolution failed (likely already exited)", map[string]any{"task": task.ID, "error": err.Error()})
	}

	// Ingestion keeps running (to drain the terminal event / task_result
	// control frame) until the stream actually closes; only then is it safe
	// to wait on process exit, avoiding a stdout-pipe-closed race.
	wg.Wait()
	_ = driver.Stdin().Close()

	procResult, waitErr := driver.Wait()
	if waitErr != nil {
		return &TaskResult{
			Task:    task,
			Outcome: types.TaskOutcome{Status: types.TaskOutcomeCrash, Message: waitErr.Error()},
		}, nil
	}

	terminalEvent, hasTerminal := engine.GetTerminalEvent()
	outcome := DetermineOutcome(procResult.ExitCode, hasTerminal, terminalEvent)

	if ingestErr != nil && !IsCanceledError(ingestErr) {
		logger.Warn("ingestion ended with error", map[string]any{"task": task.ID, "error": ingestErr.Error()})
		if outcome.Status == types.TaskOutcomeCompleted {
			// The process exited cleanly but ingestion itself failed
			// (stream/sink error); that takes precedence.
			outcome = types.TaskOutcome{Status: types.TaskOutcomeCrash, Message: ingestErr.Error()}
		}
	}

	if orphans := artifacts.GetOrphanIDs(); len(orphans) > 0 {
		logger.Warn("task ended with uncommitted artifacts", map[string]any{"task": task.ID, "orphans": orphans})
	}

	written, writeErr := artifacts.WriteCommittedArtifacts(workDir)
	if writeErr != nil {
		logger.Warn("writing committed artifacts failed", map[string]any{"task": task.ID, "error": writeErr.Error()})
	} else {
		logger.Debug("wrote committed artifacts", map[string]any{"task": task.ID, "files": written})
	}

	return &TaskResult{Task: task, Outcome: outcome, Artifacts: artifacts}, nil
}

// ensureTaskWorkDir creates and returns the task's working directory.
func ensureTaskWorkDir(root string, task *types.Task) (string, error) {
	dir := filepath.Join(root, task.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create task work dir %s: %w", dir, err)
	}
	return dir, nil
}

// effectiveUserAgent appends the agent identity suffix to the job's UA
// override unless the agent config suppresses it.
func effectiveUserAgent(job *types.Job, suppress bool) string {
	base := job.Headers["User-Agent"]
	if base == "" || suppress {
		return base
	}
	if strings.Contains(base, agentIdentitySuffix) {
		return base
	}
	return base + " " + agentIdentitySuffix
}

// DriveJob drives every task NextTask produces for job in sequence until
// the run×view state machine is done, calling onTask after each task
// completes (including warmup tasks, whose upload onTask is responsible for
// discarding per Task.Warmup).
func (c *RunController) DriveJob(ctx context.Context, lineage *types.JobLineage, logger *log.Logger, opts DriveOptions, onTask func(*TaskResult)) error {
	var sharedBrowser *ManagedBrowser
	defer func() {
		if sharedBrowser != nil {
			if err := sharedBrowser.Close(); err != nil {
				logger.Warn("closing shared browser failed", map[string]any{"error": err.Error()})
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		task, err := c.NextTask()
		if err != nil {
			return fmt.Errorf("drive job: %w", err)
		}
		if task == nil {
			return nil
		}

		taskLineage := *lineage
		taskLineage.RunID = fmt.Sprintf("%s-%s", lineage.RunID, task.ID)

		taskOpts := opts
		if !task.Warmup && !task.Cached && !c.job.FirstViewOnly {
			// This run's first view will be followed by a repeat (cached)
			// view; launch one shared browser now so the repeat view
			// reuses it instead of starting with a cold cache.
			if browser, err := LaunchManagedBrowser(ctx, opts.DriverPath); err != nil {
				logger.Warn("launching shared browser failed, falling back to a per-task browser", map[string]any{
					"task": task.ID, "error": err.Error(),
				})
			} else {
				sharedBrowser = browser
			}
		}
		if sharedBrowser != nil {
			taskOpts.BrowserWSEndpoint = sharedBrowser.WSEndpoint
		}

		result, err := c.DriveTask(ctx, task, &taskLineage, logger, taskOpts)
		if err != nil {
			return fmt.Errorf("drive task %s: %w", task.ID, err)
		}
		onTask(result)

		if task.Cached && sharedBrowser != nil {
			if err := sharedBrowser.Close(); err != nil {
				logger.Warn("closing shared browser failed", map[string]any{"task": task.ID, "error": err.Error()})
			}
			sharedBrowser = nil
		}

		if result.Outcome.Status != types.TaskOutcomeCompleted {
			logger.Warn("task ended abnormally, advancing to next task", map[string]any{
				"task": task.ID, "status": result.Outcome.Status, "message": result.Outcome.Message,
			})
		}
	}
}
