package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/wptagent/agent/adapter"
	"github.com/wptagent/agent/artifactprocessor"
	"github.com/wptagent/agent/assembler"
	"github.com/wptagent/agent/bodyfetcher"
	"github.com/wptagent/agent/config"
	"github.com/wptagent/agent/dispatch"
	"github.com/wptagent/agent/log"
	"github.com/wptagent/agent/runtime"
	"github.com/wptagent/agent/shaper"
	"github.com/wptagent/agent/types"
)

// runCompletedContractVersion tags the shape of adapter.RunCompletedEvent
// this agent version publishes, so downstream consumers can detect
// incompatible payload changes.
const runCompletedContractVersion = "1"

// jobHandlerDeps are the long-lived collaborators one job handler closure
// shares across every job Dispatcher.Run hands it.
type jobHandlerDeps struct {
	cfg        *config.Config
	driverPath string
	logger     *log.Logger
	shaper     shaper.TrafficShaper
	fetcher    *bodyfetcher.Fetcher
	assembler  *assembler.ResultAssembler

	// notifier optionally publishes a run-completed event to a downstream
	// system (webhook or Redis channel) alongside the job's own result
	// delivery. Nil when no adapter is configured.
	notifier adapter.Adapter

	testRunCount int
}

// newJobHandler builds a dispatch.JobHandler that drives one job's full
// run×view task sequence to completion: shapes the network per the job's
// (or config's default) profile, drives every task through RunController,
// merges artifacts, backfills bodies, and finalizes each task's result.
func newJobHandler(deps *jobHandlerDeps) dispatch.JobHandler {
	return func(ctx context.Context, job *types.Job) error {
		lineage := &types.JobLineage{RunID: job.TestID, JobID: job.TestID, Attempt: 1}
		if job.SchedulerJob != nil {
			lineage.JobID = *job.SchedulerJob
		}

		profile := shaperProfile(job, deps.cfg)
		if err := deps.shaper.Apply(ctx, profile); err != nil {
			deps.logger.Warn("traffic shaping failed, continuing unshaped", map[string]any{
				"test_id": job.TestID, "error": err.Error(),
			})
		}
		defer func() {
			if err := deps.shaper.Clear(context.WithoutCancel(ctx)); err != nil {
				deps.logger.Warn("clearing traffic shaping failed", map[string]any{"error": err.Error()})
			}
		}()

		controller, err := runtime.NewRunController(job, deps.testRunCount)
		if err != nil {
			return fmt.Errorf("quarryagent: build run controller: %w", err)
		}

		rawPayload, _ := json.Marshal(job)

		opts := runtime.DriveOptions{
			DriverPath:         deps.driverPath,
			WorkDirRoot:        deps.cfg.WorkDir,
			Shaper:             &profile,
			MaxRequests:        job.MaxRequests,
			SuppressUAIdentity: deps.cfg.SuppressUAIdentity,
			NewFileWriter: func(workDir string) runtime.FileWriter {
				return runtime.NewDiskFileWriter(workDir)
			},
		}

		return controller.DriveJob(ctx, lineage, deps.logger, opts, func(result *runtime.TaskResult) {
			deps.testRunCount++
			if err := deps.finalizeTask(ctx, job, result, rawPayload); err != nil {
				deps.logger.Warn("finalize task failed", map[string]any{
					"task": result.Task.ID, "error": err.Error(),
				})
			}
		})
	}
}

// finalizeTask merges a completed task's sidecar artifacts, backfills any
// requested response bodies, and hands the packaged result to
// ResultAssembler.
func (deps *jobHandlerDeps) finalizeTask(ctx context.Context, job *types.Job, result *runtime.TaskResult, rawPayload []byte) error {
	task := result.Task

	if result.Outcome.Status != types.TaskOutcomeCompleted {
		finalized, err := deps.assembler.Finalize(ctx, assembler.FinalizeInput{
			Job:      job,
			Task:     task,
			RawJobPayload: rawPayload,
			FinalRun: job.IsDone(),
			Outcome:  result.Outcome.Message,
		})
		deps.notifyRunCompleted(ctx, job, task, finalized, result.Outcome.Message)
		return err
	}

	summary, err := artifactprocessor.ProcessTask(task)
	if err != nil {
		return fmt.Errorf("process task artifacts: %w", err)
	}

	if err := deps.backfillBodies(ctx, job, task, summary); err != nil {
		deps.logger.Warn("body backfill failed", map[string]any{"task": task.ID, "error": err.Error()})
	}

	finalized, err := deps.assembler.Finalize(ctx, assembler.FinalizeInput{
		Job:            job,
		Task:           task,
		RawJobPayload:  rawPayload,
		ResultsSummary: summary,
		FinalRun:       job.IsDone(),
	})
	deps.notifyRunCompleted(ctx, job, task, finalized, "")
	return err
}

// notifyRunCompleted publishes a downstream completion notification when
// an event adapter is configured. Best-effort: a publish failure is
// logged, never returned, since the job's own result delivery already
// succeeded or failed independently of this side channel.
func (deps *jobHandlerDeps) notifyRunCompleted(ctx context.Context, job *types.Job, task *types.Task, finalized assembler.Finalized, outcome string) {
	if deps.notifier == nil {
		return
	}

	storagePath := finalized.BlobKey
	if storagePath == "" {
		storagePath = finalized.WorkdoneURL
	}

	event := &adapter.RunCompletedEvent{
		ContractVersion: runCompletedContractVersion,
		EventType:       "run_completed",
		RunID:           job.TestID,
		Outcome:         outcome,
		StoragePath:     storagePath,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Attempt:         1,
	}
	if job.SchedulerJob != nil {
		event.JobID = *job.SchedulerJob
	}
	if outcome == "" {
		event.Outcome = "success"
	}

	if err := deps.notifier.Publish(ctx, event); err != nil {
		deps.logger.Warn("run-completed notification failed", map[string]any{
			"task": task.ID, "error": err.Error(),
		})
	}
}

// backfillBodies re-downloads the response bodies job requests and
// appends them to the task's bodies archive alongside its other sidecar
// files, ahead of ResultAssembler zipping the working directory.
func (deps *jobHandlerDeps) backfillBodies(ctx context.Context, job *types.Job, task *types.Task, summary []byte) error {
	if !job.AllBodies && !job.HTMLBody {
		return nil
	}

	var canonical types.CanonicalResult
	if err := json.Unmarshal(summary, &canonical); err != nil {
		return fmt.Errorf("unmarshal task summary: %w", err)
	}

	selected := bodyfetcher.SelectRequests(job, &canonical)
	if len(selected) == 0 {
		return nil
	}

	requests := bodyfetcher.ToFetchRequests(selected)
	results := deps.fetcher.Run(ctx, requests)

	archivePath := filepath.Join(task.WorkDir, task.Prefix+"_bodies.zip")
	return bodyfetcher.NewArchive(archivePath).AppendResults(results)
}

// shaperProfile resolves the network-shaping profile for job: the job's
// own parameters when it specifies any shaping, otherwise cfg's default.
func shaperProfile(job *types.Job, cfg *config.Config) types.ShaperProfile {
	if job.InKbps != 0 || job.OutKbps != 0 || job.RTTMs != 0 || job.LossPct != 0 {
		return types.ShaperProfile{
			InKbps:     job.InKbps,
			OutKbps:    job.OutKbps,
			RTTMs:      job.RTTMs,
			LossPct:    job.LossPct,
			QueueLimit: job.ShaperQueueLimit,
		}
	}
	return types.ShaperProfile{
		InKbps:     cfg.Shaper.InKbps,
		OutKbps:    cfg.Shaper.OutKbps,
		RTTMs:      cfg.Shaper.RTTMs,
		LossPct:    float64(cfg.Shaper.LossPct),
		QueueLimit: cfg.Shaper.QueueLimit,
	}
}
