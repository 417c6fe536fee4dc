package assembler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/wptagent/agent/hostos"
	"github.com/wptagent/agent/log"
	"github.com/wptagent/agent/types"
)

// Finalized describes the outcome of a single task's Finalize call, for
// the caller's logging and metrics.
type Finalized struct {
	Uploaded     bool
	BlobKey      string
	WorkdoneURL  string
	RetryQueued  bool
	CompleteSent bool
}

// ResultAssembler zips a task's staged working directory, uploads it via
// blob storage or HTTP multipart per the job's output routing, signals
// pub/sub retry/completion queues, and removes the task directory once
// the outcome (success or failure) has been recorded.
type ResultAssembler struct {
	Upload *http.Client
	Blob   BlobStore
	PubSub *PubSub

	// Key is the agent's API key, sent as the workdone "key" query param.
	Key string
	// Location is this agent's configured location, sent as the workdone
	// "location" query param.
	Location string
	// FallbackOrigin is tried when the job's own work-server origin fails.
	FallbackOrigin string

	Logger *log.Logger
}

// FinalizeInput is everything Finalize needs to deliver one task's result.
// RawJobPayload is the job's original acquisition payload, published to the
// retry queue on upload failure; ResultsSummary is the augmented record
// published to the completion queue on success.
type FinalizeInput struct {
	Job            *types.Job
	Task           *types.Task
	RawJobPayload  []byte
	ResultsSummary []byte
	FinalRun       bool
	Outcome        string // empty on success
}

// Finalize packages task.WorkDir into a result archive and delivers it
// per the configured upload priority, then removes the task directory
// regardless of outcome.
func (a *ResultAssembler) Finalize(ctx context.Context, in FinalizeInput) (Finalized, error) {
	if in.Task.Warmup {
		return Finalized{}, os.RemoveAll(in.Task.WorkDir)
	}

	archivePath := filepath.Join(filepath.Dir(in.Task.WorkDir), in.Task.ID+"_result.zip")
	if err := BuildResultZip(in.Task.WorkDir, archivePath); err != nil {
		return Finalized{}, fmt.Errorf("assembler: build archive: %w", err)
	}
	defer os.Remove(archivePath)

	result, uploadErr := a.upload(ctx, in, archivePath)

	if uploadErr != nil {
		if queued := a.queueRetry(ctx, in); queued {
			result.RetryQueued = true
		}
	} else if sent := a.queueComplete(ctx, in); sent {
		result.CompleteSent = true
	}

	if err := os.RemoveAll(in.Task.WorkDir); err != nil {
		a.logError("remove task dir", err)
	}

	return result, uploadErr
}

func (a *ResultAssembler) upload(ctx context.Context, in FinalizeInput, archivePath string) (Finalized, error) {
	job := in.Job

	if job.Routing.HasBlobTarget() && a.Blob != nil {
		data, err := os.ReadFile(archivePath)
		if err != nil {
			return Finalized{}, fmt.Errorf("assembler: read archive: %w", err)
		}
		key := BlobKey(job.Routing.BlobPath, job.TestID)
		if err := a.Blob.Put(ctx, key, data, "application/zip"); err != nil {
			return Finalized{}, fmt.Errorf("assembler: blob upload: %w", err)
		}
		return Finalized{Uploaded: true, BlobKey: key}, nil
	}

	snap := hostos.CollectSnapshot(".")
	params := WorkDoneParams{
		Location: a.Location,
		PC:       snap.Hostname,
		TestID:   job.TestID,
		Key:      a.Key,
		Run:      in.Task.Run,
		Cached:   in.Task.Cached,
		Done:     in.FinalRun,
		Error:    in.Outcome,
	}

	origin := job.OriginURL
	if origin == "" {
		origin = a.FallbackOrigin
	}
	if err := PostWorkDone(ctx, a.Upload, origin, a.FallbackOrigin, params, archivePath); err != nil {
		return Finalized{}, fmt.Errorf("assembler: workdone upload: %w", err)
	}
	return Finalized{Uploaded: true, WorkdoneURL: origin}, nil
}

func (a *ResultAssembler) queueRetry(ctx context.Context, in FinalizeInput) bool {
	queue := in.Job.Routing.PubsubRetryQueue
	if queue == "" || a.PubSub == nil || len(in.RawJobPayload) == 0 {
		return false
	}
	if err := a.PubSub.Publish(ctx, queue, in.RawJobPayload); err != nil {
		a.logError("publish retry queue", err)
		return false
	}
	return true
}

func (a *ResultAssembler) queueComplete(ctx context.Context, in FinalizeInput) bool {
	queue := in.Job.Routing.PubsubCompleteQueue
	if queue == "" || a.PubSub == nil || len(in.ResultsSummary) == 0 {
		return false
	}
	if err := a.PubSub.Publish(ctx, queue, in.ResultsSummary); err != nil {
		a.logError("publish completion queue", err)
		return false
	}
	return true
}

func (a *ResultAssembler) logError(msg string, err error) {
	if a.Logger == nil {
		return
	}
	a.Logger.Error(msg, map[string]any{"error": err.Error()})
}

