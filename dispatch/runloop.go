package dispatch

import (
	"context"
	"time"

	"github.com/wptagent/agent/types"
)

// JobHandler drives one acquired job to completion. Run logs a non-nil
// error and does not interpret it further; whether a job is requeued on
// shutdown depends only on ctx cancellation and job.IsDone.
type JobHandler func(ctx context.Context, job *types.Job) error

// Run polls for work until ctx is canceled or a coordinator requests a
// reboot, handing each acquired job to handler. On ctx cancellation with a
// job still in flight, the job is requeued best-effort before returning.
func (d *Dispatcher) Run(ctx context.Context, handler JobHandler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		result, err := d.Acquire(ctx)
		if err != nil {
			d.logger.Warn("acquire failed", map[string]any{"error": err.Error()})
			if !sleepOrDone(ctx, MinPollInterval) {
				return nil
			}
			continue
		}

		if result.Rebooted {
			return nil
		}

		if result.Job == nil {
			if !sleepOrDone(ctx, MinPollInterval) {
				return nil
			}
			continue
		}

		job := result.Job
		handlerCtx, cancel := context.WithCancel(ctx)
		err = handler(handlerCtx, job)
		cancel()

		if ctx.Err() != nil && !job.IsDone() {
			requeueCtx, requeueCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			d.Requeue(requeueCtx, job)
			requeueCancel()
			return nil
		}

		if err != nil {
			d.logger.Warn("job handler returned error", map[string]any{
				"test_id": job.TestID,
				"error":   err.Error(),
			})
		}
	}
}

// sleepOrDone sleeps for d or returns false early if ctx is canceled.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
