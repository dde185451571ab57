package auctions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/domdrop/vtq"
)

// pipelineTask is the queue payload for one background pipeline run.
type pipelineTask struct {
	JobID string `json:"job_id"`
}

// Start launches the background queue consumer that drives queued jobs
// through merge, scoring and ranking. Non-blocking; the consumer stops
// when ctx is cancelled. A no-op when the service has no queue.
func (svc *Service) Start(ctx context.Context) {
	if svc.queue == nil {
		svc.logger.Info("auctions: no queue configured, pipeline runs on demand")
		return
	}
	go svc.queue.Run(ctx, svc.handleTask)
	svc.logger.Info("auctions: started")
}

// handleTask runs the pipeline stages for one queued job. Tasks are only
// published after staging finishes, so this picks up from the merge stage. Errors
// nack the task for redelivery, except terminal job states which ack so a
// failed job is never retried behind the operator's back.
func (svc *Service) handleTask(ctx context.Context, qjob *vtq.Job) error {
	var task pipelineTask
	if err := json.Unmarshal(qjob.Payload, &task); err != nil {
		svc.logger.Error("auctions: bad task payload", "id", qjob.ID, "error", err)
		return nil // unparseable, discard
	}

	// Keep the claim alive while the pipeline grinds through a large job;
	// chunked stages can easily outlast the queue's visibility window.
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go svc.heartbeat(hbCtx, qjob.ID)

	err := svc.RunPipeline(ctx, task.JobID)
	if errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrJobNotActive) {
		svc.logger.Warn("auctions: task dropped", "job_id", task.JobID, "reason", err)
		return nil
	}
	return err
}

// heartbeat extends the queue claim until cancelled.
func (svc *Service) heartbeat(ctx context.Context, taskID string) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.queue.Extend(ctx, taskID, 30*time.Second); err != nil {
				svc.logger.Warn("auctions: extend task claim", "id", taskID, "error", err)
			}
		}
	}
}

// RunPipeline drives one job from its current stage to completion: merge
// the job's staged rows, drain the scoring backlog, recompute rankings per
// the configured policy, then mark the job completed. Each stage is
// idempotent, so re-invoking the pipeline on a half-done job resumes it.
func (svc *Service) RunPipeline(ctx context.Context, jobID string) error {
	if _, err := svc.Merge(ctx, jobID); err != nil {
		return fmt.Errorf("merge stage: %w", err)
	}

	if err := svc.store.SetJobStage(ctx, jobID, StageScoring); err != nil {
		return fmt.Errorf("set stage: %w", err)
	}
	if _, err := svc.ScoreAll(ctx); err != nil {
		svc.failJobOnPipelineError(ctx, jobID, "scoring", err)
		return fmt.Errorf("scoring stage: %w", err)
	}

	if svc.shouldRecompute() {
		if _, err := svc.RecalculateRankings(ctx); err != nil {
			svc.failJobOnPipelineError(ctx, jobID, "ranking", err)
			return fmt.Errorf("ranking stage: %w", err)
		}
	}

	if err := svc.store.SetJobStage(ctx, jobID, StageCompleted); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	svc.logEvent(ctx, "job", jobID, "job_completed", "", true)
	svc.logger.Info("auctions: pipeline completed", "job_id", jobID)
	return nil
}

// shouldRecompute applies the recompute-every-N-jobs policy. Ranks going
// stale between runs is accepted; correctness comes from the next full
// recomputation, this only bounds how much work each job triggers.
func (svc *Service) shouldRecompute() bool {
	n := svc.config.RecomputeEveryNJobs
	if n <= 0 {
		return false
	}
	if n == 1 {
		return true
	}
	return atomic.AddInt64(&svc.completedJobs, 1)%int64(n) == 0
}

func (svc *Service) failJobOnPipelineError(ctx context.Context, jobID, stage string, err error) {
	msg := fmt.Sprintf("%s: %v", stage, err)
	if failErr := svc.store.SetJobFailed(ctx, jobID, msg); failErr != nil {
		svc.logger.Error("auctions: mark job failed", "job_id", jobID, "error", failErr)
	}
	svc.logEvent(ctx, "job", jobID, stage+"_failed", fmt.Sprintf(`{"error":%q}`, msg), false)
}
