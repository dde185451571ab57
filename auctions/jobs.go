package auctions

import (
	"context"
	"fmt"
	"time"
)

// GetJob returns a job-state snapshot suitable for polling.
func (svc *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	job, err := svc.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, nil
}

// ListJobs returns recent jobs, newest first.
func (svc *Service) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	return svc.store.ListJobs(ctx, limit)
}

// FailJob force-fails a job with an operator-supplied reason. Committed
// chunks and staged rows are untouched; only job metadata changes. The
// merge engine notices the terminal stage at its next chunk boundary.
func (svc *Service) FailJob(ctx context.Context, jobID, reason string) error {
	if _, err := svc.activeJob(ctx, jobID); err != nil {
		return err
	}
	if reason == "" {
		reason = "force-failed by operator"
	}
	if err := svc.store.SetJobFailed(ctx, jobID, reason); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	svc.logEvent(ctx, "job", jobID, "job_failed", fmt.Sprintf(`{"reason":%q}`, reason), false)
	svc.logger.Info("auctions: job force-failed", "job_id", jobID, "reason", reason)
	return nil
}

// ResetStuckJobs finds jobs parked in a non-terminal stage beyond the
// staleness window and marks them failed for operator visibility. Staged
// and merged data is left in place, so re-running the merge stage on a
// reset job id is safe.
func (svc *Service) ResetStuckJobs(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-svc.config.StaleAfter).UnixMilli()
	stuck, err := svc.store.StuckJobs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stuck jobs: %w", err)
	}

	reset := 0
	for _, job := range stuck {
		msg := fmt.Sprintf("stalled in stage %s beyond %s", job.Stage, svc.config.StaleAfter)
		if err := svc.store.SetJobFailed(ctx, job.ID, msg); err != nil {
			svc.logger.Error("auctions: reset stuck job", "job_id", job.ID, "error", err)
			continue
		}
		svc.logEvent(ctx, "job", job.ID, "job_reset", fmt.Sprintf(`{"stage":%q}`, job.Stage), false)
		reset++
	}
	if reset > 0 {
		svc.logger.Info("auctions: stuck jobs reset", "count", reset)
	}
	return reset, nil
}

// JobEvents returns the recent business event trail for a job.
func (svc *Service) JobEvents(ctx context.Context, jobID string, limit int) ([]JobEvent, error) {
	if svc.events == nil {
		return nil, nil
	}
	events, err := svc.events.RecentEvents(ctx, "job", jobID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]JobEvent, len(events))
	for i, e := range events {
		out[i] = JobEvent{Action: e.Action, Details: e.Details, Success: e.Success}
	}
	return out, nil
}

// JobEvent is one entry in a job's business event trail.
type JobEvent struct {
	Action  string `json:"action"`
	Details string `json:"details,omitempty"`
	Success bool   `json:"success"`
}
