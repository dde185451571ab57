package auctions

import (
	"context"
	"fmt"
	"time"
)

// MergeSummary reports one merge run.
type MergeSummary struct {
	Chunks int64 `json:"chunks"`
	Merged int64 `json:"merged"`
}

// Merge drains a job's staged records into the canonical table in bounded
// chunks. Each chunk upserts by normalized domain and deletes its staged
// rows in one transaction, then advances the job's processed count, so a
// crash at any point leaves the remaining chunks re-fetchable and a re-run
// is a no-op for already-merged rows.
//
// Merge is cooperative: it may be invoked while staging is still in
// progress or concurrently with another invocation for the same job, and
// simply stops when a fetch returns no rows. Between chunks it re-reads
// the job and stops if an operator force-failed it; the chunk already
// dispatched commits normally.
func (svc *Service) Merge(ctx context.Context, jobID string) (*MergeSummary, error) {
	if _, err := svc.activeJob(ctx, jobID); err != nil {
		return nil, err
	}
	if err := svc.store.SetJobStage(ctx, jobID, StageMerging); err != nil {
		return nil, fmt.Errorf("set stage: %w", err)
	}

	sum := &MergeSummary{}
	for {
		job, err := svc.store.GetJob(ctx, jobID)
		if err != nil {
			return sum, err
		}
		if job == nil || job.Terminal() {
			svc.logger.Warn("auctions: merge stopped, job no longer active", "job_id", jobID)
			return sum, fmt.Errorf("%w: %s", ErrJobNotActive, jobID)
		}

		chunk, err := svc.store.StagedChunk(ctx, jobID, "", svc.config.MergeChunkSize)
		if err != nil {
			return sum, fmt.Errorf("fetch staged chunk: %w", err)
		}
		if len(chunk) == 0 {
			break
		}

		if err := svc.mergeChunkWithRetry(ctx, jobID, chunk); err != nil {
			msg := fmt.Sprintf("merge chunk after %d staged: %v", sum.Merged, err)
			if failErr := svc.store.SetJobFailed(ctx, jobID, msg); failErr != nil {
				svc.logger.Error("auctions: mark job failed", "job_id", jobID, "error", failErr)
			}
			svc.logEvent(ctx, "job", jobID, "merge_failed", fmt.Sprintf(`{"error":%q}`, msg), false)
			return sum, err
		}

		if err := svc.store.AddJobProgress(ctx, jobID, int64(len(chunk))); err != nil {
			return sum, fmt.Errorf("advance progress: %w", err)
		}
		sum.Chunks++
		sum.Merged += int64(len(chunk))
	}

	svc.logEvent(ctx, "job", jobID, "merge_done",
		fmt.Sprintf(`{"chunks":%d,"merged":%d}`, sum.Chunks, sum.Merged), true)
	svc.logger.Info("auctions: merge done",
		"job_id", jobID, "chunks", sum.Chunks, "merged", sum.Merged)
	return sum, nil
}

// mergeChunkWithRetry retries a failing chunk a bounded number of times at
// the same chunk size. The upsert is idempotent, so a retry after a partial
// commit cannot duplicate domains.
func (svc *Service) mergeChunkWithRetry(ctx context.Context, jobID string, chunk []*Staged) error {
	var lastErr error
	for attempt := 1; attempt <= svc.config.MaxChunkRetries; attempt++ {
		lastErr = svc.store.MergeStagedChunk(ctx, chunk)
		if lastErr == nil {
			return nil
		}
		svc.logger.Warn("auctions: merge chunk failed",
			"job_id", jobID, "attempt", attempt, "rows", len(chunk), "error", lastErr)
		if attempt < svc.config.MaxChunkRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(svc.config.ChunkRetryBackoff):
			}
		}
	}
	return fmt.Errorf("chunk failed after %d attempts: %w", svc.config.MaxChunkRetries, lastErr)
}
