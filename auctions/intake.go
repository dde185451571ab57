package auctions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hazyhaar/domdrop/auctions/internal/store"
)

// RowReader streams raw listing rows from an intake source. Next returns
// io.EOF when the source is exhausted.
type RowReader interface {
	Next() (*RawRow, error)
}

type sliceReader struct {
	rows []*RawRow
	pos  int
}

func (r *sliceReader) Next() (*RawRow, error) {
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	row := r.rows[r.pos]
	r.pos++
	return row, nil
}

// RowsFromSlice adapts an in-memory row set to a RowReader.
func RowsFromSlice(rows []*RawRow) RowReader {
	return &sliceReader{rows: rows}
}

// StartJob creates an ingestion job for one marketplace file. The job
// starts in the received stage; Stage and the pipeline move it forward.
func (svc *Service) StartJob(ctx context.Context, filename, site string) (*Job, error) {
	site = strings.TrimSpace(strings.ToLower(site))
	if site == "" {
		return nil, fmt.Errorf("%w: site is required", ErrInvalidInput)
	}

	job := &store.Job{
		ID:       svc.newID(),
		Filename: filename,
		Site:     site,
		Stage:    StageReceived,
	}
	if err := svc.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	svc.logEvent(ctx, "job", job.ID, "job_received",
		fmt.Sprintf(`{"filename":%q,"site":%q}`, filename, site), true)
	svc.logger.Info("auctions: job created", "job_id", job.ID, "site", site, "filename", filename)
	return job, nil
}

// Upload is the non-blocking intake path: it creates the job and returns
// its id immediately, then stages the row stream and enqueues the pipeline
// in the background. Callers poll GetJob for progress. The row stream is
// handed over; the caller must not touch it afterwards.
func (svc *Service) Upload(ctx context.Context, filename, site string, rows RowReader) (*Job, error) {
	job, err := svc.StartJob(ctx, filename, site)
	if err != nil {
		return nil, err
	}

	go func() {
		// Detached from the request context: the upload outlives the call.
		bg := context.WithoutCancel(ctx)
		if _, err := svc.Stage(bg, job.ID, rows); err != nil {
			svc.logger.Error("auctions: background staging failed", "job_id", job.ID, "error", err)
			// Stage fails the job itself when nothing was staged.
			if !errors.Is(err, ErrJobNotActive) {
				if failErr := svc.store.SetJobFailed(bg, job.ID, fmt.Sprintf("staging: %v", err)); failErr != nil {
					svc.logger.Error("auctions: mark job failed", "job_id", job.ID, "error", failErr)
				}
			}
			return
		}
		if err := svc.EnqueuePipeline(bg, job.ID); err != nil {
			svc.logger.Error("auctions: enqueue pipeline", "job_id", job.ID, "error", err)
		}
	}()
	return job, nil
}

// EnqueuePipeline publishes a background pipeline run for a staged job.
// Without a queue it runs the pipeline inline.
func (svc *Service) EnqueuePipeline(ctx context.Context, jobID string) error {
	if svc.queue == nil {
		return svc.RunPipeline(ctx, jobID)
	}
	payload, _ := json.Marshal(pipelineTask{JobID: jobID})
	if err := svc.queue.Publish(ctx, jobID, payload); err != nil {
		return fmt.Errorf("publish pipeline task: %w", err)
	}
	return nil
}

// StageSummary reports one staging run.
type StageSummary struct {
	Staged   int64 `json:"staged"`
	Rejected int64 `json:"rejected"`
}

// Stage normalizes the row stream and inserts the results into staging in
// fixed-size batches. Malformed rows are counted and skipped. A batch
// insertion failure is logged and counted but does not abort the upload;
// whatever reached staging remains mergeable.
func (svc *Service) Stage(ctx context.Context, jobID string, rows RowReader) (*StageSummary, error) {
	job, err := svc.activeJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := svc.store.SetJobStage(ctx, jobID, StageStaging); err != nil {
		return nil, fmt.Errorf("set stage: %w", err)
	}

	now := time.Now()
	sum := &StageSummary{}
	batch := make([]*store.Staged, 0, svc.config.StageBatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.store.InsertStagedBatch(ctx, jobID, batch); err != nil {
			svc.logger.Error("auctions: stage batch failed",
				"job_id", jobID, "rows", len(batch), "error", err)
			sum.Rejected += int64(len(batch))
		} else {
			sum.Staged += int64(len(batch))
		}
		batch = batch[:0]
	}

	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			flush()
			return sum, fmt.Errorf("read row: %w", err)
		}

		rec, err := NormalizeRow(row, job.Site, now)
		if err != nil {
			sum.Rejected++
			continue
		}
		batch = append(batch, rec)
		if len(batch) >= svc.config.StageBatchSize {
			flush()
		}
	}
	flush()

	// A job with nothing staged has nothing to merge: fail it rather than
	// let the pipeline complete it as an empty success.
	if sum.Staged == 0 {
		msg := fmt.Sprintf("no rows staged (%d rejected)", sum.Rejected)
		if err := svc.store.SetJobFailed(ctx, jobID, msg); err != nil {
			return sum, fmt.Errorf("fail empty job: %w", err)
		}
		svc.logEvent(ctx, "job", jobID, "staging_failed", fmt.Sprintf(`{"rejected":%d}`, sum.Rejected), false)
		return sum, fmt.Errorf("%w: %s", ErrJobNotActive, msg)
	}

	if err := svc.store.SetJobTotal(ctx, jobID, sum.Staged); err != nil {
		return sum, fmt.Errorf("set total: %w", err)
	}
	svc.logEvent(ctx, "job", jobID, "staging_done",
		fmt.Sprintf(`{"staged":%d,"rejected":%d}`, sum.Staged, sum.Rejected), true)
	svc.logger.Info("auctions: staging done",
		"job_id", jobID, "staged", sum.Staged, "rejected", sum.Rejected)
	return sum, nil
}

// activeJob loads a job and verifies it has not reached a terminal stage.
func (svc *Service) activeJob(ctx context.Context, jobID string) (*Job, error) {
	job, err := svc.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobNotActive, jobID, job.Stage)
	}
	return job, nil
}
