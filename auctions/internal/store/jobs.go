package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/domdrop/dbopen"
)

// CreateJob inserts a new ingestion job in stage "received".
func (s *Store) CreateJob(ctx context.Context, j *Job) error {
	now := time.Now().UnixMilli()
	if j.CreatedAt == 0 {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	if j.Stage == "" {
		j.Stage = StageReceived
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO ingestion_jobs (id, filename, site, stage, total_records, processed_records, error, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		j.ID, j.Filename, j.Site, j.Stage, j.Total, j.Processed, j.Error, j.CreatedAt, j.UpdatedAt,
	)
	return err
}

// GetJob retrieves a job by ID. Returns nil, nil when absent.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	j := &Job{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, filename, site, stage, total_records, processed_records, error, created_at, updated_at
		FROM ingestion_jobs WHERE id = ?`, id).Scan(
		&j.ID, &j.Filename, &j.Site, &j.Stage, &j.Total, &j.Processed, &j.Error, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

// ListJobs returns up to limit jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, filename, site, stage, total_records, processed_records, error, created_at, updated_at
		FROM ingestion_jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j := &Job{}
		if err := rows.Scan(&j.ID, &j.Filename, &j.Site, &j.Stage, &j.Total,
			&j.Processed, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// stageOrder ranks the pipeline stages for the forward-only transition
// rule. Failed is not in the map: it is only reachable via SetJobFailed.
var stageOrder = map[string]int{
	StageReceived:  0,
	StageStaging:   1,
	StageMerging:   2,
	StageScoring:   3,
	StageCompleted: 4,
}

// SetJobStage moves a job to a new stage. Transitions are forward-only:
// writing an earlier stage, or any stage onto a failed job, is a silent
// no-op so a re-invoked pipeline step cannot regress the tracker. Setting
// the current stage again is allowed (re-invocation refreshes updated_at).
func (s *Store) SetJobStage(ctx context.Context, id, stage string) error {
	rank, ok := stageOrder[stage]
	if !ok {
		return fmt.Errorf("store: unknown stage %q", stage)
	}
	_, err := dbopen.Exec(ctx, s.DB, `
		UPDATE ingestion_jobs SET stage = ?1, updated_at = ?2
		WHERE id = ?3 AND stage != ?4
		  AND ?5 >= CASE stage
			WHEN ?6 THEN 0 WHEN ?7 THEN 1 WHEN ?8 THEN 2 WHEN ?9 THEN 3
			ELSE 4 END`,
		stage, time.Now().UnixMilli(), id, StageFailed,
		rank, StageReceived, StageStaging, StageMerging, StageScoring)
	return err
}

// SetJobTotal records the job's total record count once input size is known.
func (s *Store) SetJobTotal(ctx context.Context, id string, total int64) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE ingestion_jobs SET total_records = ?, updated_at = ? WHERE id = ?`,
		total, time.Now().UnixMilli(), id)
	return err
}

// AddJobProgress advances the processed count by delta, clamped to the total
// so the processed-never-exceeds-total invariant holds even when a chunk is
// re-merged after a crash.
func (s *Store) AddJobProgress(ctx context.Context, id string, delta int64) error {
	_, err := dbopen.Exec(ctx, s.DB, `
		UPDATE ingestion_jobs SET
			processed_records = CASE
				WHEN total_records > 0 THEN MIN(processed_records + ?1, total_records)
				ELSE processed_records + ?1
			END,
			updated_at = ?2
		WHERE id = ?3`,
		delta, time.Now().UnixMilli(), id)
	return err
}

// SetJobFailed marks a job terminally failed with a human-readable message.
// Already-committed chunks stay intact; only job metadata changes.
func (s *Store) SetJobFailed(ctx context.Context, id, msg string) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE ingestion_jobs SET stage = ?, error = ?, updated_at = ? WHERE id = ?`,
		StageFailed, msg, time.Now().UnixMilli(), id)
	return err
}

// StuckJobs returns jobs in a non-terminal stage that have not advanced
// since updatedBefore (milliseconds since epoch).
func (s *Store) StuckJobs(ctx context.Context, updatedBefore int64) ([]*Job, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, filename, site, stage, total_records, processed_records, error, created_at, updated_at
		FROM ingestion_jobs
		WHERE stage NOT IN (?, ?) AND updated_at < ?
		ORDER BY updated_at ASC`,
		StageCompleted, StageFailed, updatedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j := &Job{}
		if err := rows.Scan(&j.ID, &j.Filename, &j.Site, &j.Stage, &j.Total,
			&j.Processed, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
