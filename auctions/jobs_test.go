package auctions

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResetStuckJobs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	stale, err := svc.StartJob(ctx, "old.csv", "sedo")
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := svc.StartJob(ctx, "new.csv", "sedo")
	if err != nil {
		t.Fatal(err)
	}
	done, err := svc.StartJob(ctx, "done.csv", "sedo")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.store.SetJobStage(ctx, done.ID, StageCompleted); err != nil {
		t.Fatal(err)
	}

	// Age the stale and the completed job beyond the staleness window.
	old := time.Now().Add(-2 * svc.config.StaleAfter).UnixMilli()
	for _, id := range []string{stale.ID, done.ID} {
		if _, err := svc.store.DB.ExecContext(ctx,
			`UPDATE ingestion_jobs SET updated_at = ? WHERE id = ?`, old, id); err != nil {
			t.Fatal(err)
		}
	}

	n, err := svc.ResetStuckJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("reset = %d, want 1 (only the stale non-terminal job)", n)
	}

	got, err := svc.GetJob(ctx, stale.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Stage != StageFailed || got.Error == "" {
		t.Fatalf("stale job stage = %s error = %q, want failed with message", got.Stage, got.Error)
	}

	// Terminal and fresh jobs are untouched.
	if got, _ := svc.GetJob(ctx, done.ID); got.Stage != StageCompleted {
		t.Fatalf("completed job stage = %s", got.Stage)
	}
	if got, _ := svc.GetJob(ctx, fresh.ID); got.Stage != StageReceived {
		t.Fatalf("fresh job stage = %s", got.Stage)
	}
}

func TestFailJobIsTerminalOnce(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	job, err := svc.StartJob(ctx, "x.csv", "sedo")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.FailJob(ctx, job.ID, "first"); err != nil {
		t.Fatal(err)
	}
	if err := svc.FailJob(ctx, job.ID, "second"); !errors.Is(err, ErrJobNotActive) {
		t.Fatalf("second FailJob = %v, want ErrJobNotActive", err)
	}

	got, _ := svc.GetJob(ctx, job.ID)
	if got.Error != "first" {
		t.Fatalf("error = %q, want the first message preserved", got.Error)
	}
}

func TestGetJobNotFound(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.GetJob(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestListJobsNewestFirst(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"one.csv", "two.csv", "three.csv"} {
		if _, err := svc.StartJob(ctx, name, "sedo"); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := svc.ListJobs(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len = %d, want 2", len(jobs))
	}
	if jobs[0].Filename != "three.csv" {
		t.Fatalf("first = %s, want three.csv", jobs[0].Filename)
	}
}
