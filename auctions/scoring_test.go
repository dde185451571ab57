package auctions

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mergeRows stages and merges rows so canonical records exist for the
// scoring and ranking tests.
func mergeRows(t *testing.T, svc *Service, rows []*RawRow) {
	t.Helper()
	job := stageRows(t, svc, "sedo", rows)
	if _, err := svc.Merge(context.Background(), job.ID); err != nil {
		t.Fatalf("Merge: %v", err)
	}
}

func TestScoringBatchDrainsBacklog(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	expiry := time.Now().Add(24 * time.Hour).UnixMilli()

	mergeRows(t, svc, []*RawRow{
		{Domain: "a.com", ExpiresAt: expiry},
		{Domain: "b.com", ExpiresAt: expiry},
		{Domain: "c.com", ExpiresAt: expiry},
	})

	before, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if before.Unprocessed != 3 {
		t.Fatalf("unprocessed before = %d, want 3", before.Unprocessed)
	}

	sum, err := svc.ProcessScoringBatch(ctx, 100)
	if err != nil {
		t.Fatalf("ProcessScoringBatch: %v", err)
	}
	if sum.Processed != 3 || sum.Scored != 3 || sum.Failed != 0 {
		t.Fatalf("summary = %+v, want 3 processed, 3 scored", sum)
	}

	after, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if after.Processed != before.Processed+3 {
		t.Fatalf("processed = %d, want %d", after.Processed, before.Processed+3)
	}
	if after.Unprocessed != 0 {
		t.Fatalf("unprocessed = %d, want 0", after.Unprocessed)
	}
	if after.Scored != 3 {
		t.Fatalf("scored = %d, want 3", after.Scored)
	}

	// A second batch finds nothing to do.
	sum, err = svc.ProcessScoringBatch(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 0 {
		t.Fatalf("second batch processed = %d, want 0", sum.Processed)
	}
}

func TestScoringFailureIsTerminalPerRecord(t *testing.T) {
	svc := newTestService(t, WithScoreFunc(func(a *Auction) (float64, error) {
		if a.Domain == "bad.com" {
			return 0, errors.New("unscorable")
		}
		return 0.7, nil
	}))
	ctx := context.Background()
	expiry := time.Now().Add(24 * time.Hour).UnixMilli()

	mergeRows(t, svc, []*RawRow{
		{Domain: "good.com", ExpiresAt: expiry},
		{Domain: "bad.com", ExpiresAt: expiry},
	})

	sum, err := svc.ProcessScoringBatch(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 2 || sum.Scored != 1 || sum.Failed != 1 {
		t.Fatalf("summary = %+v, want 2 processed / 1 scored / 1 failed", sum)
	}

	// The failed record is processed with a null score and never comes back.
	bad, err := svc.GetAuction(ctx, "bad.com")
	if err != nil {
		t.Fatal(err)
	}
	if !bad.Processed || bad.Score != nil {
		t.Fatalf("bad.com processed=%v score=%v, want processed with null score", bad.Processed, bad.Score)
	}

	sum, err = svc.ProcessScoringBatch(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 0 {
		t.Fatalf("retry batch processed = %d, want 0", sum.Processed)
	}
}

func TestScoreAllUsesConfiguredBatches(t *testing.T) {
	svc := newTestService(t)
	svc.config.ScoreBatchSize = 2
	ctx := context.Background()
	expiry := time.Now().Add(24 * time.Hour).UnixMilli()

	mergeRows(t, svc, []*RawRow{
		{Domain: "a.com", ExpiresAt: expiry},
		{Domain: "b.com", ExpiresAt: expiry},
		{Domain: "c.com", ExpiresAt: expiry},
		{Domain: "d.com", ExpiresAt: expiry},
		{Domain: "e.com", ExpiresAt: expiry},
	})

	total, err := svc.ScoreAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if total.Processed != 5 || total.Scored != 5 {
		t.Fatalf("total = %+v, want 5 processed/scored", total)
	}
}
