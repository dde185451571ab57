package auctions

import (
	"context"
	"testing"
	"time"
)

func TestSweepExpiredIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	svc.config.SweepBatchSize = 2
	ctx := context.Background()

	past := time.Now().Add(-time.Hour).UnixMilli()
	future := time.Now().Add(24 * time.Hour).UnixMilli()
	mergeRows(t, svc, []*RawRow{
		{Domain: "dead1.com", ExpiresAt: past},
		{Domain: "dead2.com", ExpiresAt: past},
		{Domain: "dead3.com", ExpiresAt: past},
		{Domain: "alive.com", ExpiresAt: future},
	})

	// Batch size 2 forces multiple rounds.
	n, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("deleted = %d, want 3", n)
	}

	n, err = svc.SweepExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("second sweep deleted = %d, want 0", n)
	}

	alive, err := svc.GetAuction(ctx, "alive.com")
	if err != nil {
		t.Fatal(err)
	}
	if alive == nil {
		t.Fatal("unexpired record should survive the sweep")
	}
}
