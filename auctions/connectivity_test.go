package auctions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hazyhaar/domdrop/connectivity"
)

func setupRouter(t *testing.T) (*Service, *connectivity.Router) {
	t.Helper()
	svc := newTestService(t)
	router := connectivity.New()
	svc.RegisterConnectivity(router)
	return svc, router
}

func call(t *testing.T, router *connectivity.Router, service string, req, resp any) {
	t.Helper()
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	out, err := router.Call(context.Background(), service, payload)
	if err != nil {
		t.Fatalf("call %s: %v", service, err)
	}
	if resp != nil {
		if err := json.Unmarshal(out, resp); err != nil {
			t.Fatalf("decode %s response: %v", service, err)
		}
	}
}

func TestConnectivityPipelineRoundTrip(t *testing.T) {
	svc, router := setupRouter(t)
	expiry := time.Now().Add(24 * time.Hour).UnixMilli()

	job := stageRows(t, svc, "sedo", []*RawRow{
		{Domain: "a.com", ExpiresAt: expiry, CurrentBid: bid(10)},
		{Domain: "b.com", ExpiresAt: expiry, CurrentBid: bid(20)},
		{Domain: "a.com", ExpiresAt: expiry, CurrentBid: bid(15)},
	})

	var merge MergeSummary
	call(t, router, "auctions_start_merge", map[string]string{"job_id": job.ID}, &merge)
	if merge.Merged != 3 {
		t.Fatalf("merged = %d, want 3", merge.Merged)
	}

	var score ScoreBatchSummary
	call(t, router, "auctions_process_scoring_batch", map[string]int{"batch_size": 100}, &score)
	if score.Processed != 2 {
		t.Fatalf("processed = %d, want 2", score.Processed)
	}

	var rank RankSummary
	call(t, router, "auctions_recalculate_rankings", map[string]any{}, &rank)
	if rank.Ranked != 2 {
		t.Fatalf("ranked = %d, want 2", rank.Ranked)
	}

	var stats ProcessingStats
	call(t, router, "auctions_get_processing_stats", map[string]any{}, &stats)
	if stats.Total != 2 || stats.Scored != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	var rec Auction
	call(t, router, "auctions_get_auction", map[string]string{"domain": "A.com"}, &rec)
	if rec.Domain != "a.com" || rec.CurrentBid == nil || *rec.CurrentBid != 15 {
		t.Fatalf("record = %+v, want a.com with bid 15", rec)
	}
}

func TestConnectivityJobOperations(t *testing.T) {
	svc, router := setupRouter(t)
	ctx := context.Background()

	job, err := svc.StartJob(ctx, "x.csv", "sedo")
	if err != nil {
		t.Fatal(err)
	}

	var got Job
	call(t, router, "auctions_get_job", map[string]string{"job_id": job.ID}, &got)
	if got.Stage != StageReceived {
		t.Fatalf("stage = %s, want received", got.Stage)
	}

	call(t, router, "auctions_fail_job",
		map[string]string{"job_id": job.ID, "reason": "test abort"}, &got)
	if got.Stage != StageFailed || got.Error != "test abort" {
		t.Fatalf("after fail: stage = %s error = %q", got.Stage, got.Error)
	}

	var jobs []*Job
	call(t, router, "auctions_list_jobs", map[string]int{"limit": 10}, &jobs)
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
}

func TestConnectivityUnknownService(t *testing.T) {
	_, router := setupRouter(t)
	_, err := router.Call(context.Background(), "auctions_does_not_exist", []byte(`{}`))
	var notFound *connectivity.ErrServiceNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want ErrServiceNotFound", err)
	}
}

func TestConnectivityErrorsPropagate(t *testing.T) {
	_, router := setupRouter(t)
	_, err := router.Call(context.Background(), "auctions_get_job",
		fmt.Appendf(nil, `{"job_id":%q}`, "missing"))
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}
