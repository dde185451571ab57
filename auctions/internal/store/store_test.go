package store

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domdrop/dbopen"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return &Store{DB: db}
}

func testJob(t *testing.T, s *Store, id string) *Job {
	t.Helper()
	j := &Job{ID: id, Filename: id + ".csv", Site: "dropsite"}
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j
}

func staged(jobID, domain string, bid float64) *Staged {
	return &Staged{
		JobID:      jobID,
		Domain:     domain,
		Site:       "dropsite",
		ExpiresAt:  time.Now().Add(72 * time.Hour).UnixMilli(),
		CurrentBid: &bid,
		ListingURL: "https://dropsite.example/" + domain,
	}
}

func TestStagingInsertChunkDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testJob(t, s, "job-1")

	recs := []*Staged{
		staged("job-1", "alpha.com", 10),
		staged("job-1", "beta.com", 20),
		staged("job-1", "gamma.com", 30),
	}
	if err := s.InsertStagedBatch(ctx, "job-1", recs); err != nil {
		t.Fatalf("insert: %v", err)
	}

	n, err := s.CountStaged(ctx, "job-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("count: got %d, want 3", n)
	}

	// Chunk fetch does not delete.
	chunk, err := s.StagedChunk(ctx, "job-1", "", 2)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(chunk) != 2 {
		t.Fatalf("chunk: got %d, want 2", len(chunk))
	}
	if chunk[0].Domain != "alpha.com" || chunk[1].Domain != "beta.com" {
		t.Errorf("chunk order: got %s, %s", chunk[0].Domain, chunk[1].Domain)
	}
	if n, _ := s.CountStaged(ctx, "job-1"); n != 3 {
		t.Errorf("count after fetch: got %d, want 3", n)
	}

	// Explicit delete removes exactly the given rows.
	if err := s.DeleteStaged(ctx, []int64{chunk[0].ID, chunk[1].ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := s.CountStaged(ctx, "job-1"); n != 1 {
		t.Errorf("count after delete: got %d, want 1", n)
	}
}

func TestStagedChunkSiteFilter(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testJob(t, s, "job-1")

	a := staged("job-1", "alpha.com", 10)
	b := staged("job-1", "beta.com", 20)
	b.Site = "othersite"
	if err := s.InsertStagedBatch(ctx, "job-1", []*Staged{a, b}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	chunk, err := s.StagedChunk(ctx, "job-1", "othersite", 10)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(chunk) != 1 || chunk[0].Domain != "beta.com" {
		t.Fatalf("site filter: got %v", chunk)
	}
}

func TestMergeStagedChunkUpsert(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testJob(t, s, "job-1")

	recs := []*Staged{
		staged("job-1", "alpha.com", 10),
		staged("job-1", "beta.com", 20),
		staged("job-1", "alpha.com", 15), // duplicate within the chunk
	}
	if err := s.InsertStagedBatch(ctx, "job-1", recs); err != nil {
		t.Fatalf("insert: %v", err)
	}
	chunk, err := s.StagedChunk(ctx, "job-1", "", 10)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if err := s.MergeStagedChunk(ctx, chunk); err != nil {
		t.Fatalf("merge: %v", err)
	}

	// Exactly 2 canonical rows; last write wins for alpha.com.
	total, err := s.CountAuctions(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 2 {
		t.Fatalf("auctions: got %d, want 2", total)
	}
	a, err := s.GetAuction(ctx, "alpha.com")
	if err != nil || a == nil {
		t.Fatalf("get alpha: %v %v", a, err)
	}
	if a.CurrentBid == nil || *a.CurrentBid != 15 {
		t.Errorf("alpha bid: got %v, want 15", a.CurrentBid)
	}

	// Staged rows of the chunk are gone.
	if n, _ := s.CountStaged(ctx, "job-1"); n != 0 {
		t.Errorf("staged after merge: got %d, want 0", n)
	}
}

func TestMergePreservesDerivedFields(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testJob(t, s, "job-1")

	if err := s.InsertStagedBatch(ctx, "job-1", []*Staged{staged("job-1", "alpha.com", 10)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	chunk, _ := s.StagedChunk(ctx, "job-1", "", 10)
	if err := s.MergeStagedChunk(ctx, chunk); err != nil {
		t.Fatalf("merge: %v", err)
	}

	// Score + rank + preferred set by later stages.
	a, _ := s.GetAuction(ctx, "alpha.com")
	score := 0.9
	if err := s.ApplyScores(ctx, []ScoreResult{{ID: a.ID, Score: &score}}); err != nil {
		t.Fatalf("apply score: %v", err)
	}
	if err := s.AssignRanks(ctx, []RankAssignment{{ID: a.ID, Rank: 1}}); err != nil {
		t.Fatalf("assign rank: %v", err)
	}
	if err := s.ApplyPreferred(ctx, []PreferredUpdate{{ID: a.ID, Preferred: true}}); err != nil {
		t.Fatalf("apply preferred: %v", err)
	}

	// Re-merge the same domain with a fresh bid.
	if err := s.InsertStagedBatch(ctx, "job-1", []*Staged{staged("job-1", "alpha.com", 42)}); err != nil {
		t.Fatalf("re-insert: %v", err)
	}
	chunk, _ = s.StagedChunk(ctx, "job-1", "", 10)
	if err := s.MergeStagedChunk(ctx, chunk); err != nil {
		t.Fatalf("re-merge: %v", err)
	}

	got, _ := s.GetAuction(ctx, "alpha.com")
	if got.CurrentBid == nil || *got.CurrentBid != 42 {
		t.Errorf("bid not refreshed: got %v", got.CurrentBid)
	}
	if got.Score == nil || *got.Score != 0.9 {
		t.Errorf("score lost on re-merge: got %v", got.Score)
	}
	if got.Rank == nil || *got.Rank != 1 {
		t.Errorf("rank lost on re-merge: got %v", got.Rank)
	}
	if !got.Preferred {
		t.Error("preferred lost on re-merge")
	}
	if !got.Processed {
		t.Error("processed lost on re-merge")
	}
}

func TestMergeIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testJob(t, s, "job-1")

	if err := s.InsertStagedBatch(ctx, "job-1", []*Staged{
		staged("job-1", "alpha.com", 10),
		staged("job-1", "beta.com", 20),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	chunk, _ := s.StagedChunk(ctx, "job-1", "", 10)

	// Merging the same chunk twice produces the same canonical row set.
	if err := s.MergeStagedChunk(ctx, chunk); err != nil {
		t.Fatalf("merge 1: %v", err)
	}
	if err := s.MergeStagedChunk(ctx, chunk); err != nil {
		t.Fatalf("merge 2: %v", err)
	}
	if total, _ := s.CountAuctions(ctx); total != 2 {
		t.Errorf("auctions after double merge: got %d, want 2", total)
	}
}

func TestScoringBatch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testJob(t, s, "job-1")

	recs := []*Staged{
		staged("job-1", "alpha.com", 10),
		staged("job-1", "beta.com", 20),
		staged("job-1", "gamma.com", 30),
	}
	if err := s.InsertStagedBatch(ctx, "job-1", recs); err != nil {
		t.Fatalf("insert: %v", err)
	}
	chunk, _ := s.StagedChunk(ctx, "job-1", "", 10)
	if err := s.MergeStagedChunk(ctx, chunk); err != nil {
		t.Fatalf("merge: %v", err)
	}

	batch, err := s.UnprocessedBatch(ctx, 2)
	if err != nil {
		t.Fatalf("unprocessed: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("batch: got %d, want 2", len(batch))
	}

	score := 0.5
	results := []ScoreResult{
		{ID: batch[0].ID, Score: &score},
		{ID: batch[1].ID, Score: nil}, // malformed record: processed, no score
	}
	if err := s.ApplyScores(ctx, results); err != nil {
		t.Fatalf("apply: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Processed != 2 || stats.Unprocessed != 1 || stats.Scored != 1 {
		t.Errorf("stats: got %+v", stats)
	}

	// Null-scored record is never returned again.
	rest, _ := s.UnprocessedBatch(ctx, 10)
	if len(rest) != 1 || rest[0].Domain != "gamma.com" {
		t.Errorf("remaining unprocessed: got %v", rest)
	}
}

func TestJobProgressClamp(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testJob(t, s, "job-1")

	if err := s.SetJobTotal(ctx, "job-1", 10); err != nil {
		t.Fatalf("set total: %v", err)
	}
	if err := s.AddJobProgress(ctx, "job-1", 7); err != nil {
		t.Fatalf("progress: %v", err)
	}
	// A re-merged chunk must not push processed past total.
	if err := s.AddJobProgress(ctx, "job-1", 7); err != nil {
		t.Fatalf("progress: %v", err)
	}

	j, err := s.GetJob(ctx, "job-1")
	if err != nil || j == nil {
		t.Fatalf("get: %v %v", j, err)
	}
	if j.Processed != 10 {
		t.Errorf("processed: got %d, want 10 (clamped)", j.Processed)
	}
}

func TestStuckJobs(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testJob(t, s, "job-old")
	testJob(t, s, "job-new")
	testJob(t, s, "job-done")

	if err := s.SetJobStage(ctx, "job-done", StageCompleted); err != nil {
		t.Fatalf("stage: %v", err)
	}
	// Age job-old artificially.
	old := time.Now().Add(-2 * time.Hour).UnixMilli()
	if _, err := s.DB.Exec(`UPDATE ingestion_jobs SET updated_at = ? WHERE id = 'job-old'`, old); err != nil {
		t.Fatalf("age: %v", err)
	}

	cutoff := time.Now().Add(-time.Hour).UnixMilli()
	stuck, err := s.StuckJobs(ctx, cutoff)
	if err != nil {
		t.Fatalf("stuck: %v", err)
	}
	if len(stuck) != 1 || stuck[0].ID != "job-old" {
		t.Fatalf("stuck: got %v", stuck)
	}

	if err := s.SetJobFailed(ctx, "job-old", "stale: no progress for 1h0m0s"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	j, _ := s.GetJob(ctx, "job-old")
	if j.Stage != StageFailed || j.Error == "" {
		t.Errorf("after fail: %+v", j)
	}
}

func TestSetJobStageForwardOnly(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testJob(t, s, "job-fwd")
	testJob(t, s, "job-dead")

	if err := s.SetJobStage(ctx, "job-fwd", StageScoring); err != nil {
		t.Fatalf("stage: %v", err)
	}
	// A write of an earlier stage is ignored.
	if err := s.SetJobStage(ctx, "job-fwd", StageMerging); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if j, _ := s.GetJob(ctx, "job-fwd"); j.Stage != StageScoring {
		t.Errorf("stage after backward write: got %s, want scoring", j.Stage)
	}
	// Re-writing the current stage is allowed.
	if err := s.SetJobStage(ctx, "job-fwd", StageScoring); err != nil {
		t.Fatalf("stage: %v", err)
	}

	// Failed jobs never leave failed via SetJobStage.
	if err := s.SetJobFailed(ctx, "job-dead", "operator abort"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := s.SetJobStage(ctx, "job-dead", StageCompleted); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if j, _ := s.GetJob(ctx, "job-dead"); j.Stage != StageFailed {
		t.Errorf("stage after write on failed job: got %s, want failed", j.Stage)
	}

	if err := s.SetJobStage(ctx, "job-fwd", "archived"); err == nil {
		t.Error("unknown stage accepted")
	}
}

func TestScoringConfigActivation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	th := 0.7
	if err := s.InsertScoringConfig(ctx, &ScoringConfig{ID: "cfg-1", Name: "strict", ScoreThreshold: &th, Active: true}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var rank int64 = 100
	if err := s.InsertScoringConfig(ctx, &ScoringConfig{ID: "cfg-2", Name: "top100", RankThreshold: &rank}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := s.ActivateScoringConfig(ctx, "cfg-2"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	active, err := s.ActiveScoringConfig(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active == nil || active.ID != "cfg-2" {
		t.Fatalf("active: got %v", active)
	}

	// Exactly one active.
	configs, _ := s.ListScoringConfigs(ctx)
	activeCount := 0
	for _, c := range configs {
		if c.Active {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Errorf("active configs: got %d, want 1", activeCount)
	}

	if err := s.ActivateScoringConfig(ctx, "missing"); err == nil {
		t.Error("activating missing config: expected error")
	}
}

func TestDeleteExpired(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	testJob(t, s, "job-1")

	past := staged("job-1", "gone.com", 1)
	past.ExpiresAt = time.Now().Add(-time.Hour).UnixMilli()
	future := staged("job-1", "alive.com", 2)
	if err := s.InsertStagedBatch(ctx, "job-1", []*Staged{past, future}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	chunk, _ := s.StagedChunk(ctx, "job-1", "", 10)
	if err := s.MergeStagedChunk(ctx, chunk); err != nil {
		t.Fatalf("merge: %v", err)
	}

	now := time.Now().UnixMilli()
	n, err := s.DeleteExpired(ctx, now, 100)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted: got %d, want 1", n)
	}
	// Idempotent: second sweep deletes nothing.
	n, err = s.DeleteExpired(ctx, now, 100)
	if err != nil {
		t.Fatalf("delete expired again: %v", err)
	}
	if n != 0 {
		t.Errorf("second sweep: got %d, want 0", n)
	}
	if a, _ := s.GetAuction(ctx, "alive.com"); a == nil {
		t.Error("unexpired record was deleted")
	}
}
