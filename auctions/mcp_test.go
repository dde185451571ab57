package auctions

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testImpl = &mcp.Implementation{Name: "auctions-test", Version: "0.1.0"}

func mcpSession(t *testing.T) (*Service, *mcp.ClientSession) {
	t.Helper()
	svc := newTestService(t)

	srv := mcp.NewServer(testImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()

	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return svc, session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if result.IsError {
		t.Fatalf("CallTool(%s) tool error: %v", name, result.Content)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

func TestMCP_StartMergeAndStats(t *testing.T) {
	svc, session := mcpSession(t)
	expiry := time.Now().Add(24 * time.Hour).UnixMilli()

	job := stageRows(t, svc, "sedo", []*RawRow{
		{Domain: "a.com", ExpiresAt: expiry, CurrentBid: bid(10)},
		{Domain: "b.com", ExpiresAt: expiry, CurrentBid: bid(20)},
		{Domain: "a.com", ExpiresAt: expiry, CurrentBid: bid(15)},
	})

	text := callTool(t, session, "auctions_start_merge", map[string]any{"job_id": job.ID})
	var merge MergeSummary
	if err := json.Unmarshal([]byte(text), &merge); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if merge.Merged != 3 {
		t.Fatalf("merged = %d, want 3", merge.Merged)
	}

	text = callTool(t, session, "auctions_process_scoring_batch", map[string]any{"batch_size": 100})
	var score ScoreBatchSummary
	json.Unmarshal([]byte(text), &score)
	if score.Processed != 2 {
		t.Fatalf("processed = %d, want 2 (deduplicated set)", score.Processed)
	}

	text = callTool(t, session, "auctions_get_processing_stats", map[string]any{})
	var stats ProcessingStats
	if err := json.Unmarshal([]byte(text), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.Total != 2 || stats.Unprocessed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestMCP_RecalculateRankings(t *testing.T) {
	svc, session := mcpSession(t)
	expiry := time.Now().Add(24 * time.Hour).UnixMilli()

	mergeRows(t, svc, []*RawRow{
		{Domain: "a.com", ExpiresAt: expiry},
		{Domain: "b.com", ExpiresAt: expiry},
	})
	if _, err := svc.ProcessScoringBatch(context.Background(), 100); err != nil {
		t.Fatal(err)
	}

	text := callTool(t, session, "auctions_recalculate_rankings", map[string]any{})
	var sum RankSummary
	if err := json.Unmarshal([]byte(text), &sum); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sum.Ranked != 2 || sum.Preferred != 2 {
		t.Fatalf("summary = %+v, want 2 ranked and all preferred", sum)
	}
}

func TestMCP_JobLifecycle(t *testing.T) {
	svc, session := mcpSession(t)
	ctx := context.Background()

	job, err := svc.StartJob(ctx, "x.csv", "sedo")
	if err != nil {
		t.Fatal(err)
	}

	text := callTool(t, session, "auctions_get_job", map[string]any{"job_id": job.ID})
	var got Job
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Stage != StageReceived {
		t.Fatalf("stage = %s, want received", got.Stage)
	}

	text = callTool(t, session, "auctions_fail_job", map[string]any{
		"job_id": job.ID, "reason": "operator abort",
	})
	json.Unmarshal([]byte(text), &got)
	if got.Stage != StageFailed || got.Error != "operator abort" {
		t.Fatalf("after fail: %+v", got)
	}

	text = callTool(t, session, "auctions_list_jobs", map[string]any{"limit": 10})
	var jobs []*Job
	if err := json.Unmarshal([]byte(text), &jobs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
}

func TestMCP_ToolErrorForUnknownJob(t *testing.T) {
	_, session := mcpSession(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "auctions_start_merge",
		Arguments: map[string]any{"job_id": "missing"},
	})
	if err != nil {
		t.Fatalf("CallTool transport error: %v", err)
	}
	// IsError is the only error signal visible on the client side.
	if !result.IsError {
		t.Fatal("expected a tool error for an unknown job")
	}
}

func TestMCP_ScoringConfigs(t *testing.T) {
	_, session := mcpSession(t)

	text := callTool(t, session, "auctions_add_scoring_config", map[string]any{
		"name":            "strict",
		"score_threshold": 0.8,
		"use_both":        true,
	})
	var cfg ScoringConfig
	if err := json.Unmarshal([]byte(text), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.ID == "" {
		t.Fatal("expected generated config id")
	}
	if cfg.Active {
		t.Fatal("new configs start inactive")
	}

	callTool(t, session, "auctions_activate_scoring_config", map[string]any{
		"config_id": cfg.ID,
	})

	text = callTool(t, session, "auctions_list_scoring_configs", map[string]any{})
	var cfgs []*ScoringConfig
	if err := json.Unmarshal([]byte(text), &cfgs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(cfgs) != 1 || !cfgs[0].Active {
		t.Fatalf("configs = %+v, want one active", cfgs)
	}
}
