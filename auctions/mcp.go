package auctions

import (
	"context"
	"encoding/json"

	"github.com/hazyhaar/domdrop/kit"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers all auctions tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerStartMerge(srv)
	svc.registerProcessScoringBatch(srv)
	svc.registerRecalculateRankings(srv)
	svc.registerGetProcessingStats(srv)
	svc.registerResetStuckJobs(srv)
	svc.registerGetJob(srv)
	svc.registerListJobs(srv)
	svc.registerFailJob(srv)
	svc.registerTopPreferred(srv)
	svc.registerSweepExpired(srv)
	svc.registerAddScoringConfig(srv)
	svc.registerListScoringConfigs(srv)
	svc.registerActivateScoringConfig(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func decodeInto[T any]() func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		p := new(T)
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, p); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: p}, nil
	}
}

// --- Pipeline ---

func (svc *Service) registerStartMerge(srv *mcp.Server) {
	type req struct {
		JobID string `json:"job_id"`
	}

	tool := &mcp.Tool{
		Name:        "auctions_start_merge",
		Description: "Drain a job's staged records into the canonical table in chunks",
		InputSchema: inputSchema(map[string]any{
			"job_id": map[string]any{"type": "string", "description": "Ingestion job ID"},
		}, []string{"job_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.Merge(ctx, p.JobID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (svc *Service) registerProcessScoringBatch(srv *mcp.Server) {
	type req struct {
		BatchSize int `json:"batch_size"`
	}

	tool := &mcp.Tool{
		Name:        "auctions_process_scoring_batch",
		Description: "Score one batch of unprocessed canonical records",
		InputSchema: inputSchema(map[string]any{
			"batch_size": map[string]any{"type": "integer", "description": "Records per batch (default 10000)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.ProcessScoringBatch(ctx, p.BatchSize)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (svc *Service) registerRecalculateRankings(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "auctions_recalculate_rankings",
		Description: "Recompute dense ranks and preferred flags for all scored records",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return svc.RecalculateRankings(ctx)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (svc *Service) registerGetProcessingStats(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "auctions_get_processing_stats",
		Description: "Scoring progress over the canonical table: total, processed, unprocessed, scored",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return svc.Stats(ctx)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (svc *Service) registerResetStuckJobs(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "auctions_reset_stuck_jobs",
		Description: "Mark jobs stalled in a non-terminal stage as failed (metadata only)",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		n, err := svc.ResetStuckJobs(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"reset": n}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (svc *Service) registerSweepExpired(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "auctions_sweep_expired",
		Description: "Delete canonical records whose auction already expired",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		n, err := svc.SweepExpired(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"deleted": n}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

// --- Jobs ---

func (svc *Service) registerGetJob(srv *mcp.Server) {
	type req struct {
		JobID string `json:"job_id"`
	}

	tool := &mcp.Tool{
		Name:        "auctions_get_job",
		Description: "Poll one ingestion job's stage, counts and error",
		InputSchema: inputSchema(map[string]any{
			"job_id": map[string]any{"type": "string", "description": "Ingestion job ID"},
		}, []string{"job_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.GetJob(ctx, p.JobID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (svc *Service) registerListJobs(srv *mcp.Server) {
	type req struct {
		Limit int `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "auctions_list_jobs",
		Description: "List recent ingestion jobs, newest first",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max jobs to return"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.ListJobs(ctx, p.Limit)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (svc *Service) registerFailJob(srv *mcp.Server) {
	type req struct {
		JobID  string `json:"job_id"`
		Reason string `json:"reason"`
	}

	tool := &mcp.Tool{
		Name:        "auctions_fail_job",
		Description: "Force-fail a job; committed chunks and staged rows stay intact",
		InputSchema: inputSchema(map[string]any{
			"job_id": map[string]any{"type": "string", "description": "Ingestion job ID"},
			"reason": map[string]any{"type": "string", "description": "Operator-visible reason"},
		}, []string{"job_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if err := svc.FailJob(ctx, p.JobID, p.Reason); err != nil {
			return nil, err
		}
		return svc.GetJob(ctx, p.JobID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

// --- Records & configs ---

func (svc *Service) registerTopPreferred(srv *mcp.Server) {
	type req struct {
		Limit int `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "auctions_top_preferred",
		Description: "List preferred auction records, best rank first",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max records to return"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.TopPreferred(ctx, p.Limit)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (svc *Service) registerAddScoringConfig(srv *mcp.Server) {
	type req struct {
		Name           string   `json:"name"`
		ScoreThreshold *float64 `json:"score_threshold"`
		RankThreshold  *int64   `json:"rank_threshold"`
		UseBoth        bool     `json:"use_both"`
	}

	tool := &mcp.Tool{
		Name:        "auctions_add_scoring_config",
		Description: "Store a preferred-flag threshold policy (created inactive)",
		InputSchema: inputSchema(map[string]any{
			"name":            map[string]any{"type": "string", "description": "Config name"},
			"score_threshold": map[string]any{"type": "number", "description": "Minimum score, within [0,1]"},
			"rank_threshold":  map[string]any{"type": "integer", "description": "Maximum rank"},
			"use_both":        map[string]any{"type": "boolean", "description": "Require both thresholds (AND) instead of either (OR)"},
		}, []string{"name"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		cfg := &ScoringConfig{
			Name:           p.Name,
			ScoreThreshold: p.ScoreThreshold,
			RankThreshold:  p.RankThreshold,
			UseBoth:        p.UseBoth,
		}
		if err := svc.AddScoringConfig(ctx, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (svc *Service) registerListScoringConfigs(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "auctions_list_scoring_configs",
		Description: "List stored preferred-flag threshold policies",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return svc.ListScoringConfigs(ctx)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (svc *Service) registerActivateScoringConfig(srv *mcp.Server) {
	type req struct {
		ConfigID string `json:"config_id"`
	}

	tool := &mcp.Tool{
		Name:        "auctions_activate_scoring_config",
		Description: "Make one threshold policy active; takes effect at the next ranking run",
		InputSchema: inputSchema(map[string]any{
			"config_id": map[string]any{"type": "string", "description": "Scoring config ID"},
		}, []string{"config_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if err := svc.ActivateScoringConfig(ctx, p.ConfigID); err != nil {
			return nil, err
		}
		return map[string]any{"activated": p.ConfigID}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}
