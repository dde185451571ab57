package auctions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/domdrop/connectivity"
)

// RegisterConnectivity registers auctions service handlers on a
// connectivity Router, mirroring the MCP tool surface for service-to-
// service calls.
func (svc *Service) RegisterConnectivity(router *connectivity.Router) {
	router.RegisterLocal("auctions_start_merge", svc.handleStartMerge)
	router.RegisterLocal("auctions_process_scoring_batch", svc.handleProcessScoringBatch)
	router.RegisterLocal("auctions_recalculate_rankings", svc.handleRecalculateRankings)
	router.RegisterLocal("auctions_get_processing_stats", svc.handleGetProcessingStats)
	router.RegisterLocal("auctions_reset_stuck_jobs", svc.handleResetStuckJobs)
	router.RegisterLocal("auctions_get_job", svc.handleGetJob)
	router.RegisterLocal("auctions_list_jobs", svc.handleListJobs)
	router.RegisterLocal("auctions_fail_job", svc.handleFailJob)
	router.RegisterLocal("auctions_top_preferred", svc.handleTopPreferred)
	router.RegisterLocal("auctions_sweep_expired", svc.handleSweepExpired)
	router.RegisterLocal("auctions_get_auction", svc.handleGetAuction)
}

func (svc *Service) handleStartMerge(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	sum, err := svc.Merge(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sum)
}

func (svc *Service) handleProcessScoringBatch(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		BatchSize int `json:"batch_size"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
	}
	sum, err := svc.ProcessScoringBatch(ctx, req.BatchSize)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sum)
}

func (svc *Service) handleRecalculateRankings(ctx context.Context, _ []byte) ([]byte, error) {
	sum, err := svc.RecalculateRankings(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sum)
}

func (svc *Service) handleGetProcessingStats(ctx context.Context, _ []byte) ([]byte, error) {
	stats, err := svc.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stats)
}

func (svc *Service) handleResetStuckJobs(ctx context.Context, _ []byte) ([]byte, error) {
	n, err := svc.ResetStuckJobs(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]int{"reset": n})
}

func (svc *Service) handleGetJob(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	job, err := svc.GetJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(job)
}

func (svc *Service) handleListJobs(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Limit int `json:"limit"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
	}
	jobs, err := svc.ListJobs(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jobs)
}

func (svc *Service) handleFailJob(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		JobID  string `json:"job_id"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := svc.FailJob(ctx, req.JobID, req.Reason); err != nil {
		return nil, err
	}
	job, err := svc.GetJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(job)
}

func (svc *Service) handleTopPreferred(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Limit int `json:"limit"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
	}
	recs, err := svc.TopPreferred(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	return json.Marshal(recs)
}

func (svc *Service) handleSweepExpired(ctx context.Context, _ []byte) ([]byte, error) {
	n, err := svc.SweepExpired(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]int64{"deleted": n})
}

func (svc *Service) handleGetAuction(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Domain string `json:"domain"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	rec, err := svc.GetAuction(ctx, req.Domain)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}
