package auctions

import (
	"context"
	"fmt"

	"github.com/hazyhaar/domdrop/auctions/internal/store"
)

// ScoreBatchSummary reports one scoring batch.
type ScoreBatchSummary struct {
	Processed int64 `json:"processed"`
	Scored    int64 `json:"scored"`
	Failed    int64 `json:"failed"`
}

// ProcessScoringBatch scores up to batchSize unprocessed canonical records
// and marks every one processed in a single batch update. A record the
// scoring function rejects is marked processed with a null score — per
// record failures are terminal, never retried, so the backlog always
// drains. batchSize <= 0 uses the configured default.
func (svc *Service) ProcessScoringBatch(ctx context.Context, batchSize int) (*ScoreBatchSummary, error) {
	if batchSize <= 0 {
		batchSize = svc.config.ScoreBatchSize
	}

	recs, err := svc.store.UnprocessedBatch(ctx, batchSize)
	if err != nil {
		return nil, fmt.Errorf("fetch unprocessed: %w", err)
	}
	sum := &ScoreBatchSummary{}
	if len(recs) == 0 {
		return sum, nil
	}

	results := make([]store.ScoreResult, 0, len(recs))
	for _, rec := range recs {
		score, err := svc.scoreFn(rec)
		if err != nil {
			svc.logger.Debug("auctions: record unscorable",
				"domain", rec.Domain, "error", err)
			results = append(results, store.ScoreResult{ID: rec.ID})
			sum.Failed++
			continue
		}
		s := score
		results = append(results, store.ScoreResult{ID: rec.ID, Score: &s})
		sum.Scored++
	}

	if err := svc.store.ApplyScores(ctx, results); err != nil {
		return nil, fmt.Errorf("apply scores: %w", err)
	}
	sum.Processed = int64(len(results))
	svc.logger.Info("auctions: scoring batch done",
		"processed", sum.Processed, "scored", sum.Scored, "failed", sum.Failed)
	return sum, nil
}

// ScoreAll runs scoring batches until the unprocessed backlog is empty.
// Returns the aggregate over all batches.
func (svc *Service) ScoreAll(ctx context.Context) (*ScoreBatchSummary, error) {
	total := &ScoreBatchSummary{}
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		sum, err := svc.ProcessScoringBatch(ctx, svc.config.ScoreBatchSize)
		if err != nil {
			return total, err
		}
		if sum.Processed == 0 {
			return total, nil
		}
		total.Processed += sum.Processed
		total.Scored += sum.Scored
		total.Failed += sum.Failed
	}
}
