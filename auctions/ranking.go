package auctions

import (
	"context"
	"fmt"

	"github.com/hazyhaar/domdrop/auctions/internal/store"
)

// RankSummary reports one full ranking recomputation.
type RankSummary struct {
	Ranked    int64 `json:"ranked"`
	Preferred int64 `json:"preferred"`
}

// RecalculateRankings assigns a dense 1-based rank to every scored record
// and recomputes the preferred flag from the active scoring config, both in
// bounded pages so no single statement grows with the table.
//
// Pages are ordered by score descending with the row id as secondary key;
// the tie-break keeps ranks deterministic across runs and across page
// boundaries. Rank writes land before the preferred pass starts, since the
// policy may depend on rank thresholds.
func (svc *Service) RecalculateRankings(ctx context.Context) (*RankSummary, error) {
	cfg, err := svc.store.ActiveScoringConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active config: %w", err)
	}

	sum := &RankSummary{}
	pageSize := svc.config.RankPageSize

	// First pass: ranks.
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		page, err := svc.store.ScoredPage(ctx, pageSize, offset)
		if err != nil {
			return sum, fmt.Errorf("fetch scored page: %w", err)
		}
		if len(page) == 0 {
			break
		}
		assignments := make([]store.RankAssignment, len(page))
		for i, rec := range page {
			assignments[i] = store.RankAssignment{ID: rec.ID, Rank: int64(offset + i + 1)}
		}
		if err := svc.store.AssignRanks(ctx, assignments); err != nil {
			return sum, fmt.Errorf("assign ranks: %w", err)
		}
		sum.Ranked += int64(len(page))
		if len(page) < pageSize {
			break
		}
	}

	// Second pass: preferred flags under the active policy.
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		page, err := svc.store.ScoredPage(ctx, pageSize, offset)
		if err != nil {
			return sum, fmt.Errorf("fetch ranked page: %w", err)
		}
		if len(page) == 0 {
			break
		}
		updates := make([]store.PreferredUpdate, len(page))
		for i, rec := range page {
			preferred := preferredUnderPolicy(cfg, rec)
			updates[i] = store.PreferredUpdate{ID: rec.ID, Preferred: preferred}
			if preferred {
				sum.Preferred++
			}
		}
		if err := svc.store.ApplyPreferred(ctx, updates); err != nil {
			return sum, fmt.Errorf("apply preferred: %w", err)
		}
		if len(page) < pageSize {
			break
		}
	}

	svc.logger.Info("auctions: rankings recalculated",
		"ranked", sum.Ranked, "preferred", sum.Preferred)
	return sum, nil
}

// preferredUnderPolicy evaluates the active threshold policy for one
// scored record. A nil config means no policy is active and every scored
// record is preferred. An absent threshold counts as met under use_both;
// under either-suffices a record qualifies by whichever threshold is set.
func preferredUnderPolicy(cfg *ScoringConfig, rec *Auction) bool {
	if cfg == nil || (cfg.ScoreThreshold == nil && cfg.RankThreshold == nil) {
		return true
	}

	scoreMet := cfg.ScoreThreshold == nil ||
		(rec.Score != nil && *rec.Score >= *cfg.ScoreThreshold)
	rankMet := cfg.RankThreshold == nil ||
		(rec.Rank != nil && *rec.Rank <= *cfg.RankThreshold)

	if cfg.UseBoth {
		return scoreMet && rankMet
	}
	// Either suffices, but only a threshold that is actually set counts.
	if cfg.ScoreThreshold != nil && rec.Score != nil && *rec.Score >= *cfg.ScoreThreshold {
		return true
	}
	if cfg.RankThreshold != nil && rec.Rank != nil && *rec.Rank <= *cfg.RankThreshold {
		return true
	}
	return false
}
