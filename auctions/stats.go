package auctions

import (
	"context"
	"fmt"
	"time"
)

// Stats returns scoring progress over the canonical table: total records,
// processed, unprocessed backlog and non-null score count.
func (svc *Service) Stats(ctx context.Context) (*ProcessingStats, error) {
	return svc.store.Stats(ctx)
}

// TopPreferred returns up to limit preferred records, best rank first.
func (svc *Service) TopPreferred(ctx context.Context, limit int) ([]*Auction, error) {
	return svc.store.TopPreferred(ctx, limit)
}

// GetAuction returns the canonical record for a domain, normalizing the
// lookup key the same way intake does. Returns nil when not present.
func (svc *Service) GetAuction(ctx context.Context, domain string) (*Auction, error) {
	normalized, err := NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}
	return svc.store.GetAuction(ctx, normalized)
}

// SweepExpired deletes canonical records whose auction expired before now,
// in bounded rounds until one round deletes fewer rows than the batch
// size. Each round is idempotent and the sweep is safe to re-run.
func (svc *Service) SweepExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().UnixMilli()
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := svc.store.DeleteExpired(ctx, cutoff, svc.config.SweepBatchSize)
		if err != nil {
			return total, fmt.Errorf("delete expired: %w", err)
		}
		total += n
		if n < int64(svc.config.SweepBatchSize) {
			break
		}
	}
	if total > 0 {
		svc.logger.Info("auctions: expired records swept", "deleted", total)
	}
	return total, nil
}
