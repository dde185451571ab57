package auctions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AddScoringConfig stores a threshold policy. It is created inactive;
// activate it explicitly to put it in effect.
func (svc *Service) AddScoringConfig(ctx context.Context, c *ScoringConfig) error {
	if c.Name == "" {
		return fmt.Errorf("%w: config name is required", ErrInvalidInput)
	}
	if c.ScoreThreshold != nil && (*c.ScoreThreshold < 0 || *c.ScoreThreshold > 1) {
		return fmt.Errorf("%w: score threshold must be within [0, 1]", ErrInvalidInput)
	}
	if c.RankThreshold != nil && *c.RankThreshold < 1 {
		return fmt.Errorf("%w: rank threshold must be >= 1", ErrInvalidInput)
	}
	if c.ID == "" {
		c.ID = svc.newID()
	}
	c.Active = false
	if err := svc.store.InsertScoringConfig(ctx, c); err != nil {
		return fmt.Errorf("insert scoring config: %w", err)
	}
	svc.logger.Info("auctions: scoring config added", "config_id", c.ID, "name", c.Name)
	return nil
}

// ListScoringConfigs returns all stored threshold policies.
func (svc *Service) ListScoringConfigs(ctx context.Context) ([]*ScoringConfig, error) {
	return svc.store.ListScoringConfigs(ctx)
}

// ActiveScoringConfig returns the policy currently in effect, or nil when
// none is active (every scored record counts as preferred).
func (svc *Service) ActiveScoringConfig(ctx context.Context) (*ScoringConfig, error) {
	return svc.store.ActiveScoringConfig(ctx)
}

// ActivateScoringConfig makes one policy active and deactivates the rest.
// The new policy takes effect at the next ranking recomputation.
func (svc *Service) ActivateScoringConfig(ctx context.Context, id string) error {
	err := svc.store.ActivateScoringConfig(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrConfigNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("activate scoring config: %w", err)
	}
	svc.logger.Info("auctions: scoring config activated", "config_id", id)
	return nil
}

// DeleteScoringConfig removes a stored policy.
func (svc *Service) DeleteScoringConfig(ctx context.Context, id string) error {
	return svc.store.DeleteScoringConfig(ctx, id)
}
