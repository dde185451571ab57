package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hazyhaar/domdrop/dbopen"
)

// InsertScoringConfig inserts a new scoring config.
func (s *Store) InsertScoringConfig(ctx context.Context, c *ScoringConfig) error {
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO scoring_configs (id, name, score_threshold, rank_threshold, use_both, active, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.Name, c.ScoreThreshold, c.RankThreshold, c.UseBoth, c.Active, c.CreatedAt,
	)
	return err
}

// GetScoringConfig retrieves a config by ID. Returns nil, nil when absent.
func (s *Store) GetScoringConfig(ctx context.Context, id string) (*ScoringConfig, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, score_threshold, rank_threshold, use_both, active, created_at
		FROM scoring_configs WHERE id = ?`, id)
	return scanConfig(row)
}

// ActiveScoringConfig returns the currently active config, or nil, nil when
// no config is active.
func (s *Store) ActiveScoringConfig(ctx context.Context) (*ScoringConfig, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, score_threshold, rank_threshold, use_both, active, created_at
		FROM scoring_configs WHERE active = 1 LIMIT 1`)
	return scanConfig(row)
}

// ListScoringConfigs returns all configs, newest first.
func (s *Store) ListScoringConfigs(ctx context.Context) ([]*ScoringConfig, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, score_threshold, rank_threshold, use_both, active, created_at
		FROM scoring_configs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*ScoringConfig
	for rows.Next() {
		c := &ScoringConfig{}
		if err := rows.Scan(&c.ID, &c.Name, &c.ScoreThreshold, &c.RankThreshold,
			&c.UseBoth, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// ActivateScoringConfig makes the given config the single active one.
func (s *Store) ActivateScoringConfig(ctx context.Context, id string) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE scoring_configs SET active = 0 WHERE active = 1`); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE scoring_configs SET active = 1 WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// DeleteScoringConfig removes a config.
func (s *Store) DeleteScoringConfig(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM scoring_configs WHERE id = ?`, id)
	return err
}

func scanConfig(row *sql.Row) (*ScoringConfig, error) {
	c := &ScoringConfig{}
	err := row.Scan(&c.ID, &c.Name, &c.ScoreThreshold, &c.RankThreshold,
		&c.UseBoth, &c.Active, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
