package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/domdrop/dbopen"
)

// InsertStagedBatch inserts one batch of staged records in a single
// transaction. Each batch is independent: a failed batch does not roll back
// previously committed ones (at-least-once — the merge engine's
// upsert-by-domain is what keeps the overall pipeline idempotent).
func (s *Store) InsertStagedBatch(ctx context.Context, jobID string, recs []*Staged) error {
	if len(recs) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO staged_records (job_id, domain, site, expires_at, current_bid, listing_url, payload_json, created_at)
			VALUES (?,?,?,?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("prepare staged insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range recs {
			payload := r.PayloadJSON
			if payload == "" {
				payload = "{}"
			}
			if _, err := stmt.ExecContext(ctx,
				jobID, r.Domain, r.Site, r.ExpiresAt, r.CurrentBid, r.ListingURL, payload, now,
			); err != nil {
				return fmt.Errorf("insert staged %s: %w", r.Domain, err)
			}
		}
		return nil
	})
}

// StagedChunk returns up to limit staged records for a job, oldest first,
// optionally filtered by source marketplace. It does NOT delete them:
// deletion happens separately after a successful merge, so a crash between
// fetch and merge leaves the chunk re-fetchable.
func (s *Store) StagedChunk(ctx context.Context, jobID, site string, limit int) ([]*Staged, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT id, job_id, domain, site, expires_at, current_bid, listing_url, payload_json, created_at
		FROM staged_records WHERE job_id = ?`
	args := []any{jobID}
	if site != "" {
		query += ` AND site = ?`
		args = append(args, site)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*Staged
	for rows.Next() {
		r := &Staged{}
		if err := rows.Scan(&r.ID, &r.JobID, &r.Domain, &r.Site, &r.ExpiresAt,
			&r.CurrentBid, &r.ListingURL, &r.PayloadJSON, &r.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// DeleteStaged removes exactly the given staged rows.
func (s *Store) DeleteStaged(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args := inClause(`DELETE FROM staged_records WHERE id IN `, ids)
	_, err := dbopen.Exec(ctx, s.DB, query, args...)
	return err
}

// CountStaged returns the authoritative number of staged records remaining
// for a job.
func (s *Store) CountStaged(ctx context.Context, jobID string) (int64, error) {
	var n int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM staged_records WHERE job_id = ?`, jobID,
	).Scan(&n)
	return n, err
}

// inClause builds "prefix (?,?,...)" and the matching args slice.
func inClause(prefix string, ids []int64) (string, []any) {
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	return prefix + "(" + strings.Join(ph, ",") + ")", args
}
