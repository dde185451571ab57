package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/domdrop/dbopen"
)

// MergeStagedChunk upserts one chunk of staged records into the auctions
// table and deletes the staged rows, all in a single transaction.
//
// The upsert is keyed on the normalized domain: insert if absent, otherwise
// refresh the listing fields (site, expiry, bid, URL, payload) while leaving
// score, rank, preferred and processed untouched — those belong to the
// scoring and ranking engines and must survive a re-merge.
//
// Two records with the same domain inside one chunk behave like repeated
// single-domain upserts: last write wins.
func (s *Store) MergeStagedChunk(ctx context.Context, recs []*Staged) error {
	if len(recs) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO auctions (domain, site, expires_at, current_bid, listing_url, payload_json, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?)
			ON CONFLICT(domain) DO UPDATE SET
				site         = excluded.site,
				expires_at   = excluded.expires_at,
				current_bid  = excluded.current_bid,
				listing_url  = excluded.listing_url,
				payload_json = excluded.payload_json,
				updated_at   = excluded.updated_at`)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		ids := make([]int64, 0, len(recs))
		for _, r := range recs {
			payload := r.PayloadJSON
			if payload == "" {
				payload = "{}"
			}
			if _, err := stmt.ExecContext(ctx,
				r.Domain, r.Site, r.ExpiresAt, r.CurrentBid, r.ListingURL, payload, now, now,
			); err != nil {
				return fmt.Errorf("upsert %s: %w", r.Domain, err)
			}
			ids = append(ids, r.ID)
		}

		query, args := inClause(`DELETE FROM staged_records WHERE id IN `, ids)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete staged chunk: %w", err)
		}
		return nil
	})
}

// GetAuction retrieves a canonical record by normalized domain.
// Returns nil, nil when the domain is not in the table.
func (s *Store) GetAuction(ctx context.Context, domain string) (*Auction, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, domain, site, expires_at, current_bid, listing_url, payload_json,
		       score, rank, preferred, processed, has_stats, created_at, updated_at
		FROM auctions WHERE domain = ?`, domain)
	return scanAuction(row)
}

// CountAuctions returns the total number of canonical records.
func (s *Store) CountAuctions(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM auctions`).Scan(&n)
	return n, err
}

// UnprocessedBatch returns up to limit records with processed = 0, in stable
// primary-key order.
func (s *Store) UnprocessedBatch(ctx context.Context, limit int) ([]*Auction, error) {
	if limit <= 0 {
		limit = 10_000
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, domain, site, expires_at, current_bid, listing_url, payload_json,
		       score, rank, preferred, processed, has_stats, created_at, updated_at
		FROM auctions WHERE processed = 0 ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAuctions(rows)
}

// ScoreResult carries one record's scoring outcome. A nil Score means the
// record could not be scored; it is still marked processed so it is never
// retried indefinitely.
type ScoreResult struct {
	ID    int64
	Score *float64
}

// ApplyScores writes one batch of scoring results in a single transaction,
// setting processed = 1 for every record in the batch.
func (s *Store) ApplyScores(ctx context.Context, results []ScoreResult) error {
	if len(results) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`UPDATE auctions SET score = ?, processed = 1, updated_at = ? WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("prepare score update: %w", err)
		}
		defer stmt.Close()

		for _, r := range results {
			if _, err := stmt.ExecContext(ctx, r.Score, now, r.ID); err != nil {
				return fmt.Errorf("apply score id=%d: %w", r.ID, err)
			}
		}
		return nil
	})
}

// ScoredPage returns one page of scored records ordered by score descending
// with the row id as deterministic tie-break, so ranks are stable across
// runs.
func (s *Store) ScoredPage(ctx context.Context, limit, offset int) ([]*Auction, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, domain, site, expires_at, current_bid, listing_url, payload_json,
		       score, rank, preferred, processed, has_stats, created_at, updated_at
		FROM auctions WHERE score IS NOT NULL
		ORDER BY score DESC, id ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAuctions(rows)
}

// RankAssignment pairs a record with its dense rank.
type RankAssignment struct {
	ID   int64
	Rank int64
}

// AssignRanks writes one page of rank assignments in a single transaction.
func (s *Store) AssignRanks(ctx context.Context, assignments []RankAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`UPDATE auctions SET rank = ?, updated_at = ? WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("prepare rank update: %w", err)
		}
		defer stmt.Close()

		for _, a := range assignments {
			if _, err := stmt.ExecContext(ctx, a.Rank, now, a.ID); err != nil {
				return fmt.Errorf("assign rank id=%d: %w", a.ID, err)
			}
		}
		return nil
	})
}

// PreferredUpdate pairs a record with its recomputed preferred flag.
type PreferredUpdate struct {
	ID        int64
	Preferred bool
}

// ApplyPreferred writes one page of preferred flags in a single transaction.
func (s *Store) ApplyPreferred(ctx context.Context, updates []PreferredUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`UPDATE auctions SET preferred = ?, updated_at = ? WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("prepare preferred update: %w", err)
		}
		defer stmt.Close()

		for _, u := range updates {
			if _, err := stmt.ExecContext(ctx, u.Preferred, now, u.ID); err != nil {
				return fmt.Errorf("apply preferred id=%d: %w", u.ID, err)
			}
		}
		return nil
	})
}

// CountScored returns the number of records with a non-null score.
func (s *Store) CountScored(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM auctions WHERE score IS NOT NULL`).Scan(&n)
	return n, err
}

// DeleteExpired removes up to limit canonical records whose expiry passed
// before cutoff. It returns the number of rows deleted; callers loop until
// it reports zero. Safe to call repeatedly.
func (s *Store) DeleteExpired(ctx context.Context, cutoff int64, limit int) (int64, error) {
	if limit <= 0 {
		limit = 1000
	}
	res, err := dbopen.Exec(ctx, s.DB, `
		DELETE FROM auctions WHERE id IN (
			SELECT id FROM auctions WHERE expires_at < ? ORDER BY expires_at ASC LIMIT ?
		)`, cutoff, limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TopPreferred returns up to limit preferred records, best rank first.
func (s *Store) TopPreferred(ctx context.Context, limit int) ([]*Auction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, domain, site, expires_at, current_bid, listing_url, payload_json,
		       score, rank, preferred, processed, has_stats, created_at, updated_at
		FROM auctions WHERE preferred = 1 AND rank IS NOT NULL
		ORDER BY rank ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAuctions(rows)
}

// SetHasStats flags a record as having enrichment data attached.
func (s *Store) SetHasStats(ctx context.Context, domain string, has bool) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE auctions SET has_stats = ?, updated_at = ? WHERE domain = ?`,
		has, time.Now().UnixMilli(), domain)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (*Auction, error) {
	a := &Auction{}
	err := row.Scan(&a.ID, &a.Domain, &a.Site, &a.ExpiresAt, &a.CurrentBid,
		&a.ListingURL, &a.PayloadJSON, &a.Score, &a.Rank, &a.Preferred,
		&a.Processed, &a.HasStats, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func collectAuctions(rows *sql.Rows) ([]*Auction, error) {
	var recs []*Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, a)
	}
	return recs, rows.Err()
}
