package store

import "context"

// Stats returns aggregate scoring counters over the canonical table.
func (s *Store) Stats(ctx context.Context) (*ProcessingStats, error) {
	var stats ProcessingStats
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(processed), 0),
		       COALESCE(SUM(CASE WHEN score IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM auctions`).Scan(&stats.Total, &stats.Processed, &stats.Scored)
	if err != nil {
		return nil, err
	}
	stats.Unprocessed = stats.Total - stats.Processed
	return &stats, nil
}
