package auctions

import "time"

// Config configures the auctions service.
type Config struct {
	// StageBatchSize is the number of normalized rows inserted into staging
	// per round-trip.
	StageBatchSize int

	// MergeChunkSize bounds one merge transaction. Conservative by default
	// so a chunk never approaches SQLite's statement parameter limit.
	MergeChunkSize int

	// MaxChunkRetries bounds retries of a failing merge chunk before the
	// job is marked failed.
	MaxChunkRetries int

	// ChunkRetryBackoff is the pause between merge chunk retries.
	ChunkRetryBackoff time.Duration

	// ScoreBatchSize is the number of unprocessed records scored per batch.
	ScoreBatchSize int

	// RankPageSize is the page size for rank and preferred recomputation.
	RankPageSize int

	// RecomputeEveryNJobs controls how often a completed job triggers a
	// full ranking recomputation: every Nth completion. 1 recomputes after
	// every job; 0 disables automatic recomputation entirely (operator
	// triggers it explicitly).
	RecomputeEveryNJobs int

	// StaleAfter is the staleness window after which a job still in a
	// non-terminal stage is considered stuck.
	StaleAfter time.Duration

	// SweepBatchSize bounds one round of the expiry sweep.
	SweepBatchSize int
}

func (c *Config) defaults() {
	if c.StageBatchSize <= 0 {
		c.StageBatchSize = 5000
	}
	if c.MergeChunkSize <= 0 {
		c.MergeChunkSize = 1000
	}
	if c.MaxChunkRetries <= 0 {
		c.MaxChunkRetries = 3
	}
	if c.ChunkRetryBackoff <= 0 {
		c.ChunkRetryBackoff = 2 * time.Second
	}
	if c.ScoreBatchSize <= 0 {
		c.ScoreBatchSize = 10000
	}
	if c.RankPageSize <= 0 {
		c.RankPageSize = 1000
	}
	if c.RecomputeEveryNJobs < 0 {
		c.RecomputeEveryNJobs = 0
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Minute
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = 1000
	}
}

func defaultConfig() *Config {
	return &Config{
		StageBatchSize:      5000,
		MergeChunkSize:      1000,
		MaxChunkRetries:     3,
		ChunkRetryBackoff:   2 * time.Second,
		ScoreBatchSize:      10000,
		RankPageSize:        1000,
		RecomputeEveryNJobs: 1,
		StaleAfter:          30 * time.Minute,
		SweepBatchSize:      1000,
	}
}
