package auctions

import (
	"time"

	"github.com/hazyhaar/domdrop/auctions/internal/store"
)

// Re-exported store types so callers never import internal packages.
type (
	// Auction is a canonical deduplicated auction record.
	Auction = store.Auction
	// Staged is a normalized record waiting in staging for the merge engine.
	Staged = store.Staged
	// Job is one ingestion job's persisted state.
	Job = store.Job
	// ScoringConfig selects the threshold policy for the preferred flag.
	ScoringConfig = store.ScoringConfig
	// ProcessingStats summarises scoring progress over the canonical table.
	ProcessingStats = store.ProcessingStats
)

// Job stage values.
const (
	StageReceived  = store.StageReceived
	StageStaging   = store.StageStaging
	StageMerging   = store.StageMerging
	StageScoring   = store.StageScoring
	StageCompleted = store.StageCompleted
	StageFailed    = store.StageFailed
)

// RawRow is one listing row as delivered by a marketplace file, before
// normalization. Fields the source does not provide stay zero.
type RawRow struct {
	// Domain is the listed domain, possibly with scheme or www. prefix.
	Domain string
	// ExpiresAt is the absolute auction expiry in Unix milliseconds.
	ExpiresAt int64
	// TimeRemaining is a relative expiry for sources that only publish
	// "time left"; resolved against ObservedAt during normalization.
	TimeRemaining time.Duration
	// ObservedAt anchors TimeRemaining. Zero means time of normalization.
	ObservedAt int64
	// CurrentBid is the current bid, if the source publishes one.
	CurrentBid *float64
	// ListingURL links back to the marketplace listing.
	ListingURL string
	// PayloadJSON carries source-specific fields for later enrichment.
	PayloadJSON string
}
