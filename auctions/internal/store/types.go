package store

// Auction is a canonical deduplicated auction record.
//
// The merge engine owns domain-level identity and the listing fields;
// the scoring engine owns Score and Processed; the ranking engine owns
// Rank and Preferred. A re-merge of the same domain refreshes the listing
// fields and never touches the derived ones.
type Auction struct {
	ID          int64    `json:"id"`
	Domain      string   `json:"domain"`
	Site        string   `json:"site"`
	ExpiresAt   int64    `json:"expires_at"`
	CurrentBid  *float64 `json:"current_bid,omitempty"`
	ListingURL  string   `json:"listing_url,omitempty"`
	PayloadJSON string   `json:"payload_json,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	Rank        *int64   `json:"rank,omitempty"`
	Preferred   bool     `json:"preferred"`
	Processed   bool     `json:"processed"`
	HasStats    bool     `json:"has_stats"`
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
}

// Staged is a normalized record parked in staging until the merge engine
// moves it into the auctions table. Never updated in place.
type Staged struct {
	ID          int64    `json:"id"`
	JobID       string   `json:"job_id"`
	Domain      string   `json:"domain"`
	Site        string   `json:"site"`
	ExpiresAt   int64    `json:"expires_at"`
	CurrentBid  *float64 `json:"current_bid,omitempty"`
	ListingURL  string   `json:"listing_url,omitempty"`
	PayloadJSON string   `json:"payload_json,omitempty"`
	CreatedAt   int64    `json:"created_at"`
}

// Job stage values. Stages only move forward; "failed" is terminal and
// reachable from any non-terminal stage.
const (
	StageReceived  = "received"
	StageStaging   = "staging"
	StageMerging   = "merging"
	StageScoring   = "scoring"
	StageCompleted = "completed"
	StageFailed    = "failed"
)

// Job is one ingestion job's persisted state.
type Job struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Site      string `json:"site"`
	Stage     string `json:"stage"`
	Total     int64  `json:"total_records"`
	Processed int64  `json:"processed_records"`
	Error     string `json:"error,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Terminal reports whether the job reached a terminal stage.
func (j *Job) Terminal() bool {
	return j.Stage == StageCompleted || j.Stage == StageFailed
}

// ScoringConfig selects the threshold policy for the preferred flag.
// At most one config is active at a time; the ranking engine reads it,
// the pipeline never mutates it.
type ScoringConfig struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
	RankThreshold  *int64   `json:"rank_threshold,omitempty"`
	UseBoth        bool     `json:"use_both"`
	Active         bool     `json:"active"`
	CreatedAt      int64    `json:"created_at"`
}

// ProcessingStats summarises scoring progress over the canonical table.
type ProcessingStats struct {
	Total       int64 `json:"total"`
	Processed   int64 `json:"processed"`
	Unprocessed int64 `json:"unprocessed"`
	Scored      int64 `json:"scored"`
}
