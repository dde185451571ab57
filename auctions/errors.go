package auctions

import "errors"

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = errors.New("auctions: job not found")

// ErrJobNotActive is returned when a stage engine is invoked on a job that
// already reached a terminal state.
var ErrJobNotActive = errors.New("auctions: job is not active")

// ErrInvalidInput is returned when request input fails validation.
var ErrInvalidInput = errors.New("auctions: invalid input")

// ErrConfigNotFound is returned when a scoring config id does not exist.
var ErrConfigNotFound = errors.New("auctions: scoring config not found")

// Row rejection reasons, returned by the normalizer. Rejected rows are
// counted and skipped, never fatal to a job.
var (
	ErrMissingDomain = errors.New("auctions: row has no resolvable domain")
	ErrMissingExpiry = errors.New("auctions: row has no resolvable expiration")
)
