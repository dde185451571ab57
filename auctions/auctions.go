// Package auctions implements the domain-auction ingestion pipeline:
// marketplace listing files are normalized and staged per job, merged into
// a canonical deduplicated table in bounded chunks, scored in batches, and
// ranked with a configurable preferred-flag policy. Jobs persist a stage
// machine so partial failures are diagnosable and every stage is safe to
// re-invoke.
package auctions

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/hazyhaar/domdrop/auctions/internal/scorer"
	"github.com/hazyhaar/domdrop/auctions/internal/store"
	"github.com/hazyhaar/domdrop/dbopen"
	"github.com/hazyhaar/domdrop/idgen"
	"github.com/hazyhaar/domdrop/observability"
	"github.com/hazyhaar/domdrop/vtq"
)

// ScoreFunc computes a desirability score in [0, 1] for one canonical
// record. An error marks the record processed with a null score.
type ScoreFunc func(a *Auction) (float64, error)

// Service is the main auctions orchestrator.
type Service struct {
	store   *store.Store
	logger  *slog.Logger
	config  *Config
	newID   func() string
	scoreFn ScoreFunc
	queue   *vtq.Q                     // optional, background pipeline dispatch
	events  *observability.EventLogger // optional, business event trail

	completedJobs int64 // counter for the recompute-every-N policy
}

// OpenDB opens (or creates) the pipeline SQLite database at path with the
// domdrop pragmas and the pipeline schema applied. The returned handle is
// shared by the Service, the work queue and the event log.
func OpenDB(path string, opts ...dbopen.Option) (*sql.DB, error) {
	st, err := store.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	return st.DB, nil
}

// New creates an auctions Service on a database opened with OpenDB.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) *Service {
	if cfg == nil {
		cfg = defaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		store:  store.NewStore(db),
		logger: logger,
		config: cfg,
		newID:  idgen.New,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.scoreFn == nil {
		svc.scoreFn = DefaultScoreFunc(nil)
	}
	return svc
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithQueue sets the work queue used to dispatch pipeline runs in the
// background. Without a queue, callers drive the stages explicitly.
func WithQueue(q *vtq.Q) ServiceOption {
	return func(svc *Service) { svc.queue = q }
}

// WithEvents sets the business event logger.
func WithEvents(ev *observability.EventLogger) ServiceOption {
	return func(svc *Service) { svc.events = ev }
}

// WithScoreFunc overrides the scoring function. Use in tests for
// deterministic scores.
func WithScoreFunc(fn ScoreFunc) ServiceOption {
	return func(svc *Service) { svc.scoreFn = fn }
}

// DefaultScoreFunc builds the built-in desirability scorer: a weighted
// blend of name length, lexical quality and TLD tier, tunable via cfg.
func DefaultScoreFunc(cfg *scorer.Config) ScoreFunc {
	s := scorer.New(cfg)
	return func(a *Auction) (float64, error) {
		return s.Score(scorer.Input{Domain: a.Domain, HasStats: a.HasStats})
	}
}

// LoadScorerConfig reads scorer weights and TLD tiers from a YAML file.
func LoadScorerConfig(path string) (*scorer.Config, error) {
	return scorer.Load(path)
}

// Close shuts down the service.
func (svc *Service) Close() error {
	svc.logger.Info("auctions: closed")
	return nil
}

// logEvent emits a best-effort business event if an event logger is
// configured.
func (svc *Service) logEvent(ctx context.Context, entityType, entityID, action, details string, success bool) {
	if svc.events == nil {
		return
	}
	svc.events.LogEvent(ctx, observability.BusinessEvent{
		EventType:   "pipeline",
		ServiceName: "auctions",
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Details:     details,
		Success:     success,
	})
}
