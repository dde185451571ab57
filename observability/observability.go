// Package observability records domain-level business events for the
// domdrop pipeline: job lifecycle transitions, stage completions, terminal
// failures. Event writes are best-effort and never fail the pipeline.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/domdrop/idgen"
)

// Schema contains the DDL for the observability tables.
const Schema = `
-- Business Event Logs
CREATE TABLE IF NOT EXISTS business_event_logs (
    event_id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    service_name TEXT NOT NULL,
    entity_type TEXT,
    entity_id TEXT,
    action TEXT NOT NULL,
    details TEXT,
    success INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_event_logs_type ON business_event_logs(event_type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_event_logs_service ON business_event_logs(service_name, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_event_logs_entity ON business_event_logs(entity_type, entity_id);
`

// Init applies the observability schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// BusinessEvent represents a domain-level event to record.
type BusinessEvent struct {
	EventType   string
	ServiceName string
	EntityType  string
	EntityID    string
	Action      string
	Details     string // optional JSON
	Success     bool
}

// EventLogger writes business events and manages retention cleanup.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
}

// NewEventLogger creates a logger backed by the given database.
func NewEventLogger(db *sql.DB) *EventLogger {
	return &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
	}
}

// LogEvent records a business event. Non-blocking: errors are logged via
// slog but do not propagate, so a failing observability store never blocks
// the pipeline.
func (l *EventLogger) LogEvent(ctx context.Context, event BusinessEvent) {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO business_event_logs (
			event_id, event_type, service_name, entity_type, entity_id,
			action, details, success, created_at
		) VALUES (?,?,?,?,?,?,?,?,?)`,
		l.newID(), event.EventType, event.ServiceName, event.EntityType, event.EntityID,
		event.Action, event.Details, event.Success, time.Now().Unix())
	if err != nil {
		slog.Error("observability event log failed", "error", err, "event_type", event.EventType)
	}
}

// RecentEvents returns up to limit events for an entity, newest first.
func (l *EventLogger) RecentEvents(ctx context.Context, entityType, entityID string, limit int) ([]BusinessEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_type, service_name, COALESCE(entity_type,''), COALESCE(entity_id,''),
		       action, COALESCE(details,''), success
		FROM business_event_logs
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at DESC LIMIT ?`,
		entityType, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []BusinessEvent
	for rows.Next() {
		var e BusinessEvent
		if err := rows.Scan(&e.EventType, &e.ServiceName, &e.EntityType, &e.EntityID,
			&e.Action, &e.Details, &e.Success); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RetentionConfig specifies event retention in days. Zero means no cleanup.
type RetentionConfig struct {
	EventLogsDays  int
	RunVacuumAfter bool
}

// Cleanup deletes events exceeding the retention threshold.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) error {
	if cfg.EventLogsDays > 0 {
		cutoff := time.Now().Unix() - int64(cfg.EventLogsDays*86400)
		if _, err := db.ExecContext(ctx,
			`DELETE FROM business_event_logs WHERE created_at < ?`, cutoff); err != nil {
			return fmt.Errorf("cleanup business_event_logs: %w", err)
		}
	}
	if cfg.RunVacuumAfter {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("vacuum: %w", err)
		}
	}
	return nil
}
