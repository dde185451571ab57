package observability

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domdrop/dbopen"
)

func TestLogAndQueryEvents(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	l := NewEventLogger(db)
	ctx := context.Background()

	l.LogEvent(ctx, BusinessEvent{
		EventType:   "job_stage",
		ServiceName: "auctions",
		EntityType:  "ingestion_job",
		EntityID:    "job-1",
		Action:      "merging",
		Success:     true,
	})
	l.LogEvent(ctx, BusinessEvent{
		EventType:   "job_failed",
		ServiceName: "auctions",
		EntityType:  "ingestion_job",
		EntityID:    "job-1",
		Action:      "failed",
		Details:     `{"error":"retries exhausted"}`,
		Success:     false,
	})

	events, err := l.RecentEvents(ctx, "ingestion_job", "job-1", 10)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events: got %d, want 2", len(events))
	}
	// Other entities stay invisible.
	none, err := l.RecentEvents(ctx, "ingestion_job", "job-2", 10)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("events for other job: got %d, want 0", len(none))
	}
}

func TestCleanup(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	ctx := context.Background()

	old := time.Now().Unix() - 90*86400
	if _, err := db.Exec(`
		INSERT INTO business_event_logs (event_id, event_type, service_name, action, created_at)
		VALUES ('evt_old', 'job_stage', 'auctions', 'staging', ?)`, old); err != nil {
		t.Fatalf("insert: %v", err)
	}
	NewEventLogger(db).LogEvent(ctx, BusinessEvent{
		EventType: "job_stage", ServiceName: "auctions", Action: "staging", Success: true,
	})

	if err := Cleanup(ctx, db, RetentionConfig{EventLogsDays: 30}); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM business_event_logs`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("rows after cleanup: got %d, want 1", n)
	}
}
