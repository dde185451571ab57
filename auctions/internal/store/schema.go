package store

// Schema is the complete auction pipeline schema.
//
// Timestamps are milliseconds since epoch. The domain column carries the
// normalized form (lowercase, no scheme, no www.) and is the canonical
// identity: re-ingesting a domain updates the existing row.
const Schema = `
-- Canonical auction records, deduplicated by domain
CREATE TABLE IF NOT EXISTS auctions (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    domain       TEXT NOT NULL UNIQUE,
    site         TEXT NOT NULL,
    expires_at   INTEGER NOT NULL,
    current_bid  REAL,
    listing_url  TEXT NOT NULL DEFAULT '',
    payload_json TEXT NOT NULL DEFAULT '{}',
    score        REAL,
    rank         INTEGER,
    preferred    INTEGER NOT NULL DEFAULT 0,
    processed    INTEGER NOT NULL DEFAULT 0,
    has_stats    INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_auctions_unprocessed ON auctions(id) WHERE processed = 0;
CREATE INDEX IF NOT EXISTS idx_auctions_score ON auctions(score DESC, id ASC) WHERE score IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_auctions_expires ON auctions(expires_at);

-- Ingestion jobs: one per uploaded listing file
CREATE TABLE IF NOT EXISTS ingestion_jobs (
    id                TEXT PRIMARY KEY,
    filename          TEXT NOT NULL,
    site              TEXT NOT NULL,
    stage             TEXT NOT NULL DEFAULT 'received',
    total_records     INTEGER NOT NULL DEFAULT 0,
    processed_records INTEGER NOT NULL DEFAULT 0,
    error             TEXT NOT NULL DEFAULT '',
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_stage ON ingestion_jobs(stage, updated_at);

-- Staging: normalized records waiting to be merged, owned by one job
CREATE TABLE IF NOT EXISTS staged_records (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id       TEXT NOT NULL REFERENCES ingestion_jobs(id) ON DELETE CASCADE,
    domain       TEXT NOT NULL,
    site         TEXT NOT NULL,
    expires_at   INTEGER NOT NULL,
    current_bid  REAL,
    listing_url  TEXT NOT NULL DEFAULT '',
    payload_json TEXT NOT NULL DEFAULT '{}',
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_staged_job ON staged_records(job_id, id);
CREATE INDEX IF NOT EXISTS idx_staged_job_site ON staged_records(job_id, site, id);

-- Scoring configs: threshold policy for the preferred flag
CREATE TABLE IF NOT EXISTS scoring_configs (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    score_threshold REAL,
    rank_threshold  INTEGER,
    use_both        INTEGER NOT NULL DEFAULT 0,
    active          INTEGER NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_configs_active ON scoring_configs(active) WHERE active = 1;
`
