package sqlite

const schema = `
-- Proposals table: one durable record per fingerprint
-- Status transitions: pending -> accepted | rejected (human decision only)
-- Rows are never deleted automatically; purge is the manual reset path
CREATE TABLE IF NOT EXISTS proposals (
    fingerprint TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'accepted', 'rejected')),
    source_path TEXT NOT NULL DEFAULT '',
    rule TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '',
    first_seen_at DATETIME NOT NULL,
    last_seen_at DATETIME NOT NULL,
    decided_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_proposals_status ON proposals(status);
CREATE INDEX IF NOT EXISTS idx_proposals_first_seen ON proposals(first_seen_at);
CREATE INDEX IF NOT EXISTS idx_proposals_source_path ON proposals(source_path);

-- Run events table (audit trail)
CREATE TABLE IF NOT EXISTS run_events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    run_id TEXT NOT NULL,
    fingerprint TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL DEFAULT 'info',
    message TEXT NOT NULL DEFAULT '',
    data TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);
CREATE INDEX IF NOT EXISTS idx_run_events_type ON run_events(type);
CREATE INDEX IF NOT EXISTS idx_run_events_fingerprint ON run_events(fingerprint);
CREATE INDEX IF NOT EXISTS idx_run_events_timestamp ON run_events(timestamp);

-- Config table for key-value settings
CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
