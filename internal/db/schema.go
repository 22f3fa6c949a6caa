package db

const schemaSQL = `
-- ==========================================================================
-- AUDIT LOG (accepted control commands, config reloads, discovery)
-- ==========================================================================

CREATE TABLE IF NOT EXISTS audit_events (
  event_id TEXT PRIMARY KEY,
  timestamp TEXT NOT NULL,
  type TEXT NOT NULL,
  level TEXT NOT NULL,
  request_id TEXT,
  zone_id TEXT,
  message TEXT NOT NULL,
  payload TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(type);
CREATE INDEX IF NOT EXISTS idx_audit_events_level ON audit_events(level);
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp_level ON audit_events(timestamp DESC, level);

-- ==========================================================================
-- SETTINGS (global control toggles that survive restarts)
-- ==========================================================================

CREATE TABLE IF NOT EXISTS settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
