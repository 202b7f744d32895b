package calls

import (
	"context"
	"database/sql"
)

// Schema creates the scheduled_calls table. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS scheduled_calls (
  id                   TEXT PRIMARY KEY,
  scheduled_by         TEXT NOT NULL,
  scheduled_to         TEXT NOT NULL,
  recipient_number     TEXT NOT NULL,
  recipient_name       TEXT NOT NULL,
  scheduled_at         TIMESTAMPTZ NOT NULL,
  scheduled_at_history JSONB NOT NULL DEFAULT '[]'::jsonb,
  status               TEXT NOT NULL CHECK (status IN ('pending','in-progress','completed','failed')),
  tries_left           INT NOT NULL CHECK (tries_left BETWEEN 0 AND 3),
  provider_call_handle TEXT NOT NULL DEFAULT '',
  start_time           TIMESTAMPTZ NULL,
  end_time             TIMESTAMPTZ NULL,
  duration_seconds     INT NOT NULL DEFAULT 0,
  transcript           JSONB NOT NULL DEFAULT '[]'::jsonb,
  ai_summary           TEXT NOT NULL DEFAULT '',
  attempts             JSONB NOT NULL DEFAULT '[]'::jsonb,
  version              BIGINT NOT NULL DEFAULT 1,
  created_at           TIMESTAMPTZ NOT NULL,
  updated_at           TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS scheduled_calls_status_idx ON scheduled_calls (status);
CREATE INDEX IF NOT EXISTS scheduled_calls_handle_idx ON scheduled_calls (provider_call_handle) WHERE provider_call_handle <> '';
CREATE INDEX IF NOT EXISTS scheduled_calls_recipient_idx ON scheduled_calls (recipient_number, status, scheduled_at);
CREATE INDEX IF NOT EXISTS scheduled_calls_owner_idx ON scheduled_calls (scheduled_by);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}
