package audit

import (
	"context"
	"database/sql"
	"fmt"
)

const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
    id          TEXT PRIMARY KEY,
    call_id     TEXT NOT NULL,
    type        TEXT NOT NULL,
    owner_id    TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT '',
    message     TEXT NOT NULL DEFAULT '',
    metadata    JSONB,
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_events_call_idx ON audit_events (call_id, created_at);
`

// PostgresRepo appends audit events to the audit_events table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	var metadata any
	if e.Metadata != "" {
		metadata = e.Metadata
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, call_id, type, owner_id, actor, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.CallID, string(e.Type), e.OwnerID, e.Actor, e.Message, metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
