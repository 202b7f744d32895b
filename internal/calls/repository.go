package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"care-call-scheduler/pkg/utils"
)

// PostgresStore persists scheduled calls in Postgres.
//
// Update locks the row (SELECT ... FOR UPDATE) for the duration of the
// mutation and bumps version in the same transaction.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const selectColumns = `
SELECT id, scheduled_by, scheduled_to, recipient_number, recipient_name,
       scheduled_at, scheduled_at_history, status, tries_left, provider_call_handle,
       start_time, end_time, duration_seconds, transcript, ai_summary, attempts,
       version, created_at, updated_at
FROM scheduled_calls`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (ScheduledCall, error) {
	var (
		c                             ScheduledCall
		history, transcript, attempts []byte
		start, end                    sql.NullTime
	)
	if err := row.Scan(
		&c.ID,
		&c.ScheduledBy,
		&c.ScheduledTo,
		&c.RecipientNumber,
		&c.RecipientName,
		&c.ScheduledAt,
		&history,
		&c.Status,
		&c.TriesLeft,
		&c.ProviderCallHandle,
		&start,
		&end,
		&c.DurationInSeconds,
		&transcript,
		&c.AISummary,
		&attempts,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ScheduledCall{}, ErrNotFound
		}
		return ScheduledCall{}, err
	}
	if start.Valid {
		t := start.Time
		c.StartTime = &t
	}
	if end.Valid {
		t := end.Time
		c.EndTime = &t
	}
	if err := unmarshalJSON(history, &c.ScheduledAtHistory); err != nil {
		return ScheduledCall{}, fmt.Errorf("scheduled_at_history: %w", err)
	}
	if err := unmarshalJSON(transcript, &c.Transcript); err != nil {
		return ScheduledCall{}, fmt.Errorf("transcript: %w", err)
	}
	if err := unmarshalJSON(attempts, &c.Attempts); err != nil {
		return ScheduledCall{}, fmt.Errorf("attempts: %w", err)
	}
	return c, nil
}

func unmarshalJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return "[]", nil
	}
	return string(b), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (s *PostgresStore) Create(ctx context.Context, c ScheduledCall) error {
	if c.ID == "" {
		return fmt.Errorf("%w: id required", ErrValidation)
	}
	history, err := marshalJSON(c.ScheduledAtHistory)
	if err != nil {
		return err
	}
	transcript, err := marshalJSON(c.Transcript)
	if err != nil {
		return err
	}
	attempts, err := marshalJSON(c.Attempts)
	if err != nil {
		return err
	}
	if c.Version == 0 {
		c.Version = 1
	}
	const q = `
INSERT INTO scheduled_calls (
  id, scheduled_by, scheduled_to, recipient_number, recipient_name,
  scheduled_at, scheduled_at_history, status, tries_left, provider_call_handle,
  start_time, end_time, duration_seconds, transcript, ai_summary, attempts,
  version, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
)
`
	_, err = s.db.ExecContext(ctx, q,
		c.ID,
		c.ScheduledBy,
		c.ScheduledTo,
		c.RecipientNumber,
		c.RecipientName,
		c.ScheduledAt,
		history,
		c.Status,
		c.TriesLeft,
		c.ProviderCallHandle,
		nullTime(c.StartTime),
		nullTime(c.EndTime),
		c.DurationInSeconds,
		transcript,
		c.AISummary,
		attempts,
		c.Version,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (ScheduledCall, error) {
	return scanCall(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id))
}

func (s *PostgresStore) FindByProviderHandle(ctx context.Context, handle string) (ScheduledCall, error) {
	if handle == "" {
		return ScheduledCall{}, ErrNotFound
	}
	return scanCall(s.db.QueryRowContext(ctx, selectColumns+` WHERE provider_call_handle = $1 LIMIT 1`, handle))
}

func (s *PostgresStore) FindPendingByRecipient(ctx context.Context, number string) (ScheduledCall, error) {
	const where = ` WHERE recipient_number = $1 AND status = 'pending' ORDER BY scheduled_at ASC LIMIT 1`
	return scanCall(s.db.QueryRowContext(ctx, selectColumns+where, number))
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status) ([]ScheduledCall, error) {
	return s.query(ctx, selectColumns+` WHERE status = $1 ORDER BY scheduled_at ASC`, status)
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]ScheduledCall, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner required", ErrValidation)
	}
	return s.query(ctx, selectColumns+` WHERE scheduled_by = $1 ORDER BY scheduled_at ASC`, ownerID)
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]ScheduledCall, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ScheduledCall, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, id string, mutate func(*ScheduledCall) error) (ScheduledCall, error) {
	var out ScheduledCall
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		cur, err := scanCall(tx.QueryRowContext(ctx, selectColumns+` WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		next := cur.Clone()
		if err := mutate(&next); err != nil {
			if errors.Is(err, ErrUnchanged) {
				out = cur
				return nil
			}
			return err
		}
		next.ID = cur.ID
		next.Version = cur.Version + 1
		next.UpdatedAt = s.clock().UTC()
		if err := updateCall(ctx, tx, next, cur.Version); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return ScheduledCall{}, err
	}
	return out, nil
}

func updateCall(ctx context.Context, tx *sql.Tx, c ScheduledCall, prevVersion int64) error {
	history, err := marshalJSON(c.ScheduledAtHistory)
	if err != nil {
		return err
	}
	transcript, err := marshalJSON(c.Transcript)
	if err != nil {
		return err
	}
	attempts, err := marshalJSON(c.Attempts)
	if err != nil {
		return err
	}
	const q = `
UPDATE scheduled_calls SET
  scheduled_at = $2,
  scheduled_at_history = $3,
  status = $4,
  tries_left = $5,
  provider_call_handle = $6,
  start_time = $7,
  end_time = $8,
  duration_seconds = $9,
  transcript = $10,
  ai_summary = $11,
  attempts = $12,
  version = $13,
  updated_at = $14
WHERE id = $1 AND version = $15
`
	res, err := tx.ExecContext(ctx, q,
		c.ID,
		c.ScheduledAt,
		history,
		c.Status,
		c.TriesLeft,
		c.ProviderCallHandle,
		nullTime(c.StartTime),
		nullTime(c.EndTime),
		c.DurationInSeconds,
		transcript,
		c.AISummary,
		attempts,
		c.Version,
		c.UpdatedAt,
		prevVersion,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%w: call %s changed concurrently", ErrConflict, c.ID)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_calls WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
