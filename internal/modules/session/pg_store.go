package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend stores sessions in the sessions table. Writes are guarded
// by the version column, so a lost race updates zero rows.
type PostgresBackend struct {
	db *pgxpool.Pool
}

func NewPostgresBackend(db *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Get(ctx context.Context, id string, now time.Time) (*SessionState, error) {
	var raw []byte
	err := b.db.QueryRow(ctx, `
		SELECT state FROM sessions
		WHERE id = $1 AND expires_at > $2`, id, now,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var st SessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &st, nil
}

func (b *PostgresBackend) CompareAndSwap(ctx context.Context, next *SessionState, expected int64, expiresAt time.Time) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}

	var affected int64
	if expected == 0 {
		// First write, or the previous incarnation expired and may be replaced.
		tag, err := b.db.Exec(ctx, `
			INSERT INTO sessions (id, version, state, updated_at, expires_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				version = EXCLUDED.version,
				state = EXCLUDED.state,
				updated_at = EXCLUDED.updated_at,
				expires_at = EXCLUDED.expires_at
			WHERE sessions.expires_at <= EXCLUDED.updated_at`,
			next.ID, next.Version, raw, next.UpdatedAt, expiresAt,
		)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
	} else {
		tag, err := b.db.Exec(ctx, `
			UPDATE sessions
			SET version = $1,
			    state = $2,
			    updated_at = $3,
			    expires_at = $4
			WHERE id = $5 AND version = $6`,
			next.Version, raw, next.UpdatedAt, expiresAt, next.ID, expected,
		)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
	}
	if affected == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (b *PostgresBackend) Delete(ctx context.Context, id string) error {
	_, err := b.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (b *PostgresBackend) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := b.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
