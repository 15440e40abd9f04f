package quota

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store handles provider_usage persistence.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Use atomically checks today's counter and increments it.
// Returns ErrQuotaExhausted when 0 rows are updated (limit reached or row absent).
func (s *Store) Use(ctx context.Context, provider string, day time.Time, limit int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE provider_usage SET used = used + 1
		WHERE provider = $1 AND day = $2 AND used < $3
	`, provider, day, limit)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuotaExhausted
	}
	return nil
}

// EnsureDay inserts today's row for provider. If the row already exists the
// insert is silently skipped (ON CONFLICT DO NOTHING).
func (s *Store) EnsureDay(ctx context.Context, provider string, day time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO provider_usage (provider, day, used)
		VALUES ($1, $2, 0)
		ON CONFLICT (provider, day) DO NOTHING
	`, provider, day)
	return err
}

// Used returns today's counter, or 0 when no request was made yet.
func (s *Store) Used(ctx context.Context, provider string, day time.Time) (int, error) {
	var used int
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE((SELECT used FROM provider_usage WHERE provider = $1 AND day = $2), 0)
	`, provider, day).Scan(&used)
	return used, err
}

// Prune deletes counters older than before.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM provider_usage WHERE day < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
