package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Backend persists encoded states. CompareAndSwap writes next only when the
// stored version equals expected; a missing or expired entry has version 0.
type Backend interface {
	Get(ctx context.Context, id string, now time.Time) (*SessionState, error)
	CompareAndSwap(ctx context.Context, next *SessionState, expected int64, expiresAt time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type Config struct {
	TTL           time.Duration
	HistoryLimit  int
	SweepInterval time.Duration
}

// Store is the only writer of session state.
type Store struct {
	backend Backend
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

func NewStore(backend Backend, cfg Config, logger *zap.Logger) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, cfg: cfg, logger: logger, now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) HistoryLimit() int { return s.cfg.HistoryLimit }

// Load returns the stored state, or a fresh version-0 state when the session
// is absent or expired. A fresh state is not persisted.
func (s *Store) Load(ctx context.Context, id string) (*SessionState, error) {
	now := s.now()
	st, err := s.backend.Get(ctx, id, now)
	if errors.Is(err, ErrNotFound) {
		return newState(id, now), nil
	}
	if err != nil {
		return nil, err
	}
	if !st.UpdatedAt.Add(s.cfg.TTL).After(now) {
		return newState(id, now), nil
	}
	return st, nil
}

// AtomicUpdate loads the session, applies mutate to a copy and writes it
// back if nobody else wrote in between. It returns ErrConcurrentModification
// when another writer won. If mutate fails nothing is written.
func (s *Store) AtomicUpdate(ctx context.Context, id string, mutate func(*SessionState) error) (*SessionState, error) {
	current, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := current.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone session: %w", err)
	}
	if err := mutate(next); err != nil {
		return nil, err
	}

	now := s.now()
	next.ID = id
	next.Version = current.Version + 1
	next.UpdatedAt = now
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	if len(next.History) > s.cfg.HistoryLimit {
		next.History = append([]Turn(nil), next.History[len(next.History)-s.cfg.HistoryLimit:]...)
	}

	if err := s.backend.CompareAndSwap(ctx, next, current.Version, now.Add(s.cfg.TTL)); err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			s.logger.Debug("session write lost race",
				zap.String("session_id", id),
				zap.Int64("expected_version", current.Version),
			)
		}
		return nil, err
	}
	return next, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.backend.Delete(ctx, id)
}

// EvictExpired removes sessions idle for longer than the TTL.
func (s *Store) EvictExpired(ctx context.Context) (int, error) {
	return s.backend.DeleteExpired(ctx, s.now())
}

// RunEvictionLoop sweeps expired sessions until ctx is cancelled.
func (s *Store) RunEvictionLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.EvictExpired(ctx)
			if err != nil {
				s.logger.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("expired sessions evicted", zap.Int("count", n))
			}
		}
	}
}
