package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wayfarer/internal/modules/gateway"
)

// Service enforces a per-provider daily request cap that survives restarts
// and is shared by every API instance using the same database.
type Service struct {
	store  *Store
	limits map[string]int
	def    int
	now    func() time.Time
}

// NewService creates a Service. limits overrides defaultLimit per provider;
// a limit of 0 or less means unlimited for that provider.
func NewService(store *Store, defaultLimit int, limits map[string]int) *Service {
	if defaultLimit == 0 {
		defaultLimit = DefaultDailyLimit
	}
	return &Service{store: store, limits: limits, def: defaultLimit, now: time.Now}
}

func (s *Service) limitFor(provider string) int {
	if l, ok := s.limits[provider]; ok {
		return l
	}
	return s.def
}

func (s *Service) day() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Use consumes one request from today's allowance for provider.
// If the day row does not exist yet it is initialised and the deduction is
// retried once.
func (s *Service) Use(ctx context.Context, provider string) error {
	limit := s.limitFor(provider)
	if limit <= 0 {
		return nil
	}
	day := s.day()
	err := s.store.Use(ctx, provider, day, limit)
	if !errors.Is(err, ErrQuotaExhausted) {
		return err
	}

	// Row may be missing: create it, then retry the increment once.
	if initErr := s.store.EnsureDay(ctx, provider, day); initErr != nil {
		return initErr
	}
	return s.store.Use(ctx, provider, day, limit)
}

// Allow implements gateway.Budget.
func (s *Service) Allow(ctx context.Context, provider string) error {
	err := s.Use(ctx, provider)
	if errors.Is(err, ErrQuotaExhausted) {
		return fmt.Errorf("%w: %s: %w", gateway.ErrRateLimited, provider, err)
	}
	return err
}

// Remaining reports how many requests provider has left today; -1 means
// unlimited.
func (s *Service) Remaining(ctx context.Context, provider string) (int, error) {
	limit := s.limitFor(provider)
	if limit <= 0 {
		return -1, nil
	}
	used, err := s.store.Used(ctx, provider, s.day())
	if err != nil {
		return 0, err
	}
	return max(limit-used, 0), nil
}

// PruneBefore deletes counters older than keep days.
func (s *Service) PruneBefore(ctx context.Context, keep int) (int64, error) {
	return s.store.Prune(ctx, s.day().AddDate(0, 0, -keep))
}
