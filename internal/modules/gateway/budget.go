package gateway

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// RateBudget is a token bucket per provider shared by all sessions.
type RateBudget struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewRateBudget(perSecond float64, burst int) *RateBudget {
	if burst <= 0 {
		burst = 1
	}
	return &RateBudget{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (b *RateBudget) Allow(_ context.Context, provider string) error {
	b.mu.Lock()
	lim, ok := b.limiters[provider]
	if !ok {
		lim = rate.NewLimiter(b.limit, b.burst)
		b.limiters[provider] = lim
	}
	b.mu.Unlock()
	if !lim.Allow() {
		return fmt.Errorf("%w: %s", ErrRateLimited, provider)
	}
	return nil
}

// Budgets allows a call only when every member allows it.
type Budgets []Budget

func (bs Budgets) Allow(ctx context.Context, provider string) error {
	for _, b := range bs {
		if b == nil {
			continue
		}
		if err := b.Allow(ctx, provider); err != nil {
			return err
		}
	}
	return nil
}
