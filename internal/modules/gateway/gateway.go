package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"wayfarer/internal/ai"
	"wayfarer/internal/search"
)

// Budget gates each dispatch. Allow returns an error wrapping ErrRateLimited
// when the provider's budget is spent.
type Budget interface {
	Allow(ctx context.Context, provider string) error
}

type Deps struct {
	// Completion and Search are ordered: primary first, then fallbacks.
	Completion []ai.Provider
	Search     []search.Provider
	Cache      Cache
	Budget     Budget
	Logger     *zap.Logger
}

// Gateway is the single entry point for outbound provider calls. It is safe
// for concurrent use and holds no per-session state.
type Gateway struct {
	cfg        Config
	completion []ai.Provider
	search     []search.Provider
	cache      Cache
	budget     Budget
	logger     *zap.Logger

	// sleep waits between attempts; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, deps Deps) *Gateway {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		cfg:        cfg.withDefaults(),
		completion: deps.Completion,
		search:     deps.Search,
		cache:      deps.Cache,
		budget:     deps.Budget,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// Complete is Invoke for the completion category.
func (g *Gateway) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.Completion, error) {
	resp, err := g.Invoke(ctx, CategoryCompletion, Request{Completion: &req})
	if err != nil {
		return nil, err
	}
	return resp.Completion, nil
}

// Search is Invoke for the search category.
func (g *Gateway) Search(ctx context.Context, q search.Query) (*Response, error) {
	return g.Invoke(ctx, CategorySearch, Request{Search: &q})
}

// Invoke dispatches req to the providers of category in order. Successful
// search responses are cached; completions never are.
func (g *Gateway) Invoke(ctx context.Context, category Category, req Request) (*Response, error) {
	switch category {
	case CategoryCompletion:
		if req.Completion == nil {
			return nil, fmt.Errorf("gateway: completion request missing")
		}
		return g.dispatch(ctx, category, hashOf(req.Completion.System+"\x00"+req.Completion.Prompt), g.completionCalls(*req.Completion))
	case CategorySearch:
		if req.Search == nil {
			return nil, fmt.Errorf("gateway: search query missing")
		}
		return g.invokeSearch(ctx, *req.Search)
	}
	return nil, fmt.Errorf("gateway: unknown category %q", category)
}

func (g *Gateway) invokeSearch(ctx context.Context, q search.Query) (*Response, error) {
	key := CacheKey(q)
	if g.cache != nil {
		results, ok, err := g.cache.Get(ctx, key)
		if err != nil {
			g.logger.Warn("search cache read failed", zap.Error(err))
		} else if ok {
			g.logger.Debug("search cache hit", zap.String("key", key))
			return &Response{Results: results, FromCache: true}, nil
		}
	}

	resp, err := g.dispatch(ctx, CategorySearch, key, g.searchCalls(q))
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		if err := g.cache.Set(ctx, key, resp.Results, g.cfg.CacheTTL); err != nil {
			g.logger.Warn("search cache write failed", zap.Error(err))
		}
	}
	return resp, nil
}

// call is one provider bound to one request.
type call struct {
	provider string
	run      func(ctx context.Context) (*Response, error)
}

func (g *Gateway) completionCalls(req ai.CompletionRequest) []call {
	calls := make([]call, 0, len(g.completion))
	for _, p := range g.completion {
		calls = append(calls, call{provider: p.Name(), run: func(ctx context.Context) (*Response, error) {
			out, err := p.Complete(ctx, req)
			if err != nil {
				return nil, err
			}
			return &Response{Completion: out}, nil
		}})
	}
	return calls
}

func (g *Gateway) searchCalls(q search.Query) []call {
	calls := make([]call, 0, len(g.search))
	for _, p := range g.search {
		calls = append(calls, call{provider: p.Name(), run: func(ctx context.Context) (*Response, error) {
			results, err := p.Search(ctx, q)
			if err != nil {
				return nil, err
			}
			return &Response{Results: results}, nil
		}})
	}
	return calls
}

func (g *Gateway) dispatch(ctx context.Context, category Category, payloadHash string, calls []call) (*Response, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("gateway %s: %w", category, ErrNoProviders)
	}

	exhausted := &ExhaustedError{Category: category}
	for _, c := range calls {
		failure := ProviderFailure{Provider: c.provider}
		for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("gateway %s: %w", category, err)
			}
			if err := g.allow(ctx, c.provider); err != nil {
				g.record(CallRecord{Provider: c.provider, Category: category, PayloadHash: payloadHash, Attempt: attempt, Outcome: OutcomeRateLimited})
				if len(exhausted.Failures) > 0 {
					return nil, &RateLimitedError{Category: category, Provider: c.provider, Failures: exhausted.Failures, Err: err}
				}
				return nil, err
			}

			start := time.Now()
			attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
			resp, err := c.run(attemptCtx)
			timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
			cancel()

			rec := CallRecord{Provider: c.provider, Category: category, PayloadHash: payloadHash, Attempt: attempt, Latency: time.Since(start)}
			if err == nil {
				rec.Outcome = OutcomeSuccess
				g.record(rec)
				resp.Provider = c.provider
				resp.Attempts = attempt
				return resp, nil
			}
			if timedOut {
				rec.Outcome = OutcomeTimeout
				err = fmt.Errorf("attempt timed out after %s: %w", g.cfg.CallTimeout, err)
			} else {
				rec.Outcome = OutcomeError
			}
			g.record(rec)
			failure.Attempts = attempt
			failure.Err = err

			if ctx.Err() != nil {
				return nil, fmt.Errorf("gateway %s: %w", category, ctx.Err())
			}
			if !timedOut && !retryable(err) {
				break
			}
			if attempt < g.cfg.MaxAttempts {
				if err := g.sleep(ctx, g.cfg.backoff(attempt)); err != nil {
					return nil, fmt.Errorf("gateway %s: %w", category, err)
				}
			}
		}
		g.logger.Warn("provider failed, falling back",
			zap.String("category", string(category)),
			zap.String("provider", c.provider),
			zap.Int("attempts", failure.Attempts),
			zap.Error(failure.Err),
		)
		exhausted.Failures = append(exhausted.Failures, failure)
	}
	return nil, exhausted
}

// allow consults the budget. Budget backends that fail for reasons other
// than an exhausted budget do not block the call.
func (g *Gateway) allow(ctx context.Context, provider string) error {
	if g.budget == nil {
		return nil
	}
	err := g.budget.Allow(ctx, provider)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRateLimited) {
		return err
	}
	g.logger.Warn("budget check failed, allowing call", zap.String("provider", provider), zap.Error(err))
	return nil
}

func (g *Gateway) record(r CallRecord) {
	g.logger.Debug("provider call",
		zap.String("provider", r.Provider),
		zap.String("category", string(r.Category)),
		zap.String("payload", r.PayloadHash),
		zap.Int("attempt", r.Attempt),
		zap.String("outcome", string(r.Outcome)),
		zap.Duration("latency", r.Latency),
	)
}

type retryableError interface {
	Retryable() bool
}

// retryable reports whether err is worth another attempt on the same
// provider: throttling, 5xx and network failures.
func retryable(err error) bool {
	if errors.Is(err, search.ErrUnsupported) {
		return false
	}
	var r retryableError
	if errors.As(err, &r) {
		return r.Retryable()
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// CacheKey is the sha256 of the normalized query.
func CacheKey(q search.Query) string {
	return hashOf(q.Normalized())
}

func hashOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
