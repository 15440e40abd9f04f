// README: Gateway request/response model, call records and sentinel errors.
package gateway

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"wayfarer/internal/ai"
	"wayfarer/internal/search"
)

var (
	ErrAllProvidersExhausted = errors.New("all providers exhausted")
	ErrRateLimited           = errors.New("request budget exhausted")
	ErrNoProviders           = errors.New("no providers configured")
)

type Category string

const (
	CategoryCompletion Category = "completion"
	CategorySearch     Category = "search"
)

// Request carries exactly one payload matching its category.
type Request struct {
	Completion *ai.CompletionRequest
	Search     *search.Query
}

type Response struct {
	Completion *ai.Completion
	Results    []search.Result
	Provider   string
	FromCache  bool
	Attempts   int
}

type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeError       Outcome = "error"
	OutcomeRateLimited Outcome = "rate_limited"
)

// CallRecord describes one dispatch attempt. Records are logged and dropped.
type CallRecord struct {
	Provider    string
	Category    Category
	PayloadHash string
	Attempt     int
	Outcome     Outcome
	Latency     time.Duration
}

// ProviderFailure summarizes how one provider failed.
type ProviderFailure struct {
	Provider string
	Attempts int
	Err      error
}

// ExhaustedError is returned when every provider in the chain failed.
type ExhaustedError struct {
	Category Category
	Failures []ProviderFailure
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s (%d attempts): %v", f.Provider, f.Attempts, f.Err))
	}
	return fmt.Sprintf("%s: %s: %s", e.Category, ErrAllProvidersExhausted, strings.Join(parts, "; "))
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllProvidersExhausted
}

// RateLimitedError is returned when the budget refused a provider after
// earlier providers in the chain had already failed. Failures lists those.
type RateLimitedError struct {
	Category Category
	Provider string
	Failures []ProviderFailure
	Err      error
}

func (e *RateLimitedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s (%d attempts): %v", f.Provider, f.Attempts, f.Err))
	}
	return fmt.Sprintf("%s: %v after %s", e.Category, e.Err, strings.Join(parts, "; "))
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	CallTimeout    time.Duration
	CacheTTL       time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 8 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 15 * time.Minute
	}
	return c
}

// backoff returns the wait before attempt n+1 (n starts at 1).
func (c Config) backoff(n int) time.Duration {
	d := c.InitialBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return min(d, c.MaxBackoff)
}
