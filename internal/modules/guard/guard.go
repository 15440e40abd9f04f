// README: Admission control in front of the dialogue: validation, sanitizing, throttling.
package guard

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

var ErrInputRejected = errors.New("input rejected")

type Reason string

const (
	ReasonInvalidSession Reason = "invalid_session"
	ReasonMalformed      Reason = "malformed"
	ReasonEmpty          Reason = "empty"
	ReasonTooLong        Reason = "too_long"
	ReasonThrottled      Reason = "throttled"
)

// RejectedError carries why an input was refused. It matches ErrInputRejected.
type RejectedError struct {
	Reason Reason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInputRejected, e.Reason)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrInputRejected
}

// IsThrottled reports whether err is a throttling rejection.
func IsThrottled(err error) bool {
	var rej *RejectedError
	return errors.As(err, &rej) && rej.Reason == ReasonThrottled
}

type Config struct {
	MaxUtteranceLen int
	PerMinute       int
	Burst           int
	IdleTTL         time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxUtteranceLen <= 0 {
		c.MaxUtteranceLen = 1000
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 30 * time.Minute
	}
	return c
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type Guard struct {
	cfg     Config
	limiter *KeyedLimiter
	logger  *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Guard {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		cfg:     cfg,
		limiter: NewKeyedLimiter(cfg.PerMinute, cfg.Burst, cfg.IdleTTL),
		logger:  logger,
	}
}

// Limiter exposes the per-session buckets, e.g. for tests that pin the clock.
func (g *Guard) Limiter() *KeyedLimiter { return g.limiter }

// Admit validates a request and returns the sanitized utterance. Rejected
// input never reaches session state; only well-formed input spends a token.
func (g *Guard) Admit(sessionID, utterance string) (string, error) {
	if !ValidSessionID(sessionID) {
		return "", g.reject(sessionID, ReasonInvalidSession)
	}
	if !utf8.ValidString(utterance) {
		return "", g.reject(sessionID, ReasonMalformed)
	}
	clean := Sanitize(utterance)
	if clean == "" {
		return "", g.reject(sessionID, ReasonEmpty)
	}
	if utf8.RuneCountInString(clean) > g.cfg.MaxUtteranceLen {
		return "", g.reject(sessionID, ReasonTooLong)
	}
	if !g.limiter.Allow(sessionID) {
		return "", g.reject(sessionID, ReasonThrottled)
	}
	return clean, nil
}

func (g *Guard) reject(sessionID string, reason Reason) error {
	g.logger.Info("input rejected", zap.String("session_id", truncate(sessionID, 64)), zap.String("reason", string(reason)))
	return &RejectedError{Reason: reason}
}

// RunPruneLoop drops idle per-session limiters until ctx is done.
func (g *Guard) RunPruneLoop(ctx context.Context) {
	g.limiter.RunPruneLoop(ctx, g.cfg.IdleTTL/2)
}

func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// Sanitize strips control characters and collapses runs of whitespace.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if unicode.IsControl(r) || r == utf8.RuneError || unicode.Is(unicode.Cf, r) {
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
