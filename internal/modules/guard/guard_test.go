package guard

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitRejections(t *testing.T) {
	g := New(Config{MaxUtteranceLen: 10, PerMinute: 60, Burst: 10}, nil)

	cases := []struct {
		name      string
		session   string
		utterance string
		reason    Reason
	}{
		{"empty session", "", "hi", ReasonInvalidSession},
		{"bad session chars", "abc/../x", "hi", ReasonInvalidSession},
		{"long session", strings.Repeat("a", 65), "hi", ReasonInvalidSession},
		{"invalid utf8", "s1", "hi \xff", ReasonMalformed},
		{"blank", "s1", " \t\n ", ReasonEmpty},
		{"only controls", "s1", "\x00\x07", ReasonEmpty},
		{"too long", "s1", "fly me to the moon", ReasonTooLong},
	}
	for _, tc := range cases {
		_, err := g.Admit(tc.session, tc.utterance)
		require.Error(t, err, tc.name)
		assert.True(t, errors.Is(err, ErrInputRejected), tc.name)
		var rej *RejectedError
		require.True(t, errors.As(err, &rej), tc.name)
		assert.Equal(t, tc.reason, rej.Reason, tc.name)
	}
}

func TestAdmitSanitizes(t *testing.T) {
	g := New(Config{}, nil)
	got, err := g.Admit("session_1", "  flights\tfrom\x00 Boston \n\n to   Chicago ")
	require.NoError(t, err)
	assert.Equal(t, "flights from Boston to Chicago", got)

	got, err = g.Admit("session_1", "Zürich \u200bplease")
	require.NoError(t, err)
	assert.Equal(t, "Zürich please", got)
}

func TestAdmitThrottlesPerSession(t *testing.T) {
	g := New(Config{PerMinute: 6, Burst: 2}, nil)
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	g.Limiter().SetClock(func() time.Time { return now })

	for i := 0; i < 2; i++ {
		_, err := g.Admit("a", "hello")
		require.NoError(t, err)
	}
	_, err := g.Admit("a", "hello")
	assert.True(t, IsThrottled(err))

	// Another session has its own bucket.
	_, err = g.Admit("b", "hello")
	assert.NoError(t, err)

	// Malformed input does not spend tokens.
	_, err = g.Admit("b", "")
	assert.False(t, IsThrottled(err))

	now = now.Add(10 * time.Second)
	_, err = g.Admit("a", "hello")
	assert.NoError(t, err)
}

func TestKeyedLimiterPrunesIdle(t *testing.T) {
	k := NewKeyedLimiter(60, 1, time.Minute)
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	k.SetClock(func() time.Time { return now })

	k.Allow("a")
	now = now.Add(30 * time.Second)
	k.Allow("b")
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, k.Prune())
	assert.Equal(t, 1, k.Len())
}

func TestUnlimitedWhenPerMinuteZero(t *testing.T) {
	k := NewKeyedLimiter(0, 1, time.Minute)
	for i := 0; i < 100; i++ {
		require.True(t, k.Allow("x"))
	}
}
