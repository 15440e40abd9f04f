package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"wayfarer/internal/modules/dialogue"
	"wayfarer/internal/modules/guard"
)

type panicConversations struct{}

func (panicConversations) Handle(context.Context, string, string) (*dialogue.Reply, error) {
	panic("boom")
}

func (panicConversations) Session(context.Context, string) (*dialogue.Snapshot, error) {
	return &dialogue.Snapshot{}, nil
}

func (panicConversations) Reset(context.Context, string) error { return nil }

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(RouterDeps{Conversations: panicConversations{}})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestRecoveryAnswers500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(RouterDeps{Conversations: panicConversations{}})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"session_id":"abc","message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPerClientRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := guard.NewKeyedLimiter(1, 2, time.Minute)
	limiter.SetClock(func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) })
	r := NewRouter(RouterDeps{Conversations: panicConversations{}, IPLimiter: limiter})

	codes := make([]int, 0, 3)
	for range 3 {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/sessions/abc", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Health is outside the throttled group.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
