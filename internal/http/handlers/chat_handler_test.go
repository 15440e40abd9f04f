package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfarer/internal/http/handlers"
	"wayfarer/internal/modules/dialogue"
	"wayfarer/internal/modules/guard"
	"wayfarer/internal/modules/params"
)

type stubConversations struct {
	gotSession string
	gotText    string
	reply      *dialogue.Reply
	snap       *dialogue.Snapshot
	err        error
	resets     []string
}

func (s *stubConversations) Handle(_ context.Context, id, text string) (*dialogue.Reply, error) {
	s.gotSession, s.gotText = id, text
	if s.err != nil {
		return nil, s.err
	}
	r := *s.reply
	r.SessionID = id
	return &r, nil
}

func (s *stubConversations) Session(_ context.Context, id string) (*dialogue.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

func (s *stubConversations) Reset(_ context.Context, id string) error {
	s.resets = append(s.resets, id)
	return s.err
}

func buildTestRouter(conv handlers.Conversations) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handlers.NewChatHandler(conv)
	r.POST("/api/chat", h.Chat)
	r.GET("/api/sessions/:id", h.GetSession)
	r.DELETE("/api/sessions/:id", h.DeleteSession)
	return r
}

func doRequest(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestChatReturnsReply(t *testing.T) {
	conv := &stubConversations{reply: &dialogue.Reply{
		Text:    "What date would you like to depart?",
		Phase:   dialogue.PhaseCollectingParameters,
		Intent:  params.IntentFlightSearch,
		Missing: []params.Field{params.FieldDepartureDate},
		Version: 1,
	}}
	r := buildTestRouter(conv)

	w := doRequest(r, http.MethodPost, "/api/chat", map[string]string{"session_id": "abc", "message": "fly to Chicago from Boston"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", conv.gotSession)
	assert.Equal(t, "fly to Chicago from Boston", conv.gotText)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "abc", body["session_id"])
	assert.Equal(t, "collecting_parameters", body["phase"])
	assert.Equal(t, []any{"departure_date"}, body["missing_fields"])
}

func TestChatStartsSessionWhenMissing(t *testing.T) {
	conv := &stubConversations{reply: &dialogue.Reply{Text: "hi"}}
	r := buildTestRouter(conv)

	w := doRequest(r, http.MethodPost, "/api/chat", map[string]string{"message": "hello"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, conv.gotSession, 32)
	assert.True(t, guard.ValidSessionID(conv.gotSession))
}

func TestChatErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{"throttled", &guard.RejectedError{Reason: guard.ReasonThrottled}, http.StatusTooManyRequests, "throttled"},
		{"too long", &guard.RejectedError{Reason: guard.ReasonTooLong}, http.StatusBadRequest, "too_long"},
		{"bad session", &guard.RejectedError{Reason: guard.ReasonInvalidSession}, http.StatusBadRequest, "invalid_session"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := buildTestRouter(&stubConversations{err: tc.err})
			w := doRequest(r, http.MethodPost, "/api/chat", map[string]string{"session_id": "abc", "message": "hi"})
			assert.Equal(t, tc.status, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tc.reason != "" {
				assert.Equal(t, tc.reason, body["reason"])
			} else {
				assert.Equal(t, "internal error", body["error"])
			}
		})
	}
}

func TestChatInvalidJSON(t *testing.T) {
	r := buildTestRouter(&stubConversations{})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionEndpoints(t *testing.T) {
	conv := &stubConversations{snap: &dialogue.Snapshot{SessionID: "abc", Version: 3, Phase: dialogue.PhaseResponding}}
	r := buildTestRouter(conv)

	w := doRequest(r, http.MethodGet, "/api/sessions/abc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":3`)

	w = doRequest(r, http.MethodDelete, "/api/sessions/abc", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"abc"}, conv.resets)
}
