// README: Conversation state model; one SessionState per chat session.
package session

import (
	"encoding/json"
	"errors"
	"time"

	"wayfarer/internal/modules/params"
)

var (
	ErrConcurrentModification = errors.New("session modified concurrently")
	// ErrNotFound is internal to backends; Store.Load turns it into a fresh state.
	ErrNotFound = errors.New("session not found")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type QuestionKind string

const (
	QuestionAskField      QuestionKind = "ask_field"
	QuestionConfirm       QuestionKind = "confirm"
	QuestionClarifyIntent QuestionKind = "clarify_intent"
)

// PendingQuestion records what the assistant asked last, so that a bare
// reply ("Monday", "2") can be attributed to the right field.
type PendingQuestion struct {
	Kind    QuestionKind  `json:"kind"`
	Intent  params.Intent `json:"intent,omitempty"`
	Field   params.Field  `json:"field,omitempty"`
	AskedAt time.Time     `json:"asked_at"`
}

// ToolResult is the last successful tool output, keyed by the parameter
// fingerprint it was produced for.
type ToolResult struct {
	Intent      params.Intent   `json:"intent"`
	Tool        string          `json:"tool"`
	Fingerprint string          `json:"fingerprint"`
	Summary     string          `json:"summary"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Provider    string          `json:"provider,omitempty"`
	ProducedAt  time.Time       `json:"produced_at"`
}

type SessionState struct {
	ID             string              `json:"id"`
	Intent         params.Intent       `json:"intent"`
	Parameters     params.ParameterSet `json:"parameters"`
	History        []Turn              `json:"history,omitempty"`
	Pending        *PendingQuestion    `json:"pending,omitempty"`
	LastToolResult *ToolResult         `json:"last_tool_result,omitempty"`
	Version        int64               `json:"version"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// MissingFields is derived from the schema on every call and never stored.
func (s *SessionState) MissingFields(schema params.Schema) []params.Field {
	if !s.Intent.Known() {
		return nil
	}
	return schema.Missing(s.Intent, s.Parameters)
}

// AppendTurn adds t and drops the oldest turns beyond limit. A limit of 0
// keeps everything.
func (s *SessionState) AppendTurn(t Turn, limit int) {
	s.History = append(s.History, t)
	if limit > 0 && len(s.History) > limit {
		s.History = append([]Turn(nil), s.History[len(s.History)-limit:]...)
	}
}

// Clone returns a deep copy. Mutators work on a clone so a failed update
// leaves the loaded state untouched.
func (s *SessionState) Clone() (*SessionState, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out SessionState
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func newState(id string, now time.Time) *SessionState {
	return &SessionState{ID: id, Intent: params.IntentUnclear, CreatedAt: now, UpdatedAt: now}
}
