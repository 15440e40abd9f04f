// README: Turn phases, replies and orchestrator configuration.
package dialogue

import (
	"encoding/json"
	"time"

	"wayfarer/internal/modules/params"
	"wayfarer/internal/modules/session"
)

// Phase is derived on every turn and never stored.
type Phase string

const (
	PhaseAwaitingIntent       Phase = "awaiting_intent"
	PhaseCollectingParameters Phase = "collecting_parameters"
	PhaseReadyToInvoke        Phase = "ready_to_invoke"
	PhaseAwaitingToolResult   Phase = "awaiting_tool_result"
	PhaseResponding           Phase = "responding"
)

type Config struct {
	TurnTimeout    time.Duration
	MaxTurnRetries int
	// RetryBackoff is the base wait before a turn that lost a session race
	// runs again. The actual wait is jittered.
	RetryBackoff time.Duration
	// ResultTTL bounds how long a tool result is reused for unchanged parameters.
	ResultTTL time.Duration
	// ConfirmInferred asks the user to confirm required values that only the
	// model pass supplied before any tool runs.
	ConfirmInferred bool
	MaxPassengers   int
	MaxGuests       int
}

func (c Config) withDefaults() Config {
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = 20 * time.Second
	}
	if c.MaxTurnRetries < 0 {
		c.MaxTurnRetries = 0
	} else if c.MaxTurnRetries == 0 {
		c.MaxTurnRetries = 2
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = 15 * time.Minute
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 25 * time.Millisecond
	}
	return c
}

// Output is the structured tool result attached to a reply.
type Output struct {
	Tool      string          `json:"tool"`
	Summary   string          `json:"summary"`
	Data      json.RawMessage `json:"data,omitempty"`
	Provider  string          `json:"provider,omitempty"`
	FromCache bool            `json:"from_cache"`
}

type Reply struct {
	SessionID  string              `json:"session_id"`
	Text       string              `json:"reply"`
	Phase      Phase               `json:"phase"`
	Intent     params.Intent       `json:"intent"`
	Parameters params.ParameterSet `json:"parameters"`
	Missing    []params.Field      `json:"missing_fields"`
	Result     *Output             `json:"result,omitempty"`
	Degraded   bool                `json:"degraded"`
	Version    int64               `json:"version"`
}

// Snapshot is the read-only view of a session.
type Snapshot struct {
	SessionID      string                   `json:"session_id"`
	Intent         params.Intent            `json:"intent"`
	Phase          Phase                    `json:"phase"`
	Parameters     params.ParameterSet      `json:"parameters"`
	Missing        []params.Field           `json:"missing_fields"`
	Pending        *session.PendingQuestion `json:"pending,omitempty"`
	History        []session.Turn           `json:"history"`
	LastToolResult *session.ToolResult      `json:"last_tool_result,omitempty"`
	Version        int64                    `json:"version"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

func outputFrom(r *session.ToolResult, fromCache bool) *Output {
	if r == nil {
		return nil
	}
	return &Output{Tool: r.Tool, Summary: r.Summary, Data: r.Payload, Provider: r.Provider, FromCache: fromCache}
}
