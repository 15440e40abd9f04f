package ai

import (
	"context"
)

// Provider is a text-completion backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Name identifies the provider in logs, budgets and error reports.
	Name() string

	// Complete sends one prompt and returns the raw model text. When the
	// request carries a Schema the provider is asked for JSON output.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
