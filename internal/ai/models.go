package ai

import (
	"strings"
)

// CompletionRequest captures a single prompt.
type CompletionRequest struct {
	// System is the instruction block sent ahead of the prompt.
	System string `json:"system,omitempty"`

	Prompt string `json:"prompt"`

	// Schema, when set, requests structured JSON output of this shape.
	Schema *Schema `json:"schema,omitempty"`

	// Temperature of 0 leaves the provider default in place.
	Temperature float32 `json:"temperature,omitempty"`
}

// Completion is the provider reply.
type Completion struct {
	Text       string `json:"text"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// SchemaType mirrors the JSON schema primitive types understood by the
// providers' structured-output modes.
type SchemaType string

const (
	TypeString  SchemaType = "string"
	TypeInteger SchemaType = "integer"
	TypeNumber  SchemaType = "number"
	TypeBoolean SchemaType = "boolean"
	TypeArray   SchemaType = "array"
	TypeObject  SchemaType = "object"
)

// Schema is a provider-neutral subset of JSON schema.
type Schema struct {
	Type        SchemaType         `json:"type"`
	Description string             `json:"description,omitempty"`
	Nullable    bool               `json:"nullable,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// CleanJSON removes markdown code fences if present (e.g. ```json ... ```).
// Models sometimes wrap JSON output even in JSON mode.
func CleanJSON(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
