// README: Closed set of search tools behind one interface, dispatched by intent.
package tools

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"wayfarer/internal/modules/gateway"
	"wayfarer/internal/modules/params"
	"wayfarer/internal/search"
)

// ErrMissingParameters is returned when Execute is called before the
// parameters the tool requires are set.
var ErrMissingParameters = errors.New("tool: required parameters missing")

// Searcher is the slice of the provider gateway the tools need.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*gateway.Response, error)
}

type Tool interface {
	Name() string
	Intent() params.Intent
	RequiredParameters() []params.Field
	Execute(ctx context.Context, set params.ParameterSet) (*Result, error)
}

// Result is what a tool hands back to the dialogue: a short text summary
// plus the structured payload (FlightResult, HotelResult or InfoResult).
type Result struct {
	Tool      string        `json:"tool"`
	Intent    params.Intent `json:"intent"`
	Summary   string        `json:"summary"`
	Data      any           `json:"data"`
	Provider  string        `json:"provider"`
	FromCache bool          `json:"from_cache"`
}

type Registry struct {
	byIntent map[params.Intent]Tool
}

func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{byIntent: make(map[params.Intent]Tool, len(ts))}
	for _, t := range ts {
		r.byIntent[t.Intent()] = t
	}
	return r
}

// For returns the tool that serves intent.
func (r *Registry) For(intent params.Intent) (Tool, bool) {
	t, ok := r.byIntent[intent]
	return t, ok
}

// Require returns a copy of s in which every registered tool's required
// parameters are also required by the schema, so a configured schema can
// never declare an intent ready that its tool would refuse.
func (r *Registry) Require(s params.Schema) params.Schema {
	out := make(params.Schema, len(s)+len(r.byIntent))
	for intent, is := range s {
		out[intent] = params.IntentSchema{Required: slices.Clone(is.Required), Priority: slices.Clone(is.Priority)}
	}
	for intent, t := range r.byIntent {
		is := out[intent]
		for _, f := range t.RequiredParameters() {
			if !slices.Contains(is.Required, f) {
				is.Required = append(is.Required, f)
			}
		}
		out[intent] = is
	}
	return out
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byIntent))
	for _, t := range r.byIntent {
		out = append(out, t.Name())
	}
	sort.Strings(out)
	return out
}

func checkRequired(t Tool, set params.ParameterSet) error {
	for _, f := range t.RequiredParameters() {
		if !set.Has(t.Intent(), f) {
			return fmt.Errorf("%s: %w: %s", t.Name(), ErrMissingParameters, f)
		}
	}
	return nil
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
