// README: Search provider contract shared by web and places backends.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// ErrUnsupported is returned by a provider that cannot serve a query kind.
var ErrUnsupported = errors.New("search kind not supported by provider")

type Kind string

const (
	KindFlights Kind = "flights"
	KindHotels  Kind = "hotels"
	KindInfo    Kind = "info"
)

type Query struct {
	Kind     Kind              `json:"kind"`
	Text     string            `json:"text"`
	Location string            `json:"location,omitempty"`
	Filters  map[string]string `json:"filters,omitempty"`
	Limit    int               `json:"limit,omitempty"`
}

// Normalized renders the query in a canonical form: lower-cased, collapsed
// whitespace and filters in key order. Two queries that differ only in
// spelling of whitespace or case normalize to the same string.
func (q Query) Normalized() string {
	var b strings.Builder
	b.WriteString(string(q.Kind))
	b.WriteByte('|')
	b.WriteString(squash(q.Text))
	b.WriteByte('|')
	b.WriteString(squash(q.Location))
	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%s", squash(k), squash(q.Filters[k]))
	}
	fmt.Fprintf(&b, "|%d", q.Limit)
	return b.String()
}

func squash(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Result is one search hit. Price and Rating are optional.
type Result struct {
	Title       string  `json:"title"`
	Link        string  `json:"link,omitempty"`
	Snippet     string  `json:"snippet,omitempty"`
	Price       string  `json:"price,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
	RatingCount int     `json:"rating_count,omitempty"`
	Address     string  `json:"address,omitempty"`
	Source      string  `json:"source"`
}

type Provider interface {
	Name() string
	Search(ctx context.Context, q Query) ([]Result, error)
}

// StatusError is a non-2xx reply from a search API.
type StatusError struct {
	Provider string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, e.Message)
}

func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout || e.Code >= 500
}
