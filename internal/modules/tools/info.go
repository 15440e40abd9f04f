package tools

import (
	"context"
	"fmt"
	"strings"

	"wayfarer/internal/modules/params"
	"wayfarer/internal/search"
)

type InfoItem struct {
	Title   string  `json:"title"`
	Snippet string  `json:"snippet,omitempty"`
	Link    string  `json:"link,omitempty"`
	Rating  float64 `json:"rating,omitempty"`
	Source  string  `json:"source"`
}

type InfoResult struct {
	Destination string       `json:"destination"`
	Topic       params.Topic `json:"topic"`
	Items       []InfoItem   `json:"items"`
}

type InfoTool struct {
	searcher Searcher
	limit    int
}

func NewInfoTool(searcher Searcher) *InfoTool {
	return &InfoTool{searcher: searcher, limit: 5}
}

func (t *InfoTool) Name() string          { return "destination_info" }
func (t *InfoTool) Intent() params.Intent { return params.IntentDestinationInfo }
func (t *InfoTool) RequiredParameters() []params.Field {
	return []params.Field{params.FieldDestination}
}

var topicQueries = map[params.Topic]string{
	params.TopicWeather:     "weather and best time to visit %s",
	params.TopicAttractions: "top attractions in %s",
	params.TopicDocuments:   "visa and entry requirements for %s",
	params.TopicTransport:   "getting around %s public transport",
	params.TopicGeneral:     "%s travel guide",
}

func (t *InfoTool) Execute(ctx context.Context, set params.ParameterSet) (*Result, error) {
	if err := checkRequired(t, set); err != nil {
		return nil, err
	}
	p := set.Info
	topic := p.TopicOrDefault()
	resp, err := t.searcher.Search(ctx, search.Query{
		Kind:     search.KindInfo,
		Text:     fmt.Sprintf(topicQueries[topic], p.Destination),
		Location: p.Destination,
		Filters:  map[string]string{"topic": string(topic)},
		Limit:    t.limit,
	})
	if err != nil {
		return nil, fmt.Errorf("destination info: %w", err)
	}

	out := InfoResult{Destination: p.Destination, Topic: topic}
	for _, r := range resp.Results {
		if len(out.Items) == t.limit {
			break
		}
		out.Items = append(out.Items, InfoItem{Title: r.Title, Snippet: r.Snippet, Link: r.Link, Rating: r.Rating, Source: r.Source})
	}
	return &Result{
		Tool:      t.Name(),
		Intent:    t.Intent(),
		Summary:   out.summary(),
		Data:      out,
		Provider:  resp.Provider,
		FromCache: resp.FromCache,
	}, nil
}

func (r InfoResult) summary() string {
	if len(r.Items) == 0 {
		return fmt.Sprintf("I couldn't find %s information for %s.", r.Topic, r.Destination)
	}
	var b strings.Builder
	switch r.Topic {
	case params.TopicAttractions:
		names := make([]string, 0, 3)
		for _, it := range r.Items {
			if len(names) == 3 {
				break
			}
			names = append(names, it.Title)
		}
		fmt.Fprintf(&b, "Popular in %s: %s.", r.Destination, strings.Join(names, "; "))
	default:
		fmt.Fprintf(&b, "%s (%s): ", r.Destination, r.Topic)
		if s := r.Items[0].Snippet; s != "" {
			b.WriteString(s)
		} else {
			b.WriteString(r.Items[0].Title)
		}
	}
	return b.String()
}
