package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const SerperURL = "https://google.serper.dev/search"

// SerperProvider queries Google web results through serper.dev.
type SerperProvider struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewSerperProvider(apiKey, endpoint string, client *http.Client) (*SerperProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("serper: missing api key")
	}
	if endpoint == "" {
		endpoint = SerperURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SerperProvider{apiKey: apiKey, endpoint: endpoint, client: client}, nil
}

func (p *SerperProvider) Name() string { return "serper" }

type serperRequest struct {
	Q        string `json:"q"`
	Num      int    `json:"num,omitempty"`
	Location string `json:"location,omitempty"`
	GL       string `json:"gl,omitempty"`
}

type serperResponse struct {
	Organic []struct {
		Title       string  `json:"title"`
		Link        string  `json:"link"`
		Snippet     string  `json:"snippet"`
		Price       any     `json:"price"`
		Rating      float64 `json:"rating"`
		RatingCount int     `json:"ratingCount"`
	} `json:"organic"`
	AnswerBox *struct {
		Title   string `json:"title"`
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"answerBox,omitempty"`
	Message string `json:"message,omitempty"`
}

// Search serves every kind. Flight queries ask for twice the limit because
// many organic hits are not fare pages and get filtered downstream.
func (p *SerperProvider) Search(ctx context.Context, q Query) ([]Result, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}
	num := limit
	if q.Kind == KindFlights {
		num = max(limit*2, 10)
	}
	payload := serperRequest{Q: q.Text, Num: num, GL: q.Filters["country"]}
	if q.Location != "" && !strings.Contains(strings.ToLower(q.Text), strings.ToLower(q.Location)) {
		payload.Q = strings.TrimSpace(q.Text + " " + q.Location)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serper: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("serper: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serper: do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("serper: read response: %w", err)
	}

	var sr serperResponse
	_ = json.Unmarshal(raw, &sr)
	if resp.StatusCode >= 300 {
		msg := sr.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &StatusError{Provider: p.Name(), Code: resp.StatusCode, Message: msg}
	}

	out := make([]Result, 0, len(sr.Organic)+1)
	if sr.AnswerBox != nil && q.Kind == KindInfo {
		text := sr.AnswerBox.Answer
		if text == "" {
			text = sr.AnswerBox.Snippet
		}
		if text != "" {
			out = append(out, Result{Title: sr.AnswerBox.Title, Link: sr.AnswerBox.Link, Snippet: text, Source: p.Name()})
		}
	}
	for _, o := range sr.Organic {
		out = append(out, Result{
			Title:       o.Title,
			Link:        o.Link,
			Snippet:     o.Snippet,
			Price:       priceString(o.Price),
			Rating:      o.Rating,
			RatingCount: o.RatingCount,
			Source:      p.Name(),
		})
		if len(out) >= num {
			break
		}
	}
	return out, nil
}

// priceString accepts serper's price field, which is a number or a string
// depending on the result type.
func priceString(v any) string {
	switch p := v.(type) {
	case string:
		return strings.TrimSpace(p)
	case float64:
		if p == float64(int64(p)) {
			return fmt.Sprintf("$%d", int64(p))
		}
		return fmt.Sprintf("$%.2f", p)
	}
	return ""
}
