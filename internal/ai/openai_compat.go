package ai

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

// Base URLs of chat-completions APIs that speak the OpenAI wire format.
const (
	OpenAIBaseURL   = "https://api.openai.com/v1"
	DeepSeekBaseURL = "https://api.deepseek.com/v1"
	GroqBaseURL     = "https://api.groq.com/openai/v1"
)

// defaultHTTPClient guards against stalled connections while context
// cancellation is still honoured via NewRequestWithContext.
var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

// ChatProvider calls an OpenAI-compatible /chat/completions endpoint.
type ChatProvider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type ChatConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

func NewChatProvider(cfg ChatConfig) (*ChatProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: missing api key", cfg.Name)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Client == nil {
		cfg.Client = defaultHTTPClient
	}
	return &ChatProvider{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  cfg.Client,
	}, nil
}

func (p *ChatProvider) Name() string { return p.name }

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float32         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends the request and returns the reply text. With a schema the
// JSON shape is appended to the system message and json_object mode is on.
func (p *ChatProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	system := req.System
	var format *responseFormat
	if req.Schema != nil {
		shape, err := json.Marshal(req.Schema)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal schema: %w", p.name, err)
		}
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object matching this schema:\n" + string(shape))
		format = &responseFormat{Type: "json_object"}
	}

	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	reqBody, err := json.Marshal(chatRequest{
		Model:          p.model,
		Messages:       messages,
		Temperature:    req.Temperature,
		ResponseFormat: format,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: do request: %w", p.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", p.name, err)
	}

	var cr chatResponse
	if jsonErr := json.Unmarshal(body, &cr); jsonErr != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("%s: unmarshal response: %w", p.name, jsonErr)
	}
	if resp.StatusCode >= 300 {
		msg := http.StatusText(resp.StatusCode)
		if cr.Error != nil && cr.Error.Message != "" {
			msg = cr.Error.Message
		}
		return nil, &StatusError{Provider: p.name, Code: resp.StatusCode, Message: msg}
	}
	if cr.Error != nil {
		return nil, fmt.Errorf("%s: api error: %s", p.name, cr.Error.Message)
	}
	if len(cr.Choices) == 0 || strings.TrimSpace(cr.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("%s: %w", p.name, ErrEmptyResponse)
	}

	out := &Completion{
		Text:     CleanJSON(cr.Choices[0].Message.Content),
		Provider: p.name,
		Model:    p.model,
	}
	if cr.Model != "" {
		out.Model = cr.Model
	}
	if cr.Usage != nil {
		out.TokensUsed = cr.Usage.TotalTokens
	}
	return out, nil
}
