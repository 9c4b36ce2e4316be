package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	defaultAnthropicEndpoint = "https://api.anthropic.com/v1"
	anthropicVersion         = "2023-06-01"
)

// anthropicClient is the Provider backed by the Anthropic Messages API.
type anthropicClient struct {
	apiKey string
	model  string
	opts   clientOptions
}

// NewAnthropicClient returns a Provider that calls the Anthropic API.
//   - apiKey: your ANTHROPIC_API_KEY
//   - model:  e.g. "claude-opus-4-6"
func NewAnthropicClient(apiKey, model string, opts ...Option) Provider {
	return &anthropicClient{
		apiKey: strings.TrimSpace(apiKey),
		model:  model,
		opts:   buildOptions(defaultAnthropicEndpoint, opts),
	}
}

// ─── ANTHROPIC API SHAPES ─────────────────────────────────────────────────────

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// anthropicEvent covers the streaming event types we act on:
// content_block_delta (text), message_stop (end) and error.
type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ─── IMPLEMENTATION ───────────────────────────────────────────────────────────

// Generate calls the Messages API once. Anthropic has no native response
// schema, so the schema is appended to the prompt.
func (c *anthropicClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if c.apiKey == "" {
		return "", ErrCredentialMissing
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()

	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: 2048,
		Messages: []anthropicMessage{
			{Role: "user", Content: withSchema(req.Prompt, req.Schema)},
		},
	}

	resp, err := postJSON(ctx, c.opts.httpClient, c.opts.endpoint+"/messages", c.headers(), reqBody)
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	respBytes, err := readBody(resp)
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("%w: anthropic: unmarshal response: %v", ErrTransport, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: anthropic: API error %s: %s", ErrTransport, parsed.Error.Type, parsed.Error.Message)
	}

	for _, block := range parsed.Content {
		if block.Type == "text" {
			return stripFences(block.Text), nil
		}
	}
	return "", fmt.Errorf("%w: anthropic: no text content in response", ErrTransport)
}

// OpenStream calls the Messages API with stream=true.
func (c *anthropicClient) OpenStream(ctx context.Context, req ChatRequest) (FragmentStream, error) {
	if c.apiKey == "" {
		return nil, ErrCredentialMissing
	}

	messages := make([]anthropicMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		messages = append(messages, anthropicMessage{Role: string(m.Role), Content: m.Text})
	}
	messages = append(messages, anthropicMessage{Role: "user", Content: req.Message})

	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: 2048,
		System:    req.System,
		Messages:  messages,
		Stream:    true,
	}
	if req.Temperature > 0 {
		t := req.Temperature
		reqBody.Temperature = &t
	}

	resp, err := postJSON(ctx, c.opts.httpClient, c.opts.endpoint+"/messages", c.headers(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	return newSSEStream(resp.Body, decodeAnthropicEvent), nil
}

func decodeAnthropicEvent(_ string, data string) (string, bool, error) {
	var ev anthropicEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return "", false, fmt.Errorf("%w: anthropic: decode event: %v", ErrTransport, err)
	}
	switch ev.Type {
	case "content_block_delta":
		if ev.Delta.Type == "text_delta" {
			return ev.Delta.Text, false, nil
		}
	case "message_stop":
		return "", true, nil
	case "error":
		msg := "unknown"
		if ev.Error != nil {
			msg = ev.Error.Type + ": " + ev.Error.Message
		}
		return "", false, fmt.Errorf("%w: anthropic: stream error %s", ErrTransport, msg)
	}
	return "", false, nil
}

func (c *anthropicClient) headers() map[string]string {
	return map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}
}

// withSchema appends the output contract for providers without native
// structured output.
func withSchema(prompt string, schema json.RawMessage) string {
	if len(schema) == 0 {
		return prompt
	}
	return prompt + "\n\nRespond ONLY with valid JSON matching this JSON Schema, no markdown fences, no preamble:\n" + string(schema)
}
