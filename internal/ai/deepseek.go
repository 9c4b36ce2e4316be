package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const defaultDeepSeekEndpoint = "https://api.deepseek.com/v1"

// deepseekClient is the Provider backed by the DeepSeek API.
// DeepSeek exposes an OpenAI-compatible /chat/completions endpoint, so the
// request/response shapes are standard OpenAI chat format.
type deepseekClient struct {
	apiKey string
	model  string
	opts   clientOptions
}

// NewDeepSeekClient returns a Provider that calls the DeepSeek API.
//   - apiKey: your DEEPSEEK_API_KEY
//   - model:  e.g. "deepseek-chat"
func NewDeepSeekClient(apiKey, model string, opts ...Option) Provider {
	return &deepseekClient{
		apiKey: strings.TrimSpace(apiKey),
		model:  model,
		opts:   buildOptions(defaultDeepSeekEndpoint, opts),
	}
}

// ─── OPENAI-COMPATIBLE API SHAPES ────────────────────────────────────────────

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Stream      bool            `json:"stream,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ─── IMPLEMENTATION ───────────────────────────────────────────────────────────

// Generate calls chat completions once. json_object mode cannot express a
// top-level array, so the schema travels in the prompt instead.
func (c *deepseekClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if c.apiKey == "" {
		return "", ErrCredentialMissing
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()

	reqBody := openAIRequest{
		Model:     c.model,
		MaxTokens: 2048,
		Messages: []openAIMessage{
			{Role: "user", Content: withSchema(req.Prompt, req.Schema)},
		},
	}

	resp, err := postJSON(ctx, c.opts.httpClient, c.opts.endpoint+"/chat/completions", c.headers(), reqBody)
	if err != nil {
		return "", fmt.Errorf("deepseek: %w", err)
	}
	respBytes, err := readBody(resp)
	if err != nil {
		return "", fmt.Errorf("deepseek: %w", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("%w: deepseek: unmarshal response: %v", ErrTransport, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: deepseek: API error %s: %s", ErrTransport, parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: deepseek: no choices in response", ErrTransport)
	}

	return stripFences(parsed.Choices[0].Message.Content), nil
}

// OpenStream calls chat completions with stream=true. The sequence ends with
// the literal "data: [DONE]" event.
func (c *deepseekClient) OpenStream(ctx context.Context, req ChatRequest) (FragmentStream, error) {
	if c.apiKey == "" {
		return nil, ErrCredentialMissing
	}

	messages := make([]openAIMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.History {
		messages = append(messages, openAIMessage{Role: string(m.Role), Content: m.Text})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.Message})

	reqBody := openAIRequest{
		Model:     c.model,
		MaxTokens: 2048,
		Messages:  messages,
		Stream:    true,
	}
	if req.Temperature > 0 {
		t := req.Temperature
		reqBody.Temperature = &t
	}

	resp, err := postJSON(ctx, c.opts.httpClient, c.opts.endpoint+"/chat/completions", c.headers(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("deepseek: %w", err)
	}

	return newSSEStream(resp.Body, decodeOpenAIEvent), nil
}

func decodeOpenAIEvent(_ string, data string) (string, bool, error) {
	if data == "[DONE]" {
		return "", true, nil
	}
	var chunk openAIResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false, fmt.Errorf("%w: deepseek: decode event: %v", ErrTransport, err)
	}
	if chunk.Error != nil {
		return "", false, fmt.Errorf("%w: deepseek: stream error %s: %s", ErrTransport, chunk.Error.Type, chunk.Error.Message)
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	return chunk.Choices[0].Delta.Content, false, nil
}

func (c *deepseekClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}
