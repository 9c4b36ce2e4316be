package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// geminiClient is the Provider backed by the Gemini generateContent API.
type geminiClient struct {
	apiKey string
	model  string
	opts   clientOptions
}

// NewGeminiClient returns a Provider that calls the Gemini API.
//   - apiKey: your GEMINI_API_KEY; empty yields ErrCredentialMissing on use
//   - model:  e.g. "gemini-3-flash-preview"
func NewGeminiClient(apiKey, model string, opts ...Option) Provider {
	return &geminiClient{
		apiKey: strings.TrimSpace(apiKey),
		model:  model,
		opts:   buildOptions(defaultGeminiEndpoint, opts),
	}
}

// ─── GEMINI API SHAPES ───────────────────────────────────────────────────────

type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature        *float64        `json:"temperature,omitempty"`
	ResponseMimeType   string          `json:"responseMimeType,omitempty"`
	ResponseJSONSchema json.RawMessage `json:"responseJsonSchema,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// text concatenates the parts of the first candidate.
func (r geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// ─── IMPLEMENTATION ──────────────────────────────────────────────────────────

// Generate calls generateContent with a JSON response schema and returns the
// response text.
func (c *geminiClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if c.apiKey == "" {
		return "", ErrCredentialMissing
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout)
	defer cancel()

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
	}
	if len(req.Schema) > 0 {
		body.GenerationConfig = &geminiGenConfig{
			ResponseMimeType:   "application/json",
			ResponseJSONSchema: req.Schema,
		}
	}

	resp, err := postJSON(ctx, c.opts.httpClient, c.url("generateContent", false), c.headers(), body)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	respBytes, err := readBody(resp)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("%w: gemini: unmarshal response: %v", ErrTransport, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: gemini: API error %s: %s", ErrTransport, parsed.Error.Status, parsed.Error.Message)
	}

	return stripFences(parsed.text()), nil
}

// OpenStream calls streamGenerateContent with alt=sse. Each event is a full
// generateContent response carrying the next slice of text; the event with a
// finishReason closes the sequence.
func (c *geminiClient) OpenStream(ctx context.Context, req ChatRequest) (FragmentStream, error) {
	if c.apiKey == "" {
		return nil, ErrCredentialMissing
	}

	contents := make([]geminiContent, 0, len(req.History)+1)
	for _, m := range req.History {
		contents = append(contents, geminiContent{Role: geminiRole(m.Role), Parts: []geminiPart{{Text: m.Text}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.Message}}})

	body := geminiRequest{Contents: contents}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.GenerationConfig = &geminiGenConfig{Temperature: &t}
	}

	resp, err := postJSON(ctx, c.opts.httpClient, c.url("streamGenerateContent", true), c.headers(), body)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	return newSSEStream(resp.Body, decodeGeminiEvent), nil
}

func decodeGeminiEvent(_ string, data string) (string, bool, error) {
	var chunk geminiResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false, fmt.Errorf("%w: gemini: decode event: %v", ErrTransport, err)
	}
	if chunk.Error != nil {
		return "", false, fmt.Errorf("%w: gemini: stream error %s: %s", ErrTransport, chunk.Error.Status, chunk.Error.Message)
	}
	final := len(chunk.Candidates) > 0 && chunk.Candidates[0].FinishReason != ""
	return chunk.text(), final, nil
}

func (c *geminiClient) url(method string, sse bool) string {
	u := fmt.Sprintf("%s/models/%s:%s", c.opts.endpoint, url.PathEscape(c.model), method)
	if sse {
		u += "?alt=sse"
	}
	return u
}

func (c *geminiClient) headers() map[string]string {
	return map[string]string{"x-goog-api-key": c.apiKey}
}

// geminiRole maps history roles onto Gemini's user/model pair.
func geminiRole(r Role) string {
	if r == RoleAssistant {
		return "model"
	}
	return "user"
}
