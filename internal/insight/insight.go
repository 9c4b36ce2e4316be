// Package insight requests a batch of structured, confidence-scored risk
// observations from the remote generation capability.
//
// A batch is all-or-nothing: if any record violates the declared shape or has
// a confidence outside [0, 1], the whole batch is discarded.
package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nyashahama/sentinel-alpha-backend/internal/ai"
)

// ─── ERRORS ──────────────────────────────────────────────────────────────────

var (
	// ErrCredentialMissing means no provider credential was configured. No
	// network call was attempted.
	ErrCredentialMissing = ai.ErrCredentialMissing

	// ErrTransport means the single attempt failed at the network level.
	ErrTransport = ai.ErrTransport

	// ErrMalformedResponse means the response did not conform to the
	// declared schema.
	ErrMalformedResponse = errors.New("insight: malformed response")

	// ErrEmptyContext is returned for a blank context description.
	ErrEmptyContext = errors.New("insight: context must not be empty")
)

// ─── TYPES ───────────────────────────────────────────────────────────────────

// Insight is one structured observation. Confidence is in [0, 1].
type Insight struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

// DefaultCount is the batch size the prompt asks for. The parser accepts
// whatever count the model returns.
const DefaultCount = 3

const promptTemplate = `Analyze the following market context and provide exactly %d "Elite Systemic Insights" that 'Smart Money' is missing.
Focus on hidden fragility, tail risks, and non-obvious correlations.
Each insight has a short title, a 2-3 sentence content body, and a confidence between 0 and 1.

Context: %s`

// ─── REQUESTER ───────────────────────────────────────────────────────────────

// Requester issues one generation call per RequestInsights. It holds no
// state between calls and is safe for concurrent use.
type Requester struct {
	gen ai.Generator
}

// NewRequester returns a Requester backed by gen. A nil gen is valid and
// makes every call return ErrCredentialMissing.
func NewRequester(gen ai.Generator) *Requester {
	return &Requester{gen: gen}
}

// RequestInsights sends exactly one request and returns the parsed batch.
// On any failure the returned slice is nil; callers render an empty panel
// and branch on the error kind.
func (r *Requester) RequestInsights(ctx context.Context, marketContext string) ([]Insight, error) {
	marketContext = strings.TrimSpace(marketContext)
	if marketContext == "" {
		return nil, ErrEmptyContext
	}
	if r.gen == nil {
		return nil, ErrCredentialMissing
	}

	raw, err := r.gen.Generate(ctx, ai.GenerateRequest{
		Prompt: fmt.Sprintf(promptTemplate, DefaultCount, marketContext),
		Schema: json.RawMessage(responseSchema),
	})
	if err != nil {
		if errors.Is(err, ai.ErrCredentialMissing) {
			return nil, ErrCredentialMissing
		}
		if errors.Is(err, ai.ErrTransport) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	insights, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return insights, nil
}

// Parse validates raw against the insight schema and decodes it. Any
// violation yields ErrMalformedResponse and a nil slice.
func Parse(raw string) ([]Insight, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	if err := validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v (raw: %.200s)", ErrMalformedResponse, err, raw)
	}

	var out []Insight
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	// Confidence must lie in [0, 1] regardless of what the schema allowed.
	for i, in := range out {
		if in.Confidence < 0 || in.Confidence > 1 {
			return nil, fmt.Errorf("%w: insights[%d].confidence=%v out of range [0,1]", ErrMalformedResponse, i, in.Confidence)
		}
	}
	if out == nil {
		out = []Insight{}
	}
	return out, nil
}
