// Package ai defines the remote generation capability used by the insight
// requester and the conversational session, and provides Gemini, Anthropic
// and DeepSeek implementations over plain HTTP.
package ai

import (
	"context"
	"encoding/json"
	"errors"
)

// ─── ERRORS ──────────────────────────────────────────────────────────────────

// ErrCredentialMissing is returned before any network attempt when the
// provider was constructed without an API key.
var ErrCredentialMissing = errors.New("ai: credential missing")

// ErrTransport wraps every network or HTTP-status failure, both for one-shot
// calls and mid-stream. Callers match it with errors.Is.
var ErrTransport = errors.New("ai: transport failure")

// ─── REQUEST SHAPES ──────────────────────────────────────────────────────────

// Role identifies the speaker of a history message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior turn passed back to the provider as chat history.
type Message struct {
	Role Role
	Text string
}

// GenerateRequest is a one-shot structured-output request.
type GenerateRequest struct {
	Prompt string

	// Schema is a JSON Schema document describing the required output shape.
	// Providers that support native structured output forward it; the others
	// embed it in the prompt.
	Schema json.RawMessage
}

// ChatRequest is a streaming chat request: the persona instruction, the
// completed history, and the new user message.
type ChatRequest struct {
	System      string
	History     []Message
	Message     string
	Temperature float64
}

// ─── INTERFACES ──────────────────────────────────────────────────────────────

// Generator performs a single, non-streaming structured generation.
//
// Implementations must be safe to call concurrently. The returned string is
// the raw response body text; parsing it is the caller's job.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Streamer opens streaming chat exchanges.
type Streamer interface {
	// OpenStream issues the request and returns once the remote side has
	// accepted it. Fragments are pulled lazily from the returned stream.
	OpenStream(ctx context.Context, req ChatRequest) (FragmentStream, error)
}

// FragmentStream is a finite, ordered sequence of text fragments.
//
// Next blocks until the next fragment is available. It returns io.EOF once
// the provider signals end-of-sequence, and an error wrapping ErrTransport if
// the connection breaks. Close must be called once the consumer is done,
// whether or not io.EOF was reached.
type FragmentStream interface {
	Next() (string, error)
	Close() error
}

// Provider is implemented by every concrete client in this package.
type Provider interface {
	Generator
	Streamer
}
