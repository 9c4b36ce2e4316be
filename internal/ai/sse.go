package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ─── SHARED HTTP ─────────────────────────────────────────────────────────────

// postJSON marshals body, POSTs it to url with the given headers, and returns
// the response when the status is 2xx. Every failure wraps ErrTransport except
// request construction, which is a programming error.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any) (*http.Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("ai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		respBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return nil, fmt.Errorf("%w: unexpected status %d: %.200s", ErrTransport, resp.StatusCode, string(respBytes))
	}

	return resp, nil
}

// readBody reads a capped response body and closes it.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB cap
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrTransport, err)
	}
	return b, nil
}

// ─── SERVER-SENT EVENTS ──────────────────────────────────────────────────────

// sseDecoder turns one SSE event into a fragment. final reports that the
// provider signalled end-of-sequence; text may still be non-empty on the
// final event.
type sseDecoder func(event, data string) (text string, final bool, err error)

// sseStream is the FragmentStream shared by all providers. Fragments are read
// from the connection only when Next is called.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	decode  sseDecoder
	event   string
	done    bool
}

func newSSEStream(body io.ReadCloser, decode sseDecoder) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &sseStream{body: body, scanner: scanner, decode: decode}
}

func (s *sseStream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case line == "":
			s.event = ""
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			s.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			text, final, err := s.decode(s.event, data)
			if err != nil {
				s.done = true
				return "", err
			}
			if final {
				s.done = true
				if text == "" {
					return "", io.EOF
				}
				return text, nil
			}
			if text != "" {
				return text, nil
			}
		}
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: read stream: %v", ErrTransport, err)
	}
	return "", fmt.Errorf("%w: stream ended without completion signal", ErrTransport)
}

// Close may be called concurrently with a blocked Next, which then fails.
func (s *sseStream) Close() error {
	return s.body.Close()
}

// stripFences removes markdown code fences a model may wrap JSON in.
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}
