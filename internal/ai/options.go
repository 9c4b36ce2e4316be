package ai

import (
	"net/http"
	"strings"
	"time"
)

// defaultTimeout bounds one-shot calls. Streaming clients use no overall
// timeout; they rely on the caller's context instead.
const defaultTimeout = 90 * time.Second

type clientOptions struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
}

// Option customises a provider client.
type Option func(*clientOptions)

// WithEndpoint overrides the provider base URL. Used by tests to point a
// client at an httptest server.
func WithEndpoint(endpoint string) Option {
	return func(o *clientOptions) {
		if trimmed := strings.TrimRight(strings.TrimSpace(endpoint), "/"); trimmed != "" {
			o.endpoint = trimmed
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithTimeout sets the deadline applied to one-shot Generate calls.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func buildOptions(defaultEndpoint string, opts []Option) clientOptions {
	o := clientOptions{
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
