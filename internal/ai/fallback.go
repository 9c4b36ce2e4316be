package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// fallbackProvider wraps two Providers. It calls the primary first; if that
// fails before producing any output it logs the failure and tries the
// secondary. A stream that has already been opened is never switched over
// mid-sequence: fragments from two models must not be spliced into one turn.
type fallbackProvider struct {
	primary   Provider
	secondary Provider
	logger    *slog.Logger
}

// NewFallback returns a Provider that calls primary and, on failure, falls
// back to secondary. Either argument may be nil. If both are nil every call
// returns ErrCredentialMissing.
func NewFallback(primary, secondary Provider, logger *slog.Logger) Provider {
	return &fallbackProvider{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

// Generate tries the primary Generator, then the secondary.
func (f *fallbackProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if f.primary != nil {
		out, err := f.primary.Generate(ctx, req)
		if err == nil {
			return out, nil
		}
		if !f.shouldFallback(ctx, "generate", err) {
			return "", err
		}
	}
	if f.secondary == nil {
		return "", ErrCredentialMissing
	}
	return f.secondary.Generate(ctx, req)
}

// OpenStream tries to open the primary stream, then the secondary.
func (f *fallbackProvider) OpenStream(ctx context.Context, req ChatRequest) (FragmentStream, error) {
	if f.primary != nil {
		stream, err := f.primary.OpenStream(ctx, req)
		if err == nil {
			return stream, nil
		}
		if !f.shouldFallback(ctx, "stream", err) {
			return nil, err
		}
	}
	if f.secondary == nil {
		return nil, ErrCredentialMissing
	}
	return f.secondary.OpenStream(ctx, req)
}

// shouldFallback logs the primary failure and reports whether the secondary
// is worth trying. A cancelled caller context is never retried.
func (f *fallbackProvider) shouldFallback(ctx context.Context, op string, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if f.secondary == nil {
		return false
	}
	level := slog.LevelWarn
	if errors.Is(err, ErrCredentialMissing) {
		level = slog.LevelDebug
	}
	f.logger.Log(ctx, level, fmt.Sprintf("ai: primary %s failed, trying secondary", op), "error", err)
	return true
}
