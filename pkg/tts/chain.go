package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-lightwall/internal/log"
)

// Backend is one named provider in a Chain. Each backend keeps the voice
// it was configured with.
type Backend struct {
	Name     string
	Provider Provider
}

// Chain synthesizes with the first backend that succeeds.
//
// A voice named in the Request belongs to the primary backend's catalogue,
// so fallbacks are asked without it and speak in their own configured
// voice. Empty text is rejected up front rather than by every backend.
type Chain struct {
	backends []Backend
	logger   *slog.Logger
}

var _ Provider = (*Chain)(nil)

// NewChain creates a chain over backends, tried in the given order.
func NewChain(logger *slog.Logger, backends ...Backend) (*Chain, error) {
	if len(backends) == 0 {
		return nil, ErrProviderUnavailable
	}
	for _, b := range backends {
		if b.Provider == nil {
			return nil, WrapError(b.Name, ErrProviderUnavailable)
		}
	}
	if logger == nil {
		logger = log.Component("tts")
	}
	return &Chain{backends: backends, logger: logger}, nil
}

// Synthesize tries each backend until one returns audio.
func (c *Chain) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	var failures []Failure
	for i, b := range c.backends {
		r := req
		if i > 0 {
			r.Voice = ""
		}
		result, err := b.Provider.Synthesize(ctx, r)
		if err == nil {
			if i > 0 {
				c.logger.Warn("spoke with fallback backend", "backend", b.Name, "chars", len(req.Text))
			}
			return result, nil
		}

		failures = append(failures, Failure{Backend: b.Name, Err: err})
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("synthesis failed", "backend", b.Name, "error", err)
	}
	return nil, &FallbackError{Failures: failures}
}

// Health succeeds when at least one backend is reachable.
func (c *Chain) Health(ctx context.Context) error {
	var failures []Failure
	for _, b := range c.backends {
		if err := b.Provider.Health(ctx); err != nil {
			failures = append(failures, Failure{Backend: b.Name, Err: err})
		}
	}
	if len(failures) == len(c.backends) {
		return &FallbackError{Failures: failures}
	}
	return nil
}

// Close closes every backend.
func (c *Chain) Close() error {
	var errs []error
	for _, b := range c.backends {
		if err := b.Provider.Close(); err != nil {
			errs = append(errs, WrapError(b.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Failure is one backend's error inside a FallbackError.
type Failure struct {
	Backend string
	Err     error
}

// FallbackError reports that every backend of a Chain failed. It matches
// ErrAllProvidersFailed and each backend's error with errors.Is.
type FallbackError struct {
	Failures []Failure
}

func (e *FallbackError) Error() string {
	msg := fmt.Sprintf("tts: all %d backends failed", len(e.Failures))
	for _, f := range e.Failures {
		msg += fmt.Sprintf("; %s: %v", f.Backend, f.Err)
	}
	return msg
}

// Is reports whether target is ErrAllProvidersFailed.
func (e *FallbackError) Is(target error) bool {
	return target == ErrAllProvidersFailed
}

// Unwrap returns the backend errors in fallback order.
func (e *FallbackError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}
