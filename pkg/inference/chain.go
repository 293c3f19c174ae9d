package inference

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/teslashibe/go-lightwall/internal/log"
)

// Backend is one named provider in a Chain.
type Backend struct {
	Name     string
	Provider Provider
}

// Chain asks each backend in order until one replies. The wall uses it to
// fall back from the local Ollama server to a hosted model when the
// gallery machine's GPU is busy or the server is down.
type Chain struct {
	backends []Backend
	logger   *slog.Logger

	// answered is the index of the backend that produced the last reply,
	// or -1 before the first reply.
	answered atomic.Int32
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
		logger = log.Component("inference")
	}
	c := &Chain{
		backends: backends,
		logger:   logger,
	}
	c.answered.Store(-1)
	return c, nil
}

// Chat tries each backend in turn. A cancelled or expired ctx stops the
// walk: the remaining backends would only fail the same way.
func (c *Chain) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var failures []Failure

	for i, b := range c.backends {
		resp, err := b.Provider.Chat(ctx, req)
		if err == nil {
			prev := c.answered.Swap(int32(i))
			switch {
			case i > 0 && prev != int32(i):
				c.logger.Warn("answering from fallback backend", "backend", b.Name, "failed", len(failures))
			case i == 0 && prev > 0:
				c.logger.Info("primary backend answering again", "backend", b.Name)
			}
			return resp, nil
		}

		failures = append(failures, Failure{Backend: b.Name, Err: err})
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if i < len(c.backends)-1 {
			c.logger.Warn("backend failed, falling back", "backend", b.Name, "next", c.backends[i+1].Name, "error", err)
		}
	}

	return nil, &FallbackError{Failures: failures}
}

// Answered returns the name of the backend that produced the last reply.
func (c *Chain) Answered() string {
	i := c.answered.Load()
	if i < 0 {
		return ""
	}
	return c.backends[i].Name
}

// Names returns the backend names in fallback order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name
	}
	return names
}

// Health succeeds when at least one backend is reachable. Unreachable
// backends are logged so a dead fallback is noticed before it is needed.
func (c *Chain) Health(ctx context.Context) error {
	var failures []Failure
	for _, b := range c.backends {
		if err := b.Provider.Health(ctx); err != nil {
			failures = append(failures, Failure{Backend: b.Name, Err: err})
			c.logger.Warn("backend unhealthy", "backend", b.Name, "error", err)
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
