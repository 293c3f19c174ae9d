package inference

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-lightwall/internal/log"
)

// Ollama defaults used by the installation.
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "gemma3:12b"
	DefaultKeepAlive   = "24h"
	DefaultNumCtx      = 4096
	DefaultNumBatch    = 512
)

// Config holds provider configuration.
type Config struct {
	// Connection
	BaseURL string // API base URL
	APIKey  string // API key (optional for local providers)

	// Model
	Model string // Default chat model

	// Request defaults
	MaxTokens   int
	Temperature float64
	TopP        float64

	// Ollama runtime options
	NumCtx    int    // context window in tokens
	NumBatch  int    // prompt batch size
	KeepAlive string // how long Ollama keeps the model loaded

	// Timeouts
	Timeout time.Duration

	// Retry configuration
	MaxRetries int
	RetryDelay time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithBaseURL sets the API base URL.
// Examples: "https://api.openai.com/v1", "http://localhost:11434"
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the default chat model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithTopP sets the default nucleus sampling value.
func WithTopP(p float64) Option {
	return func(c *Config) { c.TopP = p }
}

// WithContext sets Ollama's context window and batch size.
func WithContext(numCtx, numBatch int) Option {
	return func(c *Config) {
		c.NumCtx = numCtx
		c.NumBatch = numBatch
	}
}

// WithKeepAlive sets how long Ollama keeps the model resident.
func WithKeepAlive(d string) Option {
	return func(c *Config) { c.KeepAlive = d }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry configures retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults for OpenAI.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		MaxTokens:   1024,
		Temperature: 0.7,
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		RetryDelay:  100 * time.Millisecond,
		Logger:      log.L(),
	}
}

// DefaultOllamaConfig returns the installation's Ollama settings.
func DefaultOllamaConfig() *Config {
	return &Config{
		BaseURL:     DefaultOllamaURL,
		Model:       DefaultOllamaModel,
		Temperature: 0.6,
		TopP:        0.9,
		NumCtx:      DefaultNumCtx,
		NumBatch:    DefaultNumBatch,
		KeepAlive:   DefaultKeepAlive,
		Timeout:     30 * time.Second,
		MaxRetries:  1,
		RetryDelay:  250 * time.Millisecond,
		Logger:      log.L(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
// The API key is optional for local providers like Ollama.
func (c *Config) Validate() error {
	if c.Model == "" {
		return ErrNoModel
	}
	return nil
}
