package conversation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-lightwall/internal/log"
)

// Defaults for a conversation turn.
const (
	DefaultRate              = 80
	DefaultTranscribeTimeout = 60 * time.Second
	DefaultChatTimeout       = 30 * time.Second
	DefaultQuietDuration     = 200 * time.Millisecond
	DefaultTailMessages      = 6
	DefaultSnippetChars      = 240
	DefaultQueueSize         = 64

	// JoinTimeout bounds how long Stop waits for the listener to exit.
	JoinTimeout = time.Second
)

// Config holds conversation settings.
type Config struct {
	// SystemPrompt opens every chat history. Empty means no system message.
	SystemPrompt string

	// Model overrides the provider's default model when set.
	Model string

	// Rate is the speech rate passed to the speaker.
	Rate int

	// TranscribeTimeout bounds one transcription.
	TranscribeTimeout time.Duration

	// ChatTimeout bounds one language model call.
	ChatTimeout time.Duration

	// QuietDuration is how long the segmenter treats input as silence
	// after the wall finishes speaking.
	QuietDuration time.Duration

	// TailMessages and SnippetChars shape the chat tail debug log.
	TailMessages int
	SnippetChars int

	// QueueSize is the capacity of the listener's frame queue.
	QueueSize int

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// DefaultConfig returns the defaults used by the installation.
func DefaultConfig() Config {
	return Config{
		Rate:              DefaultRate,
		TranscribeTimeout: DefaultTranscribeTimeout,
		ChatTimeout:       DefaultChatTimeout,
		QuietDuration:     DefaultQuietDuration,
		TailMessages:      DefaultTailMessages,
		SnippetChars:      DefaultSnippetChars,
		QueueSize:         DefaultQueueSize,
		Logger:            log.Component("conversation"),
	}
}

// Option configures a conversation.
type Option func(*Config)

// WithSystemPrompt sets the system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *Config) { c.SystemPrompt = prompt }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithRate sets the speech rate.
func WithRate(rate int) Option {
	return func(c *Config) { c.Rate = rate }
}

// WithTimeouts sets the transcription and chat timeouts.
func WithTimeouts(transcribe, chat time.Duration) Option {
	return func(c *Config) {
		c.TranscribeTimeout = transcribe
		c.ChatTimeout = chat
	}
}

// WithQuietDuration sets the post-speech quiet window.
func WithQuietDuration(d time.Duration) Option {
	return func(c *Config) { c.QuietDuration = d }
}

// WithQueueSize sets the frame queue capacity.
func WithQueueSize(n int) Option {
	return func(c *Config) { c.QueueSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Rate <= 0 {
		return fmt.Errorf("conversation: rate must be positive, got %d", c.Rate)
	}
	if c.TranscribeTimeout <= 0 || c.ChatTimeout <= 0 {
		return fmt.Errorf("conversation: timeouts must be positive")
	}
	if c.QuietDuration < 0 {
		return fmt.Errorf("conversation: quiet duration must not be negative")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("conversation: queue size must be positive, got %d", c.QueueSize)
	}
	if c.TailMessages < 0 || c.SnippetChars < 0 {
		return fmt.Errorf("conversation: tail settings must not be negative")
	}
	return nil
}
