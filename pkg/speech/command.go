package speech

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/teslashibe/go-lightwall/internal/log"
)

// Template placeholders expanded by Command.
const (
	PlaceholderVoice = "{voice}"
	PlaceholderRate  = "{rate}"
	PlaceholderText  = "{text}"
)

// SayTemplate drives the macOS say command.
var SayTemplate = []string{"say", "-v", PlaceholderVoice, "-r", PlaceholderRate, PlaceholderText}

// EspeakTemplate drives espeak-ng on Linux.
var EspeakTemplate = []string{"espeak-ng", "-v", PlaceholderVoice, "-s", PlaceholderRate, PlaceholderText}

// DefaultTemplate returns the speech command for the current platform.
func DefaultTemplate() []string {
	if runtime.GOOS == "darwin" {
		return SayTemplate
	}
	return EspeakTemplate
}

// Runner executes a command and waits for it. Tests replace it.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Command speaks by running a text-to-speech program. Cancelling the
// context kills the program, cutting the phrase short.
type Command struct {
	template []string
	voice    string
	run      Runner
	logger   *slog.Logger
}

// CommandOption configures a Command.
type CommandOption func(*Command)

// WithTemplate sets the command line. Placeholders are expanded per phrase.
func WithTemplate(args []string) CommandOption {
	return func(c *Command) { c.template = args }
}

// WithRunner replaces command execution.
func WithRunner(r Runner) CommandOption {
	return func(c *Command) { c.run = r }
}

// NewCommand creates a command speaker using voice.
func NewCommand(voice string, opts ...CommandOption) *Command {
	c := &Command{
		template: DefaultTemplate(),
		voice:    voice,
		run:      execRunner,
		logger:   log.Component("speech.command"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Speak runs the command for text.
func (c *Command) Speak(ctx context.Context, text string, rate int) error {
	if len(c.template) == 0 {
		return fmt.Errorf("speech: empty command template")
	}
	args := c.Args(text, rate)
	c.logger.Debug("running speech command", "command", args[0], "rate", rate)
	return c.run(ctx, args[0], args[1:]...)
}

// Args expands the template for one phrase. With no voice configured the
// voice argument and the flag before it are dropped.
func (c *Command) Args(text string, rate int) []string {
	out := make([]string, 0, len(c.template))
	for i, a := range c.template {
		if a == PlaceholderVoice && c.voice == "" {
			if i > 0 && strings.HasPrefix(c.template[i-1], "-") && len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		a = strings.ReplaceAll(a, PlaceholderVoice, c.voice)
		a = strings.ReplaceAll(a, PlaceholderRate, strconv.Itoa(rate))
		a = strings.ReplaceAll(a, PlaceholderText, text)
		out = append(out, a)
	}
	return out
}

var _ Speaker = (*Command)(nil)
