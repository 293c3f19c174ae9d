// Package speech gives the wall its voice.
//
// A Speaker says one phrase and blocks until it has been spoken. Voice
// wraps any Speaker so that phrases never overlap and so the microphone
// side can ask whether the wall is currently talking.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-lightwall/internal/log"
)

// DefaultRate is the speaking rate in words per minute.
const DefaultRate = 80

// ErrEmptyText is returned when asked to say nothing.
var ErrEmptyText = errors.New("speech: empty text")

// Speaker says text aloud at rate words per minute and blocks until done.
type Speaker interface {
	Speak(ctx context.Context, text string, rate int) error
}

// SpeakerFunc adapts a function to Speaker.
type SpeakerFunc func(ctx context.Context, text string, rate int) error

// Speak calls f.
func (f SpeakerFunc) Speak(ctx context.Context, text string, rate int) error {
	return f(ctx, text, rate)
}

// Voice serializes speech and tracks whether the wall is talking.
type Voice struct {
	inner  Speaker
	tail   time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex // held for the whole of one phrase
	active  atomic.Int32
	lastEnd atomic.Int64 // unix nanos

	spoken atomic.Int64
	failed atomic.Int64
}

// VoiceOption configures a Voice.
type VoiceOption func(*Voice)

// WithTail keeps Active true for d after a phrase ends, covering room echo.
func WithTail(d time.Duration) VoiceOption {
	return func(v *Voice) { v.tail = d }
}

// WithVoiceLogger sets the logger.
func WithVoiceLogger(l *slog.Logger) VoiceOption {
	return func(v *Voice) { v.logger = l }
}

// NewVoice wraps inner.
func NewVoice(inner Speaker, opts ...VoiceOption) *Voice {
	v := &Voice{
		inner:  inner,
		logger: log.Component("speech"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Speak says text once any earlier phrase has finished.
func (v *Voice) Speak(ctx context.Context, text string, rate int) error {
	if text == "" {
		return ErrEmptyText
	}
	if rate <= 0 {
		rate = DefaultRate
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	v.active.Add(1)
	defer func() {
		v.lastEnd.Store(v.now().UnixNano())
		v.active.Add(-1)
	}()

	start := v.now()
	err := v.inner.Speak(ctx, text, rate)
	if err != nil {
		v.failed.Add(1)
		return err
	}
	v.spoken.Add(1)
	v.logger.Debug("spoke", "chars", len(text), "rate", rate, "took", v.now().Sub(start))
	return nil
}

// Active reports whether a phrase is being spoken, or ended within the tail.
func (v *Voice) Active() bool {
	if v.active.Load() > 0 {
		return true
	}
	if v.tail <= 0 {
		return false
	}
	last := v.lastEnd.Load()
	return last != 0 && v.now().Sub(time.Unix(0, last)) < v.tail
}

// Stats reports phrases spoken and failed.
func (v *Voice) Stats() (spoken, failed int64) {
	return v.spoken.Load(), v.failed.Load()
}

var (
	_ Speaker = (*Voice)(nil)
	_ Speaker = SpeakerFunc(nil)
)
