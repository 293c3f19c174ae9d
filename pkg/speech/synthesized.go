package speech

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-lightwall/internal/log"
	"github.com/teslashibe/go-lightwall/pkg/audioio"
	"github.com/teslashibe/go-lightwall/pkg/tts"
)

// Synthesized speaks through a cloud TTS provider and an audio sink.
type Synthesized struct {
	provider tts.Provider
	sink     audioio.Sink
	voice    string
	envelope *Envelope
	logger   *slog.Logger
}

// SynthesizedOption configures a Synthesized speaker.
type SynthesizedOption func(*Synthesized)

// WithVoiceName overrides the provider's configured voice.
func WithVoiceName(voice string) SynthesizedOption {
	return func(s *Synthesized) { s.voice = voice }
}

// WithEnvelope feeds every played chunk to e.
func WithEnvelope(e *Envelope) SynthesizedOption {
	return func(s *Synthesized) { s.envelope = e }
}

// NewSynthesized creates a speaker that plays provider output on sink.
// The sink must already be started.
func NewSynthesized(provider tts.Provider, sink audioio.Sink, opts ...SynthesizedOption) *Synthesized {
	s := &Synthesized{
		provider: provider,
		sink:     sink,
		logger:   log.Component("speech.synth"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Speak synthesizes text and blocks until the sink has played it.
func (s *Synthesized) Speak(ctx context.Context, text string, rate int) error {
	result, err := s.provider.Synthesize(ctx, tts.Request{
		Text:  text,
		Voice: s.voice,
		Speed: tts.SpeedFromRate(rate),
	})
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	cfg := s.sink.Config()
	samples := audioio.Resample(result.Samples(), result.Format.SampleRate, cfg.SampleRate)
	if cfg.Channels == 2 {
		samples = audioio.MonoToStereo(samples)
	}

	chunk := cfg.BufferSize() * cfg.Channels
	if chunk <= 0 {
		chunk = len(samples)
	}

	s.logger.Debug("playing speech", "samples", len(samples), "duration", result.Duration)
	for off := 0; off < len(samples); off += chunk {
		end := min(len(samples), off+chunk)
		c := audioio.AudioChunk{
			Samples:    samples[off:end],
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
		}
		if err := s.sink.Write(ctx, c); err != nil {
			s.sink.Clear()
			return fmt.Errorf("play: %w", err)
		}
		if s.envelope != nil {
			s.envelope.Feed(c.Samples, cfg.SampleRate*cfg.Channels)
		}
	}

	if err := s.sink.Flush(ctx); err != nil {
		s.sink.Clear()
		return fmt.Errorf("flush: %w", err)
	}
	if s.envelope != nil {
		s.envelope.Reset()
	}
	return nil
}

var _ Speaker = (*Synthesized)(nil)
