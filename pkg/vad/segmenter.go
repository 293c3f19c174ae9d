package vad

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-lightwall/internal/log"
	"github.com/teslashibe/go-lightwall/pkg/audioio"
)

// EchoGuard reports whether the wall's own voice is playing.
type EchoGuard interface {
	Active() bool
}

// Utterance is one finalized stretch of speech.
type Utterance struct {
	Samples    []int16
	SampleRate int
	Started    time.Time
	Ended      time.Time
}

// Duration returns the length of the audio.
func (u Utterance) Duration() time.Duration {
	return frameDuration(len(u.Samples), u.SampleRate)
}

// UtteranceSink receives finalized utterances. It is called synchronously
// from Process, so no further frames are segmented until it returns.
type UtteranceSink interface {
	OnUtterance(u Utterance)
}

// SinkFunc adapts a function to UtteranceSink.
type SinkFunc func(u Utterance)

// OnUtterance calls f.
func (f SinkFunc) OnUtterance(u Utterance) { f(u) }

// Stats is a snapshot of segmenter state and counters.
type Stats struct {
	Baseline   float64 `json:"baseline"`
	Gate       float64 `json:"gate"`
	InSpeech   bool    `json:"in_speech"`
	Processed  int64   `json:"processed"`
	Dropped    int64   `json:"dropped"`
	Gated      int64   `json:"gated"`
	Utterances int64   `json:"utterances"`
	Discarded  int64   `json:"discarded"`
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Segmenter) { s.logger = l }
}

// WithClock sets the time source used for frames without a capture time.
func WithClock(now func() time.Time) Option {
	return func(s *Segmenter) { s.now = now }
}

// Segmenter turns a frame stream into utterances. Frames must be fed from
// a single goroutine in capture order.
type Segmenter struct {
	cfg    Config
	det    Detector
	guard  EchoGuard
	sink   UtteranceSink
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	gate       *Gate
	quietUntil time.Time
	inSpeech   bool
	pendingEnd time.Time
	started    time.Time
	rate       int
	samples    []int16
	stats      Stats
}

// NewSegmenter creates a segmenter. A nil guard never drops frames and a
// nil detector is replaced by an EnergyDetector.
func NewSegmenter(cfg Config, det Detector, guard EchoGuard, sink UtteranceSink, opts ...Option) *Segmenter {
	if det == nil {
		det = NewEnergyDetector(cfg)
	}
	s := &Segmenter{
		cfg:    cfg,
		det:    det,
		guard:  guard,
		sink:   sink,
		logger: log.Component("vad"),
		now:    time.Now,
		gate:   NewGate(cfg),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process consumes one frame.
func (s *Segmenter) Process(chunk audioio.AudioChunk) {
	if s.guard != nil && s.guard.Active() {
		s.mu.Lock()
		s.stats.Dropped++
		s.mu.Unlock()
		return
	}

	samples := audioio.ToMono(chunk.Samples, chunk.Channels)
	dur := frameDuration(len(samples), chunk.SampleRate)
	now := s.now()
	if !chunk.Captured.IsZero() {
		now = chunk.Captured.Add(dur)
	}
	rms := audioio.RMS(samples)

	s.mu.Lock()
	s.stats.Processed++

	speech := false
	if now.Before(s.quietUntil) || rms < s.gate.Effective() {
		s.stats.Gated++
		if !s.inSpeech {
			s.gate.Observe(rms)
			s.resetDetector()
		}
	} else {
		mono := audioio.AudioChunk{Samples: samples, SampleRate: chunk.SampleRate, Channels: 1, Captured: chunk.Captured}
		ok, err := s.det.IsSpeech(mono)
		if err != nil {
			s.logger.Warn("speech detector failed", "error", err)
		}
		speech = ok && err == nil
	}

	var done *Utterance
	switch {
	case speech:
		if !s.inSpeech {
			s.inSpeech = true
			s.started = now.Add(-dur)
			s.rate = chunk.SampleRate
			s.samples = s.samples[:0]
			s.logger.Info("speech started", "rms", rms, "gate", s.gate.Effective())
		}
		s.pendingEnd = time.Time{}
		s.samples = append(s.samples, samples...)

	case s.inSpeech:
		if s.pendingEnd.IsZero() {
			s.pendingEnd = now.Add(-dur)
		}
		if now.Sub(s.pendingEnd) >= s.cfg.EndSilenceConfirm {
			done = s.finalize()
		}
	}
	s.mu.Unlock()

	if done != nil && s.sink != nil {
		s.sink.OnUtterance(*done)
	}
}

// finalize ends the current utterance and returns it if it is long enough.
// Called with mu held.
func (s *Segmenter) finalize() *Utterance {
	u := Utterance{
		Samples:    make([]int16, len(s.samples)),
		SampleRate: s.rate,
		Started:    s.started,
		Ended:      s.pendingEnd,
	}
	copy(u.Samples, s.samples)

	s.inSpeech = false
	s.pendingEnd = time.Time{}
	s.samples = s.samples[:0]
	s.resetDetector()

	if len(u.Samples) == 0 {
		s.logger.Warn("no audio at end of speech")
		s.stats.Discarded++
		return nil
	}
	if u.Duration() < s.cfg.MinUtterance {
		s.logger.Warn("ignored short utterance", "duration", u.Duration())
		s.stats.Discarded++
		return nil
	}
	s.logger.Info("speech ended", "duration", u.Duration())
	s.stats.Utterances++
	return &u
}

// SetQuietUntil forces every frame before t to count as silence.
func (s *Segmenter) SetQuietUntil(t time.Time) {
	s.mu.Lock()
	s.quietUntil = t
	s.mu.Unlock()
}

// Reset drops any partial utterance, the noise floor and the quiet window.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	s.gate.Reset()
	s.quietUntil = time.Time{}
	s.inSpeech = false
	s.pendingEnd = time.Time{}
	s.samples = s.samples[:0]
	s.resetDetector()
	s.mu.Unlock()
}

// resetDetector clears the detector's run tracking so a finished or gated
// run cannot carry hangover into the next frame that clears the gate.
func (s *Segmenter) resetDetector() {
	if r, ok := s.det.(resetter); ok {
		r.Reset()
	}
}

// Stats returns a snapshot of the segmenter.
func (s *Segmenter) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Baseline = s.gate.Baseline()
	st.Gate = s.gate.Effective()
	st.InSpeech = s.inSpeech
	return st
}
