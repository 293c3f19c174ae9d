package vad

import (
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-lightwall/pkg/audioio"
)

// Detector classifies a frame that has already cleared the energy gate.
type Detector interface {
	IsSpeech(frame audioio.AudioChunk) (bool, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(frame audioio.AudioChunk) (bool, error)

// IsSpeech calls f.
func (f DetectorFunc) IsSpeech(frame audioio.AudioChunk) (bool, error) {
	return f(frame)
}

// resetter is implemented by detectors that carry state between frames.
type resetter interface {
	Reset()
}

// Loudness mapping and voicing limits for EnergyDetector.
const (
	energyLowDB  = -50.0
	energyHighDB = -20.0
	zcrVoiced    = 0.25
	zcrNoise     = 0.50
)

// EnergyDetector is a lightweight speech detector. A frame's speech
// probability is its loudness weighted down by a high zero-crossing rate,
// which marks hiss and fan noise rather than voice.
//
// Once a voiced run has lasted MinSpeech, the detector keeps reporting
// speech through up to MinSilence+SpeechPad of quieter frames so that
// pauses between words do not split the run. Shorter runs get no hangover.
type EnergyDetector struct {
	threshold float64
	minSpeech time.Duration
	hangover  time.Duration

	mu     sync.Mutex
	voiced time.Duration
	silent time.Duration
}

// NewEnergyDetector creates a detector from the pass-through parameters of cfg.
func NewEnergyDetector(cfg Config) *EnergyDetector {
	return &EnergyDetector{
		threshold: cfg.Threshold,
		minSpeech: cfg.MinSpeech,
		hangover:  cfg.MinSilence + cfg.SpeechPad,
	}
}

// Probability returns the speech probability of samples in [0, 1].
func Probability(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	rms := audioio.RMS(samples)
	db := 20 * math.Log10(rms+1e-9)
	loud := math.Min(1, math.Max(0, (db-energyLowDB)/(energyHighDB-energyLowDB)))

	zcr := ZeroCrossingRate(samples)
	voicing := 1.0
	switch {
	case zcr >= zcrNoise:
		voicing = 0
	case zcr > zcrVoiced:
		voicing = (zcrNoise - zcr) / (zcrNoise - zcrVoiced)
	}
	return loud * voicing
}

// ZeroCrossingRate returns the fraction of adjacent samples that change sign.
func ZeroCrossingRate(samples []int16) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

// IsSpeech classifies frame.
func (d *EnergyDetector) IsSpeech(frame audioio.AudioChunk) (bool, error) {
	samples := audioio.ToMono(frame.Samples, frame.Channels)
	dur := frameDuration(len(samples), frame.SampleRate)

	d.mu.Lock()
	defer d.mu.Unlock()

	if Probability(samples) >= d.threshold {
		d.voiced += dur
		d.silent = 0
		return true, nil
	}

	d.silent += dur
	if d.voiced >= d.minSpeech && d.silent <= d.hangover {
		return true, nil
	}
	d.voiced = 0
	return false, nil
}

// Reset clears run tracking.
func (d *EnergyDetector) Reset() {
	d.mu.Lock()
	d.voiced, d.silent = 0, 0
	d.mu.Unlock()
}

func frameDuration(samples, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(rate)
}

var (
	_ Detector = (*EnergyDetector)(nil)
	_ Detector = DetectorFunc(nil)
)
