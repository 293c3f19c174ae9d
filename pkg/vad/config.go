// Package vad segments a live microphone stream into utterances.
//
// Every frame passes an adaptive energy gate first. Only frames loud enough
// to clear the gate reach the Detector, and an utterance ends once silence
// has held for EndSilenceConfirm.
package vad

import (
	"errors"
	"time"
)

// Gate defaults.
const (
	DefaultStaticGate     = 0.01
	AbsoluteMinGate       = 0.001
	DefaultGateMultiplier = 3.0
	DefaultAlpha          = 0.05
)

// Config holds the gate, debounce and detector parameters.
type Config struct {
	// Adaptive gate
	StaticGate     float64 `yaml:"static_gate" mapstructure:"static_gate"`         // RMS floor (default: 0.01)
	GateMultiplier float64 `yaml:"gate_multiplier" mapstructure:"gate_multiplier"` // dynamic gate = baseline * multiplier (default: 3)
	Alpha          float64 `yaml:"alpha" mapstructure:"alpha"`                     // EMA smoothing for the baseline (default: 0.05)

	// Segmentation
	EndSilenceConfirm time.Duration `yaml:"end_silence_confirm" mapstructure:"end_silence_confirm"` // silence that ends an utterance (default: 1s)
	MinUtterance      time.Duration `yaml:"min_utterance" mapstructure:"min_utterance"`             // shorter utterances are dropped (default: 600ms)

	// Detector pass-through
	Threshold  float64       `yaml:"threshold" mapstructure:"threshold"`     // speech probability 0.0-1.0 (default: 0.5)
	MinSpeech  time.Duration `yaml:"min_speech" mapstructure:"min_speech"`   // default: 250ms
	MinSilence time.Duration `yaml:"min_silence" mapstructure:"min_silence"` // default: 100ms
	SpeechPad  time.Duration `yaml:"speech_pad" mapstructure:"speech_pad"`   // default: 30ms
}

// DefaultConfig returns the installation's tuning.
func DefaultConfig() Config {
	return Config{
		StaticGate:     DefaultStaticGate,
		GateMultiplier: DefaultGateMultiplier,
		Alpha:          DefaultAlpha,

		EndSilenceConfirm: time.Second,
		MinUtterance:      600 * time.Millisecond,

		Threshold:  0.5,
		MinSpeech:  250 * time.Millisecond,
		MinSilence: 100 * time.Millisecond,
		SpeechPad:  30 * time.Millisecond,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.StaticGate < 0 {
		return errors.New("vad: static gate must not be negative")
	}
	if c.GateMultiplier < 0 {
		return errors.New("vad: gate multiplier must not be negative")
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		return errors.New("vad: alpha must be in (0, 1]")
	}
	if c.EndSilenceConfirm <= 0 {
		return errors.New("vad: end silence confirm must be positive")
	}
	if c.MinUtterance < 0 {
		return errors.New("vad: min utterance must not be negative")
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return errors.New("vad: threshold must be between 0 and 1")
	}
	return nil
}

// WithGate returns a copy with the static gate and multiplier set.
func (c Config) WithGate(static, multiplier float64) Config {
	c.StaticGate = static
	c.GateMultiplier = multiplier
	return c
}

// WithSegmentation returns a copy with the debounce and minimum length set.
func (c Config) WithSegmentation(endSilence, minUtterance time.Duration) Config {
	c.EndSilenceConfirm = endSilence
	c.MinUtterance = minUtterance
	return c
}
