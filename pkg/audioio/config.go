// Package audioio captures microphone audio and plays speech.
//
// Backends:
//   - command: pipes raw PCM through arecord/aplay (Linux) or sox (macOS)
//   - mock: scripted or synthetic audio for tests and dry runs
//
// Captured frames are delivered in order on a channel. FrameQueue decouples
// capture from a slower consumer by dropping the oldest frames.
package audioio

import (
	"fmt"
	"time"
)

// Backend names an audio implementation.
type Backend string

const (
	// BackendAuto picks command on Linux and macOS, mock elsewhere.
	BackendAuto    Backend = "auto"
	BackendCommand Backend = "command"
	BackendMock    Backend = "mock"
)

// Config holds audio configuration.
type Config struct {
	Backend Backend `yaml:"backend" json:"backend" mapstructure:"backend"`

	// SampleRate in Hz. Default 16000, what speech recognition expects.
	SampleRate int `yaml:"sample_rate" json:"sample_rate" mapstructure:"sample_rate"`

	Channels int `yaml:"channels" json:"channels" mapstructure:"channels"`

	// BufferDuration is the frame length. Default 32ms, 512 samples at 16kHz.
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration" mapstructure:"buffer_duration"`

	// Device is passed to the capture and playback programs, e.g.
	// "plughw:1,0". Empty uses the system default.
	Device string `yaml:"device" json:"device" mapstructure:"device"`

	// QueueSize bounds the frames held between capture and processing.
	QueueSize int `yaml:"queue_size" json:"queue_size" mapstructure:"queue_size"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     16000,
		Channels:       1,
		BufferDuration: 32 * time.Millisecond,
		QueueSize:      64,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	switch c.Backend {
	case BackendAuto, BackendCommand, BackendMock, "":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// BufferSize returns the number of samples per channel in one frame.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of one frame in bytes.
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
