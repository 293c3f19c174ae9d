package audioio

import (
	"context"
	"io"
	"math"
	"time"
)

// AudioChunk is one frame of interleaved PCM16 audio.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int

	// Captured is when the frame was read from the device. Zero for
	// synthesized audio.
	Captured time.Time
}

// Bytes returns the samples as little-endian PCM16.
func (c *AudioChunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// FromBytes populates the chunk from little-endian PCM16.
func (c *AudioChunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = BytesToSamples(data)
}

// Duration returns the playback duration of the chunk.
func (c *AudioChunk) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Float32 returns the samples scaled to [-1, 1].
func (c *AudioChunk) Float32() []float32 {
	out := make([]float32, len(c.Samples))
	for i, s := range c.Samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// RMS returns the root mean square of the chunk in [0, 1].
func (c *AudioChunk) RMS() float64 {
	return RMS(c.Samples)
}

// RMS returns the root mean square of samples scaled to [-1, 1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Source captures audio from a microphone.
type Source interface {
	// Start begins capture. Chunks arrive on Stream or via Read.
	Start(ctx context.Context) error

	// Stop halts capture and closes the stream. Safe to call repeatedly.
	Stop() error

	// Read returns the next chunk, or io.EOF once stopped.
	Read(ctx context.Context) (AudioChunk, error)

	// Stream returns the channel of captured chunks.
	Stream() <-chan AudioChunk

	Config() Config

	// Name returns the backend name.
	Name() string

	io.Closer
}

// SourceStats describes capture activity.
type SourceStats struct {
	ChunksRead  int64  `json:"chunks_read"`
	SamplesRead int64  `json:"samples_read"`
	Overruns    int64  `json:"overruns"`
	Running     bool   `json:"running"`
	Backend     string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
