// Package tts synthesizes the wall's voice through cloud speech providers.
//
// Every provider returns raw mono PCM16 so the result can be played on an
// audioio.Sink without decoding. Providers are interchangeable behind the
// Provider interface and can be stacked with Chain for fallback.
//
//	provider, _ := tts.NewGoogle(ctx, tts.WithVoice("en-US-Neural2-F"))
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, tts.Request{Text: "Hello", Speed: 0.8})
package tts

import (
	"context"
	"time"
)

// Provider converts text to speech.
type Provider interface {
	// Synthesize returns the complete audio for req.
	Synthesize(ctx context.Context, req Request) (*AudioResult, error)

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Request is one synthesis call.
type Request struct {
	Text string

	// Voice overrides the provider's configured voice when set.
	Voice string

	// Speed is a multiplier of the provider's normal speaking rate.
	// Zero means 1.0.
	Speed float64
}

// AudioResult is a complete synthesis result.
type AudioResult struct {
	// Audio is little-endian PCM16.
	Audio []byte

	Format AudioFormat

	// Duration is the playback duration of Audio.
	Duration time.Duration

	CharCount int
	LatencyMs int64
}

// Samples returns Audio as int16 samples.
func (r *AudioResult) Samples() []int16 {
	samples := make([]int16, len(r.Audio)/2)
	for i := range samples {
		samples[i] = int16(r.Audio[i*2]) | int16(r.Audio[i*2+1])<<8
	}
	return samples
}

// AudioFormat describes PCM parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding names a PCM output rate.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"
)

// SampleRateFromEncoding returns the sample rate of enc, 24000 when unknown.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM24:
		return 24000
	case EncodingPCM44:
		return 44100
	default:
		return 24000
	}
}

func pcmFormat(enc Encoding) AudioFormat {
	return AudioFormat{
		Encoding:   enc,
		SampleRate: SampleRateFromEncoding(enc),
		Channels:   1,
		BitDepth:   16,
	}
}

func pcmDuration(audio []byte, f AudioFormat) time.Duration {
	if f.SampleRate == 0 || f.Channels == 0 {
		return 0
	}
	samples := len(audio) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// SpeedFromRate converts a words-per-minute rate, as used by the macOS say
// command, to a Speed multiplier. The say default of 175 wpm maps to 1.0.
// The result is clamped to the 0.25-4.0 range cloud providers accept.
func SpeedFromRate(wpm int) float64 {
	if wpm <= 0 {
		return 1.0
	}
	speed := float64(wpm) / 175.0
	return min(4.0, max(0.25, speed))
}
