// Package stt turns finalized utterances into text.
package stt

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrEmptyAudio = errors.New("stt: empty audio")
	ErrNoModel    = errors.New("stt: no model configured")
)

// Transcriber converts mono PCM16 audio at rate Hz into text.
// Implementations block until the transcript is ready.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []int16, rate int) (string, error)
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, samples []int16, rate int) (string, error)

// Transcribe calls f.
func (f TranscriberFunc) Transcribe(ctx context.Context, samples []int16, rate int) (string, error) {
	return f(ctx, samples, rate)
}

// APIError is a non-2xx response from a transcription service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stt: API error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the request may succeed if repeated.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

var _ Transcriber = TranscriberFunc(nil)
