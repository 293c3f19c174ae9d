package stt

import (
	"context"
	"sync"
)

// MockCall records one transcription request.
type MockCall struct {
	Samples    int
	SampleRate int
}

// Mock is a scripted Transcriber for tests. Each call returns the next
// scripted transcript; once the script runs out the last one repeats.
type Mock struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   []MockCall
}

// NewMock creates a mock returning replies in order.
func NewMock(replies ...string) *Mock {
	return &Mock{replies: replies}
}

// WithError makes every call fail with err.
func (m *Mock) WithError(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Transcribe returns the next scripted reply.
func (m *Mock) Transcribe(ctx context.Context, samples []int16, rate int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Samples: len(samples), SampleRate: rate})

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", nil
	}
	text := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return text, nil
}

// Calls returns recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

var _ Transcriber = (*Mock)(nil)
