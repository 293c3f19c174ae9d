package speech

import (
	"context"
	"sync"
	"time"
)

// MockCall records one phrase.
type MockCall struct {
	Text string
	Rate int
}

// Mock is a recording Speaker for tests.
type Mock struct {
	mu    sync.Mutex
	calls []MockCall
	err   error
	delay time.Duration
}

// NewMock creates a mock speaker.
func NewMock() *Mock {
	return &Mock{}
}

// WithError makes every Speak fail with err.
func (m *Mock) WithError(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay makes every Speak take d, or until ctx is done.
func (m *Mock) WithDelay(d time.Duration) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Speak records the phrase.
func (m *Mock) Speak(ctx context.Context, text string, rate int) error {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Text: text, Rate: rate})
	err, delay := m.err, m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Calls returns the recorded phrases.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of phrases spoken.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall returns the most recent phrase, or nil.
func (m *Mock) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	c := m.calls[len(m.calls)-1]
	return &c
}

// Reset clears recorded phrases.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

var _ Speaker = (*Mock)(nil)
