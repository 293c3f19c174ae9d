package actuator

import (
	"fmt"
	"sort"
	"sync"
)

// Call records one command sent to a Mock.
type Call struct {
	Kind       string // "set", "rotate", "move", "stop"
	Address    string
	Value      int
	DurationMS int
	Direction  Direction
}

// Mock is a recording LightDriver and MotorDriver for tests.
type Mock struct {
	mu        sync.Mutex
	addresses map[string]bool
	calls     []Call
	err       error
}

var (
	_ LightDriver = (*Mock)(nil)
	_ MotorDriver = (*Mock)(nil)
)

// NewMock creates a mock that accepts the given addresses.
func NewMock(addresses ...string) *Mock {
	m := &Mock{addresses: make(map[string]bool)}
	for _, a := range addresses {
		m.addresses[a] = true
	}
	return m
}

// WithError makes every command fail with err after being recorded.
func (m *Mock) WithError(err error) *Mock {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	return m
}

func (m *Mock) record(c Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.addresses[c.Address] {
		return fmt.Errorf("%w: %s", ErrUnknownAddress, c.Address)
	}
	m.calls = append(m.calls, c)
	return m.err
}

// SetState records a "set" call.
func (m *Mock) SetState(address string, value, durationMs int) error {
	return m.record(Call{Kind: "set", Address: address, Value: value, DurationMS: durationMs})
}

// SetBrightness records a "set" call.
func (m *Mock) SetBrightness(address string, brightness, durationMs int) error {
	return m.SetState(address, brightness, durationMs)
}

// Rotate records a "rotate" call.
func (m *Mock) Rotate(address string, dir Direction, rpm int) error {
	return m.record(Call{Kind: "rotate", Address: address, Value: rpm, Direction: dir})
}

// MoveTo records a "move" call.
func (m *Mock) MoveTo(address string, dir Direction, position, durationMs int) error {
	return m.record(Call{Kind: "move", Address: address, Value: position, DurationMS: durationMs, Direction: dir})
}

// Stop records a "stop" call.
func (m *Mock) Stop(address string) error {
	return m.record(Call{Kind: "stop", Address: address})
}

// Addresses returns the accepted addresses, sorted.
func (m *Mock) Addresses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.addresses))
	for a := range m.addresses {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Calls returns a copy of all recorded calls.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of recorded calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall returns the most recent call, or nil.
func (m *Mock) LastCall() *Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	c := m.calls[len(m.calls)-1]
	return &c
}

// CallsFor returns the calls made to one address.
func (m *Mock) CallsFor(address string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if c.Address == address {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}
