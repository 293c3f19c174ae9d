package hw

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// MockPort is an in-memory serial port for tests.
// It records every command line written and can answer with scripted replies.
type MockPort struct {
	mu       sync.Mutex
	writes   []string
	readBuf  []byte
	respond  func(cmd string) string
	writeErr error
	closed   bool
}

// NewMockPort creates a mock port. respond may be nil.
func NewMockPort(respond func(cmd string) string) *MockPort {
	return &MockPort{respond: respond}
}

// Write records one or more CRLF-terminated command lines.
func (p *MockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, io.ErrClosedPipe
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}

	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		p.writes = append(p.writes, line)
		if p.respond != nil {
			if reply := p.respond(line); reply != "" {
				p.readBuf = append(p.readBuf, []byte(reply+"\r\n")...)
			}
		}
	}
	return len(b), nil
}

// Read returns queued reply bytes, or (0, nil) after a short wait when empty.
func (p *MockPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, io.EOF
	}
	if len(p.readBuf) > 0 {
		n := copy(b, p.readBuf)
		p.readBuf = p.readBuf[n:]
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()

	time.Sleep(time.Millisecond)
	return 0, nil
}

// Close marks the port closed.
func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Feed queues raw bytes to be read.
func (p *MockPort) Feed(s string) {
	p.mu.Lock()
	p.readBuf = append(p.readBuf, []byte(s)...)
	p.mu.Unlock()
}

// WithWriteError makes subsequent writes fail.
func (p *MockPort) WithWriteError(err error) *MockPort {
	p.mu.Lock()
	p.writeErr = err
	p.mu.Unlock()
	return p
}

// Writes returns the command lines written so far, without CRLF.
func (p *MockPort) Writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.writes))
	copy(out, p.writes)
	return out
}

// LastWrite returns the most recent command line.
func (p *MockPort) LastWrite() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.writes) == 0 {
		return ""
	}
	return p.writes[len(p.writes)-1]
}

// Closed reports whether Close was called.
func (p *MockPort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Reset clears recorded writes and pending reads.
func (p *MockPort) Reset() {
	p.mu.Lock()
	p.writes = nil
	p.readBuf = nil
	p.mu.Unlock()
}

// ErrMockWrite is a convenience error for write failure tests.
var ErrMockWrite = errors.New("hw: mock write failure")

// MockBoards builds open boards over mock ports for every entry in m.
func MockBoards(m Map) (Boards, map[string]*MockPort) {
	boards := make(Boards)
	ports := make(map[string]*MockPort)
	for _, e := range m {
		p := NewMockPort(nil)
		boards[e.BoardName] = NewBoard(e, p)
		ports[e.BoardName] = p
	}
	return boards, ports
}
