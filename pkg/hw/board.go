package hw

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// DefaultReadTimeout bounds how long Query waits for a reply line.
const DefaultReadTimeout = 2 * time.Second

// ErrReadTimeout is returned when a board does not answer in time.
var ErrReadTimeout = errors.New("hw: read timeout")

// Board is one open serial board. Writes to a board are serialized.
type Board struct {
	Entry

	mu      sync.Mutex
	conn    io.ReadWriteCloser
	pending []byte
	closed  bool
}

// NewBoard wraps an open connection.
func NewBoard(e Entry, conn io.ReadWriteCloser) *Board {
	return &Board{Entry: e, conn: conn}
}

// Send writes one command line, appending CRLF.
func (b *Board) Send(cmd string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write(cmd)
}

// Query writes a command and returns the next reply line, trimmed.
func (b *Board) Query(cmd string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = b.pending[:0]
	if err := b.write(cmd); err != nil {
		return "", err
	}
	return b.readLine(timeout)
}

func (b *Board) write(cmd string) error {
	if b.closed {
		return fmt.Errorf("hw: board %s is closed", b.BoardName)
	}
	line := strings.TrimRight(cmd, "\r\n") + "\r\n"
	if _, err := b.conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("hw: write to %s: %w", b.BoardName, err)
	}
	return nil
}

func (b *Board) readLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 128)

	for {
		if i := bytes.IndexByte(b.pending, '\n'); i >= 0 {
			line := string(b.pending[:i])
			b.pending = append(b.pending[:0], b.pending[i+1:]...)
			return strings.TrimSpace(line), nil
		}
		if time.Now().After(deadline) {
			return "", ErrReadTimeout
		}

		n, err := b.conn.Read(buf)
		if n > 0 {
			b.pending = append(b.pending, buf[:n]...)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("hw: read from %s: %w", b.BoardName, err)
		}
		// Serial reads return (0, nil) when their own timeout expires.
		time.Sleep(5 * time.Millisecond)
	}
}

// Close closes the underlying connection. It is safe to call twice.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.conn.Close()
}

// Boards is the set of open boards keyed by board name.
type Boards map[string]*Board

// Get returns a board by name.
func (bs Boards) Get(name string) (*Board, bool) {
	b, ok := bs[name]
	return b, ok
}

// OfType returns the open boards of one type.
func (bs Boards) OfType(typ string) []*Board {
	var out []*Board
	for _, b := range bs {
		if b.Type == typ {
			out = append(out, b)
		}
	}
	return out
}

// Radar returns the radar board, if one is open.
func (bs Boards) Radar() (*Board, bool) {
	for _, b := range bs {
		if b.Type == TypeRadar {
			return b, true
		}
	}
	return nil, false
}

// Close closes every board and returns the errors joined.
func (bs Boards) Close() error {
	var errs []error
	for name, b := range bs {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
