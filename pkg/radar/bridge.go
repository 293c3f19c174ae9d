package radar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-lightwall/internal/log"
)

// Bridge reconnect backoff bounds.
const (
	bridgeMinBackoff = 500 * time.Millisecond
	bridgeMaxBackoff = 10 * time.Second
)

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithBridgeMaxAge marks readings older than d as unreliable.
func WithBridgeMaxAge(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.maxAge = d }
}

// WithBridgeHeader adds headers to the websocket handshake.
func WithBridgeHeader(h http.Header) BridgeOption {
	return func(b *Bridge) { b.header = h }
}

// WithBridgeLogger sets the bridge's logger.
func WithBridgeLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// Bridge receives radar readings from a remote sensor over websocket.
// Each text message is a JSON Reading; all-zero readings are ignored.
// The connection is re-established with backoff until Stop.
type Bridge struct {
	url    string
	header http.Header
	maxAge time.Duration
	logger *slog.Logger
	dialer websocket.Dialer

	mu        sync.RWMutex
	last      latest
	connected bool

	connMu sync.Mutex
	conn   *websocket.Conn

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBridge creates a bridge to a websocket URL such as ws://pi.local:8090/radar.
func NewBridge(url string, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		url:    url,
		logger: log.Component("radar.bridge"),
		dialer: websocket.Dialer{HandshakeTimeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start connects in the background. Calling Start twice is a no-op.
func (b *Bridge) Start(ctx context.Context) {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.run(ctx, b.done)
}

// Stop closes the connection and waits up to one second for the loop.
func (b *Bridge) Stop() {
	b.runMu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	b.connMu.Lock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.connMu.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		b.logger.Warn("radar bridge did not stop in time")
	}
}

func (b *Bridge) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	backoff := bridgeMinBackoff
	for {
		err := b.session(ctx)
		if ctx.Err() != nil {
			return
		}
		b.logger.Warn("radar bridge disconnected", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > bridgeMaxBackoff {
			backoff = bridgeMaxBackoff
		}
	}
}

func (b *Bridge) session(ctx context.Context) error {
	conn, _, err := b.dialer.DialContext(ctx, b.url, b.header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", b.url, err)
	}

	b.connMu.Lock()
	b.conn = conn
	b.connMu.Unlock()
	b.setConnected(true)
	b.logger.Info("radar bridge connected", "url", b.url)

	defer func() {
		b.setConnected(false)
		b.connMu.Lock()
		b.conn = nil
		b.connMu.Unlock()
		conn.Close()
	}()

	for {
		var reading Reading
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &reading); err != nil {
			b.logger.Warn("invalid radar message", "error", err)
			continue
		}
		if reading.IsZero() {
			continue
		}

		b.mu.Lock()
		b.last = latest{reading: reading, at: time.Now(), set: true}
		b.mu.Unlock()
	}
}

func (b *Bridge) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}

// Connected reports whether the websocket is currently open.
func (b *Bridge) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// DistanceMM returns the latest distance without blocking.
func (b *Bridge) DistanceMM() (int, bool) {
	s := b.Sample()
	return s.DistanceMM, s.OK
}

// Sample returns the latest distance sample.
func (b *Bridge) Sample() Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last.sample(time.Now(), b.maxAge)
}

// Latest returns the full latest reading.
func (b *Bridge) Latest() (Reading, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last.reading, b.last.set
}
