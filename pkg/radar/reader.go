package radar

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-lightwall/internal/log"
)

// Reader defaults.
const (
	DefaultPollInterval = 250 * time.Millisecond
	DefaultReplyTimeout = time.Second
)

// Querier sends a command line and returns the reply line.
// *hw.Board satisfies it.
type Querier interface {
	Query(cmd string, timeout time.Duration) (string, error)
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithPollInterval sets how often READ is sent.
func WithPollInterval(d time.Duration) ReaderOption {
	return func(r *Reader) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithMaxAge marks readings older than d as unreliable. Zero keeps the last
// reading forever.
func WithMaxAge(d time.Duration) ReaderOption {
	return func(r *Reader) { r.maxAge = d }
}

// WithReaderLogger sets the reader's logger.
func WithReaderLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// Reader polls the radar board and keeps the latest non-zero reading.
type Reader struct {
	q        Querier
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	last    latest
	errors  int
	ignored int

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReader creates a radar reader over an open board.
func NewReader(q Querier, opts ...ReaderOption) *Reader {
	r := &Reader{
		q:        q,
		interval: DefaultPollInterval,
		logger:   log.Component("radar.reader"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the polling goroutine. Calling Start twice is a no-op.
func (r *Reader) Start(ctx context.Context) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(ctx, r.done)
	r.logger.Info("radar polling started", "interval", r.interval)
}

// Stop ends polling and waits up to one second for the goroutine.
func (r *Reader) Stop() {
	r.runMu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
		r.logger.Info("radar polling stopped")
	case <-time.After(time.Second):
		r.logger.Warn("radar poller did not stop in time")
	}
}

func (r *Reader) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.Poll()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll sends one READ and records the reply.
func (r *Reader) Poll() {
	line, err := r.q.Query("READ", DefaultReplyTimeout)
	if err != nil {
		r.countError()
		r.logger.Warn("radar read failed", "error", err)
		return
	}
	if line == "" {
		return
	}

	reading, err := ParseReading(line)
	if err != nil {
		r.countError()
		r.logger.Warn("radar reply rejected", "error", err)
		return
	}

	if reading.IsZero() {
		r.mu.Lock()
		r.ignored++
		r.mu.Unlock()
		r.logger.Debug("ignoring all-zero reading")
		return
	}

	r.mu.Lock()
	r.last = latest{reading: reading, at: time.Now(), set: true}
	r.mu.Unlock()

	r.logger.Debug("reading",
		"ts", reading.TimestampMS,
		"x", reading.XMM,
		"y", reading.YMM,
		"dist", reading.DistanceMM,
		"angle", reading.AngleDeg,
		"speed", reading.SpeedCMS)
}

func (r *Reader) countError() {
	r.mu.Lock()
	r.errors++
	r.mu.Unlock()
}

// DistanceMM returns the latest distance without blocking.
func (r *Reader) DistanceMM() (int, bool) {
	s := r.Sample()
	return s.DistanceMM, s.OK
}

// Sample returns the latest distance sample.
func (r *Reader) Sample() Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last.sample(time.Now(), r.maxAge)
}

// Latest returns the full latest reading.
func (r *Reader) Latest() (Reading, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last.reading, r.last.set
}

// Stats returns the error and ignored-reading counters.
func (r *Reader) Stats() (failures, ignored int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.errors, r.ignored
}
