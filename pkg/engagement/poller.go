package engagement

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/teslashibe/go-lightwall/internal/log"
)

// Poller defaults.
const (
	DefaultPollInterval = 100 * time.Millisecond
	JoinTimeout         = time.Second
)

// ErrAlreadyRunning is returned by Run when the poller loop is active.
var ErrAlreadyRunning = errors.New("engagement: poller already running")

// DistanceSource returns the latest distance reading without blocking.
// ok is false when no reliable reading is available.
type DistanceSource interface {
	DistanceMM() (distance int, ok bool)
}

// Handler is notified of every committed state change.
type Handler interface {
	OnTransition(next, prev State)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(next, prev State)

// OnTransition calls f(next, prev).
func (f HandlerFunc) OnTransition(next, prev State) { f(next, prev) }

// Handlers fans a transition out to several handlers in order.
// A panic in one handler is logged and does not prevent the others from running.
type Handlers []Handler

// OnTransition notifies each handler.
func (hs Handlers) OnTransition(next, prev State) {
	for _, h := range hs {
		if h == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("engagement: handler panicked", "panic", r, "next", next, "prev", prev)
				}
			}()
			h.OnTransition(next, prev)
		}()
	}
}

// Clock returns the current time.
type Clock func() time.Time

// Status is a point-in-time view of the poller.
type Status struct {
	State        State
	DistanceMM   int
	HasDistance  bool
	LastPresence time.Time
	Transitions  int
	Running      bool
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithThresholds overrides the transition thresholds.
func WithThresholds(t Thresholds) PollerOption {
	return func(p *Poller) { p.thresholds = t }
}

// WithClock injects the time source.
func WithClock(c Clock) PollerOption {
	return func(p *Poller) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithLogger sets the poller's logger.
func WithLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// Poller samples a DistanceSource and drives the engagement state.
// It is the only writer of the current state and the presence clock.
type Poller struct {
	src        DistanceSource
	handler    Handler
	thresholds Thresholds
	interval   time.Duration
	clock      Clock
	logger     *slog.Logger

	mu           sync.RWMutex
	state        State
	lastPresence time.Time
	lastDistance int
	lastOK       bool
	transitions  int
	running      bool

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewPoller creates a poller starting in Idle. h may be nil.
func NewPoller(src DistanceSource, h Handler, opts ...PollerOption) *Poller {
	p := &Poller{
		src:        src,
		handler:    h,
		thresholds: DefaultThresholds(),
		interval:   DefaultPollInterval,
		clock:      time.Now,
		logger:     log.Component("engagement.poller"),
		state:      Idle,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is cancelled or Stop is called.
// A Poller runs at most once.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		close(p.done)
	}()

	p.logger.Info("poller started",
		"interval", p.interval,
		"idle_mm", p.thresholds.IdleMM,
		"engaged_mm", p.thresholds.EngagedMM)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-p.stopCh:
			p.logger.Info("poller stopped")
			return nil
		default:
		}

		p.Tick()

		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-p.stopCh:
			p.logger.Info("poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Stop asks the loop to exit and waits up to JoinTimeout for it.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	p.mu.RLock()
	running := p.running
	p.mu.RUnlock()
	if !running {
		return
	}

	select {
	case <-p.done:
	case <-time.After(JoinTimeout):
		p.logger.Warn("poller did not stop in time, abandoning", "timeout", JoinTimeout)
	}
}

// Tick performs a single poll. Run calls it once per interval.
// The handler runs synchronously, so the next tick cannot start before it returns.
func (p *Poller) Tick() {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("poll tick panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	now := p.clock()
	d, ok := p.src.DistanceMM()

	p.mu.Lock()
	prev := p.state
	if ok && d > 0 && d <= p.thresholds.IdleMM && now.After(p.lastPresence) {
		p.lastPresence = now
	}
	p.lastDistance = d
	p.lastOK = ok && d > 0
	next := p.thresholds.Next(d, ok, prev, now, p.lastPresence)
	changed := next != prev
	if changed {
		p.state = next
		p.transitions++
	}
	p.mu.Unlock()

	if !changed {
		return
	}

	p.logger.Info("state change", "from", prev.String(), "to", next.String(), "distance_mm", d, "ok", ok)
	if p.handler != nil {
		p.handler.OnTransition(next, prev)
	}
}

// State returns the current engagement state.
func (p *Poller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// LastPresence returns when a visitor was last seen within idle range.
// The zero time means nobody has been seen yet.
func (p *Poller) LastPresence() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastPresence
}

// LastDistance returns the most recent reading.
func (p *Poller) LastDistance() (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastDistance, p.lastOK
}

// Snapshot returns the poller status for dashboards.
func (p *Poller) Snapshot() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Status{
		State:        p.state,
		DistanceMM:   p.lastDistance,
		HasDistance:  p.lastOK,
		LastPresence: p.lastPresence,
		Transitions:  p.transitions,
		Running:      p.running,
	}
}
