// Package sequence runs the wall's LED and motor animations.
//
// Each engagement state has one Sequence. A Sequence is a background loop
// with a cooperative stop: starting a running sequence or stopping a
// stopped one does nothing.
package sequence

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/teslashibe/go-lightwall/internal/log"
	"github.com/teslashibe/go-lightwall/pkg/actuator"
	"github.com/teslashibe/go-lightwall/pkg/hw"
)

// Sequence names.
const (
	NameIdle        = "idle"
	NameApproaching = "approaching"
	NameEngaged     = "engaged"
	NameLeaving     = "leaving"
)

// BlankMS is the fade used to switch every LED off when a sequence starts.
const BlankMS = 500

// Sequence is one animation.
type Sequence interface {
	Name() string
	Start()
	Stop()
	Running() bool
}

// Timing is a sequence's fade profile.
type Timing struct {
	FadeIn  time.Duration
	Hold    time.Duration
	FadeOut time.Duration
	Step    time.Duration
	Max     int
	Min     int
}

// Deps are the actuators and randomness shared by every sequence.
type Deps struct {
	Lights actuator.LightDriver
	Motors actuator.MotorDriver // optional
	Seed   int64                // zero seeds from the clock
	Now    func() time.Time
	Logger *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = log.Component("sequence")
	}
	return d
}

// Perimeter paths.
func topThenBottom() []string {
	return concat(hw.TopLEDs, reversed(hw.BottomLEDs))
}

func perimeter() []string {
	return concat(hw.LeftLEDs, hw.TopLEDs, hw.RightLEDs, reversed(hw.BottomLEDs))
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func reversed(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

// base is the shared plumbing of every sequence.
type base struct {
	name   string
	deps   Deps
	path   []string
	runner *Runner
	logger *slog.Logger
	loop   func(h Handle, rng *rand.Rand)

	mu   sync.Mutex
	runs int64
}

func newBase(name string, deps Deps, path []string) *base {
	deps = deps.withDefaults()
	logger := deps.Logger.With("sequence", name)
	return &base{
		name:   name,
		deps:   deps,
		path:   path,
		runner: NewRunner(name, logger),
		logger: logger,
	}
}

func (b *base) Name() string  { return b.name }
func (b *base) Running() bool { return b.runner.Running() }

// Path returns the ordered LED addresses the sequence walks.
func (b *base) Path() []string {
	out := make([]string, len(b.path))
	copy(out, b.path)
	return out
}

// Start blanks every LED and launches the loop.
func (b *base) Start() {
	if b.runner.Running() {
		return
	}
	if len(b.path) == 0 {
		b.logger.Warn("sequence has an empty path, not starting")
		return
	}

	b.blank()

	b.mu.Lock()
	b.runs++
	seed := b.deps.Seed
	if seed == 0 {
		seed = b.deps.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed + b.runs))
	b.mu.Unlock()

	if b.runner.Start(func(h Handle) { b.loop(h, rng) }) {
		b.logger.Info("sequence started")
	}
}

// Stop ends the loop, waiting up to JoinTimeout.
func (b *base) Stop() {
	if b.runner.Stop() {
		b.logger.Info("sequence stopped")
	}
}

func (b *base) blank() {
	if b.deps.Lights == nil {
		return
	}
	for _, addr := range b.deps.Lights.Addresses() {
		if err := b.deps.Lights.SetBrightness(addr, 0, BlankMS); err != nil {
			b.logger.Debug("blank failed", "address", addr, "error", err)
		}
	}
}

// fade sets one LED and logs failures. It reports whether the LED exists.
func (b *base) fade(addr string, brightness int, d time.Duration) bool {
	if err := b.deps.Lights.SetBrightness(addr, brightness, int(d/time.Millisecond)); err != nil {
		b.logger.Warn("LED command failed", "address", addr, "error", err)
		return false
	}
	return true
}

func (b *base) move(motor string, dir actuator.Direction, position int, d time.Duration) {
	if b.deps.Motors == nil {
		return
	}
	if err := b.deps.Motors.MoveTo(motor, dir, position, int(d/time.Millisecond)); err != nil {
		b.logger.Warn("motor command failed", "motor", motor, "error", err)
	}
}

func (b *base) hasMotor(addr string) bool {
	if b.deps.Motors == nil {
		return false
	}
	for _, a := range b.deps.Motors.Addresses() {
		if a == addr {
			return true
		}
	}
	return false
}

// Set holds one sequence per engagement state name.
type Set struct {
	Idle        Sequence
	Approaching Sequence
	Engaged     Sequence
	Leaving     Sequence
}

// NewSet builds the four standard sequences.
func NewSet(deps Deps) *Set {
	return &Set{
		Idle:        NewIdle(deps, DefaultIdleTiming()),
		Approaching: NewApproaching(deps, DefaultApproachingTiming()),
		Engaged:     NewEngaged(deps, DefaultEngagedTiming()),
		Leaving:     NewLeaving(deps, DefaultLeavingTiming()),
	}
}

// All returns the sequences in state order, skipping nil entries.
func (s *Set) All() []Sequence {
	var out []Sequence
	for _, seq := range []Sequence{s.Idle, s.Approaching, s.Engaged, s.Leaving} {
		if seq != nil {
			out = append(out, seq)
		}
	}
	return out
}

// StopAll stops every running sequence.
func (s *Set) StopAll() {
	for _, seq := range s.All() {
		seq.Stop()
	}
}

// Running returns the names of the running sequences.
func (s *Set) Running() []string {
	var out []string
	for _, seq := range s.All() {
		if seq.Running() {
			out = append(out, seq.Name())
		}
	}
	return out
}
