// Package director maps engagement state changes onto the wall's behaviour:
// which animation runs, whether the conversation listens, and what the wall
// says as visitors arrive and leave.
package director

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/teslashibe/go-lightwall/internal/log"
	"github.com/teslashibe/go-lightwall/pkg/actuator"
	"github.com/teslashibe/go-lightwall/pkg/engagement"
	"github.com/teslashibe/go-lightwall/pkg/sequence"
)

// Fade durations used outside the sequences.
const (
	UnknownStateFadeMS = 2000
	ShutdownFadeMS     = 1000
	ShutdownHomeMS     = 1000
)

// DefaultRate is the speaking rate used when none is configured.
const DefaultRate = 80

// JoinTimeout bounds how long Shutdown waits for in-flight speech.
const JoinTimeout = time.Second

// Speaker says text aloud and blocks until it has finished.
type Speaker interface {
	Speak(ctx context.Context, text string, rate int) error
}

// Conversation is the listening session that only runs while engaged.
type Conversation interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
	ResetHistory()
}

// Config wires a Director.
type Config struct {
	Lights       actuator.LightDriver
	Motors       actuator.MotorDriver // optional
	Sequences    *sequence.Set
	Conversation Conversation // optional
	Speaker      Speaker      // optional

	Rate      int
	Greetings []string
	Farewells []string
	Seed      int64

	// OnSay is called with every phrase the director speaks.
	OnSay  func(text string)
	Logger *slog.Logger
}

// Director reacts to engagement transitions.
type Director struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	ctx   context.Context
	rng   *rand.Rand
	state engagement.State

	speaking sync.WaitGroup
}

var _ engagement.Handler = (*Director)(nil)

// New creates a Director. Missing phrase lists and rate take defaults.
func New(cfg Config) *Director {
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if len(cfg.Greetings) == 0 {
		cfg.Greetings = DefaultGreetings
	}
	if len(cfg.Farewells) == 0 {
		cfg.Farewells = DefaultFarewells
	}
	if cfg.Sequences == nil {
		cfg.Sequences = &sequence.Set{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("director")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Director{
		cfg:    cfg,
		logger: cfg.Logger,
		ctx:    context.Background(),
		rng:    rand.New(rand.NewSource(seed)),
		state:  engagement.Idle,
	}
}

// Startup applies the idle behaviour and announces readiness. ctx bounds
// the conversation and all speech started by the director.
func (d *Director) Startup(ctx context.Context) {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	d.apply(engagement.Idle, engagement.Idle)
	d.say(ReadyPhrase)
}

// OnTransition applies the behaviour for next.
func (d *Director) OnTransition(next, prev engagement.State) {
	d.logger.Info("state changed", "from", prev, "to", next)
	d.apply(next, prev)
}

// State returns the last state the director applied.
func (d *Director) State() engagement.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Director) apply(next, prev engagement.State) {
	d.mu.Lock()
	d.state = next
	ctx := d.ctx
	d.mu.Unlock()

	target := d.sequenceFor(next)
	if target == nil {
		d.logger.Warn("unknown engagement state, going dark", "state", next)
		d.cfg.Sequences.StopAll()
		d.stopConversation()
		d.allLEDs(0, UnknownStateFadeMS)
		d.homeMotors(UnknownStateFadeMS)
		return
	}

	for _, seq := range d.cfg.Sequences.All() {
		if seq != target {
			seq.Stop()
		}
	}
	target.Start()

	if next == engagement.Engaged {
		d.startConversation(ctx)
	} else {
		d.stopConversation()
	}

	switch {
	case next == engagement.Engaged && prev != engagement.Engaged:
		d.say(d.pick(d.cfg.Greetings))
	case next == engagement.Idle && (prev == engagement.Engaged || prev == engagement.Leaving):
		d.say(d.pick(d.cfg.Farewells))
	}

	if next == engagement.Idle && d.cfg.Conversation != nil {
		d.cfg.Conversation.ResetHistory()
	}
}

func (d *Director) sequenceFor(s engagement.State) sequence.Sequence {
	switch s {
	case engagement.Idle:
		return d.cfg.Sequences.Idle
	case engagement.Approaching:
		return d.cfg.Sequences.Approaching
	case engagement.Engaged:
		return d.cfg.Sequences.Engaged
	case engagement.Leaving:
		return d.cfg.Sequences.Leaving
	}
	return nil
}

func (d *Director) startConversation(ctx context.Context) {
	c := d.cfg.Conversation
	if c == nil || c.Running() {
		return
	}
	if err := c.Start(ctx); err != nil {
		d.logger.Error("conversation failed to start", "error", err)
	}
}

func (d *Director) stopConversation() {
	if c := d.cfg.Conversation; c != nil && c.Running() {
		c.Stop()
	}
}

func (d *Director) pick(phrases []string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return phrases[d.rng.Intn(len(phrases))]
}

// say speaks text in the background. The speaker serializes utterances.
func (d *Director) say(text string) {
	if d.cfg.OnSay != nil {
		d.cfg.OnSay(text)
	}
	if d.cfg.Speaker == nil {
		d.logger.Info("no speaker configured", "text", text)
		return
	}

	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()

	d.speaking.Add(1)
	go func() {
		defer d.speaking.Done()
		d.logger.Debug("speaking", "text", text, "rate", d.cfg.Rate)
		if err := d.cfg.Speaker.Speak(ctx, text, d.cfg.Rate); err != nil {
			d.logger.Warn("speech failed", "text", text, "error", err)
		}
	}()
}

// WaitSpeech blocks until background speech finishes or timeout elapses.
// It reports whether all speech finished.
func (d *Director) WaitSpeech(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.speaking.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (d *Director) allLEDs(brightness, durationMs int) {
	if d.cfg.Lights == nil {
		return
	}
	for _, addr := range d.cfg.Lights.Addresses() {
		if err := d.cfg.Lights.SetBrightness(addr, brightness, durationMs); err != nil {
			d.logger.Debug("LED command failed", "address", addr, "error", err)
		}
	}
}

// homeMotors moves every motor back to position 0.
func (d *Director) homeMotors(durationMs int) {
	if d.cfg.Motors == nil {
		return
	}
	for _, m := range d.cfg.Motors.Addresses() {
		if err := d.cfg.Motors.MoveTo(m, actuator.CW, 0, durationMs); err != nil {
			d.logger.Debug("motor home failed", "motor", m, "error", err)
		}
	}
}

// Shutdown stops the conversation and every sequence, darkens the LEDs and
// sends the motors home.
func (d *Director) Shutdown() {
	d.logger.Info("shutting down behaviour")
	d.stopConversation()
	d.cfg.Sequences.StopAll()
	d.allLEDs(0, ShutdownFadeMS)
	d.homeMotors(ShutdownHomeMS)

	if !d.WaitSpeech(JoinTimeout) {
		d.logger.Warn("speech still running at shutdown")
	}
}
