// Package actuator drives the wall's LEDs and motors over their serial boards.
//
// Commands to one address are spaced by a minimum interval, and each
// address carries a status (fading, stepping, ...) that settles when the
// commanded transition finishes. A newer command to the same address
// cancels the pending settle, so the last command always wins.
package actuator

import (
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/go-lightwall/internal/log"
)

// DefaultMinInterval is the minimum spacing between commands to one address.
const DefaultMinInterval = 100 * time.Millisecond

// ErrUnknownAddress is returned for an address not present in the hardware map.
var ErrUnknownAddress = errors.New("actuator: unknown address")

// Driver is the common actuator contract: move address toward value over
// durationMs. For LEDs value is brightness; for motors it is a position.
type Driver interface {
	SetState(address string, value, durationMs int) error
}

// LightDriver controls LED brightness.
type LightDriver interface {
	Driver
	SetBrightness(address string, brightness, durationMs int) error
	Addresses() []string
}

// MotorDriver controls stepper motors.
type MotorDriver interface {
	Driver
	Rotate(address string, dir Direction, rpm int) error
	MoveTo(address string, dir Direction, position, durationMs int) error
	Stop(address string) error
	Addresses() []string
}

// Sender writes one command line to a board. *hw.Board satisfies it.
type Sender interface {
	Send(cmd string) error
}

// Status is the settled or in-progress state of one actuator.
type Status string

const (
	StatusOff      Status = "off"
	StatusOn       Status = "on"
	StatusFading   Status = "fading"
	StatusStopped  Status = "stopped"
	StatusRotating Status = "rotating"
	StatusStepping Status = "stepping"
)

// Direction is a motor rotation direction.
type Direction string

const (
	CW  Direction = "CW"
	CCW Direction = "CCW"
)

// Valid reports whether d is CW or CCW.
func (d Direction) Valid() bool {
	return d == CW || d == CCW
}

// Option configures a controller.
type Option func(*options)

type options struct {
	minInterval time.Duration
	logger      *slog.Logger
	blank       bool
	now         func() time.Time
	sleep       func(time.Duration)
}

func defaultOptions(component string) options {
	return options{
		minInterval: DefaultMinInterval,
		logger:      log.Component(component),
		blank:       true,
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// WithMinInterval sets the per-address command spacing. Zero disables it.
func WithMinInterval(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.minInterval = d
		}
	}
}

// WithLogger sets the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBlankOnInit controls whether LEDs are switched off when the controller
// is created. Defaults to true.
func WithBlankOnInit(blank bool) Option {
	return func(o *options) { o.blank = blank }
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
