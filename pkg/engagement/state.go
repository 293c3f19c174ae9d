// Package engagement tracks how close a visitor is to the wall.
//
// A pure transition function maps the latest distance reading onto one of
// four engagement states, and a Poller samples a DistanceSource at a fixed
// interval, commits transitions and notifies a Handler.
package engagement

import (
	"errors"
	"time"
)

// State is the installation's engagement with the nearest visitor
type State int

const (
	Idle State = iota
	Approaching
	Engaged
	Leaving
)

// States lists every valid state in declaration order.
var States = []State{Idle, Approaching, Engaged, Leaving}

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Approaching:
		return "APPROACHING"
	case Engaged:
		return "ENGAGED"
	case Leaving:
		return "LEAVING"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether s is one of the four known states
func (s State) Valid() bool {
	return s >= Idle && s <= Leaving
}

// ParseState converts a state name back into a State
func ParseState(name string) (State, bool) {
	for _, s := range States {
		if s.String() == name {
			return s, true
		}
	}
	return Idle, false
}

// Default thresholds used by the installation.
const (
	DefaultIdleMM    = 3000
	DefaultEngagedMM = 1500
	DefaultExitGrace = 2 * time.Second
)

// Thresholds configures the transition function.
type Thresholds struct {
	// IdleMM is the distance above which nobody is considered present.
	IdleMM int
	// EngagedMM is the distance at or below which a visitor is engaged.
	EngagedMM int
	// ExitGrace keeps a visitor "present" for a while after the last
	// in-range reading.
	ExitGrace time.Duration
}

// DefaultThresholds returns the installation thresholds (3000mm, 1500mm, 2s)
func DefaultThresholds() Thresholds {
	return Thresholds{
		IdleMM:    DefaultIdleMM,
		EngagedMM: DefaultEngagedMM,
		ExitGrace: DefaultExitGrace,
	}
}

// Validate checks that the thresholds describe a sensible band.
func (t Thresholds) Validate() error {
	if t.IdleMM <= 0 {
		return errors.New("engagement: idle distance must be positive")
	}
	if t.EngagedMM <= 0 {
		return errors.New("engagement: engaged distance must be positive")
	}
	if t.EngagedMM >= t.IdleMM {
		return errors.New("engagement: engaged distance must be below idle distance")
	}
	if t.ExitGrace < 0 {
		return errors.New("engagement: exit grace cannot be negative")
	}
	return nil
}
