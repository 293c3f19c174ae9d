package sequence

import (
	"math/rand"
	"time"

	"github.com/teslashibe/go-lightwall/pkg/actuator"
)

// Engaged motor scheduling.
const (
	engagedSteps   = 100
	motorMoveMin   = 5 * time.Second
	motorMoveMax   = 15 * time.Second
	sparkleMinLEDs = 2
	sparkleMaxLEDs = 3
)

// engagedMotors maps every perimeter LED to its nearest motor.
var engagedMotors = map[string]string{
	"A1": "B1", "A2": "B2", "A3": "B3",
	"B0": "B1", "C0": "C1", "D0": "D1", "E0": "E1",
	"B4": "B3", "C4": "C3", "D4": "D3", "E4": "E3",
	"F1": "E1", "F2": "E2", "F3": "E3",
}

// DefaultEngagedTiming returns the engaged fade profile.
func DefaultEngagedTiming() Timing {
	return Timing{
		FadeIn:  400 * time.Millisecond,
		Hold:    750 * time.Millisecond,
		FadeOut: 1000 * time.Millisecond,
		Step:    700 * time.Millisecond,
		Max:     128,
		Min:     10,
	}
}

// Engaged sparkles two or three random LEDs at a time. Motors behind lit
// LEDs make slow moves, each motor resting 5-15s between moves so they
// never all move together.
type Engaged struct {
	*base
	timing Timing
}

// NewEngaged creates the engaged sequence.
func NewEngaged(deps Deps, t Timing) *Engaged {
	s := &Engaged{base: newBase(NameEngaged, deps, perimeter()), timing: t}
	s.loop = s.run
	return s
}

func uniform(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	return lo + time.Duration(rng.Int63n(int64(hi-lo)+1))
}

func (s *Engaged) run(h Handle, rng *rand.Rand) {
	t := s.timing

	// stagger the first move of every motor across the maximum window
	nextMove := make(map[string]time.Time)
	if s.deps.Motors != nil {
		now := s.deps.Now()
		for _, m := range s.deps.Motors.Addresses() {
			nextMove[m] = now.Add(uniform(rng, 0, motorMoveMax))
		}
	}

	for !h.Stopped() {
		n := min(len(s.path), sparkleMinLEDs+rng.Intn(sparkleMaxLEDs-sparkleMinLEDs+1))
		picked := make([]string, 0, n)
		for _, i := range rng.Perm(len(s.path))[:n] {
			picked = append(picked, s.path[i])
		}

		s.driveMotors(picked, nextMove, rng)

		for _, addr := range picked {
			s.fade(addr, t.Max, t.FadeIn)
		}
		if !h.Sleep(t.FadeIn + t.Hold) {
			return
		}

		for _, addr := range picked {
			s.fade(addr, t.Min, t.FadeOut)
		}
		if !h.Sleep(t.Step) {
			return
		}
	}
}

func (s *Engaged) driveMotors(leds []string, nextMove map[string]time.Time, rng *rand.Rand) {
	if s.deps.Motors == nil {
		return
	}

	now := s.deps.Now()
	for _, addr := range leds {
		motor, ok := engagedMotors[addr]
		if !ok {
			continue
		}
		due, known := nextMove[motor]
		if !known || now.Before(due) {
			continue
		}

		duration := uniform(rng, motorMoveMin, motorMoveMax)
		dir := actuator.CW
		if rng.Intn(2) == 1 {
			dir = actuator.CCW
		}

		s.logger.Debug("moving motor", "led", addr, "motor", motor, "direction", dir, "duration", duration)
		s.move(motor, dir, engagedSteps, duration)

		nextMove[motor] = now.Add(duration + uniform(rng, motorMoveMin, motorMoveMax))
	}
}
