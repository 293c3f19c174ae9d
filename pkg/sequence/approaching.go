package sequence

import (
	"math/rand"
	"time"

	"github.com/teslashibe/go-lightwall/pkg/actuator"
)

// Approaching motor move: 100 steps clockwise over one second.
const (
	approachSteps  = 100
	approachMoveMS = 1000
)

// approachMotors maps top and bottom LEDs to the motor behind them.
var approachMotors = map[string]string{
	"B0": "B1", "C0": "C1", "D0": "D1", "E0": "E1",
	"B4": "B3", "C4": "C3", "D4": "D3", "E4": "E3",
}

// DefaultApproachingTiming returns the approaching fade profile.
func DefaultApproachingTiming() Timing {
	return Timing{
		FadeIn:  400 * time.Millisecond,
		Hold:    150 * time.Millisecond,
		FadeOut: 1000 * time.Millisecond,
		Step:    700 * time.Millisecond,
		Max:     128,
		Min:     10,
	}
}

// Approaching marches a light along the top row and back along the bottom,
// nudging the motor behind each LED as it lights.
type Approaching struct {
	*base
	timing Timing
}

// NewApproaching creates the approaching sequence.
func NewApproaching(deps Deps, t Timing) *Approaching {
	s := &Approaching{base: newBase(NameApproaching, deps, topThenBottom()), timing: t}
	s.loop = s.run
	return s
}

func (s *Approaching) run(h Handle, _ *rand.Rand) {
	t := s.timing
	for !h.Stopped() {
		lit := 0
		for _, addr := range s.path {
			if h.Stopped() {
				return
			}

			if motor, ok := approachMotors[addr]; ok && s.hasMotor(motor) {
				s.logger.Debug("driving motor", "led", addr, "motor", motor)
				s.move(motor, actuator.CW, approachSteps, approachMoveMS*time.Millisecond)
			}

			if !s.fade(addr, t.Max, t.FadeIn) {
				continue
			}
			lit++
			if !h.Sleep(t.FadeIn + t.Hold) {
				return
			}

			s.fade(addr, t.Min, t.FadeOut)

			if !h.Sleep(t.Step) {
				return
			}
		}
		// none of the path is wired: avoid spinning
		if lit == 0 && !h.Sleep(t.Step) {
			return
		}
	}
}
