package sequence

import (
	"math/rand"
	"time"

	"github.com/teslashibe/go-lightwall/pkg/actuator"
)

const leavingHomeMS = 1500

// DefaultLeavingTiming returns the leaving fade profile.
func DefaultLeavingTiming() Timing {
	return Timing{
		FadeIn:  300 * time.Millisecond,
		Hold:    150 * time.Millisecond,
		FadeOut: 800 * time.Millisecond,
		Step:    500 * time.Millisecond,
		Max:     64,
		Min:     0,
	}
}

// Leaving walks the perimeter backwards, each LED flaring briefly and then
// going dark, while the motors return home.
type Leaving struct {
	*base
	timing Timing
}

// NewLeaving creates the leaving sequence.
func NewLeaving(deps Deps, t Timing) *Leaving {
	s := &Leaving{base: newBase(NameLeaving, deps, reversed(perimeter())), timing: t}
	s.loop = s.run
	return s
}

func (s *Leaving) run(h Handle, _ *rand.Rand) {
	t := s.timing

	if s.deps.Motors != nil {
		for _, m := range s.deps.Motors.Addresses() {
			if h.Stopped() {
				return
			}
			s.move(m, actuator.CW, 0, leavingHomeMS*time.Millisecond)
		}
	}

	for !h.Stopped() {
		lit := 0
		for _, addr := range s.path {
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
