package sequence

import (
	"math/rand"
	"time"
)

// DefaultIdleTiming returns a slow breathing wave.
func DefaultIdleTiming() Timing {
	return Timing{
		FadeIn:  2000 * time.Millisecond,
		FadeOut: 2000 * time.Millisecond,
		Step:    400 * time.Millisecond,
		Hold:    1500 * time.Millisecond,
		Max:     48,
		Min:     10,
	}
}

// Idle runs a dim wave around the perimeter while nobody is near: each LED
// rises in turn, the wall holds, then each LED sinks in the same order.
type Idle struct {
	*base
	timing Timing
}

// NewIdle creates the idle sequence.
func NewIdle(deps Deps, t Timing) *Idle {
	s := &Idle{base: newBase(NameIdle, deps, perimeter()), timing: t}
	s.loop = s.run
	return s
}

func (s *Idle) run(h Handle, _ *rand.Rand) {
	t := s.timing
	for !h.Stopped() {
		for _, level := range []struct {
			brightness int
			fade       time.Duration
		}{{t.Max, t.FadeIn}, {t.Min, t.FadeOut}} {
			for _, addr := range s.path {
				s.fade(addr, level.brightness, level.fade)
				if !h.Sleep(t.Step) {
					return
				}
			}
			if !h.Sleep(t.Hold) {
				return
			}
		}
	}
}
