package engagement

import (
	"time"

	"github.com/teslashibe/go-lightwall/internal/log"
)

// Transition computes the next state with DefaultThresholds.
func Transition(distanceMM int, ok bool, prev State, now, lastPresence time.Time) State {
	return DefaultThresholds().Next(distanceMM, ok, prev, now, lastPresence)
}

// Next computes the state that follows prev given the latest reading.
//
// A missing or non-positive reading counts as "beyond idle range". The grace
// window applies only when lastPresence is set and lies less than ExitGrace
// before now. Next never panics: an unknown prev yields Idle.
func (t Thresholds) Next(distanceMM int, ok bool, prev State, now, lastPresence time.Time) State {
	d := distanceMM
	if !ok || d <= 0 {
		d = t.IdleMM + 1
	}

	grace := !lastPresence.IsZero() && now.Sub(lastPresence) < t.ExitGrace

	switch prev {
	case Idle:
		switch {
		case d <= t.EngagedMM:
			return Engaged
		case d <= t.IdleMM:
			return Approaching
		default:
			return Idle
		}

	case Approaching:
		switch {
		case d <= t.EngagedMM:
			return Engaged
		case d <= t.IdleMM:
			return Approaching
		case grace:
			return Approaching
		default:
			return Idle
		}

	case Engaged:
		switch {
		case d <= t.EngagedMM:
			return Engaged
		case d <= t.IdleMM:
			return Leaving
		case grace:
			return Leaving
		default:
			return Idle
		}

	case Leaving:
		switch {
		case d <= t.EngagedMM:
			return Engaged
		case d <= t.IdleMM:
			return Leaving
		case grace:
			return Leaving
		default:
			return Idle
		}
	}

	log.Warn("engagement: unknown previous state, resetting to idle", "prev", int(prev))
	return Idle
}
