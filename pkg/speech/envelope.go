package speech

import (
	"math"
	"sync"
)

// Envelope analysis parameters.
const (
	envelopeHopMS    = 10
	envelopeFrameMS  = 20
	gateOnDB         = -35.0
	gateOffDB        = -45.0
	gateAttackHops   = 4
	gateReleaseHops  = 25
	envelopeFollow   = 0.65
	loudnessLowDB    = -46.0
	loudnessHighDB   = -18.0
	loudnessGamma    = 0.9
	loudnessOffsetDB = 4.0
)

// LevelFunc receives a speaking level in [0, 1] every 10ms of audio.
type LevelFunc func(level float64)

// Envelope follows the loudness of the wall's own speech, for meters and
// light effects that pulse with the voice.
type Envelope struct {
	mu      sync.Mutex
	onLevel LevelFunc

	rate    int
	samples []float64

	gateOn    bool
	above     int
	below     int
	env       float64
	lastLevel float64
}

// NewEnvelope creates an envelope follower.
func NewEnvelope(onLevel LevelFunc) *Envelope {
	return &Envelope{onLevel: onLevel}
}

// Feed analyses mono PCM16 samples at rate Hz.
func (e *Envelope) Feed(samples []int16, rate int) {
	if len(samples) == 0 || rate <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if rate != e.rate {
		e.rate = rate
		e.samples = e.samples[:0]
	}
	for _, s := range samples {
		e.samples = append(e.samples, float64(s)/32768.0)
	}

	hop := rate * envelopeHopMS / 1000
	frame := rate * envelopeFrameMS / 1000
	for len(e.samples) >= frame {
		e.step(e.samples[:frame])
		e.samples = e.samples[hop:]
	}
}

func (e *Envelope) step(frame []float64) {
	db := dbfs(frame)

	switch {
	case db >= gateOnDB:
		e.above++
		e.below = 0
		if !e.gateOn && e.above >= gateAttackHops {
			e.gateOn = true
		}
	case db <= gateOffDB:
		e.below++
		e.above = 0
		if e.gateOn && e.below >= gateReleaseHops {
			e.gateOn = false
		}
	}

	target := 0.0
	if e.gateOn {
		target = 1.0
	}
	e.env += envelopeFollow * (target - e.env)
	e.env = math.Min(1, math.Max(0, e.env))

	e.lastLevel = loudness(db) * e.env
	if e.onLevel != nil {
		e.onLevel(e.lastLevel)
	}
}

// Level returns the most recent level.
func (e *Envelope) Level() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastLevel
}

// Reset clears state and reports a zero level.
func (e *Envelope) Reset() {
	e.mu.Lock()
	e.samples = e.samples[:0]
	e.gateOn = false
	e.above, e.below = 0, 0
	e.env = 0
	e.lastLevel = 0
	e.mu.Unlock()

	if e.onLevel != nil {
		e.onLevel(0)
	}
}

func dbfs(samples []float64) float64 {
	if len(samples) == 0 {
		return -100.0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	rms := math.Sqrt(sum/float64(len(samples)) + 1e-12)
	return 20.0 * math.Log10(rms+1e-12)
}

func loudness(db float64) float64 {
	t := (db + loudnessOffsetDB - loudnessLowDB) / (loudnessHighDB - loudnessLowDB)
	t = math.Min(1, math.Max(0, t))
	return math.Pow(t, loudnessGamma)
}
