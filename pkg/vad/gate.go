package vad

import "math"

// Gate tracks the background noise floor as an exponential moving average
// of frame RMS and derives the level a frame must reach to count as sound.
type Gate struct {
	static     float64
	multiplier float64
	alpha      float64

	baseline float64
	seeded   bool
}

// NewGate creates a gate from cfg.
func NewGate(cfg Config) *Gate {
	return &Gate{static: cfg.StaticGate, multiplier: cfg.GateMultiplier, alpha: cfg.Alpha}
}

// Effective returns max(static, AbsoluteMinGate, baseline*multiplier).
func (g *Gate) Effective() float64 {
	return max(g.static, AbsoluteMinGate, g.baseline*g.multiplier)
}

// Observe folds rms into the baseline. The first observation seeds it.
func (g *Gate) Observe(rms float64) {
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return
	}
	if !g.seeded {
		g.baseline = rms
		g.seeded = true
		return
	}
	g.baseline = (1-g.alpha)*g.baseline + g.alpha*rms
}

// Baseline returns the current noise floor estimate.
func (g *Gate) Baseline() float64 {
	return g.baseline
}

// Reset forgets the noise floor.
func (g *Gate) Reset() {
	g.baseline = 0
	g.seeded = false
}
