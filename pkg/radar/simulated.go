package radar

import (
	"sync"
	"time"
)

// Static always reports the same distance. Set changes it at runtime,
// which the dashboard and CLI use to drive the wall by hand.
type Static struct {
	mu sync.RWMutex
	d  int
}

// NewStatic creates a static source. A distance ≤0 means nobody is present.
func NewStatic(distanceMM int) *Static {
	return &Static{d: distanceMM}
}

// Set replaces the reported distance.
func (s *Static) Set(distanceMM int) {
	s.mu.Lock()
	s.d = distanceMM
	s.mu.Unlock()
}

// DistanceMM returns the configured distance.
func (s *Static) DistanceMM() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d, s.d > 0
}

// Visit describes one simulated visitor walk.
type Visit struct {
	Absent   time.Duration // nobody in range
	Approach time.Duration // walking from FarMM to NearMM
	Stay     time.Duration // standing at NearMM
	Leave    time.Duration // walking back out to FarMM
	FarMM    int
	NearMM   int
}

// DefaultVisit is a short loop that passes through every engagement state.
func DefaultVisit() Visit {
	return Visit{
		Absent:   10 * time.Second,
		Approach: 8 * time.Second,
		Stay:     45 * time.Second,
		Leave:    6 * time.Second,
		FarMM:    4000,
		NearMM:   900,
	}
}

func (v Visit) period() time.Duration {
	return v.Absent + v.Approach + v.Stay + v.Leave
}

// Simulated replays a visitor walk in a loop.
type Simulated struct {
	visit Visit
	start time.Time
	now   func() time.Time
}

// NewSimulated starts a visitor loop at the current time.
func NewSimulated(v Visit) *Simulated {
	return newSimulated(v, time.Now)
}

func newSimulated(v Visit, now func() time.Time) *Simulated {
	return &Simulated{visit: v, start: now(), now: now}
}

// DistanceMM returns the simulated distance for the current point in the loop.
func (s *Simulated) DistanceMM() (int, bool) {
	v := s.visit
	period := v.period()
	if period <= 0 {
		return 0, false
	}

	t := s.now().Sub(s.start) % period
	switch {
	case t < v.Absent:
		return 0, false
	case t < v.Absent+v.Approach:
		frac := float64(t-v.Absent) / float64(v.Approach)
		return lerp(v.FarMM, v.NearMM, frac), true
	case t < v.Absent+v.Approach+v.Stay:
		return v.NearMM, true
	default:
		frac := float64(t-v.Absent-v.Approach-v.Stay) / float64(v.Leave)
		return lerp(v.NearMM, v.FarMM, frac), true
	}
}

func lerp(a, b int, frac float64) int {
	return a + int(float64(b-a)*frac)
}
