package sequence

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-lightwall/internal/log"
	"github.com/teslashibe/go-lightwall/pkg/actuator"
	"github.com/teslashibe/go-lightwall/pkg/hw"
)

func fastTiming() Timing {
	return Timing{
		FadeIn:  2 * time.Millisecond,
		Hold:    1 * time.Millisecond,
		FadeOut: 2 * time.Millisecond,
		Step:    1 * time.Millisecond,
		Max:     128,
		Min:     10,
	}
}

func newMocks() (*actuator.Mock, *actuator.Mock) {
	return actuator.NewMock(hw.AllLEDs...), actuator.NewMock(hw.AllMotors...)
}

func waitCalls(t *testing.T, m *actuator.Mock, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.CallCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("only %d calls, wanted %d", m.CallCount(), n)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestPaths(t *testing.T) {
	if got := strings.Join(topThenBottom(), ","); got != "B0,C0,D0,E0,B4,C4,D4,E4" {
		t.Errorf("approaching path = %s", got)
	}
	if got := strings.Join(perimeter(), ","); got != "A1,A2,A3,B0,C0,D0,E0,F1,F2,F3,B4,C4,D4,E4" {
		t.Errorf("perimeter = %s", got)
	}
	if got := NewLeaving(Deps{}, fastTiming()).Path(); got[0] != "E4" || got[len(got)-1] != "A1" {
		t.Errorf("leaving path = %v", got)
	}
}

func TestRunnerStartStop(t *testing.T) {
	r := NewRunner("test", log.L())

	var iterations atomic.Int32
	loop := func(h Handle) {
		for h.Sleep(time.Millisecond) {
			iterations.Add(1)
		}
	}

	if !r.Start(loop) {
		t.Fatal("first Start should run")
	}
	if r.Start(loop) {
		t.Error("Start on a running runner should be a no-op")
	}
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	if !r.Stop() {
		t.Error("Stop should report that it stopped a loop")
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Stop took %v", elapsed)
	}
	if r.Stop() {
		t.Error("Stop on a stopped runner should be a no-op")
	}
	if iterations.Load() == 0 {
		t.Error("loop never ran")
	}
}

func TestRunnerAbandonsStuckLoop(t *testing.T) {
	r := NewRunner("stuck", log.L())
	release := make(chan struct{})
	r.Start(func(h Handle) { <-release })

	start := time.Now()
	r.Stop()
	elapsed := time.Since(start)
	close(release)

	if elapsed < JoinTimeout || elapsed > JoinTimeout+500*time.Millisecond {
		t.Errorf("Stop waited %v, want about %v", elapsed, JoinTimeout)
	}
	if r.Running() {
		t.Error("abandoned runner should not report running")
	}
}

func TestRunnerRecoversPanic(t *testing.T) {
	r := NewRunner("panicky", log.L())
	r.Start(func(h Handle) { panic("boom") })
	waitIdle(t, r)

	if r.Stop() {
		t.Error("Stop after a panicked loop should be a no-op")
	}
}

func TestRunnerIdleAfterLoopReturns(t *testing.T) {
	r := NewRunner("oneshot", log.L())
	var runs atomic.Int32
	loop := func(h Handle) { runs.Add(1) }

	if !r.Start(loop) {
		t.Fatal("first Start should run")
	}
	waitIdle(t, r)

	if !r.Start(loop) {
		t.Fatal("Start after the loop returned should run again")
	}
	waitIdle(t, r)
	if got := runs.Load(); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}
}

func waitIdle(t *testing.T, r *Runner) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for r.Running() {
		if time.Now().After(deadline) {
			t.Fatal("runner still reports running after its loop returned")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHandleSleepChunks(t *testing.T) {
	stop := make(chan struct{})
	h := Handle{stop: stop}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(stop)
	}()

	start := time.Now()
	if h.Sleep(5 * time.Second) {
		t.Error("Sleep should report the stop")
	}
	if elapsed := time.Since(start); elapsed > SleepChunk+100*time.Millisecond {
		t.Errorf("stop observed after %v", elapsed)
	}
}

func TestApproachingDrivesLEDsAndMotors(t *testing.T) {
	lights, motors := newMocks()
	s := NewApproaching(Deps{Lights: lights, Motors: motors, Seed: 1}, fastTiming())

	s.Start()
	waitCalls(t, lights, len(hw.AllLEDs)+16)
	s.Stop()

	calls := lights.Calls()
	for i, c := range calls[:len(hw.AllLEDs)] {
		if c.Value != 0 || c.DurationMS != BlankMS {
			t.Errorf("blank call %d = %+v", i, c)
		}
	}

	// first LED of the walk: fade in to max, then out to min
	walk := calls[len(hw.AllLEDs):]
	if walk[0].Address != "B0" || walk[0].Value != 128 || walk[0].DurationMS != 2 {
		t.Errorf("first fade = %+v", walk[0])
	}
	if walk[1].Address != "B0" || walk[1].Value != 10 {
		t.Errorf("second fade = %+v", walk[1])
	}
	if walk[2].Address != "C0" {
		t.Errorf("walk should continue along the top, got %+v", walk[2])
	}

	first := motors.Calls()[0]
	if first.Kind != "move" || first.Address != "B1" || first.Direction != actuator.CW ||
		first.Value != approachSteps || first.DurationMS != approachMoveMS {
		t.Errorf("first motor call = %+v", first)
	}
	if s.Running() {
		t.Error("sequence should be stopped")
	}
}

func TestApproachingWithoutMotors(t *testing.T) {
	lights := actuator.NewMock(hw.AllLEDs...)
	s := NewApproaching(Deps{Lights: lights}, fastTiming())
	s.Start()
	waitCalls(t, lights, len(hw.AllLEDs)+4)
	s.Stop()
}

func TestUnwiredPathDoesNotSpin(t *testing.T) {
	lights := actuator.NewMock("Z9")
	s := NewApproaching(Deps{Lights: lights}, Timing{Step: 20 * time.Millisecond})
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	// only the blanking call succeeds
	if lights.CallCount() != 1 {
		t.Errorf("CallCount() = %d", lights.CallCount())
	}
}

func TestEngagedSparkles(t *testing.T) {
	lights, motors := newMocks()
	base := time.Unix(0, 0)
	var offset atomic.Int64
	now := func() time.Time { return base.Add(time.Duration(offset.Load())) }

	s := NewEngaged(Deps{Lights: lights, Motors: motors, Seed: 7, Now: now}, fastTiming())
	s.Start()
	waitCalls(t, lights, len(hw.AllLEDs)+12)

	// jump past every staggered start so motors become due
	offset.Store(int64(motorMoveMax + time.Second))
	waitCalls(t, motors, 1)
	s.Stop()

	sparkle := lights.Calls()[len(hw.AllLEDs):]
	ins := 0
	for _, c := range sparkle {
		if c.Value == 128 {
			ins++
		}
	}
	if ins < 2 {
		t.Errorf("expected sparkle fade-ins, got %d", ins)
	}

	for _, c := range motors.Calls() {
		if c.Value != engagedSteps {
			t.Errorf("engaged move steps = %d", c.Value)
		}
		d := time.Duration(c.DurationMS) * time.Millisecond
		if d < motorMoveMin || d > motorMoveMax {
			t.Errorf("engaged move duration = %v", d)
		}
	}
}

func TestEngagedMotorRestsBetweenMoves(t *testing.T) {
	lights, motors := newMocks()
	base := time.Unix(0, 0)
	var offset atomic.Int64
	offset.Store(int64(motorMoveMax + time.Second))
	now := func() time.Time { return base.Add(time.Duration(offset.Load())) }

	s := NewEngaged(Deps{Lights: lights, Motors: motors, Seed: 3, Now: now}, fastTiming())
	s.Start()
	// clock is frozen after the stagger window; run plenty of sparkles
	waitCalls(t, lights, len(hw.AllLEDs)+200)
	s.Stop()

	seen := map[string]int{}
	for _, c := range motors.Calls() {
		seen[c.Address]++
	}
	for addr, n := range seen {
		if n > 1 {
			t.Errorf("motor %s moved %d times with a frozen clock", addr, n)
		}
	}
}

func TestLeavingHomesMotors(t *testing.T) {
	lights, motors := newMocks()
	tm := fastTiming()
	tm.Min = 0
	s := NewLeaving(Deps{Lights: lights, Motors: motors}, tm)
	s.Start()
	waitCalls(t, lights, len(hw.AllLEDs)+2)
	waitCalls(t, motors, len(hw.AllMotors))
	s.Stop()

	for _, c := range motors.Calls() {
		if c.Kind != "move" || c.Value != 0 || c.Direction != actuator.CW {
			t.Errorf("leaving motor call = %+v", c)
		}
	}
	walk := lights.Calls()[len(hw.AllLEDs):]
	if walk[0].Address != "E4" || walk[1].Value != 0 {
		t.Errorf("leaving walk = %+v", walk[:2])
	}
}

func TestIdleBreathes(t *testing.T) {
	lights := actuator.NewMock(hw.AllLEDs...)
	tm := fastTiming()
	tm.Max, tm.Min = 48, 10
	s := NewIdle(Deps{Lights: lights}, tm)
	s.Start()
	waitCalls(t, lights, 3*len(hw.AllLEDs))
	s.Stop()

	wave := lights.Calls()[len(hw.AllLEDs):]
	for i := 0; i < len(hw.AllLEDs); i++ {
		if wave[i].Value != 48 {
			t.Fatalf("rise %d = %+v", i, wave[i])
		}
	}
	if wave[len(hw.AllLEDs)].Value != 10 {
		t.Errorf("sink = %+v", wave[len(hw.AllLEDs)])
	}
}

func TestSetStopAll(t *testing.T) {
	lights, motors := newMocks()
	set := NewSet(Deps{Lights: lights, Motors: motors})

	set.Idle.Start()
	set.Engaged.Start()
	if got := set.Running(); len(got) != 2 {
		t.Errorf("Running() = %v", got)
	}
	set.StopAll()
	if got := set.Running(); len(got) != 0 {
		t.Errorf("after StopAll Running() = %v", got)
	}
}
