package director

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-lightwall/pkg/actuator"
	"github.com/teslashibe/go-lightwall/pkg/engagement"
	"github.com/teslashibe/go-lightwall/pkg/sequence"
)

type fakeSeq struct {
	name    string
	mu      sync.Mutex
	running bool
	starts  int
	stops   int
}

func (s *fakeSeq) Name() string { return s.name }

func (s *fakeSeq) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.running = true
		s.starts++
	}
}

func (s *fakeSeq) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.running = false
		s.stops++
	}
}

func (s *fakeSeq) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

type fakeConversation struct {
	mu      sync.Mutex
	running bool
	starts  int
	resets  int
	err     error
}

func (c *fakeConversation) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.running = true
	c.starts++
	return nil
}

func (c *fakeConversation) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
}

func (c *fakeConversation) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *fakeConversation) ResetHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
}

type recordingSpeaker struct {
	mu    sync.Mutex
	texts []string
	rates []int
	err   error
}

func (s *recordingSpeaker) Speak(ctx context.Context, text string, rate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	s.rates = append(s.rates, rate)
	return s.err
}

func (s *recordingSpeaker) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.texts)
}

type fixture struct {
	d       *Director
	set     *sequence.Set
	seqs    map[string]*fakeSeq
	conv    *fakeConversation
	speaker *recordingSpeaker
	lights  *actuator.Mock
	motors  *actuator.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		seqs:    map[string]*fakeSeq{},
		conv:    &fakeConversation{},
		speaker: &recordingSpeaker{},
		lights:  actuator.NewMock("A1", "B0"),
		motors:  actuator.NewMock("B1"),
	}
	for _, n := range []string{sequence.NameIdle, sequence.NameApproaching, sequence.NameEngaged, sequence.NameLeaving} {
		f.seqs[n] = &fakeSeq{name: n}
	}
	f.set = &sequence.Set{
		Idle:        f.seqs[sequence.NameIdle],
		Approaching: f.seqs[sequence.NameApproaching],
		Engaged:     f.seqs[sequence.NameEngaged],
		Leaving:     f.seqs[sequence.NameLeaving],
	}
	f.d = New(Config{
		Lights:       f.lights,
		Motors:       f.motors,
		Sequences:    f.set,
		Conversation: f.conv,
		Speaker:      f.speaker,
		Seed:         1,
	})
	return f
}

func (f *fixture) spoken(t *testing.T) []string {
	t.Helper()
	if !f.d.WaitSpeech(time.Second) {
		t.Fatal("speech did not finish")
	}
	return f.speaker.Texts()
}

func TestStartupRunsIdleAndAnnounces(t *testing.T) {
	f := newFixture(t)
	f.d.Startup(context.Background())

	if got := f.set.Running(); !slices.Equal(got, []string{sequence.NameIdle}) {
		t.Errorf("running = %v", got)
	}
	if got := f.spoken(t); !slices.Equal(got, []string{ReadyPhrase}) {
		t.Errorf("spoken = %v", got)
	}
	if f.speaker.rates[0] != DefaultRate {
		t.Errorf("rate = %d", f.speaker.rates[0])
	}
}

func TestEngagedStartsConversationAndGreets(t *testing.T) {
	f := newFixture(t)
	f.d.OnTransition(engagement.Engaged, engagement.Approaching)

	if got := f.set.Running(); !slices.Equal(got, []string{sequence.NameEngaged}) {
		t.Errorf("running = %v", got)
	}
	if !f.conv.Running() {
		t.Error("conversation should run while engaged")
	}
	spoken := f.spoken(t)
	if len(spoken) != 1 || !slices.Contains(DefaultGreetings, spoken[0]) {
		t.Errorf("spoken = %v, want one greeting", spoken)
	}
}

func TestGreetingAlsoOnReturnFromLeaving(t *testing.T) {
	f := newFixture(t)
	f.d.OnTransition(engagement.Engaged, engagement.Leaving)
	spoken := f.spoken(t)
	if len(spoken) != 1 || !slices.Contains(DefaultGreetings, spoken[0]) {
		t.Errorf("spoken = %v", spoken)
	}
}

func TestLeavingStopsConversationSilently(t *testing.T) {
	f := newFixture(t)
	f.d.OnTransition(engagement.Engaged, engagement.Approaching)
	f.d.OnTransition(engagement.Leaving, engagement.Engaged)

	if f.conv.Running() {
		t.Error("conversation should stop when leaving")
	}
	if got := f.set.Running(); !slices.Equal(got, []string{sequence.NameLeaving}) {
		t.Errorf("running = %v", got)
	}
	if f.seqs[sequence.NameEngaged].stops != 1 {
		t.Error("engaged sequence should be stopped")
	}
	if got := f.spoken(t); len(got) != 1 {
		t.Errorf("leaving should not speak, spoken = %v", got)
	}
}

func TestFarewellAndResetOnIdle(t *testing.T) {
	tests := []struct {
		prev     engagement.State
		farewell bool
	}{
		{engagement.Engaged, true},
		{engagement.Leaving, true},
		{engagement.Approaching, false},
	}
	for _, tt := range tests {
		t.Run(tt.prev.String(), func(t *testing.T) {
			f := newFixture(t)
			f.d.OnTransition(engagement.Idle, tt.prev)

			spoken := f.spoken(t)
			if tt.farewell {
				if len(spoken) != 1 || !slices.Contains(DefaultFarewells, spoken[0]) {
					t.Errorf("spoken = %v, want one farewell", spoken)
				}
			} else if len(spoken) != 0 {
				t.Errorf("spoken = %v, want nothing", spoken)
			}
			if f.conv.resets != 1 {
				t.Errorf("resets = %d", f.conv.resets)
			}
			if !f.seqs[sequence.NameIdle].Running() {
				t.Error("idle should run")
			}
		})
	}
}

func TestRepeatedStateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.d.OnTransition(engagement.Approaching, engagement.Idle)
	f.d.OnTransition(engagement.Approaching, engagement.Approaching)

	if s := f.seqs[sequence.NameApproaching]; s.starts != 1 {
		t.Errorf("approaching started %d times", s.starts)
	}
}

func TestUnknownStateGoesDark(t *testing.T) {
	f := newFixture(t)
	f.d.OnTransition(engagement.Engaged, engagement.Approaching)
	f.lights.Reset()
	f.motors.Reset()

	f.d.OnTransition(engagement.State(42), engagement.Engaged)

	if got := f.set.Running(); len(got) != 0 {
		t.Errorf("running = %v", got)
	}
	if f.conv.Running() {
		t.Error("conversation should stop")
	}
	calls := f.lights.Calls()
	if len(calls) != 2 {
		t.Fatalf("LED calls = %d", len(calls))
	}
	for _, c := range calls {
		if c.Value != 0 || c.DurationMS != UnknownStateFadeMS {
			t.Errorf("LED call = %+v", c)
		}
	}
	m := f.motors.LastCall()
	if m == nil || m.Address != "B1" || m.Kind != "move" || m.Value != 0 || m.DurationMS != UnknownStateFadeMS {
		t.Errorf("motor call = %+v, want B1 sent home", m)
	}
}

func TestConversationStartError(t *testing.T) {
	f := newFixture(t)
	f.conv.err = errors.New("no microphone")
	f.d.OnTransition(engagement.Engaged, engagement.Approaching)
	if f.conv.Running() {
		t.Error("conversation should not be running")
	}
	// behaviour continues despite the failure
	if !f.seqs[sequence.NameEngaged].Running() {
		t.Error("engaged sequence should run")
	}
}

func TestSpeechErrorIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.speaker.err = errors.New("say not found")
	f.d.Startup(context.Background())
	if got := f.spoken(t); len(got) != 1 {
		t.Errorf("spoken = %v", got)
	}
}

func TestShutdown(t *testing.T) {
	f := newFixture(t)
	f.d.OnTransition(engagement.Engaged, engagement.Approaching)
	f.lights.Reset()

	f.d.Shutdown()

	if f.conv.Running() || len(f.set.Running()) != 0 {
		t.Error("everything should be stopped")
	}
	for _, c := range f.lights.Calls() {
		if c.Value != 0 || c.DurationMS != ShutdownFadeMS {
			t.Errorf("LED call = %+v", c)
		}
	}
	m := f.motors.LastCall()
	if m == nil || m.Kind != "move" || m.Value != 0 || m.Direction != actuator.CW || m.DurationMS != ShutdownHomeMS {
		t.Errorf("motor call = %+v", m)
	}
}

func TestOnSayHook(t *testing.T) {
	f := newFixture(t)
	var said []string
	f.d.cfg.OnSay = func(text string) { said = append(said, text) }
	f.d.Startup(context.Background())
	if !slices.Equal(said, []string{ReadyPhrase}) {
		t.Errorf("OnSay = %v", said)
	}
}
