package journal

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-lightwall/pkg/engagement"
	"github.com/teslashibe/go-lightwall/pkg/inference"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func open(t *testing.T, opts ...Option) *Journal {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(c.now)}, opts...)
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestVisitLifecycle(t *testing.T) {
	ctx := context.Background()
	distance := 2500
	j := open(t, WithDistance(func() int { return distance }))

	j.OnTransition(engagement.Approaching, engagement.Idle)
	visit := j.CurrentVisit()
	if visit == "" {
		t.Fatal("leaving idle should open a visit")
	}

	distance = 900
	j.OnTransition(engagement.Engaged, engagement.Approaching)
	j.OnTurn(inference.RoleUser, "hello")
	j.OnTurn(inference.RoleAssistant, "hi there")
	distance = 1800
	j.OnTransition(engagement.Leaving, engagement.Engaged)
	distance = 0
	j.OnTransition(engagement.Idle, engagement.Leaving)

	if j.CurrentVisit() != "" {
		t.Error("returning to idle should close the visit")
	}

	visits, err := j.Visits(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(visits) != 1 {
		t.Fatalf("visits = %+v", visits)
	}
	v := visits[0]
	if v.ID != visit || !v.Engaged || v.ClosestMM != 900 || v.Turns != 2 || v.Transitions != 4 {
		t.Errorf("visit = %+v", v)
	}
	if v.Open() || v.Duration(time.Time{}) != 5*time.Second {
		t.Errorf("visit times %v..%v", v.StartedAt, v.EndedAt)
	}

	turns, err := j.Turns(ctx, visit)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 || turns[0].Content != "hello" || turns[1].Role != "assistant" {
		t.Errorf("turns = %+v", turns)
	}

	trs, err := j.Transitions(ctx, visit)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"APPROACHING", "ENGAGED", "LEAVING", "IDLE"}
	for i, tr := range trs {
		if tr.To != want[i] {
			t.Errorf("transition %d = %+v", i, tr)
		}
	}
	if trs[0].From != "IDLE" || trs[0].DistanceMM != 2500 {
		t.Errorf("first transition = %+v", trs[0])
	}
}

func TestVisitsNewestFirst(t *testing.T) {
	ctx := context.Background()
	j := open(t)

	var ids []string
	for i := 0; i < 3; i++ {
		j.OnTransition(engagement.Approaching, engagement.Idle)
		ids = append(ids, j.CurrentVisit())
		j.OnTransition(engagement.Idle, engagement.Approaching)
	}

	visits, err := j.Visits(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(visits) != 2 || visits[0].ID != ids[2] || visits[1].ID != ids[1] {
		t.Errorf("visits = %+v", visits)
	}
	if visits[0].Engaged {
		t.Error("visit never reached engaged")
	}

	st, err := j.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Visits != 3 || st.Transitions != 6 || st.Turns != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestTurnOutsideVisit(t *testing.T) {
	ctx := context.Background()
	j := open(t)
	if err := j.RecordTurn(ctx, "assistant", "I'm ready to go now"); err != nil {
		t.Fatal(err)
	}
	turns, err := j.Turns(ctx, "")
	if err != nil || len(turns) != 1 || turns[0].VisitID != "" {
		t.Errorf("Turns(\"\") = %+v, %v", turns, err)
	}
}

func TestVisitLookup(t *testing.T) {
	ctx := context.Background()
	j := open(t)
	j.OnTransition(engagement.Engaged, engagement.Idle)
	id := j.CurrentVisit()

	v, err := j.Visit(ctx, id)
	if err != nil || v.ID != id || !v.Open() || !v.Engaged {
		t.Errorf("Visit() = %+v, %v", v, err)
	}
	if _, err := j.Visit(ctx, "nope"); err == nil {
		t.Error("unknown visit should fail")
	}
}

func TestReopenClosesDanglingVisit(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	j.OnTransition(engagement.Approaching, engagement.Idle)
	j.Close()

	j, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	visits, err := j.Visits(ctx, 0)
	if err != nil || len(visits) != 1 || visits[0].Open() {
		t.Errorf("visits after reopen = %+v, %v", visits, err)
	}
	if j.CurrentVisit() != "" {
		t.Error("reopened journal should not resume a visit")
	}
}

func TestClosed(t *testing.T) {
	j, err := Open(MemoryPath)
	if err != nil {
		t.Fatal(err)
	}
	j.Close()
	if err := j.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if err := j.RecordTurn(context.Background(), "user", "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("RecordTurn after Close = %v", err)
	}
}
