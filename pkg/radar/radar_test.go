package radar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-lightwall/pkg/engagement"
	"github.com/teslashibe/go-lightwall/pkg/hw"
)

// Every source must satisfy the poller's interface.
var (
	_ engagement.DistanceSource = (*Reader)(nil)
	_ engagement.DistanceSource = (*Bridge)(nil)
	_ engagement.DistanceSource = (*Static)(nil)
	_ engagement.DistanceSource = (*Simulated)(nil)
	_ Querier                   = (*hw.Board)(nil)
)

func TestParseReading(t *testing.T) {
	r, err := ParseReading(" 1234 -10 900 1250 12 -3 ")
	if err != nil {
		t.Fatalf("ParseReading() error = %v", err)
	}
	want := Reading{TimestampMS: 1234, XMM: -10, YMM: 900, DistanceMM: 1250, AngleDeg: 12, SpeedCMS: -3}
	if r != want {
		t.Errorf("ParseReading() = %+v, want %+v", r, want)
	}

	for _, bad := range []string{"", "1 2 3", "1 2 3 4 5 6 7", "a b c d e f"} {
		if _, err := ParseReading(bad); err == nil {
			t.Errorf("ParseReading(%q) should fail", bad)
		}
	}
	if _, err := ParseReading("1 2"); !errors.Is(err, ErrBadFormat) {
		t.Errorf("short line should wrap ErrBadFormat, got %v", err)
	}
}

type scriptedQuerier struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (q *scriptedQuerier) Query(cmd string, timeout time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.err != nil {
		return "", q.err
	}
	if len(q.replies) == 0 {
		return "", nil
	}
	r := q.replies[0]
	q.replies = q.replies[1:]
	return r, nil
}

func TestReaderPoll(t *testing.T) {
	q := &scriptedQuerier{replies: []string{
		"100 0 0 1800 0 0",
		"0 0 0 0 0 0",
		"garbage",
		"200 5 5 900 1 1",
	}}
	r := NewReader(q)

	if _, ok := r.DistanceMM(); ok {
		t.Error("no reading yet, ok should be false")
	}

	r.Poll()
	if d, ok := r.DistanceMM(); d != 1800 || !ok {
		t.Errorf("after first poll got %d, %v", d, ok)
	}

	r.Poll() // all zero is ignored
	if d, _ := r.DistanceMM(); d != 1800 {
		t.Errorf("all-zero reading replaced the latest: %d", d)
	}

	r.Poll() // bad format keeps the old value
	r.Poll()
	if d, ok := r.DistanceMM(); d != 900 || !ok {
		t.Errorf("after last poll got %d, %v", d, ok)
	}

	failures, ignored := r.Stats()
	if failures != 1 || ignored != 1 {
		t.Errorf("Stats() = %d, %d", failures, ignored)
	}

	latest, ok := r.Latest()
	if !ok || latest.TimestampMS != 200 {
		t.Errorf("Latest() = %+v, %v", latest, ok)
	}
}

func TestReaderMaxAge(t *testing.T) {
	q := &scriptedQuerier{replies: []string{"1 0 0 1000 0 0"}}
	r := NewReader(q, WithMaxAge(10*time.Millisecond))
	r.Poll()

	if _, ok := r.DistanceMM(); !ok {
		t.Fatal("fresh reading should be ok")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := r.DistanceMM(); ok {
		t.Error("stale reading should not be ok")
	}
}

func TestReaderOverBoard(t *testing.T) {
	port := hw.NewMockPort(func(cmd string) string {
		if cmd == "READ" {
			return "42 10 20 1400 3 0"
		}
		return ""
	})
	board := hw.NewBoard(hw.Entry{BoardName: "PAPA", Type: hw.TypeRadar}, port)

	r := NewReader(board, WithPollInterval(5*time.Millisecond))
	r.Start(context.Background())
	r.Start(context.Background()) // no-op

	deadline := time.Now().Add(time.Second)
	for {
		if d, ok := r.DistanceMM(); ok && d == 1400 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("reader never produced a reading")
		}
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()
	r.Stop()

	if port.Writes()[0] != "READ" {
		t.Errorf("first command = %q", port.Writes()[0])
	}
}

func TestReaderQueryError(t *testing.T) {
	q := &scriptedQuerier{err: errors.New("unplugged")}
	r := NewReader(q)
	r.Poll()
	if failures, _ := r.Stats(); failures != 1 {
		t.Errorf("failures = %d", failures)
	}
}

func TestBridge(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"ts": 1, "distance_mm": 2200}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"ts": 0, "distance_mm": 0}`))
		// hold the connection open until the client goes away
		conn.ReadMessage()
	}))
	defer srv.Close()

	b := NewBridge("ws" + strings.TrimPrefix(srv.URL, "http"))
	b.Start(context.Background())
	defer b.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if d, ok := b.DistanceMM(); ok && d == 2200 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("bridge never produced a reading")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// the all-zero message must not overwrite the reading
	time.Sleep(20 * time.Millisecond)
	if d, _ := b.DistanceMM(); d != 2200 {
		t.Errorf("DistanceMM() = %d after zero reading", d)
	}
	if !b.Connected() {
		t.Error("Connected() should be true")
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic(0)
	if _, ok := s.DistanceMM(); ok {
		t.Error("zero distance should not be ok")
	}
	s.Set(1200)
	if d, ok := s.DistanceMM(); d != 1200 || !ok {
		t.Errorf("DistanceMM() = %d, %v", d, ok)
	}
}

func TestSimulatedWalk(t *testing.T) {
	base := time.Unix(0, 0)
	now := base
	v := Visit{Absent: time.Second, Approach: time.Second, Stay: time.Second, Leave: time.Second, FarMM: 4000, NearMM: 1000}
	s := newSimulated(v, func() time.Time { return now })

	tests := []struct {
		at     time.Duration
		wantD  int
		wantOK bool
	}{
		{0, 0, false},
		{1500 * time.Millisecond, 2500, true},
		{2500 * time.Millisecond, 1000, true},
		{3500 * time.Millisecond, 2500, true},
		{4500 * time.Millisecond, 0, false}, // next loop
	}
	for _, tt := range tests {
		now = base.Add(tt.at)
		d, ok := s.DistanceMM()
		if d != tt.wantD || ok != tt.wantOK {
			t.Errorf("at %v: got %d, %v want %d, %v", tt.at, d, ok, tt.wantD, tt.wantOK)
		}
	}
}

func TestSimulatedDrivesPoller(t *testing.T) {
	base := time.Unix(0, 0)
	now := base
	clock := func() time.Time { return now }
	s := newSimulated(DefaultVisit(), clock)

	var seen []engagement.State
	p := engagement.NewPoller(s, engagement.HandlerFunc(func(next, prev engagement.State) {
		seen = append(seen, next)
	}), engagement.WithClock(clock))

	for i := 0; i < 1000; i++ {
		p.Tick()
		now = now.Add(100 * time.Millisecond)
	}

	want := []engagement.State{engagement.Approaching, engagement.Engaged, engagement.Leaving, engagement.Idle}
	if len(seen) < len(want) {
		t.Fatalf("transitions = %v", seen)
	}
	for i, s := range want {
		if seen[i] != s {
			t.Errorf("transition %d = %s, want %s", i, seen[i], s)
		}
	}
}
