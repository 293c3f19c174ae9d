package conversation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-lightwall/pkg/audioio"
	"github.com/teslashibe/go-lightwall/pkg/inference"
	"github.com/teslashibe/go-lightwall/pkg/speech"
	"github.com/teslashibe/go-lightwall/pkg/stt"
	"github.com/teslashibe/go-lightwall/pkg/vad"
)

var base = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

type quietRecorder struct {
	mu    sync.Mutex
	until []time.Time
}

func (q *quietRecorder) SetQuietUntil(t time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.until = append(q.until, t)
}

type thinker struct {
	started atomic.Int32
	stopped atomic.Int32
}

func (t *thinker) Start(ctx context.Context) func() {
	t.started.Add(1)
	return func() { t.stopped.Add(1) }
}

func utterance() vad.Utterance {
	return vad.Utterance{
		Samples:    make([]int16, 16000),
		SampleRate: 16000,
		Started:    base.Add(-time.Second),
		Ended:      base,
	}
}

func newTestOrchestrator(t *testing.T, tr stt.Transcriber, llm inference.Provider, sp Speaker, opts ...Option) (*Orchestrator, *quietRecorder) {
	t.Helper()
	o, err := NewOrchestrator(tr, llm, sp, opts...)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	o.now = func() time.Time { return base.Add(3 * time.Second) }
	q := &quietRecorder{}
	o.SetQuieter(q)
	return o, q
}

func TestHandleUtteranceRoundTrip(t *testing.T) {
	llm := inference.NewMockReply("hi there")
	sp := speech.NewMock()
	o, quiet := newTestOrchestrator(t, stt.NewMock("hello"), llm, sp, WithSystemPrompt("You are a wall."))

	if err := o.HandleUtterance(context.Background(), utterance()); err != nil {
		t.Fatalf("HandleUtterance() error = %v", err)
	}

	want := []inference.Message{
		inference.NewSystemMessage("You are a wall."),
		{Role: inference.RoleUser, Content: "hello"},
		{Role: inference.RoleAssistant, Content: "hi there"},
	}
	got := o.History().Messages()
	if len(got) != len(want) {
		t.Fatalf("history = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("history[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	sent := llm.LastCall().Messages
	if len(sent) != 2 || sent[1].Content != "hello" {
		t.Errorf("model saw %+v", sent)
	}

	last := sp.LastCall()
	if last == nil || last.Text != "hi there" || last.Rate != DefaultRate {
		t.Errorf("spoke %+v", last)
	}

	if len(quiet.until) != 1 || !quiet.until[0].Equal(base.Add(3*time.Second+DefaultQuietDuration)) {
		t.Errorf("quiet windows = %v", quiet.until)
	}
}

func TestHandleUtteranceIgnoresNonSpeech(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"music", "*music*"},
		{"music upper", "  *MUSIC* "},
		{"empty marker", "(empty)"},
		{"bracket marker", "[Empty]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := inference.NewMockReply("unused")
			sp := speech.NewMock()
			o, quiet := newTestOrchestrator(t, stt.NewMock(tt.transcript), llm, sp, WithSystemPrompt("sys"))

			err := o.HandleUtterance(context.Background(), utterance())
			if !errors.Is(err, ErrNoTranscript) {
				t.Errorf("error = %v, want ErrNoTranscript", err)
			}
			if o.History().Len() != 1 {
				t.Errorf("history grew to %d", o.History().Len())
			}
			if llm.CallCount("Chat") != 0 || sp.CallCount() != 0 || len(quiet.until) != 0 {
				t.Error("non-speech should not reach the model or speaker")
			}
		})
	}
}

func TestHandleUtteranceTranscriptionFailure(t *testing.T) {
	boom := errors.New("whisper crashed")
	llm := inference.NewMock()
	o, _ := newTestOrchestrator(t, stt.NewMock().WithError(boom), llm, speech.NewMock())

	err := o.HandleUtterance(context.Background(), utterance())
	if !errors.Is(err, boom) || FailedStage(err) != StageTranscribe {
		t.Errorf("error = %v (stage %q)", err, FailedStage(err))
	}
	if o.History().Len() != 0 {
		t.Error("history should be untouched")
	}
	if llm.CallCount("Chat") != 0 {
		t.Error("model should not be called")
	}
}

func TestHandleUtteranceChatFailureKeepsUserTurn(t *testing.T) {
	llm := inference.NewMock()
	llm.ChatFunc = func(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error) {
		return nil, inference.ErrProviderUnavailable
	}
	sp := speech.NewMock()
	o, quiet := newTestOrchestrator(t, stt.NewMock("anyone there?"), llm, sp)

	err := o.HandleUtterance(context.Background(), utterance())
	if FailedStage(err) != StageChat || !errors.Is(err, inference.ErrProviderUnavailable) {
		t.Errorf("error = %v", err)
	}

	msgs := o.History().Messages()
	if len(msgs) != 1 || msgs[0].Role != inference.RoleUser {
		t.Errorf("history = %+v", msgs)
	}
	if sp.CallCount() != 0 || len(quiet.until) != 0 {
		t.Error("nothing should be spoken")
	}
}

func TestHandleUtteranceEmptyReply(t *testing.T) {
	for _, reply := range []string{"", "  ", "<|endoftext|>", "<start_of_turn></end_of_turn>", "😀🎉"} {
		o, _ := newTestOrchestrator(t, stt.NewMock("hello"), inference.NewMockReply(reply), speech.NewMock())
		err := o.HandleUtterance(context.Background(), utterance())
		if !errors.Is(err, ErrEmptyReply) || FailedStage(err) != StageChat {
			t.Errorf("reply %q: error = %v", reply, err)
		}
		if o.History().Len() != 1 {
			t.Errorf("reply %q: history len = %d", reply, o.History().Len())
		}
	}
}

func TestHandleUtteranceLogsSanitizedAwayReply(t *testing.T) {
	tests := []struct {
		reply  string
		logged bool
	}{
		{"", false},
		{"   ", false},
		{"😀🎉", true},
		{"<start_of_turn></end_of_turn>", true},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		sp := speech.NewMock()
		o, _ := newTestOrchestrator(t, stt.NewMock("hello"), inference.NewMockReply(tt.reply), sp, WithLogger(logger))

		err := o.HandleUtterance(context.Background(), utterance())
		if !errors.Is(err, ErrEmptyReply) {
			t.Errorf("reply %q: error = %v", tt.reply, err)
		}
		if sp.CallCount() != 0 {
			t.Errorf("reply %q: spoke %d times", tt.reply, sp.CallCount())
		}
		if got := strings.Contains(buf.String(), "reply empty after sanitizing"); got != tt.logged {
			t.Errorf("reply %q: sanitize warning logged = %v, want %v\n%s", tt.reply, got, tt.logged, buf.String())
		}
	}
}

func TestHandleUtteranceSanitizesReply(t *testing.T) {
	sp := speech.NewMock()
	o, _ := newTestOrchestrator(t, stt.NewMock("hello"),
		inference.NewMockReply("Hello friend! 👋<end_of_turn>\n"), sp)

	if err := o.HandleUtterance(context.Background(), utterance()); err != nil {
		t.Fatal(err)
	}
	if got := sp.LastCall().Text; got != "Hello friend!" {
		t.Errorf("spoke %q", got)
	}
	msgs := o.History().Messages()
	if msgs[len(msgs)-1].Content != "Hello friend!" {
		t.Errorf("stored %q", msgs[len(msgs)-1].Content)
	}
}

func TestHandleUtteranceSpeakFailure(t *testing.T) {
	sp := speech.NewMock().WithError(errors.New("no audio device"))
	o, quiet := newTestOrchestrator(t, stt.NewMock("hello"), inference.NewMockReply("hi"), sp)

	err := o.HandleUtterance(context.Background(), utterance())
	if FailedStage(err) != StageSpeak {
		t.Errorf("error = %v", err)
	}
	if o.History().Len() != 2 {
		t.Errorf("history len = %d, reply should be kept", o.History().Len())
	}
	if len(quiet.until) != 1 {
		t.Error("quiet window should follow any speech attempt")
	}
}

func TestHandleUtteranceThinkingAndObservers(t *testing.T) {
	o, _ := newTestOrchestrator(t, stt.NewMock("what are you?"), inference.NewMockReply("a wall of light"), speech.NewMock())
	th := &thinker{}
	o.SetThinker(th)

	var mu sync.Mutex
	var seen []inference.Role
	o.AddObserver(ObserverFunc(func(role inference.Role, content string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, role)
	}))
	o.AddObserver(ObserverFunc(func(inference.Role, string) { panic("bad observer") }))

	if err := o.HandleUtterance(context.Background(), utterance()); err != nil {
		t.Fatal(err)
	}
	if th.started.Load() != 1 || th.stopped.Load() != 1 {
		t.Errorf("thinking started %d stopped %d", th.started.Load(), th.stopped.Load())
	}
	if len(seen) != 2 || seen[0] != inference.RoleUser || seen[1] != inference.RoleAssistant {
		t.Errorf("observer saw %v", seen)
	}
}

func TestHandleUtteranceModelOverride(t *testing.T) {
	var model string
	llm := inference.NewMock()
	llm.ChatFunc = func(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error) {
		model = req.Model
		return &inference.ChatResponse{Message: inference.NewAssistantMessage("ok")}, nil
	}
	o, _ := newTestOrchestrator(t, stt.NewMock("hi"), llm, speech.NewMock(), WithModel("gemma3:4b"))
	if err := o.HandleUtterance(context.Background(), utterance()); err != nil {
		t.Fatal(err)
	}
	if model != "gemma3:4b" {
		t.Errorf("model = %q", model)
	}
}

func TestHandleUtteranceChatTimeout(t *testing.T) {
	llm := inference.NewMock()
	llm.ChatFunc = func(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	o, _ := newTestOrchestrator(t, stt.NewMock("hello"), llm, speech.NewMock(),
		WithTimeouts(time.Second, 20*time.Millisecond))

	start := time.Now()
	err := o.HandleUtterance(context.Background(), utterance())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("chat timeout not applied")
	}
}

func TestMetricsTrackTurns(t *testing.T) {
	o, _ := newTestOrchestrator(t, stt.NewMock("hello", "*music*"), inference.NewMockReply("hi"), speech.NewMock())

	var updates atomic.Int32
	o.Metrics().OnUpdate(func(Metrics) { updates.Add(1) })

	_ = o.HandleUtterance(context.Background(), utterance())
	_ = o.HandleUtterance(context.Background(), utterance())

	m := o.Metrics()
	if m.Turns() != 2 || updates.Load() != 2 {
		t.Errorf("turns = %d updates = %d", m.Turns(), updates.Load())
	}

	avg := m.Average()
	if !avg.Completed || avg.TotalLatency != 3*time.Second || avg.TranscriptChars != 5 {
		t.Errorf("average = %+v", avg)
	}
	if m.Current().Completed {
		t.Error("last turn was abandoned")
	}
}

func TestMetricsHistoryBounded(t *testing.T) {
	m := NewMetricsCollector()
	ids := map[string]bool{}
	for i := 0; i < metricsHistory+20; i++ {
		ids[m.MarkSpeechEnd(time.Time{})] = true
		m.MarkSpoken()
	}
	if m.Turns() != metricsHistory {
		t.Errorf("Turns() = %d", m.Turns())
	}
	if len(ids) != metricsHistory+20 {
		t.Error("turn IDs should be unique")
	}
}

func TestHistory(t *testing.T) {
	h := NewHistory("sys")
	h.Append(inference.RoleUser, "a")
	h.Append(inference.RoleAssistant, "b")
	h.Append(inference.RoleUser, "c")

	tail, first := h.Tail(2)
	if first != 2 || len(tail) != 2 || tail[0].Content != "b" {
		t.Errorf("Tail(2) = %+v from %d", tail, first)
	}
	if tail, _ := h.Tail(10); len(tail) != 4 {
		t.Errorf("Tail(10) len = %d", len(tail))
	}

	msgs := h.Messages()
	msgs[0].Content = "mutated"
	if h.Messages()[0].Content != "sys" {
		t.Error("Messages should return a copy")
	}

	h.Reset()
	if got := h.Messages(); len(got) != 1 || got[0].Role != inference.RoleSystem {
		t.Errorf("after Reset = %+v", got)
	}

	if NewHistory("").Len() != 0 {
		t.Error("empty prompt should not add a system message")
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello there.", "Hello there."},
		{"<start_of_turn>Hi</start_of_turn>", "Hi"},
		{"Hi<end_of_turn>", "Hi"},
		{"Done<|endoftext|>", "Done"},
		{"a\x00b", "ab"},
		{"Light! ✨🌈 ok 🚀", "Light!  ok"},
		{"Ça va, 日本", "Ça va, 日本"},
		{"  padded  ", "padded"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := []Option{
		WithRate(0),
		WithTimeouts(0, time.Second),
		WithQuietDuration(-time.Millisecond),
		WithQueueSize(0),
	}
	for i, opt := range bad {
		c := DefaultConfig()
		c.Apply(opt)
		if c.Validate() == nil {
			t.Errorf("option %d should be rejected", i)
		}
	}
}

func TestNewOrchestratorRequiresBackends(t *testing.T) {
	if _, err := NewOrchestrator(nil, inference.NewMock(), speech.NewMock()); !errors.Is(err, ErrNoTranscriber) {
		t.Errorf("error = %v", err)
	}
	if _, err := NewOrchestrator(stt.NewMock(), nil, speech.NewMock()); !errors.Is(err, ErrNoProvider) {
		t.Errorf("error = %v", err)
	}
	if _, err := NewOrchestrator(stt.NewMock(), inference.NewMock(), nil); !errors.Is(err, ErrNoSpeaker) {
		t.Errorf("error = %v", err)
	}
}

// session tests

const frameSamples = 512

func frame(i int, value int16) audioio.AudioChunk {
	samples := make([]int16, frameSamples)
	for j := range samples {
		samples[j] = value
	}
	return audioio.AudioChunk{
		Samples:    samples,
		SampleRate: 16000,
		Channels:   1,
		Captured:   base.Add(time.Duration(i) * 32 * time.Millisecond),
	}
}

// script returns 30 loud frames followed by 40 silent ones.
func script() []audioio.AudioChunk {
	var out []audioio.AudioChunk
	i := 0
	for ; i < 30; i++ {
		out = append(out, frame(i, 3277))
	}
	for k := 0; k < 40; k++ {
		out = append(out, frame(i, 0))
		i++
	}
	return out
}

var loudDetector = vad.DetectorFunc(func(f audioio.AudioChunk) (bool, error) {
	return f.RMS() > 0.05, nil
})

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func newTestSession(t *testing.T, src audioio.Source, tr *stt.Mock, sp *speech.Mock) *Session {
	t.Helper()
	o, err := NewOrchestrator(tr, inference.NewMockReply("hello visitor"), sp, WithSystemPrompt("sys"))
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSession(src, o, vad.DefaultConfig(), loudDetector, nil)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s
}

func TestSessionAnswersUtterance(t *testing.T) {
	src := audioio.NewMockSource(audioio.DefaultConfig(), nil, audioio.WithUnpaced())
	src.Inject(script()...)
	tr := stt.NewMock("is this thing on?")
	sp := speech.NewMock()
	s := newTestSession(t, src, tr, sp)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Errorf("second Start() error = %v", err)
	}
	waitFor(t, "reply", func() bool { return s.Stats().Turns == 1 })

	if got := tr.Calls()[0]; got.Samples != 30*frameSamples || got.SampleRate != 16000 {
		t.Errorf("transcribed %+v", got)
	}
	if sp.LastCall().Text != "hello visitor" {
		t.Errorf("spoke %q", sp.LastCall().Text)
	}
	if !s.Running() {
		t.Error("session should report running")
	}

	st := s.Stats()
	if st.Segmenter.Utterances != 1 || st.Turns != 1 {
		t.Errorf("stats = %+v", st)
	}

	s.Stop()
	if s.Running() {
		t.Error("session should be stopped")
	}
	s.Stop()

	s.ResetHistory()
	if s.Orchestrator().History().Len() != 1 {
		t.Error("ResetHistory should keep only the system prompt")
	}
}

func TestSessionRestarts(t *testing.T) {
	src := audioio.NewMockSource(audioio.DefaultConfig(), nil, audioio.WithUnpaced())
	sp := speech.NewMock()
	s := newTestSession(t, src, stt.NewMock("one", "two"), sp)

	for run := 1; run <= 2; run++ {
		src.Inject(script()...)
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("run %d: Start() error = %v", run, err)
		}
		waitFor(t, "reply", func() bool { return s.Stats().Turns == run })
		s.Stop()
	}

	msgs := s.Orchestrator().History().Messages()
	if len(msgs) != 5 || msgs[1].Content != "one" || msgs[3].Content != "two" {
		t.Errorf("history = %+v", msgs)
	}
}

func TestSessionStopCancelsTurn(t *testing.T) {
	src := audioio.NewMockSource(audioio.DefaultConfig(), nil, audioio.WithUnpaced())
	src.Inject(script()...)
	sp := speech.NewMock().WithDelay(time.Minute)
	s := newTestSession(t, src, stt.NewMock("hello"), sp)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "speech", func() bool { return sp.CallCount() == 1 })

	start := time.Now()
	s.Stop()
	if elapsed := time.Since(start); elapsed > JoinTimeout+200*time.Millisecond {
		t.Errorf("Stop took %v", elapsed)
	}
}

func TestNewSessionValidates(t *testing.T) {
	o, _ := NewOrchestrator(stt.NewMock(), inference.NewMock(), speech.NewMock())
	if _, err := NewSession(nil, o, vad.DefaultConfig(), nil, nil); !errors.Is(err, ErrNoSource) {
		t.Errorf("error = %v", err)
	}

	src := audioio.NewMockSource(audioio.DefaultConfig(), nil)
	bad := vad.DefaultConfig()
	bad.EndSilenceConfirm = 0
	if _, err := NewSession(src, o, bad, nil, nil); err == nil {
		t.Error("invalid segmenter config should be rejected")
	}
}
