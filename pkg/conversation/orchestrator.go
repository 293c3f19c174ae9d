// Package conversation turns visitor utterances into spoken replies: it
// transcribes, asks the language model, speaks the answer and keeps the
// chat history. Session wires it to a microphone for the engaged state.
package conversation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-lightwall/pkg/inference"
	"github.com/teslashibe/go-lightwall/pkg/stt"
	"github.com/teslashibe/go-lightwall/pkg/vad"
)

// Speaker says a reply. It blocks until playback ends.
type Speaker interface {
	Speak(ctx context.Context, text string, rate int) error
}

// Quieter suppresses listening for a short time after the wall speaks.
type Quieter interface {
	SetQuietUntil(t time.Time)
}

// Thinker plays something while the language model works.
type Thinker interface {
	Start(ctx context.Context) (stop func())
}

// Orchestrator runs one conversational turn per utterance. Turns are
// serialized.
type Orchestrator struct {
	cfg     Config
	stt     stt.Transcriber
	llm     inference.Provider
	speaker Speaker
	history *History
	metrics *MetricsCollector
	logger  *slog.Logger
	now     func() time.Time

	turn sync.Mutex

	mu        sync.RWMutex
	quiet     Quieter
	thinker   Thinker
	observers []Observer
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(t stt.Transcriber, llm inference.Provider, speaker Speaker, opts ...Option) (*Orchestrator, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case t == nil:
		return nil, ErrNoTranscriber
	case llm == nil:
		return nil, ErrNoProvider
	case speaker == nil:
		return nil, ErrNoSpeaker
	}

	return &Orchestrator{
		cfg:     cfg,
		stt:     t,
		llm:     llm,
		speaker: speaker,
		history: NewHistory(cfg.SystemPrompt),
		metrics: NewMetricsCollector(),
		logger:  cfg.Logger,
		now:     time.Now,
	}, nil
}

// SetQuieter sets the component that receives the post-speech quiet window.
func (o *Orchestrator) SetQuieter(q Quieter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quiet = q
}

// SetThinker sets the audio played while waiting for the language model.
func (o *Orchestrator) SetThinker(t Thinker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.thinker = t
}

// AddObserver registers an observer for history changes.
func (o *Orchestrator) AddObserver(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, obs)
}

// History returns the chat history.
func (o *Orchestrator) History() *History { return o.history }

// Metrics returns the turn metrics collector.
func (o *Orchestrator) Metrics() *MetricsCollector { return o.metrics }

// ResetHistory drops every message except the system prompt.
func (o *Orchestrator) ResetHistory() {
	o.history.Reset()
	o.logger.Info("chat history reset")
}

// HandleUtterance runs a full turn: transcribe, chat, speak. A failed
// transcription leaves the history untouched; a failed chat keeps the
// visitor's message.
func (o *Orchestrator) HandleUtterance(ctx context.Context, u vad.Utterance) error {
	o.turn.Lock()
	defer o.turn.Unlock()

	id := o.metrics.MarkSpeechEnd(u.Ended)
	logger := o.logger.With("turn", id)
	logger.Info("handling utterance", "duration", u.Duration(), "samples", len(u.Samples))

	text, err := o.transcribe(ctx, u)
	if err != nil {
		logger.Warn("transcription failed", "error", err)
		o.metrics.Abandon()
		return &TurnError{Stage: StageTranscribe, Err: err}
	}
	if text == "" || IsPlaceholder(text) {
		logger.Info("ignoring transcript", "text", text)
		o.metrics.Abandon()
		return ErrNoTranscript
	}
	o.metrics.MarkTranscript(len(text))
	logger.Info("visitor said", "text", text)

	o.history.Append(inference.RoleUser, text)
	o.notify(inference.RoleUser, text)
	o.logTail(logger)

	start := o.now()
	reply, err := o.chat(ctx, logger)
	if err != nil {
		logger.Error("chat failed", "elapsed", o.now().Sub(start), "error", err)
		o.metrics.Abandon()
		return &TurnError{Stage: StageChat, Err: err}
	}
	o.metrics.MarkReply(len(reply))
	logger.Info("model replied", "elapsed", o.now().Sub(start), "chars", len(reply))

	o.history.Append(inference.RoleAssistant, reply)
	o.notify(inference.RoleAssistant, reply)

	logger.Info("speaking reply", "rate", o.cfg.Rate, "preview", snippet(reply, 120))
	err = o.speaker.Speak(ctx, reply, o.cfg.Rate)
	o.enterQuiet(logger)
	if err != nil {
		logger.Warn("speaking failed", "error", err)
		o.metrics.Abandon()
		return &TurnError{Stage: StageSpeak, Err: err}
	}
	o.metrics.MarkSpoken()
	return nil
}

func (o *Orchestrator) transcribe(ctx context.Context, u vad.Utterance) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TranscribeTimeout)
	defer cancel()
	text, err := o.stt.Transcribe(ctx, u.Samples, u.SampleRate)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (o *Orchestrator) chat(ctx context.Context, logger *slog.Logger) (string, error) {
	o.mu.RLock()
	thinker := o.thinker
	o.mu.RUnlock()
	if thinker != nil {
		stop := thinker.Start(ctx)
		defer stop()
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.ChatTimeout)
	defer cancel()

	resp, err := o.llm.Chat(ctx, &inference.ChatRequest{
		Messages: o.history.Messages(),
		Model:    o.cfg.Model,
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", ErrEmptyReply
	}
	reply := Sanitize(resp.Message.Content)
	if reply == "" {
		if raw := strings.TrimSpace(resp.Message.Content); raw != "" {
			logger.Warn("reply empty after sanitizing", "raw", snippet(raw, o.cfg.SnippetChars))
		}
		return "", ErrEmptyReply
	}
	return reply, nil
}

func (o *Orchestrator) enterQuiet(logger *slog.Logger) {
	o.mu.RLock()
	q := o.quiet
	o.mu.RUnlock()
	if q == nil || o.cfg.QuietDuration == 0 {
		return
	}
	q.SetQuietUntil(o.now().Add(o.cfg.QuietDuration))
	logger.Debug("entering quiet window", "duration", o.cfg.QuietDuration)
}

func (o *Orchestrator) notify(role inference.Role, content string) {
	o.mu.RLock()
	observers := o.observers
	o.mu.RUnlock()
	for _, obs := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("observer panicked", "panic", r)
				}
			}()
			obs.OnTurn(role, content)
		}()
	}
}

func (o *Orchestrator) logTail(logger *slog.Logger) {
	if o.cfg.TailMessages == 0 || !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	tail, first := o.history.Tail(o.cfg.TailMessages)
	for i, m := range tail {
		logger.Debug("chat tail", "index", first+i, "role", m.Role, "content", snippet(m.Content, o.cfg.SnippetChars))
	}
}

func snippet(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
