package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-lightwall/pkg/audioio"
	"github.com/teslashibe/go-lightwall/pkg/vad"
)

// SessionStats is a snapshot of the listener.
type SessionStats struct {
	Running   bool      `json:"running"`
	Queued    int       `json:"queued"`
	Dropped   int64     `json:"dropped"`
	Segmenter vad.Stats `json:"segmenter"`
	Turns     int       `json:"turns"`
}

// Session listens to the microphone while the wall is engaged. Captured
// frames go through a bounded queue to a single consumer that feeds the
// segmenter; finished utterances are answered by the orchestrator.
type Session struct {
	source audioio.Source
	orch   *Orchestrator
	seg    *vad.Segmenter
	size   int
	logger *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	queue  *audioio.FrameQueue
}

var _ vad.UtteranceSink = (*Session)(nil)

// NewSession wires a source, segmenter and orchestrator together. A nil
// detector selects the built-in energy detector; guard may be nil.
func NewSession(source audioio.Source, orch *Orchestrator, cfg vad.Config, det vad.Detector, guard vad.EchoGuard) (*Session, error) {
	if source == nil {
		return nil, ErrNoSource
	}
	if orch == nil {
		return nil, ErrNoProvider
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		source: source,
		orch:   orch,
		size:   orch.cfg.QueueSize,
		logger: orch.logger.With("session", source.Name()),
	}
	s.seg = vad.NewSegmenter(cfg, det, guard, s, vad.WithLogger(orch.logger))
	orch.SetQuieter(s.seg)
	return s, nil
}

// Segmenter returns the session's segmenter.
func (s *Session) Segmenter() *vad.Segmenter { return s.seg }

// Orchestrator returns the session's orchestrator.
func (s *Session) Orchestrator() *Orchestrator { return s.orch }

// Start begins listening. Starting a running session does nothing.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := s.source.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("conversation: start audio: %w", err)
	}

	s.seg.Reset()
	q := audioio.NewFrameQueue(s.size)
	done := make(chan struct{})
	s.ctx, s.cancel, s.done, s.queue = runCtx, cancel, done, q

	go q.Feed(runCtx, s.source.Stream())
	go s.consume(runCtx, q, done)

	s.logger.Info("conversation listening")
	return nil
}

// Stop stops listening and waits briefly for the consumer to exit. An
// in-flight turn is cancelled.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.ctx, s.cancel, s.done, s.queue = nil, nil, nil, nil
	s.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	if err := s.source.Stop(); err != nil {
		s.logger.Warn("stopping audio", "error", err)
	}

	select {
	case <-done:
		s.logger.Info("conversation stopped")
	case <-time.After(JoinTimeout):
		s.logger.Warn("conversation listener did not exit, abandoning")
	}
}

// Running reports whether the session is listening.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

// ResetHistory clears the chat history and any partial utterance.
func (s *Session) ResetHistory() {
	s.orch.ResetHistory()
	s.seg.Reset()
}

// Stats returns a snapshot of the listener.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	q := s.queue
	running := s.done != nil
	s.mu.Unlock()

	st := SessionStats{
		Running:   running,
		Segmenter: s.seg.Stats(),
		Turns:     s.orch.metrics.Turns(),
	}
	if q != nil {
		st.Queued = q.Len()
		st.Dropped = q.Dropped()
	}
	return st
}

func (s *Session) consume(ctx context.Context, q *audioio.FrameQueue, done chan<- struct{}) {
	defer close(done)
	for {
		chunk, err := q.Pop(ctx)
		if err != nil {
			return
		}
		s.process(chunk)
	}
}

func (s *Session) process(chunk audioio.AudioChunk) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("frame processing panicked", "panic", r)
		}
	}()
	s.seg.Process(chunk)
}

// OnUtterance answers a finished utterance. It runs on the consumer
// goroutine, so capture keeps filling the queue meanwhile; that backlog
// is discarded afterwards because it holds the wall's own reply.
func (s *Session) OnUtterance(u vad.Utterance) {
	s.mu.Lock()
	ctx, q := s.ctx, s.queue
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	err := s.orch.HandleUtterance(ctx, u)
	switch {
	case err == nil, errors.Is(err, ErrNoTranscript):
	case ctx.Err() != nil:
		s.logger.Info("turn cancelled", "error", err)
	default:
		s.logger.Warn("turn failed", "stage", FailedStage(err), "error", err)
	}

	if q != nil {
		if n := q.Drain(); n > 0 {
			s.logger.Debug("discarded backlog", "frames", n)
		}
	}
}
