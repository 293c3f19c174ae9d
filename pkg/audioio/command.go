package audioio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// stopTimeout bounds how long Stop waits for the capture loop.
const stopTimeout = time.Second

// CaptureArgs returns the command line that writes raw PCM16 from the
// microphone to stdout.
func CaptureArgs(cfg Config) []string {
	if runtime.GOOS == "darwin" {
		return soxArgs("rec", cfg)
	}
	return alsaArgs("arecord", cfg)
}

// PlaybackArgs returns the command line that plays raw PCM16 from stdin.
func PlaybackArgs(cfg Config) []string {
	if runtime.GOOS == "darwin" {
		return soxArgs("play", cfg)
	}
	return alsaArgs("aplay", cfg)
}

func alsaArgs(program string, cfg Config) []string {
	args := []string{program, "-q", "-t", "raw", "-f", "S16_LE",
		"-r", strconv.Itoa(cfg.SampleRate), "-c", strconv.Itoa(cfg.Channels)}
	if cfg.Device != "" {
		args = append(args, "-D", cfg.Device)
	}
	return args
}

func soxArgs(program string, cfg Config) []string {
	return []string{program, "-q", "-t", "raw", "-b", "16", "-e", "signed-integer",
		"-r", strconv.Itoa(cfg.SampleRate), "-c", strconv.Itoa(cfg.Channels), "-"}
}

// CommandSource captures audio from a recording program's stdout.
type CommandSource struct {
	cfg    Config
	args   []string
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	cancel   context.CancelFunc
	done     chan struct{}
	streamCh chan AudioChunk

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// CommandOption configures a command backend.
type CommandOption func(*[]string)

// WithCommand replaces the program and arguments.
func WithCommand(args ...string) CommandOption {
	return func(a *[]string) { *a = args }
}

// NewCommandSource creates a source running CaptureArgs(cfg).
func NewCommandSource(cfg Config, logger *slog.Logger, opts ...CommandOption) *CommandSource {
	args := CaptureArgs(cfg)
	for _, opt := range opts {
		opt(&args)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandSource{
		cfg:      cfg,
		args:     args,
		logger:   logger,
		streamCh: make(chan AudioChunk),
	}
}

// Start launches the recording program.
func (s *CommandSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, s.args[0], s.args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", s.args[0], err)
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.streamCh = make(chan AudioChunk, max(1, s.cfg.QueueSize))

	go s.captureLoop(ctx, cmd, stdout, &stderr, s.streamCh, s.done)

	s.logger.Info("audio capture started", "command", s.args[0], "device", s.cfg.Device)
	return nil
}

func (s *CommandSource) captureLoop(ctx context.Context, cmd *exec.Cmd, r io.Reader, stderr *bytes.Buffer, out chan<- AudioChunk, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	frameDur := s.cfg.BufferDuration
	buf := make([]byte, s.cfg.BufferBytes())
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				s.logger.Warn("audio capture read failed", "error", err)
			}
			break
		}

		var chunk AudioChunk
		chunk.FromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)
		chunk.Captured = time.Now().Add(-frameDur)

		select {
		case out <- chunk:
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(chunk.Samples)))
		default:
			s.overruns.Add(1)
			s.logger.Debug("capture buffer full, dropping frame")
		}
	}

	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		s.logger.Warn("capture program exited", "error", err, "stderr", stderr.String())
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Stop kills the recording program and waits for the loop to end.
func (s *CommandSource) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		s.logger.Warn("audio capture did not stop in time")
	}
	s.logger.Info("audio capture stopped")
	return nil
}

// Read returns the next chunk.
func (s *CommandSource) Read(ctx context.Context) (AudioChunk, error) {
	s.mu.Lock()
	ch := s.streamCh
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the chunk channel of the current capture.
func (s *CommandSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

func (s *CommandSource) Config() Config { return s.cfg }
func (s *CommandSource) Name() string   { return string(BackendCommand) }

// Close stops capture permanently.
func (s *CommandSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns capture statistics.
func (s *CommandSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     string(BackendCommand),
	}
}

var _ SourceWithStats = (*CommandSource)(nil)

// CommandSink plays audio by piping raw PCM16 into a playback program.
// The program is started on the first Write and finishes on Flush, so each
// phrase is one process.
type CommandSink struct {
	cfg    Config
	args   []string
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	cancel  context.CancelFunc

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

// NewCommandSink creates a sink running PlaybackArgs(cfg).
func NewCommandSink(cfg Config, logger *slog.Logger, opts ...CommandOption) *CommandSink {
	args := PlaybackArgs(cfg)
	for _, opt := range opts {
		opt(&args)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandSink{cfg: cfg, args: args, logger: logger}
}

// Start enables playback.
func (s *CommandSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	s.running = true
	return nil
}

// Stop kills any playing audio.
func (s *CommandSink) Stop() error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return s.Clear()
}

func (s *CommandSink) spawnLocked() error {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, s.args[0], s.args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("playback pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", s.args[0], err)
	}
	s.cmd, s.stdin, s.cancel = cmd, stdin, cancel
	return nil
}

// Write sends a chunk to the playback program.
func (s *CommandSink) Write(ctx context.Context, chunk AudioChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.running {
		return io.ErrClosedPipe
	}
	if s.cmd == nil {
		if err := s.spawnLocked(); err != nil {
			return err
		}
	}
	if _, err := s.stdin.Write(chunk.Bytes()); err != nil {
		s.killLocked()
		return fmt.Errorf("write audio: %w", err)
	}
	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Flush closes the program's input and waits for it to finish playing.
func (s *CommandSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	cmd, stdin, cancel := s.cmd, s.stdin, s.cancel
	s.cmd, s.stdin, s.cancel = nil, nil, nil
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}
	stdin.Close()

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err := <-waitErr:
		cancel()
		if err != nil {
			return fmt.Errorf("%s: %w", s.args[0], err)
		}
		return nil
	case <-ctx.Done():
		cancel()
		<-waitErr
		return ctx.Err()
	}
}

// Clear kills the playback program, discarding unplayed audio.
func (s *CommandSink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killLocked()
	return nil
}

func (s *CommandSink) killLocked() {
	if s.cmd == nil {
		return
	}
	s.stdin.Close()
	s.cancel()
	s.cmd.Wait()
	s.cmd, s.stdin, s.cancel = nil, nil, nil
}

func (s *CommandSink) Config() Config { return s.cfg }
func (s *CommandSink) Name() string   { return string(BackendCommand) }

// Close stops playback permanently.
func (s *CommandSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns playback statistics.
func (s *CommandSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SinkStats{
		ChunksWritten:  s.chunksWritten.Load(),
		SamplesWritten: s.samplesWritten.Load(),
		Running:        running,
		Backend:        string(BackendCommand),
	}
}

var _ SinkWithStats = (*CommandSink)(nil)
