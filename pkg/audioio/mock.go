package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource generates audio for tests and dry runs: silence, a sine
// wave, or frames injected by the test.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan AudioChunk
	stopCh   chan struct{}
	done     chan struct{}
	injected []AudioChunk

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64

	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
	paced     bool
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave generates a sine wave instead of silence.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithUnpaced emits frames as fast as the consumer takes them instead of
// one per BufferDuration, and stops once injected frames run out.
func WithUnpaced() MockSourceOption {
	return func(m *MockSource) { m.paced = false }
}

// NewMockSource creates a mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		streamCh:  make(chan AudioChunk),
		amplitude: 0.5,
		paced:     true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Inject queues frames to be emitted before any generated audio.
func (m *MockSource) Inject(chunks ...AudioChunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.injected = append(m.injected, chunks...)
}

// Start begins emitting audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.streamCh = make(chan AudioChunk, max(1, m.cfg.QueueSize))

	go m.generateLoop(ctx, m.streamCh, m.stopCh, m.done)

	m.logger.Debug("mock audio source started", "sample_rate", m.cfg.SampleRate, "frequency", m.frequency)
	return nil
}

func (m *MockSource) generateLoop(ctx context.Context, out chan<- AudioChunk, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	var tick <-chan time.Time
	if m.paced {
		ticker := time.NewTicker(m.cfg.BufferDuration)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-tick:
			}
		}

		chunk, ok := m.next()
		if !ok {
			return
		}

		if m.paced {
			select {
			case out <- chunk:
			default:
				m.overruns.Add(1)
				continue
			}
		} else {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
		m.chunksRead.Add(1)
		m.samplesRead.Add(int64(len(chunk.Samples)))
	}
}

func (m *MockSource) next() (AudioChunk, bool) {
	m.mu.Lock()
	if len(m.injected) > 0 {
		c := m.injected[0]
		m.injected = m.injected[1:]
		m.mu.Unlock()
		if c.Captured.IsZero() {
			c.Captured = time.Now()
		}
		return c, true
	}
	m.mu.Unlock()

	if !m.paced {
		return AudioChunk{}, false
	}
	return m.generateChunk(), true
}

func (m *MockSource) generateChunk() AudioChunk {
	n := m.cfg.BufferSize()
	samples := make([]int16, n*m.cfg.Channels)

	if m.frequency > 0 {
		for i := 0; i < n; i++ {
			v := int16(m.amplitude * 32767 * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate)))
			for ch := 0; ch < m.cfg.Channels; ch++ {
				samples[i*m.cfg.Channels+ch] = v
			}
			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}

	return AudioChunk{
		Samples:    samples,
		SampleRate: m.cfg.SampleRate,
		Channels:   m.cfg.Channels,
		Captured:   time.Now(),
	}
}

// Stop halts generation and waits for the stream to close.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stopCh)
	done := m.done
	m.mu.Unlock()

	<-done
	return nil
}

// Read returns the next chunk.
func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	ch := m.Stream()
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

// Stream returns the chunk channel of the current run.
func (m *MockSource) Stream() <-chan AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCh
}

func (m *MockSource) Config() Config { return m.cfg }
func (m *MockSource) Name() string   { return string(BackendMock) }

// Close stops the source permanently.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	return m.Stop()
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		ChunksRead:  m.chunksRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Overruns:    m.overruns.Load(),
		Running:     running,
		Backend:     string(BackendMock),
	}
}

var _ SourceWithStats = (*MockSource)(nil)

// MockSink records everything written to it.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	pending []int16
	played  []int16
	flushes int
	clears  int

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

// NewMockSink creates a recording sink.
func NewMockSink(cfg Config, logger *slog.Logger) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockSink{cfg: cfg, logger: logger}
}

// Start enables writes.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return io.ErrClosedPipe
	}
	m.running = true
	return nil
}

// Stop disables writes.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

// Write buffers a chunk.
func (m *MockSink) Write(ctx context.Context, chunk AudioChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.running {
		return io.ErrClosedPipe
	}
	m.pending = append(m.pending, chunk.Samples...)
	m.chunksWritten.Add(1)
	m.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Flush moves buffered audio to the played record.
func (m *MockSink) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.played = append(m.played, m.pending...)
	m.pending = nil
	m.flushes++
	return nil
}

// Clear discards buffered audio.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
	m.clears++
	return nil
}

// Played returns every flushed sample.
func (m *MockSink) Played() []int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int16, len(m.played))
	copy(out, m.played)
	return out
}

// Counts returns the number of Flush and Clear calls.
func (m *MockSink) Counts() (flushes, clears int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes, m.clears
}

func (m *MockSink) Config() Config { return m.cfg }
func (m *MockSink) Name() string   { return string(BackendMock) }

// Close disables the sink permanently.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.running = false
	return nil
}

// Stats returns sink statistics.
func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	running := m.running
	buffered := int64(len(m.pending))
	m.mu.Unlock()

	return SinkStats{
		ChunksWritten:   m.chunksWritten.Load(),
		SamplesWritten:  m.samplesWritten.Load(),
		Running:         running,
		Backend:         string(BackendMock),
		BufferedSamples: buffered,
	}
}

var _ SinkWithStats = (*MockSink)(nil)
