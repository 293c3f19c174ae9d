package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const metricsHistory = 100

// Metrics tracks latency at each stage of one turn.
// All latencies are measured from the moment the visitor stopped talking.
type Metrics struct {
	TurnID string `json:"turn_id"`

	SpeechEnd    time.Time `json:"speech_end"`
	TranscriptAt time.Time `json:"transcript_at,omitempty"`
	ReplyAt      time.Time `json:"reply_at,omitempty"`
	SpokenAt     time.Time `json:"spoken_at,omitempty"`

	TranscriptLatency time.Duration `json:"transcript_latency"`
	ReplyLatency      time.Duration `json:"reply_latency"`
	TotalLatency      time.Duration `json:"total_latency"`

	TranscriptChars int  `json:"transcript_chars"`
	ReplyChars      int  `json:"reply_chars"`
	Completed       bool `json:"completed"`
}

// MetricsCollector collects per-turn latencies. It is goroutine-safe.
type MetricsCollector struct {
	mu       sync.Mutex
	now      func() time.Time
	current  Metrics
	history  []Metrics
	onUpdate func(Metrics)
}

// NewMetricsCollector creates a collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		now:     time.Now,
		history: make([]Metrics, 0, metricsHistory),
	}
}

// OnUpdate sets a callback fired whenever a turn is archived.
func (m *MetricsCollector) OnUpdate(fn func(Metrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// MarkSpeechEnd starts a new turn and returns its ID. A zero end time
// means now.
func (m *MetricsCollector) MarkSpeechEnd(end time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if end.IsZero() {
		end = m.now()
	}
	m.current = Metrics{TurnID: uuid.NewString(), SpeechEnd: end}
	return m.current.TurnID
}

// MarkTranscript records when transcription completed.
func (m *MetricsCollector) MarkTranscript(chars int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.TranscriptAt = m.now()
	m.current.TranscriptLatency = m.current.TranscriptAt.Sub(m.current.SpeechEnd)
	m.current.TranscriptChars = chars
}

// MarkReply records when the language model answered.
func (m *MetricsCollector) MarkReply(chars int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.ReplyAt = m.now()
	m.current.ReplyLatency = m.current.ReplyAt.Sub(m.current.SpeechEnd)
	m.current.ReplyChars = chars
}

// MarkSpoken records that the reply finished playing and archives the turn.
func (m *MetricsCollector) MarkSpoken() {
	m.mu.Lock()
	m.current.SpokenAt = m.now()
	m.current.TotalLatency = m.current.SpokenAt.Sub(m.current.SpeechEnd)
	m.current.Completed = true
	m.archiveLocked()
	done, fn := m.current, m.onUpdate
	m.mu.Unlock()

	if fn != nil {
		fn(done)
	}
}

// Abandon archives the current turn as incomplete.
func (m *MetricsCollector) Abandon() {
	m.mu.Lock()
	m.archiveLocked()
	done, fn := m.current, m.onUpdate
	m.mu.Unlock()

	if fn != nil {
		fn(done)
	}
}

func (m *MetricsCollector) archiveLocked() {
	m.history = append(m.history, m.current)
	if len(m.history) > metricsHistory {
		m.history = m.history[1:]
	}
}

// Current returns the turn in progress, or the last one.
func (m *MetricsCollector) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Turns returns the number of archived turns, at most 100.
func (m *MetricsCollector) Turns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// Average returns mean latencies over recent completed turns.
func (m *MetricsCollector) Average() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var avg Metrics
	n := 0
	for _, h := range m.history {
		if !h.Completed {
			continue
		}
		avg.TranscriptLatency += h.TranscriptLatency
		avg.ReplyLatency += h.ReplyLatency
		avg.TotalLatency += h.TotalLatency
		avg.TranscriptChars += h.TranscriptChars
		avg.ReplyChars += h.ReplyChars
		n++
	}
	if n == 0 {
		return Metrics{}
	}

	d := time.Duration(n)
	avg.TranscriptLatency /= d
	avg.ReplyLatency /= d
	avg.TotalLatency /= d
	avg.TranscriptChars /= n
	avg.ReplyChars /= n
	avg.Completed = true
	return avg
}
