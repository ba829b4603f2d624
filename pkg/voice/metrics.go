package voice

import (
	"sync"
	"time"
)

// Metrics describes one utterance.
type Metrics struct {
	StartTime time.Time
	Provider  string
	Chars     int

	SynthesisLatency time.Duration // request to clip
	PlaybackDuration time.Duration // clip start to end
	TotalLatency     time.Duration // Speak to end

	Interrupted bool
	Failed      bool
}

// MetricsCollector keeps recent utterance metrics.
// It is goroutine-safe.
type MetricsCollector struct {
	mu      sync.Mutex
	last    Metrics
	history []Metrics

	onUpdate func(Metrics)
}

const metricsHistory = 100

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]Metrics, 0, metricsHistory),
	}
}

// OnUpdate sets a callback that runs after each recorded utterance.
func (m *MetricsCollector) OnUpdate(fn func(Metrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// Record archives one utterance.
func (m *MetricsCollector) Record(u Metrics) {
	m.mu.Lock()
	m.last = u
	m.history = append(m.history, u)
	if len(m.history) > metricsHistory {
		m.history = m.history[1:]
	}
	fn := m.onUpdate
	m.mu.Unlock()

	if fn != nil {
		fn(u)
	}
}

// Last returns the most recent utterance.
func (m *MetricsCollector) Last() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Average returns mean latencies over completed utterances.
func (m *MetricsCollector) Average() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var avg Metrics
	n := 0
	for _, h := range m.history {
		if h.Failed || h.Interrupted {
			continue
		}
		avg.SynthesisLatency += h.SynthesisLatency
		avg.PlaybackDuration += h.PlaybackDuration
		avg.TotalLatency += h.TotalLatency
		avg.Chars += h.Chars
		n++
	}
	if n == 0 {
		return Metrics{}
	}
	d := time.Duration(n)
	avg.SynthesisLatency /= d
	avg.PlaybackDuration /= d
	avg.TotalLatency /= d
	avg.Chars /= n
	return avg
}

// FormatLatency returns a one-line latency summary.
func (m *Metrics) FormatLatency() string {
	return formatDuration(m.SynthesisLatency) + " TTS | " +
		formatDuration(m.PlaybackDuration) + " PLAY | " +
		formatDuration(m.TotalLatency) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
