package audioio

import (
	"context"
	"sync"
	"time"
)

// MockSink is a Sink that discards audio at device pace. It stands in
// when no sound card is available and in tests.
type MockSink struct {
	cfg    Config
	mixer  *Mixer
	manual bool

	mu      sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	written []int16
}

var _ Sink = (*MockSink)(nil)

// MockOption configures a MockSink.
type MockOption func(*MockSink)

// WithManualClock disables the internal ticker. Periods are produced only
// by Advance, and their samples are kept for Written.
func WithManualClock() MockOption {
	return func(s *MockSink) { s.manual = true }
}

// NewMockSink creates a stopped mock sink.
func NewMockSink(cfg Config, opts ...MockOption) *MockSink {
	if cfg.SampleRate <= 0 {
		cfg = DefaultConfig()
	}
	cfg.Backend = BackendMock
	s := &MockSink{
		cfg:   cfg,
		mixer: NewMixer(cfg.SampleRate, cfg.Channels),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins consuming audio.
func (s *MockSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.running {
		return nil
	}
	s.running = true
	if s.manual {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
	return nil
}

func (s *MockSink) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	buf := make([]int16, s.cfg.BufferSamples())
	t := time.NewTicker(s.cfg.BufferDuration)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.mixer.Fill(buf)
		}
	}
}

// Advance produces n periods. Only meaningful with WithManualClock.
func (s *MockSink) Advance(n int) {
	buf := make([]int16, s.cfg.BufferSamples())
	for i := 0; i < n; i++ {
		s.mixer.Fill(buf)
		s.mu.Lock()
		s.written = append(s.written, buf...)
		s.mu.Unlock()
	}
}

// Written returns every sample produced by Advance.
func (s *MockSink) Written() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int16, len(s.written))
	copy(out, s.written)
	return out
}

// Stop halts consumption and interrupts the current clip.
func (s *MockSink) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.mixer.Clear()
	return nil
}

// Play replaces the current clip and waits for it.
func (s *MockSink) Play(ctx context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	return play(ctx, s.mixer, chunk)
}

// Clear interrupts the current clip.
func (s *MockSink) Clear() error {
	s.mixer.Clear()
	return nil
}

func (s *MockSink) SetAmbient(a Ambient) { s.mixer.SetAmbient(a) }
func (s *MockSink) Ambient() Ambient     { return s.mixer.Ambient() }
func (s *MockSink) Config() Config       { return s.cfg }
func (s *MockSink) Name() string         { return "mock" }

// Stats returns playback counters.
func (s *MockSink) Stats() SinkStats {
	s.mu.Lock()
	st := SinkStats{Running: s.running, Backend: s.Name()}
	s.mu.Unlock()
	s.mixer.stats(&st)
	return st
}

// Close stops the sink permanently.
func (s *MockSink) Close() error {
	err := s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}
