package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/teslashibe/go-focuscoach/pkg/audioio"
	"github.com/teslashibe/go-focuscoach/pkg/tts"
)

// Option configures a Speaker.
type Option func(*Speaker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Speaker) { s.logger = l }
}

// WithErrorHandler is called with every *SinkError.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Speaker) { s.onError = fn }
}

// WithMetrics records per-utterance metrics into m.
func WithMetrics(m *MetricsCollector) Option {
	return func(s *Speaker) { s.metrics = m }
}

// Stats counts utterances.
type Stats struct {
	Spoken      int64 `json:"spoken"`
	Interrupted int64 `json:"interrupted"`
	Failed      int64 `json:"failed"`
	Dropped     int64 `json:"dropped"`
	Speaking    bool  `json:"speaking"`
	Muted       bool  `json:"muted"`
}

// Speaker speaks one message at a time.
type Speaker struct {
	provider tts.Provider
	sink     audioio.Sink
	logger   *slog.Logger
	onError  func(error)
	metrics  *MetricsCollector

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	cfg      Config
	gen      uint64
	current  context.CancelFunc
	speaking bool
	closed   bool

	spoken      atomic.Int64
	interrupted atomic.Int64
	failed      atomic.Int64
	dropped     atomic.Int64
}

// New creates a Speaker. A nil sink synthesizes without playing, which
// keeps prompts flowing on machines without audio output.
func New(provider tts.Provider, sink audioio.Sink, cfg Config, opts ...Option) *Speaker {
	def := DefaultConfig()
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = def.SynthesisTimeout
	}
	if cfg.PlaybackMargin <= 0 {
		cfg.PlaybackMargin = def.PlaybackMargin
	}

	s := &Speaker{
		provider: provider,
		sink:     sink,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "voice")
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Speak starts speaking text and returns immediately. A message already
// in flight is interrupted.
func (s *Speaker) Speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.report(&SinkError{Stage: StageSynthesize, Text: text, Err: ErrClosed})
		return
	}
	if s.cfg.Muted || s.provider == nil {
		s.mu.Unlock()
		s.dropped.Add(1)
		return
	}
	if n := s.cfg.MaxTextLength; n > 0 {
		text = truncate(text, n)
	}
	if s.current != nil {
		s.current()
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(s.ctx)
	s.current = cancel
	s.speaking = true
	cfg, provider := s.cfg, s.provider
	s.wg.Add(1)
	s.mu.Unlock()

	go s.say(ctx, cancel, gen, text, cfg, provider)
}

func (s *Speaker) say(ctx context.Context, cancel context.CancelFunc, gen uint64, text string, cfg Config, provider tts.Provider) {
	defer s.wg.Done()
	defer cancel()

	m := Metrics{StartTime: time.Now(), Chars: len(text)}
	defer func() {
		if r := recover(); r != nil {
			m.Failed = true
			s.fail(&SinkError{Stage: StagePanic, Text: text, Err: fmt.Errorf("%v", r)})
		}
		m.TotalLatency = time.Since(m.StartTime)
		s.finish(gen, m)
	}()

	sctx, scancel := context.WithTimeout(ctx, cfg.SynthesisTimeout)
	clip, err := provider.Synthesize(sctx, text)
	scancel()
	m.SynthesisLatency = time.Since(m.StartTime)
	if ctx.Err() != nil {
		m.Interrupted = true
		s.interrupted.Add(1)
		return
	}
	if err != nil {
		m.Failed = true
		s.fail(&SinkError{Stage: StageSynthesize, Text: text, Err: err})
		return
	}
	m.Provider = clip.Provider

	if s.sink == nil {
		s.spoken.Add(1)
		return
	}

	chunk := audioio.ChunkFromBytes(clip.Audio, clip.Format.SampleRate, max(clip.Format.Channels, 1))
	pctx, pcancel := context.WithTimeout(ctx, chunk.Duration()+cfg.PlaybackMargin)
	start := time.Now()
	err = s.sink.Play(pctx, chunk)
	pcancel()
	m.PlaybackDuration = time.Since(start)

	switch {
	case err == nil:
		s.spoken.Add(1)
	case ctx.Err() != nil || errors.Is(err, audioio.ErrInterrupted):
		m.Interrupted = true
		s.interrupted.Add(1)
	default:
		m.Failed = true
		s.fail(&SinkError{Stage: StagePlay, Text: text, Err: err})
	}
}

func (s *Speaker) finish(gen uint64, m Metrics) {
	s.mu.Lock()
	if s.gen == gen {
		s.speaking = false
		s.current = nil
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Record(m)
	}
	s.logger.Debug("utterance done",
		"chars", m.Chars,
		"provider", m.Provider,
		"latency", m.FormatLatency(),
		"interrupted", m.Interrupted,
		"failed", m.Failed,
	)
}

func (s *Speaker) fail(err *SinkError) {
	s.failed.Add(1)
	s.report(err)
}

func (s *Speaker) report(err *SinkError) {
	s.logger.Warn("voice prompt failed", "stage", err.Stage, "error", err.Err)
	if s.onError != nil {
		s.onError(err)
	}
}

// Stop interrupts the message in flight, if any.
func (s *Speaker) Stop() {
	s.mu.Lock()
	cancel := s.current
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SetProvider replaces the provider for later messages and returns the
// previous one. A nil provider drops messages like Muted.
func (s *Speaker) SetProvider(p tts.Provider) tts.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.provider
	s.provider = p
	return prev
}

// SetMuted mutes or unmutes the speaker. Muting interrupts the message in
// flight.
func (s *Speaker) SetMuted(muted bool) {
	s.mu.Lock()
	s.cfg.Muted = muted
	s.mu.Unlock()
	if muted {
		s.Stop()
	}
}

// Muted reports whether messages are dropped.
func (s *Speaker) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Muted
}

// Speaking reports whether a message is being synthesized or played.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Stats returns utterance counters.
func (s *Speaker) Stats() Stats {
	s.mu.Lock()
	st := Stats{Speaking: s.speaking, Muted: s.cfg.Muted}
	s.mu.Unlock()
	st.Spoken = s.spoken.Load()
	st.Interrupted = s.interrupted.Load()
	st.Failed = s.failed.Load()
	st.Dropped = s.dropped.Load()
	return st
}

// Close interrupts speech and waits for in-flight work. The provider and
// sink are owned by the caller. Safe to call more than once.
func (s *Speaker) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
	return nil
}

// truncate cuts text to at most n bytes without splitting a rune.
func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}
