// Package heuristic implements a presence detector that needs no model:
// a frame counts as occupied when enough of it is not near-black.
package heuristic

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-focuscoach/pkg/presence"
	"github.com/teslashibe/go-focuscoach/pkg/video"
)

// Config holds heuristic detector parameters.
type Config struct {
	Width  int
	Height int

	// FPS is the sampling rate, one evaluation per rendered frame.
	FPS int

	// PixelThreshold is the per-channel value a pixel must exceed to count
	// as non-dark.
	PixelThreshold byte

	// PresenceFraction is the non-dark fraction above which a person is
	// assumed present.
	PresenceFraction float64

	// IdleInterval is how often a closed gate is rechecked. Sampling at
	// FPS resumes on the first check that finds it open.
	IdleInterval time.Duration
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		Width:            320,
		Height:           240,
		FPS:              30,
		PixelThreshold:   5,
		PresenceFraction: 0.05,
		IdleInterval:     250 * time.Millisecond,
	}
}

// Option configures a Detector.
type Option func(*Detector)

// WithCanvas supplies the raster instead of allocating a MatCanvas.
func WithCanvas(c Canvas) Option {
	return func(d *Detector) { d.canvas = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// WithClock sets the clock used to timestamp signals.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// Detector samples the video source on a fixed cadence while the session
// gate is open.
type Detector struct {
	cfg    Config
	src    video.Source
	gate   presence.Gate
	canvas Canvas
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	onSignal presence.SignalFunc
	errc     chan error
	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
	stopped  bool

	lastSeq     uint64
	lastPresent bool
	samples     uint64
	wakeups     uint64
}

var _ presence.Detector = (*Detector)(nil)

// New creates a heuristic detector. A nil gate is always open.
func New(src video.Source, gate presence.Gate, cfg Config, opts ...Option) *Detector {
	def := DefaultConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	if cfg.PresenceFraction <= 0 {
		cfg.PresenceFraction = def.PresenceFraction
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = def.IdleInterval
	}
	if gate == nil {
		gate = presence.GateFunc(func() bool { return true })
	}

	d := &Detector{
		cfg:    cfg,
		src:    src,
		gate:   gate,
		logger: slog.Default(),
		now:    time.Now,
		errc:   make(chan error, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "heuristic")
	return d
}

// Kind implements presence.Detector.
func (d *Detector) Kind() presence.Kind { return presence.KindHeuristic }

// OnSignal implements presence.Detector.
func (d *Detector) OnSignal(fn presence.SignalFunc) {
	d.mu.Lock()
	d.onSignal = fn
	d.mu.Unlock()
}

// Err implements presence.Detector.
func (d *Detector) Err() <-chan error { return d.errc }

// Start acquires the raster and begins sampling.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return presence.NewError(presence.KindHeuristic, "start", errors.New("detector stopped"))
	}
	if d.started {
		return nil
	}
	if d.src == nil {
		return presence.NewError(presence.KindHeuristic, "start", presence.Wrap(presence.ErrRasterUnavailable, errors.New("no video source")))
	}
	if d.canvas == nil {
		c, err := NewMatCanvas(d.cfg.Width, d.cfg.Height)
		if err != nil {
			return presence.NewError(presence.KindHeuristic, "start", err)
		}
		d.canvas = c
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.started = true

	go d.run(ctx)

	d.logger.Info("heuristic detector started",
		"raster", [2]int{d.cfg.Width, d.cfg.Height}, "fps", d.cfg.FPS)
	return nil
}

func (d *Detector) run(ctx context.Context) {
	defer close(d.done)

	interval := time.Second / time.Duration(d.cfg.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	idle := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		d.mu.Lock()
		d.wakeups++
		d.mu.Unlock()

		if !d.gate.Active() {
			if !idle {
				idle = true
				ticker.Reset(d.cfg.IdleInterval)
			}
			continue
		}
		if idle {
			idle = false
			ticker.Reset(interval)
		}
		sig, ok, err := d.sample()
		if err != nil {
			d.fail(err)
			return
		}
		if !ok {
			continue
		}

		d.mu.Lock()
		fn := d.onSignal
		d.mu.Unlock()
		if fn != nil && ctx.Err() == nil && d.gate.Active() {
			fn(sig)
		}
	}
}

// sample evaluates the latest frame. ok is false when there was nothing
// to evaluate; err is set only for unrecoverable failures.
func (d *Detector) sample() (sig presence.Signal, ok bool, err error) {
	frame, err := d.src.Frame()
	switch {
	case errors.Is(err, video.ErrNoFrame):
		return sig, false, nil
	case errors.Is(err, video.ErrClosed):
		return sig, false, presence.Wrap(presence.ErrRasterUnavailable, err)
	case err != nil:
		d.logger.Debug("frame unavailable", "error", err)
		return sig, false, nil
	}

	var isPresent bool
	if frame.Seq != 0 && frame.Seq == d.lastSeq {
		isPresent = d.lastPresent
	} else {
		pix, channels, err := d.canvas.Draw(frame)
		if errors.Is(err, presence.ErrRasterUnavailable) {
			return sig, false, err
		}
		if err != nil {
			d.logger.Debug("raster draw failed", "seq", frame.Seq, "error", err)
			return sig, false, nil
		}
		fraction := NonDarkFraction(pix, channels, d.cfg.PixelThreshold)
		isPresent = fraction > d.cfg.PresenceFraction
		d.lastSeq, d.lastPresent = frame.Seq, isPresent
	}

	d.mu.Lock()
	d.samples++
	d.mu.Unlock()

	sig = presence.Signal{
		Timestamp: d.now(),
		Present:   isPresent,
		Source:    presence.KindHeuristic,
	}
	if isPresent {
		sig.FaceCount = 1
	}
	return sig, true, nil
}

func (d *Detector) fail(err error) {
	err = presence.NewError(presence.KindHeuristic, "sample", err)
	d.logger.Error("heuristic detector failed", "error", err)
	select {
	case d.errc <- err:
	default:
	}
}

// Stop halts sampling and releases the raster. No signal is delivered
// after Stop returns. Safe to call repeatedly.
func (d *Detector) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	cancel, done, canvas := d.cancel, d.done, d.canvas
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if canvas != nil {
		return canvas.Close()
	}
	return nil
}

// Samples returns how many presence evaluations have been produced.
func (d *Detector) Samples() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.samples
}
