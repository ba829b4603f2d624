package landmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-focuscoach/pkg/presence"
	"github.com/teslashibe/go-focuscoach/pkg/video"
)

// Config holds landmark detector parameters.
type Config struct {
	Options Options

	// Pump resolution and rate.
	Width  int
	Height int
	FPS    int

	PollInterval time.Duration
	PollAttempts int

	// CameraTimeout bounds the wait for the first frame.
	CameraTimeout time.Duration
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		Options:       DefaultOptions(),
		Width:         480,
		Height:        360,
		FPS:           15,
		PollInterval:  DefaultPollInterval,
		PollAttempts:  DefaultPollAttempts,
		CameraTimeout: 3 * time.Second,
	}
}

// Stats counts pump activity.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Skipped   uint64 `json:"skipped"`
	Results   uint64 `json:"results"`
}

// Detector adapts a landmark Model into a presence.Detector. A pump
// submits frames without waiting for results; while a submission is in
// flight further ticks are skipped.
type Detector struct {
	cfg    Config
	loader Loader
	src    video.Source
	logger *slog.Logger

	mu       sync.Mutex
	onSignal presence.SignalFunc
	model    Model
	cancel   context.CancelFunc
	pumpDone chan struct{}
	started  bool
	stopped  bool

	// deliver is held for reading while a signal is delivered; Stop takes
	// it for writing so no delivery outlives Stop.
	deliver sync.RWMutex
	closed  bool

	sends    sync.WaitGroup
	inflight atomic.Bool
	errc     chan error
	errOnce  sync.Once

	submitted atomic.Uint64
	skipped   atomic.Uint64
	results   atomic.Uint64
}

var _ presence.Detector = (*Detector)(nil)

// New creates a landmark detector.
func New(loader Loader, src video.Source, cfg Config, logger *slog.Logger) *Detector {
	def := DefaultConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	if cfg.CameraTimeout <= 0 {
		cfg.CameraTimeout = def.CameraTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		cfg:    cfg,
		loader: loader,
		src:    src,
		logger: logger.With("component", "landmark"),
		errc:   make(chan error, 1),
	}
}

// Kind implements presence.Detector.
func (d *Detector) Kind() presence.Kind { return presence.KindLandmark }

// OnSignal implements presence.Detector.
func (d *Detector) OnSignal(fn presence.SignalFunc) {
	d.mu.Lock()
	d.onSignal = fn
	d.mu.Unlock()
}

// Err implements presence.Detector.
func (d *Detector) Err() <-chan error { return d.errc }

// Stats returns pump counters.
func (d *Detector) Stats() Stats {
	return Stats{
		Submitted: d.submitted.Load(),
		Skipped:   d.skipped.Load(),
		Results:   d.results.Load(),
	}
}

// Start waits for the model, configures it, checks the camera and starts
// the frame pump. Errors belong to the presence error taxonomy. Stop
// cancels a Start that is still waiting.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return presence.NewError(presence.KindLandmark, "start", errors.New("detector stopped"))
	}
	if d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = true
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	if err := WaitAvailable(ctx, d.loader, d.cfg.PollInterval, d.cfg.PollAttempts); err != nil {
		return presence.NewError(presence.KindLandmark, "wait", err)
	}

	model, err := d.loader.Load()
	if err != nil {
		return presence.NewError(presence.KindLandmark, "load", presence.Wrap(presence.ErrModelConfiguration, err))
	}
	if err := model.SetOptions(ctx, d.cfg.Options); err != nil {
		model.Close()
		return presence.NewError(presence.KindLandmark, "configure", presence.Wrap(presence.ErrModelConfiguration, err))
	}
	model.OnResults(d.handleResults)

	if err := d.awaitCamera(ctx); err != nil {
		model.Close()
		return presence.NewError(presence.KindLandmark, "camera", presence.Wrap(presence.ErrCameraStart, err))
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		model.Close()
		return presence.NewError(presence.KindLandmark, "start", context.Canceled)
	}
	d.model = model
	d.pumpDone = make(chan struct{})
	d.mu.Unlock()

	go d.pump(ctx, model)

	d.logger.Info("landmark detector started",
		"resolution", fmt.Sprintf("%dx%d", d.cfg.Width, d.cfg.Height),
		"fps", d.cfg.FPS,
		"max_faces", d.cfg.Options.MaxNumFaces,
		"min_confidence", d.cfg.Options.MinDetectionConfidence)
	return nil
}

// awaitCamera waits for the source to produce its first frame.
func (d *Detector) awaitCamera(ctx context.Context) error {
	if d.src == nil {
		return errors.New("no video source")
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.CameraTimeout)
	defer cancel()

	if w, ok := d.src.(video.Waiter); ok {
		_, err := w.Wait(ctx, 0)
		return err
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		_, err := d.src.Frame()
		if err == nil {
			return nil
		}
		if !errors.Is(err, video.ErrNoFrame) {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("no frame within %v: %w", d.cfg.CameraTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (d *Detector) pump(ctx context.Context, model Model) {
	defer close(d.pumpDone)

	ticker := time.NewTicker(time.Second / time.Duration(d.cfg.FPS))
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}

		frame, err := d.src.Frame()
		switch {
		case errors.Is(err, video.ErrNoFrame):
			continue
		case err != nil:
			d.fail("pump", presence.Wrap(presence.ErrCameraStart, err))
			return
		}
		if frame.Seq != 0 && frame.Seq == lastSeq {
			continue
		}
		if !d.inflight.CompareAndSwap(false, true) {
			d.skipped.Add(1)
			continue
		}
		lastSeq = frame.Seq
		d.submitted.Add(1)

		d.sends.Add(1)
		go func(in Input) {
			defer d.sends.Done()
			defer d.inflight.Store(false)
			if err := model.Send(ctx, in); err != nil && ctx.Err() == nil {
				d.fail("send", presence.Wrap(presence.ErrFrameSubmission, err))
			}
		}(Input{Frame: frame, Width: d.cfg.Width, Height: d.cfg.Height})
	}
}

func (d *Detector) handleResults(res Results) {
	d.deliver.RLock()
	defer d.deliver.RUnlock()
	if d.closed {
		return
	}
	d.results.Add(1)

	d.mu.Lock()
	fn := d.onSignal
	d.mu.Unlock()
	if fn == nil {
		return
	}

	ts := res.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	n := len(res.Faces)
	fn(presence.Signal{
		Timestamp: ts,
		Present:   n > 0,
		FaceCount: n,
		Source:    presence.KindLandmark,
	})
}

// fail reports the first runtime failure and stops further submissions.
func (d *Detector) fail(op string, err error) {
	d.errOnce.Do(func() {
		err = presence.NewError(presence.KindLandmark, op, err)
		d.logger.Warn("landmark detector failed", "error", err)
		d.mu.Lock()
		cancel := d.cancel
		d.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		d.errc <- err
	})
}

// Stop cancels any pending Start, stops the pump, waits for in-flight
// submissions and closes the model. Safe to call repeatedly.
func (d *Detector) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	cancel, pumpDone, model := d.cancel, d.pumpDone, d.model
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if pumpDone != nil {
		<-pumpDone
	}
	d.sends.Wait()

	d.deliver.Lock()
	d.closed = true
	d.deliver.Unlock()

	if model != nil {
		return model.Close()
	}
	return nil
}
