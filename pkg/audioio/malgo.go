package audioio

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// MalgoSink plays through the default output device using miniaudio.
type MalgoSink struct {
	cfg    Config
	mixer  *Mixer
	logger *slog.Logger

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	running bool
	closed  bool
}

var _ Sink = (*MalgoSink)(nil)

// NewMalgoSink creates a stopped sink.
func NewMalgoSink(cfg Config, logger *slog.Logger) (*MalgoSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MalgoSink{
		cfg:    cfg,
		mixer:  NewMixer(cfg.SampleRate, cfg.Channels),
		logger: logger.With("component", "audio_sink", "backend", "malgo"),
	}, nil
}

func backend() malgo.Backend {
	switch runtime.GOOS {
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendAlsa
	}
}

// Start opens the playback device.
func (s *MalgoSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.running {
		return nil
	}

	actx, err := malgo.InitContext([]malgo.Backend{backend()}, malgo.ContextConfig{}, func(msg string) {
		s.logger.Debug("malgo", "msg", msg)
	})
	if err != nil {
		return fmt.Errorf("audioio: init context: %w", err)
	}

	dcfg := malgo.DefaultDeviceConfig(malgo.Playback)
	dcfg.Playback.Format = malgo.FormatS16
	dcfg.Playback.Channels = uint32(s.cfg.Channels)
	dcfg.SampleRate = uint32(s.cfg.SampleRate)
	dcfg.PeriodSizeInFrames = uint32(s.cfg.BufferSize())
	dcfg.Alsa.NoMMap = 1

	channels := s.cfg.Channels
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frames uint32) {
			n := int(frames) * channels
			if n == 0 || len(out) < n*2 {
				return
			}
			samples := unsafe.Slice((*int16)(unsafe.Pointer(&out[0])), n)
			s.mixer.Fill(samples)
		},
	}

	device, err := malgo.InitDevice(actx.Context, dcfg, callbacks)
	if err != nil {
		_ = actx.Uninit()
		actx.Free()
		return fmt.Errorf("audioio: init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = actx.Uninit()
		actx.Free()
		return fmt.Errorf("audioio: start device: %w", err)
	}

	s.ctx, s.device, s.running = actx, device, true
	s.logger.Info("playback started", "sample_rate", s.cfg.SampleRate, "channels", s.cfg.Channels)
	return nil
}

// Stop closes the device.
func (s *MalgoSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *MalgoSink) stopLocked() error {
	if !s.running {
		return nil
	}
	s.running = false
	s.mixer.Clear()

	var err error
	if s.device != nil {
		err = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx.Free()
		s.ctx = nil
	}
	s.logger.Info("playback stopped")
	return err
}

// Play replaces the current clip and waits for it.
func (s *MalgoSink) Play(ctx context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	return play(ctx, s.mixer, chunk)
}

// Clear interrupts the current clip.
func (s *MalgoSink) Clear() error {
	s.mixer.Clear()
	return nil
}

func (s *MalgoSink) SetAmbient(a Ambient) { s.mixer.SetAmbient(a) }
func (s *MalgoSink) Ambient() Ambient     { return s.mixer.Ambient() }
func (s *MalgoSink) Config() Config       { return s.cfg }
func (s *MalgoSink) Name() string         { return "malgo" }

// Stats returns playback counters.
func (s *MalgoSink) Stats() SinkStats {
	s.mu.Lock()
	st := SinkStats{Running: s.running, Backend: s.Name()}
	s.mu.Unlock()
	s.mixer.stats(&st)
	return st
}

// Close stops the sink permanently.
func (s *MalgoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.stopLocked()
}

// probeMalgo checks that a playback context can be created.
func probeMalgo() error {
	actx, err := malgo.InitContext([]malgo.Backend{backend()}, malgo.ContextConfig{}, nil)
	if err != nil {
		return err
	}
	_ = actx.Uninit()
	actx.Free()
	return nil
}
