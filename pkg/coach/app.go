// Package coach wires the focus coach together: webcam, presence
// supervisor, attention machine, Pomodoro timer, voice, notifications,
// settings, metrics and the dashboard.
package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-focuscoach/internal/config"
	"github.com/teslashibe/go-focuscoach/internal/log"
	"github.com/teslashibe/go-focuscoach/pkg/attention"
	"github.com/teslashibe/go-focuscoach/pkg/audioio"
	"github.com/teslashibe/go-focuscoach/pkg/camera"
	"github.com/teslashibe/go-focuscoach/pkg/metrics"
	"github.com/teslashibe/go-focuscoach/pkg/notify"
	"github.com/teslashibe/go-focuscoach/pkg/presence/landmark"
	"github.com/teslashibe/go-focuscoach/pkg/settings"
	"github.com/teslashibe/go-focuscoach/pkg/supervisor"
	"github.com/teslashibe/go-focuscoach/pkg/timer"
	"github.com/teslashibe/go-focuscoach/pkg/tts"
	"github.com/teslashibe/go-focuscoach/pkg/video"
	"github.com/teslashibe/go-focuscoach/pkg/voice"
	"github.com/teslashibe/go-focuscoach/pkg/web"
)

// cameraStreamInterval paces frames sent to the dashboard (10 fps).
const cameraStreamInterval = 100 * time.Millisecond

// Option configures an App. Options mostly replace hardware-backed
// components.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithSource replaces the webcam.
func WithSource(src video.Source) Option {
	return func(a *App) { a.source = src }
}

// WithFactories replaces the landmark and heuristic detector factories.
func WithFactories(f supervisor.Factories) Option {
	return func(a *App) { a.factories = &f }
}

// WithProvider replaces the TTS providers built from the API keys.
func WithProvider(p tts.Provider) Option {
	return func(a *App) { a.provider, a.ownProvider = p, false }
}

// WithSink replaces the sound card sink.
func WithSink(s audioio.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithNotifySender replaces the shoutrrr router.
func WithNotifySender(s notify.Sender) Option {
	return func(a *App) { a.sender = s }
}

// WithTimerTicker replaces the wall-clock countdown ticker.
func WithTimerTicker(t timer.Ticker) Option {
	return func(a *App) { a.ticker = t }
}

// WithRegistry registers metrics on reg.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// WithClock sets the time source for sessions and attention.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// App is the focus coach application.
type App struct {
	cfg    config.Config
	logger *slog.Logger
	now    func() time.Time

	// Injected or built by Init.
	source      video.Source
	factories   *supervisor.Factories
	provider    tts.Provider
	ownProvider bool
	sink        audioio.Sink
	sender      notify.Sender
	ticker      timer.Ticker
	registry    *prometheus.Registry

	store    *settings.Store
	camera   *camera.Manager
	webcam   *video.Webcam
	fetcher  *landmark.Fetcher
	machine  *attention.Machine
	timer    *timer.Timer
	speaker  *voice.Speaker
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	web      *web.Server
	messages Messages

	// ctx bounds session goroutines; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	// lifecycle serializes StartSession, StopSession and Shutdown.
	lifecycle sync.Mutex

	mu       sync.Mutex
	session  web.Session
	message  string
	sup      *supervisor.Supervisor
	supDone  chan struct{}
	shutdown bool
}

// New validates cfg and creates an App. Call Init before Run.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		cfg:         cfg,
		logger:      log.L(),
		now:         time.Now,
		ownProvider: true,
		messages:    DefaultMessages(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "coach")
	a.ctx, a.cancel = context.WithCancel(context.Background())
	return a, nil
}

// Init builds every component. Missing hardware or API keys degrade
// features instead of failing.
func (a *App) Init() error {
	store, err := settings.Open(filepath.Join(a.cfg.DataDir, "settings.json"), settingsDefaults(a.cfg))
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	a.store = store
	s := store.Get()

	a.metrics = metrics.New(a.registry)

	a.initCamera()
	a.initAudio(s)
	if err := a.initVoice(s); err != nil {
		return fmt.Errorf("voice: %w", err)
	}

	a.notifier, err = a.newNotifier()
	if err != nil {
		return err
	}

	a.machine = attention.New(attention.Config{
		DistractionThreshold: a.cfg.Attention.DistractionThreshold,
		RefocusCooldown:      a.cfg.Attention.RefocusCooldown,
		UserName:             s.UserName,
	}, a.speaker, attention.Callbacks{
		OnDistraction: a.onDistraction,
		OnRefocus:     a.onRefocus,
	}, attention.NewLogObserver(a.logger), a.metrics, attention.ObserverFunc(a.onRecord))
	a.machine.SetClock(a.now)

	topts := []timer.Option{timer.WithLogger(a.logger)}
	if a.ticker != nil {
		topts = append(topts, timer.WithTicker(a.ticker))
	}
	a.timer = timer.New(timer.Config{
		Focus:    time.Duration(s.FocusMinutes) * time.Minute,
		Break:    time.Duration(s.BreakMinutes) * time.Minute,
		UserName: s.UserName,
	}, a.onTimer, topts...)

	if a.factories == nil {
		if a.cfg.Detector.FetchModel {
			a.fetcher = landmark.NewFetcher(a.cfg.Detector.ModelPath, a.cfg.Detector.ModelURL, a.logger)
		}
		f := a.detectorFactories()
		a.factories = &f
	}

	a.web = web.New(a, web.WithLogger(a.logger), web.WithMetrics(a.metrics.Handler()))

	a.message = a.idleMessage(s.UserName)
	a.logger.Info("focus coach initialized",
		"user", s.UserName,
		"focus_minutes", s.FocusMinutes,
		"break_minutes", s.BreakMinutes,
		"voice", a.provider != nil,
		"audio", a.sink != nil,
		"notifications", a.notifier.Enabled(),
	)
	return nil
}

func settingsDefaults(cfg config.Config) settings.Settings {
	s := settings.Defaults()
	s.UserName = cfg.UserName
	s.FocusMinutes = cfg.Timer.FocusMinutes
	s.BreakMinutes = cfg.Timer.BreakMinutes
	s.VoiceEnabled = cfg.Voice.Enabled
	if cfg.Voice.VoiceID != "" {
		s.VoiceID = cfg.Voice.VoiceID
	}
	s.Ambient = settings.Ambient{Sound: cfg.Ambient.Sound, Volume: cfg.Ambient.Volume}
	return s
}

func (a *App) initCamera() {
	c := a.cfg.Camera
	cfg := camera.DefaultConfig()
	cfg.Device, cfg.Width, cfg.Height = c.Device, c.Width, c.Height
	if c.Framerate > 0 {
		cfg.Framerate = c.Framerate
	}
	if c.Quality > 0 {
		cfg.Quality = c.Quality
	}
	a.camera = camera.NewManager(cfg)

	if a.source != nil {
		return
	}
	a.webcam = video.NewWebcam(cfg, a.logger)
	a.source = a.webcam
	a.camera.OnConfigChange = a.webcam.Apply
}

func (a *App) initAudio(s settings.Settings) {
	if a.sink == nil && a.cfg.Voice.Playback {
		cfg := audioio.DefaultConfig()
		if a.cfg.Voice.SampleRate > 0 {
			cfg.SampleRate = a.cfg.Voice.SampleRate
		}
		sink, err := audioio.NewSink(cfg, a.logger)
		if err != nil {
			a.logger.Warn("audio output unavailable, prompts will not be played", "error", err)
		} else {
			a.sink = sink
		}
	}
	if a.sink == nil {
		return
	}
	if amb, err := ambientFrom(s.Ambient); err == nil {
		a.sink.SetAmbient(amb)
	} else {
		a.logger.Warn("ignoring ambient setting", "error", err)
	}
}

func ambientFrom(s settings.Ambient) (audioio.Ambient, error) {
	kind, err := audioio.ParseAmbientKind(s.Sound)
	if err != nil {
		return audioio.Ambient{}, err
	}
	return audioio.Ambient{Kind: kind, Volume: s.Volume}, nil
}

func (a *App) initVoice(s settings.Settings) error {
	if a.ownProvider {
		p, err := buildProvider(s, a.cfg.Voice, a.logger)
		if err != nil {
			return err
		}
		a.provider = p
	}
	if a.provider == nil {
		a.logger.Warn("no TTS provider configured, voice prompts are disabled")
	}

	collector := voice.NewMetricsCollector()
	collector.OnUpdate(a.metrics.ObserveUtterance)

	a.speaker = voice.New(a.provider, a.sink, voice.Config{Muted: !s.VoiceEnabled},
		voice.WithLogger(a.logger),
		voice.WithMetrics(collector),
		voice.WithErrorHandler(a.onVoiceError),
	)
	return nil
}

// buildProvider chains ElevenLabs and OpenAI, in that order, for the keys
// that are set. It returns nil when neither key is.
func buildProvider(s settings.Settings, cfg config.Voice, logger *slog.Logger) (tts.Provider, error) {
	var providers []tts.Provider

	key := s.ElevenLabsKey
	if key == "" {
		key = cfg.ElevenLabsKey
	}
	if key != "" {
		opts := []tts.Option{tts.WithAPIKey(key), tts.WithLogger(logger)}
		if s.VoiceID != "" {
			opts = append(opts, tts.WithVoice(s.VoiceID))
		}
		if cfg.Model != "" {
			opts = append(opts, tts.WithModel(cfg.Model))
		}
		el, err := tts.NewElevenLabs(opts...)
		if err != nil {
			return nil, err
		}
		providers = append(providers, el)
	}
	if cfg.OpenAIKey != "" {
		oa, err := tts.NewOpenAI(tts.WithAPIKey(cfg.OpenAIKey), tts.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		providers = append(providers, oa)
	}

	switch len(providers) {
	case 0:
		return nil, nil
	case 1:
		return providers[0], nil
	}
	return tts.NewChainWithLogger(logger, providers...)
}

func (a *App) newNotifier() (*notify.Notifier, error) {
	cfg := notify.DefaultConfig()
	cfg.URLs = a.cfg.Notify.URLs
	if a.cfg.Notify.DedupeWindow > 0 {
		cfg.DedupeWindow = a.cfg.Notify.DedupeWindow
	}
	opts := []notify.Option{
		notify.WithLogger(a.logger),
		notify.WithClock(a.now),
		notify.WithResultHandler(a.onNotification),
	}
	if a.sender != nil {
		opts = append(opts, notify.WithSender(a.sender))
	}
	return notify.New(cfg, opts...)
}

// Run starts capture, playback and the dashboard, and blocks until ctx is
// cancelled or the dashboard fails.
func (a *App) Run(ctx context.Context) error {
	if a.store == nil {
		return ErrNotInitialized
	}
	g, ctx := errgroup.WithContext(ctx)

	if a.sink != nil {
		if err := a.sink.Start(ctx); err != nil {
			a.logger.Warn("audio output failed to start", "error", err)
			a.web.AddLog("error", "Audio output unavailable")
		}
	}
	if a.fetcher != nil {
		a.fetcher.Start(ctx)
	}
	if a.webcam != nil {
		if err := a.webcam.Start(ctx); err != nil {
			a.logger.Warn("camera failed to start", "error", err)
			a.web.AddLog("error", "Camera unavailable: "+err.Error())
		}
	}

	if a.cfg.Server.Enabled {
		g.Go(func() error { return a.web.Run(ctx, a.cfg.Server.Addr) })
	}
	g.Go(func() error {
		a.streamCamera(ctx)
		return nil
	})

	a.web.AddLog("info", "Focus coach started")
	a.publishStatus()

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// streamCamera forwards new frames to dashboard clients.
func (a *App) streamCamera(ctx context.Context) {
	ticker := time.NewTicker(cameraStreamInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if a.web.CameraClients() == 0 {
			continue
		}
		f, err := a.source.Frame()
		if err != nil || f.Seq == last {
			continue
		}
		last = f.Seq
		a.web.SendCameraFrame(f.JPEG)
	}
}

// Shutdown ends any session and releases every component. Safe to call
// more than once.
func (a *App) Shutdown() {
	a.lifecycle.Lock()
	a.mu.Lock()
	if a.shutdown {
		a.mu.Unlock()
		a.lifecycle.Unlock()
		return
	}
	a.mu.Unlock()
	if a.store != nil {
		a.stopSessionLocked()
	}
	a.mu.Lock()
	a.shutdown = true
	a.mu.Unlock()
	a.lifecycle.Unlock()

	a.cancel()
	if a.speaker != nil {
		a.speaker.Close()
	}
	if a.ownProvider && a.provider != nil {
		a.provider.Close()
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.logger.Debug("sink close", "error", err)
		}
	}
	if a.notifier != nil {
		a.notifier.Close()
	}
	if a.webcam != nil {
		a.webcam.Close()
	}
	a.logger.Info("focus coach stopped")
}

// Web returns the dashboard server.
func (a *App) Web() *web.Server {
	return a.web
}

// Metrics returns the Prometheus metrics.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}
