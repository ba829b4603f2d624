// Package supervisor owns the active presence detector. It brings up the
// landmark detector and falls back to the heuristic detector, once, when
// the landmark detector fails to start or fails at runtime.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-focuscoach/pkg/presence"
	"github.com/teslashibe/go-focuscoach/pkg/video"
)

// State is the supervisor lifecycle state.
type State string

const (
	StateUninitialized   State = "uninitialized"
	StateInitializing    State = "initializing"
	StateActiveLandmark  State = "active_landmark"
	StateActiveHeuristic State = "active_heuristic"
	StateUnavailable     State = "unavailable"
	StateStopped         State = "stopped"
)

func (s State) String() string { return string(s) }

// Tracking reports whether a detector is producing signals.
func (s State) Tracking() bool {
	return s == StateActiveLandmark || s == StateActiveHeuristic
}

var (
	// ErrTrackingUnavailable means neither detector could run. Attention
	// stays indeterminate for the rest of the session.
	ErrTrackingUnavailable = errors.New("supervisor: tracking unavailable")

	// ErrStopped is returned by Initialize after Teardown.
	ErrStopped = errors.New("supervisor: stopped")

	errNoLandmark = errors.New("no landmark detector configured")
)

// DefaultInitDelay gives the camera time to warm up before the landmark
// model is brought up.
const DefaultInitDelay = time.Second

// Config holds supervisor parameters. Model polling and pump parameters
// belong to the detectors the factories build.
type Config struct {
	InitDelay time.Duration
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{InitDelay: DefaultInitDelay}
}

// Factory builds a detector reading from src.
type Factory func(src video.Source) (presence.Detector, error)

// Factories build the two detector variants. Landmark may be nil, in
// which case the heuristic detector is started directly.
type Factories struct {
	Landmark  Factory
	Heuristic Factory
}

// EventKind identifies a lifecycle event.
type EventKind string

const (
	EventInitializing EventKind = "initializing"
	EventActive       EventKind = "active"
	EventFailover     EventKind = "failover"
	EventUnavailable  EventKind = "unavailable"
	EventStopped      EventKind = "stopped"
)

// Event describes a lifecycle change.
type Event struct {
	Kind     EventKind
	At       time.Time
	State    State
	Detector presence.Kind
	Err      error
}

// Observer receives lifecycle events. Observers run synchronously and
// must not call back into the supervisor.
type Observer interface {
	OnSupervisorEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnSupervisorEvent implements Observer.
func (f ObserverFunc) OnSupervisorEvent(ev Event) { f(ev) }

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithObserver adds a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(s *Supervisor) { s.observers = append(s.observers, o) }
}

// WithClock sets the clock used for session and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// Supervisor owns exactly one detector session at a time and forwards its
// signals to a single sink.
type Supervisor struct {
	cfg       Config
	src       video.Source
	sink      presence.SignalFunc
	factories Factories
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	state     State
	session   presence.Session
	active    presence.Detector
	cancel    context.CancelFunc
	failovers int
	lastErr   error

	// wg tracks Initialize and the watch goroutine so Teardown can wait
	// for both.
	wg sync.WaitGroup
}

// New creates a supervisor. Signals from the active detector are passed
// to sink.
func New(cfg Config, src video.Source, sink presence.SignalFunc, factories Factories, opts ...Option) *Supervisor {
	if cfg.InitDelay < 0 {
		cfg.InitDelay = 0
	}
	s := &Supervisor{
		cfg:       cfg,
		src:       src,
		sink:      sink,
		factories: factories,
		logger:    slog.Default(),
		now:       time.Now,
		state:     StateUninitialized,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "supervisor")
	return s
}

// State returns the lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Session returns the current detector session.
func (s *Supervisor) Session() presence.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Failovers returns how many times the supervisor downgraded to the
// heuristic detector. It is at most one.
func (s *Supervisor) Failovers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failovers
}

// LastError returns the most recent detector error, if any.
func (s *Supervisor) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Initialize waits out the warm-up delay and brings up a detector. It
// returns nil once a detector is running, including after a failover,
// and ErrTrackingUnavailable when the heuristic detector cannot start
// either. Teardown cancels a pending Initialize.
func (s *Supervisor) Initialize(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateStopped:
		s.mu.Unlock()
		return ErrStopped
	case StateUninitialized:
	default:
		s.mu.Unlock()
		return fmt.Errorf("supervisor: already %s", s.state)
	}
	s.state = StateInitializing
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.emit(Event{Kind: EventInitializing, State: StateInitializing})

	if s.cfg.InitDelay > 0 {
		timer := time.NewTimer(s.cfg.InitDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return s.interrupted(ctx)
		case <-timer.C:
		}
	}

	err := errNoLandmark
	if s.factories.Landmark != nil {
		var det presence.Detector
		det, err = s.factories.Landmark(s.src)
		if err == nil {
			err = s.start(ctx, det)
		}
		if err == nil {
			s.wg.Add(1)
			go s.watch(ctx, det)
			return nil
		}
		if ctx.Err() != nil {
			return s.interrupted(ctx)
		}
	}
	return s.fallback(ctx, err)
}

// start starts det as the active detector and promotes it once running.
func (s *Supervisor) start(ctx context.Context, det presence.Detector) error {
	det.OnSignal(s.forward(det))

	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		det.Stop()
		return ErrStopped
	}
	s.active = det
	s.mu.Unlock()

	if err := det.Start(ctx); err != nil {
		s.mu.Lock()
		if s.active == det {
			s.active = nil
		}
		s.mu.Unlock()
		det.Stop()
		return err
	}

	state := StateActiveLandmark
	if det.Kind() == presence.KindHeuristic {
		state = StateActiveHeuristic
	}

	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		det.Stop()
		return ErrStopped
	}
	s.state = state
	s.session = presence.Session{
		Kind:        det.Kind(),
		Initialized: true,
		StartedAt:   s.now(),
	}
	s.mu.Unlock()

	s.logger.Info("detector active", "detector", det.Kind())
	s.emit(Event{Kind: EventActive, State: state, Detector: det.Kind()})
	return nil
}

// fallback replaces the failed landmark session with a heuristic one.
// There is no way back to the landmark detector.
func (s *Supervisor) fallback(ctx context.Context, cause error) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if !errors.Is(cause, errNoLandmark) {
		s.failovers++
		s.lastErr = cause
	}
	s.state = StateInitializing
	s.session = presence.Session{Kind: presence.KindHeuristic}
	s.mu.Unlock()

	if !errors.Is(cause, errNoLandmark) {
		s.logger.Warn("landmark detector failed, switching to heuristic", "error", cause)
		s.emit(Event{Kind: EventFailover, State: StateInitializing, Detector: presence.KindLandmark, Err: cause})
	}

	var err error
	var det presence.Detector
	if s.factories.Heuristic == nil {
		err = errors.New("no heuristic detector configured")
	} else if det, err = s.factories.Heuristic(s.src); err == nil {
		err = s.start(ctx, det)
	}
	if err == nil {
		s.wg.Add(1)
		go s.watch(ctx, det)
		return nil
	}
	if errors.Is(err, ErrStopped) || ctx.Err() != nil {
		return s.interrupted(ctx)
	}
	return s.unavailable(err)
}

// unavailable enters the terminal degraded mode.
func (s *Supervisor) unavailable(cause error) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.state = StateUnavailable
	s.session = presence.Session{Kind: presence.KindHeuristic, Failed: true}
	s.lastErr = cause
	s.mu.Unlock()

	s.logger.Error("tracking unavailable", "error", cause)
	s.emit(Event{Kind: EventUnavailable, State: StateUnavailable, Detector: presence.KindHeuristic, Err: cause})
	return fmt.Errorf("%w: %w", ErrTrackingUnavailable, cause)
}

func (s *Supervisor) interrupted(ctx context.Context) error {
	if s.State() == StateStopped {
		return ErrStopped
	}
	return ctx.Err()
}

// watch waits for runtime failures of the active detector.
func (s *Supervisor) watch(ctx context.Context, det presence.Detector) {
	defer s.wg.Done()

	select {
	case <-ctx.Done():
		return
	case err := <-det.Err():
		s.retire(det)
		if ctx.Err() != nil {
			return
		}
		if det.Kind() == presence.KindLandmark {
			s.fallback(ctx, err)
			return
		}
		s.unavailable(err)
	}
}

// retire stops det and stops forwarding its signals.
func (s *Supervisor) retire(det presence.Detector) {
	s.mu.Lock()
	if s.active == det {
		s.active = nil
	}
	s.mu.Unlock()
	if err := det.Stop(); err != nil {
		s.logger.Debug("detector stop", "detector", det.Kind(), "error", err)
	}
}

// forward passes det's signals to the sink while det is the active
// detector.
func (s *Supervisor) forward(det presence.Detector) presence.SignalFunc {
	return func(sig presence.Signal) {
		s.mu.Lock()
		current := s.active == det
		s.mu.Unlock()
		if current && s.sink != nil {
			s.sink(sig)
		}
	}
}

// Teardown cancels initialization, stops the active detector and waits
// for supervisor goroutines. No signal reaches the sink after it
// returns. Safe to call repeatedly.
func (s *Supervisor) Teardown() error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopped
	cancel, det := s.cancel, s.active
	s.active = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if det != nil {
		err = det.Stop()
	}
	s.wg.Wait()

	s.logger.Info("supervisor stopped")
	s.emit(Event{Kind: EventStopped, State: StateStopped})
	return err
}

func (s *Supervisor) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	for _, o := range s.observers {
		o.OnSupervisorEvent(ev)
	}
}
