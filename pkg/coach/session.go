package coach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-focuscoach/pkg/attention"
	"github.com/teslashibe/go-focuscoach/pkg/camera"
	"github.com/teslashibe/go-focuscoach/pkg/notify"
	"github.com/teslashibe/go-focuscoach/pkg/settings"
	"github.com/teslashibe/go-focuscoach/pkg/supervisor"
	"github.com/teslashibe/go-focuscoach/pkg/timer"
	"github.com/teslashibe/go-focuscoach/pkg/web"
)

// pausedAfter is how long a distraction lasts before the coach line
// changes from the distraction nudge to the paused notice.
const pausedAfter = 30 * time.Second

// Errors returned by session control.
var (
	ErrSessionActive  = fmt.Errorf("coach: session already active: %w", web.ErrConflict)
	ErrNoSession      = fmt.Errorf("coach: no active session: %w", web.ErrConflict)
	ErrNotInitialized = errors.New("coach: not initialized")
	ErrShutdown       = errors.New("coach: shut down")
)

var _ web.Controller = (*App)(nil)

// StartSession begins a focus session: attention tracking, the countdown
// and presence detection. The session outlives ctx; it ends with
// StopSession or Shutdown.
func (a *App) StartSession(context.Context) (web.Status, error) {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	if a.store == nil {
		return web.Status{}, ErrNotInitialized
	}
	a.mu.Lock()
	switch {
	case a.shutdown:
		a.mu.Unlock()
		return web.Status{}, ErrShutdown
	case a.session.Active:
		a.mu.Unlock()
		return a.Status(), ErrSessionActive
	}

	name := a.store.Get().UserName
	now := a.now()
	a.session = web.Session{ID: uuid.NewString(), Active: true, StartedAt: now}
	a.message = render(a.messages.Starting, name)
	sup := a.newSupervisor()
	done := make(chan struct{})
	a.sup, a.supDone = sup, done
	id := a.session.ID
	a.mu.Unlock()

	a.machine.SetUserName(name)
	a.timer.SetUserName(name)
	a.machine.Start(now)
	if err := a.timer.Start(a.ctx); err != nil {
		a.logger.Warn("timer start", "error", err)
	}

	go func() {
		defer close(done)
		if err := sup.Initialize(a.ctx); err != nil && !errors.Is(err, supervisor.ErrStopped) && !errors.Is(err, context.Canceled) {
			a.logger.Error("presence tracking unavailable", "error", err)
			a.web.AddLog("error", "Presence tracking unavailable")
		}
	}()

	a.notifier.Post(notify.FocusStarted(name))
	a.metrics.SessionEvent("started")
	a.logger.Info("session started", "session", id)
	a.web.AddLog("session", "Focus session started")

	st := a.Status()
	a.web.PublishStatus(st)
	return st, nil
}

// StopSession ends the current session.
func (a *App) StopSession() (web.Status, error) {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	if a.store == nil {
		return web.Status{}, ErrNotInitialized
	}
	if !a.stopSessionLocked() {
		return a.Status(), ErrNoSession
	}
	st := a.Status()
	a.web.PublishStatus(st)
	return st, nil
}

// stopSessionLocked tears the session down. The caller holds lifecycle.
func (a *App) stopSessionLocked() bool {
	a.mu.Lock()
	if !a.session.Active {
		a.mu.Unlock()
		return false
	}
	id := a.session.ID
	sup, done := a.sup, a.supDone
	a.session = web.Session{}
	a.sup, a.supDone = nil, nil
	a.message = a.idleMessage(a.store.Get().UserName)
	a.mu.Unlock()

	// Detectors first, so no signal reaches the machine after it stops.
	if err := sup.Teardown(); err != nil {
		a.logger.Debug("supervisor teardown", "error", err)
	}
	<-done
	a.timer.Stop()
	a.machine.Stop()
	a.speaker.Stop()

	a.metrics.SessionEvent("stopped")
	a.logger.Info("session stopped", "session", id, "total_away", a.machine.TotalAway())
	a.web.AddLog("session", "Focus session stopped")
	return true
}

func (a *App) newSupervisor() *supervisor.Supervisor {
	return supervisor.New(
		supervisor.Config{InitDelay: a.cfg.Detector.InitDelay},
		a.source,
		a.machine.Observe,
		*a.factories,
		supervisor.WithLogger(a.logger),
		supervisor.WithClock(a.now),
		supervisor.WithObserver(a.metrics),
		supervisor.WithObserver(supervisor.ObserverFunc(a.onSupervisorEvent)),
	)
}

// onSupervisorEvent restarts attention tracking on the replacement
// detector and reports lifecycle changes.
func (a *App) onSupervisorEvent(ev supervisor.Event) {
	data := map[string]any{"kind": ev.Kind, "state": ev.State, "detector": ev.Detector}
	if ev.Err != nil {
		data["error"] = ev.Err.Error()
	}
	a.web.PublishEvent("detector", data)

	switch ev.Kind {
	case supervisor.EventFailover:
		a.resetAttention()
		a.web.AddLog("detector", "Face tracking failed, using fallback presence detection")
	case supervisor.EventActive:
		a.web.AddLog("detector", fmt.Sprintf("Presence detection active (%s)", ev.Detector))
	case supervisor.EventUnavailable:
		a.resetAttention()
		a.web.AddLog("error", "Presence detection unavailable")
	}
}

// resetAttention returns the machine to Checking after the detector was
// lost or replaced. A session paused by the closed episode resumes, since
// no refocus will be reported for it.
func (a *App) resetAttention() {
	a.machine.Reset(a.now())

	a.mu.Lock()
	resumed := a.session.Active && a.session.Paused
	if resumed {
		a.session.Paused = false
		a.message = render(a.messages.Starting, a.store.Get().UserName)
	}
	a.mu.Unlock()

	if resumed {
		a.publishStatus()
	}
}

func (a *App) onDistraction(ev attention.Event) {
	a.mu.Lock()
	if !a.session.Active || a.session.Paused {
		a.mu.Unlock()
		return
	}
	a.session.Paused = true
	name := a.store.Get().UserName
	a.message = render(a.messages.Distracted, name)
	a.mu.Unlock()

	a.notifier.Post(notify.Distracted(name))
	a.web.PublishEvent("attention", ev)
	a.web.AddLog("attention", fmt.Sprintf("Distracted (episode %d)", ev.Episode))
	a.publishStatus()
}

func (a *App) onRefocus(ev attention.Event) {
	a.mu.Lock()
	if !a.session.Active || !a.session.Paused {
		a.mu.Unlock()
		return
	}
	a.session.Paused = false
	a.message = render(a.messages.Refocused, a.store.Get().UserName)
	a.mu.Unlock()

	a.web.PublishEvent("attention", ev)
	a.web.AddLog("attention", fmt.Sprintf("Back after %s", ev.AwayDuration.Round(time.Second)))
	a.publishStatus()
}

// onRecord surfaces machine faults. Per-signal records are left to the
// log and metrics observers.
func (a *App) onRecord(r attention.Record) {
	if r.Kind == attention.RecordSinkPanic && r.Err != nil {
		a.web.AddLog("error", r.Err.Error())
	}
}

// onTimer speaks timer prompts and handles phase changes. It runs on the
// timer goroutine.
func (a *App) onTimer(ev timer.Event) {
	switch ev.Kind {
	case timer.EventTick:
		a.checkPaused()
		a.publishStatus()
	case timer.EventPrompt:
		a.speaker.Speak(ev.Text)
		a.web.AddLog("voice", ev.Text)
		a.promptMessage(ev.Prompt)
	case timer.EventPhaseChange:
		a.phaseChange(ev)
	}
}

func (a *App) promptMessage(p timer.PromptKind) {
	var tmpl string
	switch p {
	case timer.PromptSessionStart, timer.PromptBreakComplete:
		tmpl = a.messages.Starting
	case timer.PromptFocusHalfway:
		tmpl = a.messages.Halfway
	case timer.PromptFiveMinutes:
		tmpl = a.messages.FiveMinutes
	case timer.PromptBreakStart:
		tmpl = a.messages.Complete
	default:
		return
	}
	a.mu.Lock()
	if a.session.Active {
		a.message = render(tmpl, a.store.Get().UserName)
	}
	a.mu.Unlock()
}

func (a *App) phaseChange(ev timer.Event) {
	s := a.store.Get()
	switch ev.To {
	case timer.PhaseBreak:
		saved, err := a.store.RecordCompletion(s.FocusMinutes)
		if err != nil {
			a.logger.Warn("failed to record completed session", "error", err)
		} else {
			s = saved
		}
		a.metrics.SessionEvent("focus_completed")
		a.notifier.Post(notify.FocusComplete(s.UserName))
		a.notifier.Post(notify.BreakStarted(s.UserName, s.BreakMinutes))
		a.web.AddLog("session", fmt.Sprintf("Focus complete (%d total)", s.Stats.CompletedSessions))
	case timer.PhaseFocus:
		a.metrics.SessionEvent("break_completed")
		a.notifier.Post(notify.BreakComplete(s.UserName))
		a.web.AddLog("session", "Break complete")
	}
	a.web.PublishEvent("phase", map[string]any{"from": ev.From, "to": ev.To})
}

// checkPaused swaps the distraction nudge for the paused notice once an
// episode has lasted pausedAfter.
func (a *App) checkPaused() {
	snap := a.machine.Snapshot()
	if !snap.Away() || a.now().Sub(snap.AwayStartedAt) < pausedAfter {
		return
	}
	a.mu.Lock()
	if a.session.Active && a.session.Paused {
		a.message = render(a.messages.Paused, a.store.Get().UserName)
	}
	a.mu.Unlock()
}

func (a *App) onVoiceError(err error) {
	a.metrics.VoiceError(err)
	a.web.AddLog("error", "Voice: "+err.Error())
}

func (a *App) onNotification(msg notify.Notification, err error) {
	result := "sent"
	switch {
	case errors.Is(err, notify.ErrDuplicate):
		result = "suppressed"
	case err != nil:
		result = "failed"
	case !a.notifier.Enabled():
		result = "recorded"
	}
	a.metrics.Notification(string(msg.Kind), result)
	if err == nil {
		a.web.PublishEvent("notification", msg)
	}
}

func (a *App) idleMessage(name string) string {
	if name == "" {
		return render(a.messages.Idle, name)
	}
	return render(a.messages.Welcome, name)
}

func (a *App) publishStatus() {
	a.web.PublishStatus(a.Status())
}

// Status implements web.Controller.
func (a *App) Status() web.Status {
	a.mu.Lock()
	sess, msg, sup := a.session, a.message, a.sup
	a.mu.Unlock()

	snap := a.machine.Snapshot()
	st := web.Status{
		Message:   msg,
		Session:   sess,
		Attention: snap,
		Display:   snap.DisplayStatus(),
		Timer:     web.NewTimer(a.timer.Progress()),
		Tracking:  web.Tracking{State: supervisor.StateUninitialized},
		Voice:     a.speaker.Stats(),
		Stats:     a.store.Get().Stats,
		UpdatedAt: a.now(),
	}
	if sup != nil {
		st.Tracking = web.Tracking{
			State:     sup.State(),
			Detector:  sup.Session(),
			Failovers: sup.Failovers(),
		}
		if err := sup.LastError(); err != nil {
			st.Tracking.Error = err.Error()
		}
	}
	if a.sink != nil {
		st.Audio = a.sink.Stats()
	}
	return st
}

// Settings implements web.Controller.
func (a *App) Settings() settings.Settings {
	return a.store.Get()
}

// UpdateSettings validates, saves and applies next.
func (a *App) UpdateSettings(next settings.Settings) (settings.Settings, error) {
	amb, err := ambientFrom(next.Ambient)
	if err != nil {
		return a.store.Get(), fmt.Errorf("%w: %v", web.ErrInvalid, err)
	}
	prev := a.store.Get()
	saved, err := a.store.Save(next)
	if err != nil {
		return saved, err
	}

	a.machine.SetUserName(saved.UserName)
	a.timer.SetUserName(saved.UserName)
	a.timer.SetDurations(time.Duration(saved.FocusMinutes)*time.Minute, time.Duration(saved.BreakMinutes)*time.Minute)
	a.speaker.SetMuted(!saved.VoiceEnabled)
	if a.sink != nil {
		a.sink.SetAmbient(amb)
	}
	if a.ownProvider && (saved.ElevenLabsKey != prev.ElevenLabsKey || saved.VoiceID != prev.VoiceID) {
		a.replaceProvider(saved)
	}

	a.mu.Lock()
	if !a.session.Active {
		a.message = a.idleMessage(saved.UserName)
	}
	a.mu.Unlock()
	a.publishStatus()
	return saved, nil
}

func (a *App) replaceProvider(s settings.Settings) {
	p, err := buildProvider(s, a.cfg.Voice, a.logger)
	if err != nil {
		a.logger.Warn("keeping previous TTS provider", "error", err)
		return
	}
	a.mu.Lock()
	a.provider = p
	a.mu.Unlock()
	if old := a.speaker.SetProvider(p); old != nil {
		old.Close()
	}
	a.logger.Info("TTS provider updated", "enabled", p != nil)
}

// Camera implements web.Controller.
func (a *App) Camera() camera.Config {
	return a.camera.GetConfig()
}

// UpdateCamera applies a partial camera update.
func (a *App) UpdateCamera(params map[string]any) (camera.Config, error) {
	if err := a.camera.UpdateConfig(params); err != nil {
		return a.camera.GetConfig(), err
	}
	cfg := a.camera.GetConfig()
	a.web.AddLog("info", fmt.Sprintf("Camera set to %dx%d @ %dfps", cfg.Width, cfg.Height, cfg.Framerate))
	return cfg, nil
}
