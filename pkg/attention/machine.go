package attention

import (
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/go-focuscoach/pkg/presence"
)

// Machine is the attention state machine. Signals are processed one at a
// time to completion; side effects run after the state has committed.
type Machine struct {
	cfg       Config
	voice     VoiceSink
	callbacks Callbacks
	observers []Observer
	now       func() time.Time

	// serial orders whole Observe/Start/Stop calls, mu guards the fields below.
	serial sync.Mutex
	mu     sync.RWMutex

	state     State
	active    bool
	present   bool
	faceCount int
	episodes  int
	signals   uint64
}

// New creates a machine. voice may be nil.
func New(cfg Config, voice VoiceSink, callbacks Callbacks, observers ...Observer) *Machine {
	cfg.applyDefaults()
	return &Machine{
		cfg:       cfg,
		voice:     voice,
		callbacks: callbacks,
		observers: observers,
		now:       time.Now,
		state:     State{Status: StatusChecking},
	}
}

// SetClock replaces the clock used for signals without a timestamp.
func (m *Machine) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// SetUserName changes the name used in spoken messages.
func (m *Machine) SetUserName(name string) {
	m.mu.Lock()
	m.cfg.UserName = name
	m.mu.Unlock()
}

// Config returns the machine configuration.
func (m *Machine) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Start activates the session. Away accounting starts fresh and the
// start time counts as the last moment of presence.
func (m *Machine) Start(now time.Time) {
	m.serial.Lock()
	defer m.serial.Unlock()

	m.mu.Lock()
	m.active = true
	m.state = State{Status: StatusChecking, LastPresenceAt: now}
	m.present = false
	m.faceCount = 0
	m.episodes = 0
	m.signals = 0
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.emit(Record{Kind: RecordStart, At: now, Snapshot: snap})
}

// Stop deactivates the session and resets to Checking. No events are
// emitted after Stop returns. Safe to call repeatedly.
func (m *Machine) Stop() {
	m.serial.Lock()
	defer m.serial.Unlock()

	m.mu.Lock()
	wasActive := m.active
	m.active = false
	total := m.state.TotalAway
	m.state = State{Status: StatusChecking, TotalAway: total}
	m.present = false
	m.faceCount = 0
	snap := m.snapshotLocked()
	now := m.now()
	m.mu.Unlock()

	if wasActive {
		m.emit(Record{Kind: RecordStop, At: now, Snapshot: snap})
	}
}

// Reset returns an active session to Checking after the detector was
// replaced. An open episode is closed silently and its time is kept in
// the session total.
func (m *Machine) Reset(now time.Time) {
	m.serial.Lock()
	defer m.serial.Unlock()

	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	total := m.state.TotalAway
	if m.state.Away() && now.After(m.state.AwayStartedAt) {
		total += now.Sub(m.state.AwayStartedAt)
	}
	m.state = State{
		Status:                  StatusChecking,
		LastPresenceAt:          now,
		TotalAway:               total,
		LastTransitionMessageAt: m.state.LastTransitionMessageAt,
	}
	m.present = false
	m.faceCount = 0
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.emit(Record{Kind: RecordReset, At: now, Snapshot: snap})
}

// Active reports whether a session is running.
func (m *Machine) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// TotalAway returns the aggregate away time of the session, excluding any
// open episode.
func (m *Machine) TotalAway() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.TotalAway
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		State:     m.state,
		Active:    m.active,
		Present:   m.present,
		FaceCount: m.faceCount,
		Pending:   m.active && !m.present && !m.state.Away() && m.signals > 0,
		Episodes:  m.episodes,
		Signals:   m.signals,
	}
}

// effect is what a signal asks the machine to do once state is committed.
type effect struct {
	record   RecordKind
	event    *Event
	speak    string
	callback func(Event)
}

// Observe applies one presence signal. Signals are ignored while the
// session is inactive. Observe must not be called from a callback.
func (m *Machine) Observe(sig presence.Signal) {
	m.serial.Lock()
	defer m.serial.Unlock()

	m.mu.Lock()
	now := sig.Timestamp
	if now.IsZero() {
		now = m.now()
	}
	if !m.active {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.emit(Record{Kind: RecordIgnored, At: now, Snapshot: snap})
		return
	}

	m.signals++
	var eff effect
	if sig.Present {
		eff = m.presentLocked(now, sig.FaceCount)
	} else {
		eff = m.absentLocked(now)
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if eff.speak != "" {
		m.speak(now, eff.speak, snap)
	}
	if eff.callback != nil && eff.event != nil {
		m.invoke(now, eff.callback, *eff.event, snap)
	}
	m.emit(Record{Kind: eff.record, At: now, Snapshot: snap, Event: eff.event})
}

func (m *Machine) presentLocked(now time.Time, faces int) effect {
	if faces < 1 {
		faces = 1
	}
	m.present = true
	m.faceCount = faces
	m.state.LastPresenceAt = now

	if !m.state.Away() {
		m.state.Status = StatusFocused
		return effect{record: RecordSignal}
	}

	away := now.Sub(m.state.AwayStartedAt)
	if away < 0 {
		away = 0
	}
	m.state.AwayStartedAt = time.Time{}
	m.state.TotalAway += away
	m.state.Status = StatusFocused

	announce := now.Sub(m.state.LastTransitionMessageAt) > m.cfg.RefocusCooldown
	ev := &Event{
		Kind:         EventRefocus,
		At:           now,
		Episode:      m.episodes,
		AwayDuration: away,
		TotalAway:    m.state.TotalAway,
		Announced:    announce,
	}

	eff := effect{record: RecordRefocus, event: ev, callback: m.callbacks.OnRefocus}
	if announce {
		ev.Message = Render(m.cfg.Messages.Refocused, m.cfg.UserName)
		eff.speak = ev.Message
		m.state.LastTransitionMessageAt = now
	} else {
		eff.record = RecordSilentRefocus
		if m.cfg.CooldownSilencesCallback {
			eff.callback = nil
		}
	}
	return eff
}

func (m *Machine) absentLocked(now time.Time) effect {
	m.present = false
	m.faceCount = 0

	if m.state.Away() {
		return effect{record: RecordSignal}
	}

	since := now.Sub(m.state.LastPresenceAt)
	if since <= m.cfg.DistractionThreshold {
		return effect{record: RecordPending}
	}

	// The episode began when the threshold was crossed, not when the
	// crossing was first observed.
	onset := m.state.LastPresenceAt.Add(m.cfg.DistractionThreshold)
	m.episodes++
	m.state.Status = StatusDistracted
	m.state.AwayStartedAt = onset
	m.state.LastTransitionMessageAt = now

	msg := Render(m.cfg.Messages.Distracted, m.cfg.UserName)
	ev := &Event{
		Kind:              EventDistraction,
		At:                now,
		Episode:           m.episodes,
		SinceLastPresence: since,
		TotalAway:         m.state.TotalAway,
		Announced:         true,
		Message:           msg,
	}
	return effect{record: RecordDistraction, event: ev, speak: msg, callback: m.callbacks.OnDistraction}
}

func (m *Machine) speak(now time.Time, text string, snap Snapshot) {
	if m.voice == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.emit(Record{Kind: RecordSinkPanic, At: now, Snapshot: snap, Err: fmt.Errorf("voice sink: %v", r)})
		}
	}()
	m.voice.Speak(text)
}

func (m *Machine) invoke(now time.Time, fn func(Event), ev Event, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			m.emit(Record{Kind: RecordSinkPanic, At: now, Snapshot: snap, Event: &ev, Err: fmt.Errorf("%s callback: %v", ev.Kind, r)})
		}
	}()
	fn(ev)
}

func (m *Machine) emit(r Record) {
	for _, o := range m.observers {
		o.Observe(r)
	}
}
