// Package timer implements the Pomodoro countdown: a focus phase followed
// by a break, repeating, with spoken prompts at fixed points.
package timer

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Phase is the countdown phase.
type Phase string

const (
	PhaseFocus Phase = "focus"
	PhaseBreak Phase = "break"
)

func (p Phase) String() string { return string(p) }

// PromptKind identifies a timer prompt.
type PromptKind string

const (
	PromptSessionStart  PromptKind = "session_start"
	PromptFocusHalfway  PromptKind = "focus_halfway"
	PromptFiveMinutes   PromptKind = "five_minutes"
	PromptBreakStart    PromptKind = "break_start"
	PromptBreakHalfway  PromptKind = "break_halfway"
	PromptBreakComplete PromptKind = "break_complete"
)

// Defaults.
const (
	DefaultFocus = 25 * time.Minute
	DefaultBreak = 5 * time.Minute
	DefaultTick  = time.Second

	// fiveMinutes is the remaining-time mark for the final stretch prompt.
	fiveMinutes = 5 * 60
)

// ErrRunning is returned by Start while the timer runs.
var ErrRunning = errors.New("timer: already running")

// Messages are prompt templates. {name} is replaced with the user name and
// {minutes} with the break length.
type Messages struct {
	SessionStart  string `json:"session_start"`
	FocusHalfway  string `json:"focus_halfway"`
	FiveMinutes   string `json:"five_minutes"`
	BreakStart    string `json:"break_start"`
	BreakHalfway  string `json:"break_halfway"`
	BreakComplete string `json:"break_complete"`
}

// DefaultMessages returns the standard prompts.
func DefaultMessages() Messages {
	return Messages{
		SessionStart:  "Focus session started. Don't touch your phone, {name}.",
		FocusHalfway:  "You're halfway there, {name}. Keep going!",
		FiveMinutes:   "Only 5 minutes left, stay strong, {name}!",
		BreakStart:    "Great job, {name}! Time for a {minutes}-minute break.",
		BreakHalfway:  "Halfway through your break, {name}.",
		BreakComplete: "Break is over, {name}. Let's get back to work!",
	}
}

func (m Messages) template(k PromptKind) string {
	switch k {
	case PromptSessionStart:
		return m.SessionStart
	case PromptFocusHalfway:
		return m.FocusHalfway
	case PromptFiveMinutes:
		return m.FiveMinutes
	case PromptBreakStart:
		return m.BreakStart
	case PromptBreakHalfway:
		return m.BreakHalfway
	case PromptBreakComplete:
		return m.BreakComplete
	}
	return ""
}

// Config holds timer parameters.
type Config struct {
	Focus    time.Duration
	Break    time.Duration
	Tick     time.Duration
	UserName string
	Messages Messages
}

// DefaultConfig returns a 25/5 configuration with a one second tick.
func DefaultConfig() Config {
	return Config{
		Focus:    DefaultFocus,
		Break:    DefaultBreak,
		Tick:     DefaultTick,
		Messages: DefaultMessages(),
	}
}

func (c *Config) applyDefaults() {
	if c.Focus <= 0 {
		c.Focus = DefaultFocus
	}
	if c.Break <= 0 {
		c.Break = DefaultBreak
	}
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	def := DefaultMessages()
	fill(&c.Messages.SessionStart, def.SessionStart)
	fill(&c.Messages.FocusHalfway, def.FocusHalfway)
	fill(&c.Messages.FiveMinutes, def.FiveMinutes)
	fill(&c.Messages.BreakStart, def.BreakStart)
	fill(&c.Messages.BreakHalfway, def.BreakHalfway)
	fill(&c.Messages.BreakComplete, def.BreakComplete)
}

func fill(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

// Progress is a snapshot of the countdown.
type Progress struct {
	Phase     Phase         `json:"phase"`
	Remaining time.Duration `json:"remaining"`
	Total     time.Duration `json:"total"`
	Running   bool          `json:"running"`
	Completed int           `json:"completed"`
}

// Percent returns how much of the phase has elapsed, 0-100.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Total-p.Remaining) / float64(p.Total) * 100
}

// Clock formats the remaining time as MM:SS.
func (p Progress) Clock() string {
	secs := int(p.Remaining / time.Second)
	return pad(secs/60) + ":" + pad(secs%60)
}

func pad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// EventKind distinguishes timer events.
type EventKind string

const (
	EventTick        EventKind = "tick"
	EventPrompt      EventKind = "prompt"
	EventPhaseChange EventKind = "phase_change"
)

// Event is delivered to the timer's handler.
type Event struct {
	Kind     EventKind  `json:"kind"`
	At       time.Time  `json:"at"`
	Progress Progress   `json:"progress"`
	Prompt   PromptKind `json:"prompt,omitempty"`
	Text     string     `json:"text,omitempty"`
	From     Phase      `json:"from,omitempty"`
	To       Phase      `json:"to,omitempty"`
}

// Handler receives timer events. It runs on the timer goroutine and must
// not call Stop.
type Handler func(Event)

// Ticker creates the tick source; stop releases it.
type Ticker func(d time.Duration) (c <-chan time.Time, stop func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Option configures a Timer.
type Option func(*Timer)

// WithTicker replaces the wall-clock ticker.
func WithTicker(fn Ticker) Option {
	return func(t *Timer) { t.ticker = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Timer) { t.logger = l }
}

// Timer counts down focus and break phases. It runs continuously once
// started and does not pause while the user is distracted.
type Timer struct {
	handler Handler
	ticker  Ticker
	logger  *slog.Logger

	mu        sync.Mutex
	cfg       Config
	phase     Phase
	remaining int // seconds
	total     int
	completed int
	spoken    map[PromptKind]bool
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a stopped timer.
func New(cfg Config, handler Handler, opts ...Option) *Timer {
	cfg.applyDefaults()
	t := &Timer{
		cfg:     cfg,
		handler: handler,
		ticker:  realTicker,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "timer")
	t.resetLocked()
	return t
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}

func (t *Timer) resetLocked() {
	t.phase = PhaseFocus
	t.total = seconds(t.cfg.Focus)
	t.remaining = t.total
	t.spoken = make(map[PromptKind]bool)
}

// SetUserName changes the name used in prompts.
func (t *Timer) SetUserName(name string) {
	t.mu.Lock()
	t.cfg.UserName = name
	t.mu.Unlock()
}

// SetDurations changes the phase lengths. A running phase keeps its
// length; a stopped timer is reset to the new focus length.
func (t *Timer) SetDurations(focus, brk time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if focus > 0 {
		t.cfg.Focus = focus
	}
	if brk > 0 {
		t.cfg.Break = brk
	}
	if !t.running {
		t.resetLocked()
	}
}

// Progress returns the current countdown state.
func (t *Timer) Progress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progressLocked()
}

func (t *Timer) progressLocked() Progress {
	return Progress{
		Phase:     t.phase,
		Remaining: time.Duration(t.remaining) * time.Second,
		Total:     time.Duration(t.total) * time.Second,
		Running:   t.running,
		Completed: t.completed,
	}
}

// Start begins a focus phase and announces it.
func (t *Timer) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return ErrRunning
	}
	t.resetLocked()
	t.running = true
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	ticks, stop := t.ticker(t.cfg.Tick)
	events := []Event{t.promptLocked(PromptSessionStart)}
	t.mu.Unlock()

	t.logger.Info("timer started", "focus", t.cfg.Focus, "break", t.cfg.Break)
	t.dispatch(events)

	go t.run(ctx, ticks, stop)
	return nil
}

func (t *Timer) run(ctx context.Context, ticks <-chan time.Time, stop func()) {
	defer close(t.done)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticks:
			if ctx.Err() != nil {
				return
			}
			t.dispatch(t.step(now))
		}
	}
}

// Stop halts the countdown and resets it to the start of a focus phase.
// Safe to call when stopped.
func (t *Timer) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	cancel()
	<-done

	t.mu.Lock()
	t.running = false
	t.resetLocked()
	t.mu.Unlock()
	t.logger.Info("timer stopped")
}

// step advances the countdown by one second and returns the resulting
// events.
func (t *Timer) step(now time.Time) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	var events []Event
	t.remaining--
	half := t.total / 2

	switch t.phase {
	case PhaseFocus:
		if t.remaining == half && !t.spoken[PromptFocusHalfway] {
			events = append(events, t.promptLocked(PromptFocusHalfway))
		}
		if t.remaining == fiveMinutes && !t.spoken[PromptFiveMinutes] {
			events = append(events, t.promptLocked(PromptFiveMinutes))
		}
		if t.remaining <= 0 {
			t.completed++
			events = append(events, t.switchLocked(PhaseBreak)...)
		}
	case PhaseBreak:
		if t.remaining == half && !t.spoken[PromptBreakHalfway] {
			events = append(events, t.promptLocked(PromptBreakHalfway))
		}
		if t.remaining <= 0 {
			events = append(events, t.switchLocked(PhaseFocus)...)
		}
	}

	events = append(events, Event{Kind: EventTick, Progress: t.progressLocked()})
	for i := range events {
		events[i].At = now
	}
	return events
}

func (t *Timer) switchLocked(to Phase) []Event {
	from := t.phase
	t.phase = to
	t.spoken = make(map[PromptKind]bool)

	prompt := PromptBreakComplete
	t.total = seconds(t.cfg.Focus)
	if to == PhaseBreak {
		prompt = PromptBreakStart
		t.total = seconds(t.cfg.Break)
	}
	t.remaining = t.total

	return []Event{
		{Kind: EventPhaseChange, Progress: t.progressLocked(), From: from, To: to},
		t.promptLocked(prompt),
	}
}

func (t *Timer) promptLocked(k PromptKind) Event {
	t.spoken[k] = true
	r := strings.NewReplacer(
		"{name}", t.cfg.UserName,
		"{minutes}", strconv.Itoa(int(t.cfg.Break/time.Minute)),
	)
	return Event{
		Kind:     EventPrompt,
		At:       time.Now(),
		Progress: t.progressLocked(),
		Prompt:   k,
		Text:     r.Replace(t.cfg.Messages.template(k)),
	}
}

func (t *Timer) dispatch(events []Event) {
	if t.handler == nil {
		return
	}
	for _, ev := range events {
		t.handler(ev)
	}
}
