// Package notify delivers session notifications through shoutrrr service
// URLs (ntfy, gotify, pushover, desktop bridges and the rest).
package notify

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/patrickmn/go-cache"
)

// Kind identifies a notification.
type Kind string

const (
	KindFocusStart    Kind = "focus-start"
	KindFocusComplete Kind = "focus-complete"
	KindBreakStart    Kind = "break-start"
	KindBreakComplete Kind = "break-complete"
	KindDistraction   Kind = "distraction"
)

// Notification is one message.
type Notification struct {
	ID    string    `json:"id"`
	Kind  Kind      `json:"kind"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	Tag   string    `json:"tag"`
	At    time.Time `json:"at"`
}

// FocusStarted announces a new session.
func FocusStarted(name string) Notification {
	return build(KindFocusStart, "🎯 Focus Session Started",
		fmt.Sprintf("Time to focus, %s! Your session has begun.", name))
}

// FocusComplete announces the end of a focus phase.
func FocusComplete(name string) Notification {
	return build(KindFocusComplete, "✅ Focus Session Complete",
		fmt.Sprintf("Great job, %s! You've completed your focus session.", name))
}

// BreakStarted announces a break of the given length.
func BreakStarted(name string, minutes int) Notification {
	return build(KindBreakStart, "☕ Break Time",
		fmt.Sprintf("%s, take a %d-minute break to recharge.", name, minutes))
}

// BreakComplete announces the end of a break.
func BreakComplete(name string) Notification {
	return build(KindBreakComplete, "🚀 Break Complete",
		fmt.Sprintf("Break is over, %s! Ready to focus again?", name))
}

// Distracted nudges an absent user.
func Distracted(name string) Notification {
	return build(KindDistraction, "⚠️ Stay Focused",
		fmt.Sprintf("%s, you seem distracted. Come back to your work!", name))
}

func build(kind Kind, title, body string) Notification {
	return Notification{
		ID:    uuid.NewString(),
		Kind:  kind,
		Title: title,
		Body:  body,
		Tag:   string(kind),
	}
}

// Sender delivers a message. *router.ServiceRouter implements it.
type Sender interface {
	Send(message string, params *stypes.Params) []error
}

// ErrDuplicate is returned by Notify for a tag already sent within the
// de-duplication window.
var ErrDuplicate = errors.New("notify: duplicate notification")

// Config configures a Notifier.
type Config struct {
	URLs         []string
	DedupeWindow time.Duration
	Timeout      time.Duration
	// History is how many recent notifications are kept.
	History int
}

// DefaultConfig returns a Config without delivery URLs.
func DefaultConfig() Config {
	return Config{
		DedupeWindow: 5 * time.Second,
		Timeout:      10 * time.Second,
		History:      50,
	}
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithSender replaces the shoutrrr router.
func WithSender(s Sender) Option {
	return func(n *Notifier) { n.sender = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// WithResultHandler is called with the outcome of every Notify: nil,
// ErrDuplicate or the delivery error.
func WithResultHandler(fn func(Notification, error)) Option {
	return func(n *Notifier) { n.onResult = fn }
}

// Stats counts notifications.
type Stats struct {
	Sent       int64 `json:"sent"`
	Suppressed int64 `json:"suppressed"`
	Failed     int64 `json:"failed"`
}

// Notifier sends notifications, suppressing repeats of a tag inside the
// de-duplication window. Without URLs it only keeps history.
type Notifier struct {
	cfg    Config
	sender Sender
	seen   *cache.Cache
	logger   *slog.Logger
	now      func() time.Time
	onResult func(Notification, error)

	mu      sync.Mutex
	history []Notification
	wg      sync.WaitGroup

	sent       atomic.Int64
	suppressed atomic.Int64
	failed     atomic.Int64
}

// New creates a Notifier. Invalid service URLs are an error.
func New(cfg Config, opts ...Option) (*Notifier, error) {
	def := DefaultConfig()
	if cfg.DedupeWindow <= 0 {
		cfg.DedupeWindow = def.DedupeWindow
	}
	if cfg.History <= 0 {
		cfg.History = def.History
	}
	cfg.URLs = slices.DeleteFunc(slices.Clone(cfg.URLs), func(u string) bool { return u == "" })

	n := &Notifier{
		cfg: cfg,
		// Expired tags are replaced on Add, so no janitor goroutine is needed.
		seen:   cache.New(cfg.DedupeWindow, 0),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With("component", "notify")

	if n.sender == nil && len(cfg.URLs) > 0 {
		router, err := shoutrrr.CreateSender(cfg.URLs...)
		if err != nil {
			return nil, fmt.Errorf("notify: invalid service url: %w", err)
		}
		if cfg.Timeout > 0 {
			router.Timeout = cfg.Timeout
		}
		router.SetLogger(log.New(io.Discard, "", 0))
		n.sender = router
	}
	return n, nil
}

// Enabled reports whether notifications are delivered anywhere.
func (n *Notifier) Enabled() bool {
	return n.sender != nil
}

// Notify sends msg and waits for delivery.
func (n *Notifier) Notify(msg Notification) error {
	err := n.notify(msg)
	if n.onResult != nil {
		n.onResult(msg, err)
	}
	return err
}

func (n *Notifier) notify(msg Notification) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Tag == "" {
		msg.Tag = "focus-coach"
	}
	msg.At = n.now()

	if err := n.seen.Add(msg.Tag, msg.ID, cache.DefaultExpiration); err != nil {
		n.suppressed.Add(1)
		n.logger.Debug("notification suppressed", "tag", msg.Tag)
		return ErrDuplicate
	}

	n.remember(msg)
	if n.sender == nil {
		return nil
	}

	params := stypes.Params{}
	if msg.Title != "" {
		params.SetTitle(msg.Title)
	}
	if err := errors.Join(n.sender.Send(msg.Body, &params)...); err != nil {
		n.failed.Add(1)
		n.logger.Warn("notification failed", "tag", msg.Tag, "error", err)
		return fmt.Errorf("notify: send %s: %w", msg.Tag, err)
	}
	n.sent.Add(1)
	n.logger.Info("notification sent", "tag", msg.Tag, "title", msg.Title)
	return nil
}

// Post sends msg in the background. Errors are logged.
func (n *Notifier) Post(msg Notification) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		_ = n.Notify(msg)
	}()
}

func (n *Notifier) remember(msg Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.history = append(n.history, msg)
	if over := len(n.history) - n.cfg.History; over > 0 {
		n.history = slices.Delete(n.history, 0, over)
	}
}

// Recent returns accepted notifications, oldest first.
func (n *Notifier) Recent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.history)
}

// Stats returns delivery counters.
func (n *Notifier) Stats() Stats {
	return Stats{
		Sent:       n.sent.Load(),
		Suppressed: n.suppressed.Load(),
		Failed:     n.failed.Load(),
	}
}

// Close waits for posted notifications.
func (n *Notifier) Close() error {
	n.wg.Wait()
	return nil
}
