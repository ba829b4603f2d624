package attention

import (
	"context"
	"log/slog"
	"time"
)

// RecordKind names a structured machine event.
type RecordKind string

const (
	RecordStart         RecordKind = "session_start"
	RecordStop          RecordKind = "session_stop"
	RecordReset         RecordKind = "reset"
	RecordSignal        RecordKind = "signal"
	RecordIgnored       RecordKind = "signal_ignored"
	RecordPending       RecordKind = "distraction_pending"
	RecordDistraction   RecordKind = "distraction"
	RecordRefocus       RecordKind = "refocus"
	RecordSilentRefocus RecordKind = "refocus_silenced"
	RecordSinkPanic     RecordKind = "sink_panic"
)

// Record is one structured event from the machine.
type Record struct {
	Kind     RecordKind
	At       time.Time
	Snapshot Snapshot
	Event    *Event
	Err      error
}

// Observer receives structured records. Observe runs on the signal path
// and must return quickly.
type Observer interface {
	Observe(Record)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Record)

// Observe implements Observer.
func (f ObserverFunc) Observe(r Record) { f(r) }

// LogObserver writes records to a slog logger. Per-signal records are
// logged at debug level.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger.With("component", "attention")}
}

// Observe implements Observer.
func (o *LogObserver) Observe(r Record) {
	level := slog.LevelInfo
	switch r.Kind {
	case RecordSignal, RecordIgnored, RecordPending:
		level = slog.LevelDebug
	case RecordSinkPanic:
		level = slog.LevelError
	}
	if !o.logger.Enabled(context.Background(), level) {
		return
	}

	attrs := []any{
		"status", r.Snapshot.DisplayStatus(),
		"faces", r.Snapshot.FaceCount,
		"total_away", r.Snapshot.TotalAway,
	}
	if r.Event != nil {
		attrs = append(attrs,
			"episode", r.Event.Episode,
			"announced", r.Event.Announced,
		)
		if r.Event.AwayDuration > 0 {
			attrs = append(attrs, "away", r.Event.AwayDuration)
		}
	}
	if r.Err != nil {
		attrs = append(attrs, "error", r.Err)
	}
	o.logger.Log(context.Background(), level, string(r.Kind), attrs...)
}
