// Package metrics exposes focus coach activity as Prometheus metrics.
//
// Metrics implements attention.Observer and supervisor.Observer so it can
// be attached directly to the state machine and the detector supervisor.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-focuscoach/pkg/attention"
	"github.com/teslashibe/go-focuscoach/pkg/presence"
	"github.com/teslashibe/go-focuscoach/pkg/supervisor"
	"github.com/teslashibe/go-focuscoach/pkg/voice"
)

const namespace = "focuscoach"

var (
	statuses = []attention.Status{attention.StatusChecking, attention.StatusFocused, attention.StatusDistracted}
	kinds    = []presence.Kind{presence.KindLandmark, presence.KindHeuristic}
	states   = []supervisor.State{
		supervisor.StateUninitialized, supervisor.StateInitializing,
		supervisor.StateActiveLandmark, supervisor.StateActiveHeuristic,
		supervisor.StateUnavailable, supervisor.StateStopped,
	}
)

// Metrics holds every collector. Each instance owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	signals        *prometheus.CounterVec
	signalsIgnored prometheus.Counter
	distractions   prometheus.Counter
	refocuses      *prometheus.CounterVec
	awayDuration   prometheus.Histogram
	totalAway      prometheus.Gauge
	status         *prometheus.GaugeVec
	sinkPanics     prometheus.Counter

	detector     *prometheus.GaugeVec
	supState     *prometheus.GaugeVec
	failovers    prometheus.Counter
	unavailable  prometheus.Counter
	detectorErrs *prometheus.CounterVec

	utterances   *prometheus.CounterVec
	voiceErrors  *prometheus.CounterVec
	voiceLatency prometheus.Histogram

	notifications *prometheus.CounterVec
	sessions      *prometheus.CounterVec
}

var (
	_ attention.Observer  = (*Metrics)(nil)
	_ supervisor.Observer = (*Metrics)(nil)
)

// New registers the collectors on reg. A nil reg gets a fresh registry
// with the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attention", Name: "signals_total",
			Help: "Presence signals observed while a session was active",
		}, []string{"present"}),
		signalsIgnored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attention", Name: "signals_ignored_total",
			Help: "Presence signals dropped because no session was active",
		}),
		distractions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attention", Name: "distractions_total",
			Help: "Distraction episodes",
		}),
		refocuses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attention", Name: "refocuses_total",
			Help: "Refocus transitions by whether they were announced",
		}, []string{"announced"}),
		awayDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "attention", Name: "away_duration_seconds",
			Help:    "Length of closed distraction episodes",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		totalAway: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "attention", Name: "total_away_seconds",
			Help: "Aggregate away time in the current session",
		}),
		status: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "attention", Name: "status",
			Help: "Current attention status (1 for the active status)",
		}, []string{"status"}),
		sinkPanics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attention", Name: "voice_panics_total",
			Help: "Panics recovered from the voice sink",
		}),

		detector: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "detector", Name: "active",
			Help: "Active presence detector (1 for the active kind)",
		}, []string{"kind"}),
		supState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "detector", Name: "supervisor_state",
			Help: "Detector supervisor state (1 for the current state)",
		}, []string{"state"}),
		failovers: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "detector", Name: "failovers_total",
			Help: "Downgrades from the landmark to the heuristic detector",
		}),
		unavailable: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "detector", Name: "tracking_unavailable_total",
			Help: "Sessions in which no detector could run",
		}),
		detectorErrs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "detector", Name: "errors_total",
			Help: "Detector failures by detector kind and operation",
		}, []string{"kind", "op"}),

		utterances: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "voice", Name: "utterances_total",
			Help: "Spoken messages by outcome",
		}, []string{"result"}),
		voiceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "voice", Name: "errors_total",
			Help: "Voice failures by stage",
		}, []string{"stage"}),
		voiceLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "voice", Name: "synthesis_seconds",
			Help:    "Text-to-speech latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "notifications_total",
			Help: "Notifications by kind and outcome",
		}, []string{"kind", "result"}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "events_total",
			Help: "Session lifecycle events",
		}, []string{"event"}),
	}

	m.setStatus(attention.StatusChecking)
	m.setState(supervisor.StateUninitialized)
	m.setDetector("")
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe implements attention.Observer.
func (m *Metrics) Observe(r attention.Record) {
	switch r.Kind {
	case attention.RecordSignal:
		m.signals.WithLabelValues(boolLabel(r.Snapshot.Present)).Inc()
	case attention.RecordIgnored:
		m.signalsIgnored.Inc()
	case attention.RecordDistraction:
		m.distractions.Inc()
	case attention.RecordRefocus, attention.RecordSilentRefocus:
		announced := r.Kind == attention.RecordRefocus
		m.refocuses.WithLabelValues(boolLabel(announced)).Inc()
		if r.Event != nil {
			m.awayDuration.Observe(r.Event.AwayDuration.Seconds())
		}
	case attention.RecordSinkPanic:
		m.sinkPanics.Inc()
	}
	m.totalAway.Set(r.Snapshot.TotalAway.Seconds())
	m.setStatus(r.Snapshot.DisplayStatus())
}

// OnSupervisorEvent implements supervisor.Observer.
func (m *Metrics) OnSupervisorEvent(ev supervisor.Event) {
	switch ev.Kind {
	case supervisor.EventFailover:
		m.failovers.Inc()
	case supervisor.EventUnavailable:
		m.unavailable.Inc()
	}
	var de *presence.DetectorError
	if ev.Kind != supervisor.EventStopped && errors.As(ev.Err, &de) {
		m.detectorErrs.WithLabelValues(string(de.Kind), de.Op).Inc()
	}

	m.setState(ev.State)
	switch ev.State {
	case supervisor.StateActiveLandmark:
		m.setDetector(presence.KindLandmark)
	case supervisor.StateActiveHeuristic:
		m.setDetector(presence.KindHeuristic)
	default:
		m.setDetector("")
	}
}

// ObserveUtterance records one voice.Metrics. Attach it with
// voice.MetricsCollector.OnUpdate.
func (m *Metrics) ObserveUtterance(u voice.Metrics) {
	switch {
	case u.Failed:
		m.utterances.WithLabelValues("failed").Inc()
	case u.Interrupted:
		m.utterances.WithLabelValues("interrupted").Inc()
	default:
		m.utterances.WithLabelValues("spoken").Inc()
		m.voiceLatency.Observe(u.SynthesisLatency.Seconds())
	}
}

// VoiceError counts a speaker failure. It matches voice.WithErrorHandler.
func (m *Metrics) VoiceError(err error) {
	stage := "unknown"
	var se *voice.SinkError
	if errors.As(err, &se) {
		stage = string(se.Stage)
	}
	m.voiceErrors.WithLabelValues(stage).Inc()
}

// Notification counts a notification outcome.
func (m *Metrics) Notification(kind, result string) {
	m.notifications.WithLabelValues(kind, result).Inc()
}

// SessionEvent counts a session lifecycle event such as "started".
func (m *Metrics) SessionEvent(event string) {
	m.sessions.WithLabelValues(event).Inc()
}

func (m *Metrics) setStatus(s attention.Status) {
	for _, st := range statuses {
		m.status.WithLabelValues(string(st)).Set(boolValue(st == s))
	}
}

func (m *Metrics) setState(s supervisor.State) {
	for _, st := range states {
		m.supState.WithLabelValues(string(st)).Set(boolValue(st == s))
	}
}

func (m *Metrics) setDetector(k presence.Kind) {
	for _, kind := range kinds {
		m.detector.WithLabelValues(string(kind)).Set(boolValue(kind == k))
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
